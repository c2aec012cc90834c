// Package expr evaluates the restricted arithmetic grammar used by the calc skill.
//
// Input goes through three stages: Clean strips natural-language filler and stray
// characters, Validate rejects anything outside the grammar's alphabet, and Evaluate
// parses the result with a recursive-descent parser. Evaluate is never reached with
// input that has not passed Validate.
package expr

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrValidation is returned when an expression contains disallowed characters
	// or unbalanced parentheses.
	ErrValidation = errors.New("invalid expression")
	// ErrSyntax is returned when a validated expression does not parse.
	ErrSyntax = errors.New("malformed expression")
)

var (
	fillerPhrases = regexp.MustCompile(`(?i)what\s+is|what's|calculate|compute|solve`)
	strayChars    = regexp.MustCompile(`[^0-9+\-*/().%\s]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[a-zA-Z_$]`)
	allowedExpr   = regexp.MustCompile(`^[\d\s+\-*/%().]+$`)
)

// Calculation is the structured result of the calc skill.
type Calculation struct {
	Expression string `json:"expression"`
	Result     string `json:"result"`
}

// Calculate runs the full pipeline on raw user input.
func Calculate(raw string) (Calculation, error) {
	cleaned := Clean(raw)
	if err := Validate(cleaned); err != nil {
		return Calculation{}, err
	}
	v, err := Evaluate(cleaned)
	if err != nil {
		return Calculation{}, err
	}
	return Calculation{Expression: cleaned, Result: Format(v)}, nil
}

// Clean removes filler phrases such as "what is" and every character that cannot
// appear in an expression, then normalizes whitespace.
func Clean(raw string) string {
	s := fillerPhrases.ReplaceAllString(raw, "")
	s = strayChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return whitespaceRun.ReplaceAllString(s, " ")
}

// Validate rejects expressions that must never reach the evaluator.
func Validate(expression string) error {
	if unsafeChars.MatchString(expression) {
		return fmt.Errorf("%w: contains invalid characters", ErrValidation)
	}

	var stack []byte
	for i := 0; i < len(expression); i++ {
		switch expression[i] {
		case '(':
			stack = append(stack, '(')
		case ')':
			if len(stack) == 0 {
				return fmt.Errorf("%w: unbalanced parentheses", ErrValidation)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("%w: unbalanced parentheses", ErrValidation)
	}

	if !allowedExpr.MatchString(expression) {
		return fmt.Errorf("%w: contains invalid characters", ErrValidation)
	}
	return nil
}

// Evaluate parses and computes a validated expression. Division and modulo by
// zero follow IEEE-754 and produce Inf or NaN instead of an error.
func Evaluate(expression string) (float64, error) {
	p := &parser{src: expression}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, p.errorf("unexpected %q", p.src[p.pos])
	}
	return v, nil
}

// Format renders a result: integers without a decimal point, other values with at
// most six fractional digits.
func Format(v float64) string {
	switch {
	case math.IsNaN(v):
		return "Not a number"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}

	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// parser is a recursive-descent parser over:
//
//	expr    := term (('+' | '-') term)*
//	term    := unary (('*' | '/' | '%') unary)*
//	unary   := ('+' | '-') unary | primary
//	primary := number | '(' expr ')'
type parser struct {
	src   string
	pos   int
	depth int // open parentheses and pending unary signs
}

// maxDepth bounds parser recursion; deeper input is a syntax error rather
// than a stack overflow.
const maxDepth = 256

func (p *parser) enter() error {
	if p.depth >= maxDepth {
		return p.errorf("expression nested too deeply")
	}
	p.depth++
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return left, nil
		}
		op := p.src[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return left, nil
		}
		op := p.src[p.pos]
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			left /= right
		case '%':
			left = math.Mod(left, right)
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
		neg := p.src[p.pos] == '-'
		if err := p.enter(); err != nil {
			return 0, err
		}
		defer p.leave()
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if neg {
			return -v, nil
		}
		return v, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, p.errorf("unexpected end of expression")
	}

	if p.src[p.pos] == '(' {
		if err := p.enter(); err != nil {
			return 0, err
		}
		defer p.leave()
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return 0, p.errorf("expected ')'")
		}
		p.pos++
		return v, nil
	}

	return p.parseNumber()
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	digits := 0
	for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
		p.pos++
		digits++
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
			digits++
		}
	}
	if digits == 0 {
		p.pos = start
		if p.pos < len(p.src) {
			return 0, p.errorf("expected number, got %q", p.src[p.pos])
		}
		return 0, p.errorf("expected number")
	}

	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return v, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
