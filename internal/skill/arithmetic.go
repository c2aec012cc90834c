package skill

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"skillbot/internal/domain"
	"skillbot/internal/expr"
)

var calcPattern = commandPattern("calc")

// Arithmetic evaluates arithmetic expressions typed as "/calc 2 + 2" or
// "what is 2 + 2".
type Arithmetic struct{}

func NewArithmetic() *Arithmetic { return &Arithmetic{} }

func (a *Arithmetic) Name() string { return "calc" }

func (a *Arithmetic) Description() string { return "Calculate mathematical expressions" }

func (a *Arithmetic) Triggers() domain.Trigger {
	return domain.Trigger{
		Patterns: []*regexp.Regexp{calcPattern},
		Phrases:  []string{"calculate", "compute", "what is", "what's", "solve"},
	}
}

func (a *Arithmetic) Execute(ctx context.Context, query string) (*domain.SkillResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: expression is required", ErrInvalidArgument)
	}

	calc, err := expr.Calculate(query)
	if err != nil {
		return nil, fmt.Errorf("calculation error: %w", err)
	}

	return &domain.SkillResult{
		Text: calc.Expression + " = " + calc.Result,
		Data: calc,
	}, nil
}
