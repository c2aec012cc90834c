package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"skillbot/internal/domain"
	"skillbot/internal/metrics"
)

// Matching passes, as reported in logs and metrics.
const (
	PassExplicit = "explicit"
	PassNatural  = "natural"
	PassNone     = "none"
)

// route is a registered skill with its triggers resolved once at construction.
type route struct {
	skill       domain.Skill
	patterns    []*regexp.Regexp
	phrases     []string
	lowerPhrase []string // pre-computed ASCII-lowercase phrases
}

// Dispatcher picks the skill for an input and runs it. Explicit patterns are
// tried before natural-language phrases; within a pass the first registered
// skill and first declared trigger win.
type Dispatcher struct {
	routes   []route
	fallback *Fallback
	logger   *slog.Logger
}

// DispatcherConfig holds the dispatcher's dependencies.
type DispatcherConfig struct {
	Skills   []domain.Skill // registration order
	Fallback *Fallback      // optional: defaults to NewFallback()
	Logger   *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Fallback == nil {
		cfg.Fallback = NewFallback()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	routes := make([]route, 0, len(cfg.Skills))
	for _, s := range cfg.Skills {
		t := s.Triggers()
		lower := make([]string, len(t.Phrases))
		for i, p := range t.Phrases {
			lower[i] = asciiLower(p)
		}
		routes = append(routes, route{
			skill:       s,
			patterns:    slices.Clone(t.Patterns),
			phrases:     slices.Clone(t.Phrases),
			lowerPhrase: lower,
		})
	}

	return &Dispatcher{routes: routes, fallback: cfg.Fallback, logger: cfg.Logger}
}

// Skills returns the dispatcher's skills in registration order.
func (d *Dispatcher) Skills() []domain.Skill {
	out := make([]domain.Skill, len(d.routes))
	for i, r := range d.routes {
		out[i] = r.skill
	}
	return out
}

// Route dispatches one input. It never returns an error: skill failures become
// an apology and unmatched input gets a canned fallback reply.
func (d *Dispatcher) Route(ctx context.Context, input string) domain.DispatchResult {
	text := strings.TrimSpace(input)
	if text == "" {
		metrics.RecordDispatch("", PassNone, metrics.OutcomeFallback)
		return domain.DispatchResult{Text: d.fallback.Respond("")}
	}

	r, arg, pass, ok := d.match(text)
	if !ok {
		d.logger.Debug("no skill matched", "input_len", len(text))
		metrics.RecordDispatch("", PassNone, metrics.OutcomeFallback)
		return domain.DispatchResult{Text: d.fallback.Respond(text)}
	}

	d.logger.Debug("skill matched", "skill", r.skill.Name(), "pass", pass)
	return d.execute(ctx, r.skill, arg, pass)
}

// match finds the winning skill and its argument.
func (d *Dispatcher) match(text string) (*route, string, string, bool) {
	for i := range d.routes {
		for _, re := range d.routes[i].patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			arg := ""
			if len(m) > 1 {
				arg = strings.TrimSpace(m[1])
			}
			return &d.routes[i], arg, PassExplicit, true
		}
	}

	lower := asciiLower(text)
	for i := range d.routes {
		for _, phrase := range d.routes[i].lowerPhrase {
			if phrase == "" {
				continue
			}
			idx := strings.Index(lower, phrase)
			if idx < 0 {
				continue
			}
			// lower and text have the same byte length, so the offset is valid
			// in text as well and the argument keeps its case.
			arg := strings.TrimSpace(text[idx+len(phrase):])
			return &d.routes[i], arg, PassNatural, true
		}
	}

	return nil, "", "", false
}

func (d *Dispatcher) execute(ctx context.Context, s domain.Skill, arg, pass string) (result domain.DispatchResult) {
	name := s.Name()
	start := time.Now()

	defer func() {
		metrics.ObserveSkillLatency(name, time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			d.logger.Error("skill panicked", "skill", name, "pass", pass, "panic", rec)
			metrics.RecordDispatch(name, pass, metrics.OutcomeFailed)
			result = apology(name)
		}
	}()

	out, err := s.Execute(ctx, arg)
	if err == nil && out == nil {
		err = fmt.Errorf("skill returned no result")
	}
	if err != nil {
		d.logger.Warn("skill failed", "skill", name, "pass", pass, "err", err)
		metrics.RecordDispatch(name, pass, metrics.OutcomeFailed)
		return apology(name)
	}

	d.logger.Info("skill dispatched", "skill", name, "pass", pass,
		"duration_ms", time.Since(start).Milliseconds())
	metrics.RecordDispatch(name, pass, metrics.OutcomeMatched)
	return domain.DispatchResult{
		Matched:   true,
		SkillName: name,
		Text:      out.Text,
		Data:      out.Data,
	}
}

func apology(skill string) domain.DispatchResult {
	return domain.DispatchResult{
		Text: fmt.Sprintf("I had trouble processing your %s request. Please try again.", skill),
	}
}

// asciiLower folds A-Z only, so the result has the same byte length as s.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
