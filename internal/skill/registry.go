// Package skill provides the built-in chat skills and the ordered registry the
// dispatcher is built from.
package skill

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"skillbot/internal/domain"
)

var (
	// ErrInvalidArgument is returned by Execute when the extracted argument is empty.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateSkill is returned when a skill name is registered twice.
	ErrDuplicateSkill = errors.New("duplicate skill")
)

// Registry holds skills in registration order. Order matters: the dispatcher
// tries skills first-registered first.
type Registry struct {
	skills  []domain.Skill
	phrases map[string][]string // extra natural-language phrases by skill name
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		phrases: make(map[string][]string),
		logger:  logger,
	}
}

// Register appends a skill. Names must be unique and every explicit pattern
// must be anchored at the start of input.
func (r *Registry) Register(s domain.Skill) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("skill has no name")
	}
	for _, re := range s.Triggers().Patterns {
		if !anchored(re) {
			return fmt.Errorf("skill %s: pattern %q is not anchored", name, re.String())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.skills {
		if existing.Name() == name {
			return fmt.Errorf("%w: %s", ErrDuplicateSkill, name)
		}
	}
	r.skills = append(r.skills, s)
	r.logger.Info("skill registered", "name", name)
	return nil
}

// AddPhrases appends natural-language phrases to an already registered skill.
// They are tried after the skill's own phrases.
func (r *Registry) AddPhrases(name string, phrases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(name) == nil {
		return fmt.Errorf("unknown skill: %s", name)
	}
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r.phrases[name] = append(r.phrases[name], p)
	}
	r.logger.Debug("skill phrases added", "name", name, "count", len(phrases))
	return nil
}

// Get returns the named skill, or nil.
func (r *Registry) Get(name string) domain.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.find(name)
}

// List returns the registered skills in order, with any added phrases folded
// into their triggers.
func (r *Registry) List() []domain.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Skill, len(r.skills))
	for i, s := range r.skills {
		if extra := r.phrases[s.Name()]; len(extra) > 0 {
			result[i] = &phraseOverlay{Skill: s, extra: slices.Clone(extra)}
			continue
		}
		result[i] = s
	}
	return result
}

func (r *Registry) find(name string) domain.Skill {
	for _, s := range r.skills {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// BuiltinsConfig carries the per-skill settings for RegisterBuiltins.
type BuiltinsConfig struct {
	Weather    WeatherConfig
	Dictionary DictionaryConfig
}

// RegisterBuiltins registers weather, calc and define, in that order.
func (r *Registry) RegisterBuiltins(cfg BuiltinsConfig) error {
	if cfg.Weather.Logger == nil {
		cfg.Weather.Logger = r.logger
	}
	if cfg.Dictionary.Logger == nil {
		cfg.Dictionary.Logger = r.logger
	}

	builtins := []domain.Skill{
		NewWeather(cfg.Weather),
		NewArithmetic(),
		NewDictionary(cfg.Dictionary),
	}
	for _, s := range builtins {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// phraseOverlay extends a skill's natural-language phrases without touching
// the skill itself.
type phraseOverlay struct {
	domain.Skill
	extra []string
}

func (p *phraseOverlay) Triggers() domain.Trigger {
	t := p.Skill.Triggers()
	t.Phrases = append(slices.Clone(t.Phrases), p.extra...)
	return t
}

var flagPrefix = regexp.MustCompile(`^\(\?[a-zA-Z]+\)`)

func anchored(re *regexp.Regexp) bool {
	src := flagPrefix.ReplaceAllString(re.String(), "")
	return strings.HasPrefix(src, "^")
}

// commandPattern builds the explicit pattern for "/name <argument...>".
func commandPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^/` + regexp.QuoteMeta(name) + `\s+(.+)$`)
}
