package domain

import (
	"context"
	"regexp"
)

// Trigger declares how a skill is activated.
type Trigger struct {
	// Patterns are anchored explicit command patterns, tried in order. Capture
	// group 1, when present, is the skill argument.
	Patterns []*regexp.Regexp
	// Phrases are natural-language substrings, matched case-insensitively.
	Phrases []string
}

// SkillResult is the output of a single skill execution.
type SkillResult struct {
	Text string
	Data any
}

// Skill is a handler that maps a recognized command or phrase to a result.
// Implementations must not keep per-call state between Execute calls.
type Skill interface {
	Name() string
	Description() string
	Triggers() Trigger
	Execute(ctx context.Context, query string) (*SkillResult, error)
}

// DispatchResult is what the dispatcher returns for one input.
type DispatchResult struct {
	Matched   bool   `json:"matched"`
	SkillName string `json:"skill,omitempty"`
	Text      string `json:"response"`
	Data      any    `json:"data,omitempty"`
}
