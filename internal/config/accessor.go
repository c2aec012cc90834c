package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned for a key that skillbot does not read.
var ErrUnknownKey = errors.New("unknown config key")

// setting is one key exposed to `skillbot config`. field returns a pointer
// into the config: *string, *bool, *int or *FlexStringList.
type setting struct {
	field  func(c *Config) any
	check  func(raw string) error // optional, runs on the raw value before it is stored
	secret bool
}

var settings = map[string]setting{
	"general.logLevel": {field: func(c *Config) any { return &c.General.LogLevel }, check: oneOf("debug", "info", "warn", "error")},
	"general.logFile":  {field: func(c *Config) any { return &c.General.LogFile }},

	"skills.weather.apiKey":            {field: func(c *Config) any { return &c.Skills.Weather.APIKey }, secret: true},
	"skills.weather.apiBase":           {field: func(c *Config) any { return &c.Skills.Weather.APIBase }, check: httpURL},
	"skills.weather.timeoutSeconds":    {field: func(c *Config) any { return &c.Skills.Weather.TimeoutSeconds }, check: intRange(1, 120)},
	"skills.dictionary.apiBase":        {field: func(c *Config) any { return &c.Skills.Dictionary.APIBase }, check: httpURL},
	"skills.dictionary.timeoutSeconds": {field: func(c *Config) any { return &c.Skills.Dictionary.TimeoutSeconds }, check: intRange(1, 120)},
	"skills.triggersFile":              {field: func(c *Config) any { return &c.Skills.TriggersFile }},

	"channels.cli.enabled":        {field: func(c *Config) any { return &c.Channels.CLI.Enabled }},
	"channels.telegram.enabled":   {field: func(c *Config) any { return &c.Channels.Telegram.Enabled }},
	"channels.telegram.token":     {field: func(c *Config) any { return &c.Channels.Telegram.Token }, secret: true},
	"channels.telegram.allowFrom": {field: func(c *Config) any { return &c.Channels.Telegram.AllowFrom }, check: numericIDs},
	"channels.websocket.enabled":  {field: func(c *Config) any { return &c.Channels.WebSocket.Enabled }},
	"channels.websocket.host":     {field: func(c *Config) any { return &c.Channels.WebSocket.Host }},
	"channels.websocket.port":     {field: func(c *Config) any { return &c.Channels.WebSocket.Port }, check: intRange(0, 65535)},
	"channels.websocket.path":     {field: func(c *Config) any { return &c.Channels.WebSocket.Path }, check: absPath},
	"channels.api.enabled":        {field: func(c *Config) any { return &c.Channels.API.Enabled }},
	"channels.api.host":           {field: func(c *Config) any { return &c.Channels.API.Host }},
	"channels.api.port":           {field: func(c *Config) any { return &c.Channels.API.Port }, check: intRange(0, 65535)},
	"channels.api.apiKey":         {field: func(c *Config) any { return &c.Channels.API.APIKey }, secret: true},
	"channels.api.ratePerMinute":  {field: func(c *Config) any { return &c.Channels.API.RatePerMinute }, check: intRange(0, 1_000_000)},

	"memory.enabled":    {field: func(c *Config) any { return &c.Memory.Enabled }},
	"memory.dbPath":     {field: func(c *Config) any { return &c.Memory.DBPath }},
	"memory.maxHistory": {field: func(c *Config) any { return &c.Memory.MaxHistory }, check: intRange(1, 1_000_000)},

	"metrics.enabled":  {field: func(c *Config) any { return &c.Metrics.Enabled }},
	"metrics.endpoint": {field: func(c *Config) any { return &c.Metrics.Endpoint }, check: absPath},
}

// Keys returns every settable key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key. A section prefix such as "skills.weather"
// returns a map of the keys below it.
func Get(cfg *Config, key string) (any, error) {
	if s, ok := settings[key]; ok {
		return valueOf(s.field(cfg)), nil
	}
	section := make(map[string]any)
	for k, s := range settings {
		if rest, ok := strings.CutPrefix(k, key+"."); ok {
			section[rest] = valueOf(s.field(cfg))
		}
	}
	if len(section) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return section, nil
}

// Set parses raw according to the key's type and stores it. Lists are
// comma-separated; an empty raw value clears them.
func Set(cfg *Config, key, raw string) error {
	s, ok := settings[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if s.check != nil {
		if err := s.check(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	switch p := s.field(cfg).(type) {
	case *string:
		*p = raw
	case *bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: expected true or false, got %q", key, raw)
		}
		*p = b
	case *int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", key, raw)
		}
		*p = n
	case *FlexStringList:
		*p = splitList(raw)
	default:
		return fmt.Errorf("%s: unsupported type %T", key, p)
	}
	return nil
}

// Values returns every key with its current value.
func Values(cfg *Config) map[string]any {
	out := make(map[string]any, len(settings))
	for k, s := range settings {
		out[k] = valueOf(s.field(cfg))
	}
	return out
}

// Sanitize returns a copy of the config with secret keys masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Channels.Telegram.AllowFrom = append(FlexStringList(nil), cfg.Channels.Telegram.AllowFrom...)
	for _, s := range settings {
		if !s.secret {
			continue
		}
		if p := s.field(&c).(*string); *p != "" {
			*p = maskString(*p)
		}
	}
	return &c
}

func valueOf(ptr any) any {
	switch p := ptr.(type) {
	case *string:
		return *p
	case *bool:
		return *p
	case *int:
		return *p
	case *FlexStringList:
		return []string(*p)
	}
	return nil
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func splitList(raw string) FlexStringList {
	var out FlexStringList
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func oneOf(allowed ...string) func(string) error {
	return func(raw string) error {
		for _, a := range allowed {
			if raw == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
	}
}

func intRange(lo, hi int) func(string) error {
	return func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", raw)
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func httpURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("expected an http(s) URL, got %q", raw)
	}
	return nil
}

func absPath(raw string) error {
	if !strings.HasPrefix(raw, "/") {
		return fmt.Errorf("must start with /")
	}
	return nil
}

// numericIDs accepts a comma-separated list of Telegram user IDs.
func numericIDs(raw string) error {
	for _, id := range splitList(raw) {
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return fmt.Errorf("invalid user id %q", id)
		}
	}
	return nil
}
