package featureflag

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// definition is the configured state of one flag
type definition struct {
	Default  any            `mapstructure:"default" yaml:"default"`
	Contexts map[string]any `mapstructure:"contexts" yaml:"contexts"`
}

// store holds flag definitions and implements evaluation for every Client in this package.
// Context keys are matched case-insensitively.
type store struct {
	mu    sync.RWMutex
	flags map[string]definition
}

func newStore() *store {
	return &store{flags: map[string]definition{}}
}

func (s *store) replace(flags map[string]definition) {
	normalized := make(map[string]definition, len(flags))
	for name, def := range flags {
		contexts := make(map[string]any, len(def.Contexts))
		for key, value := range def.Contexts {
			contexts[strings.ToLower(key)] = value
		}
		normalized[strings.ToLower(name)] = definition{Default: def.Default, Contexts: contexts}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = normalized
}

// lookup returns the first context override that matches, else the configured default
func (s *store) lookup(name string, contexts []Context) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.flags[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	for _, c := range contexts {
		if value, ok := def.Contexts[strings.ToLower(c.String())]; ok {
			return value, true
		}
	}
	if def.Default == nil {
		return nil, false
	}
	return def.Default, true
}

// BoolVariation implements Client.BoolVariation
func (s *store) BoolVariation(_ context.Context, flag Flag[bool], contexts ...Context) bool {
	raw, ok := s.lookup(flag.Name, contexts)
	if !ok {
		return flag.Default
	}
	value, err := cast.ToBoolE(raw)
	if err != nil {
		slog.Debug("Malformed flag value, using default", "flag", flag.Name, "value", raw, "error", err)
		return flag.Default
	}
	return value
}

// IntVariation implements Client.IntVariation
func (s *store) IntVariation(_ context.Context, flag Flag[int], contexts ...Context) int {
	raw, ok := s.lookup(flag.Name, contexts)
	if !ok {
		return flag.Default
	}
	value, err := cast.ToIntE(raw)
	if err != nil {
		slog.Debug("Malformed flag value, using default", "flag", flag.Name, "value", raw, "error", err)
		return flag.Default
	}
	return value
}

// StringVariation implements Client.StringVariation
func (s *store) StringVariation(_ context.Context, flag Flag[string], contexts ...Context) string {
	raw, ok := s.lookup(flag.Name, contexts)
	if !ok {
		return flag.Default
	}
	value, err := cast.ToStringE(raw)
	if err != nil {
		slog.Debug("Malformed flag value, using default", "flag", flag.Name, "value", raw, "error", err)
		return flag.Default
	}
	return value
}

// Static is an in-memory Client whose values are set programmatically
type Static struct {
	*store
	mu   sync.Mutex
	defs map[string]definition
}

// NewStatic creates an empty Static client; every flag evaluates to its built-in default
func NewStatic() *Static {
	return &Static{store: newStore(), defs: map[string]definition{}}
}

// Set sets the default value of a flag
func (s *Static) Set(name string, value any) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := s.defs[name]
	def.Default = value
	s.defs[name] = def
	s.store.replace(s.defs)
	return s
}

// SetFor sets the value of a flag for one context
func (s *Static) SetFor(name string, c Context, value any) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := s.defs[name]
	if def.Contexts == nil {
		def.Contexts = map[string]any{}
	}
	def.Contexts[c.String()] = value
	s.defs[name] = def
	s.store.replace(s.defs)
	return s
}
