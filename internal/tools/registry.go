// Package tools is the closed catalogue of operations the model may invoke.
// Each tool declares a name, an input schema and an Execute contract; the
// state machine resolves calls through the Registry.
package tools

import (
	"context"
	"fmt"
	"sort"
)

type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON-schema object describing the accepted arguments.
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Cacheable is an optional marker for tools whose results may be reused for
// identical arguments within one chain (deterministic reads).
type Cacheable interface {
	Cacheable() bool
}

type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister panics on duplicate names; registration happens once at
// startup with a fixed catalogue.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in name order.
func (r *Registry) List() []Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}
