// Package tool defines the static catalog of external tools the model may
// request during claim processing.
package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknown indicates a tool name not present in the registry. The model can
// hallucinate tool names; they must surface as a typed error, never a silent
// no-op.
var ErrUnknown = errors.New("unknown tool")

// Definition describes one callable tool. Definitions are immutable and
// loaded once at startup.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON schema for arguments
	Endpoint    string          `json:"endpoint,omitempty"`
	Path        string          `json:"path,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
	Terminal    bool            `json:"terminal,omitempty"`
}

// Registry is an immutable name-indexed tool catalog.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry builds a registry from the given definitions. Duplicate names
// are an error.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("tool definition missing name")
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", d.Name)
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Get returns the definition for name, or ErrUnknown.
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return d, nil
}

// Names returns all tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Select returns the definitions for the given names, in registration order.
// Empty names selects the whole catalog.
func (r *Registry) Select(names []string) ([]Definition, error) {
	if len(names) == 0 {
		names = r.order
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.defs[n]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknown, n)
		}
		allowed[n] = true
	}
	out := make([]Definition, 0, len(names))
	for _, n := range r.order {
		if allowed[n] {
			out = append(out, r.defs[n])
		}
	}
	return out, nil
}

// Terminal returns the name of the terminal decision tool, if the catalog
// has one.
func (r *Registry) Terminal() (string, bool) {
	for _, n := range r.order {
		if r.defs[n].Terminal {
			return n, true
		}
	}
	return "", false
}
