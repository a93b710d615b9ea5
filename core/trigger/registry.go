// Package trigger provides the typed trigger registry and phased dispatch.
// A trigger is a named pure function deriving one property value at write or
// read time. The registry is populated at startup and checked against the
// schema so a missing trigger fails boot instead of a request.
package trigger

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sennetconsortium/entity-api/core/schema"
	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/ports"
)

// Phase identifies when a trigger runs. Values match the schema attribute
// names binding triggers to properties.
type Phase string

const (
	PhaseBeforeCreate Phase = "before_create_trigger"
	PhaseBeforeUpdate Phase = "before_update_trigger"
	PhaseAfterCreate  Phase = "after_create_trigger"
	PhaseAfterUpdate  Phase = "after_update_trigger"
	PhaseOnRead       Phase = "on_read_trigger"
)

// Context carries the dependencies a trigger may use. Triggers must be
// idempotent: the same record and context yield the same output, so time
// comes from the injected clock and identifiers from the ID service.
type Context struct {
	User       *auth.User
	EntityType string
	Store      ports.EntityStore
	IDs        ports.IDService
	Clock      ports.Clock
	Logger     zerolog.Logger
}

// Func computes a derived value for one property. It returns the target
// property key (usually prop itself) and the value. Returning a different
// key re-targets the output and blanks the source property. A nil value from
// an on-read trigger means the property is omitted.
type Func func(ctx context.Context, tc *Context, prop string, existing, incoming map[string]any) (string, any, error)

// ExecError reports a failed trigger invocation, distinct from validation
// failures. Handlers map it to HTTP 500.
type ExecError struct {
	Trigger  string
	Property string
	UUID     string
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("trigger %s failed for property %q (uuid %s): %v", e.Trigger, e.Property, e.UUID, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Registry maps trigger names to function values.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a named trigger. Duplicate names are a wiring bug.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("trigger name is empty")
	}
	if fn == nil {
		return fmt.Errorf("trigger %q: nil function", name)
	}
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("trigger %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Get returns the named trigger.
func (r *Registry) Get(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns all registered trigger names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check verifies every trigger the schema binds has a registered function.
// Called once at startup after registration.
func (r *Registry) Check(s *schema.Schema) error {
	var missing []string
	for phase, names := range s.TriggerNames() {
		for _, name := range names {
			if _, ok := r.funcs[name]; !ok {
				missing = append(missing, fmt.Sprintf("%s (%s)", name, phase))
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("schema binds unregistered triggers: %v", missing)
	}
	return nil
}
