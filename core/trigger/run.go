package trigger

import (
	"context"

	"github.com/sennetconsortium/entity-api/core/schema"
)

// binding returns the trigger name bound to the property for the phase.
func binding(prop schema.Property, phase Phase) string {
	switch phase {
	case PhaseBeforeCreate:
		return prop.BeforeCreateTrigger
	case PhaseBeforeUpdate:
		return prop.BeforeUpdateTrigger
	case PhaseAfterCreate:
		return prop.AfterCreateTrigger
	case PhaseAfterUpdate:
		return prop.AfterUpdateTrigger
	case PhaseOnRead:
		return prop.OnReadTrigger
	}
	return ""
}

// Run executes the phase's triggers for the type in schema declaration
// order and returns the derived property patch.
//
// existing is the stored record (empty on create); incoming is the request
// body merged with any earlier derived data. Later triggers observe values
// produced by earlier ones. Properties named in skip are not triggered;
// renderers use this to break recursion when expanding nested entities.
//
// Semantics per phase:
//   - BeforeCreate and OnRead run for every bound property.
//   - BeforeUpdate runs only for properties present in incoming, plus those
//     marked auto_update.
//   - AfterCreate and AfterUpdate run only when the property is present in
//     the saved record (incoming here is the persisted document) and yield
//     no patch; they build graph linkages as a side effect.
//
// Any trigger error aborts the whole run with an *ExecError: derived data is
// all-or-nothing.
func Run(ctx context.Context, tc *Context, reg *Registry, phase Phase, def schema.TypeDef, existing, incoming map[string]any, skip ...string) (map[string]any, error) {
	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	// Working view lets trigger N read what trigger N-1 derived.
	view := make(map[string]any, len(incoming))
	for k, v := range incoming {
		view[k] = v
	}

	after := phase == PhaseAfterCreate || phase == PhaseAfterUpdate

	patch := make(map[string]any)
	for _, name := range def.Properties.Names() {
		prop, _ := def.Properties.Get(name)
		triggerName := binding(prop, phase)
		if triggerName == "" || skipped[name] {
			continue
		}

		if phase == PhaseBeforeUpdate {
			if _, present := incoming[name]; !present && !prop.AutoUpdate {
				continue
			}
		}
		if after {
			if _, present := incoming[name]; !present {
				continue
			}
		}

		fn, ok := reg.Get(triggerName)
		if !ok {
			// Registry.Check makes this unreachable in a wired service.
			return nil, &ExecError{Trigger: triggerName, Property: name, UUID: uuidOf(existing, incoming), Err: errUnregistered}
		}

		target, value, err := fn(ctx, tc, name, existing, view)
		if err != nil {
			return nil, &ExecError{Trigger: triggerName, Property: name, UUID: uuidOf(existing, incoming), Err: err}
		}
		if after {
			continue
		}

		if value != nil {
			patch[target] = value
			view[target] = value
		}
		// Re-targeted output blanks the source property so it is not
		// persisted or rendered under its original name.
		if target != name {
			patch[name] = nil
			delete(view, name)
		}
	}
	return patch, nil
}

var errUnregistered = errString("trigger not registered")

type errString string

func (e errString) Error() string { return string(e) }

func uuidOf(existing, incoming map[string]any) string {
	if v, ok := existing["uuid"].(string); ok && v != "" {
		return v
	}
	if v, ok := incoming["uuid"].(string); ok {
		return v
	}
	return ""
}
