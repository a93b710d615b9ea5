// Package render builds response documents from raw graph records in two
// steps: Complete runs the on-read triggers to produce the full derived
// document, and Project filters it down to what the schema and the caller's
// access level permit. Rendering is all-or-nothing: a failing trigger aborts
// the document.
package render

import (
	"context"
	"fmt"

	"github.com/sennetconsortium/entity-api/core/schema"
	"github.com/sennetconsortium/entity-api/core/trigger"
	"github.com/sennetconsortium/entity-api/domain/entity"
)

// Renderer projects raw entity records into response documents.
type Renderer struct {
	schema   *schema.Schema
	registry *trigger.Registry
}

// New creates a renderer over the schema and trigger registry.
func New(s *schema.Schema, reg *trigger.Registry) *Renderer {
	return &Renderer{schema: s, registry: reg}
}

// Complete runs the on-read triggers for the record's type and returns the
// raw record merged with all derived values. The result is cacheable: it is
// caller-independent apart from the trigger context's store access.
//
// Properties named in skip have their triggers suppressed; nested renders
// use this to break recursion (a dataset's collections don't render the
// dataset back).
func (r *Renderer) Complete(ctx context.Context, tc *trigger.Context, record map[string]any, skip ...string) (map[string]any, error) {
	def, _, err := r.typeOf(record)
	if err != nil {
		return nil, err
	}

	patch, err := trigger.Run(ctx, tc, r.registry, trigger.PhaseOnRead, def, record, map[string]any{}, skip...)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(record)+len(patch))
	for k, v := range record {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged, nil
}

// Project filters a completed document down to the schema-readable
// properties for the access level: transient and unexposed properties are
// always dropped, non-public properties are dropped for public callers, and
// nil values are omitted. Deterministic: same input, same output.
func (r *Renderer) Project(doc map[string]any, level entity.AccessLevel, skip ...string) (map[string]any, error) {
	def, _, err := r.typeOf(doc)
	if err != nil {
		return nil, err
	}

	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	out := make(map[string]any, def.Properties.Len())
	for _, name := range def.Properties.Names() {
		if skipped[name] {
			continue
		}
		prop, _ := def.Properties.Get(name)
		if prop.Transient || !prop.IsExposed() {
			continue
		}
		if level == entity.AccessLevelPublic && !prop.Public {
			continue
		}
		value, ok := doc[name]
		if !ok || value == nil {
			continue
		}
		out[name] = value
	}
	return out, nil
}

// Entity renders one raw record end to end: Complete then Project.
func (r *Renderer) Entity(ctx context.Context, tc *trigger.Context, record map[string]any, level entity.AccessLevel, skip ...string) (map[string]any, error) {
	doc, err := r.Complete(ctx, tc, record, skip...)
	if err != nil {
		return nil, err
	}
	return r.Project(doc, level, skip...)
}

// Entities renders a list of raw records with a shared skip set.
func (r *Renderer) Entities(ctx context.Context, tc *trigger.Context, records []map[string]any, level entity.AccessLevel, skip ...string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		doc, err := r.Entity(ctx, tc, record, level, skip...)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *Renderer) typeOf(record map[string]any) (schema.TypeDef, string, error) {
	entityType, _ := record["entity_type"].(string)
	if entityType == "" {
		return schema.TypeDef{}, "", fmt.Errorf("record has no entity_type")
	}
	def, err := r.schema.TypeDef(entityType)
	if err != nil {
		return schema.TypeDef{}, "", err
	}
	return def, entityType, nil
}
