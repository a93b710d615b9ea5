package trigger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sennetconsortium/entity-api/core/schema"
	"github.com/sennetconsortium/entity-api/core/trigger"
)

func constant(value any) trigger.Func {
	return func(_ context.Context, _ *trigger.Context, prop string, _, _ map[string]any) (string, any, error) {
		return prop, value, nil
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := trigger.NewRegistry()

	if err := reg.Register("set_uuid", constant("u")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register("set_uuid", constant("u")); err == nil {
		t.Error("duplicate Register() expected error")
	}
	if err := reg.Register("", constant("u")); err == nil {
		t.Error("empty name expected error")
	}
	if err := reg.Register("nil_fn", nil); err == nil {
		t.Error("nil func expected error")
	}

	if _, ok := reg.Get("set_uuid"); !ok {
		t.Error("Get(set_uuid) = false, want true")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}
}

func TestRegistry_Check(t *testing.T) {
	s, err := schema.Parse([]byte(`
entities:
  Source:
    properties:
      uuid:
        type: string
        before_create_trigger: set_uuid
      label:
        type: string
        on_read_trigger: get_label
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	reg := trigger.NewRegistry()
	reg.Register("set_uuid", constant("u"))

	if err := reg.Check(s); err == nil {
		t.Fatal("Check() expected error for unregistered get_label")
	}

	reg.Register("get_label", constant("l"))
	if err := reg.Check(s); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func runDef() schema.TypeDef {
	return schema.TypeDef{Properties: schema.FromPairs(
		schema.Pair{Name: "uuid", Property: schema.Property{
			Type:                schema.TypeString,
			BeforeCreateTrigger: "set_uuid",
		}},
		schema.Pair{Name: "status", Property: schema.Property{
			Type:                schema.TypeString,
			BeforeCreateTrigger: "set_status_new",
			BeforeUpdateTrigger: "update_status",
		}},
		schema.Pair{Name: "summary", Property: schema.Property{
			Type:                schema.TypeString,
			BeforeCreateTrigger: "summarize",
		}},
		schema.Pair{Name: "touched", Property: schema.Property{
			Type:                schema.TypeInteger,
			AutoUpdate:          true,
			BeforeUpdateTrigger: "touch",
		}},
	)}
}

func TestRun_OrderAndView(t *testing.T) {
	reg := trigger.NewRegistry()
	reg.Register("set_uuid", constant("abc"))
	reg.Register("set_status_new", constant("New"))
	// summarize sees the values earlier triggers derived in this run.
	reg.Register("summarize", func(_ context.Context, _ *trigger.Context, prop string, _, incoming map[string]any) (string, any, error) {
		return prop, incoming["uuid"].(string) + "/" + incoming["status"].(string), nil
	})
	reg.Register("update_status", constant("QA"))
	reg.Register("touch", constant(int64(7)))

	patch, err := trigger.Run(context.Background(), &trigger.Context{}, reg, trigger.PhaseBeforeCreate, runDef(), nil, map[string]any{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if patch["summary"] != "abc/New" {
		t.Errorf("summary = %v, want abc/New", patch["summary"])
	}
}

func TestRun_BeforeUpdateOnlyPresent(t *testing.T) {
	reg := trigger.NewRegistry()
	reg.Register("set_uuid", constant("abc"))
	reg.Register("set_status_new", constant("New"))
	reg.Register("summarize", constant("s"))
	reg.Register("update_status", func(_ context.Context, _ *trigger.Context, prop string, _, incoming map[string]any) (string, any, error) {
		return prop, "Published", nil
	})
	reg.Register("touch", constant(int64(99)))

	// status absent from the request: its update trigger must not run, but
	// the auto_update property still does.
	patch, err := trigger.Run(context.Background(), &trigger.Context{}, reg, trigger.PhaseBeforeUpdate, runDef(),
		map[string]any{"uuid": "abc", "status": "New"},
		map[string]any{"summary": "edited"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := patch["status"]; ok {
		t.Errorf("status trigger ran without the property in the request, patch = %v", patch)
	}
	if patch["touched"] != int64(99) {
		t.Errorf("touched = %v, want 99 (auto_update)", patch["touched"])
	}
}

func TestRun_Skip(t *testing.T) {
	reg := trigger.NewRegistry()
	reg.Register("set_uuid", constant("abc"))
	reg.Register("set_status_new", constant("New"))
	reg.Register("summarize", constant("s"))
	reg.Register("update_status", constant("x"))
	reg.Register("touch", constant(int64(1)))

	patch, err := trigger.Run(context.Background(), &trigger.Context{}, reg, trigger.PhaseBeforeCreate, runDef(), nil, map[string]any{}, "summary")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := patch["summary"]; ok {
		t.Errorf("skipped property was triggered, patch = %v", patch)
	}
	if patch["uuid"] != "abc" {
		t.Errorf("uuid = %v, want abc", patch["uuid"])
	}
}

func TestRun_Retarget(t *testing.T) {
	def := schema.TypeDef{Properties: schema.FromPairs(
		schema.Pair{Name: "draft_id", Property: schema.Property{
			Type:                schema.TypeString,
			BeforeCreateTrigger: "promote",
		}},
	)}

	reg := trigger.NewRegistry()
	reg.Register("promote", func(_ context.Context, _ *trigger.Context, _ string, _, incoming map[string]any) (string, any, error) {
		return "final_id", incoming["draft_id"], nil
	})

	patch, err := trigger.Run(context.Background(), &trigger.Context{}, reg, trigger.PhaseBeforeCreate, def, nil, map[string]any{"draft_id": "d1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if patch["final_id"] != "d1" {
		t.Errorf("final_id = %v, want d1", patch["final_id"])
	}
	if v, ok := patch["draft_id"]; !ok || v != nil {
		t.Errorf("draft_id = %v (present=%v), want explicit nil blanking", v, ok)
	}
}

func TestRun_ErrorAborts(t *testing.T) {
	reg := trigger.NewRegistry()
	boom := errors.New("boom")
	reg.Register("set_uuid", func(_ context.Context, _ *trigger.Context, _ string, _, _ map[string]any) (string, any, error) {
		return "", nil, boom
	})
	reg.Register("set_status_new", constant("New"))
	reg.Register("summarize", constant("s"))
	reg.Register("update_status", constant("x"))
	reg.Register("touch", constant(int64(1)))

	_, err := trigger.Run(context.Background(), &trigger.Context{}, reg, trigger.PhaseBeforeCreate, runDef(), nil, map[string]any{"uuid": "u1"})
	if err == nil {
		t.Fatal("Run() expected error")
	}
	var execErr *trigger.ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecError", err)
	}
	if execErr.Trigger != "set_uuid" || execErr.UUID != "u1" {
		t.Errorf("ExecError = %+v, want trigger set_uuid uuid u1", execErr)
	}
	if !errors.Is(err, boom) {
		t.Error("ExecError should unwrap to the trigger error")
	}
}

func TestRun_AfterPhaseNoPatch(t *testing.T) {
	def := schema.TypeDef{Properties: schema.FromPairs(
		schema.Pair{Name: "ancestor_uuids", Property: schema.Property{
			Type:               schema.TypeList,
			AfterCreateTrigger: "link_ancestors",
		}},
	)}

	linked := false
	reg := trigger.NewRegistry()
	reg.Register("link_ancestors", func(_ context.Context, _ *trigger.Context, prop string, _, _ map[string]any) (string, any, error) {
		linked = true
		return prop, []string{"a"}, nil
	})

	patch, err := trigger.Run(context.Background(), &trigger.Context{}, reg, trigger.PhaseAfterCreate, def, nil,
		map[string]any{"ancestor_uuids": []any{"a"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !linked {
		t.Error("after-create trigger did not run")
	}
	if len(patch) != 0 {
		t.Errorf("after phase patch = %v, want empty", patch)
	}

	// Property absent from the saved record: trigger stays silent.
	linked = false
	if _, err := trigger.Run(context.Background(), &trigger.Context{}, reg, trigger.PhaseAfterCreate, def, nil, map[string]any{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if linked {
		t.Error("after-create trigger ran for absent property")
	}
}
