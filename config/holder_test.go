package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sennetconsortium/entity-api/config"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestHolder_GetAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity-api.yaml")
	writeConfig(t, path, minimalConfig+"\nlogging:\n  level: info\n")

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder() error = %v", err)
	}
	defer h.Stop()

	if h.Get().Logging.Level != "info" {
		t.Errorf("Level = %s, want info", h.Get().Logging.Level)
	}

	var notified *config.Config
	h.OnChange(func(cfg *config.Config) { notified = cfg })

	writeConfig(t, path, minimalConfig+"\nlogging:\n  level: debug\n")
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if h.Get().Logging.Level != "debug" {
		t.Errorf("Level after reload = %s, want debug", h.Get().Logging.Level)
	}
	if notified == nil || notified.Logging.Level != "debug" {
		t.Error("OnChange listener did not receive the new config")
	}
}

func TestHolder_ReloadKeepsOldOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity-api.yaml")
	writeConfig(t, path, minimalConfig)

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder() error = %v", err)
	}
	defer h.Stop()

	writeConfig(t, path, "logging:\n  level: nonsense\n")
	if err := h.Reload(); err == nil {
		t.Fatal("Reload() with invalid config expected error")
	}

	if h.Get().Neo4j.URI != "bolt://localhost:7687" {
		t.Errorf("config after failed reload = %+v, want the previous one kept", h.Get().Neo4j)
	}
}

func TestReloadableFields(t *testing.T) {
	reloadable := config.ReloadableFields()
	if len(reloadable) == 0 {
		t.Fatal("ReloadableFields() is empty")
	}
	fixed := config.NonReloadableFields()
	seen := make(map[string]bool)
	for _, f := range reloadable {
		seen[f] = true
	}
	for _, f := range fixed {
		if seen[f] {
			t.Errorf("field %s is both reloadable and non-reloadable", f)
		}
	}
}
