package memory_test

import (
	"testing"
	"time"

	"github.com/sennetconsortium/entity-api/adapters/clock"
	"github.com/sennetconsortium/entity-api/adapters/memory"
)

func TestCache_GetSet(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := memory.NewCache(5*time.Minute, clk)

	if _, ok := c.Get("u1:consortium"); ok {
		t.Error("Get on empty cache returned a hit")
	}

	doc := map[string]any{"uuid": "u1", "entity_type": "Sample"}
	c.Set("u1:consortium", doc)

	got, ok := c.Get("u1:consortium")
	if !ok {
		t.Fatal("Get after Set missed")
	}
	if got["uuid"] != "u1" {
		t.Errorf("Get = %v, want stored document", got)
	}
}

func TestCache_Expiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := memory.NewCache(5*time.Minute, clk)

	c.Set("u1:public", map[string]any{"uuid": "u1"})

	clk.Advance(4 * time.Minute)
	if _, ok := c.Get("u1:public"); !ok {
		t.Error("entry expired before its TTL")
	}

	clk.Advance(2 * time.Minute)
	if _, ok := c.Get("u1:public"); ok {
		t.Error("entry survived past its TTL")
	}

	// Set resets the TTL.
	c.Set("u1:public", map[string]any{"uuid": "u1"})
	clk.Advance(4 * time.Minute)
	if _, ok := c.Get("u1:public"); !ok {
		t.Error("re-set entry expired early")
	}
}

func TestCache_SetTTL(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := memory.NewCache(5*time.Minute, clk)

	c.Set("u1:public", map[string]any{"uuid": "u1"})

	// Entries already stored keep their original deadline.
	c.SetTTL(time.Hour)
	clk.Advance(6 * time.Minute)
	if _, ok := c.Get("u1:public"); ok {
		t.Error("existing entry picked up the new TTL")
	}

	c.Set("u2:public", map[string]any{"uuid": "u2"})
	clk.Advance(30 * time.Minute)
	if _, ok := c.Get("u2:public"); !ok {
		t.Error("entry stored after SetTTL expired under the old TTL")
	}
}

func TestCache_DeleteAndFlush(t *testing.T) {
	clk := clock.NewFake(time.Now())
	c := memory.NewCache(time.Minute, clk)

	c.Set("a", map[string]any{"uuid": "a"})
	c.Set("b", map[string]any{"uuid": "b"})

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key still present")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.Flush()
	if c.Len() != 0 {
		t.Errorf("Len() after Flush = %d, want 0", c.Len())
	}
}
