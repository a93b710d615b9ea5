package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sennetconsortium/entity-api/adapters/metrics"
)

func TestNewWithRegistry(t *testing.T) {
	// Use a new registry to avoid conflicts with other tests
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.RequestsInFlight == nil {
		t.Error("RequestsInFlight is nil")
	}
	if m.AuthFailures == nil {
		t.Error("AuthFailures is nil")
	}
	if m.EntityWrites == nil {
		t.Error("EntityWrites is nil")
	}
	if m.ValidationFailures == nil {
		t.Error("ValidationFailures is nil")
	}
	if m.TriggerFailures == nil {
		t.Error("TriggerFailures is nil")
	}
	if m.QueryDuration == nil {
		t.Error("QueryDuration is nil")
	}
	if m.CacheHits == nil || m.CacheMisses == nil {
		t.Error("cache counters are nil")
	}
	if m.SchemaReloads == nil || m.SchemaReloadErrors == nil || m.SchemaLastReload == nil {
		t.Error("schema reload metrics are nil")
	}
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.RequestsTotal.WithLabelValues("GET", "/entities/{id}", "200").Inc()
	m.EntityWrites.WithLabelValues("Dataset", "create").Add(3)
	m.ValidationFailures.WithLabelValues("Sample").Inc()
	m.ObserveQuery("get_entity_by_uuid", 25*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}

	want := map[string]bool{
		"entity_api_requests_total":               false,
		"entity_api_entity_writes_total":          false,
		"entity_api_validation_failures_total":    false,
		"entity_api_graph_query_duration_seconds": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not gathered", name)
		}
	}
}
