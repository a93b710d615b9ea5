package clock_test

import (
	"testing"
	"time"

	"github.com/sennetconsortium/entity-api/adapters/clock"
)

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Real.Now() = %v, outside [%v, %v]", got, before, after)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := clock.NewFake(start)

	if !f.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", f.Now(), start)
	}

	f.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !f.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", f.Now(), want)
	}

	reset := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f.Set(reset)
	if !f.Now().Equal(reset) {
		t.Errorf("Now() after Set = %v, want %v", f.Now(), reset)
	}
}
