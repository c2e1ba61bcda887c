package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStartJanitor_Validation(t *testing.T) {
	logger := zerolog.Nop()

	if _, err := StartJanitor(nil, "@every 1m", logger); err == nil {
		t.Error("expected error for nil store")
	}

	store, err := NewStore(time.Minute)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, err := StartJanitor(store, "not a schedule", logger); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestStartJanitor_Purges(t *testing.T) {
	clock := newFakeClock()
	store, err := NewStore(time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	store.Put(testKey("/v1/stale"), json.RawMessage(`{}`))
	clock.Advance(2 * time.Minute)

	janitor, err := StartJanitor(store, "@every 1s", zerolog.Nop())
	if err != nil {
		t.Fatalf("StartJanitor failed: %v", err)
	}
	defer janitor.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if store.Len() == 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Errorf("janitor did not purge the expired entry, Len() = %d", store.Len())
}
