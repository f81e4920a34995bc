package errors

import (
	"testing"
	"time"
)

// =============================================================================
// HostBreakers Tests
// =============================================================================

func newTestBreakers(threshold int) (*HostBreakers, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHostBreakers(BreakerConfig{Threshold: threshold, Cooldown: time.Minute})
	h.now = func() time.Time { return now }
	return h, &now
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		Closed:           "closed",
		Open:             "open",
		HalfOpen:         "half-open",
		CircuitState(99): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestHostBreakers_OpensAfterThreshold(t *testing.T) {
	h, _ := newTestBreakers(2)
	fail := NewNetworkError("https://a.example/", "request", nil)

	h.Record("a.example", fail)
	if err := h.Allow("a.example", "https://a.example/"); err != nil {
		t.Fatalf("one failure should not open the circuit: %v", err)
	}
	h.Record("a.example", fail)

	err := h.Allow("a.example", "https://a.example/x")
	if err == nil {
		t.Fatal("circuit should be open")
	}
	if GetErrorType(err) != Network || IsRetryable(err) {
		t.Errorf("open circuit error = %v, want non-retryable network error", err)
	}
	if h.State("a.example") != Open {
		t.Errorf("State = %v, want open", h.State("a.example"))
	}

	// Other hosts are unaffected.
	if err := h.Allow("b.example", "https://b.example/"); err != nil {
		t.Errorf("b.example should be allowed: %v", err)
	}
}

func TestHostBreakers_NonRetryableDoesNotCount(t *testing.T) {
	h, _ := newTestBreakers(1)

	h.Record("a.example", NewFetchError("https://a.example/", 404))

	if h.State("a.example") != Closed {
		t.Errorf("a 404 should not open the circuit")
	}
}

func TestHostBreakers_HalfOpenProbe(t *testing.T) {
	h, now := newTestBreakers(1)
	h.Record("a.example", NewFetchError("https://a.example/", 503))

	*now = now.Add(2 * time.Minute)

	if err := h.Allow("a.example", "https://a.example/"); err != nil {
		t.Fatalf("probe after cooldown should be allowed: %v", err)
	}
	if err := h.Allow("a.example", "https://a.example/"); err == nil {
		t.Error("only one probe should run at a time")
	}

	h.Record("a.example", nil)
	if h.State("a.example") != Closed {
		t.Errorf("State = %v, want closed after a good probe", h.State("a.example"))
	}
}

func TestHostBreakers_FailedProbeReopens(t *testing.T) {
	h, now := newTestBreakers(3)
	fail := NewTimeoutError("https://a.example/", "request", nil)
	for i := 0; i < 3; i++ {
		h.Record("a.example", fail)
	}

	*now = now.Add(2 * time.Minute)
	h.Allow("a.example", "https://a.example/")
	h.Record("a.example", fail)

	if h.State("a.example") != Open {
		t.Errorf("State = %v, want open after a failed probe", h.State("a.example"))
	}
}

func TestHostBreakers_StateChangeCallback(t *testing.T) {
	h, _ := newTestBreakers(1)
	var changes []string
	h.OnStateChange(func(host string, from, to CircuitState) {
		changes = append(changes, host+":"+from.String()+">"+to.String())
	})

	h.Record("a.example", NewNetworkError("", "request", nil))
	h.Reset()

	if len(changes) != 1 || changes[0] != "a.example:closed>open" {
		t.Errorf("changes = %v", changes)
	}
	if h.State("a.example") != Closed {
		t.Error("Reset should close every circuit")
	}
}

func TestHostBreakers_Disabled(t *testing.T) {
	h, _ := newTestBreakers(0)
	for i := 0; i < 10; i++ {
		h.Record("a.example", NewNetworkError("", "request", nil))
	}
	if err := h.Allow("a.example", "https://a.example/"); err != nil {
		t.Errorf("zero threshold should disable breaking: %v", err)
	}
}
