package errors

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// Closed means fetches to the host go through.
	Closed CircuitState = iota
	// Open means the host failed too often and fetches are refused.
	Open
	// HalfOpen means one probe fetch is allowed to test the host.
	HalfOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures per-host circuit breakers.
type BreakerConfig struct {
	// Threshold is the number of consecutive failed loads that opens the
	// circuit. Zero disables breaking.
	Threshold int `yaml:"threshold" json:"threshold"`
	// Cooldown is how long an open circuit refuses loads before a probe.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

type breaker struct {
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// HostBreakers tracks a circuit per host so that one dead origin does not
// keep eating retries across a batch.
type HostBreakers struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*breaker
	now      func() time.Time

	onStateChange func(host string, from, to CircuitState)
}

// NewHostBreakers creates the per-host breaker set.
func NewHostBreakers(config BreakerConfig) *HostBreakers {
	return &HostBreakers{
		config:   config,
		breakers: make(map[string]*breaker),
		now:      time.Now,
	}
}

// OnStateChange sets a callback for state changes.
func (h *HostBreakers) OnStateChange(fn func(host string, from, to CircuitState)) {
	h.mu.Lock()
	h.onStateChange = fn
	h.mu.Unlock()
}

// Allow reports whether a load of target on host may proceed. It returns a
// non-retryable Network error while the circuit is open.
func (h *HostBreakers) Allow(host, target string) error {
	if h.config.Threshold <= 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.get(host)
	switch b.state {
	case Open:
		if h.now().Sub(b.openedAt) < h.config.Cooldown {
			return NewCircuitOpenError(target, host)
		}
		h.transition(host, b, HalfOpen)
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return NewCircuitOpenError(target, host)
		}
		b.probing = true
	}
	return nil
}

// Record folds the outcome of a load into the host's circuit. Only
// retryable errors count as failures; a 404 says nothing about host health.
func (h *HostBreakers) Record(host string, err error) {
	if h.config.Threshold <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.get(host)
	b.probing = false

	if err == nil || !IsRetryable(err) {
		b.failures = 0
		if b.state != Closed {
			h.transition(host, b, Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= h.config.Threshold {
		b.openedAt = h.now()
		h.transition(host, b, Open)
	}
}

// State returns the circuit state for host.
func (h *HostBreakers) State(host string) CircuitState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.breakers[host]; ok {
		return b.state
	}
	return Closed
}

// Reset closes every circuit.
func (h *HostBreakers) Reset() {
	h.mu.Lock()
	h.breakers = make(map[string]*breaker)
	h.mu.Unlock()
}

func (h *HostBreakers) get(host string) *breaker {
	b, ok := h.breakers[host]
	if !ok {
		b = &breaker{}
		h.breakers[host] = b
	}
	return b
}

func (h *HostBreakers) transition(host string, b *breaker, to CircuitState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	if h.onStateChange != nil {
		h.onStateChange(host, from, to)
	}
}
