package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the position of a host's circuit.
type BreakerState int

const (
	// BreakerClosed lets fetches through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects fetches until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single trial fetch through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrHostOpen is returned without calling out when a host's circuit is open.
var ErrHostOpen = eris.New("resilience: host circuit open")

// BreakerConfig controls when a host stops being fetched.
type BreakerConfig struct {
	// Failures is the number of consecutive failed fetches that opens the
	// circuit.
	Failures int
	// Cooldown is how long an open circuit rejects before a trial fetch.
	Cooldown time.Duration
	// Trips reports whether err counts against the host. Defaults to
	// IsRetryable, so a 404 on one page never closes off a site.
	Trips func(err error) bool
	// OnStateChange runs under the breaker's lock; keep it short.
	OnStateChange func(key string, from, to BreakerState)
}

// DefaultBreakerConfig gives a flaky site a couple of minutes to recover.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Failures: 5,
		Cooldown: 2 * time.Minute,
	}
}

func (c BreakerConfig) normalized() BreakerConfig {
	if c.Failures <= 0 {
		c.Failures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 2 * time.Minute
	}
	if c.Trips == nil {
		c.Trips = IsRetryable
	}
	return c
}

// Breaker is the circuit for one host.
type Breaker struct {
	key string
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool

	now func() time.Time
}

// NewBreaker creates a closed circuit for key.
func NewBreaker(key string, cfg BreakerConfig) *Breaker {
	return &Breaker{key: key, cfg: cfg.normalized(), now: time.Now}
}

// State returns the circuit state, reporting an open circuit whose cooldown
// has passed as half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.cooled() {
		return BreakerHalfOpen
	}
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	b.moveTo(BreakerClosed)
}

func (b *Breaker) cooled() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

// allow admits a call or returns ErrHostOpen. While half-open only one trial
// call is in flight.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if !b.cooled() {
			wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
			return eris.Wrapf(ErrHostOpen, "%s: retry in %s", b.key, wait.Round(time.Second))
		}
		b.moveTo(BreakerHalfOpen)
		b.trial = true
	case BreakerHalfOpen:
		if b.trial {
			return eris.Wrapf(ErrHostOpen, "%s: trial fetch in flight", b.key)
		}
		b.trial = true
	}
	return nil
}

// release ends a call that told us nothing about the host.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false

	if err == nil || !b.cfg.Trips(err) {
		b.failures = 0
		b.moveTo(BreakerClosed)
		return
	}

	b.failures++
	switch {
	case b.state == BreakerHalfOpen,
		b.state == BreakerClosed && b.failures >= b.cfg.Failures:
		b.openedAt = b.now()
		b.moveTo(BreakerOpen)
	}
}

func (b *Breaker) moveTo(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.key, from, to)
	}
}

// Guard runs fn through b. A call cut short by ctx does not count either way.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}

	v, err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release()
		return zero, err
	}
	b.record(err)
	return v, err
}

// HostBreakers keeps one Breaker per host.
type HostBreakers struct {
	cfg BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewHostBreakers creates an empty registry whose breakers share cfg.
func NewHostBreakers(cfg BreakerConfig) *HostBreakers {
	return &HostBreakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for host, creating it closed.
func (h *HostBreakers) Get(host string) *Breaker {
	h.mu.RLock()
	b, ok := h.breakers[host]
	h.mu.RUnlock()
	if ok {
		return b
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok = h.breakers[host]; ok {
		return b
	}
	b = NewBreaker(host, h.cfg)
	h.breakers[host] = b
	return b
}

// States snapshots every known host's state.
func (h *HostBreakers) States() map[string]BreakerState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]BreakerState, len(h.breakers))
	for host, b := range h.breakers {
		out[host] = b.State()
	}
	return out
}
