package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)}
	b := NewBreaker("www.hmart.com", cfg)
	b.now = clk.Now
	return b, clk
}

var errBusy = Retryable(errors.New("status 503"), 503)

func guardErr(b *Breaker, err error) error {
	_, gotErr := Guard(context.Background(), b, func(context.Context) (struct{}, error) {
		return struct{}{}, err
	})
	return gotErr
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Failures: 3, Cooldown: time.Minute})

	for range 2 {
		require.ErrorIs(t, guardErr(b, errBusy), errBusy)
	}
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 2, b.Failures())

	require.Error(t, guardErr(b, errBusy))
	assert.Equal(t, BreakerOpen, b.State())

	calls := 0
	_, err := Guard(context.Background(), b, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.ErrorIs(t, err, ErrHostOpen)
	assert.Contains(t, err.Error(), "www.hmart.com")
	assert.Zero(t, calls, "open circuit does not call out")
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Failures: 3, Cooldown: time.Minute})

	require.Error(t, guardErr(b, errBusy))
	require.Error(t, guardErr(b, errBusy))
	require.NoError(t, guardErr(b, nil))
	require.Error(t, guardErr(b, errBusy))

	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 1, b.Failures())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Failures: 2, Cooldown: time.Minute})
	notFound := errors.New("status 404")

	for range 5 {
		require.ErrorIs(t, guardErr(b, notFound), notFound)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_CustomTrips(t *testing.T) {
	blocked := errors.New("blocked (captcha)")
	b, _ := newTestBreaker(BreakerConfig{
		Failures: 1,
		Cooldown: time.Minute,
		Trips:    func(err error) bool { return errors.Is(err, blocked) },
	})

	require.Error(t, guardErr(b, errBusy))
	assert.Equal(t, BreakerClosed, b.State())
	require.Error(t, guardErr(b, blocked))
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	var transitions []string
	b, clk := newTestBreaker(BreakerConfig{
		Failures: 1,
		Cooldown: time.Minute,
		OnStateChange: func(key string, from, to BreakerState) {
			transitions = append(transitions, key+": "+from.String()+" -> "+to.String())
		},
	})

	require.Error(t, guardErr(b, errBusy))
	clk.Advance(30 * time.Second)
	require.ErrorIs(t, guardErr(b, nil), ErrHostOpen)

	clk.Advance(30 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())

	// A failed trial reopens for another full cooldown.
	require.ErrorIs(t, guardErr(b, errBusy), errBusy)
	assert.Equal(t, BreakerOpen, b.State())
	clk.Advance(59 * time.Second)
	require.ErrorIs(t, guardErr(b, nil), ErrHostOpen)

	clk.Advance(time.Second)
	require.NoError(t, guardErr(b, nil))
	assert.Equal(t, BreakerClosed, b.State())
	assert.Zero(t, b.Failures())

	assert.Equal(t, []string{
		"www.hmart.com: closed -> open",
		"www.hmart.com: open -> half-open",
		"www.hmart.com: half-open -> open",
		"www.hmart.com: open -> half-open",
		"www.hmart.com: half-open -> closed",
	}, transitions)
}

func TestBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{Failures: 1, Cooldown: time.Minute})
	require.Error(t, guardErr(b, errBusy))
	clk.Advance(time.Minute)

	started := make(chan struct{})
	finish := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		_, err := Guard(context.Background(), b, func(context.Context) (int, error) {
			close(started)
			<-finish
			return 1, nil
		})
		return err
	})

	<-started
	require.ErrorIs(t, guardErr(b, nil), ErrHostOpen, "second caller waits for the trial")
	close(finish)
	require.NoError(t, g.Wait())
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_CancelledCallIsNeutral(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{Failures: 1, Cooldown: time.Minute})
	require.Error(t, guardErr(b, errBusy))
	clk.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := Guard(ctx, b, func(ctx context.Context) (int, error) {
		cancel()
		return 0, Retryable(ctx.Err(), 0)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BreakerHalfOpen, b.State())

	require.NoError(t, guardErr(b, nil), "the trial slot was released")
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Failures: 1, Cooldown: time.Hour})
	require.Error(t, guardErr(b, errBusy))
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	require.NoError(t, guardErr(b, nil))
}

func TestHostBreakers_OnePerHost(t *testing.T) {
	hb := NewHostBreakers(BreakerConfig{Failures: 1, Cooldown: time.Hour})

	var g errgroup.Group
	got := make([]*Breaker, 16)
	for i := range got {
		g.Go(func() error {
			got[i] = hb.Get("www.stewleonards.com")
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, b := range got {
		assert.Same(t, got[0], b)
	}

	require.Error(t, guardErr(hb.Get("www.hmart.com"), errBusy))
	assert.Equal(t, map[string]BreakerState{
		"www.hmart.com":        BreakerOpen,
		"www.stewleonards.com": BreakerClosed,
	}, hb.States())
}

func TestBreakerFromSettings(t *testing.T) {
	cfg := BreakerFromSettings(3, 45)
	assert.Equal(t, 3, cfg.Failures)
	assert.Equal(t, 45*time.Second, cfg.Cooldown)

	def := BreakerFromSettings(0, -1)
	assert.Equal(t, DefaultBreakerConfig().Failures, def.Failures)
	assert.Equal(t, DefaultBreakerConfig().Cooldown, def.Cooldown)
}
