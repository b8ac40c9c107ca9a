package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/grocery-etl/internal/resilience"
)

const (
	defaultUserAgent    = "Mozilla/5.0 (compatible; grocery-etl/1.0)"
	defaultMaxBodyBytes = 10 << 20
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond is the steady request rate allowed per host.
	RequestsPerSecond float64
	MaxBodyBytes      int64
	// Backoff overrides the retry schedule derived from MaxRetries.
	Backoff *resilience.Backoff
	// Breaker configures the per-host circuit. Nil uses the defaults.
	Breaker *resilience.BreakerConfig
}

// BlockedError is a non-2xx response that looks like an anti-bot wall.
type BlockedError struct {
	Block      BlockType
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked (%s): status %d", e.Block, e.StatusCode)
}

// tripsHost reports whether err suggests the whole site is unhappy with us,
// not just one page.
func tripsHost(err error) bool {
	var be *BlockedError
	return errors.As(err, &be) || resilience.IsRetryable(err)
}

// hostLimiter paces requests to one host. A 429 halves its rate; successes
// recover it gradually, never above the configured rate.
type hostLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	base    rate.Limit
	floor   rate.Limit
	current rate.Limit
}

func newHostLimiter(rps float64) *hostLimiter {
	base := rate.Limit(rps)
	return &hostLimiter{
		limiter: rate.NewLimiter(base, 1),
		base:    base,
		floor:   base / 8,
		current: base,
	}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

func (h *hostLimiter) succeeded() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current >= h.base {
		return
	}
	h.current = min(h.current*1.25, h.base)
	h.limiter.SetLimit(h.current)
}

func (h *hostLimiter) throttled() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = max(h.current/2, h.floor)
	h.limiter.SetLimit(h.current)
}

func (h *hostLimiter) limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	backoff  resilience.Backoff
	breakers *resilience.HostBreakers

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	backoff := resilience.WithRetries(opts.MaxRetries)
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}

	bc := resilience.DefaultBreakerConfig()
	if opts.Breaker != nil {
		bc = *opts.Breaker
	}
	if bc.Trips == nil {
		bc.Trips = tripsHost
	}
	if bc.OnStateChange == nil {
		bc.OnStateChange = logBreaker
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		backoff:  backoff,
		breakers: resilience.NewHostBreakers(bc),
		limiters: make(map[string]*hostLimiter),
	}
}

func logBreaker(host string, from, to resilience.BreakerState) {
	log := zap.L().With(zap.String("host", host), zap.Stringer("from", from), zap.Stringer("to", to))
	if to == resilience.BreakerOpen {
		log.Warn("host circuit opened, skipping its pages until cooldown")
		return
	}
	log.Info("host circuit changed")
}

// HostStates snapshots the circuit state of every host fetched so far.
func (f *HTTPFetcher) HostStates() map[string]resilience.BreakerState {
	return f.breakers.States()
}

func (f *HTTPFetcher) limiterFor(host string) *hostLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = newHostLimiter(f.opts.RequestsPerSecond)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch GETs rawURL, retrying transient failures, and returns the body
// decoded to UTF-8. Pages that look like bot challenges are returned with
// Block set. After repeated failed fetches a host's circuit opens and
// further fetches fail with resilience.ErrHostOpen until it cools down.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("fetcher: unsupported url %q", rawURL)
	}

	b := f.backoff
	b.OnRetry = resilience.LogRetries(u.Host, rawURL)
	page, err := resilience.Guard(ctx, f.breakers.Get(u.Host), func(ctx context.Context) (*Page, error) {
		return resilience.Retry(ctx, b, func(ctx context.Context) (*Page, error) {
			return f.fetchOnce(ctx, u)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}

	if page.Blocked() {
		zap.L().Warn("fetched page looks blocked",
			zap.String("url", page.URL),
			zap.String("block", string(page.Block)),
		)
	}
	return page, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL) (*Page, error) {
	lim := f.limiterFor(u.Host)
	if err := lim.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if resilience.IsRetryable(err) {
			return nil, resilience.Retryable(err, 0)
		}
		return nil, eris.Wrap(err, "request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, resilience.Retryable(eris.Wrap(err, "read body"), resp.StatusCode)
	}

	block := DetectBlock(resp.StatusCode, resp.Header, raw)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		lim.throttled()
		zap.L().Warn("rate limited, slowing host",
			zap.String("host", u.Host),
			zap.Float64("rate", float64(lim.limit())),
		)
		return nil, resilience.Retryable(eris.Errorf("status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if block != BlockNone {
			return nil, &BlockedError{Block: block, StatusCode: resp.StatusCode}
		}
		err := eris.Errorf("status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Retryable(err, resp.StatusCode)
		}
		return nil, err
	}
	lim.succeeded()

	body, cs, err := toUTF8(charsetOf(resp.Header.Get("Content-Type"), raw), raw)
	if err != nil {
		return nil, err
	}
	return &Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
		Charset:    cs,
		Block:      block,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
