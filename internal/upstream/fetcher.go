package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/botrelay/internal/metrics"
	"github.com/JakeFAU/botrelay/internal/relay"
)

// Defaults applied when FetcherConfig leaves a field at its zero value.
const (
	DefaultMaxRetries    = 3
	DefaultRetryAfter    = 10 * time.Second
	DefaultMaxRetryAfter = 60 * time.Second
)

// retryAfterCeiling bounds any parsed Retry-After before it becomes a Duration.
const retryAfterCeiling = 24 * time.Hour

// FetcherConfig bounds the retry loop and optional client-side pacing.
type FetcherConfig struct {
	// MaxRetries is the total number of attempts, including the first.
	MaxRetries int
	// DefaultRetryAfter is used when a 429 carries no usable Retry-After.
	DefaultRetryAfter time.Duration
	// MaxRetryAfter caps the wait honored for a single 429.
	MaxRetryAfter time.Duration
	// RequestsPerSecond paces attempts before they leave the process;
	// zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Fetcher performs GETs against the upstream, absorbing 429 responses.
type Fetcher struct {
	transport Transport
	cfg       FetcherConfig
	limiter   *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(transport Transport, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = DefaultRetryAfter
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Fetcher{
		transport: transport,
		cfg:       cfg,
		limiter:   limiter,
		sleep:     sleepContext,
		now:       time.Now,
		logger:    logger,
	}
}

// Fetch GETs rawURL with the configured attempt budget and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, headers http.Header) ([]byte, error) {
	return f.FetchWithRetries(ctx, rawURL, headers, f.cfg.MaxRetries)
}

// FetchWithRetries GETs rawURL, making at most maxRetries attempts. Only 429
// responses are retried, after waiting for the advertised Retry-After. Values
// of maxRetries below one mean a single attempt.
func (f *Fetcher) FetchWithRetries(
	ctx context.Context,
	rawURL string,
	headers http.Header,
	maxRetries int,
) ([]byte, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	resource := metrics.Resource(rawURL)
	logger := f.logger.With(zap.String("resource", resource))

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := f.pace(ctx); err != nil {
			return nil, relay.UpstreamError(0, "upstream request not sent", err)
		}

		resp, err := f.transport.Get(ctx, Request{URL: rawURL, Headers: headers})
		if err != nil {
			metrics.ObserveUpstreamAttempt(resource, metrics.OutcomeTransport)
			return nil, relay.UpstreamError(0, "upstream request failed", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.ObserveUpstreamAttempt(resource, metrics.OutcomeOK)
			return resp.Body, nil
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			metrics.ObserveUpstreamAttempt(resource, metrics.OutcomeFailed)
			return nil, relay.UpstreamError(
				resp.StatusCode,
				fmt.Sprintf("upstream returned status %d", resp.StatusCode),
				nil,
			)
		}

		metrics.ObserveUpstreamAttempt(resource, metrics.OutcomeThrottled)
		if attempt == maxRetries {
			break
		}
		wait := min(RetryAfter(resp.Header, f.cfg.DefaultRetryAfter, f.now()), f.cfg.MaxRetryAfter)
		logger.Warn("upstream rate limited, waiting before retry",
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
		)
		metrics.ObserveThrottleWait(resource, wait)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, relay.UpstreamError(http.StatusTooManyRequests, "retry wait interrupted", err)
		}
	}

	logger.Warn("upstream retry budget exhausted", zap.Int("attempts", maxRetries))
	return nil, relay.RetryExhaustedError(maxRetries)
}

func (f *Fetcher) pace(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// RetryAfter interprets a Retry-After header as delta-seconds or an HTTP date.
// Missing, negative or unparseable values yield fallback; values beyond a day
// are clamped to a day.
func RetryAfter(header http.Header, fallback time.Duration, now time.Time) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return fallback
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	switch {
	case err == nil:
		if secs < 0 {
			return fallback
		}
		if secs > int64(retryAfterCeiling/time.Second) {
			return retryAfterCeiling
		}
		return time.Duration(secs) * time.Second
	case errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(value, "-"):
		return retryAfterCeiling
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, retryAfterCeiling)
		}
		return 0
	}
	return fallback
}

// sleepContext parks the calling goroutine for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
