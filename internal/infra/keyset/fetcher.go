package keyset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"receiptd/internal/domain"
	"receiptd/internal/usecase"
)

var _ usecase.KeySetFetcher = (*HTTPFetcher)(nil)

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultFetchAttempts = 3
	defaultRetryBase     = 200 * time.Millisecond
	defaultRetryMax      = 2 * time.Second
	defaultMaxBodyBytes  = 1 << 20
)

type FetcherConfig struct {
	Client       *http.Client
	Timeout      time.Duration
	Attempts     int
	RetryBase    time.Duration
	RetryMax     time.Duration
	MaxBodyBytes int64
}

// HTTPFetcher downloads JWKS documents. Transport failures and 5xx/429
// responses are retried with capped exponential backoff; other failures are
// returned immediately.
type HTTPFetcher struct {
	client       *http.Client
	timeout      time.Duration
	attempts     int
	retryBase    time.Duration
	retryMax     time.Duration
	maxBodyBytes int64
}

func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultFetchAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &HTTPFetcher{
		client:       cfg.Client,
		timeout:      cfg.Timeout,
		attempts:     cfg.Attempts,
		retryBase:    cfg.RetryBase,
		retryMax:     cfg.RetryMax,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (domain.KeySet, error) {
	delay := f.retryBase
	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, delay); err != nil {
				return domain.KeySet{}, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
			}
			delay *= 2
			if delay > f.retryMax {
				delay = f.retryMax
			}
		}
		ks, err := f.fetchOnce(ctx, url)
		if err == nil {
			return ks, nil
		}
		lastErr = err
		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return domain.KeySet{}, err
		}
		if ctx.Err() != nil {
			return domain.KeySet{}, fmt.Errorf("%w: %v", domain.ErrNetwork, ctx.Err())
		}
	}
	return domain.KeySet{}, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (domain.KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.KeySet{}, fmt.Errorf("%w: key set url: %v", domain.ErrInvalidFormat, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "receiptd")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.KeySet{}, &retryableError{err: fmt.Errorf("%w: fetch %s: %v", domain.ErrNetwork, url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("%w: fetch %s: status %d", domain.ErrNetwork, url, resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return domain.KeySet{}, &retryableError{err: statusErr}
		}
		return domain.KeySet{}, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return domain.KeySet{}, &retryableError{err: fmt.Errorf("%w: read %s: %v", domain.ErrNetwork, url, err)}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return domain.KeySet{}, fmt.Errorf("%w: key set document exceeds %d bytes", domain.ErrInvalidFormat, f.maxBodyBytes)
	}
	return domain.ParseKeySet(body)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
