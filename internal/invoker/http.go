// Package invoker performs the outbound GET for a single ping target.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "pingflow/1.0"

	// maxDrain bounds how much of a response body is read before closing,
	// so keep-alive connections can be reused.
	maxDrain = 64 << 10
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome is the classified result of one call. Failures are data, never errors.
type Outcome struct {
	URL        string        `json:"url"`
	Status     Status        `json:"status"`
	StatusCode int           `json:"statusCode,omitempty"`
	Cause      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"-"`
}

func (o Outcome) OK() bool { return o.Status == StatusSuccess }

type Options struct {
	Timeout   time.Duration
	UserAgent string
	// RatePerSecond caps outbound calls across all targets. Zero disables it.
	RatePerSecond float64
	Burst         int
	Client        *http.Client
}

type HTTP struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
}

func New(opts Options) *HTTP {
	h := &HTTP{
		client:    opts.Client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}
	if h.client == nil {
		h.client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if h.timeout <= 0 {
		h.timeout = DefaultTimeout
	}
	if h.userAgent == "" {
		h.userAgent = DefaultUserAgent
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = max(1, int(opts.RatePerSecond))
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return h
}

// Invoke sends one GET to url and classifies the result. A status below 400
// is success; anything else, including transport failures and timeouts, is
// an error outcome with a cause.
func (h *HTTP) Invoke(ctx context.Context, url string) (out Outcome) {
	start := time.Now()
	out = Outcome{URL: url, Status: StatusError}
	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusError
			out.Cause = fmt.Sprintf("panic during request: %v", r)
		}
		out.Duration = time.Since(start)
	}()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			out.Cause = fmt.Sprintf("rate limit wait: %v", err)
			return out
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		out.Cause = fmt.Sprintf("failed to create HTTP request: %v", err)
		return out
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			out.Cause = fmt.Sprintf("HTTP request timed out after %s", h.timeout)
		} else {
			out.Cause = fmt.Sprintf("HTTP request failed: %v", err)
		}
		return out
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	out.StatusCode = resp.StatusCode
	if resp.StatusCode >= 400 {
		out.Cause = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return out
	}
	out.Status = StatusSuccess
	return out
}
