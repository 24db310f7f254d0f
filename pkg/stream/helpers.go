package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// commonUserAgent is the user agent string used for all upstream requests.
	commonUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// defaultHTTPTimeout caps a single HTTP exchange; the attempt deadline is usually shorter.
	defaultHTTPTimeout = 30 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// maxResponseSize limits how much of an upstream body is read.
	maxResponseSize = 4 << 20
)

var (
	// ErrTooManyRedirects is returned when too many redirects are encountered.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrInvalidResponse is returned when an upstream body is not valid JSON.
	ErrInvalidResponse = errors.New("invalid upstream response")
)

// newHTTPClient creates an HTTP client with standard settings and redirect validation.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// newLimiter returns a limiter for rps requests per second, or nil when
// pacing is disabled.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// StatusReason maps an upstream HTTP status to a failure reason.
func StatusReason(status int) Reason {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAuthRequired
	case http.StatusNotFound, http.StatusBadRequest, http.StatusGone:
		return ReasonNotFound
	default:
		return ReasonUnavailable
	}
}

// upstream bundles what an adapter needs to talk JSON to its backend.
type upstream struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	header  http.Header
}

// getJSON performs a GET and returns the parsed body. Every error is a *Failure.
func (u *upstream) getJSON(ctx context.Context, reqURL string) (gjson.Result, error) {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, NewFailure(u.name, ReasonUnavailable, fmt.Errorf("rate limit: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return gjson.Result{}, NewFailure(u.name, ReasonUnavailable, err)
	}
	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range u.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return gjson.Result{}, NewFailure(u.name, ReasonUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, NewFailure(u.name, ReasonUnavailable, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, NewFailure(u.name, StatusReason(resp.StatusCode),
			fmt.Errorf("%s returned status %d: %s", u.name, resp.StatusCode, snippet(body)))
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, NewFailure(u.name, ReasonUnavailable, ErrInvalidResponse)
	}
	return gjson.ParseBytes(body), nil
}

// snippet shortens a body for inclusion in an error message.
func snippet(body []byte) string {
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

// trimBase strips trailing slashes so paths can be appended.
func trimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
