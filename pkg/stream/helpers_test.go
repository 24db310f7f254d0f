package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatusReason(t *testing.T) {
	tests := []struct {
		status int
		want   Reason
	}{
		{status: http.StatusUnauthorized, want: ReasonAuthRequired},
		{status: http.StatusForbidden, want: ReasonAuthRequired},
		{status: http.StatusNotFound, want: ReasonNotFound},
		{status: http.StatusBadRequest, want: ReasonNotFound},
		{status: http.StatusGone, want: ReasonNotFound},
		{status: http.StatusTooManyRequests, want: ReasonUnavailable},
		{status: http.StatusBadGateway, want: ReasonUnavailable},
		{status: http.StatusServiceUnavailable, want: ReasonUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := StatusReason(tt.status); got != tt.want {
				t.Errorf("StatusReason(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestUpstream_RateLimitWaitBeyondDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	api := &upstream{name: "paced", client: srv.Client(), limiter: newLimiter(0.5)}

	if _, err := api.getJSON(context.Background(), srv.URL); err != nil {
		t.Fatalf("first getJSON() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := api.getJSON(ctx, srv.URL)

	var failure *Failure
	if !errors.As(err, &failure) || failure.Reason != ReasonUnavailable {
		t.Errorf("getJSON() error = %v, want unavailable failure", err)
	}
}

func TestNewLimiter_Disabled(t *testing.T) {
	if l := newLimiter(0); l != nil {
		t.Errorf("newLimiter(0) = %v, want nil", l)
	}
}

func TestNewHTTPClient_RedirectLimit(t *testing.T) {
	client := newHTTPClient()
	via := make([]*http.Request, maxHTTPRedirects)
	if err := client.CheckRedirect(nil, via); !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("CheckRedirect() error = %v, want ErrTooManyRedirects", err)
	}
}
