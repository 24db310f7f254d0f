package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"musicstreamer/internal/core"
	"musicstreamer/internal/resolver"
	"musicstreamer/pkg/stream"
)

// fakeService returns a scripted result or error.
type fakeService struct {
	mu         sync.Mutex
	result     *stream.StreamResult
	err        error
	providers  []string
	lastID     string
	lastRegion string
}

func (f *fakeService) ResolveStream(_ context.Context, id, region string) (*stream.StreamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastID, f.lastRegion = id, region
	return f.result, f.err
}

func (f *fakeService) Providers() []string {
	return f.providers
}

var testInfo = Info{ServiceName: "Music Streamer Backend", Version: "test"}

func newTestServer(t *testing.T, service StreamService) (*httptest.Server, *Metrics) {
	t.Helper()
	metrics := NewMetrics()
	srv := httptest.NewServer(setupRoutes(testInfo, service, metrics, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, metrics
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	expectedAddr := "0.0.0.0:9090"
	if server.Addr != expectedAddr {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, expectedAddr)
	}

	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}

	if server.ReadTimeout != config.ReadTimeout {
		t.Errorf("createHTTPServer() ReadTimeout = %v, expected %v", server.ReadTimeout, config.ReadTimeout)
	}

	if server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() WriteTimeout = %v, expected %v", server.WriteTimeout, config.WriteTimeout)
	}
}

func TestNewServer_IndependentRegistries(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: 0}
	service := &fakeService{}

	// Two servers in one process must not collide on metric registration.
	first := NewServer(config, testInfo, service, nil, zap.NewNop())
	second := NewServer(config, testInfo, service, nil, zap.NewNop())

	if first.GetMetrics() == second.GetMetrics() {
		t.Error("servers should not share metrics")
	}
}

func TestStreamHandler_Success(t *testing.T) {
	thumb := "https://img/c.jpg"
	service := &fakeService{result: &stream.StreamResult{
		URL: "https://cdn/high", Title: "Song", Artist: "Artist", Thumbnail: &thumb,
	}}
	srv, _ := newTestServer(t, service)

	resp, body := get(t, srv.URL+"/stream/B0TRACK?region=us")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", resp.StatusCode, body)
	}
	service.mu.Lock()
	if service.lastID != "B0TRACK" || service.lastRegion != "us" {
		t.Errorf("service called with %q/%q", service.lastID, service.lastRegion)
	}
	service.mu.Unlock()

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["url"] != "https://cdn/high" || got["thumbnail"] != thumb {
		t.Errorf("body = %v", got)
	}
	if v, ok := got["duration"]; !ok || v != nil {
		t.Errorf("duration should be present and null, got %v", v)
	}
}

func TestStreamHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "Not found", err: fmt.Errorf("%w: details", resolver.ErrNotFound), status: http.StatusNotFound},
		{name: "Unavailable", err: fmt.Errorf("%w: details", resolver.ErrServiceUnavailable), status: http.StatusServiceUnavailable},
		{name: "Auth required", err: fmt.Errorf("%w: details", resolver.ErrAuthRequired), status: http.StatusUnauthorized},
		{name: "Invalid reference", err: resolver.ErrInvalidTrackRef, status: http.StatusBadRequest},
		{name: "Unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakeService{err: tt.err})

			resp, body := get(t, srv.URL+"/stream/X")

			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var got errorResponse
			if err := json.Unmarshal(body, &got); err != nil || got.Detail == "" {
				t.Errorf("body = %s, want {\"detail\": ...}", body)
			}
			if tt.status == http.StatusInternalServerError && got.Detail != "Internal server error" {
				t.Errorf("detail = %q, want a fixed message without internal errors", got.Detail)
			}
		})
	}
}

func TestInfoRoutes(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{providers: []string{"amazon", "mirror"}})

	for _, path := range []string{"/info", "/"} {
		t.Run(path, func(t *testing.T) {
			resp, body := get(t, srv.URL+path)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			var got infoResponse
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if got.Status != "ok" || got.Service != testInfo.ServiceName || got.Version != "test" {
				t.Errorf("info = %+v", got)
			}
			if len(got.Providers) != 2 || got.Timestamp == 0 {
				t.Errorf("info = %+v, want providers and timestamp", got)
			}
		})
	}
}

func TestHealthAndReadiness(t *testing.T) {
	ready, _ := newTestServer(t, &fakeService{providers: []string{"amazon"}})
	empty, _ := newTestServer(t, &fakeService{})

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{name: "Health", url: ready.URL + "/healthz", status: http.StatusOK},
		{name: "Ready", url: ready.URL + "/readyz", status: http.StatusOK},
		{name: "Not ready without providers", url: empty.URL + "/readyz", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := get(t, tt.url)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if contentType := resp.Header.Get("Content-Type"); contentType != "application/json" {
				t.Errorf("Content-Type = %q, expected %q", contentType, "application/json")
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{})

	resp, _ := get(t, srv.URL+"/healthz")
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("response should carry a generated request ID")
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/healthz", http.NoBody)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, metrics := newTestServer(t, &fakeService{result: &stream.StreamResult{URL: "https://x"}})

	metrics.RecordResolution(resolver.OutcomeResolved, 10*time.Millisecond)
	metrics.RecordProviderAttempt("amazon", resolver.OutcomeSuccess, 5*time.Millisecond)
	metrics.RecordCacheLookup(true)
	get(t, srv.URL+"/stream/X")

	_, body := get(t, srv.URL+"/metrics")
	text := string(body)

	for _, want := range []string{
		`musicstreamer_resolutions_total{outcome="resolved"} 1`,
		`musicstreamer_provider_attempts_total{outcome="success",provider="amazon"} 1`,
		`musicstreamer_cache_lookups_total{result="hit"} 1`,
		`musicstreamer_http_requests_total{code="200",route="stream"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, &fakeService{})

	resp, body := get(t, srv.URL+"/charts")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if !strings.Contains(string(body), "detail") {
		t.Errorf("body = %s, want detail", body)
	}
}
