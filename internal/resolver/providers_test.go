package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"musicstreamer/internal/core"
	"musicstreamer/pkg/stream"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      core.ProviderConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "Amazon",
			cfg:      core.ProviderConfig{Kind: "amazon", BaseURLs: []string{"https://amz.example"}},
			wantName: "amazon",
		},
		{
			name:     "Single mirror takes the configured name",
			cfg:      core.ProviderConfig{Name: "eu", Kind: "mirror", BaseURLs: []string{"https://eu.example"}},
			wantName: "eu",
		},
		{
			name:     "Several mirrors are federated",
			cfg:      core.ProviderConfig{Kind: "Mirror", BaseURLs: []string{"https://a.example", "https://b.example"}},
			wantName: "mirror",
		},
		{
			name:     "NetEase",
			cfg:      core.ProviderConfig{Kind: "netease", BaseURLs: []string{"http://localhost:3000"}, Quality: "exhigh"},
			wantName: "netease",
		},
		{
			name:     "yt-dlp",
			cfg:      core.ProviderConfig{Name: "youtube", Kind: "ytdlp"},
			wantName: "youtube",
		},
		{
			name:     "Spotify",
			cfg:      core.ProviderConfig{Kind: "spotify", ClientID: "id", ClientSecret: "secret"},
			wantName: "spotify",
		},
		{
			name:    "Spotify without credentials",
			cfg:     core.ProviderConfig{Kind: "spotify"},
			wantErr: true,
		},
		{
			name:    "Amazon without URL",
			cfg:     core.ProviderConfig{Kind: "amazon"},
			wantErr: true,
		},
		{
			name:    "Unknown kind",
			cfg:     core.ProviderConfig{Kind: "napster"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, zap.NewNop())
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewProvider() should fail, got %T", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestNewProvider_FederatedMirrorsResolve(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Song","streams":[{"url":"https://m/ok","quality":"HD"}]}`))
	}))
	defer up.Close()

	p, err := NewProvider(core.ProviderConfig{
		Kind:          "mirror",
		BaseURLs:      []string{down.URL, up.URL},
		MirrorTimeout: time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	got, err := p.Resolve(context.Background(), stream.TrackRef{ID: "1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URL != "https://m/ok" {
		t.Errorf("URL = %q, want https://m/ok", got.URL)
	}
}

func TestBuildChain_Defaults(t *testing.T) {
	attempts, err := BuildChain([]core.ProviderConfig{
		{Kind: "netease", BaseURLs: []string{"http://localhost:3000"}},
		{Kind: "amazon", BaseURLs: []string{"https://amz"}, Timeout: 3 * time.Second, CacheTTL: 5 * time.Minute},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("BuildChain() returned %d attempts, want 2", len(attempts))
	}

	if attempts[0].Timeout != core.DefaultProviderTimeout || attempts[0].TTL != stream.NetEaseDefaultTTL {
		t.Errorf("netease attempt = %+v, want defaults", attempts[0])
	}
	if attempts[1].Timeout != 3*time.Second || attempts[1].TTL != 5*time.Minute {
		t.Errorf("amazon attempt = %+v, want configured values", attempts[1])
	}
}

func TestBuildChain_PropagatesErrors(t *testing.T) {
	_, err := BuildChain([]core.ProviderConfig{{Kind: "napster"}}, zap.NewNop())
	if !errors.Is(err, core.ErrUnknownProviderKind) {
		t.Errorf("BuildChain() error = %v, want ErrUnknownProviderKind", err)
	}
}

func TestDefaultTTL(t *testing.T) {
	if DefaultTTL("spotify") != stream.SpotifyDefaultTTL {
		t.Error("spotify TTL should match the adapter default")
	}
	if DefaultTTL("NETEASE") != stream.NetEaseDefaultTTL {
		t.Error("kind lookup should be case-insensitive")
	}
}
