package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const neteaseDetailBody = `{"code":200,"songs":[{"name":"晴天","ar":[{"name":"周杰伦"}],"al":{"picUrl":"https://p.music/pic.jpg"},"dt":269000}]}`

func newNetEaseServer(t *testing.T, urlBody, detailBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := r.Header.Get("Cookie"); !strings.Contains(c, "os=pc") {
			t.Errorf("Cookie = %q, want os=pc", c)
		}
		switch r.URL.Path {
		case "/song/url/v1":
			if got := r.URL.Query().Get("level"); got != "exhigh" {
				t.Errorf("level = %q, want exhigh", got)
			}
			_, _ = w.Write([]byte(urlBody))
		case "/song/detail":
			_, _ = w.Write([]byte(detailBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNetEaseProvider_Resolve(t *testing.T) {
	srv := newNetEaseServer(t,
		`{"code":200,"data":[{"id":186016,"url":"https://m.music/a.mp3","br":320000,"level":"exhigh","type":"mp3"}]}`,
		neteaseDetailBody)
	p, err := NewNetEaseProvider(NetEaseConfig{BaseURL: srv.URL, Level: "exhigh", Cookie: "MUSIC_U=abc"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNetEaseProvider() error = %v", err)
	}

	got, err := p.Resolve(context.Background(), TrackRef{ID: "186016"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URL != "https://m.music/a.mp3" {
		t.Errorf("URL = %q", got.URL)
	}
	if got.Title != "晴天" || got.Artist != "周杰伦" {
		t.Errorf("Title/Artist = %q/%q", got.Title, got.Artist)
	}
	if got.Duration == nil || *got.Duration != 269 {
		t.Errorf("Duration = %v, want 269", got.Duration)
	}
	if got.Thumbnail == nil || *got.Thumbnail != "https://p.music/pic.jpg" {
		t.Errorf("Thumbnail = %v", got.Thumbnail)
	}
}

func TestNetEaseProvider_ResolveFailures(t *testing.T) {
	tests := []struct {
		name    string
		urlBody string
		want    Reason
	}{
		{name: "Empty data", urlBody: `{"code":200,"data":[]}`, want: ReasonNotFound},
		{name: "Copyright restricted", urlBody: `{"code":200,"data":[{"id":1,"url":null,"br":0}]}`, want: ReasonNoPlayableVariant},
		{name: "Login required", urlBody: `{"code":301,"msg":"need login"}`, want: ReasonAuthRequired},
		{name: "Upstream error code", urlBody: `{"code":-460,"msg":"cheating"}`, want: ReasonUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newNetEaseServer(t, tt.urlBody, neteaseDetailBody)
			p, _ := NewNetEaseProvider(NetEaseConfig{BaseURL: srv.URL, Level: "exhigh"}, zap.NewNop())

			_, err := p.Resolve(context.Background(), TrackRef{ID: "1"})

			var failure *Failure
			if !errors.As(err, &failure) {
				t.Fatalf("Resolve() error = %v, want *Failure", err)
			}
			if failure.Reason != tt.want {
				t.Errorf("Reason = %v, want %v", failure.Reason, tt.want)
			}
		})
	}
}

func TestNetEaseProvider_DetailFailureUsesDefaults(t *testing.T) {
	srv := newNetEaseServer(t,
		`{"code":200,"data":[{"id":1,"url":"https://m.music/b.mp3","br":128000}]}`,
		`{"code":404}`)
	p, _ := NewNetEaseProvider(NetEaseConfig{BaseURL: srv.URL, Level: "exhigh"}, zap.NewNop())

	got, err := p.Resolve(context.Background(), TrackRef{ID: "1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Title != UnknownTitle || got.Artist != UnknownArtist {
		t.Errorf("Title/Artist = %q/%q, want defaults", got.Title, got.Artist)
	}
}
