package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// NetEaseName is the provider name of the NetEase Cloud Music adapter.
	NetEaseName = "netease"
	// NetEaseDefaultTTL stays below the roughly twenty minute URL lifetime.
	NetEaseDefaultTTL = 15 * time.Minute
	// NetEaseDefaultLevel is the quality level requested when none is configured.
	NetEaseDefaultLevel = "lossless"

	neteaseCodeOK       = 200
	neteaseCodeNeedAuth = 301
	bitsPerKilobit      = 1000
	millisPerSecond     = 1000
)

// NetEaseConfig configures the NetEase Cloud Music API adapter.
type NetEaseConfig struct {
	BaseURL           string
	Cookie            string // Session cookie, e.g. "MUSIC_U=...".
	Level             string // standard, higher, exhigh, lossless, hires, jymaster.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// NetEaseProvider resolves NetEase song IDs through a NetEase Cloud Music API
// deployment.
type NetEaseProvider struct {
	base     string
	level    string
	api      *upstream
	selector Selector
	logger   *zap.Logger
}

// NewNetEaseProvider creates a new NetEase adapter.
func NewNetEaseProvider(cfg NetEaseConfig, logger *zap.Logger) (*NetEaseProvider, error) {
	base := trimBase(cfg.BaseURL)
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = NetEaseDefaultLevel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}

	// os=pc makes the API return full-bitrate URLs.
	cookies := []string{"os=pc"}
	if c := strings.TrimSpace(cfg.Cookie); c != "" {
		cookies = append(cookies, c)
	}
	header := http.Header{}
	header.Set("Cookie", strings.Join(cookies, "; "))

	return &NetEaseProvider{
		base:  base,
		level: level,
		api: &upstream{
			name:    NetEaseName,
			client:  client,
			limiter: newLimiter(cfg.RequestsPerSecond),
			header:  header,
		},
		selector: NewSelector(NetEaseQualityRanks...),
		logger:   logger.Named(NetEaseName),
	}, nil
}

// Name returns the provider name.
func (p *NetEaseProvider) Name() string {
	return NetEaseName
}

// Resolve fetches the song URL and then the song detail for display metadata.
func (p *NetEaseProvider) Resolve(ctx context.Context, ref TrackRef) (*StreamResult, error) {
	q := url.Values{}
	q.Set("id", ref.ID)
	q.Set("level", p.level)

	doc, err := p.api.getJSON(ctx, p.base+"/song/url/v1?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := neteaseCode(doc); err != nil {
		return nil, err
	}

	data := doc.Get("data").Array()
	if len(data) == 0 {
		return nil, NewFailure(NetEaseName, ReasonNotFound, fmt.Errorf("no song data for %s", ref.ID))
	}

	candidates := make([]StreamCandidate, 0, len(data))
	for _, d := range data {
		u := d.Get("url").String()
		if u == "" {
			// Copyright-restricted entries come back without a URL.
			continue
		}
		candidates = append(candidates, StreamCandidate{
			URL:     u,
			Quality: d.Get("level").String(),
			Bitrate: int(d.Get("br").Int()) / bitsPerKilobit,
			Codec:   d.Get("type").String(),
		})
	}

	best, err := p.selector.Select(candidates)
	if err != nil {
		return nil, AsFailure(NetEaseName, err)
	}

	detail, err := p.api.getJSON(ctx, p.base+"/song/detail?ids="+url.QueryEscape(ref.ID))
	if err == nil {
		err = neteaseCode(detail)
	}
	if err != nil {
		p.logger.Debug("Song detail unavailable",
			zap.String("track", ref.Key()),
			zap.Error(err))
		detail = gjson.Result{}
	}

	return normalizeNetEaseSong(best.URL, detail.Get("songs.0")), nil
}

// neteaseCode maps the body-level status code to a failure.
func neteaseCode(doc gjson.Result) error {
	code := doc.Get("code")
	if !code.Exists() || code.Int() == neteaseCodeOK {
		return nil
	}
	msg := firstString(doc, "msg", "message")
	err := fmt.Errorf("api returned code %d: %s", code.Int(), msg)
	if code.Int() == neteaseCodeNeedAuth {
		return NewFailure(NetEaseName, ReasonAuthRequired, err)
	}
	return NewFailure(NetEaseName, ReasonUnavailable, err)
}

// normalizeNetEaseSong maps a song detail entry to a StreamResult.
func normalizeNetEaseSong(streamURL string, song gjson.Result) *StreamResult {
	return newResult(
		streamURL,
		firstString(song, "name"),
		artistName(song, "ar", "artists"),
		firstString(song, "al.picUrl", "album.picUrl"),
		firstInt(song, "dt", "duration")/millisPerSecond,
	)
}
