package stream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// AmazonName is the provider name of the Amazon Music API adapter.
	AmazonName = "amazon"
	// AmazonDefaultTTL reflects stream URLs expiring after roughly an hour.
	AmazonDefaultTTL = time.Hour
)

// ErrMissingBaseURL is returned when an adapter is configured without an endpoint.
var ErrMissingBaseURL = errors.New("base URL is required")

// AmazonConfig configures the Amazon Music API adapter.
type AmazonConfig struct {
	BaseURL           string
	AuthToken         string
	RequestsPerSecond float64
	HTTPClient        *http.Client // Optional; a default client is used when nil.
}

// AmazonProvider resolves tracks against an Amazon Music API backend
// exposing /stream_urls and /track.
type AmazonProvider struct {
	base     string
	api      *upstream
	selector Selector
	logger   *zap.Logger
}

// NewAmazonProvider creates a new Amazon Music API adapter.
func NewAmazonProvider(cfg AmazonConfig, logger *zap.Logger) (*AmazonProvider, error) {
	base := trimBase(cfg.BaseURL)
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	header := http.Header{}
	if cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	return &AmazonProvider{
		base: base,
		api: &upstream{
			name:    AmazonName,
			client:  client,
			limiter: newLimiter(cfg.RequestsPerSecond),
			header:  header,
		},
		selector: NewSelector(AmazonQualityRanks...),
		logger:   logger.Named(AmazonName),
	}, nil
}

// Name returns the provider name.
func (p *AmazonProvider) Name() string {
	return AmazonName
}

// Resolve fetches the stream variants and the track metadata for ref.
func (p *AmazonProvider) Resolve(ctx context.Context, ref TrackRef) (*StreamResult, error) {
	doc, err := p.api.getJSON(ctx, p.endpoint("/stream_urls", ref))
	if err != nil {
		return nil, err
	}

	urls := doc
	for _, key := range []string{"urls", "stream_urls"} {
		if v := doc.Get(key); v.IsObject() || v.IsArray() {
			urls = v
			break
		}
	}

	best, err := p.selector.Select(parseCandidates(urls))
	if err != nil {
		return nil, AsFailure(AmazonName, err)
	}

	// Metadata is cosmetic; its absence never fails the attempt.
	meta, err := p.api.getJSON(ctx, p.endpoint("/track", ref))
	if err != nil {
		p.logger.Debug("Track metadata unavailable",
			zap.String("track", ref.Key()),
			zap.Error(err))
		meta = gjson.Result{}
	}

	p.logger.Debug("Resolved stream",
		zap.String("track", ref.Key()),
		zap.String("quality", best.Quality),
		zap.Bool("explicit", explicitFlag(meta, "explicit", "track.explicit", "data.explicit")))

	return normalizeAmazonTrack(best.URL, meta), nil
}

func (p *AmazonProvider) endpoint(path string, ref TrackRef) string {
	q := url.Values{}
	q.Set("id", ref.ID)
	if ref.Region != "" {
		q.Set("country", ref.Region)
	}
	return p.base + path + "?" + q.Encode()
}

// normalizeAmazonTrack maps an Amazon /track payload to a StreamResult.
func normalizeAmazonTrack(streamURL string, doc gjson.Result) *StreamResult {
	track := doc
	for _, key := range []string{"track", "data"} {
		if v := doc.Get(key); v.IsObject() {
			track = v
			break
		}
	}

	return newResult(
		streamURL,
		firstString(track, "title", "name"),
		artistName(track, "artist", "artists"),
		firstString(track, "cover", "image", "artwork", "thumbnail", "album.image"),
		firstInt(track, "duration", "durationSeconds"),
	)
}
