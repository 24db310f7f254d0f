package stream

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// MirrorName is the default provider name of a REST mirror adapter.
	MirrorName = "mirror"
	// MirrorDefaultTTL is the cache lifetime of mirror results.
	MirrorDefaultTTL = time.Hour
)

// mirrorVariantPaths lists where mirrors put their variant list, in lookup order.
var mirrorVariantPaths = []string{"streams", "formats", "variants", "data.streams", "data.formats"}

// MirrorConfig configures a single REST mirror endpoint.
type MirrorConfig struct {
	Name              string // Defaults to MirrorName.
	BaseURL           string
	AuthToken         string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// MirrorProvider resolves tracks against one REST mirror returning metadata
// and the variant list in a single document.
type MirrorProvider struct {
	name     string
	base     string
	api      *upstream
	selector Selector
}

// NewMirrorProvider creates a new REST mirror adapter.
func NewMirrorProvider(cfg MirrorConfig) (*MirrorProvider, error) {
	base := trimBase(cfg.BaseURL)
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	name := cfg.Name
	if name == "" {
		name = MirrorName
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	header := http.Header{}
	if cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	return &MirrorProvider{
		name: name,
		base: base,
		api: &upstream{
			name:    name,
			client:  client,
			limiter: newLimiter(cfg.RequestsPerSecond),
			header:  header,
		},
		selector: NewSelector(MirrorQualityRanks...),
	}, nil
}

// Name returns the provider name.
func (p *MirrorProvider) Name() string {
	return p.name
}

// Resolve fetches the track document and picks the best variant.
func (p *MirrorProvider) Resolve(ctx context.Context, ref TrackRef) (*StreamResult, error) {
	q := url.Values{}
	q.Set("id", ref.ID)
	if ref.Region != "" {
		q.Set("country", ref.Region)
	}

	doc, err := p.api.getJSON(ctx, p.base+"/track?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var candidates []StreamCandidate
	for _, path := range mirrorVariantPaths {
		if v := doc.Get(path); v.Exists() {
			candidates = parseCandidates(v)
			break
		}
	}

	best, err := p.selector.Select(candidates)
	if err != nil {
		return nil, AsFailure(p.name, err)
	}
	return normalizeMirrorTrack(best.URL, doc), nil
}

// normalizeMirrorTrack maps a mirror track document to a StreamResult.
func normalizeMirrorTrack(streamURL string, doc gjson.Result) *StreamResult {
	track := doc
	if v := doc.Get("data"); v.IsObject() {
		track = v
	}

	return newResult(
		streamURL,
		firstString(track, "title", "name", "track.title"),
		artistName(track, "artist", "artists", "track.artist"),
		firstString(track, "thumbnail", "cover", "image", "album.cover", "album.image"),
		firstInt(track, "duration", "durationSeconds", "length"),
	)
}
