package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// SpotifyName is the provider name of the Spotify preview adapter.
	SpotifyName = "spotify"
	// SpotifyDefaultTTL is the cache lifetime of preview clip URLs, which live on a long-lived CDN.
	SpotifyDefaultTTL = 2 * time.Hour
	// SpotifyPreviewQuality labels the only variant Spotify exposes without a user session.
	SpotifyPreviewQuality = "preview"
)

// ErrMissingCredentials is returned when an adapter needs credentials it was not given.
var ErrMissingCredentials = errors.New("client id and secret are required")

// SpotifyConfig configures the Spotify preview adapter.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
}

// SpotifyProvider resolves Spotify track IDs to their 30 second preview clip.
type SpotifyProvider struct {
	client *spotify.Client
	logger *zap.Logger
}

// NewSpotifyProvider creates a Spotify adapter authenticated with the client
// credentials flow.
func NewSpotifyProvider(cfg SpotifyConfig, logger *zap.Logger) (*SpotifyProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return NewSpotifyProviderWithClient(spotify.New(creds.Client(context.Background())), logger), nil
}

// NewSpotifyProviderWithClient wraps an already configured Spotify client.
func NewSpotifyProviderWithClient(client *spotify.Client, logger *zap.Logger) *SpotifyProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpotifyProvider{client: client, logger: logger.Named(SpotifyName)}
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return SpotifyName
}

// Resolve looks up the track in the requested market and returns its preview.
func (p *SpotifyProvider) Resolve(ctx context.Context, ref TrackRef) (*StreamResult, error) {
	var opts []spotify.RequestOption
	if ref.Region != "" {
		opts = append(opts, spotify.Market(ref.Region))
	}

	track, err := p.client.GetTrack(ctx, spotify.ID(ref.ID), opts...)
	if err != nil {
		return nil, classifySpotifyError(err)
	}

	candidates := []StreamCandidate{{URL: track.PreviewURL, Quality: SpotifyPreviewQuality, Codec: "mp3"}}
	best, err := NewSelector(SpotifyPreviewQuality).Select(candidates)
	if err != nil {
		return nil, NewFailure(SpotifyName, ReasonNoPlayableVariant, fmt.Errorf("track %s has no preview", ref.ID))
	}

	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		artists = append(artists, a.Name)
	}
	var thumbnail string
	if len(track.Album.Images) > 0 {
		thumbnail = track.Album.Images[0].URL
	}

	return newResult(
		best.URL,
		track.Name,
		strings.Join(artists, ", "),
		thumbnail,
		int(track.Duration)/millisPerSecond,
	), nil
}

// classifySpotifyError maps Web API errors to failure reasons.
func classifySpotifyError(err error) *Failure {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return NewFailure(SpotifyName, StatusReason(apiErr.Status), err)
	}
	// A rejected client secret comes back from the token endpoint.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return NewFailure(SpotifyName, ReasonAuthRequired, err)
	}
	return NewFailure(SpotifyName, ReasonUnavailable, err)
}
