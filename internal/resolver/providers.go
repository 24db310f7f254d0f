package resolver

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"musicstreamer/internal/core"
	"musicstreamer/pkg/stream"
)

// NewProvider builds the adapter described by cfg. Kinds that accept several
// base URLs are wrapped in a federated provider when more than one is given.
func NewProvider(cfg core.ProviderConfig, logger *zap.Logger) (stream.Provider, error) {
	name := cfg.DisplayName()
	var (
		provider stream.Provider
		err      error
	)

	switch strings.ToLower(cfg.Kind) {
	case core.ProviderKindAmazon:
		provider, err = federate(cfg, logger, func(base, member string) (stream.Provider, error) {
			return stream.NewAmazonProvider(stream.AmazonConfig{
				BaseURL:           base,
				AuthToken:         cfg.Token,
				RequestsPerSecond: cfg.RequestsPerSecond,
			}, logger)
		})
	case core.ProviderKindMirror:
		provider, err = federate(cfg, logger, func(base, member string) (stream.Provider, error) {
			return stream.NewMirrorProvider(stream.MirrorConfig{
				Name:              member,
				BaseURL:           base,
				AuthToken:         cfg.Token,
				RequestsPerSecond: cfg.RequestsPerSecond,
			})
		})
	case core.ProviderKindNetEase:
		provider, err = federate(cfg, logger, func(base, member string) (stream.Provider, error) {
			return stream.NewNetEaseProvider(stream.NetEaseConfig{
				BaseURL:           base,
				Cookie:            cfg.Cookie,
				Level:             cfg.Quality,
				RequestsPerSecond: cfg.RequestsPerSecond,
			}, logger)
		})
	case core.ProviderKindYTDLP:
		provider = stream.NewYTDLPProvider(stream.YTDLPConfig{Cookies: cfg.Cookie}, logger)
	case core.ProviderKindSpotify:
		provider, err = stream.NewSpotifyProvider(stream.SpotifyConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownProviderKind, cfg.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	return renamed(provider, name), nil
}

// BuildChain turns the configured provider list into orchestrator attempts,
// applying the per-kind defaults for timeout and cache lifetime.
func BuildChain(cfgs []core.ProviderConfig, logger *zap.Logger) ([]stream.Attempt, error) {
	attempts := make([]stream.Attempt, 0, len(cfgs))
	for _, cfg := range cfgs {
		provider, err := NewProvider(cfg, logger)
		if err != nil {
			return nil, err
		}

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = core.DefaultProviderTimeout
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = DefaultTTL(cfg.Kind)
		}

		attempts = append(attempts, stream.Attempt{Provider: provider, Timeout: timeout, TTL: ttl})
		logger.Info("Provider configured",
			zap.String("provider", provider.Name()),
			zap.String("kind", cfg.Kind),
			zap.Duration("timeout", timeout),
			zap.Duration("ttl", ttl))
	}
	return attempts, nil
}

// DefaultTTL returns the cache lifetime matching how long a kind's URLs stay valid.
func DefaultTTL(kind string) time.Duration {
	switch strings.ToLower(kind) {
	case core.ProviderKindAmazon:
		return stream.AmazonDefaultTTL
	case core.ProviderKindMirror:
		return stream.MirrorDefaultTTL
	case core.ProviderKindNetEase:
		return stream.NetEaseDefaultTTL
	case core.ProviderKindYTDLP:
		return stream.YTDLPDefaultTTL
	case core.ProviderKindSpotify:
		return stream.SpotifyDefaultTTL
	default:
		return time.Hour
	}
}

type memberFactory func(base, member string) (stream.Provider, error)

func federate(cfg core.ProviderConfig, logger *zap.Logger, build memberFactory) (stream.Provider, error) {
	if len(cfg.BaseURLs) == 0 {
		return nil, stream.ErrMissingBaseURL
	}

	members := make([]stream.Provider, 0, len(cfg.BaseURLs))
	for _, base := range cfg.BaseURLs {
		p, err := build(base, memberName(cfg.DisplayName(), base))
		if err != nil {
			return nil, err
		}
		members = append(members, p)
	}
	if len(members) == 1 {
		return members[0], nil
	}
	return stream.NewFederatedProvider(cfg.DisplayName(), members, cfg.MirrorTimeout, logger)
}

// memberName labels one endpoint of a federated provider, e.g. "mirror/eu.example.org".
func memberName(name, base string) string {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		return name + "/" + u.Host
	}
	return name
}

// namedProvider overrides the name an adapter reports.
type namedProvider struct {
	stream.Provider
	name string
}

func (p namedProvider) Name() string {
	return p.name
}

func renamed(p stream.Provider, name string) stream.Provider {
	if p.Name() == name {
		return p
	}
	return namedProvider{Provider: p, name: name}
}
