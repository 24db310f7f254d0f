// Package resolver exposes the stream resolution service: cache lookup,
// fallback across providers and write-through of successful results.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"musicstreamer/pkg/stream"
)

var (
	// ErrNotFound means no provider knows the track or none offered a playable stream.
	ErrNotFound = errors.New("track not found")
	// ErrServiceUnavailable means every provider failed transiently.
	ErrServiceUnavailable = errors.New("all providers unavailable")
	// ErrAuthRequired means a provider needs credentials that are not configured.
	ErrAuthRequired = errors.New("provider authorization required")
	// ErrInvalidTrackRef is returned for an empty track identifier.
	ErrInvalidTrackRef = stream.ErrInvalidTrackRef
)

// Outcome labels reported to the Recorder.
const (
	OutcomeHit          = "hit"
	OutcomeResolved     = "resolved"
	OutcomeNotFound     = "not_found"
	OutcomeUnavailable  = "unavailable"
	OutcomeAuthRequired = "auth_required"
	OutcomeInvalid      = "invalid"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
	OutcomeSuccess      = "success"
)

// Cache stores resolved streams keyed by TrackRef.Key.
type Cache interface {
	Get(ctx context.Context, key string) (*stream.StreamResult, bool, error)
	Put(ctx context.Context, key string, result *stream.StreamResult, ttl time.Duration) error
}

// Recorder receives resolution telemetry. The HTTP server's metrics implement it.
type Recorder interface {
	RecordResolution(outcome string, duration time.Duration)
	RecordProviderAttempt(provider, outcome string, duration time.Duration)
	RecordCacheLookup(hit bool)
}

// Chain resolves a track across the configured providers.
type Chain interface {
	Resolve(ctx context.Context, ref stream.TrackRef) (*stream.Resolution, error)
	Providers() []string
}

// Service is the single entry point used by the route layer.
type Service struct {
	chain    Chain
	cache    Cache
	recorder Recorder
	logger   *zap.Logger
	budget   time.Duration
	group    singleflight.Group
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder attaches a telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithBudget bounds a whole chain walk in addition to the per-attempt timeouts.
func WithBudget(d time.Duration) Option {
	return func(s *Service) {
		s.budget = d
	}
}

// NewService creates a resolution service. cache may be nil to disable caching.
func NewService(chain Chain, cache Cache, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		chain:  chain,
		cache:  cache,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Providers returns the provider names in fallback order.
func (s *Service) Providers() []string {
	return s.chain.Providers()
}

// ResolveStream returns a playable stream for trackID in the optional region.
//
// Errors are ErrInvalidTrackRef, ErrNotFound, ErrAuthRequired or
// ErrServiceUnavailable, wrapped with details; context errors pass through.
func (s *Service) ResolveStream(ctx context.Context, trackID, region string) (*stream.StreamResult, error) {
	start := time.Now()

	ref, err := stream.NewTrackRef(trackID, region)
	if err != nil {
		s.recordResolution(OutcomeInvalid, start)
		return nil, err
	}
	key := ref.Key()

	if cached, ok := s.lookup(ctx, key); ok {
		s.logger.Debug("Serving from cache", zap.String("track", key))
		s.recordResolution(OutcomeHit, start)
		return cached, nil
	}

	resolution, err := s.resolveShared(ctx, ref)
	if err != nil {
		err = translate(err)
		s.recordResolution(outcomeOf(err), start)
		return nil, err
	}

	s.recordResolution(OutcomeResolved, start)
	result := *resolution.Result
	return &result, nil
}

// resolveShared collapses concurrent misses for the same key into one chain
// walk. If the shared walk was cut short by another caller's cancellation
// while ours is still live, the walk is repeated on our context.
func (s *Service) resolveShared(ctx context.Context, ref stream.TrackRef) (*stream.Resolution, error) {
	key := ref.Key()
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.resolveAndStore(ctx, ref)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if isContextError(res.Err) && ctx.Err() == nil {
				s.logger.Debug("Shared resolution canceled, retrying", zap.String("track", key))
				return s.resolveAndStore(ctx, ref)
			}
			return nil, res.Err
		}
		return res.Val.(*stream.Resolution), nil
	}
}

func (s *Service) resolveAndStore(ctx context.Context, ref stream.TrackRef) (*stream.Resolution, error) {
	if s.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	key := ref.Key()
	resolution, err := s.chain.Resolve(ctx, ref)
	if err != nil {
		var exhausted *stream.ExhaustedError
		if errors.As(err, &exhausted) {
			s.recordAttempts(exhausted.Attempts)
			s.logger.Warn("All providers failed",
				zap.String("track", key),
				zap.Stringer("reason", exhausted.Reason),
				zap.Int("attempts", len(exhausted.Attempts)))
		}
		return nil, err
	}

	s.recordAttempts(resolution.Attempts)
	s.logger.Info("Stream resolved",
		zap.String("track", key),
		zap.String("provider", resolution.Provider),
		zap.String("title", resolution.Result.Title),
		zap.Duration("ttl", resolution.TTL))

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, resolution.Result, resolution.TTL); err != nil {
			s.logger.Warn("Failed to cache stream", zap.String("track", key), zap.Error(err))
		}
	}
	return resolution, nil
}

// lookup reads the cache. Cache errors degrade to a miss.
func (s *Service) lookup(ctx context.Context, key string) (*stream.StreamResult, bool) {
	if s.cache == nil {
		return nil, false
	}

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Cache lookup failed", zap.String("track", key), zap.Error(err))
		ok = false
	}
	if s.recorder != nil {
		s.recorder.RecordCacheLookup(ok)
	}
	return cached, ok
}

func (s *Service) recordResolution(outcome string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordResolution(outcome, time.Since(start))
	}
}

func (s *Service) recordAttempts(attempts []stream.AttemptRecord) {
	if s.recorder == nil {
		return
	}
	for _, a := range attempts {
		outcome := OutcomeSuccess
		if a.Failure != nil {
			outcome = a.Failure.Reason.String()
		}
		s.recorder.RecordProviderAttempt(a.Provider, outcome, a.Duration)
	}
}

// translate maps chain errors to the service sentinels.
func translate(err error) error {
	var exhausted *stream.ExhaustedError
	if !errors.As(err, &exhausted) {
		return err
	}

	switch exhausted.Reason {
	case stream.ReasonNotFound, stream.ReasonNoPlayableVariant:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case stream.ReasonAuthRequired:
		return fmt.Errorf("%w: %w", ErrAuthRequired, err)
	default:
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrServiceUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, ErrAuthRequired):
		return OutcomeAuthRequired
	case isContextError(err):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
