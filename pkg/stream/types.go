// Package stream resolves track identifiers to playable audio stream URLs by
// querying an ordered chain of upstream providers.
package stream

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	// UnknownTitle is used when a provider returns no usable title.
	UnknownTitle = "Unknown Title"
	// UnknownArtist is used when a provider returns no usable artist.
	UnknownArtist = "Unknown Artist"
)

// ErrInvalidTrackRef is returned for a track reference without an identifier.
var ErrInvalidTrackRef = errors.New("invalid track reference")

// TrackRef identifies a track within a provider namespace.
type TrackRef struct {
	ID     string // Provider-scoped track identifier.
	Region string // Optional country/region qualifier (e.g. "US").
}

// NewTrackRef builds a normalized track reference.
func NewTrackRef(id, region string) (TrackRef, error) {
	ref := TrackRef{
		ID:     strings.TrimSpace(id),
		Region: strings.ToUpper(strings.TrimSpace(region)),
	}
	if ref.ID == "" {
		return TrackRef{}, ErrInvalidTrackRef
	}
	return ref, nil
}

// Key returns the cache identity of the reference. It covers every parameter
// that can change the resolved URL. The ID is query-escaped so "@" only ever
// appears as the region separator.
func (r TrackRef) Key() string {
	id := url.QueryEscape(r.ID)
	if r.Region == "" {
		return id
	}
	return id + "@" + r.Region
}

// StreamCandidate is one playable variant offered by a provider.
type StreamCandidate struct {
	URL     string
	Quality string // Provider-specific label, e.g. "HIGH" or "exhigh".
	Bitrate int    // Kilobits per second, 0 when unknown.
	Codec   string
}

// StreamResult is a resolved stream. It is treated as immutable once built and
// may be shared between concurrent readers.
type StreamResult struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Thumbnail *string `json:"thumbnail"`
	Duration  *int    `json:"duration"`
}

// Provider is one upstream integration capable of yielding a playable stream.
//
// Implementations must return a *Failure for every error and must honor ctx,
// which carries the per-attempt deadline.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Resolve looks up a stream for the given track.
	Resolve(ctx context.Context, ref TrackRef) (*StreamResult, error)
}

// Attempt binds a provider to its position-specific limits in a chain.
type Attempt struct {
	Provider Provider
	Timeout  time.Duration // Hard bound on a single resolve call.
	TTL      time.Duration // Cache lifetime for results from this provider.
}
