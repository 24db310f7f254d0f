package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reason classifies why a provider attempt failed.
type Reason int

const (
	// ReasonUnavailable covers network errors, timeouts and upstream 5xx.
	ReasonUnavailable Reason = iota
	// ReasonNoPlayableVariant means the track exists but no usable stream was offered.
	ReasonNoPlayableVariant
	// ReasonNotFound means the provider does not know the track.
	ReasonNotFound
	// ReasonAuthRequired means the provider demands credentials that are not configured.
	ReasonAuthRequired
)

// String returns the metric/log label of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonUnavailable:
		return "unavailable"
	case ReasonNoPlayableVariant:
		return "no_playable_variant"
	case ReasonNotFound:
		return "not_found"
	case ReasonAuthRequired:
		return "auth_required"
	default:
		return "unknown"
	}
}

// specificity orders reasons by how actionable they are for the caller.
func (r Reason) specificity() int {
	switch r {
	case ReasonAuthRequired:
		return 3
	case ReasonNotFound:
		return 2
	case ReasonNoPlayableVariant:
		return 1
	default:
		return 0
	}
}

// Failure is the failed outcome of a single provider attempt.
type Failure struct {
	Provider string
	Reason   Reason
	Err      error
}

// NewFailure creates a failure for the named provider.
func NewFailure(provider string, reason Reason, err error) *Failure {
	return &Failure{Provider: provider, Reason: reason, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Provider, f.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", f.Provider, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure converts any error returned from a provider into a *Failure.
// Errors that are not already failures are treated as transient. An unnamed
// failure is copied before the provider name is filled in, so a *Failure
// shared between calls is never modified.
func AsFailure(provider string, err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		if failure.Provider != "" {
			return failure
		}
		named := *failure
		named.Provider = provider
		return &named
	}
	return NewFailure(provider, ReasonUnavailable, err)
}

// AttemptRecord describes one attempt made by the orchestrator.
type AttemptRecord struct {
	Provider string
	Duration time.Duration
	Failure  *Failure // nil for the successful attempt
}

// ExhaustedError is returned when every provider in the chain failed.
type ExhaustedError struct {
	Reason   Reason
	Attempts []AttemptRecord
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no providers configured"
	}

	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Failure != nil {
			parts = append(parts, a.Failure.Error())
		}
	}
	return fmt.Sprintf("all providers failed (%s): %s", e.Reason, strings.Join(parts, "; "))
}

// aggregateReason picks the most informative reason among the failures.
// Without failures the chain is considered unavailable.
func aggregateReason(failures []*Failure) Reason {
	reason := ReasonUnavailable
	for _, f := range failures {
		if f.Reason.specificity() > reason.specificity() {
			reason = f.Reason
		}
	}
	return reason
}

// isContextError reports whether err stems from a canceled or expired context.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
