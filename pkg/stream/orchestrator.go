package stream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State is the position of the orchestrator within one resolution.
type State int

const (
	// StateIdle is the state before the first attempt.
	StateIdle State = iota
	// StateTrying means an attempt against one provider is in flight.
	StateTrying
	// StateResolved is terminal: a provider returned a playable stream.
	StateResolved
	// StateExhausted is terminal: every provider failed.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTrying:
		return "trying"
	case StateResolved:
		return "resolved"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// DefaultAttemptTimeout bounds an attempt whose configured timeout is zero.
const DefaultAttemptTimeout = 10 * time.Second

// Resolution is the successful outcome of a fallback chain.
type Resolution struct {
	Result   *StreamResult
	Provider string
	TTL      time.Duration
	Attempts []AttemptRecord
}

// Orchestrator walks an ordered chain of providers until one succeeds.
type Orchestrator struct {
	attempts []Attempt
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator over the given chain. The order of
// attempts is the priority order.
func NewOrchestrator(attempts []Attempt, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := make([]Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Provider == nil {
			continue
		}
		if a.Timeout <= 0 {
			a.Timeout = DefaultAttemptTimeout
		}
		chain = append(chain, a)
	}
	return &Orchestrator{attempts: chain, logger: logger}
}

// Providers returns the provider names in priority order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.attempts))
	for i, a := range o.attempts {
		names[i] = a.Provider.Name()
	}
	return names
}

// Resolve tries each provider in order and returns the first success.
//
// When all providers fail the error is an *ExhaustedError. If ctx ends
// before the chain completes, the context error is returned.
func (o *Orchestrator) Resolve(ctx context.Context, ref TrackRef) (*Resolution, error) {
	records := make([]AttemptRecord, 0, len(o.attempts))
	failures := make([]*Failure, 0, len(o.attempts))
	o.transition(StateIdle, ref, -1)

	for i, attempt := range o.attempts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref.Key(), err)
		}

		name := attempt.Provider.Name()
		o.transition(StateTrying, ref, i)

		start := time.Now()
		result, err := o.try(ctx, attempt, ref)
		elapsed := time.Since(start)

		if err == nil && (result == nil || result.URL == "") {
			err = NewFailure(name, ReasonNoPlayableVariant, ErrNoCandidates)
		}

		if err == nil {
			records = append(records, AttemptRecord{Provider: name, Duration: elapsed})
			o.transition(StateResolved, ref, i)
			return &Resolution{
				Result:   result,
				Provider: name,
				TTL:      attempt.TTL,
				Attempts: records,
			}, nil
		}

		// Caller cancellation ends the chain.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref.Key(), ctx.Err())
		}

		failure := AsFailure(name, err)
		records = append(records, AttemptRecord{Provider: name, Duration: elapsed, Failure: failure})
		failures = append(failures, failure)

		o.logger.Info("Provider attempt failed",
			zap.String("provider", name),
			zap.String("track", ref.Key()),
			zap.Stringer("reason", failure.Reason),
			zap.Duration("elapsed", elapsed),
			zap.Error(failure.Err))
	}

	o.transition(StateExhausted, ref, len(o.attempts))
	return nil, &ExhaustedError{Reason: aggregateReason(failures), Attempts: records}
}

type outcome struct {
	result *StreamResult
	err    error
}

// try runs one attempt under its own deadline. The provider call runs in a
// separate goroutine that is abandoned once the deadline passes; a late
// result is dropped.
func (o *Orchestrator) try(ctx context.Context, attempt Attempt, ref TrackRef) (*StreamResult, error) {
	name := attempt.Provider.Name()
	attemptCtx, cancel := context.WithTimeout(ctx, attempt.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Provider panicked",
					zap.String("provider", name),
					zap.Any("panic", r))
				done <- outcome{err: NewFailure(name, ReasonUnavailable, fmt.Errorf("panic: %v", r))}
			}
		}()
		result, err := attempt.Provider.Resolve(attemptCtx, ref)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && isContextError(out.err) && attemptCtx.Err() != nil {
			return nil, NewFailure(name, ReasonUnavailable, fmt.Errorf("timed out after %s: %w", attempt.Timeout, out.err))
		}
		return out.result, out.err
	case <-attemptCtx.Done():
		return nil, NewFailure(name, ReasonUnavailable,
			fmt.Errorf("timed out after %s: %w", attempt.Timeout, attemptCtx.Err()))
	}
}

func (o *Orchestrator) transition(state State, ref TrackRef, index int) {
	if ce := o.logger.Check(zap.DebugLevel, "Orchestrator state"); ce != nil {
		fields := []zap.Field{
			zap.Stringer("state", state),
			zap.String("track", ref.Key()),
		}
		if state == StateTrying || state == StateResolved {
			fields = append(fields,
				zap.Int("attempt", index),
				zap.String("provider", o.attempts[index].Provider.Name()))
		}
		ce.Write(fields...)
	}
}
