package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoMirrors is returned when a federated provider has no members.
var ErrNoMirrors = errors.New("no mirrors configured")

// FederatedProvider presents several interchangeable endpoints as one
// logical provider. Members are tried in order within the caller's deadline.
// A failing member is masked as long as another member succeeds.
type FederatedProvider struct {
	name          string
	members       []Provider
	memberTimeout time.Duration
	logger        *zap.Logger
}

// NewFederatedProvider creates a federated provider. memberTimeout bounds each
// member call. With zero, the time left before the caller's deadline is split
// evenly across the members not yet tried.
func NewFederatedProvider(name string, members []Provider, memberTimeout time.Duration, logger *zap.Logger) (*FederatedProvider, error) {
	if len(members) == 0 {
		return nil, ErrNoMirrors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FederatedProvider{
		name:          name,
		members:       members,
		memberTimeout: memberTimeout,
		logger:        logger.Named(name),
	}, nil
}

// Name returns the provider name.
func (p *FederatedProvider) Name() string {
	return p.name
}

// Resolve returns the first member success. When all members fail the most
// informative member reason is reported under the federated name.
func (p *FederatedProvider) Resolve(ctx context.Context, ref TrackRef) (*StreamResult, error) {
	failures := make([]*Failure, 0, len(p.members))
	for i, m := range p.members {
		if err := ctx.Err(); err != nil {
			return nil, NewFailure(p.name, ReasonUnavailable, err)
		}

		result, err := p.resolveMember(ctx, m, ref, len(p.members)-i)
		if err == nil && result != nil && result.URL != "" {
			return result, nil
		}
		if err == nil {
			err = NewFailure(m.Name(), ReasonNoPlayableVariant, ErrNoCandidates)
		}

		failure := AsFailure(m.Name(), err)
		failures = append(failures, failure)
		p.logger.Debug("Mirror failed",
			zap.String("mirror", m.Name()),
			zap.String("track", ref.Key()),
			zap.Stringer("reason", failure.Reason),
			zap.Error(failure.Err))
	}

	reason := aggregateReason(failures)
	return nil, NewFailure(p.name, reason, fmt.Errorf("%d mirrors failed: %w", len(failures), errors.Join(asErrors(failures)...)))
}

// resolveMember calls one member. remaining counts the untried members,
// including m.
func (p *FederatedProvider) resolveMember(ctx context.Context, m Provider, ref TrackRef, remaining int) (*StreamResult, error) {
	timeout := p.memberTimeout
	if timeout <= 0 {
		deadline, ok := ctx.Deadline()
		if !ok || remaining <= 1 {
			return m.Resolve(ctx, ref)
		}
		timeout = time.Until(deadline) / time.Duration(remaining)
	}
	memberCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.Resolve(memberCtx, ref)
}

func asErrors(failures []*Failure) []error {
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return errs
}
