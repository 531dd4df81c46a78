package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chamapay/models"
)

// CheckoutState is the client-side view of one payment attempt.
type CheckoutState string

const (
	StateIdle                   CheckoutState = "idle"
	StateSubmitting             CheckoutState = "submitting"
	StateAwaitingProviderAction CheckoutState = "awaiting_provider_action"
	StateResolvedSuccess        CheckoutState = "resolved_success"
	StateResolvedFailure        CheckoutState = "resolved_failure"
)

// ResolveReason distinguishes why a checkout resolved the way it did.
type ResolveReason string

const (
	ReasonCompleted ResolveReason = "completed"
	ReasonFailed    ResolveReason = "failed"
	ReasonTimeout   ResolveReason = "timeout"
)

type Initiator interface {
	InitiateSTKPush(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error)
}

type StatusQuerier interface {
	GetStatus(ctx context.Context, checkoutRequestID string) (*models.TransactionSnapshot, error)
}

// CheckoutSession drives one payment attempt end to end: submit the push,
// then poll the status contract at a fixed interval until a terminal state
// or the attempt budget is exhausted. The loop is owned by the Submit call
// and dies with its context, so no timer outlives the caller's interest.
type CheckoutSession struct {
	initiator   Initiator
	querier     StatusQuerier
	interval    time.Duration
	maxAttempts int

	mu    sync.Mutex
	state CheckoutState
}

func NewCheckoutSession(initiator Initiator, querier StatusQuerier, interval time.Duration, maxAttempts int) *CheckoutSession {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	return &CheckoutSession{
		initiator:   initiator,
		querier:     querier,
		interval:    interval,
		maxAttempts: maxAttempts,
		state:       StateIdle,
	}
}

func (s *CheckoutSession) State() CheckoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CheckoutSession) setState(state CheckoutState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// CheckoutResult is the resolved outcome of a Submit call.
type CheckoutResult struct {
	State             CheckoutState               `json:"state"`
	Reason            ResolveReason               `json:"reason"`
	CheckoutRequestID string                      `json:"checkoutRequestId"`
	Snapshot          *models.TransactionSnapshot `json:"snapshot,omitempty"`
}

// Submit runs the full flow. A failed session may be resubmitted, which
// re-enters from scratch with a new checkout request id.
func (s *CheckoutSession) Submit(ctx context.Context, req *InitiateRequest) (*CheckoutResult, error) {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateResolvedFailure {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("checkout: cannot submit from state %q", state)
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	resp, err := s.initiator.InitiateSTKPush(ctx, req)
	if err != nil {
		s.setState(StateResolvedFailure)
		return nil, err
	}

	s.setState(StateAwaitingProviderAction)
	return s.poll(ctx, resp.CheckoutRequestID)
}

func (s *CheckoutSession) poll(ctx context.Context, checkoutRequestID string) (*CheckoutResult, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			s.setState(StateResolvedFailure)
			return nil, ctx.Err()

		case <-ticker.C:
			snapshot, err := s.querier.GetStatus(ctx, checkoutRequestID)
			if err != nil {
				// transient; the attempt budget still bounds the loop
				continue
			}

			switch snapshot.Status {
			case models.StatusCompleted:
				s.setState(StateResolvedSuccess)
				return &CheckoutResult{
					State:             StateResolvedSuccess,
					Reason:            ReasonCompleted,
					CheckoutRequestID: checkoutRequestID,
					Snapshot:          snapshot,
				}, nil

			case models.StatusFailed:
				s.setState(StateResolvedFailure)
				return &CheckoutResult{
					State:             StateResolvedFailure,
					Reason:            ReasonFailed,
					CheckoutRequestID: checkoutRequestID,
					Snapshot:          snapshot,
				}, nil
			}
		}
	}

	// No terminal result within budget. Reported as a failure outcome the
	// caller can tell apart from a provider-reported one.
	s.setState(StateResolvedFailure)
	return &CheckoutResult{
		State:             StateResolvedFailure,
		Reason:            ReasonTimeout,
		CheckoutRequestID: checkoutRequestID,
	}, nil
}
