// Package relay forwards one chat message to the completion backend and
// reports the outcome as a value the caller must match on.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Fixed caller-facing messages. Upstream error text never leaves the server.
const (
	MsgEmptyMessage    = "No message provided"
	MsgUpstreamFailure = "An error occurred processing your request"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	// ErrDelivery marks a failure of the caller's onDelta, not of the upstream.
	ErrDelivery = errors.New("delivering partial result failed")
)

// Outcome classifies a relay call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeEmptyMessage
	OutcomeUpstreamFailure
	OutcomeDeliveryFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmptyMessage:
		return "empty_message"
	case OutcomeUpstreamFailure:
		return "upstream_failure"
	case OutcomeDeliveryFailure:
		return "delivery_failure"
	default:
		return "unknown"
	}
}

// Result is the explicit success-or-error-kind of one relay call.
// Text is only meaningful for OutcomeOK; Err is the cause for logging.
type Result struct {
	Outcome Outcome
	Text    string
	Err     error
}

// Completer is the part of the completion backend the relay needs.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
	StreamComplete(ctx context.Context, message string, onDelta func(string) error) (string, error)
}

// Relay is stateless: nothing about a message outlives its call.
type Relay struct {
	completer Completer
}

// New wraps completer.
func New(completer Completer) *Relay {
	return &Relay{completer: completer}
}

// Send forwards message verbatim and returns the first completion's text.
func (r *Relay) Send(ctx context.Context, message string) Result {
	if message == "" {
		return Result{Outcome: OutcomeEmptyMessage, Err: ErrEmptyMessage}
	}

	text, err := r.completer.Complete(ctx, message)
	if err != nil {
		return r.failed(ctx, err)
	}
	return Result{Outcome: OutcomeOK, Text: text}
}

// Stream is Send with incremental delivery through onDelta. An upstream
// failure after some deltas were delivered is still an upstream failure; an
// onDelta error is reported as OutcomeDeliveryFailure.
func (r *Relay) Stream(ctx context.Context, message string, onDelta func(string) error) Result {
	if message == "" {
		return Result{Outcome: OutcomeEmptyMessage, Err: ErrEmptyMessage}
	}

	deliver := func(delta string) error {
		if err := onDelta(delta); err != nil {
			return fmt.Errorf("%w: %w", ErrDelivery, err)
		}
		return nil
	}

	text, err := r.completer.StreamComplete(ctx, message, deliver)
	if errors.Is(err, ErrDelivery) {
		log.Ctx(ctx).Debug().Err(err).Msg("[relay] caller stopped accepting deltas")
		return Result{Outcome: OutcomeDeliveryFailure, Err: err}
	}
	if err != nil {
		return r.failed(ctx, err)
	}
	return Result{Outcome: OutcomeOK, Text: text}
}

func (r *Relay) failed(ctx context.Context, err error) Result {
	log.Ctx(ctx).Error().Err(err).Msg("[relay] upstream completion failed")
	return Result{Outcome: OutcomeUpstreamFailure, Err: err}
}
