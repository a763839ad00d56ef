package engine

import (
	"errors"
	"fmt"
)

// Kind classifies a render failure for the caller.
type Kind string

const (
	// KindInputValidation covers missing or corrupt media, empty required
	// content, and non-positive durations. Fatal, surfaced before any
	// rendering work begins.
	KindInputValidation Kind = "input-validation"
	// KindResourceExhaustion covers insufficient storage and critical
	// memory detected before work starts. Fatal for this attempt.
	KindResourceExhaustion Kind = "resource-exhaustion"
	// KindPipelineFailure covers segment, stitch, and export failures.
	// Retryable with the same inputs.
	KindPipelineFailure Kind = "pipeline-failure"
	// KindCancelled is the distinct terminal state for user- or
	// memory-pressure-initiated cancellation. Never a generic failure.
	KindCancelled Kind = "cancelled"
	// KindOverlayDegradation reports pervasive overlay fallback; isolated
	// overlay failures degrade silently instead.
	KindOverlayDegradation Kind = "overlay-degradation"
)

// RecoveryHint tells the caller what to do about a failure.
type RecoveryHint string

const (
	HintNone        RecoveryHint = "none"
	HintRetry       RecoveryHint = "retry"
	HintFreeStorage RecoveryHint = "free-storage"
)

// Error is the typed failure surfaced at the engine boundary. Every failure
// carries a human-readable description and a concrete recovery hint.
type Error struct {
	Kind  Kind
	Phase Phase
	Hint  RecoveryHint
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s during %s: %v", e.Kind, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s during %s", e.Kind, e.Phase)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage renders the failure for an end user: what happened and what
// to do about it.
func (e *Error) UserMessage() string {
	var what, action string
	switch e.Kind {
	case KindInputValidation:
		what = "The provided photos or content could not be used"
		action = "Check that every required photo is present and readable, then try again."
	case KindResourceExhaustion:
		what = "Not enough free memory or storage to render"
		action = "Free up space, close other work, then retry."
	case KindPipelineFailure:
		what = "Rendering failed partway through"
		action = "Retrying usually succeeds; the same plan can be rendered again."
	case KindCancelled:
		what = "The render was cancelled"
		action = "Start a new render when ready."
	case KindOverlayDegradation:
		what = "Text overlays could not be drawn reliably"
		action = "Retry; if it persists, simplify the overlay text."
	default:
		what = "Rendering failed"
		action = "Retry."
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%v). %s", what, e.Err, action)
	}
	return fmt.Sprintf("%s. %s", what, action)
}

func hintFor(kind Kind) RecoveryHint {
	switch kind {
	case KindPipelineFailure, KindOverlayDegradation:
		return HintRetry
	case KindResourceExhaustion:
		return HintFreeStorage
	default:
		return HintNone
	}
}

func newError(kind Kind, phase Phase, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Hint: hintFor(kind), Err: err}
}

// KindOf extracts the failure kind, or empty for non-engine errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsCancelled reports whether err is the cancellation terminal state.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}
