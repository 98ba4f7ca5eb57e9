package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tianzhicdev/dogetionary-sub008/pkg/download"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// ErrStopped is returned by Run when the context was cancelled before every
// word was attempted.
var ErrStopped = errors.New("pipeline stopped before all words were processed")

// OutcomeKind tags the result of one stage.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
	OutcomeSkip
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	case OutcomeSkip:
		return "skip"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is a stage result as the driver sees it.
type Outcome struct {
	Kind   OutcomeKind
	Err    error
	Reason string
}

// SkipError marks an expected, non-failing reason to drop a candidate or word.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// Skip returns a SkipError for reason.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Classify maps a stage error onto an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess}
	}
	var skip *SkipError
	switch {
	case errors.As(err, &skip):
		return Outcome{Kind: OutcomeSkip, Err: err, Reason: skip.Reason}
	case errors.Is(err, download.ErrExpiredReference),
		apperrors.Is(err, apperrors.ErrCodeExpiredReference):
		return Outcome{Kind: OutcomeSkip, Err: err, Reason: "download reference expired"}
	case apperrors.IsFatal(err):
		return Outcome{Kind: OutcomeFatal, Err: err, Reason: "configuration"}
	case apperrors.IsRetryable(err),
		errors.Is(err, context.DeadlineExceeded):
		return Outcome{Kind: OutcomeRetryable, Err: err, Reason: string(apperrors.GetCode(err))}
	default:
		return Outcome{Kind: OutcomeRetryable, Err: err, Reason: "unexpected error"}
	}
}

// WordState is the position of a word in the stage sequence.
type WordState string

const (
	StatePending  WordState = "pending"
	StateSearched WordState = "searched"
	StateFiltered WordState = "filtered"
	StateVerified WordState = "verified"
	StateIngested WordState = "ingested"
	StateDone     WordState = "done"
	StateFailed   WordState = "failed"
	StateSkipped  WordState = "skipped"
)
