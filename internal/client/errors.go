package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Stage names used in error classification and run failure reporting.
const (
	StageNameExtractor   = "frame_extraction"
	StageNameTranscriber = "transcription"
	StageNameSynthesizer = "step_synthesis"
	StageNameMatcher     = "frame_matching"
)

// StageErrorKind classifies a stage client failure.
type StageErrorKind string

const (
	StageErrTimeout            StageErrorKind = "timeout"
	StageErrServiceUnavailable StageErrorKind = "service_unavailable"
	StageErrBadResponse        StageErrorKind = "bad_response"
)

// StageError is the uniform failure type returned by every stage client.
// Whether it fails the run is policy owned by the orchestrator, not the client.
type StageError struct {
	Stage   string
	Kind    StageErrorKind
	Message string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %s", e.Stage, e.Kind, e.Message)
}

// badResponse builds a StageError for a response the service produced but the
// caller cannot accept (non-2xx, success=false, or contract violations).
func badResponse(stage, format string, args ...interface{}) *StageError {
	return &StageError{
		Stage:   stage,
		Kind:    StageErrBadResponse,
		Message: fmt.Sprintf(format, args...),
	}
}

// classifyTransportError maps a transport-level failure to the stage error
// taxonomy: deadline overruns become Timeout, everything else on the wire is
// ServiceUnavailable.
func classifyTransportError(stage string, err error) *StageError {
	kind := StageErrServiceUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = StageErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = StageErrTimeout
	}
	return &StageError{
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
	}
}
