package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoUser indicates an operation that needs an identity ran without one
	ErrNoUser = errors.New("no user signed in")
	// ErrUnsupportedMedia indicates a file outside the image/video/audio allow-list
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrNothingStaged indicates submit was called with no file attached
	ErrNothingStaged = errors.New("no file staged")
	// ErrSubmissionInFlight indicates a submission is already outstanding
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrMalformedResponse indicates the backend replied with an unknown shape
	ErrMalformedResponse = errors.New("malformed detection response")
)

// FailureKind classifies a failed submission for the user
type FailureKind string

const (
	FailureValidation   FailureKind = "validation"
	FailureConnectivity FailureKind = "connectivity"
	FailureServer       FailureKind = "server"
	FailureUnknown      FailureKind = "unknown"
)

// SubmitError is returned by a failed submission
type SubmitError struct {
	Kind   FailureKind
	Status int
	Detail string
	Err    error
}

func (e *SubmitError) Error() string {
	switch e.Kind {
	case FailureServer:
		return fmt.Sprintf("server error %d: %s", e.Status, e.Detail)
	case FailureConnectivity:
		return fmt.Sprintf("backend unreachable: %v", e.Err)
	default:
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	}
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ValidationError is returned when a file is rejected at intake
type ValidationError struct {
	Name     string
	MIMEType string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rejected %q (%s): %s", e.Name, e.MIMEType, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrUnsupportedMedia }
