package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is against these.
var (
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrConfiguration      = errors.New("invalid configuration")
	ErrEmbeddingDimension = errors.New("embedding dimension mismatch")
	ErrDuplicateDocument  = errors.New("duplicate document")
	ErrStorageUnavailable = errors.New("vector storage unavailable")
	ErrEmbeddingProvider  = errors.New("embedding provider failed")
	ErrGeneration         = errors.New("generation failed")
	ErrStreamCancelled    = errors.New("stream cancelled")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// OpError describes a failed call to an external collaborator.
type OpError struct {
	Kind       error
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OpError) Error() string {
	if e == nil {
		return "operation failed"
	}
	kind := "operation failed"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	msg := fmt.Sprintf("%s (op=%s", kind, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// NewOpError builds an OpError of the given kind.
func NewOpError(kind error, op, msg string, cause error) *OpError {
	return &OpError{Kind: kind, Op: op, Message: msg, Cause: cause}
}

// DimensionError reports a vector whose length does not match the index.
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index=%d vector=%d", e.Expected, e.Got)
}

// Is lets a DimensionError match both ErrEmbeddingDimension and ErrConfiguration.
func (e *DimensionError) Is(target error) bool {
	return target == ErrEmbeddingDimension || target == ErrConfiguration
}

// DuplicateError signals that a document with the same doc_id is already indexed.
// It is an expected outcome rather than a failure.
type DuplicateError struct {
	DocumentID string
	Filename   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("document %q already indexed (doc_id=%s)", e.Filename, e.DocumentID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateDocument }

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// UnsupportedFormatError names the extension that could not be processed.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format %q", e.Extension)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }
