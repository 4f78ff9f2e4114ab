// Package apperr defines sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Rewrite engine errors.
	ErrLineOutOfRange   = errors.New("line out of range")
	ErrUnrecognizedLink = errors.New("unrecognized link")
	ErrInvalidSize      = errors.New("invalid size")
	ErrInvalidLink      = errors.New("invalid link field")

	// ErrConcurrentEdit is returned by callers that refuse the
	// live-line fallback; the engine itself rewrites the live text.
	ErrConcurrentEdit = errors.New("concurrent edit")

	// ErrUnsupportedFormat marks image content no decoder can size.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)
