package rag

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidScope      = errors.New("invalid tenant scope")
	ErrIndexUnavailable  = errors.New("vector index unavailable")
	ErrUpstreamTimeout   = errors.New("upstream call timed out")
	ErrUpstreamError     = errors.New("upstream call failed")
	ErrInputRejected     = errors.New("upstream rejected input")
	ErrInvalidChunking   = errors.New("invalid chunking parameters")
	ErrChatbotNotFound   = errors.New("chatbot not found")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrShareIDTaken      = errors.New("share id already in use")
)

// NoOrdinal marks an EmbeddingError raised for a query rather than a chunk.
const NoOrdinal = -1

// EmbeddingError reports a failure to vectorize one text.
type EmbeddingError struct {
	Ordinal  int
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	if e.Ordinal == NoOrdinal {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding chunk %d failed after %d attempt(s): %v", e.Ordinal, e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError reports a failed language-model call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PartialUploadError is returned when a batched upsert stops partway.
// Committed records are durable; the remaining Attempted-Committed were not written.
type PartialUploadError struct {
	Committed int
	Attempted int
	Err       error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("upsert partially committed (%d of %d): %v", e.Committed, e.Attempted, e.Err)
}

func (e *PartialUploadError) Unwrap() error { return e.Err }

// Remaining is the number of records that still need to be written.
func (e *PartialUploadError) Remaining() int {
	return e.Attempted - e.Committed
}
