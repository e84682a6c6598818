// Package faults classifies failures into categories with recovery hints.
//
// Every error surfaced to callers maps to a Category carrying a short,
// human-actionable suggestion and a CanRetry flag, so the calling layer can
// decide whether to re-invoke automatically or prompt for action.
package faults

import (
	"context"
	"errors"
)

// Sentinel errors for the failure taxonomy. Wrap them with fmt.Errorf("...: %w", ...)
// so Classify can recover the category through the chain.
var (
	// ErrEmptyInput marks a request whose text content is blank.
	ErrEmptyInput = errors.New("empty input")

	// ErrDimensionMismatch marks a vector whose length differs from the
	// index's fixed dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCorruptIndex marks a persisted knowledge base whose companion
	// artifacts disagree (e.g. vector and chunk counts differ).
	ErrCorruptIndex = errors.New("corrupt knowledge base")

	// ErrEmbeddingFailure marks a per-text embedding failure. Non-fatal:
	// the affected text degrades to a neutral vector.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrTransientIO marks a disk or network hiccup that is safe to retry.
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrResourceExhausted marks memory or disk pressure. Operations
	// proceed past the soft watermark with a warning; the hard cap fails fast.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Category names a failure class.
type Category string

const (
	CategoryEmptyInput        Category = "empty_input"
	CategoryDimensionMismatch Category = "dimension_mismatch"
	CategoryCorruptIndex      Category = "corrupt_index"
	CategoryEmbeddingFailure  Category = "embedding_failure"
	CategoryTransientIO       Category = "transient_io"
	CategoryResourceExhausted Category = "resource_exhausted"
	CategoryCancelled         Category = "cancelled"
	CategoryUnknown           Category = "unknown"
)

// Report is the user-visible classification of a failure.
type Report struct {
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion"`
	CanRetry   bool     `json:"can_retry"`
}

// Classify maps an error to its Report. A nil error returns a zero Report.
func Classify(err error) Report {
	if err == nil {
		return Report{}
	}

	r := Report{Message: err.Error()}
	switch {
	case errors.Is(err, ErrEmptyInput):
		r.Category = CategoryEmptyInput
		r.Suggestion = "provide non-empty document text"
	case errors.Is(err, ErrDimensionMismatch):
		r.Category = CategoryDimensionMismatch
		r.Suggestion = "re-ingest with the embedding model the index was built with, or clear the knowledge base first"
	case errors.Is(err, ErrCorruptIndex):
		r.Category = CategoryCorruptIndex
		r.Suggestion = "the saved knowledge base artifacts do not match; rebuild it by re-ingesting the documents"
	case errors.Is(err, ErrEmbeddingFailure):
		r.Category = CategoryEmbeddingFailure
		r.Suggestion = "the affected text was indexed with a neutral vector; check the embedding provider logs"
		r.CanRetry = true
	case errors.Is(err, ErrTransientIO):
		r.Category = CategoryTransientIO
		r.Suggestion = "retry the operation; check disk space and network connectivity if it persists"
		r.CanRetry = true
	case errors.Is(err, ErrResourceExhausted):
		r.Category = CategoryResourceExhausted
		r.Suggestion = "free memory or disk space, or reduce max_workers and batch sizes"
		r.CanRetry = true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.Category = CategoryCancelled
		r.Suggestion = "the operation was cancelled; re-submit it to run again"
	default:
		r.Category = CategoryUnknown
		r.Suggestion = "check the server logs for details"
	}
	return r
}

// IsTransient reports whether err is safe to retry automatically.
func IsTransient(err error) bool {
	return Classify(err).CanRetry
}
