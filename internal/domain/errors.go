package domain

import "errors"

var (
	// ErrExternalUnavailable indicates a gate, knowledge-base or reasoning
	// collaborator was unreachable or timed out. The pipeline propagates it
	// to the caller; a transaction is never silently approved on error.
	ErrExternalUnavailable = errors.New("external collaborator unavailable")

	// ErrInvalidInput indicates an input that violates a declared invariant
	// (score out of range, negative count). Rejected at the pipeline
	// boundary before any decision is made.
	ErrInvalidInput = errors.New("invalid input")
)
