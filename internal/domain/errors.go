package domain

import "errors"

// Sentinel errors shared across layers. Wrap them with goerr to attach values.
var (
	ErrCaseNotFound     = errors.New("case not found")
	ErrResourceNotFound = errors.New("resource not found")

	// ErrRetrievalUnavailable marks a failed embedding or vector index call.
	// Retrieval absorbs it with the catalog-order fallback.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrNarrativeGeneration marks a failed or unparseable text-generation call.
	// Narrative call sites return their documented default alongside it.
	ErrNarrativeGeneration = errors.New("narrative generation failed")

	ErrInvalidRecord = errors.New("invalid record")
)

// Keys for goerr values.
const (
	CaseIDKey     = "case_id"
	ResourceIDKey = "resource_id"
	OperationKey  = "operation"
)

// IsNotFound reports whether err refers to a missing case or resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCaseNotFound) || errors.Is(err, ErrResourceNotFound)
}
