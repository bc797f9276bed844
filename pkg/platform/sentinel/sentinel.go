package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors with codes.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store (or belongs to another tenant)
// - ErrConflict: stored version differs from the version the caller read
// - ErrAlreadyUsed: uniqueness slot (e.g. an assignment) is already taken
// - ErrInvalidState: entity is in the wrong state for the requested operation
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
