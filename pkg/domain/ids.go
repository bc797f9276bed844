// Package domain holds the identifier and value types shared across the
// lifecycle engine. IDs are distinct uuid wrappers so a TenantID can never be
// passed where a ResultID is expected; tenant scoping is a type-level fact,
// not a query filter.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type (
	// TenantID identifies a laboratory vendor. Every record the engine
	// reads or writes is partitioned by this identity.
	TenantID uuid.UUID

	// ResultID identifies a test result row.
	ResultID uuid.UUID

	// AssignmentID identifies the test/sample assignment a result belongs
	// to. At most one result exists per assignment.
	AssignmentID uuid.UUID

	// UserID identifies an acting laboratory user.
	UserID uuid.UUID
)

func (t TenantID) String() string     { return uuid.UUID(t).String() }
func (r ResultID) String() string     { return uuid.UUID(r).String() }
func (a AssignmentID) String() string { return uuid.UUID(a).String() }
func (u UserID) String() string       { return uuid.UUID(u).String() }

func (t TenantID) IsNil() bool     { return uuid.UUID(t) == uuid.Nil }
func (r ResultID) IsNil() bool     { return uuid.UUID(r) == uuid.Nil }
func (a AssignmentID) IsNil() bool { return uuid.UUID(a) == uuid.Nil }
func (u UserID) IsNil() bool       { return uuid.UUID(u) == uuid.Nil }

// NewResultID returns a fresh result identifier.
func NewResultID() ResultID { return ResultID(uuid.New()) }

// ParseTenantID validates and returns a TenantID from external input.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	return TenantID(u), nil
}

// ParseResultID validates and returns a ResultID from external input.
func ParseResultID(s string) (ResultID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ResultID{}, fmt.Errorf("invalid result id: %w", err)
	}
	return ResultID(u), nil
}

// ParseAssignmentID validates and returns an AssignmentID from external input.
func ParseAssignmentID(s string) (AssignmentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AssignmentID{}, fmt.Errorf("invalid assignment id: %w", err)
	}
	return AssignmentID(u), nil
}

// ParseUserID validates and returns a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user id: %w", err)
	}
	return UserID(u), nil
}
