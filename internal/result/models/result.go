package models

import (
	"time"

	id "limscore/pkg/domain"
	dErrors "limscore/pkg/domain-errors"
)

// TestResult is the aggregate root for one laboratory result.
//
// Invariants:
//   - TenantID is non-nil and immutable; the result is owned by exactly one
//     tenant and no cross-tenant reference is permitted
//   - AssignmentID is immutable; at most one result exists per assignment
//   - Version starts at 1 and increases by exactly 1 on every value-changing
//     edit or amendment; identical-value writes do not bump it
//   - Status moves only along the edges in ResultStatus.CanTransitionTo
//   - A result is never physically deleted; retention is a compliance
//     requirement, not a storage optimization
//
// The state machine's guards are purely data-driven (status + QC flag). Role
// authorization lives in the capability package; the model never sees roles.
type TestResult struct {
	ID           id.ResultID     `json:"id"`
	TenantID     id.TenantID     `json:"tenant_id"`
	AssignmentID id.AssignmentID `json:"assignment_id"`

	Value          string     `json:"value"`
	Unit           string     `json:"unit,omitempty"`
	Interpretation string     `json:"interpretation,omitempty"`
	Remarks        string     `json:"remarks,omitempty"`
	Kind           ResultKind `json:"kind"`
	Source         DataSource `json:"source"`

	Status        ResultStatus `json:"status"`
	Version       int          `json:"version"`
	PreviousValue string       `json:"previous_value,omitempty"`

	Flag           id.Flag `json:"flag"`
	DeltaFlag      bool    `json:"delta_flag"`
	ReferenceRange string  `json:"reference_range,omitempty"`

	EnteredBy  id.UserID  `json:"entered_by"`
	EnteredAt  time.Time  `json:"entered_at"`
	VerifiedBy id.UserID  `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	ReleasedBy id.UserID  `json:"released_by,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewTestResult constructs a draft result at version 1.
func NewTestResult(resultID id.ResultID, tenantID id.TenantID, assignmentID id.AssignmentID, value string, kind ResultKind, source DataSource, enteredBy id.UserID, now time.Time) (*TestResult, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "result requires a tenant")
	}
	if assignmentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "result requires an assignment")
	}
	if value == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "result value cannot be empty")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown result kind")
	}
	if !source.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown data source")
	}
	return &TestResult{
		ID:           resultID,
		TenantID:     tenantID,
		AssignmentID: assignmentID,
		Value:        value,
		Kind:         kind,
		Source:       source,
		Status:       StatusDraft,
		Version:      1,
		Flag:         id.FlagNormal,
		EnteredBy:    enteredBy,
		EnteredAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CanEdit checks whether the value may still be changed in place.
// Only drafts are editable; released results go through the amendment process.
func (r *TestResult) CanEdit() error {
	if r.Status != StatusDraft {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot edit a %s result", r.Status)
	}
	return nil
}

// ApplyEdit overwrites the value, snapshots the old one and bumps the
// version. Callers must check the value actually changed; identical values
// are a no-op at the service layer and never reach here.
func (r *TestResult) ApplyEdit(newValue string, now time.Time) {
	r.PreviousValue = r.Value
	r.Value = newValue
	r.Version++
	r.UpdatedAt = now
}

// CanVerify checks the verification guards: the result must be a draft and
// instrument/reagent controls for the run must be in range.
func (r *TestResult) CanVerify(qcPassed bool) error {
	if r.Status == StatusVerified {
		// Tolerated double submission; the service reports it as a no-op.
		return nil
	}
	if !r.Status.CanTransitionTo(StatusVerified) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot verify a %s result", r.Status)
	}
	if !qcPassed {
		return dErrors.New(dErrors.CodeInvalidTransition, "quality control has not passed for this run")
	}
	return nil
}

// ApplyVerification transitions the result to verified.
func (r *TestResult) ApplyVerification(user id.UserID, now time.Time) {
	r.Status = StatusVerified
	r.VerifiedBy = user
	r.VerifiedAt = &now
	r.UpdatedAt = now
}

// CanRelease checks that the result has been verified.
func (r *TestResult) CanRelease() error {
	if !r.Status.CanTransitionTo(StatusReleased) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot release a %s result", r.Status)
	}
	return nil
}

// ApplyRelease transitions the result to released. Delivery happens outside
// the transaction and must never revert this.
func (r *TestResult) ApplyRelease(user id.UserID, now time.Time) {
	r.Status = StatusReleased
	r.ReleasedBy = user
	r.ReleasedAt = &now
	r.UpdatedAt = now
}

// CanAmend checks the amendment guards. Correction of the record requires an
// attributable rationale, so an empty reason or an identical value is
// rejected, not silently ignored.
func (r *TestResult) CanAmend(newValue, reason string) error {
	if !r.Status.CanTransitionTo(StatusAmended) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot amend a %s result", r.Status)
	}
	if reason == "" {
		return dErrors.New(dErrors.CodeInvalidAmendment, "a reason for amendment is required")
	}
	if newValue == "" || newValue == r.Value {
		return dErrors.New(dErrors.CodeInvalidAmendment, "amendment must change the value")
	}
	return nil
}

// ApplyAmendment overwrites the value and marks the result amended. The
// amendment row must already have been appended: write amendment, then
// mutate the result, never the reverse order.
func (r *TestResult) ApplyAmendment(newValue string, now time.Time) {
	r.PreviousValue = r.Value
	r.Value = newValue
	r.Version++
	r.Status = StatusAmended
	r.UpdatedAt = now
}
