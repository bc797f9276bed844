// Package audit provides the append-only trail of mutating actions. Entries
// are written in the same transaction as the state change they describe; a
// transition that cannot be audited does not happen.
package audit

import (
	"time"

	id "limscore/pkg/domain"
)

// Action labels for lifecycle events. One entry is recorded per mutating
// action; failed sensitive attempts may be recorded too, at the caller's
// discretion.
type Action string

const (
	ActionResultEntered  Action = "result_entered"
	ActionResultEdited   Action = "result_edited"
	ActionResultVerified Action = "result_verified"
	ActionResultReleased Action = "result_released"
	ActionResultAmended  Action = "result_amended"

	// ActionAccessDenied records a failed-but-attempted sensitive action,
	// e.g. a capability check rejecting a transition.
	ActionAccessDenied Action = "access_denied"
)

// Entry is a single audit record. Entries are never updated or deleted after
// creation. The tenant ID is stored by value and the subject reference is a
// plain string so the entry survives deletion of its subject.
type Entry struct {
	ID          string    `json:"id"`
	TenantID    id.TenantID `json:"tenant_id"`
	SubjectType string    `json:"subject_type"`
	SubjectID   string    `json:"subject_id"`
	Action      Action    `json:"action"`
	UserID      id.UserID `json:"user_id"`
	Description string    `json:"description"`
	OldValue    string    `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SubjectTypeResult is the subject type for test result entries.
const SubjectTypeResult = "test_result"
