package models

import (
	"time"

	id "limscore/pkg/domain"
)

// ResultAmendment is one amendment event on an already-released result.
// Rows are created once and never mutated, and the row is written strictly
// before the result's value is overwritten so the history stays unbroken
// even under partial failure.
type ResultAmendment struct {
	ID        string      `json:"id"`
	TenantID  id.TenantID `json:"tenant_id"`
	ResultID  id.ResultID `json:"result_id"`
	OldValue  string      `json:"old_value"`
	NewValue  string      `json:"new_value"`
	Reason    string      `json:"reason"`
	AmendedBy id.UserID   `json:"amended_by"`
	AmendedAt time.Time   `json:"amended_at"`
}
