package audit

import (
	"context"
	"fmt"
	"log/slog"

	id "limscore/pkg/domain"
	"limscore/pkg/requestcontext"

	"github.com/google/uuid"
)

// Store persists audit entries. Append is strictly additive; implementations
// must honor a transaction carried in the context so the entry commits or
// rolls back with the state mutation it describes.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]Entry, error)
	ListBySubject(ctx context.Context, tenantID id.TenantID, subjectID string) ([]Entry, error)
}

// Trail records audit entries with fail-closed semantics: if the append
// fails, the error propagates and the enclosing transaction must abort. An
// unaudited transition is a compliance defect equivalent to a lost update.
type Trail struct {
	store  Store
	logger *slog.Logger
}

// Option configures the Trail.
type Option func(*Trail)

// WithLogger sets a logger for append failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) { t.logger = logger }
}

// NewTrail constructs a Trail over the given store.
func NewTrail(store Store, opts ...Option) *Trail {
	t := &Trail{store: store}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends one entry for a mutating action. The timestamp and client IP
// come from the request context so every record written during one request
// agrees with the state it describes.
func (t *Trail) Record(ctx context.Context, tenantID id.TenantID, subjectID string, action Action, user id.UserID, description, oldValue, newValue string) (Entry, error) {
	if tenantID.IsNil() {
		return Entry{}, fmt.Errorf("audit entry requires a tenant id")
	}
	if action == "" {
		return Entry{}, fmt.Errorf("audit entry requires an action")
	}

	entry := Entry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		SubjectType: SubjectTypeResult,
		SubjectID:   subjectID,
		Action:      action,
		UserID:      user,
		Description: description,
		OldValue:    oldValue,
		NewValue:    newValue,
		ClientIP:    requestcontext.ClientIP(ctx),
		Timestamp:   requestcontext.Now(ctx),
	}

	if err := t.store.Append(ctx, entry); err != nil {
		if t.logger != nil {
			t.logger.ErrorContext(ctx, "CRITICAL: audit append failed",
				"action", action,
				"subject_id", subjectID,
				"error", err,
			)
		}
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return entry, nil
}

// ListByTenant returns all entries for a tenant, newest first.
func (t *Trail) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]Entry, error) {
	return t.store.ListByTenant(ctx, tenantID)
}

// ListBySubject returns all entries for one subject within a tenant, newest
// first. The subject may no longer exist; entries outlive their subjects.
func (t *Trail) ListBySubject(ctx context.Context, tenantID id.TenantID, subjectID string) ([]Entry, error) {
	return t.store.ListBySubject(ctx, tenantID, subjectID)
}
