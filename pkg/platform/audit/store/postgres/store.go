package postgres

import (
	"context"
	"database/sql"
	"fmt"

	id "limscore/pkg/domain"
	audit "limscore/pkg/platform/audit"
	txcontext "limscore/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store persists audit entries in PostgreSQL. The audit_log table has no
// UPDATE or DELETE path; rows are inserted inside the caller's transaction
// when one is carried in the context.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	query := `
		INSERT INTO audit_log (
			id, tenant_id, subject_type, subject_id, action, user_id,
			description, old_value, new_value, client_ip, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		uuid.UUID(entry.TenantID),
		entry.SubjectType,
		nullString(entry.SubjectID),
		string(entry.Action),
		uuid.UUID(entry.UserID),
		entry.Description,
		nullString(entry.OldValue),
		nullString(entry.NewValue),
		nullString(entry.ClientIP),
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]audit.Entry, error) {
	query := `
		SELECT id, tenant_id, subject_type, subject_id, action, user_id,
			   description, old_value, new_value, client_ip, created_at
		FROM audit_log
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *Store) ListBySubject(ctx context.Context, tenantID id.TenantID, subjectID string) ([]audit.Entry, error) {
	query := `
		SELECT id, tenant_id, subject_type, subject_id, action, user_id,
			   description, old_value, new_value, client_ip, created_at
		FROM audit_log
		WHERE tenant_id = $1 AND subject_id = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID), subjectID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by subject: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			tenantID uuid.UUID
			userID   uuid.UUID
			subject  sql.NullString
			oldVal   sql.NullString
			newVal   sql.NullString
			clientIP sql.NullString
			action   string
		)
		if err := rows.Scan(
			&e.ID, &tenantID, &e.SubjectType, &subject, &action, &userID,
			&e.Description, &oldVal, &newVal, &clientIP, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.TenantID = id.TenantID(tenantID)
		e.UserID = id.UserID(userID)
		e.SubjectID = subject.String
		e.Action = audit.Action(action)
		e.OldValue = oldVal.String
		e.NewValue = newVal.String
		e.ClientIP = clientIP.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
