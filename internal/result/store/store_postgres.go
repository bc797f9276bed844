package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"limscore/internal/result/models"
	id "limscore/pkg/domain"
	"limscore/pkg/platform/sentinel"
	txcontext "limscore/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL error code raised when the unique index
// on (tenant_id, assignment_id) rejects a second result for an assignment.
const uniqueViolation = "23505"

// PostgresStore persists results and amendments in PostgreSQL. Every query
// carries the tenant id; a row under another tenant behaves exactly like an
// absent row. Writes pick up a transaction from the context when present so
// the lifecycle's mutation and audit append commit together.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed result store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, tenantID id.TenantID, result *models.TestResult) error {
	if result.TenantID != tenantID {
		return sentinel.ErrInvalidState
	}
	query := `
		INSERT INTO test_results (
			id, tenant_id, assignment_id, value, unit, interpretation, remarks,
			kind, source, status, version, previous_value, flag, delta_flag,
			reference_range, entered_by, entered_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(result.ID),
		uuid.UUID(result.TenantID),
		uuid.UUID(result.AssignmentID),
		result.Value,
		result.Unit,
		result.Interpretation,
		result.Remarks,
		string(result.Kind),
		string(result.Source),
		string(result.Status),
		result.Version,
		result.PreviousValue,
		string(result.Flag),
		result.DeltaFlag,
		result.ReferenceRange,
		uuid.UUID(result.EnteredBy),
		result.EnteredAt,
		result.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

const resultColumns = `
	id, tenant_id, assignment_id, value, unit, interpretation, remarks,
	kind, source, status, version, previous_value, flag, delta_flag,
	reference_range, entered_by, entered_at, verified_by, verified_at,
	released_by, released_at, updated_at
`

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) (*models.TestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM test_results WHERE tenant_id = $1 AND id = $2`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(resultID))
	return scanResult(row)
}

func (s *PostgresStore) FindByAssignment(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.TestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM test_results WHERE tenant_id = $1 AND assignment_id = $2`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(assignmentID))
	return scanResult(row)
}

// Update persists the mutated result guarded by the version AND status the
// caller last read. Status transitions do not bump the version, so the status
// guard is what makes them exclusive: a stale writer that read the row before
// a committed verification fails here even though the version still matches.
// RowsAffected distinguishes a lost race from an absent (or cross-tenant) row.
func (s *PostgresStore) Update(ctx context.Context, tenantID id.TenantID, result *models.TestResult, expectedVersion int, expectedStatus models.ResultStatus) error {
	query := `
		UPDATE test_results SET
			value = $1, unit = $2, interpretation = $3, remarks = $4,
			status = $5, version = $6, previous_value = $7, flag = $8,
			delta_flag = $9, verified_by = $10, verified_at = $11,
			released_by = $12, released_at = $13, updated_at = $14
		WHERE tenant_id = $15 AND id = $16 AND version = $17 AND status = $18
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		result.Value,
		result.Unit,
		result.Interpretation,
		result.Remarks,
		string(result.Status),
		result.Version,
		result.PreviousValue,
		string(result.Flag),
		result.DeltaFlag,
		nullUUID(uuid.UUID(result.VerifiedBy)),
		result.VerifiedAt,
		nullUUID(uuid.UUID(result.ReleasedBy)),
		result.ReleasedAt,
		result.UpdatedAt,
		uuid.UUID(tenantID),
		uuid.UUID(result.ID),
		expectedVersion,
		string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update result rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone (or foreign) or the version/status moved.
		var v int
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT version FROM test_results WHERE tenant_id = $1 AND id = $2`,
			uuid.UUID(tenantID), uuid.UUID(result.ID),
		).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("recheck result version: %w", err)
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) AppendAmendment(ctx context.Context, tenantID id.TenantID, amendment models.ResultAmendment) error {
	query := `
		INSERT INTO result_amendments (
			id, tenant_id, result_id, old_value, new_value, reason, amended_by, amended_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (
			SELECT 1 FROM test_results WHERE tenant_id = $2 AND id = $3
		)
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		amendment.ID,
		uuid.UUID(amendment.TenantID),
		uuid.UUID(amendment.ResultID),
		amendment.OldValue,
		amendment.NewValue,
		amendment.Reason,
		uuid.UUID(amendment.AmendedBy),
		amendment.AmendedAt,
	)
	if err != nil {
		return fmt.Errorf("insert amendment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert amendment rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAmendments(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) ([]models.ResultAmendment, error) {
	if _, err := s.Get(ctx, tenantID, resultID); err != nil {
		return nil, err
	}
	query := `
		SELECT id, tenant_id, result_id, old_value, new_value, reason, amended_by, amended_at
		FROM result_amendments
		WHERE tenant_id = $1 AND result_id = $2
		ORDER BY amended_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(resultID))
	if err != nil {
		return nil, fmt.Errorf("query amendments: %w", err)
	}
	defer rows.Close()

	var out []models.ResultAmendment
	for rows.Next() {
		var (
			a        models.ResultAmendment
			tenant   uuid.UUID
			result   uuid.UUID
			amendedBy uuid.UUID
		)
		if err := rows.Scan(&a.ID, &tenant, &result, &a.OldValue, &a.NewValue, &a.Reason, &amendedBy, &a.AmendedAt); err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		a.TenantID = id.TenantID(tenant)
		a.ResultID = id.ResultID(result)
		a.AmendedBy = id.UserID(amendedBy)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate amendments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID id.TenantID, filter ListFilter) ([]*models.TestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM test_results WHERE tenant_id = $1`
	args := []any{uuid.UUID(tenantID)}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Flag != "" {
		args = append(args, string(filter.Flag))
		query += fmt.Sprintf(" AND flag = $%d", len(args))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	query += " ORDER BY entered_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*models.TestResult
	for rows.Next() {
		r, err := scanResultRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row *sql.Row) (*models.TestResult, error) {
	r, err := scanResultFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return r, err
}

func scanResultRow(rows *sql.Rows) (*models.TestResult, error) {
	return scanResultFrom(rows)
}

func scanResultFrom(sc rowScanner) (*models.TestResult, error) {
	var (
		r            models.TestResult
		resultID     uuid.UUID
		tenantID     uuid.UUID
		assignmentID uuid.UUID
		enteredBy    uuid.UUID
		verifiedBy   uuid.NullUUID
		releasedBy   uuid.NullUUID
		verifiedAt   sql.NullTime
		releasedAt   sql.NullTime
		kind         string
		source       string
		status       string
		flag         string
	)
	err := sc.Scan(
		&resultID, &tenantID, &assignmentID, &r.Value, &r.Unit,
		&r.Interpretation, &r.Remarks, &kind, &source, &status, &r.Version,
		&r.PreviousValue, &flag, &r.DeltaFlag, &r.ReferenceRange,
		&enteredBy, &r.EnteredAt, &verifiedBy, &verifiedAt,
		&releasedBy, &releasedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}
	r.ID = id.ResultID(resultID)
	r.TenantID = id.TenantID(tenantID)
	r.AssignmentID = id.AssignmentID(assignmentID)
	r.Kind = models.ResultKind(kind)
	r.Source = models.DataSource(source)
	r.Status = models.ResultStatus(status)
	r.Flag = id.Flag(flag)
	r.EnteredBy = id.UserID(enteredBy)
	if verifiedBy.Valid {
		r.VerifiedBy = id.UserID(verifiedBy.UUID)
	}
	if releasedBy.Valid {
		r.ReleasedBy = id.UserID(releasedBy.UUID)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		r.VerifiedAt = &t
	}
	if releasedAt.Valid {
		t := releasedAt.Time
		r.ReleasedAt = &t
	}
	return &r, nil
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
