// Package service implements the result lifecycle engine. It owns the
// transaction boundary: every mutating operation runs the result mutation and
// its audit append inside one transaction, so an unaudited transition cannot
// commit. Role checks happen in the transport layer before the service is
// invoked; the only authorization the service enforces itself is the
// data-dependent self-verification guard.
package service

import (
	"context"
	"errors"
	"log/slog"

	"limscore/internal/delivery"
	"limscore/internal/notification"
	"limscore/internal/qc"
	"limscore/internal/refrange"
	"limscore/internal/result/metrics"
	"limscore/internal/result/models"
	"limscore/internal/result/store"
	"limscore/pkg/platform/audit"
	"limscore/pkg/platform/sentinel"

	id "limscore/pkg/domain"
	dErrors "limscore/pkg/domain-errors"
)

// ResultStore is the persistence surface the lifecycle depends on. All
// methods are tenant-qualified; a row under another tenant is reported as
// absent, never as forbidden.
type ResultStore interface {
	Create(ctx context.Context, tenantID id.TenantID, result *models.TestResult) error
	Get(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) (*models.TestResult, error)
	FindByAssignment(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.TestResult, error)
	Update(ctx context.Context, tenantID id.TenantID, result *models.TestResult, expectedVersion int, expectedStatus models.ResultStatus) error
	AppendAmendment(ctx context.Context, tenantID id.TenantID, amendment models.ResultAmendment) error
	ListAmendments(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) ([]models.ResultAmendment, error)
	List(ctx context.Context, tenantID id.TenantID, filter store.ListFilter) ([]*models.TestResult, error)
}

// Service orchestrates the draft -> verified -> released -> amended lifecycle.
type Service struct {
	store     ResultStore
	trail     *audit.Trail
	tx        StoreTx
	ranges    refrange.Source
	qc        qc.Checker
	deliverer delivery.Deliverer
	notifier  notification.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics enables lifecycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDeliverer sets the post-release delivery collaborator.
func WithDeliverer(d delivery.Deliverer) Option {
	return func(s *Service) { s.deliverer = d }
}

// WithNotifier sets the domain event publisher.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithStoreTx overrides the transaction boundary. The default serializes
// in-process, which matches the in-memory store; PostgreSQL deployments pass
// NewPostgresTx so the store's context transaction is honored.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

// New constructs the lifecycle service.
func New(resultStore ResultStore, trail *audit.Trail, ranges refrange.Source, checker qc.Checker, opts ...Option) *Service {
	s := &Service{
		store:  resultStore,
		trail:  trail,
		tx:     newInMemoryStoreTx(),
		ranges: ranges,
		qc:     checker,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// translateStoreErr maps store sentinels onto domain errors. Anything
// unrecognized is an infrastructure failure.
func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "result not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "result was modified concurrently, retry with fresh state")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeAlreadyExists, "assignment already has a result")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "result store failure")
	}
}

func (s *Service) observe(action string, err error) string {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			outcome = "error"
		}
	}
	s.metrics.IncTransition(action, outcome)
	return outcome
}
