package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"limscore/internal/notification"
	"limscore/internal/refrange"
	"limscore/internal/result/models"
	"limscore/internal/result/store"
	"limscore/pkg/platform/audit"
	"limscore/pkg/requestcontext"

	id "limscore/pkg/domain"
	dErrors "limscore/pkg/domain-errors"
)

// EnterParams carries the fields of a new result entry.
type EnterParams struct {
	AssignmentID   id.AssignmentID
	Value          string
	Unit           string
	Interpretation string
	Remarks        string
	Kind           models.ResultKind
	Source         models.DataSource
}

// EnterOutcome reports the created result plus any non-blocking advisory.
type EnterOutcome struct {
	Result  *models.TestResult
	Warning string
}

// Enter creates a draft result for an assignment. The value is classified
// against the assignment's reference range at entry time and the rendered
// range is snapshotted onto the result.
func (s *Service) Enter(ctx context.Context, tenantID id.TenantID, p id.Principal, params EnterParams) (out *EnterOutcome, err error) {
	start := time.Now()
	defer func() {
		s.observe("enter", err)
		s.metrics.ObserveDuration("enter", start)
	}()

	now := requestcontext.Now(ctx)
	result, err := models.NewTestResult(id.NewResultID(), tenantID, params.AssignmentID, params.Value, params.Kind, params.Source, p.UserID, now)
	if err != nil {
		return nil, err
	}
	result.Unit = params.Unit
	result.Interpretation = params.Interpretation
	result.Remarks = params.Remarks

	cls, err := s.classify(ctx, tenantID, params.AssignmentID, params.Kind, params.Value, "")
	if err != nil {
		return nil, err
	}
	result.Flag = cls.flag
	result.ReferenceRange = cls.rangeText
	if result.Unit == "" {
		result.Unit = cls.unit
	}
	if cls.flag.IsCritical() {
		s.metrics.IncCriticalFlag()
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, tenantID, result); err != nil {
			return translateStoreErr(err)
		}
		_, err := s.trail.Record(txCtx, tenantID, result.ID.String(), audit.ActionResultEntered, p.UserID,
			"result entered for assignment "+params.AssignmentID.String(), "", result.Value)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "result entered",
		"result_id", result.ID,
		"assignment_id", result.AssignmentID,
		"flag", result.Flag,
	)
	return &EnterOutcome{Result: result, Warning: cls.warning}, nil
}

// EditParams carries an in-place change to a draft result. An empty Value
// leaves the value untouched so metadata can be corrected on its own.
type EditParams struct {
	Value          string
	Interpretation string
	Remarks        string
}

// EditOutcome reports the updated result. Changed is false when the request
// matched the stored state exactly and nothing was written.
type EditOutcome struct {
	Result  *models.TestResult
	Changed bool
	Warning string
}

// Edit changes a draft result in place. A value change snapshots the previous
// value, bumps the version and reclassifies the flag; submitting the stored
// value verbatim is a no-op and does not bump the version.
func (s *Service) Edit(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID, params EditParams) (out *EditOutcome, err error) {
	start := time.Now()
	defer func() {
		s.observe("edit", err)
		s.metrics.ObserveDuration("edit", start)
	}()

	var (
		result  *models.TestResult
		warning string
		changed bool
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.Get(txCtx, tenantID, resultID)
		if err != nil {
			return translateStoreErr(err)
		}
		if err := r.CanEdit(); err != nil {
			return err
		}

		readVersion := r.Version
		readStatus := r.Status
		oldValue := r.Value
		valueChanged := params.Value != "" && params.Value != r.Value

		if params.Interpretation != "" && params.Interpretation != r.Interpretation {
			r.Interpretation = params.Interpretation
			changed = true
		}
		if params.Remarks != "" && params.Remarks != r.Remarks {
			r.Remarks = params.Remarks
			changed = true
		}
		if valueChanged {
			cls, err := s.classify(txCtx, tenantID, r.AssignmentID, r.Kind, params.Value, r.Value)
			if err != nil {
				return err
			}
			now := requestcontext.Now(txCtx)
			r.ApplyEdit(params.Value, now)
			r.Flag = cls.flag
			r.DeltaFlag = cls.deltaExceeded
			warning = cls.warning
			changed = true
			if cls.flag.IsCritical() {
				s.metrics.IncCriticalFlag()
			}
		}

		result = r
		if !changed {
			return nil
		}
		r.UpdatedAt = requestcontext.Now(txCtx)

		if err := s.store.Update(txCtx, tenantID, r, readVersion, readStatus); err != nil {
			return translateStoreErr(err)
		}
		_, err = s.trail.Record(txCtx, tenantID, r.ID.String(), audit.ActionResultEdited, p.UserID,
			"draft result edited", oldValue, r.Value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &EditOutcome{Result: result, Changed: changed, Warning: warning}, nil
}

// VerifyOutcome reports the verified result. AlreadyVerified is true when the
// result had been verified before this call; the duplicate submission is
// tolerated and nothing is written.
type VerifyOutcome struct {
	Result          *models.TestResult
	AlreadyVerified bool
}

// Verify transitions a draft result to verified. The run's quality-control
// verdict must be a pass, and the verifier must not be the user who entered
// the result; vendor admins may override the latter for operational recovery.
func (s *Service) Verify(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID) (out *VerifyOutcome, err error) {
	start := time.Now()
	defer func() {
		s.observe("verify", err)
		s.metrics.ObserveDuration("verify", start)
	}()

	// The QC verdict lives in an external system; fetch it before opening
	// the transaction so no network call runs inside it.
	peek, err := s.store.Get(ctx, tenantID, resultID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	qcPassed, err := s.qc.Passed(ctx, tenantID, peek.AssignmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "quality control verdict unavailable")
	}

	var (
		result  *models.TestResult
		already bool
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.Get(txCtx, tenantID, resultID)
		if err != nil {
			return translateStoreErr(err)
		}
		if r.Status == models.StatusVerified {
			result = r
			already = true
			return nil
		}
		if r.EnteredBy == p.UserID && !p.VendorAdmin {
			return dErrors.New(dErrors.CodeForbidden, "results cannot be verified by the user who entered them")
		}
		if err := r.CanVerify(qcPassed); err != nil {
			return err
		}

		readVersion, readStatus := r.Version, r.Status
		r.ApplyVerification(p.UserID, requestcontext.Now(txCtx))
		if err := s.store.Update(txCtx, tenantID, r, readVersion, readStatus); err != nil {
			return translateStoreErr(err)
		}
		_, err = s.trail.Record(txCtx, tenantID, r.ID.String(), audit.ActionResultVerified, p.UserID,
			"result verified", "", r.Value)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !already {
		s.logger.InfoContext(ctx, "result verified", "result_id", result.ID, "verified_by", p.UserID)
	}
	return &VerifyOutcome{Result: result, AlreadyVerified: already}, nil
}

// ReleaseOutcome reports the released result. DeliveryWarning is set when the
// report could not be delivered; the release itself stands regardless.
type ReleaseOutcome struct {
	Result          *models.TestResult
	DeliveryWarning string
}

// Release transitions a verified result to released and triggers outbound
// delivery. Delivery and event publication run after the transaction commits
// and never revert the release.
func (s *Service) Release(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID) (out *ReleaseOutcome, err error) {
	start := time.Now()
	defer func() {
		s.observe("release", err)
		s.metrics.ObserveDuration("release", start)
	}()

	var result *models.TestResult
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.Get(txCtx, tenantID, resultID)
		if err != nil {
			return translateStoreErr(err)
		}
		if err := r.CanRelease(); err != nil {
			return err
		}

		readVersion, readStatus := r.Version, r.Status
		r.ApplyRelease(p.UserID, requestcontext.Now(txCtx))
		if err := s.store.Update(txCtx, tenantID, r, readVersion, readStatus); err != nil {
			return translateStoreErr(err)
		}
		_, err = s.trail.Record(txCtx, tenantID, r.ID.String(), audit.ActionResultReleased, p.UserID,
			"result released", "", r.Value)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := &ReleaseOutcome{Result: result}
	if s.deliverer != nil {
		if err := s.deliverer.DeliverResult(ctx, result); err != nil {
			s.metrics.IncDeliveryFailure()
			s.logger.ErrorContext(ctx, "result delivery failed", "result_id", result.ID, "error", err)
			outcome.DeliveryWarning = "result released but report delivery failed"
		}
	}
	s.publish(ctx, notification.EventResultReleased, result)

	s.logger.InfoContext(ctx, "result released", "result_id", result.ID, "released_by", p.UserID)
	return outcome, nil
}

// AmendParams carries a post-release correction.
type AmendParams struct {
	NewValue string
	Reason   string
}

// AmendOutcome reports the amended result and the amendment row recorded for
// it.
type AmendOutcome struct {
	Result    *models.TestResult
	Amendment models.ResultAmendment
}

// Amend corrects a released (or previously amended) result. The amendment row
// is appended before the result is overwritten so the history cannot lose the
// prior value, and both writes commit together with the audit entry.
func (s *Service) Amend(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID, params AmendParams) (out *AmendOutcome, err error) {
	start := time.Now()
	defer func() {
		s.observe("amend", err)
		s.metrics.ObserveDuration("amend", start)
	}()

	var (
		result    *models.TestResult
		amendment models.ResultAmendment
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.Get(txCtx, tenantID, resultID)
		if err != nil {
			return translateStoreErr(err)
		}
		if err := r.CanAmend(params.NewValue, params.Reason); err != nil {
			return err
		}

		oldValue := r.Value
		cls, err := s.classify(txCtx, tenantID, r.AssignmentID, r.Kind, params.NewValue, oldValue)
		if err != nil {
			return err
		}

		now := requestcontext.Now(txCtx)
		readVersion, readStatus := r.Version, r.Status
		amendment = models.ResultAmendment{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			ResultID:  r.ID,
			OldValue:  r.Value,
			NewValue:  params.NewValue,
			Reason:    params.Reason,
			AmendedBy: p.UserID,
			AmendedAt: now,
		}
		// Amendment row first, result mutation second.
		if err := s.store.AppendAmendment(txCtx, tenantID, amendment); err != nil {
			return translateStoreErr(err)
		}

		r.ApplyAmendment(params.NewValue, now)
		r.Flag = cls.flag
		r.DeltaFlag = cls.deltaExceeded
		if cls.flag.IsCritical() {
			s.metrics.IncCriticalFlag()
		}

		if err := s.store.Update(txCtx, tenantID, r, readVersion, readStatus); err != nil {
			return translateStoreErr(err)
		}
		_, err = s.trail.Record(txCtx, tenantID, r.ID.String(), audit.ActionResultAmended, p.UserID,
			"result amended: "+params.Reason, oldValue, r.Value)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notification.EventResultAmended, result)

	s.logger.InfoContext(ctx, "result amended", "result_id", result.ID, "amended_by", p.UserID)
	return &AmendOutcome{Result: result, Amendment: amendment}, nil
}

// Get returns one result within the tenant.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) (*models.TestResult, error) {
	r, err := s.store.Get(ctx, tenantID, resultID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return r, nil
}

// GetByAssignment returns the result for an assignment within the tenant.
func (s *Service) GetByAssignment(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.TestResult, error) {
	r, err := s.store.FindByAssignment(ctx, tenantID, assignmentID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return r, nil
}

// List returns the tenant's results, newest first, narrowed by the filter.
func (s *Service) List(ctx context.Context, tenantID id.TenantID, filter store.ListFilter) ([]*models.TestResult, error) {
	results, err := s.store.List(ctx, tenantID, filter)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return results, nil
}

// ListAmendments returns a result's amendment history, oldest first.
func (s *Service) ListAmendments(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) ([]models.ResultAmendment, error) {
	amendments, err := s.store.ListAmendments(ctx, tenantID, resultID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return amendments, nil
}

type classification struct {
	flag          id.Flag
	deltaExceeded bool
	rangeText     string
	unit          string
	warning       string
}

// classify evaluates a value against the assignment's reference range.
// Assignments without a configured range classify as normal with no
// advisories. Quantitative values must parse as numbers even when no range
// exists.
func (s *Service) classify(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID, kind models.ResultKind, value, previous string) (classification, error) {
	cls := classification{flag: id.FlagNormal}

	var numeric float64
	if kind == models.KindQuantitative {
		v, err := refrange.ParseNumeric(value)
		if err != nil {
			return cls, dErrors.New(dErrors.CodeValidation, "quantitative result value must be numeric")
		}
		numeric = v
	}

	rng, ok, err := s.ranges.RangeFor(ctx, tenantID, assignmentID)
	if err != nil {
		return cls, dErrors.Wrap(err, dErrors.CodeInternal, "reference range lookup failed")
	}
	if !ok {
		return cls, nil
	}

	cls.rangeText = rng.Text()
	cls.unit = rng.Unit
	switch kind {
	case models.KindQuantitative:
		cls.flag = rng.Classify(numeric)
		cls.warning = rng.SanityWarning(numeric)
		cls.deltaExceeded = rng.DeltaExceeded(previous, value)
	case models.KindQualitative:
		cls.flag = rng.ClassifyQualitative(value)
	}
	return cls, nil
}

// publish emits a domain event after commit. Publication is fire-and-forget;
// a failed publish is logged, never surfaced.
func (s *Service) publish(ctx context.Context, eventType string, result *models.TestResult) {
	if s.notifier == nil {
		return
	}
	event := notification.NewDomainEvent(eventType, map[string]any{
		"result_id":     result.ID.String(),
		"tenant_id":     result.TenantID.String(),
		"assignment_id": result.AssignmentID.String(),
		"status":        string(result.Status),
		"flag":          string(result.Flag),
		"version":       result.Version,
	}, requestcontext.Now(ctx))
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "domain event publish failed", "event_type", eventType, "error", err)
	}
}
