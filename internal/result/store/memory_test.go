package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"limscore/internal/result/models"
	id "limscore/pkg/domain"
	"limscore/pkg/platform/sentinel"
)

type ResultStoreSuite struct {
	suite.Suite
	store  *InMemoryStore
	ctx    context.Context
	tenant id.TenantID
}

func (s *ResultStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
}

func TestResultStoreSuite(t *testing.T) {
	suite.Run(t, new(ResultStoreSuite))
}

func (s *ResultStoreSuite) newResult(tenant id.TenantID) *models.TestResult {
	r, err := models.NewTestResult(
		id.NewResultID(),
		tenant,
		id.AssignmentID(uuid.New()),
		"150",
		models.KindQuantitative,
		models.SourceManual,
		id.UserID(uuid.New()),
		time.Now(),
	)
	s.Require().NoError(err)
	return r
}

func (s *ResultStoreSuite) TestCreateAndGet() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	found, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	s.Equal(r.Value, found.Value)
	s.Equal(1, found.Version)
}

func (s *ResultStoreSuite) TestOneResultPerAssignment() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	dup := s.newResult(s.tenant)
	dup.AssignmentID = r.AssignmentID
	err := s.store.Create(s.ctx, s.tenant, dup)
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)

	// No second row was created.
	found, err := s.store.FindByAssignment(s.ctx, s.tenant, r.AssignmentID)
	s.Require().NoError(err)
	s.Equal(r.ID, found.ID)
}

func (s *ResultStoreSuite) TestCrossTenantReadsAreNotFound() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	otherTenant := id.TenantID(uuid.New())

	_, err := s.store.Get(s.ctx, otherTenant, r.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByAssignment(s.ctx, otherTenant, r.AssignmentID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.Update(s.ctx, otherTenant, r, r.Version, r.Status)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ResultStoreSuite) TestSameAssignmentAcrossTenants() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	// Another tenant reusing the same assignment ID is not a duplicate;
	// the uniqueness index is scoped per tenant.
	otherTenant := id.TenantID(uuid.New())
	other := s.newResult(otherTenant)
	other.AssignmentID = r.AssignmentID
	s.Require().NoError(s.store.Create(s.ctx, otherTenant, other))

	mine, err := s.store.FindByAssignment(s.ctx, s.tenant, r.AssignmentID)
	s.Require().NoError(err)
	s.Equal(r.ID, mine.ID)

	theirs, err := s.store.FindByAssignment(s.ctx, otherTenant, r.AssignmentID)
	s.Require().NoError(err)
	s.Equal(other.ID, theirs.ID)
}

func (s *ResultStoreSuite) TestOptimisticConcurrency() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	// Two callers read version 1.
	first, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	second, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)

	first.ApplyEdit("160", time.Now())
	s.Require().NoError(s.store.Update(s.ctx, s.tenant, first, 1, models.StatusDraft))

	second.ApplyEdit("170", time.Now())
	err = s.store.Update(s.ctx, s.tenant, second, 1, models.StatusDraft)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	// The winner's value stuck.
	found, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	s.Equal("160", found.Value)
	s.Equal(2, found.Version)
}

func (s *ResultStoreSuite) TestStaleWriterLosesAfterStatusTransition() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	// Two callers read the draft at version 1.
	verifying, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	editing, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)

	verifier := id.UserID(uuid.New())
	verifying.ApplyVerification(verifier, time.Now())
	s.Require().NoError(s.store.Update(s.ctx, s.tenant, verifying, 1, models.StatusDraft))

	// Verification did not bump the version, so the stale editor still
	// matches on version alone; the status guard must reject it.
	editing.ApplyEdit("160", time.Now())
	err = s.store.Update(s.ctx, s.tenant, editing, 1, models.StatusDraft)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	found, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, found.Status)
	s.Equal("150", found.Value)
	s.Equal(verifier, found.VerifiedBy)
}

func (s *ResultStoreSuite) TestAmendments() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	a := models.ResultAmendment{
		ID:        uuid.NewString(),
		TenantID:  s.tenant,
		ResultID:  r.ID,
		OldValue:  "150",
		NewValue:  "160",
		Reason:    "transcription error",
		AmendedBy: id.UserID(uuid.New()),
		AmendedAt: time.Now(),
	}
	s.Require().NoError(s.store.AppendAmendment(s.ctx, s.tenant, a))

	list, err := s.store.ListAmendments(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("150", list[0].OldValue)
	s.Equal("160", list[0].NewValue)

	// Amendments are invisible across tenants.
	_, err = s.store.ListAmendments(s.ctx, id.TenantID(uuid.New()), r.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ResultStoreSuite) TestListFilters() {
	draft := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, draft))

	verified := s.newResult(s.tenant)
	verified.ApplyVerification(id.UserID(uuid.New()), time.Now())
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, verified))

	foreign := s.newResult(id.TenantID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, foreign.TenantID, foreign))

	all, err := s.store.List(s.ctx, s.tenant, ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 2)

	drafts, err := s.store.List(s.ctx, s.tenant, ListFilter{Status: models.StatusDraft})
	s.Require().NoError(err)
	s.Require().Len(drafts, 1)
	s.Equal(draft.ID, drafts[0].ID)
}

func (s *ResultStoreSuite) TestGetReturnsCopy() {
	r := s.newResult(s.tenant)
	s.Require().NoError(s.store.Create(s.ctx, s.tenant, r))

	found, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	found.Value = "tampered"

	again, err := s.store.Get(s.ctx, s.tenant, r.ID)
	s.Require().NoError(err)
	s.Equal("150", again.Value)
}
