//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"limscore/internal/result/models"
	"limscore/internal/result/store"
	id "limscore/pkg/domain"
	"limscore/pkg/platform/sentinel"
	"limscore/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "result_amendments", "test_results")
	s.Require().NoError(err)
}

func newTestResult(tenantID id.TenantID) *models.TestResult {
	now := time.Now().UTC().Truncate(time.Microsecond)
	r, _ := models.NewTestResult(
		id.NewResultID(),
		tenantID,
		id.AssignmentID(uuid.New()),
		"95",
		models.KindQuantitative,
		models.SourceManual,
		id.UserID(uuid.New()),
		now,
	)
	return r
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundTrip() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	r := newTestResult(tenant)
	r.Unit = "mg/dL"
	r.ReferenceRange = "70 - 110 mg/dL"

	s.Require().NoError(s.store.Create(ctx, tenant, r))

	got, err := s.store.Get(ctx, tenant, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, got.ID)
	s.Equal(r.Value, got.Value)
	s.Equal(r.Unit, got.Unit)
	s.Equal(models.StatusDraft, got.Status)
	s.Equal(1, got.Version)
	s.Nil(got.VerifiedAt)
	s.Nil(got.ReleasedAt)
}

func (s *PostgresStoreSuite) TestUniqueIndexRejectsConcurrentDuplicates() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	assignment := id.AssignmentID(uuid.New())
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := newTestResult(tenant)
			r.AssignmentID = assignment
			err := s.store.Create(ctx, tenant, r)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

func (s *PostgresStoreSuite) TestCrossTenantGetIsNotFound() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	other := id.TenantID(uuid.New())
	r := newTestResult(tenant)
	s.Require().NoError(s.store.Create(ctx, tenant, r))

	_, err := s.store.Get(ctx, other, r.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByAssignment(ctx, other, r.AssignmentID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateVersionCheck() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	r := newTestResult(tenant)
	s.Require().NoError(s.store.Create(ctx, tenant, r))

	r.ApplyEdit("100", time.Now().UTC())
	s.Require().NoError(s.store.Update(ctx, tenant, r, 1, models.StatusDraft))

	// A writer still holding version 1 loses.
	stale := *r
	stale.Value = "101"
	err := s.store.Update(ctx, tenant, &stale, 1, models.StatusDraft)
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(ctx, tenant, r.ID)
	s.Require().NoError(err)
	s.Equal("100", got.Value)
	s.Equal(2, got.Version)
	s.Equal("95", got.PreviousValue)
}

func (s *PostgresStoreSuite) TestUpdateMissingRowIsNotFound() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	r := newTestResult(tenant)

	err := s.store.Update(ctx, tenant, r, 1, models.StatusDraft)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateStatusCheck() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	r := newTestResult(tenant)
	s.Require().NoError(s.store.Create(ctx, tenant, r))

	// Two readers load the same draft at version 1.
	stale, err := s.store.Get(ctx, tenant, r.ID)
	s.Require().NoError(err)

	verifier := id.UserID(uuid.New())
	r.ApplyVerification(verifier, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.store.Update(ctx, tenant, r, 1, models.StatusDraft))

	// Verification left the version at 1, so the stale editor's version
	// guard alone would pass. The status guard must stop it.
	stale.ApplyEdit("100", time.Now().UTC())
	err = s.store.Update(ctx, tenant, stale, 1, models.StatusDraft)
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(ctx, tenant, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, got.Status)
	s.Equal("95", got.Value)
	s.Equal(verifier, got.VerifiedBy)
}

func (s *PostgresStoreSuite) TestConcurrentVerifyAndEditRace() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	r := newTestResult(tenant)
	s.Require().NoError(s.store.Create(ctx, tenant, r))

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	record := func(err error) {
		if err == nil {
			successCount.Add(1)
		} else if errors.Is(err, sentinel.ErrConflict) {
			conflictCount.Add(1)
		}
	}

	// Both writers read the same draft at version 1 before either commits.
	verified, err := s.store.Get(ctx, tenant, r.ID)
	s.Require().NoError(err)
	edited, err := s.store.Get(ctx, tenant, r.ID)
	s.Require().NoError(err)
	verified.ApplyVerification(id.UserID(uuid.New()), time.Now().UTC())
	edited.ApplyEdit("100", time.Now().UTC())

	wg.Add(2)
	go func() {
		defer wg.Done()
		record(s.store.Update(ctx, tenant, verified, 1, models.StatusDraft))
	}()
	go func() {
		defer wg.Done()
		record(s.store.Update(ctx, tenant, edited, 1, models.StatusDraft))
	}()
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one writer should win")
	s.Equal(int32(1), conflictCount.Load())

	got, err := s.store.Get(ctx, tenant, r.ID)
	s.Require().NoError(err)
	// Whichever writer won, the row holds one coherent outcome, never a
	// blend of both.
	if got.Status == models.StatusVerified {
		s.Equal("95", got.Value)
		s.Equal(1, got.Version)
	} else {
		s.Equal(models.StatusDraft, got.Status)
		s.Equal("100", got.Value)
		s.Equal(2, got.Version)
	}
}

func (s *PostgresStoreSuite) TestAmendmentsRoundTrip() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	r := newTestResult(tenant)
	s.Require().NoError(s.store.Create(ctx, tenant, r))

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i, values := range [][2]string{{"95", "97"}, {"97", "96"}} {
		amendment := models.ResultAmendment{
			ID:        uuid.NewString(),
			TenantID:  tenant,
			ResultID:  r.ID,
			OldValue:  values[0],
			NewValue:  values[1],
			Reason:    "correction",
			AmendedBy: id.UserID(uuid.New()),
			AmendedAt: now.Add(time.Duration(i) * time.Second),
		}
		s.Require().NoError(s.store.AppendAmendment(ctx, tenant, amendment))
	}

	history, err := s.store.ListAmendments(ctx, tenant, r.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("97", history[0].NewValue)
	s.Equal("96", history[1].NewValue)

	// Amendments for a foreign tenant's result never attach.
	other := id.TenantID(uuid.New())
	err = s.store.AppendAmendment(ctx, other, models.ResultAmendment{
		ID:        uuid.NewString(),
		TenantID:  other,
		ResultID:  r.ID,
		OldValue:  "96",
		NewValue:  "90",
		Reason:    "cross-tenant attempt",
		AmendedBy: id.UserID(uuid.New()),
		AmendedAt: now,
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListFilters() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())

	draft := newTestResult(tenant)
	s.Require().NoError(s.store.Create(ctx, tenant, draft))

	verified := newTestResult(tenant)
	verified.ApplyVerification(id.UserID(uuid.New()), time.Now().UTC())
	s.Require().NoError(s.store.Create(ctx, tenant, verified))

	all, err := s.store.List(ctx, tenant, store.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 2)

	drafts, err := s.store.List(ctx, tenant, store.ListFilter{Status: models.StatusDraft})
	s.Require().NoError(err)
	s.Require().Len(drafts, 1)
	s.Equal(draft.ID, drafts[0].ID)
}
