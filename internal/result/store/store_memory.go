package store

import (
	"context"
	"sort"
	"sync"

	"limscore/internal/result/models"
	id "limscore/pkg/domain"
	"limscore/pkg/platform/sentinel"
)

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status models.ResultStatus
	Flag   id.Flag
	Source models.DataSource
}

// assignmentKey scopes the uniqueness index per tenant, mirroring the
// (tenant_id, assignment_id) unique index in PostgreSQL. Assignment IDs are
// not globally unique facts a foreign tenant may learn about.
type assignmentKey struct {
	tenant     id.TenantID
	assignment id.AssignmentID
}

// InMemoryStore keeps results and amendments in process. It enforces the
// same invariants as the PostgreSQL store: one result per assignment within
// a tenant, tenant-qualified lookups, and version+status-checked updates.
type InMemoryStore struct {
	mu           sync.RWMutex
	results      map[id.ResultID]*models.TestResult
	byAssignment map[assignmentKey]id.ResultID
	amendments   map[id.ResultID][]models.ResultAmendment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		results:      make(map[id.ResultID]*models.TestResult),
		byAssignment: make(map[assignmentKey]id.ResultID),
		amendments:   make(map[id.ResultID][]models.ResultAmendment),
	}
}

func (s *InMemoryStore) Create(_ context.Context, tenantID id.TenantID, result *models.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.TenantID != tenantID {
		return sentinel.ErrInvalidState
	}
	key := assignmentKey{tenant: tenantID, assignment: result.AssignmentID}
	if _, exists := s.byAssignment[key]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *result
	s.results[result.ID] = &cp
	s.byAssignment[key] = result.ID
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, resultID id.ResultID) (*models.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(tenantID, resultID)
}

func (s *InMemoryStore) FindByAssignment(_ context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resultID, ok := s.byAssignment[assignmentKey{tenant: tenantID, assignment: assignmentID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.getLocked(tenantID, resultID)
}

// Update persists the mutated result if the stored version AND status still
// match what the caller last read. Status transitions do not bump the version,
// so the status check is what makes them exclusive against stale writers. The
// loser of a concurrent race receives ErrConflict and must re-read and retry.
func (s *InMemoryStore) Update(_ context.Context, tenantID id.TenantID, result *models.TestResult, expectedVersion int, expectedStatus models.ResultStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.results[result.ID]
	// Cross-tenant rows are indistinguishable from absent rows.
	if !ok || current.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion || current.Status != expectedStatus {
		return sentinel.ErrConflict
	}
	cp := *result
	s.results[result.ID] = &cp
	return nil
}

func (s *InMemoryStore) AppendAmendment(_ context.Context, tenantID id.TenantID, amendment models.ResultAmendment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.results[amendment.ResultID]
	if !ok || current.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	s.amendments[amendment.ResultID] = append(s.amendments[amendment.ResultID], amendment)
	return nil
}

func (s *InMemoryStore) ListAmendments(_ context.Context, tenantID id.TenantID, resultID id.ResultID) ([]models.ResultAmendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getLocked(tenantID, resultID); err != nil {
		return nil, err
	}
	return append([]models.ResultAmendment{}, s.amendments[resultID]...), nil
}

func (s *InMemoryStore) List(_ context.Context, tenantID id.TenantID, filter ListFilter) ([]*models.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TestResult
	for _, r := range s.results {
		if r.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Flag != "" && r.Flag != filter.Flag {
			continue
		}
		if filter.Source != "" && r.Source != filter.Source {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnteredAt.After(out[j].EnteredAt)
	})
	return out, nil
}

func (s *InMemoryStore) getLocked(tenantID id.TenantID, resultID id.ResultID) (*models.TestResult, error) {
	r, ok := s.results[resultID]
	if !ok || r.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}
