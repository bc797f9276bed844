package memory

import (
	"context"
	"sort"
	"sync"

	id "limscore/pkg/domain"
	audit "limscore/pkg/platform/audit"
)

// InMemoryStore keeps audit entries in process. Used by unit tests and by the
// standalone binary when no database is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, tenantID id.TenantID, subjectID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(entries []audit.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
