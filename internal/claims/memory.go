package claims

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

// MemoryStore is an in-memory Reader used in tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	claims []*models.Claim
}

// NewMemoryStore creates an empty in-memory claims store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add appends claims to the store.
func (m *MemoryStore) Add(claims ...*models.Claim) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, claims...)
}

// ListClaims implements Reader.
func (m *MemoryStore) ListClaims(_ context.Context, tenantID string, key models.GroupingKey, start, end time.Time, basis DateBasis) ([]*models.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Claim
	for _, c := range m.claims {
		if c.TenantID != tenantID || c.Payer != key.Payer || c.ProcedureGroup != key.ProcedureGroup {
			continue
		}
		ts := c.DecidedDate
		if basis == BasisSubmitted {
			ts = c.SubmittedDate
		}
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// GroupingKeys implements Reader.
func (m *MemoryStore) GroupingKeys(_ context.Context, tenantID string, start, end time.Time) ([]models.GroupingKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[models.GroupingKey]struct{})
	for _, c := range m.claims {
		if c.TenantID != tenantID {
			continue
		}
		if c.DecidedDate.Before(start) || !c.DecidedDate.Before(end) {
			continue
		}
		seen[models.GroupingKey{Payer: c.Payer, ProcedureGroup: c.ProcedureGroup}] = struct{}{}
	}

	keys := make([]models.GroupingKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Payer != keys[j].Payer {
			return keys[i].Payer < keys[j].Payer
		}
		return keys[i].ProcedureGroup < keys[j].ProcedureGroup
	})
	return keys, nil
}
