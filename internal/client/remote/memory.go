package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
)

// MemoryStore is an in-process Store with all-or-nothing commits. It backs
// tests and single-device sessions.
type MemoryStore struct {
	mu      sync.Mutex
	owners  map[string]map[string]models.Catch
	commits int

	// CommitHook, if set, runs before each commit; an error aborts the
	// commit with nothing applied.
	CommitHook func(ownerID string, mutations []Mutation) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: make(map[string]map[string]models.Catch)}
}

func (m *MemoryStore) Commit(ctx context.Context, ownerID string, mutations []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitHook != nil {
		if err := m.CommitHook(ownerID, mutations); err != nil {
			return err
		}
	}

	staged := make(map[string]models.Catch, len(m.owners[ownerID]))
	for id, c := range m.owners[ownerID] {
		staged[id] = c
	}
	for _, mut := range mutations {
		switch mut.Kind {
		case Upsert:
			if mut.Record == nil || mut.Record.ID != mut.ID {
				return fmt.Errorf("%w: upsert %s without matching record", common.ErrMalformedOperation, mut.ID)
			}
			c := mut.Record.Clone()
			c.Synced, c.SyncError = false, false
			staged[mut.ID] = c
		case Delete:
			delete(staged, mut.ID)
		default:
			return fmt.Errorf("%w: kind %q", common.ErrMalformedOperation, mut.Kind)
		}
	}

	m.owners[ownerID] = staged
	m.commits++
	return nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, ownerID string, limit int) ([]models.Catch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Catch, 0, len(m.owners[ownerID]))
	for _, c := range m.owners[ownerID] {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores c directly, bypassing commits.
func (m *MemoryStore) Put(ownerID string, c models.Catch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[ownerID] == nil {
		m.owners[ownerID] = make(map[string]models.Catch)
	}
	c = c.Clone()
	c.Synced, c.SyncError = false, false
	m.owners[ownerID][c.ID] = c
}

// Get returns the stored record for ownerID.
func (m *MemoryStore) Get(ownerID, id string) (models.Catch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.owners[ownerID][id]
	return c.Clone(), ok
}

func (m *MemoryStore) Len(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners[ownerID])
}

// Commits counts successful commits.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
