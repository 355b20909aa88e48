package localstore

import (
	"context"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
)

// SyncMarks is the outcome of one push cycle, by record ID.
type SyncMarks struct {
	// Synced were committed and have nothing else queued.
	Synced []string
	// Cleared were committed but a newer operation is still queued.
	Cleared []string
	// Failed belong to a batch whose commit failed.
	Failed []string
}

func (m SyncMarks) empty() bool {
	return len(m.Synced) == 0 && len(m.Cleared) == 0 && len(m.Failed) == 0
}

// ApplySyncMarks updates the sync flags with a single persist. IDs no longer
// present locally are ignored.
func (s *Store) ApplySyncMarks(ctx context.Context, marks SyncMarks) error {
	if marks.empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	index := make(map[string]int, len(s.records))
	for i, c := range s.records {
		index[c.ID] = i
	}
	for _, id := range marks.Synced {
		if i, ok := index[id]; ok {
			s.records[i].Synced = true
			s.records[i].SyncError = false
		}
	}
	for _, id := range marks.Cleared {
		if i, ok := index[id]; ok {
			s.records[i].SyncError = false
		}
	}
	for _, id := range marks.Failed {
		if i, ok := index[id]; ok {
			s.records[i].Synced = false
			s.records[i].SyncError = true
		}
	}
	s.persist(ctx)
	return nil
}

// AddMissing appends records whose ID is not known locally, marked synced,
// then re-sorts and persists. Records already present are left untouched.
// It returns how many records were added.
func (s *Store) AddMissing(ctx context.Context, records []models.Catch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	known := make(map[string]struct{}, len(s.records))
	for _, c := range s.records {
		known[c.ID] = struct{}{}
	}

	added := 0
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, ok := known[r.ID]; ok {
			continue
		}
		c := r.Clone()
		c.Synced, c.SyncError = true, false
		s.records = append(s.records, c)
		known[c.ID] = struct{}{}
		added++
	}
	if added == 0 {
		return 0, nil
	}
	sortNewestFirst(s.records)
	s.persist(ctx)
	return added, nil
}

// Reconcile runs merge over a copy of the collection while holding the
// store's lock, then replaces the collection with the result and persists
// once. No local mutation can interleave between snapshot and write-back.
func (s *Store) Reconcile(ctx context.Context, merge func(local []models.Catch) ([]models.Catch, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	merged, err := merge(cloneAll(s.records))
	if err != nil {
		return err
	}
	sortNewestFirst(merged)
	s.records = merged
	s.persist(ctx)
	return nil
}

// Restore puts c back as given, replacing any record with the same ID. It
// undoes a local mutation whose queue entry could not be written.
func (s *Store) Restore(ctx context.Context, c models.Catch) error {
	return s.Reconcile(ctx, func(local []models.Catch) ([]models.Catch, error) {
		out := make([]models.Catch, 0, len(local)+1)
		for _, l := range local {
			if l.ID != c.ID {
				out = append(out, l)
			}
		}
		return append(out, c.Clone()), nil
	})
}
