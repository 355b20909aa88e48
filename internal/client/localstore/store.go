// Package localstore keeps the full record collection in memory, newest
// first, and rewrites it as one versioned blob on every mutation. It is the
// source of truth while the device is offline.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"github.com/google/uuid"
)

// Key is the durable key holding the collection.
const Key = "catches"

const DefaultPageSize = 20

var errUnsupportedVersion = errors.New("unsupported schema version")

type Store struct {
	mu     sync.Mutex
	kv     storage.KV
	clock  timex.Clock
	logger logging.Logger
	newID  func() string

	loaded  bool
	dirty   bool
	records []models.Catch
}

func New(kv storage.KV, clock timex.Clock, logger logging.Logger) *Store {
	return &Store{
		kv:     kv,
		clock:  clock,
		logger: logger.With("module", "localstore"),
		newID:  uuid.NewString,
	}
}

// Init loads the persisted collection once. Unreadable content is moved to
// Key+".corrupt" and the store starts empty; only storage I/O errors fail.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded(ctx)
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return fmt.Errorf("load %s: %w", Key, err)
	}
	s.loaded = true
	if !ok {
		return nil
	}

	records, migrated, err := decode([]byte(raw))
	if err != nil {
		s.logger.Warn(ctx, "persisted collection unreadable, starting empty", "error", err, "quarantine", Key+".corrupt")
		if qerr := s.kv.Set(ctx, Key+".corrupt", raw); qerr != nil {
			s.logger.Error(ctx, "failed to quarantine collection", "error", qerr)
		}
		s.records = nil
		return nil
	}

	s.records = records
	sortNewestFirst(s.records)
	if migrated {
		s.logger.Info(ctx, "migrated legacy collection", "records", len(records), "version", models.SchemaVersion)
		s.persist(ctx)
	}
	return nil
}

func decode(raw []byte) ([]models.Catch, bool, error) {
	if models.IsLegacyArray(raw) {
		var legacy []models.Catch
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, false, err
		}
		return legacy, true, nil
	}

	var env models.CatchesEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, err
	}
	if env.Version != models.SchemaVersion {
		return nil, false, fmt.Errorf("%w: %d", errUnsupportedVersion, env.Version)
	}
	return env.Records, false, nil
}

// persist writes the whole collection. A failed write is logged and the
// store stays dirty until the next successful persist or Flush.
func (s *Store) persist(ctx context.Context) {
	if err := s.write(ctx); err != nil {
		s.dirty = true
		s.logger.Error(ctx, "failed to persist collection", "error", err, "records", len(s.records))
		return
	}
	s.dirty = false
}

func (s *Store) write(ctx context.Context) error {
	b, err := json.Marshal(models.CatchesEnvelope{Version: models.SchemaVersion, Records: s.records})
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	return s.kv.Set(ctx, Key, string(b))
}

// Flush retries persisting the collection and reports the outcome.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if err := s.write(ctx); err != nil {
		s.dirty = true
		return err
	}
	s.dirty = false
	return nil
}

// Dirty reports whether the last persist failed.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Create stores a new unsynced record and returns it.
func (s *Store) Create(ctx context.Context, in models.CatchInput) (models.Catch, error) {
	if err := in.Validate(); err != nil {
		return models.Catch{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Catch{}, err
	}

	createdAt := in.CaughtAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	c := in.ToCatch(s.newID(), createdAt.UTC())

	s.insertSorted(c)
	s.persist(ctx)
	return c.Clone(), nil
}

// insertSorted places c at its newest-first position; a fresh record lands at the head.
func (s *Store) insertSorted(c models.Catch) {
	i := sort.Search(len(s.records), func(i int) bool { return c.Before(s.records[i]) })
	s.records = append(s.records, models.Catch{})
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = c
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Catch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Catch{}, err
	}
	i := s.indexOf(id)
	if i < 0 {
		return models.Catch{}, fmt.Errorf("catch %s: %w", id, common.ErrorNotFound)
	}
	return s.records[i].Clone(), nil
}

// Update merges patch into the record, stamps updatedAt and marks it unsynced.
func (s *Store) Update(ctx context.Context, id string, patch models.CatchPatch) (models.Catch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Catch{}, err
	}
	i := s.indexOf(id)
	if i < 0 {
		return models.Catch{}, fmt.Errorf("catch %s: %w", id, common.ErrorNotFound)
	}

	updated, err := patch.Apply(s.records[i])
	if err != nil {
		return models.Catch{}, err
	}
	now := s.clock.Now().UTC()
	updated.UpdatedAt = &now
	updated.Synced = false

	s.records[i] = updated
	s.persist(ctx)
	return updated.Clone(), nil
}

// Delete removes the record. Queuing the remote delete is the caller's job.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("catch %s: %w", id, common.ErrorNotFound)
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.persist(ctx)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return len(s.records), nil
}

// CountSince counts records created at or after boundary.
func (s *Store) CountSince(ctx context.Context, boundary time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, c := range s.records {
		if !c.CreatedAt.Before(boundary) {
			n++
		}
	}
	return n, nil
}

// Snapshot returns a deep copy of the collection, newest first.
func (s *Store) Snapshot(ctx context.Context) ([]models.Catch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return cloneAll(s.records), nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func sortNewestFirst(records []models.Catch) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Before(records[j]) })
}

func cloneAll(records []models.Catch) []models.Catch {
	out := make([]models.Catch, len(records))
	for i, c := range records {
		out[i] = c.Clone()
	}
	return out
}
