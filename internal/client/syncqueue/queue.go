// Package syncqueue is the durable, ordered log of mutations waiting to be
// applied to the remote store. It is the only authority on "intent to sync".
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"github.com/google/uuid"
)

// Key is the durable key holding the queue.
const Key = "sync_queue"

var errUnsupportedVersion = errors.New("unsupported schema version")

type Queue struct {
	mu     sync.Mutex
	kv     storage.KV
	clock  timex.Clock
	logger logging.Logger
	newID  func() string

	loaded bool
	ops    []models.Operation
}

func New(kv storage.KV, clock timex.Clock, logger logging.Logger) *Queue {
	return &Queue{
		kv:     kv,
		clock:  clock,
		logger: logger.With("module", "syncqueue"),
		newID:  uuid.NewString,
	}
}

// Init loads the persisted queue once. Unreadable content is moved to
// Key+".corrupt" and the queue starts empty.
func (q *Queue) Init(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ensureLoaded(ctx)
}

func (q *Queue) ensureLoaded(ctx context.Context) error {
	if q.loaded {
		return nil
	}

	raw, ok, err := q.kv.Get(ctx, Key)
	if err != nil {
		return fmt.Errorf("load %s: %w", Key, err)
	}
	q.loaded = true
	if !ok {
		return nil
	}

	ops, migrated, err := decode([]byte(raw))
	if err != nil {
		q.logger.Warn(ctx, "persisted queue unreadable, starting empty", "error", err, "quarantine", Key+".corrupt")
		if qerr := q.kv.Set(ctx, Key+".corrupt", raw); qerr != nil {
			q.logger.Error(ctx, "failed to quarantine queue", "error", qerr)
		}
		return nil
	}

	q.ops = ops
	if migrated {
		q.logger.Info(ctx, "migrated legacy queue", "operations", len(ops), "version", models.SchemaVersion)
		q.persist(ctx)
	}
	return nil
}

// legacyOperation is the unversioned element format: {action, data, timestamp}.
type legacyOperation struct {
	Action    models.Action   `json:"action"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

func decode(raw []byte) ([]models.Operation, bool, error) {
	if models.IsLegacyArray(raw) {
		var legacy []legacyOperation
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, false, err
		}
		ops := make([]models.Operation, 0, len(legacy))
		for _, l := range legacy {
			ops = append(ops, fromLegacy(l))
		}
		return ops, true, nil
	}

	var env models.QueueEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, err
	}
	if env.Version != models.SchemaVersion {
		return nil, false, fmt.Errorf("%w: %d", errUnsupportedVersion, env.Version)
	}
	return env.Operations, false, nil
}

// fromLegacy keeps whatever it can; a delete carried the bare ID as data.
func fromLegacy(l legacyOperation) models.Operation {
	op := models.Operation{ID: uuid.NewString(), Action: l.Action}
	if ts, err := time.Parse(time.RFC3339Nano, l.Timestamp); err == nil {
		op.EnqueuedAt = ts.UTC()
	}
	if l.Action == models.ActionDelete {
		var id string
		if json.Unmarshal(l.Data, &id) == nil {
			op.RecordID = id
		}
		return op
	}
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(l.Data, &head)
	op.RecordID = head.ID
	op.Data = l.Data
	return op
}

func (q *Queue) persist(ctx context.Context) {
	b, err := json.Marshal(models.QueueEnvelope{Version: models.SchemaVersion, Operations: q.ops})
	if err == nil {
		err = q.kv.Set(ctx, Key, string(b))
	}
	if err != nil {
		q.logger.Error(ctx, "failed to persist queue", "error", err, "operations", len(q.ops))
	}
}

// Enqueue appends an add or update carrying a snapshot of c.
func (q *Queue) Enqueue(ctx context.Context, action models.Action, c models.Catch) (models.Operation, error) {
	if action != models.ActionAdd && action != models.ActionUpdate {
		return models.Operation{}, fmt.Errorf("enqueue %q with a record snapshot", action)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return models.Operation{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return q.append(ctx, models.Operation{Action: action, RecordID: c.ID, Data: data})
}

// EnqueueDelete appends a delete for id.
func (q *Queue) EnqueueDelete(ctx context.Context, id string) (models.Operation, error) {
	return q.append(ctx, models.Operation{Action: models.ActionDelete, RecordID: id})
}

func (q *Queue) append(ctx context.Context, op models.Operation) (models.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureLoaded(ctx); err != nil {
		return models.Operation{}, err
	}
	op.ID = q.newID()
	op.EnqueuedAt = q.clock.Now().UTC()
	q.ops = append(q.ops, op)
	q.persist(ctx)
	return op, nil
}

// Drain returns up to n oldest operations without removing them. n <= 0
// returns everything.
func (q *Queue) Drain(ctx context.Context, n int) ([]models.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if n <= 0 || n > len(q.ops) {
		n = len(q.ops)
	}
	out := make([]models.Operation, n)
	copy(out, q.ops[:n])
	return out, nil
}

// Remove drops the given operations (matched by ID) and persists the rest.
// Operations enqueued after the caller drained are kept.
func (q *Queue) Remove(ctx context.Context, ops []models.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		drop[op.ID] = struct{}{}
	}
	return q.filter(ctx, func(op models.Operation) bool {
		_, ok := drop[op.ID]
		return !ok
	})
}

// DropForRecords removes every operation targeting one of ids.
func (q *Queue) DropForRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return q.filter(ctx, func(op models.Operation) bool {
		_, ok := drop[op.RecordID]
		return !ok
	})
}

func (q *Queue) filter(ctx context.Context, keep func(models.Operation) bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureLoaded(ctx); err != nil {
		return err
	}
	kept := make([]models.Operation, 0, len(q.ops))
	for _, op := range q.ops {
		if keep(op) {
			kept = append(kept, op)
		}
	}
	if len(kept) == len(q.ops) {
		return nil
	}
	q.ops = kept
	q.persist(ctx)
	return nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return len(q.ops), nil
}

// Pending returns the set of record IDs with at least one queued operation.
func (q *Queue) Pending(ctx context.Context) (map[string]struct{}, error) {
	return q.recordIDs(ctx, func(models.Operation) bool { return true })
}

// PendingDeletes returns the record IDs with a queued delete.
func (q *Queue) PendingDeletes(ctx context.Context) (map[string]struct{}, error) {
	return q.recordIDs(ctx, func(op models.Operation) bool { return op.Action == models.ActionDelete })
}

func (q *Queue) recordIDs(ctx context.Context, match func(models.Operation) bool) (map[string]struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, op := range q.ops {
		if match(op) {
			out[op.RecordID] = struct{}{}
		}
	}
	return out, nil
}
