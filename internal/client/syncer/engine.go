// Package syncer moves queued local mutations to the remote store and brings
// remote records back down. Delivery is at least once: an operation leaves
// the queue only after the batch carrying it has been committed remotely.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/auth"
	"github.com/dmitrijs2005/catchkeeper/internal/client/localstore"
	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/remote"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncqueue"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultBatchSize     = 50
	DefaultPullLimit     = 100
	DefaultFullSyncLimit = 1000
)

type Config struct {
	// BatchSize bounds the operations sent in one atomic commit.
	BatchSize int
	// PullLimit is used by Pull when the caller passes no limit.
	PullLimit int
	// FullSyncLimit bounds the remote page read by FullSync.
	FullSyncLimit int
	// CommitTimeout bounds each batch commit; zero leaves it to the remote.
	CommitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PullLimit <= 0 {
		c.PullLimit = DefaultPullLimit
	}
	if c.FullSyncLimit <= 0 {
		c.FullSyncLimit = DefaultFullSyncLimit
	}
	return c
}

type options struct {
	meterProvider metric.MeterProvider
}

type Option func(*options)

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

type Engine struct {
	store    *localstore.Store
	queue    *syncqueue.Queue
	remote   remote.Store
	identity auth.Identity
	logger   logging.Logger
	cfg      Config
	metrics  *syncMetrics

	// pushing admits one push cycle at a time.
	pushing *semaphore.Weighted
	// fullMu serializes FullSync calls.
	fullMu sync.Mutex
	// writeMu pairs every local mutation with its queue entry. Lock order is
	// writeMu, then store, then queue.
	writeMu sync.Mutex
}

func New(
	store *localstore.Store,
	queue *syncqueue.Queue,
	rs remote.Store,
	identity auth.Identity,
	logger logging.Logger,
	cfg Config,
	opts ...Option,
) (*Engine, error) {
	o := options{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	m, err := newSyncMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("sync metrics: %w", err)
	}
	return &Engine{
		store:    store,
		queue:    queue,
		remote:   rs,
		identity: identity,
		logger:   logger.With("module", "syncer"),
		cfg:      cfg.withDefaults(),
		metrics:  m,
		pushing:  semaphore.NewWeighted(1),
	}, nil
}

// WithWriteLock runs fn while no sync step is reading or rewriting the
// local store and queue. Callers that mutate a record and enqueue its
// operation do both inside fn.
func (e *Engine) WithWriteLock(fn func() error) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return fn()
}

type PushResult struct {
	// Skipped is set when another push was already running.
	Skipped bool `json:"skipped,omitempty"`
	// Unauthenticated is set when nobody is signed in.
	Unauthenticated bool `json:"unauthenticated,omitempty"`
	Committed       int  `json:"committed"`
	Failed          int  `json:"failed"`
	Malformed       int  `json:"malformed"`
}

// Push drains the queue to the remote store in batches. A call made while
// another push is in flight returns immediately with Skipped set.
func (e *Engine) Push(ctx context.Context) (PushResult, error) {
	if !e.pushing.TryAcquire(1) {
		e.logger.Debug(ctx, "push already running, skipping")
		e.metrics.recordCycle(ctx, outcomeSkipped)
		return PushResult{Skipped: true}, nil
	}
	defer e.pushing.Release(1)
	return e.push(ctx)
}

func (e *Engine) push(ctx context.Context) (PushResult, error) {
	owner, ok := e.identity.CurrentUser(ctx)
	if !ok {
		e.logger.Debug(ctx, "no signed-in user, push skipped")
		e.metrics.recordCycle(ctx, outcomeUnauthenticated)
		return PushResult{Unauthenticated: true}, nil
	}

	ops, err := e.queue.Drain(ctx, 0)
	if err != nil {
		e.metrics.recordCycle(ctx, outcomeError)
		return PushResult{}, fmt.Errorf("drain queue: %w", err)
	}
	if len(ops) == 0 {
		e.metrics.recordCycle(ctx, outcomeOK)
		return PushResult{}, nil
	}

	var (
		res       PushResult
		committed []models.Operation
		marks     localstore.SyncMarks
		stopErr   error
	)
	for start := 0; start < len(ops); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		batch := ops[start:min(start+e.cfg.BatchSize, len(ops))]

		mutations, included, malformed := prepare(batch)
		for _, m := range malformed {
			e.logger.Warn(ctx, "malformed queued operation left in queue",
				"operation", m.op.ID, "record", m.op.RecordID, "error", m.err)
			if m.op.RecordID != "" {
				marks.Failed = append(marks.Failed, m.op.RecordID)
			}
		}
		res.Malformed += len(malformed)
		if len(mutations) == 0 {
			continue
		}

		if err := e.commit(ctx, owner, mutations); err != nil {
			e.logger.Warn(ctx, "batch commit failed, operations stay queued",
				"operations", len(included), "error", err)
			for _, op := range included {
				if op.Action != models.ActionDelete {
					marks.Failed = append(marks.Failed, op.RecordID)
				}
			}
			res.Failed += len(included)
			continue
		}
		committed = append(committed, included...)
		res.Committed += len(included)
	}

	if err := e.finishPush(context.WithoutCancel(ctx), committed, marks); err != nil {
		e.metrics.recordCycle(ctx, outcomeError)
		return res, err
	}

	e.metrics.recordOperations(ctx, resultCommitted, res.Committed)
	e.metrics.recordOperations(ctx, resultFailed, res.Failed)
	e.metrics.recordOperations(ctx, resultMalformed, res.Malformed)
	if stopErr != nil {
		e.metrics.recordCycle(ctx, outcomeError)
		return res, fmt.Errorf("push interrupted: %w", stopErr)
	}
	e.metrics.recordCycle(ctx, outcomeOK)
	e.logger.Info(ctx, "push finished",
		"committed", res.Committed, "failed", res.Failed, "malformed", res.Malformed)
	return res, nil
}

// finishPush drops committed operations and projects the queue onto the
// records' sync flags: a committed record is synced only when nothing else
// is queued for it.
func (e *Engine) finishPush(ctx context.Context, committed []models.Operation, marks localstore.SyncMarks) error {
	return e.WithWriteLock(func() error {
		if err := e.queue.Remove(ctx, committed); err != nil {
			return fmt.Errorf("remove committed operations: %w", err)
		}
		pending, err := e.queue.Pending(ctx)
		if err != nil {
			return fmt.Errorf("read pending operations: %w", err)
		}

		seen := make(map[string]struct{}, len(committed))
		for _, op := range committed {
			if op.Action == models.ActionDelete {
				continue
			}
			if _, dup := seen[op.RecordID]; dup {
				continue
			}
			seen[op.RecordID] = struct{}{}
			if _, ok := pending[op.RecordID]; ok {
				marks.Cleared = append(marks.Cleared, op.RecordID)
			} else {
				marks.Synced = append(marks.Synced, op.RecordID)
			}
		}
		if err := e.store.ApplySyncMarks(ctx, marks); err != nil {
			return fmt.Errorf("apply sync marks: %w", err)
		}
		return nil
	})
}

func (e *Engine) commit(ctx context.Context, owner string, mutations []remote.Mutation) error {
	if e.cfg.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CommitTimeout)
		defer cancel()
	}
	return e.remote.Commit(ctx, owner, mutations)
}

type malformedOp struct {
	op  models.Operation
	err error
}

// prepare turns a batch into remote mutations. Operations that cannot be
// converted are returned separately and stay out of the commit.
func prepare(batch []models.Operation) ([]remote.Mutation, []models.Operation, []malformedOp) {
	mutations := make([]remote.Mutation, 0, len(batch))
	included := make([]models.Operation, 0, len(batch))
	var malformed []malformedOp

	for _, op := range batch {
		if op.RecordID == "" {
			malformed = append(malformed, malformedOp{op: op, err: errors.New("operation has no record id")})
			continue
		}
		if op.Action == models.ActionDelete {
			mutations = append(mutations, remote.Mutation{Kind: remote.Delete, ID: op.RecordID})
			included = append(included, op)
			continue
		}
		c, err := op.Record()
		if err != nil {
			malformed = append(malformed, malformedOp{op: op, err: err})
			continue
		}
		c.Synced, c.SyncError = false, false
		mutations = append(mutations, remote.Mutation{Kind: remote.Upsert, ID: c.ID, Record: &c})
		included = append(included, op)
	}
	return mutations, included, malformed
}

// Pull adds remote records not known locally, newest first, up to limit
// (PullLimit when limit <= 0). Known records are left alone and records with
// a queued delete are not brought back. It returns how many were added.
func (e *Engine) Pull(ctx context.Context, limit int) (int, error) {
	owner, ok := e.identity.CurrentUser(ctx)
	if !ok {
		return 0, nil
	}
	if limit <= 0 {
		limit = e.cfg.PullLimit
	}

	records, err := e.remote.ListRecent(ctx, owner, limit)
	if err != nil {
		return 0, fmt.Errorf("list remote: %w", err)
	}

	var added int
	err = e.WithWriteLock(func() error {
		deletes, err := e.queue.PendingDeletes(ctx)
		if err != nil {
			return err
		}
		keep := make([]models.Catch, 0, len(records))
		for _, r := range records {
			if _, gone := deletes[r.ID]; !gone {
				keep = append(keep, r)
			}
		}
		added, err = e.store.AddMissing(ctx, keep)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("merge pulled records: %w", err)
	}

	e.metrics.recordPulled(ctx, "pull", added)
	if added > 0 {
		e.logger.Info(ctx, "pulled remote records", "added", added, "fetched", len(records))
	}
	return added, nil
}

type FullSyncResult struct {
	Pulled    int `json:"pulled"`
	Pushed    int `json:"pushed"`
	Conflicts int `json:"conflicts"`
}

// FullSync reconciles both sides: it reads the newest FullSyncLimit remote
// records, resolves records present on both sides, adds remote-only records
// and then pushes. It waits for an in-flight push and keeps Push out until it
// is done. The merge holds the write lock, so no local mutation can land
// between reading the local collection and writing it back.
func (e *Engine) FullSync(ctx context.Context) (FullSyncResult, error) {
	e.fullMu.Lock()
	defer e.fullMu.Unlock()

	// Held from the remote read through the final push: a push still
	// committing older local state must land before the remote is read.
	if err := e.pushing.Acquire(ctx, 1); err != nil {
		return FullSyncResult{}, err
	}
	defer e.pushing.Release(1)

	var res FullSyncResult
	owner, ok := e.identity.CurrentUser(ctx)
	if !ok {
		e.metrics.recordCycle(ctx, outcomeUnauthenticated)
		return res, nil
	}

	remoteRecords, err := e.remote.ListRecent(ctx, owner, e.cfg.FullSyncLimit)
	if err != nil {
		return res, fmt.Errorf("list remote: %w", err)
	}

	if err := e.WithWriteLock(func() error { return e.merge(ctx, remoteRecords, &res) }); err != nil {
		return res, fmt.Errorf("merge: %w", err)
	}
	e.metrics.recordConflicts(ctx, res.Conflicts)
	e.metrics.recordPulled(ctx, "fullsync", res.Pulled)

	pr, err := e.push(ctx)
	res.Pushed = pr.Committed
	if err != nil {
		return res, err
	}

	e.logger.Info(ctx, "full sync finished",
		"pulled", res.Pulled, "pushed", res.Pushed, "conflicts", res.Conflicts)
	return res, nil
}

func (e *Engine) merge(ctx context.Context, remoteRecords []models.Catch, res *FullSyncResult) error {
	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return err
	}
	deletes, err := e.queue.PendingDeletes(ctx)
	if err != nil {
		return err
	}

	remoteByID := make(map[string]models.Catch, len(remoteRecords))
	for _, r := range remoteRecords {
		remoteByID[r.ID] = r
	}

	var (
		superseded []string
		pushBack   []models.Catch
	)
	err = e.store.Reconcile(ctx, func(local []models.Catch) ([]models.Catch, error) {
		merged := make([]models.Catch, 0, len(local)+len(remoteByID))
		for _, l := range local {
			r, ok := remoteByID[l.ID]
			if !ok {
				merged = append(merged, l)
				continue
			}
			delete(remoteByID, l.ID)
			_, queued := pending[l.ID]

			if models.SameContent(l, r) {
				if !queued {
					l.Synced, l.SyncError = true, false
				}
				merged = append(merged, l)
				continue
			}

			res.Conflicts++
			winner, side := Resolve(l, r)
			e.logger.Debug(ctx, "conflict resolved", "record", l.ID, "winner", side.String())
			if side == RemoteWins {
				superseded = append(superseded, l.ID)
			} else if !queued {
				pushBack = append(pushBack, winner)
			}
			merged = append(merged, winner)
		}

		for _, r := range remoteRecords {
			if _, left := remoteByID[r.ID]; !left {
				continue
			}
			delete(remoteByID, r.ID)
			if _, gone := deletes[r.ID]; gone {
				continue
			}
			c := r.Clone()
			c.Synced, c.SyncError = true, false
			merged = append(merged, c)
			res.Pulled++
		}
		return merged, nil
	})
	if err != nil {
		return err
	}

	if err := e.queue.DropForRecords(ctx, superseded); err != nil {
		return fmt.Errorf("drop superseded operations: %w", err)
	}
	for _, c := range pushBack {
		if _, err := e.queue.Enqueue(ctx, models.ActionUpdate, c); err != nil {
			return fmt.Errorf("queue resolved record %s: %w", c.ID, err)
		}
	}
	return nil
}

// QueueLen reports how many operations are waiting.
func (e *Engine) QueueLen(ctx context.Context) (int, error) {
	return e.queue.Len(ctx)
}
