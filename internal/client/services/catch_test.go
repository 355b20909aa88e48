package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/auth"
	"github.com/dmitrijs2005/catchkeeper/internal/client/localstore"
	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/remote"
	"github.com/dmitrijs2005/catchkeeper/internal/client/scheduler"
	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncqueue"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

const owner = "angler-1"

type fixture struct {
	svc    CatchService
	store  *localstore.Store
	queue  *syncqueue.Queue
	remote *remote.MemoryStore
	clock  *timex.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	clock := timex.NewFakeClock(time.Date(2024, 7, 15, 6, 0, 0, 0, time.UTC))
	log := logging.Discard()

	store := localstore.New(kv, clock, log)
	require.NoError(t, store.Init(ctx))
	queue := syncqueue.New(kv, clock, log)
	require.NoError(t, queue.Init(ctx))
	mem := remote.NewMemoryStore()

	engine, err := syncer.New(store, queue, mem, auth.Static{UserID: owner}, log, syncer.Config{},
		syncer.WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, err)

	svc := NewCatchService(Deps{
		Store:     store,
		Queue:     queue,
		Engine:    engine,
		Scheduler: scheduler.New(engine, 0, log),
		Clock:     clock,
		Logger:    log,
	})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return &fixture{svc: svc, store: store, queue: queue, remote: mem, clock: clock}
}

func TestLogCatch_StoresLocallyAndPushesInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.LogCatch(ctx, models.CatchInput{Species: "pike", WeightKg: 3.2})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	got, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "pike", got.Species)

	require.Eventually(t, func() bool {
		got, err := f.svc.Get(ctx, c.ID)
		return err == nil && got.Synced
	}, time.Second, 5*time.Millisecond)
	_, ok := f.remote.Get(owner, c.ID)
	assert.True(t, ok)
}

func TestLogCatchAndWait_ReportsPush(t *testing.T) {
	f := newFixture(t)

	c, res, err := f.svc.LogCatchAndWait(context.Background(), models.CatchInput{Species: "perch"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, 1, f.remote.Len(owner))

	got, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
}

func TestLogCatch_RemoteDownStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.remote.CommitHook = func(string, []remote.Mutation) error { return common.ErrUnavailable }

	c, res, err := f.svc.LogCatchAndWait(context.Background(), models.CatchInput{Species: "zander"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.SyncError)

	n, err := f.svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.remote.CommitHook = nil
	pr, err := f.svc.RetrySync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pr.Committed)
}

func TestLogCatch_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.LogCatch(context.Background(), models.CatchInput{Species: " "})
	require.ErrorIs(t, err, models.ErrInvalidCatch)

	n, err := f.svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateAndDelete_QueueOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _, err := f.svc.LogCatchAndWait(ctx, models.CatchInput{Species: "carp"})
	require.NoError(t, err)

	notes := "released"
	updated, err := f.svc.Update(ctx, c.ID, models.CatchPatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "released", updated.Notes)
	assert.False(t, updated.Synced)

	same, err := f.svc.Update(ctx, c.ID, models.CatchPatch{})
	require.NoError(t, err)
	assert.Equal(t, updated, same)

	require.NoError(t, f.svc.Delete(ctx, c.ID))
	_, err = f.svc.Get(ctx, c.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	ops, err := f.queue.Drain(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, models.ActionUpdate, ops[0].Action)
	assert.Equal(t, models.ActionDelete, ops[1].Action)

	_, err = f.svc.RetrySync(ctx)
	require.NoError(t, err)
	assert.Zero(t, f.remote.Len(owner))
}

func TestUpdateAndDelete_UnknownID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notes := "x"

	_, err := f.svc.Update(ctx, "missing", models.CatchPatch{Notes: &notes})
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, "missing"), common.ErrorNotFound)

	n, err := f.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// queueReadFails breaks reads of the persisted queue only.
type queueReadFails struct {
	storage.KV
}

func (k queueReadFails) Get(ctx context.Context, key string) (string, bool, error) {
	if key == syncqueue.Key {
		return "", false, errors.New("disk read error")
	}
	return k.KV.Get(ctx, key)
}

func TestUpdateAndDelete_UnqueuedChangeIsRolledBack(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	clock := timex.NewFakeClock(time.Date(2024, 7, 15, 6, 0, 0, 0, time.UTC))
	log := logging.Discard()

	store := localstore.New(kv, clock, log)
	require.NoError(t, store.Init(ctx))
	c, err := store.Create(ctx, models.CatchInput{Species: "zander", Notes: "kept"})
	require.NoError(t, err)

	queue := syncqueue.New(queueReadFails{kv}, clock, log)
	engine, err := syncer.New(store, queue, remote.NewMemoryStore(), auth.Static{UserID: owner}, log,
		syncer.Config{}, syncer.WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, err)
	svc := NewCatchService(Deps{
		Store: store, Queue: queue, Engine: engine,
		Scheduler: scheduler.New(engine, 0, log), Clock: clock, Logger: log,
	})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	notes := "lost"
	_, err = svc.Update(ctx, c.ID, models.CatchPatch{Notes: &notes})
	require.Error(t, err)
	got, err := store.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	require.Error(t, svc.Delete(ctx, c.ID))
	got, err = store.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LogCatch(ctx, models.CatchInput{Species: "pike", CaughtAt: time.Date(2024, 6, 30, 22, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = f.svc.LogCatch(ctx, models.CatchInput{Species: "pike", CaughtAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = f.svc.LogCatch(ctx, models.CatchInput{Species: "perch"})
	require.NoError(t, err)

	total, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	month, err := f.svc.CountThisMonth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, month)

	page, err := f.svc.List(ctx, localstore.ListOptions{Species: "PIKE"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestFullSyncAndPull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.Put(owner, models.Catch{ID: "remote-1", Species: "tench", CreatedAt: time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)})
	n, err := f.svc.Pull(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.remote.Put(owner, models.Catch{ID: "remote-2", Species: "roach", CreatedAt: time.Date(2024, 7, 11, 0, 0, 0, 0, time.UTC)})
	res, err := f.svc.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncer.FullSyncResult{Pulled: 1}, res)
}

func TestBackgroundSyncAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.StartBackgroundSync(10 * time.Millisecond)
	f.remote.Put(owner, models.Catch{ID: "remote-1", Species: "tench", CreatedAt: time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)})
	require.Eventually(t, func() bool {
		_, err := f.svc.Get(ctx, "remote-1")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.svc.Close(ctx))
	require.NoError(t, f.svc.Close(ctx))

	_, err := f.svc.LogCatch(ctx, models.CatchInput{Species: "pike"})
	require.ErrorIs(t, err, ErrClosed)
}
