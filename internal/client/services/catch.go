package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/localstore"
	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/scheduler"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncqueue"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
)

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("catch service closed")

// CatchService is the only sanctioned way to read and write catches.
//
// Contract:
//   - Every mutation updates the local store and queues the matching remote
//     operation as one step; remote availability never fails a mutation.
//   - LogCatch returns once the record is stored locally and pushes in the
//     background; LogCatchAndWait also waits for that push.
//   - RetrySync, Pull and FullSync drive the sync engine on demand.
type CatchService interface {
	LogCatch(ctx context.Context, in models.CatchInput) (models.Catch, error)
	LogCatchAndWait(ctx context.Context, in models.CatchInput) (models.Catch, syncer.PushResult, error)
	List(ctx context.Context, opts localstore.ListOptions) (localstore.Page, error)
	Get(ctx context.Context, id string) (models.Catch, error)
	Update(ctx context.Context, id string, patch models.CatchPatch) (models.Catch, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountThisMonth(ctx context.Context) (int, error)
	PendingCount(ctx context.Context) (int, error)

	RetrySync(ctx context.Context) (syncer.PushResult, error)
	Pull(ctx context.Context, limit int) (int, error)
	FullSync(ctx context.Context) (syncer.FullSyncResult, error)
	StartBackgroundSync(interval time.Duration)
	StopBackgroundSync()

	// Close stops background work and flushes the local store.
	Close(ctx context.Context) error
}

// Deps are the collaborators of a CatchService.
type Deps struct {
	Store     *localstore.Store
	Queue     *syncqueue.Queue
	Engine    *syncer.Engine
	Scheduler *scheduler.Scheduler
	Clock     timex.Clock
	Logger    logging.Logger
}

type catchService struct {
	store     *localstore.Store
	queue     *syncqueue.Queue
	engine    *syncer.Engine
	scheduler *scheduler.Scheduler
	clock     timex.Clock
	logger    logging.Logger

	mu     sync.Mutex
	closed bool
	bg     sync.WaitGroup
}

func NewCatchService(d Deps) CatchService {
	return &catchService{
		store:     d.Store,
		queue:     d.Queue,
		engine:    d.Engine,
		scheduler: d.Scheduler,
		clock:     d.Clock,
		logger:    d.Logger.With("module", "catchservice"),
	}
}

func (s *catchService) create(ctx context.Context, in models.CatchInput) (models.Catch, error) {
	var c models.Catch
	err := s.engine.WithWriteLock(func() error {
		var err error
		if c, err = s.store.Create(ctx, in); err != nil {
			return err
		}
		if _, err = s.queue.Enqueue(ctx, models.ActionAdd, c); err != nil {
			if derr := s.store.Delete(ctx, c.ID); derr != nil {
				s.logger.Error(ctx, "failed to roll back unqueued catch", "id", c.ID, "error", derr)
			}
			return fmt.Errorf("queue new catch: %w", err)
		}
		return nil
	})
	return c, err
}

func (s *catchService) LogCatch(ctx context.Context, in models.CatchInput) (models.Catch, error) {
	if s.isClosed() {
		return models.Catch{}, ErrClosed
	}
	c, err := s.create(ctx, in)
	if err != nil {
		return models.Catch{}, err
	}
	s.pushInBackground(ctx)
	return c, nil
}

func (s *catchService) LogCatchAndWait(ctx context.Context, in models.CatchInput) (models.Catch, syncer.PushResult, error) {
	if s.isClosed() {
		return models.Catch{}, syncer.PushResult{}, ErrClosed
	}
	c, err := s.create(ctx, in)
	if err != nil {
		return models.Catch{}, syncer.PushResult{}, err
	}
	res, err := s.engine.Push(ctx)
	if err != nil {
		s.logger.Warn(ctx, "push after create failed", "id", c.ID, "error", err)
	}
	return c, res, nil
}

// pushInBackground starts a detached push. Its failures only show up as
// sync flags on the records.
func (s *catchService) pushInBackground(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		bctx := context.WithoutCancel(ctx)
		if _, err := s.engine.Push(bctx); err != nil {
			s.logger.Warn(bctx, "background push failed", "error", err)
		}
	}()
}

func (s *catchService) List(ctx context.Context, opts localstore.ListOptions) (localstore.Page, error) {
	return s.store.List(ctx, opts)
}

func (s *catchService) Get(ctx context.Context, id string) (models.Catch, error) {
	return s.store.GetByID(ctx, id)
}

func (s *catchService) Update(ctx context.Context, id string, patch models.CatchPatch) (models.Catch, error) {
	if s.isClosed() {
		return models.Catch{}, ErrClosed
	}
	if patch.IsEmpty() {
		return s.store.GetByID(ctx, id)
	}

	var c models.Catch
	err := s.engine.WithWriteLock(func() error {
		prev, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if c, err = s.store.Update(ctx, id, patch); err != nil {
			return err
		}
		if _, err = s.queue.Enqueue(ctx, models.ActionUpdate, c); err != nil {
			s.restore(ctx, prev)
			return fmt.Errorf("queue update: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Catch{}, err
	}
	return c, nil
}

func (s *catchService) Delete(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.engine.WithWriteLock(func() error {
		prev, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
		if _, err := s.queue.EnqueueDelete(ctx, id); err != nil {
			s.restore(ctx, prev)
			return fmt.Errorf("queue delete: %w", err)
		}
		return nil
	})
}

// restore undoes a local change whose queue entry was not written.
func (s *catchService) restore(ctx context.Context, prev models.Catch) {
	if err := s.store.Restore(ctx, prev); err != nil {
		s.logger.Error(ctx, "failed to roll back unqueued change", "id", prev.ID, "error", err)
	}
}

func (s *catchService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// CountThisMonth counts catches created since the start of the current
// calendar month, UTC.
func (s *catchService) CountThisMonth(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	boundary := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.store.CountSince(ctx, boundary)
}

func (s *catchService) PendingCount(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}

func (s *catchService) RetrySync(ctx context.Context) (syncer.PushResult, error) {
	return s.engine.Push(ctx)
}

func (s *catchService) Pull(ctx context.Context, limit int) (int, error) {
	return s.engine.Pull(ctx, limit)
}

func (s *catchService) FullSync(ctx context.Context) (syncer.FullSyncResult, error) {
	return s.engine.FullSync(ctx)
}

func (s *catchService) StartBackgroundSync(interval time.Duration) {
	if s.scheduler == nil || s.isClosed() {
		return
	}
	s.scheduler.Start(interval)
}

func (s *catchService) StopBackgroundSync() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *catchService) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.StopBackgroundSync()
	s.bg.Wait()

	if s.store.Dirty() {
		if err := s.store.Flush(ctx); err != nil {
			return fmt.Errorf("flush local store: %w", err)
		}
	}
	return nil
}

func (s *catchService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
