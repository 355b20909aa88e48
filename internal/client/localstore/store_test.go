package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 7, 1, 5, 0, 0, 0, time.UTC)

// flakyKV wraps a KV and fails writes and/or reads on demand.
type flakyKV struct {
	storage.KV
	failSet bool
	failGet bool
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errors.New("quota exceeded")
	}
	return f.KV.Set(ctx, key, value)
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errors.New("io error")
	}
	return f.KV.Get(ctx, key)
}

func newTestStore(t *testing.T, kv storage.KV) (*Store, *timex.FakeClock) {
	t.Helper()
	clock := timex.NewFakeClock(start)
	s := New(kv, clock, logging.Discard())
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	require.NoError(t, s.Init(context.Background()))
	return s, clock
}

// createN creates n records one second apart and returns them oldest first.
func createN(t *testing.T, s *Store, clock *timex.FakeClock, n int, species string) []models.Catch {
	t.Helper()
	var out []models.Catch
	for i := 0; i < n; i++ {
		c, err := s.Create(context.Background(), models.CatchInput{Species: species})
		require.NoError(t, err)
		out = append(out, c)
		clock.Advance(time.Second)
	}
	return out
}

func ids(cs []models.Catch) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestCreate_DefaultsAndNewestFirst(t *testing.T) {
	kv := storage.NewMemoryKV()
	s, clock := newTestStore(t, kv)
	ctx := context.Background()

	created := createN(t, s, clock, 3, "Pike")
	require.Equal(t, start, created[0].CreatedAt)
	require.False(t, created[0].Synced)
	require.Nil(t, created[0].UpdatedAt)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"id-003", "id-002", "id-001"}, ids(snap))

	raw, ok, err := kv.Get(ctx, Key)
	require.NoError(t, err)
	require.True(t, ok)
	var env models.CatchesEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	require.Equal(t, models.SchemaVersion, env.Version)
	require.Len(t, env.Records, 3)
}

func TestCreate_InvalidInputNotStored(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryKV())
	_, err := s.Create(context.Background(), models.CatchInput{})
	require.ErrorIs(t, err, models.ErrInvalidCatch)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCreate_BackdatedKeepsOrder(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	ctx := context.Background()
	createN(t, s, clock, 2, "Pike")

	old, err := s.Create(ctx, models.CatchInput{Species: "Carp", CaughtAt: start.Add(-time.Hour)})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, old.ID, snap[len(snap)-1].ID)
}

func TestInit_ReloadsPersistedCollection(t *testing.T) {
	kv := storage.NewMemoryKV()
	s, clock := newTestStore(t, kv)
	createN(t, s, clock, 2, "Perch")

	reopened, _ := newTestStore(t, kv)
	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestInit_IsIdempotent(t *testing.T) {
	kv := storage.NewMemoryKV()
	s, clock := newTestStore(t, kv)
	createN(t, s, clock, 1, "Perch")

	// A second Init must not reload and drop in-memory state.
	require.NoError(t, kv.Set(context.Background(), Key, `{"version":1,"records":[]}`))
	require.NoError(t, s.Init(context.Background()))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestInit_CorruptBlobIsQuarantined(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", `{{not json`},
		{"future version", `{"version":99,"records":[]}`},
		{"missing version", `{"records":[]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kv := storage.NewMemoryKV()
			require.NoError(t, kv.Set(ctx, Key, tc.raw))

			s, _ := newTestStore(t, kv)
			n, err := s.Count(ctx)
			require.NoError(t, err)
			require.Zero(t, n)

			q, ok, err := kv.Get(ctx, Key+".corrupt")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, tc.raw, q)
		})
	}
}

func TestInit_LegacyArrayIsMigrated(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	legacy := `[{"id":"old-1","species":"Bass","createdAt":"2023-01-01T00:00:00Z","synced":true},
	            {"id":"old-2","species":"Bass","createdAt":"2023-02-01T00:00:00Z","synced":false}]`
	require.NoError(t, kv.Set(ctx, Key, legacy))

	s, _ := newTestStore(t, kv)
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"old-2", "old-1"}, ids(snap))

	raw, _, err := kv.Get(ctx, Key)
	require.NoError(t, err)
	require.Contains(t, raw, `"version":1`)
}

func TestInit_ReadErrorFails(t *testing.T) {
	s := New(&flakyKV{KV: storage.NewMemoryKV(), failGet: true}, timex.System, logging.Discard())
	require.ErrorContains(t, s.Init(context.Background()), "io error")
}

func TestGetByID(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	created := createN(t, s, clock, 1, "Zander")

	got, err := s.GetByID(context.Background(), created[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Zander", got.Species)

	_, err = s.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_StampsAndUnsyncs(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	ctx := context.Background()
	created := createN(t, s, clock, 1, "Pike")
	require.NoError(t, s.ApplySyncMarks(ctx, SyncMarks{Synced: []string{created[0].ID}}))

	notes := "released"
	got, err := s.Update(ctx, created[0].ID, models.CatchPatch{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, "released", got.Notes)
	require.False(t, got.Synced)
	require.NotNil(t, got.UpdatedAt)
	require.Equal(t, clock.Now(), *got.UpdatedAt)
	require.Equal(t, created[0].CreatedAt, got.CreatedAt)

	_, err = s.Update(ctx, "nope", models.CatchPatch{Notes: &notes})
	require.ErrorIs(t, err, common.ErrorNotFound)

	empty := ""
	_, err = s.Update(ctx, created[0].ID, models.CatchPatch{Species: &empty})
	require.ErrorIs(t, err, models.ErrInvalidCatch)
}

func TestDelete(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	ctx := context.Background()
	created := createN(t, s, clock, 2, "Pike")

	require.NoError(t, s.Delete(ctx, created[0].ID))
	require.ErrorIs(t, s.Delete(ctx, created[0].ID), common.ErrorNotFound)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCountSince(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	createN(t, s, clock, 5, "Pike")

	n, err := s.CountSince(context.Background(), start.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestPersistFailure_KeepsMemoryAndFlushRecovers(t *testing.T) {
	kv := &flakyKV{KV: storage.NewMemoryKV()}
	s, _ := newTestStore(t, kv)
	ctx := context.Background()

	kv.failSet = true
	c, err := s.Create(ctx, models.CatchInput{Species: "Pike"})
	require.NoError(t, err)
	require.True(t, s.Dirty())

	got, err := s.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	require.Error(t, s.Flush(ctx))

	kv.failSet = false
	require.NoError(t, s.Flush(ctx))
	require.False(t, s.Dirty())

	raw, ok, err := kv.Get(ctx, Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, raw, c.ID)
}
