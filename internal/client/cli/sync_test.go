package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/config"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_SignedOutKeepsQueue(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "log", "--species", "bream")
	require.NoError(t, err)

	out, err := execute(t, dir, "sync", "--format", "json")
	require.NoError(t, err)
	st := decode[syncStatus](t, out)
	assert.True(t, st.Unauthenticated)
	assert.Equal(t, 1, st.Pending)

	out, err = execute(t, dir, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "not signed in")
	assert.Contains(t, out, "1 operations pending")
}

func TestPullAndFullSync_SignedOutAreNoOps(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "pull", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"pulled": 0}, decode[map[string]int](t, out))

	out, err = execute(t, dir, "fullsync", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, syncer.FullSyncResult{}, decode[syncer.FullSyncResult](t, out))
}

func TestDaemon_StopsWhenContextEnds(t *testing.T) {
	cmd := NewRootCommand(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--data-dir", t.TempDir(), "--log-level", "error", "daemon", "--interval", "1h"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestWritePushResult(t *testing.T) {
	tests := []struct {
		name string
		in   syncer.PushResult
		want string
	}{
		{name: "signed out", in: syncer.PushResult{Unauthenticated: true}, want: "not signed in; changes stay queued\n"},
		{name: "busy", in: syncer.PushResult{Skipped: true}, want: "a sync is already running\n"},
		{name: "pushed", in: syncer.PushResult{Committed: 3, Failed: 1}, want: "pushed 3, failed 1, malformed 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b bytes.Buffer
			writePushResult(&b, tt.in)
			assert.Equal(t, tt.want, b.String())
		})
	}
}

type fakeBackup struct {
	key string
	err error
}

func (f fakeBackup) Run(context.Context) (string, error) { return f.key, f.err }

func TestBackup(t *testing.T) {
	factory := func(b fakeBackup) AppFactory {
		return func(_ context.Context, cfg *config.Config) (*App, error) {
			return &App{cfg: cfg, logger: logging.Discard(), backup: b}, nil
		}
	}
	dir := t.TempDir()

	out, err := executeWith(t, factory(fakeBackup{key: "backups/u-1/2024-07-01T05:00:00Z.json"}), dir,
		"backup", "--s3-bucket", "catches")
	require.NoError(t, err)
	assert.Equal(t, "uploaded s3://catches/backups/u-1/2024-07-01T05:00:00Z.json\n", out)

	boom := errors.New("boom")
	_, err = executeWith(t, factory(fakeBackup{err: boom}), dir, "backup")
	require.ErrorIs(t, err, boom)
}

func TestBackup_NotConfigured(t *testing.T) {
	_, err := execute(t, t.TempDir(), "backup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
