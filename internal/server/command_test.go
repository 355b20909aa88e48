package server

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Flags(t *testing.T) {
	cmd := NewCommand()
	for _, name := range []string{"config", "grpc-addr", "http-addr", "dsn", "token-ttl", "max-batch-size", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	sub, _, err := cmd.Find([]string{"migrate"})
	require.NoError(t, err)
	assert.Equal(t, "migrate", sub.Name())
}

func TestExecute_InvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"--max-batch-size", "0"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid config")
}

func TestExecute_Migrate(t *testing.T) {
	mock := stubDB(t, nil)
	mock.ExpectClose()

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"migrate", "--log-level", "error"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "migrations applied\n", stdout.String())
	require.NoError(t, mock.ExpectationsWereMet())
}
