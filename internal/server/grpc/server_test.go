package grpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/rpc"
	"github.com/dmitrijs2005/catchkeeper/internal/server/auth"
	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
	"github.com/dmitrijs2005/catchkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, s *GRPCServer) rpc.CatchSyncClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return rpc.NewCatchSyncClient(conn)
}

func TestServer_EndToEnd(t *testing.T) {
	fs := &fakeSync{list: []*models.Catch{{ID: "c1", CreatedAt: time.Date(2024, 7, 1, 5, 0, 0, 0, time.UTC), Payload: json.RawMessage(`{"species":"pike"}`)}}}
	users := &fakeUsers{loginResp: &services.Token{AccessToken: "placeholder"}}
	s := newServer(users, fs)
	c := startServer(t, s)
	ctx := context.Background()

	ping, err := c.Ping(ctx, &rpc.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", ping.Status)

	_, err = c.ListRecent(ctx, &rpc.ListRecentRequest{Limit: 5})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	token, _, err := auth.GenerateToken("u-7", s.jwtSecret, time.Now(), time.Hour)
	require.NoError(t, err)
	authed := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, token)

	list, err := c.ListRecent(authed, &rpc.ListRecentRequest{Limit: 5})
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)
	assert.JSONEq(t, `{"species":"pike"}`, string(list.Documents[0].Payload))
	assert.Equal(t, "u-7", fs.gotUser)

	resp, err := c.Commit(authed, &rpc.CommitRequest{Mutations: []rpc.Mutation{{Kind: rpc.MutationDelete, ID: "c1"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Applied)

	fs.commitErr = common.ErrOwnershipConflict
	_, err = c.Commit(authed, &rpc.CommitRequest{Mutations: []rpc.Mutation{{Kind: rpc.MutationDelete, ID: "c1"}}})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv := NewGRPCServer("127.0.0.1:0", logging.Discard(), &fakeUsers{}, &fakeSync{}, nil, []byte("k"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	srv := NewGRPCServer("127.0.0.1:99999", logging.Discard(), &fakeUsers{}, &fakeSync{}, nil, []byte("k"))
	require.Error(t, srv.Run(context.Background()))
}
