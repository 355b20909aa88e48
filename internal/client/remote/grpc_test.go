package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/rpc"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeServer struct {
	mu        sync.Mutex
	tokens    []string
	commits   []*rpc.CommitRequest
	docs      []rpc.Document
	commitErr error
	block     bool
}

func (f *fakeServer) token(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, md.Get(common.AccessTokenHeaderName)...)
}

func (f *fakeServer) Register(ctx context.Context, in *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	if in.Username == "taken" {
		return nil, status.Error(codes.AlreadyExists, "username taken")
	}
	return &rpc.RegisterResponse{UserID: "u-1"}, nil
}

func (f *fakeServer) Login(ctx context.Context, in *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	f.token(ctx)
	if in.Password != "pw" {
		return nil, status.Error(codes.Unauthenticated, "bad credentials")
	}
	return &rpc.LoginResponse{AccessToken: "jwt-token"}, nil
}

func (f *fakeServer) Commit(ctx context.Context, in *rpc.CommitRequest) (*rpc.CommitResponse, error) {
	f.token(ctx)
	if f.block {
		<-ctx.Done()
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	f.mu.Lock()
	f.commits = append(f.commits, in)
	f.mu.Unlock()
	return &rpc.CommitResponse{Applied: len(in.Mutations)}, nil
}

func (f *fakeServer) ListRecent(ctx context.Context, in *rpc.ListRecentRequest) (*rpc.ListRecentResponse, error) {
	f.token(ctx)
	return &rpc.ListRecentResponse{Documents: f.docs}, nil
}

func (f *fakeServer) Ping(ctx context.Context, in *rpc.PingRequest) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(context.Context) (string, error) { return s.token, s.err }

func newStore(t *testing.T, srv rpc.CatchSyncServer, tokens staticTokens, timeout time.Duration) *GRPCStore {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	rpc.RegisterCatchSyncServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	store, err := NewGRPCStore("passthrough:///bufnet", tokens, timeout,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGRPCStore_CommitSendsTokenAndDocuments(t *testing.T) {
	srv := &fakeServer{}
	store := newStore(t, srv, staticTokens{token: "tok-1"}, time.Second)

	up := t0.Add(time.Hour)
	c := models.Catch{ID: "a", Species: "Pike", CreatedAt: t0, UpdatedAt: &up, Synced: true, SyncError: true}
	err := store.Commit(context.Background(), "u", []Mutation{
		{Kind: Upsert, ID: "a", Record: &c},
		{Kind: Delete, ID: "b"},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"tok-1"}, srv.tokens)
	require.Len(t, srv.commits, 1)
	muts := srv.commits[0].Mutations
	require.Equal(t, rpc.MutationUpsert, muts[0].Kind)
	require.Equal(t, rpc.MutationDelete, muts[1].Kind)
	require.Nil(t, muts[1].Document)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(muts[0].Document.Payload, &payload))
	require.Equal(t, "Pike", payload["species"])
	require.Equal(t, false, payload["synced"])
	require.NotContains(t, payload, "syncError")
}

func TestGRPCStore_ListRecentDecodesDocuments(t *testing.T) {
	c := models.Catch{ID: "a", Species: "Carp", Notes: "n", CreatedAt: t0}
	doc, err := ToDocument(c)
	require.NoError(t, err)
	srv := &fakeServer{docs: []rpc.Document{doc}}
	store := newStore(t, srv, staticTokens{token: "tok"}, time.Second)

	got, err := store.ListRecent(context.Background(), "u", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, models.SameContent(c, got[0]))
}

func TestGRPCStore_NoTokenNoCall(t *testing.T) {
	srv := &fakeServer{}
	store := newStore(t, srv, staticTokens{err: common.ErrorUnauthorized}, time.Second)

	err := store.Commit(context.Background(), "u", nil)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	require.Empty(t, srv.commits)
}

func TestGRPCStore_ErrorMapping(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unavailable, common.ErrUnavailable},
		{codes.Unauthenticated, common.ErrorUnauthorized},
		{codes.InvalidArgument, common.ErrInvalidRequest},
		{codes.PermissionDenied, common.ErrOwnershipConflict},
	}
	for _, tc := range tests {
		t.Run(tc.code.String(), func(t *testing.T) {
			srv := &fakeServer{commitErr: status.Error(tc.code, "nope")}
			store := newStore(t, srv, staticTokens{token: "tok"}, time.Second)
			err := store.Commit(context.Background(), "u", nil)
			require.ErrorIs(t, err, tc.want)
		})
	}

	plain := errors.New("plain")
	require.Equal(t, plain, mapError(plain))
	require.Equal(t, codes.Internal, status.Code(mapError(status.Error(codes.Internal, "x"))))
}

func TestMapError_InvalidArgument(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		want    error
		notWant []error
	}{
		{
			name:    "credentials",
			msg:     "username and password are required",
			notWant: []error{common.ErrBatchTooLarge, common.ErrMalformedOperation},
		},
		{
			name:    "batch too large",
			msg:     "batch too large: 600 operations, limit 500",
			want:    common.ErrBatchTooLarge,
			notWant: []error{common.ErrMalformedOperation},
		},
		{
			name:    "malformed",
			msg:     "malformed sync operation: upsert c-1 has no record",
			want:    common.ErrMalformedOperation,
			notWant: []error{common.ErrBatchTooLarge},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(status.Error(codes.InvalidArgument, tt.msg))
			require.ErrorIs(t, err, common.ErrInvalidRequest)
			require.Equal(t, "invalid request: "+tt.msg, err.Error())
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
			for _, nw := range tt.notWant {
				require.NotErrorIs(t, err, nw)
			}
		})
	}
}

func TestGRPCStore_TimeoutIsUnavailable(t *testing.T) {
	srv := &fakeServer{block: true}
	store := newStore(t, srv, staticTokens{token: "tok"}, 50*time.Millisecond)

	err := store.Commit(context.Background(), "u", nil)
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestGRPCStore_LoginRegisterPing(t *testing.T) {
	srv := &fakeServer{}
	store := newStore(t, srv, staticTokens{}, time.Second)
	ctx := context.Background()

	token, err := store.Login(ctx, "ann", "pw")
	require.NoError(t, err)
	require.Equal(t, "jwt-token", token)
	require.Empty(t, srv.tokens, "login is sent without a token")

	_, err = store.Login(ctx, "ann", "wrong")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	id, err := store.Register(ctx, "ann", "pw")
	require.NoError(t, err)
	require.Equal(t, "u-1", id)

	_, err = store.Register(ctx, "taken", "pw")
	require.ErrorIs(t, err, common.ErrorAlreadyExists)

	require.NoError(t, store.Ping(ctx))
}

func TestFromDocument_TimestampsFromDocument(t *testing.T) {
	up := t0.Add(time.Minute)
	d := rpc.Document{ID: "x", CreatedAt: t0, UpdatedAt: &up, Payload: json.RawMessage(`{"id":"other","species":"Bass","synced":true}`)}
	c, err := FromDocument(d)
	require.NoError(t, err)
	require.Equal(t, "x", c.ID)
	require.Equal(t, "Bass", c.Species)
	require.Equal(t, up, *c.UpdatedAt)
	require.False(t, c.Synced)

	_, err = FromDocument(rpc.Document{ID: "y", Payload: json.RawMessage(`{`)})
	require.Error(t, err)
}
