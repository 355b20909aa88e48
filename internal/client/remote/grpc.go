package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/auth"
	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCStore talks to the reference remote store. The owner is carried by
// the access token, so the ownerID arguments only select the token's user.
type GRPCStore struct {
	conn    *grpc.ClientConn
	client  rpc.CatchSyncClient
	tokens  auth.TokenSource
	timeout time.Duration
}

// NewGRPCStore prepares a lazy connection to addr. tokens may be nil for a
// store only used to register and log in.
func NewGRPCStore(addr string, tokens auth.TokenSource, timeout time.Duration, opts ...grpc.DialOption) (*GRPCStore, error) {
	s := &GRPCStore{tokens: tokens, timeout: timeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	s.conn = conn
	s.client = rpc.NewCatchSyncClient(conn)
	return s, nil
}

func (s *GRPCStore) Close() error {
	return s.conn.Close()
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCStore) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	switch method {
	case rpc.MethodLogin, rpc.MethodRegister, rpc.MethodPing:
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	if s.tokens == nil {
		return common.ErrorUnauthorized
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

func (s *GRPCStore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GRPCStore) Commit(ctx context.Context, _ string, mutations []Mutation) error {
	req := &rpc.CommitRequest{Mutations: make([]rpc.Mutation, 0, len(mutations))}
	for _, m := range mutations {
		wm := rpc.Mutation{Kind: rpc.MutationKind(m.Kind), ID: m.ID}
		if m.Kind == Upsert {
			if m.Record == nil {
				return fmt.Errorf("%w: upsert %s without record", common.ErrMalformedOperation, m.ID)
			}
			doc, err := ToDocument(*m.Record)
			if err != nil {
				return err
			}
			wm.Document = &doc
		}
		req.Mutations = append(req.Mutations, wm)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if _, err := s.client.Commit(ctx, req); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *GRPCStore) ListRecent(ctx context.Context, _ string, limit int) ([]models.Catch, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.ListRecent(ctx, &rpc.ListRecentRequest{Limit: limit})
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]models.Catch, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		c, err := FromDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Register creates an account and returns its user ID.
func (s *GRPCStore) Register(ctx context.Context, username, password string) (string, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.Register(ctx, &rpc.RegisterRequest{Username: username, Password: password})
	if err != nil {
		return "", mapError(err)
	}
	return resp.UserID, nil
}

// Login exchanges credentials for an access token.
func (s *GRPCStore) Login(ctx context.Context, username, password string) (string, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.client.Login(ctx, &rpc.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", mapError(err)
	}
	return resp.AccessToken, nil
}

func (s *GRPCStore) Ping(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if _, err := s.client.Ping(ctx, &rpc.PingRequest{}); err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var base error
	switch st.Code() {
	case codes.Unauthenticated:
		base = common.ErrorUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		base = common.ErrUnavailable
	case codes.InvalidArgument:
		return newInvalidRequest(st.Message())
	case codes.PermissionDenied:
		base = common.ErrOwnershipConflict
	case codes.AlreadyExists:
		base = common.ErrorAlreadyExists
	case codes.NotFound:
		base = common.ErrorNotFound
	default:
		return err
	}
	return fmt.Errorf("%w: %s", base, st.Message())
}

// invalidRequestKinds are the rejections the server names in its
// InvalidArgument messages.
var invalidRequestKinds = []error{common.ErrBatchTooLarge, common.ErrMalformedOperation}

// invalidRequestError matches common.ErrInvalidRequest and, when the server
// message names one, the more specific sync error.
type invalidRequestError struct {
	kind error
	msg  string
}

func newInvalidRequest(msg string) error {
	e := &invalidRequestError{msg: msg}
	for _, k := range invalidRequestKinds {
		if strings.Contains(msg, k.Error()) {
			e.kind = k
			break
		}
	}
	return e
}

func (e *invalidRequestError) Error() string {
	return common.ErrInvalidRequest.Error() + ": " + e.msg
}

func (e *invalidRequestError) Unwrap() []error {
	if e.kind == nil {
		return []error{common.ErrInvalidRequest}
	}
	return []error{common.ErrInvalidRequest, e.kind}
}

// ToDocument converts a record into its wire form. Local sync flags stay local.
func ToDocument(c models.Catch) (rpc.Document, error) {
	c = c.Clone()
	c.Synced, c.SyncError = false, false
	payload, err := json.Marshal(c)
	if err != nil {
		return rpc.Document{}, fmt.Errorf("encode %s: %w", c.ID, err)
	}
	return rpc.Document{ID: c.ID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt, Payload: payload}, nil
}

// FromDocument rebuilds a record; identity and timestamps come from the
// document, not the payload.
func FromDocument(d rpc.Document) (models.Catch, error) {
	var c models.Catch
	if len(d.Payload) > 0 {
		if err := json.Unmarshal(d.Payload, &c); err != nil {
			return models.Catch{}, fmt.Errorf("decode %s: %w", d.ID, err)
		}
	}
	c.ID = d.ID
	c.CreatedAt = d.CreatedAt.UTC()
	c.UpdatedAt = nil
	if d.UpdatedAt != nil {
		u := d.UpdatedAt.UTC()
		c.UpdatedAt = &u
	}
	c.Synced, c.SyncError = false, false
	return c, nil
}
