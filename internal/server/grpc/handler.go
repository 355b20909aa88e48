package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/rpc"
	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
	"github.com/dmitrijs2005/catchkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	u, err := s.users.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "register", err)
	}
	s.logger.Info(ctx, "Registered", "username", u.UserName, "user_id", u.ID)
	return &rpc.RegisterResponse{UserID: u.ID}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	tok, err := s.users.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "login", err)
	}
	return &rpc.LoginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *rpc.PingRequest) (*rpc.PingResponse, error) {
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn(ctx, "database ping failed", "error", err)
			return nil, status.Error(codes.Unavailable, "database unavailable")
		}
	}
	return &rpc.PingResponse{Status: "ok"}, nil
}

func (s *GRPCServer) Commit(ctx context.Context, req *rpc.CommitRequest) (*rpc.CommitResponse, error) {
	userID, ok := userIDFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing user")
	}

	changes, err := toChanges(req.Mutations)
	if err != nil {
		return nil, s.toStatus(ctx, "commit", err)
	}

	n, err := s.catches.Commit(ctx, userID, changes)
	if err != nil {
		return nil, s.toStatus(ctx, "commit", err)
	}
	s.logger.Debug(ctx, "Committed", "user_id", userID, "applied", n)
	return &rpc.CommitResponse{Applied: n}, nil
}

func (s *GRPCServer) ListRecent(ctx context.Context, req *rpc.ListRecentRequest) (*rpc.ListRecentResponse, error) {
	userID, ok := userIDFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing user")
	}

	rows, err := s.catches.ListRecent(ctx, userID, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, "list", err)
	}

	docs := make([]rpc.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, rpc.Document{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Payload: r.Payload})
	}
	return &rpc.ListRecentResponse{Documents: docs}, nil
}

func toChanges(muts []rpc.Mutation) ([]services.Change, error) {
	changes := make([]services.Change, 0, len(muts))
	for i, m := range muts {
		switch m.Kind {
		case rpc.MutationDelete:
			changes = append(changes, services.Change{Delete: true, ID: m.ID})
		case rpc.MutationUpsert:
			c := services.Change{ID: m.ID}
			if d := m.Document; d != nil {
				c.Catch = &models.Catch{ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, Payload: d.Payload}
			}
			changes = append(changes, c)
		default:
			return nil, fmt.Errorf("%w: mutation %d has kind %q", common.ErrMalformedOperation, i, m.Kind)
		}
	}
	return changes, nil
}

// toStatus maps service errors onto gRPC codes. Unexpected errors are
// logged and reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, common.ErrBatchTooLarge),
		errors.Is(err, common.ErrMalformedOperation),
		errors.Is(err, services.ErrInvalidCredentials):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrOwnershipConflict):
		code = codes.PermissionDenied
	case errors.Is(err, common.ErrorAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		code = codes.Unauthenticated
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		s.logger.Error(ctx, op+" failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
