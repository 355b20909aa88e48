// Package grpc exposes the sync server's services over gRPC using the JSON
// codec from internal/rpc.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/rpc"
	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
	"github.com/dmitrijs2005/catchkeeper/internal/server/services"
	"google.golang.org/grpc"
)

type userSvc interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.Token, error)
}

type syncSvc interface {
	Commit(ctx context.Context, userID string, changes []services.Change) (int, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.Catch, error)
}

// Pinger reports database reachability; *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type GRPCServer struct {
	address   string
	users     userSvc
	catches   syncSvc
	db        Pinger
	logger    logging.Logger
	jwtSecret []byte
}

var _ rpc.CatchSyncServer = (*GRPCServer)(nil)

func NewGRPCServer(address string, l logging.Logger, us userSvc, ss syncSvc, db Pinger, secretKey []byte) *GRPCServer {
	return &GRPCServer{
		address:   address,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		catches:   ss,
		db:        db,
		jwtSecret: secretKey,
	}
}

// Run listens on the configured address and serves until ctx is cancelled,
// then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterCatchSyncServer(srv, s)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	<-stopped
	return nil
}
