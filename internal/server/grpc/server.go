package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Registrar attaches an application service to the server before it starts.
type Registrar func(s grpc.ServiceRegistrar)

type GRPCServer struct {
	address     string
	authn       Authenticator
	permissions map[string]roles.Permission
	public      map[string]bool
	registrars  []Registrar
	health      *health.Server
	logger      logging.Logger
}

// NewGRPCServer builds a server whose every method requires a bearer access
// token, except the health service and methods listed by WithPublicMethod.
func NewGRPCServer(a string, l logging.Logger, authn Authenticator, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address:     a,
		authn:       authn,
		permissions: map[string]roles.Permission{},
		public: map[string]bool{
			healthpb.Health_Check_FullMethodName: true,
			healthpb.Health_Watch_FullMethodName: true,
		},
		health: health.NewServer(),
		logger: l.With("module", "grpc_server"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type Option func(*GRPCServer)

// WithMethodPermission gates fullMethod on perm in addition to authentication.
func WithMethodPermission(fullMethod string, perm roles.Permission) Option {
	return func(s *GRPCServer) { s.permissions[fullMethod] = perm }
}

func WithPublicMethod(fullMethod string) Option {
	return func(s *GRPCServer) { s.public[fullMethod] = true }
}

func WithService(r Registrar) Option {
	return func(s *GRPCServer) { s.registrars = append(s.registrars, r) }
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	for _, r := range s.registrars {
		r(srv)
	}
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
