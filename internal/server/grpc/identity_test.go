package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	reflectionv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// dialTestServer serves s over an in-memory listener and returns a client.
func dialTestServer(t *testing.T, s *GRPCServer) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := s.newServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func outgoing(token string) context.Context {
	ctx := context.Background()
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, authorizationMD, "Bearer "+token)
}

func newIdentityTestServer(checks ...ReadinessCheck) *GRPCServer {
	return NewGRPCServer("bufnet", nopLogger{}, defaultAuthn(),
		WithIdentityService(NewIdentityServer(checks...)),
		WithReflection(),
	)
}

func TestIdentity_WhoAmI(t *testing.T) {
	conn := dialTestServer(t, newIdentityTestServer())

	out := &structpb.Struct{}
	err := conn.Invoke(outgoing("user-token"), Identity_WhoAmI_FullMethodName, &emptypb.Empty{}, out)
	require.NoError(t, err)

	m := out.AsMap()
	assert.Equal(t, "u-1", m["id"])
	assert.Equal(t, "user", m["role"])
	assert.Equal(t, []any{"read_projects"}, m["permissions"])
}

func TestIdentity_WhoAmI_RequiresToken(t *testing.T) {
	conn := dialTestServer(t, newIdentityTestServer())

	err := conn.Invoke(outgoing(""), Identity_WhoAmI_FullMethodName, &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	err = conn.Invoke(outgoing("forged"), Identity_WhoAmI_FullMethodName, &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestIdentity_ReadyIsPermissionGated(t *testing.T) {
	conn := dialTestServer(t, newIdentityTestServer(
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
	))

	err := conn.Invoke(outgoing("user-token"), Identity_Ready_FullMethodName, &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	out := &structpb.Struct{}
	err = conn.Invoke(outgoing("admin-token"), Identity_Ready_FullMethodName, &emptypb.Empty{}, out)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"postgres": "ok"}, out.AsMap())
}

func TestIdentity_ReadyReportsUnavailable(t *testing.T) {
	conn := dialTestServer(t, newIdentityTestServer(
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	))

	err := conn.Invoke(outgoing("admin-token"), Identity_Ready_FullMethodName, &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestIdentity_HealthStaysPublic(t *testing.T) {
	conn := dialTestServer(t, newIdentityTestServer())

	_, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.NotEqual(t, codes.Unauthenticated, status.Code(err))
}

func TestReflection_ListsServicesWithoutToken(t *testing.T) {
	conn := dialTestServer(t, newIdentityTestServer())

	stream, err := reflectionv1.NewServerReflectionClient(conn).ServerReflectionInfo(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(&reflectionv1.ServerReflectionRequest{
		MessageRequest: &reflectionv1.ServerReflectionRequest_ListServices{},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())

	var names []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	assert.Contains(t, names, IdentityServiceName)
	assert.Contains(t, names, "grpc.health.v1.Health")
}
