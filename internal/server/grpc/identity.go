package grpc

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	reflectionv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	reflectionv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	IdentityServiceName            = "authkeeper.v1.Identity"
	Identity_WhoAmI_FullMethodName = "/" + IdentityServiceName + "/WhoAmI"
	Identity_Ready_FullMethodName  = "/" + IdentityServiceName + "/Ready"
)

// ReadinessCheck reports whether a backing store can serve requests.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// IdentityServer answers who the caller is and, for operators, whether the
// stores behind the server are reachable. Requests and responses use the
// protobuf well-known Empty and Struct types.
type IdentityServer struct {
	checks []ReadinessCheck
}

func NewIdentityServer(checks ...ReadinessCheck) *IdentityServer {
	return &IdentityServer{checks: checks}
}

// WhoAmI returns the principal the access token interceptor attached.
func (s *IdentityServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	perms := []any{}
	for _, name := range p.Role.PermissionNames() {
		perms = append(perms, name)
	}

	out, err := structpb.NewStruct(map[string]any{
		"id":          p.UserID,
		"email":       p.Email,
		"role":        p.Role.String(),
		"permissions": perms,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// Ready runs every readiness check. Any failing store turns the call into
// codes.Unavailable.
func (s *IdentityServer) Ready(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	result := map[string]any{}
	failed := false
	for _, ch := range s.checks {
		if err := ch.Check(ctx); err != nil {
			result[ch.Name] = "unavailable"
			failed = true
			continue
		}
		result[ch.Name] = "ok"
	}
	if failed {
		return nil, status.Error(codes.Unavailable, "not ready")
	}

	out, err := structpb.NewStruct(result)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *IdentityServer) register(r grpc.ServiceRegistrar) {
	r.RegisterService(&identityServiceDesc, s)
}

// WithIdentityService serves s and gates Ready on roles.ManageSystem.
// WhoAmI only needs a valid access token.
func WithIdentityService(s *IdentityServer) Option {
	return func(g *GRPCServer) {
		WithService(s.register)(g)
		WithMethodPermission(Identity_Ready_FullMethodName, roles.ManageSystem)(g)
	}
}

// WithReflection registers server reflection and leaves it unauthenticated
// so tooling such as grpcurl can list services.
func WithReflection() Option {
	return func(g *GRPCServer) {
		WithService(func(r grpc.ServiceRegistrar) {
			if srv, ok := r.(reflection.GRPCServer); ok {
				reflection.Register(srv)
			}
		})(g)
		WithPublicMethod(reflectionv1.ServerReflection_ServerReflectionInfo_FullMethodName)(g)
		WithPublicMethod(reflectionv1alpha.ServerReflection_ServerReflectionInfo_FullMethodName)(g)
	}
}

type identityService interface {
	WhoAmI(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Ready(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*identityService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: identityWhoAmIHandler},
		{MethodName: "Ready", Handler: identityReadyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authkeeper/v1/identity.proto",
}

func identityWhoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(identityService).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Identity_WhoAmI_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(identityService).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func identityReadyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(identityService).Ready(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Identity_Ready_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(identityService).Ready(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
