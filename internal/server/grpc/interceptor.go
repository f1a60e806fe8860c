package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// authorizationMD is the metadata key; gRPC lowercases header names.
const authorizationMD = "authorization"

// Authenticator resolves a bearer access token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Principal, error)
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authorize(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (s *GRPCServer) accessTokenStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authorize(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &principalStream{ServerStream: ss, ctx: ctx})
}

func (s *GRPCServer) authorize(ctx context.Context, method string) (context.Context, error) {
	if s.public[method] {
		return ctx, nil
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(authorizationMD); len(values) > 0 {
			header = values[0]
		}
	}
	token, ok := auth.BearerToken(header)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	p, err := s.authn.Authenticate(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}

	if perm, gated := s.permissions[method]; gated && !p.Can(perm) {
		s.logger.Info(ctx, "permission denied", "method", method, "user_id", p.UserID)
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}

	return auth.WithPrincipal(ctx, p), nil
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (p *principalStream) Context() context.Context { return p.ctx }

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, "invalid request")
	case errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "token expired")
	case errors.Is(err, common.ErrRevokedToken):
		return status.Error(codes.Unauthenticated, "token revoked")
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrSecondFactorRequired),
		errors.Is(err, common.ErrInvalidSecondFactorCode):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, common.ErrAccountDisabled):
		return status.Error(codes.PermissionDenied, "account disabled")
	case errors.Is(err, common.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "service unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
