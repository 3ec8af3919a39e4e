// Package grpcgateway adapts the gateway to gRPC server interceptors. Call
// metadata is mapped onto the transport-neutral request shape: the full
// method name becomes the endpoint, the peer address becomes the remote
// address and metadata keys become headers.
package grpcgateway

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/realmgate/realmgate"
)

// ExclusionChecker reports whether a full method name skips authentication,
// e.g. health checks and reflection.
type ExclusionChecker func(fullMethod string) bool

// Interceptor authenticates gRPC calls through a gateway.
type Interceptor struct {
	gateway   *realmgate.Gateway
	exclusion ExclusionChecker
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithExclusionChecker registers methods that bypass authentication.
func WithExclusionChecker(check ExclusionChecker) Option {
	return func(i *Interceptor) { i.exclusion = check }
}

// New builds an Interceptor around gw.
func New(gw *realmgate.Gateway, opts ...Option) *Interceptor {
	i := &Interceptor{gateway: gw}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// UnaryServerInterceptor returns the unary authentication interceptor.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		authCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(authCtx, req)
	}
}

// StreamServerInterceptor returns the stream authentication interceptor.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		authCtx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: authCtx})
	}
}

func (i *Interceptor) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	if i.exclusion != nil && i.exclusion(fullMethod) {
		return ctx, nil
	}

	result := i.gateway.Authenticate(ctx, requestFromCall(ctx, fullMethod))
	if !result.Proceed() {
		return nil, rejectionStatus(*result.Rejection)
	}
	return realmgate.SetIdentity(ctx, result.Identity), nil
}

// requestFromCall synthesizes request metadata from the call context.
func requestFromCall(ctx context.Context, fullMethod string) realmgate.RequestMetadata {
	headers := http.Header{}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for key, values := range md {
			for _, v := range values {
				headers.Add(key, v)
			}
		}
	}

	remoteAddr := ""
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remoteAddr = p.Addr.String()
	}

	return realmgate.RequestMetadata{
		Method:     "POST",
		Path:       fullMethod,
		RemoteAddr: remoteAddr,
		Headers:    headers,
	}
}

// rejectionStatus maps the HTTP-shaped rejection onto a gRPC status. The
// client body's code and correlation id survive in the message so callers
// can still join logs.
func rejectionStatus(resp realmgate.ErrorResponse) error {
	code := codes.Unauthenticated
	switch resp.Status {
	case http.StatusTooManyRequests:
		code = codes.ResourceExhausted
	case http.StatusServiceUnavailable:
		code = codes.Unavailable
	case http.StatusInternalServerError:
		code = codes.Internal
	}
	return status.Errorf(code, "%s: %s (correlation_id=%s)",
		resp.Body.Error, resp.Body.ErrorDescription, resp.Body.CorrelationID)
}

type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
