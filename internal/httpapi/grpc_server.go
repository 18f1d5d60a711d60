package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/obs"
)

const (
	authorizerService = "consorcia.authz.v1.Authorizer"
	requestIDMetadata = "x-request-id"
)

// AuthorizerServer answers access questions for sibling services that already
// hold a decoded identity. Requests and replies are structpb.Struct values:
//
//	CanAccess  {user_id, role, kind, resource_id, action} -> {allowed, reason}
//	ListFilter {user_id, role, kind}                      -> {kind, field, value, ids, consortium_ids}
type AuthorizerServer interface {
	CanAccess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFilter(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var authorizerServiceDesc = grpc.ServiceDesc{
	ServiceName: authorizerService,
	HandlerType: (*AuthorizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CanAccess", Handler: unaryHandler("CanAccess", AuthorizerServer.CanAccess)},
		{MethodName: "ListFilter", Handler: unaryHandler("ListFilter", AuthorizerServer.ListFilter)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "consorcia/authz/v1/authorizer.proto",
}

func unaryHandler(method string, call func(AuthorizerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + authorizerService + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthorizerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthorizerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterAuthorizerServer attaches srv to s.
func RegisterAuthorizerServer(s grpc.ServiceRegistrar, srv AuthorizerServer) {
	s.RegisterService(&authorizerServiceDesc, srv)
}

// GRPCServer implements AuthorizerServer on top of the engine and filter builder.
type GRPCServer struct {
	engine  *authz.Engine
	filters *authz.FilterBuilder
}

func NewGRPCServer(engine *authz.Engine, filters *authz.FilterBuilder) *GRPCServer {
	return &GRPCServer{engine: engine, filters: filters}
}

// NewServer builds a grpc.Server carrying the authorizer and the standard
// health service. The health status follows probe on every check interval.
// A non-empty token must be presented as a bearer credential on authorizer calls.
func NewServer(srv AuthorizerServer, probe readinessChecker, token string) (*grpc.Server, *health.Server) {
	interceptors := []grpc.UnaryServerInterceptor{logUnary}
	if token != "" {
		interceptors = append(interceptors, requireToken(token))
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	RegisterAuthorizerServer(s, srv)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	setHealth(context.Background(), hs, probe)
	return s, hs
}

// WatchHealth refreshes the health status until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, probe readinessChecker, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			setHealth(ctx, hs, probe)
		}
	}
}

func setHealth(ctx context.Context, hs *health.Server, probe readinessChecker) {
	st := healthpb.HealthCheckResponse_SERVING
	if probe != nil {
		if err := probe.Check(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(authorizerService, st)
}

// requireToken checks the shared service token. Health checks stay open for probes.
func requireToken(token string) grpc.UnaryServerInterceptor {
	want := []byte(bearer + token)
	prefix := "/" + authorizerService + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		got := md.Get("authorization")
		if len(got) == 0 || subtle.ConstantTimeCompare([]byte(got[0]), want) != 1 {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid service token")
		}
		return handler(ctx, req)
	}
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := obs.Logger().WithFields(logrus.Fields{
		"method":      info.FullMethod,
		"code":        status.Code(err).String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if rid := md.Get(requestIDMetadata); len(rid) > 0 {
			entry = entry.WithField("request_id", rid[0])
		}
	}
	if err != nil {
		entry.WithError(err).Warn("grpc request")
	} else {
		entry.Debug("grpc request")
	}
	return resp, err
}

func (s *GRPCServer) CanAccess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, kind, err := identityAndKind(in)
	if err != nil {
		return nil, err
	}
	resourceID, err := wholeNumber(in.GetFields(), "resource_id")
	if err != nil {
		return nil, err
	}
	action := authz.Action(in.GetFields()["action"].GetStringValue())
	switch action {
	case authz.ActionRead, authz.ActionModify, authz.ActionDelete:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown action %q", action)
	}
	d, err := s.engine.CanAccess(authz.WithRequestCache(ctx), id, kind, resourceID, action)
	if err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{
		"allowed": d.Allowed,
		"reason":  string(d.Reason),
	})
}

func (s *GRPCServer) ListFilter(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, kind, err := identityAndKind(in)
	if err != nil {
		return nil, err
	}
	f, err := s.filters.Build(authz.WithRequestCache(ctx), id, kind)
	if err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{
		"kind":           f.Kind.String(),
		"field":          f.Field(),
		"value":          float64(f.Value),
		"ids":            numbers(f.IDs),
		"consortium_ids": numbers(f.ConsortiumIDs),
	})
}

// identityAndKind reads the caller and resource kind. A missing user id is
// passed through as anonymous so the engine denies it.
func identityAndKind(in *structpb.Struct) (auth.Identity, authz.ResourceKind, error) {
	fields := in.GetFields()
	kind, err := authz.ParseKind(fields["kind"].GetStringValue())
	if err != nil {
		return auth.Identity{}, "", status.Error(codes.InvalidArgument, err.Error())
	}
	userID, err := wholeNumber(fields, "user_id")
	if err != nil {
		return auth.Identity{}, "", err
	}
	return auth.Identity{UserID: userID, Role: auth.Role(fields["role"].GetStringValue())}, kind, nil
}

// maxWholeNumber is the largest integer a float64 holds exactly.
const maxWholeNumber = 1 << 53

// wholeNumber reads a non-negative integer field. A missing or null field reads as zero.
func wholeNumber(fields map[string]*structpb.Value, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return 0, nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 || f > maxWholeNumber {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a non-negative whole number", name)
		}
		return int64(f), nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
}

func numbers(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = float64(id)
	}
	return out
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, authz.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
