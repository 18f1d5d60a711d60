package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/httpapi"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"invalid argument", status.Error(codes.InvalidArgument, "unknown kind"), auth.ErrInvalidInput},
		{"unavailable", status.Error(codes.Unavailable, "db down"), authz.ErrUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), authz.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapError(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("mapError() = %v, want %v", got, tc.want)
			}
		})
	}

	internal := status.Error(codes.Internal, "internal")
	if got := mapError(internal); got != internal {
		t.Fatalf("expected pass through, got %v", got)
	}
}

// stubAuthorizer records the last request and answers from fixed replies.
type stubAuthorizer struct {
	last      map[string]any
	requestID string
	access    map[string]any
	filter    map[string]any
	err       error
}

func (s *stubAuthorizer) record(ctx context.Context, in *structpb.Struct) {
	s.last = in.AsMap()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 {
			s.requestID = v[0]
		}
	}
}

func (s *stubAuthorizer) CanAccess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.record(ctx, in)
	if s.err != nil {
		return nil, s.err
	}
	return structpb.NewStruct(s.access)
}

func (s *stubAuthorizer) ListFilter(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.record(ctx, in)
	if s.err != nil {
		return nil, s.err
	}
	return structpb.NewStruct(s.filter)
}

func startStub(t *testing.T, stub *stubAuthorizer) *Client {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server, _ := httpapi.NewServer(stub, httpapi.ReadyProbe{}, "")
	go func() { _ = server.Serve(listener) }()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		server.Stop()
	})
	return client
}

func TestClientCanAccess(t *testing.T) {
	stub := &stubAuthorizer{access: map[string]any{"allowed": false, "reason": "NOT_FOUND"}}
	client := startStub(t, stub)

	ctx, cancel := WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ctx = audit.WithRequestID(ctx, "01HZX3K7Q2J4M9W8E5R6T7Y8U9")

	d, err := client.CanAccess(ctx, auth.Identity{UserID: 7, Role: auth.RoleOwner}, authz.KindUnit, 42, authz.ActionRead)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if d.Allowed || d.Reason != authz.ReasonNotFound {
		t.Fatalf("unexpected decision %v", d)
	}
	want := map[string]any{"user_id": float64(7), "role": "propietario", "kind": "unit", "resource_id": float64(42), "action": "read"}
	if diff := cmp.Diff(want, stub.last); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	if stub.requestID != "01HZX3K7Q2J4M9W8E5R6T7Y8U9" {
		t.Fatalf("request id not forwarded, got %q", stub.requestID)
	}

	stub.access = map[string]any{"allowed": true, "reason": ""}
	d, err = client.CanAccess(ctx, auth.Identity{UserID: 7, Role: auth.RoleOwner}, authz.KindUnit, 42, authz.ActionRead)
	if err != nil || !d.Allowed {
		t.Fatalf("expected allow, got %v, %v", d, err)
	}
}

func TestClientListFilter(t *testing.T) {
	stub := &stubAuthorizer{filter: map[string]any{
		"kind":           "ids",
		"field":          "id",
		"value":          float64(0),
		"ids":            []any{float64(3), float64(5)},
		"consortium_ids": []any{float64(9)},
	}}
	client := startStub(t, stub)

	ctx, cancel := WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f, err := client.ListFilter(ctx, auth.Identity{UserID: 7, Role: auth.RoleRenter}, authz.KindUnit)
	if err != nil {
		t.Fatalf("ListFilter: %v", err)
	}
	want := authz.Filter{Kind: authz.FilterIDs, IDs: []int64{3, 5}, ConsortiumIDs: []int64{9}}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}

	stub.filter = map[string]any{"kind": "impossible", "field": "id", "value": float64(0), "ids": []any{}, "consortium_ids": []any{}}
	f, err = client.ListFilter(ctx, auth.Identity{UserID: 8, Role: auth.RoleProvider}, authz.KindConsortium)
	if err != nil {
		t.Fatalf("ListFilter: %v", err)
	}
	if diff := cmp.Diff(authz.Impossible(), f); diff != "" {
		t.Fatalf("expected impossible filter (-want +got):\n%s", diff)
	}

	stub.err = status.Error(codes.Unavailable, "permission data unavailable")
	if _, err := client.ListFilter(ctx, auth.Identity{UserID: 7, Role: auth.RoleRenter}, authz.KindUnit); !errors.Is(err, authz.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientSendsServiceToken(t *testing.T) {
	const token = "svc-token-0123456789"
	stub := &stubAuthorizer{filter: map[string]any{"kind": "none"}}
	listener := bufconn.Listen(1 << 20)
	server, _ := httpapi.NewServer(stub, httpapi.ReadyProbe{}, token)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	dial := func(opts ...grpc.DialOption) *Client {
		opts = append(opts, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }))
		client, err := Dial("passthrough:///bufnet", opts...)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	ctx, cancel := WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	caller := auth.Identity{UserID: 1, Role: auth.RoleGlobalAdmin}

	if _, err := dial().ListFilter(ctx, caller, authz.KindConsortium); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without a token, got %v", err)
	}
	f, err := dial(WithToken(token)).ListFilter(ctx, caller, authz.KindConsortium)
	if err != nil {
		t.Fatalf("ListFilter: %v", err)
	}
	if f.Kind != authz.FilterNone {
		t.Fatalf("expected no filter, got %+v", f)
	}
}
