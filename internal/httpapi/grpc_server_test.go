package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"consorcia.org/internal/authz"
	"consorcia.org/internal/store/memory"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv AuthorizerServer, probe readinessChecker, token string) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server, _ := NewServer(srv, probe, token)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		server.Stop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return conn
}

func callAuthorizer(ctx context.Context, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+authorizerService+"/"+method, req, out)
	return out, err
}

func TestGRPCCanAccess(t *testing.T) {
	w := newWorld(t, nil)
	conn := startBufGRPC(t, NewGRPCServer(w.api.Engine(), w.api.Filters()), ReadyProbe{}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cases := []struct {
		name    string
		in      map[string]any
		allowed bool
		reason  string
	}{
		{
			name:    "tenant reads own consortium",
			in:      map[string]any{"user_id": float64(w.tenant.ID), "role": "tenant_admin", "kind": "consortium", "resource_id": float64(w.c1.ID), "action": "read"},
			allowed: true,
		},
		{
			name:   "owner modifies own unit",
			in:     map[string]any{"user_id": float64(w.owner.ID), "role": "propietario", "kind": "unit", "resource_id": float64(w.u1a.ID), "action": "modify"},
			reason: "FORBIDDEN",
		},
		{
			name:   "missing unit",
			in:     map[string]any{"user_id": float64(w.tenant.ID), "role": "tenant_admin", "kind": "unit", "resource_id": float64(999), "action": "read"},
			reason: "NOT_FOUND",
		},
		{
			name:   "anonymous",
			in:     map[string]any{"role": "admin_global", "kind": "unit", "resource_id": float64(w.u1a.ID), "action": "read"},
			reason: "UNAUTHENTICATED",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := callAuthorizer(ctx, conn, "CanAccess", tc.in)
			if err != nil {
				t.Fatalf("CanAccess: %v", err)
			}
			fields := out.GetFields()
			if fields["allowed"].GetBoolValue() != tc.allowed {
				t.Fatalf("expected allowed=%v, got %v", tc.allowed, out)
			}
			if got := fields["reason"].GetStringValue(); got != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, got)
			}
		})
	}

	_, err := callAuthorizer(ctx, conn, "CanAccess", map[string]any{"user_id": float64(1), "kind": "building", "action": "read"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for unknown kind, got %v", err)
	}
	_, err = callAuthorizer(ctx, conn, "CanAccess", map[string]any{"user_id": float64(1), "kind": "unit", "action": "purge"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for unknown action, got %v", err)
	}
}

func TestGRPCListFilter(t *testing.T) {
	w := newWorld(t, nil)
	conn := startBufGRPC(t, NewGRPCServer(w.api.Engine(), w.api.Filters()), ReadyProbe{}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := callAuthorizer(ctx, conn, "ListFilter", map[string]any{"user_id": float64(w.tenant.ID), "role": "tenant_admin", "kind": "consortium"})
	if err != nil {
		t.Fatalf("ListFilter: %v", err)
	}
	fields := out.GetFields()
	if fields["kind"].GetStringValue() != "tenant" || fields["field"].GetStringValue() != "tenant_id" {
		t.Fatalf("unexpected tenant filter: %v", out)
	}
	if int64(fields["value"].GetNumberValue()) != w.tenant.ID {
		t.Fatalf("expected value %d, got %v", w.tenant.ID, fields["value"])
	}

	out, err = callAuthorizer(ctx, conn, "ListFilter", map[string]any{"user_id": float64(w.owner.ID), "role": "propietario", "kind": "unit"})
	if err != nil {
		t.Fatalf("ListFilter: %v", err)
	}
	ids := out.GetFields()["ids"].GetListValue().GetValues()
	if out.GetFields()["kind"].GetStringValue() != "ids" || len(ids) != 1 || int64(ids[0].GetNumberValue()) != w.u1a.ID {
		t.Fatalf("unexpected owner unit filter: %v", out)
	}

	out, err = callAuthorizer(ctx, conn, "ListFilter", map[string]any{"user_id": float64(w.provider.ID), "role": "proveedor", "kind": "unit"})
	if err != nil {
		t.Fatalf("ListFilter: %v", err)
	}
	if out.GetFields()["kind"].GetStringValue() != "impossible" {
		t.Fatalf("provider must get the impossible filter, got %v", out)
	}
}

func TestGRPCUnavailable(t *testing.T) {
	w := newWorld(t, func(s *memory.Store) authz.Store { return outageStore{Store: s} })
	conn := startBufGRPC(t, NewGRPCServer(w.api.Engine(), w.api.Filters()), ReadyProbe{}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := callAuthorizer(ctx, conn, "ListFilter", map[string]any{"user_id": float64(w.owner.ID), "role": "propietario", "kind": "consortium"})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

type failingReadiness struct{}

func (failingReadiness) Check(context.Context) error { return errors.New("boom") }

func TestGRPCHealth(t *testing.T) {
	w := newWorld(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn := startBufGRPC(t, NewGRPCServer(w.api.Engine(), w.api.Filters()), ReadyProbe{}, "")
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: authorizerService})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}

	conn = startBufGRPC(t, NewGRPCServer(w.api.Engine(), w.api.Filters()), failingReadiness{}, "")
	resp, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.GetStatus())
	}
}

func TestGRPCRejectsMalformedIDs(t *testing.T) {
	w := newWorld(t, nil)
	conn := startBufGRPC(t, NewGRPCServer(w.api.Engine(), w.api.Filters()), ReadyProbe{}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	base := func(field string, v any) map[string]any {
		in := map[string]any{"user_id": float64(w.tenant.ID), "role": "tenant_admin", "kind": "unit", "resource_id": float64(w.u1a.ID), "action": "read"}
		in[field] = v
		return in
	}
	cases := []struct {
		name string
		in   map[string]any
	}{
		{"fractional resource", base("resource_id", float64(w.u1a.ID)+0.7)},
		{"negative resource", base("resource_id", float64(-3))},
		{"string resource", base("resource_id", "42")},
		{"fractional user", base("user_id", float64(w.tenant.ID)+0.5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := callAuthorizer(ctx, conn, "CanAccess", tc.in)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
		})
	}

	_, err := callAuthorizer(ctx, conn, "ListFilter", map[string]any{"user_id": 1.25, "role": "propietario", "kind": "unit"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument from ListFilter, got %v", err)
	}

	out, err := callAuthorizer(ctx, conn, "CanAccess", base("resource_id", float64(w.u1a.ID)))
	if err != nil || !out.GetFields()["allowed"].GetBoolValue() {
		t.Fatalf("whole ids must still work, got %v, %v", out, err)
	}
}

func TestGRPCServiceToken(t *testing.T) {
	w := newWorld(t, nil)
	const token = "svc-token-0123456789"
	conn := startBufGRPC(t, NewGRPCServer(w.api.Engine(), w.api.Filters()), ReadyProbe{}, token)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	in := map[string]any{"user_id": float64(w.global.ID), "role": "admin_global", "kind": "consortium"}

	if _, err := callAuthorizer(ctx, conn, "ListFilter", in); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without a token, got %v", err)
	}
	wrong := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer not-the-token")
	if _, err := callAuthorizer(wrong, conn, "ListFilter", in); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated with a wrong token, got %v", err)
	}
	right := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	out, err := callAuthorizer(right, conn, "ListFilter", in)
	if err != nil {
		t.Fatalf("ListFilter: %v", err)
	}
	if out.GetFields()["kind"].GetStringValue() != "none" {
		t.Fatalf("unexpected filter %v", out)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health must not need the token, got %v, %v", resp, err)
	}
}
