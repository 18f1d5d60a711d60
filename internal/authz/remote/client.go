// Package remote asks a running authorizer over gRPC. Sibling services that
// already decoded a caller use it instead of reading permission data directly.
package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

const (
	methodCanAccess  = "/consorcia.authz.v1.Authorizer/CanAccess"
	methodListFilter = "/consorcia.authz.v1.Authorizer/ListFilter"
)

// Client wraps the connection to the authorizer.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a new client. The transport is insecure unless opts override it.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// serviceToken sends the shared token as a bearer credential on every call.
type serviceToken string

func (t serviceToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (serviceToken) RequireTransportSecurity() bool { return false }

// WithToken authenticates the client to a server started with a service token.
func WithToken(token string) grpc.DialOption {
	return grpc.WithPerRPCCredentials(serviceToken(token))
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// CanAccess mirrors authz.Engine.CanAccess.
func (c *Client) CanAccess(ctx context.Context, id auth.Identity, kind authz.ResourceKind, resourceID int64, action authz.Action) (authz.Decision, error) {
	req, err := structpb.NewStruct(map[string]any{
		"user_id":     float64(id.UserID),
		"role":        string(id.Role),
		"kind":        string(kind),
		"resource_id": float64(resourceID),
		"action":      string(action),
	})
	if err != nil {
		return authz.Decision{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(outgoing(ctx), methodCanAccess, req, out); err != nil {
		return authz.Decision{}, mapError(err)
	}
	fields := out.GetFields()
	if fields["allowed"].GetBoolValue() {
		return authz.Allow(), nil
	}
	return authz.Deny(authz.Reason(fields["reason"].GetStringValue())), nil
}

// ListFilter mirrors authz.FilterBuilder.Build.
func (c *Client) ListFilter(ctx context.Context, id auth.Identity, kind authz.ResourceKind) (authz.Filter, error) {
	req, err := structpb.NewStruct(map[string]any{
		"user_id": float64(id.UserID),
		"role":    string(id.Role),
		"kind":    string(kind),
	})
	if err != nil {
		return authz.Filter{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(outgoing(ctx), methodListFilter, req, out); err != nil {
		return authz.Filter{}, mapError(err)
	}
	fields := out.GetFields()
	var f authz.Filter
	if err := f.Kind.UnmarshalText([]byte(fields["kind"].GetStringValue())); err != nil {
		return authz.Filter{}, fmt.Errorf("decode filter: %w", err)
	}
	f.Value = int64(fields["value"].GetNumberValue())
	f.IDs = int64List(fields["ids"])
	f.ConsortiumIDs = int64List(fields["consortium_ids"])
	return f, nil
}

func int64List(v *structpb.Value) []int64 {
	values := v.GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]int64, len(values))
	for i, n := range values {
		out[i] = int64(n.GetNumberValue())
	}
	return out
}

// outgoing forwards the request id so both sides log under the same id.
func outgoing(ctx context.Context) context.Context {
	if rid := audit.RequestIDFromContext(ctx); rid != "" {
		return metadata.AppendToOutgoingContext(ctx, "x-request-id", rid)
	}
	return ctx
}

// mapError turns status codes back into the sentinels callers check with errors.Is.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", auth.ErrInvalidInput, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", authz.ErrUnavailable, st.Message())
	default:
		return err
	}
}

// WithTimeout returns a context with a default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
