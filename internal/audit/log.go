package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/obs"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and caller.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := logrus.Fields{
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		entry["user_id"] = id.UserID
		entry["role"] = string(id.Role)
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	entry["fields"] = copied

	obs.Logger().WithFields(entry).Info("audit")
	return nil
}
