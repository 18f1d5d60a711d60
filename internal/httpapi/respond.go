package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/obs"
)

// retryAfterSeconds is advertised when permission data cannot be read.
const retryAfterSeconds = "5"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleError maps sentinel errors onto status codes. Anything unrecognised is
// logged and hidden behind a generic 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrUnavailable):
		logFailure(r, err, "permission data unavailable")
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, r, http.StatusServiceUnavailable, "permission data temporarily unavailable")
	default:
		logFailure(r, err, "request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logFailure(r *http.Request, err error, msg string) {
	obs.Logger().WithFields(logrus.Fields{
		"request_id": audit.RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).WithError(err).Error(msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", auth.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", auth.ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", auth.ErrInvalidInput)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", auth.ErrInvalidInput, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", auth.ErrInvalidInput, name)
	}
	return v, nil
}
