package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/consortiums/7":              "/v1/consortiums/:id",
		"/v1/consortiums/7/activate":     "/v1/consortiums/:id/activate",
		"/v1/users/12/assignments":       "/v1/users/:id/assignments",
		"/v1/units?consortium_id=5":      "/v1/units",
		"/v1/modules/matrix/propietario": "/v1/modules/matrix/propietario",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsCanonicalPath(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/units/:id", "204"))

	req := httptest.NewRequest(http.MethodGet, "/v1/units/42", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/units/:id", "204"))
	if after-before != 1 {
		t.Fatalf("expected one counted request, got %v", after-before)
	}
}

func TestObserveDecision(t *testing.T) {
	c := authzDecisionsTotal.WithLabelValues("unit", "read", "allow")
	before := testutil.ToFloat64(c)
	ObserveDecision("unit", "read", "allow")
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Fatalf("expected counter to move by 1, got %v", got)
	}
	ObserveScopeResolve(3*time.Millisecond, nil)
}

func TestLogRequestWritesJSON(t *testing.T) {
	l := Logger()
	orig := l.Out
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	LogRequest(logrus.Fields{"status": 404, "path": "/v1/units/9"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "warning" {
		t.Fatalf("expected warning level for 4xx, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", entry)
	}
}

func TestSetLevel(t *testing.T) {
	orig := Logger().GetLevel()
	defer Logger().SetLevel(orig)
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if Logger().GetLevel() != logrus.DebugLevel {
		t.Fatalf("level not applied")
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
