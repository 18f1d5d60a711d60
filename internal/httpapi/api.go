// Package httpapi serves the REST and gRPC surfaces. Every handler that
// touches a consortium or unit asks the authz engine first and renders the
// decision; list handlers pass the caller's filter straight to the store.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/obs"
	"consorcia.org/internal/property"
	"consorcia.org/internal/ratelimit"
)

const serviceName = "consorcia-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the collaborators the API needs. Limiter and Ready are optional.
type Deps struct {
	Auth     *auth.Service
	Users    *auth.UserService
	Store    authz.Store
	Modules  *authz.CachedMatrix
	Property *property.Service
	Limiter  ratelimit.Limiter
	Ready    readinessChecker
	Version  string
}

type API struct {
	router   *mux.Router
	auth     *auth.Service
	users    *auth.UserService
	resolver *authz.Resolver
	engine   *authz.Engine
	filters  *authz.FilterBuilder
	modules  *authz.CachedMatrix
	property *property.Service
	limiter  ratelimit.Limiter
	ready    readinessChecker
	version  string
}

func New(d Deps) (*API, error) {
	if d.Auth == nil || d.Users == nil || d.Store == nil || d.Modules == nil || d.Property == nil {
		return nil, errors.New("httpapi: auth, users, store, modules and property are required")
	}
	resolver := authz.NewResolver(d.Store)
	a := &API{
		router:   mux.NewRouter(),
		auth:     d.Auth,
		users:    d.Users,
		resolver: resolver,
		engine:   authz.NewEngine(d.Store, resolver),
		filters:  authz.NewFilterBuilder(resolver),
		modules:  d.Modules,
		property: d.Property,
		limiter:  d.Limiter,
		ready:    d.Ready,
		version:  d.Version,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	a.routes()
	return a, nil
}

// Engine exposes the decision engine for the gRPC surface.
func (a *API) Engine() *authz.Engine { return a.engine }

// Filters exposes the filter builder for the gRPC surface.
func (a *API) Filters() *authz.FilterBuilder { return a.filters }

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/auth/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/me", a.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/v1/me/scope", a.handleMyScope).Methods(http.MethodGet)

	r.HandleFunc("/v1/consortiums", a.listConsortiums).Methods(http.MethodGet)
	r.HandleFunc("/v1/consortiums", a.createConsortium).Methods(http.MethodPost)
	r.HandleFunc("/v1/consortiums/{id:[0-9]+}", a.getConsortium).Methods(http.MethodGet)
	r.HandleFunc("/v1/consortiums/{id:[0-9]+}", a.updateConsortium).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/v1/consortiums/{id:[0-9]+}", a.deleteConsortium).Methods(http.MethodDelete)
	r.HandleFunc("/v1/consortiums/{id:[0-9]+}/{transition:activate|deactivate}", a.transitionConsortium).Methods(http.MethodPost)

	r.HandleFunc("/v1/units", a.listUnits).Methods(http.MethodGet)
	r.HandleFunc("/v1/units", a.createUnit).Methods(http.MethodPost)
	r.HandleFunc("/v1/units/{id:[0-9]+}", a.getUnit).Methods(http.MethodGet)
	r.HandleFunc("/v1/units/{id:[0-9]+}", a.updateUnit).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/v1/units/{id:[0-9]+}", a.deleteUnit).Methods(http.MethodDelete)

	r.HandleFunc("/v1/users", a.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/v1/users", a.createUser).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{id:[0-9]+}", a.getUser).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{id:[0-9]+}", a.updateUser).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/v1/users/{id:[0-9]+}", a.deleteUser).Methods(http.MethodDelete)
	r.HandleFunc("/v1/users/{id:[0-9]+}/approve", a.approveUser).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{id:[0-9]+}/assignments", a.listAssignments).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{id:[0-9]+}/assignments", a.createAssignment).Methods(http.MethodPost)
	r.HandleFunc("/v1/assignments/{id:[0-9]+}/deactivate", a.deactivateAssignment).Methods(http.MethodPost)
	r.HandleFunc("/v1/assignments/{id:[0-9]+}", a.deleteAssignment).Methods(http.MethodDelete)

	r.HandleFunc("/v1/modules/mine", a.myModules).Methods(http.MethodGet)
	r.HandleFunc("/v1/modules/matrix", a.moduleMatrix).Methods(http.MethodGet)
	r.HandleFunc("/v1/modules/matrix/{role}/{module}", a.setModuleGrant).Methods(http.MethodPut)
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	if a.limiter != nil {
		h = RateLimit(h, a.limiter)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
