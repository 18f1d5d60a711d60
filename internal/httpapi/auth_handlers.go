package httpapi

import (
	"errors"
	"net/http"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrAccountDisabled) {
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
				"email":  req.Email,
				"reason": err.Error(),
			})
		}
		handleError(w, r, err)
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), session.User.Identity())
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"expires_at": session.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.Me(r.Context(), identity(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type scopeResponse struct {
	UserID      int64        `json:"user_id"`
	Role        auth.Role    `json:"role"`
	Consortiums authz.Filter `json:"consortiums"`
	Units       authz.Filter `json:"units"`
}

// handleMyScope reports the filters the caller's listings run under.
func (a *API) handleMyScope(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	consortiums, err := a.filters.Build(r.Context(), id, authz.KindConsortium)
	if err != nil {
		handleError(w, r, err)
		return
	}
	units, err := a.filters.Build(r.Context(), id, authz.KindUnit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scopeResponse{
		UserID:      id.UserID,
		Role:        id.Role,
		Consortiums: consortiums,
		Units:       units,
	})
}
