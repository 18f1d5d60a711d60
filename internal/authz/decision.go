package authz

import "net/http"

// Reason explains a denial.
type Reason string

const (
	ReasonUnauthenticated Reason = "UNAUTHENTICATED"
	ReasonForbidden       Reason = "FORBIDDEN"
	ReasonNotFound        Reason = "NOT_FOUND"
)

// Decision is the result of an access check. Denials are values, not errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Allow grants access.
func Allow() Decision { return Decision{Allowed: true} }

// Deny refuses access for reason.
func Deny(reason Reason) Decision { return Decision{Reason: reason} }

// HTTPStatus maps the decision onto a response code.
func (d Decision) HTTPStatus() int {
	if d.Allowed {
		return http.StatusOK
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	case ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return "deny:" + string(d.Reason)
}

func (d Decision) outcome() string {
	if d.Allowed {
		return "allow"
	}
	return string(d.Reason)
}
