// Package autherr defines the error taxonomy for the tenancy and
// authorization core. The first three conditions are expected and map to
// client responses; ErrCrossTenantViolation is an invariant breach and is
// always logged at high severity before the enclosing transaction aborts.
package autherr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated is returned when no valid credential accompanies
	// the request.
	ErrUnauthenticated = errors.New("authz: unauthenticated")

	// ErrSetupRequired is returned when the credential is valid but carries
	// no tenant claim. The caller must complete tenant setup and
	// re-authenticate; falling back to an unscoped query is refused.
	ErrSetupRequired = errors.New("authz: tenant setup required")

	// ErrForbidden is returned when the permission evaluator denies an
	// action. It is never reported as "not found".
	ErrForbidden = errors.New("authz: forbidden")

	// ErrCrossTenantViolation is returned when a write targets a row
	// belonging to a foreign tenant. It indicates a bug or an attack,
	// never a normal denial.
	ErrCrossTenantViolation = errors.New("authz: cross-tenant violation")

	// ErrTenantNotFound is returned when the target tenant does not exist
	// or is inactive.
	ErrTenantNotFound = errors.New("authz: tenant not found")

	// ErrNotMember is returned when the user has no active membership in
	// the target tenant.
	ErrNotMember = errors.New("authz: user is not a member of tenant")
)

// HTTPStatus maps a taxonomy error to the status code the HTTP layer
// should respond with. Cross-tenant violations surface as 500 on purpose:
// they are internal invariant breaches, not client errors.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSetupRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCrossTenantViolation):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
