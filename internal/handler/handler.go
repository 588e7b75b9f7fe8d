package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/audit"
	"github.com/AstarWorks/AstarManagement-sub017/internal/autherr"
	"github.com/AstarWorks/AstarManagement-sub017/internal/authz"
	"github.com/AstarWorks/AstarManagement-sub017/internal/setup"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

var (
	setupSvc  *setup.Service
	recorder  *audit.Recorder
	evaluator *authz.Evaluator
)

// Init wires the handler package's collaborators. Called once from main.
func Init(s *setup.Service, r *audit.Recorder, e *authz.Evaluator) {
	setupSvc = s
	recorder = r
	evaluator = e
}

// currentUserID returns the authenticated user ID placed in the context by
// AuthMiddleware.
func currentUserID(c echo.Context) (uint, bool) {
	id, ok := c.Get("user_id").(uint)
	return id, ok
}

// currentEmail returns the authenticated email from the context.
func currentEmail(c echo.Context) (string, bool) {
	email, ok := c.Get("email").(string)
	return email, ok
}

// requestScope returns the tenant scope bound by AuthMiddleware.
func requestScope(c echo.Context) (tenantctx.Scope, bool) {
	return tenantctx.FromContext(c.Request().Context())
}

// taxonomyJSON translates a taxonomy error into the JSON response the
// client sees. Cross-tenant violations are deliberately opaque.
func taxonomyJSON(c echo.Context, err error) error {
	status := autherr.HTTPStatus(err)
	message := "internal error"
	switch {
	case errors.Is(err, autherr.ErrUnauthenticated):
		message = "authentication required"
	case errors.Is(err, autherr.ErrSetupRequired):
		message = "tenant setup required"
	case errors.Is(err, autherr.ErrForbidden), errors.Is(err, autherr.ErrNotMember):
		message = "permission denied"
	case errors.Is(err, autherr.ErrTenantNotFound):
		message = "tenant not found"
	}
	return c.JSON(status, echo.Map{"error": message})
}

// forbidden responds 403 without detailing which rules were missing.
func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": "permission denied"})
}

// authorize runs the evaluator for the scoped subject, recording the
// decision in metrics and, on denial, in the audit log. The caller's
// transaction keeps a denial entry even though the mutation never ran.
func authorize(c echo.Context, tx *gorm.DB, sub authz.Subject, action authz.Action, target authz.Target) bool {
	decision := evaluator.Authorize(sub, action, target)
	prometheus.RecordAuthzDecision(target.Resource, string(action), decision.Allowed)
	if !decision.Allowed {
		_ = recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), string(action), target.Resource, target.ID, "denied", nil)
	}
	return decision.Allowed
}

// constraintWhere narrows a list query per the subject's grants.
// groupColumn is empty for tables without a resource-group column.
func constraintWhere(q *gorm.DB, cons authz.Constraint, userID uint, groupColumn string) *gorm.DB {
	if cons.All {
		return q
	}

	var conds []string
	var args []interface{}
	if cons.Own {
		conds = append(conds, "owner_id = ?")
		args = append(args, userID)
	}
	if len(cons.TeamIDs) > 0 {
		conds = append(conds, "team_id IN ?")
		args = append(args, cons.TeamIDs)
	}
	if groupColumn != "" && len(cons.Groups) > 0 {
		conds = append(conds, groupColumn+" IN ?")
		args = append(args, cons.Groups)
	}
	if len(cons.IDs) > 0 {
		conds = append(conds, "id IN ?")
		args = append(args, cons.IDs)
	}
	if len(conds) == 0 {
		// Nothing grants list access; match no rows.
		return q.Where("1 = 0")
	}
	return q.Where(strings.Join(conds, " OR "), args...)
}
