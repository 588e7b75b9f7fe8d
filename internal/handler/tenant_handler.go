package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/audit"
	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/rls"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/database"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/jwtutil"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/logger"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

// SetupTenant performs the setup-required -> provisioned transition:
// it creates the user's default tenant and registers the matching
// organization with the identity directory. The current credential stays
// tenant-less; the response tells the client to re-authenticate for a
// token carrying the new tenant claim. Calling it again returns the
// existing tenant.
func SetupTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("setup")

	userID, ok := currentUserID(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_tenant_setup")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		FirmName string `json:"firm_name"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.FirmName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "firm_name is required"})
	}

	tenant, created, err := setupSvc.ProvisionDefaultTenant(c.Request().Context(), userID, req.FirmName)
	if err != nil {
		log.Error("Tenant setup failed", zap.Uint("user_id", userID), zap.Error(err))
		prometheus.RecordAuthError("tenant_setup_failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "tenant setup failed"})
	}

	status := http.StatusOK
	message := "already set up"
	if created {
		status = http.StatusCreated
		message = "tenant created"
		recordTenantAudit(c, tenant.ID, userID, "SETUP", "tenant", strconv.FormatUint(uint64(tenant.ID), 10))
	}

	log.Info("Tenant setup completed",
		zap.Uint("user_id", userID),
		zap.Uint("tenant_id", tenant.ID),
		zap.Bool("created", created))

	return c.JSON(status, echo.Map{
		"message":                   message,
		"reauthentication_required": true,
		"tenant": map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
			"slug": tenant.Slug,
		},
	})
}

// ListUserTenants retrieves all tenants associated with the authenticated
// user. Reachable without a tenant claim so a multi-firm user can pick one.
func ListUserTenants(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("list")

	userID, ok := currentUserID(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_tenant_listing")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var memberships []model.UserTenant
	if result := database.GetDB().Preload("Tenant").
		Where("user_id = ? AND active = ?", userID, true).
		Find(&memberships); result.Error != nil {
		log.Error("Failed to retrieve user's tenants", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	type tenantResponse struct {
		ID             uint      `json:"id"`
		Name           string    `json:"name"`
		Slug           string    `json:"slug"`
		MembershipRole string    `json:"membership_role"`
		IsDefault      bool      `json:"is_default"`
		CreatedAt      time.Time `json:"created_at"`
	}

	response := make([]tenantResponse, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, tenantResponse{
			ID:             m.TenantID,
			Name:           m.Tenant.Name,
			Slug:           m.Tenant.Slug,
			MembershipRole: m.MembershipRole,
			IsDefault:      m.IsDefault,
			CreatedAt:      m.Tenant.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// SwitchTenant issues a new credential bound to a different tenant. The
// current credential is not mutated; tenant identity is immutable within
// a token.
func SwitchTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("switch")

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	email, ok := currentEmail(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "email missing from context"})
	}

	var req struct {
		TenantID uint `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil || req.TenantID == 0 {
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var membership model.UserTenant
	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ? AND active = ?", userID, req.TenantID, true).
		First(&membership)
	if result.Error != nil {
		log.Warn("Unauthorized tenant switch attempt",
			zap.Uint("user_id", userID),
			zap.Uint("tenant_id", req.TenantID))
		prometheus.RecordAuthError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested tenant"})
	}

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, req.TenantID); result.Error != nil {
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	tenantID := req.TenantID
	token, err := jwtutil.GenerateTokenWithTenant(email, userID, &tenantID, tenant.Slug, loadRoleNames(c, userID, tenantID))
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()
	recordTenantAudit(c, tenantID, userID, "SWITCH", "tenant", strconv.FormatUint(uint64(tenantID), 10))

	log.Info("User switched tenant",
		zap.Uint("user_id", userID),
		zap.Uint("tenant_id", tenantID))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"tenant": map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
			"slug": tenant.Slug,
		},
	})
}

// SetDefaultTenant sets a tenant as the user's default for future logins.
func SetDefaultTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("set_default")

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		TenantID uint `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil || req.TenantID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		var membership model.UserTenant
		if err := tx.Where("user_id = ? AND tenant_id = ? AND active = ?", userID, req.TenantID, true).
			First(&membership).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.UserTenant{}).
			Where("user_id = ?", userID).
			Update("is_default", false).Error; err != nil {
			return err
		}

		membership.IsDefault = true
		if err := tx.Save(&membership).Error; err != nil {
			return err
		}

		return tx.Model(&model.User{}).
			Where("id = ?", userID).
			Update("tenant_id", req.TenantID).Error
	})
	if err != nil {
		log.Warn("Failed to set default tenant",
			zap.Uint("user_id", userID),
			zap.Uint("tenant_id", req.TenantID),
			zap.Error(err))
		prometheus.RecordAuthError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested tenant"})
	}

	log.Info("Set default tenant for user",
		zap.Uint("user_id", userID),
		zap.Uint("tenant_id", req.TenantID))

	return c.JSON(http.StatusOK, echo.Map{
		"message":   "default tenant set",
		"tenant_id": req.TenantID,
	})
}

// AddUserToTenant adds an existing user to the current tenant. Gated on
// the caller's owner/admin membership.
func AddUserToTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("add_user")

	scope, ok := requestScope(c)
	if !ok {
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "tenant setup required"})
	}

	var req struct {
		UserEmail      string `json:"user_email"`
		MembershipRole string `json:"membership_role,omitempty"`
		TeamID         string `json:"team_id,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.UserEmail == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_email is required"})
	}
	if req.MembershipRole == "" {
		req.MembershipRole = "member"
	}

	if !callerIsTenantAdmin(scope) {
		log.Warn("Unauthorized attempt to add user to tenant",
			zap.Uint("requesting_user_id", scope.UserID),
			zap.Uint("tenant_id", scope.TenantID))
		prometheus.RecordAuthError("tenant_permission_denied")
		return forbidden(c)
	}

	var user model.User
	if result := database.GetDB().Where("email = ?", req.UserEmail).First(&user); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	var existing model.UserTenant
	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ?", user.ID, scope.TenantID).
		First(&existing)
	if result.Error == nil {
		if existing.MembershipRole != req.MembershipRole || existing.TeamID != req.TeamID {
			existing.MembershipRole = req.MembershipRole
			existing.TeamID = req.TeamID
			if err := database.GetDB().Save(&existing).Error; err != nil {
				log.Error("Failed to update membership", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update membership"})
			}
		}
		recordTenantAudit(c, scope.TenantID, scope.UserID, "UPDATE_MEMBER", "membership", strconv.FormatUint(uint64(user.ID), 10))
		return c.JSON(http.StatusOK, echo.Map{"message": "membership updated", "membership": existing})
	}

	membership := model.UserTenant{
		UserID:         user.ID,
		TenantID:       scope.TenantID,
		MembershipRole: req.MembershipRole,
		TeamID:         req.TeamID,
		Active:         true,
	}
	if err := database.GetDB().Create(&membership).Error; err != nil {
		log.Error("Failed to add user to tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add user to tenant"})
	}

	recordTenantAudit(c, scope.TenantID, scope.UserID, "ADD_MEMBER", "membership", strconv.FormatUint(uint64(user.ID), 10))
	log.Info("Added user to tenant",
		zap.Uint("tenant_id", scope.TenantID),
		zap.String("user_email", req.UserEmail),
		zap.String("membership_role", req.MembershipRole))

	return c.JSON(http.StatusCreated, echo.Map{"message": "user added to tenant", "membership": membership})
}

// RemoveUserFromTenant removes a user from the current tenant. The tenant
// owner cannot be removed.
func RemoveUserFromTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("remove_user")

	scope, ok := requestScope(c)
	if !ok {
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "tenant setup required"})
	}

	targetUserID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	if !callerIsTenantAdmin(scope) {
		log.Warn("Unauthorized attempt to remove user from tenant",
			zap.Uint("requesting_user_id", scope.UserID),
			zap.Uint("tenant_id", scope.TenantID))
		prometheus.RecordAuthError("tenant_permission_denied")
		return forbidden(c)
	}

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, scope.TenantID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}
	if tenant.OwnerID == uint(targetUserID) {
		log.Warn("Attempted to remove tenant owner",
			zap.Uint("tenant_id", scope.TenantID),
			zap.Uint64("owner_id", targetUserID))
		prometheus.RecordAuthError("tenant_owner_removal_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot remove tenant owner"})
	}

	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ?", targetUserID, scope.TenantID).
		Delete(&model.UserTenant{})
	if result.Error != nil {
		log.Error("Failed to remove user from tenant", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove user from tenant"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found in this tenant"})
	}

	// Reset the removed user's default tenant if it pointed here.
	var user model.User
	if result := database.GetDB().First(&user, targetUserID); result.Error == nil {
		if user.TenantID != nil && *user.TenantID == scope.TenantID {
			var other model.UserTenant
			if result := database.GetDB().
				Where("user_id = ? AND tenant_id != ?", targetUserID, scope.TenantID).
				First(&other); result.Error == nil {
				database.GetDB().Model(&user).Update("tenant_id", other.TenantID)
			} else {
				database.GetDB().Model(&user).Update("tenant_id", nil)
			}
		}
	}

	recordTenantAudit(c, scope.TenantID, scope.UserID, "REMOVE_MEMBER", "membership", strconv.FormatUint(targetUserID, 10))
	log.Info("Removed user from tenant",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint64("user_id", targetUserID))

	return c.JSON(http.StatusOK, echo.Map{"message": "user removed from tenant"})
}

// callerIsTenantAdmin checks the caller's membership-level role in the
// scoped tenant.
func callerIsTenantAdmin(scope tenantctx.Scope) bool {
	var membership model.UserTenant
	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ? AND membership_role IN ('owner', 'admin')", scope.UserID, scope.TenantID).
		First(&membership)
	return result.Error == nil
}

// recordTenantAudit writes a tenancy audit entry under the given tenant's
// scope, inside its own bound transaction.
func recordTenantAudit(c echo.Context, tenantID, userID uint, action, entityType, entityID string) {
	scoped := tenantctx.WithScope(c.Request().Context(), tenantctx.Scope{TenantID: tenantID, UserID: userID})
	_ = rls.Transaction(scoped, database.GetDB(), func(tx *gorm.DB) error {
		return recorder.WithSink(&audit.GormSink{DB: tx}).
			Record(scoped, action, entityType, entityID, model.AuditResultSuccess, nil)
	})
}
