package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/audit"
	"github.com/AstarWorks/AstarManagement-sub017/internal/authz"
	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/rls"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/database"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/logger"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

type ruleRequest struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Scope       string `json:"scope"`
	GroupID     string `json:"group_id,omitempty"`
	ResourceRef string `json:"resource_ref,omitempty"`
}

func (r ruleRequest) validate() error {
	if !authz.ValidAction(r.Action) {
		return errors.New("unknown action: " + r.Action)
	}
	if !authz.ValidScope(r.Scope) {
		return errors.New("unknown scope: " + r.Scope)
	}
	if r.Scope == string(authz.ScopeResourceGroup) && r.GroupID == "" {
		return errors.New("RESOURCE_GROUP scope requires group_id")
	}
	if r.Scope == string(authz.ScopeResourceID) && r.ResourceRef == "" {
		return errors.New("RESOURCE_ID scope requires resource_ref")
	}
	if r.Resource == "" {
		return errors.New("resource is required")
	}
	return nil
}

// CreateRole creates a tenant role with an initial rule set.
func CreateRole(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Name  string        `json:"name"`
		Rules []ruleRequest `json:"rules"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	for _, rule := range req.Rules {
		if err := rule.validate(); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
	}

	scope, ok := requestScope(c)
	if !ok {
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "tenant setup required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var role model.Role
	var denied bool
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if !authorize(c, tx, sub, authz.ActionCreate, authz.Target{Resource: "role"}) {
			denied = true
			return nil
		}

		role = model.Role{TenantID: scope.TenantID, Name: req.Name}
		for _, r := range req.Rules {
			role.Rules = append(role.Rules, model.PermissionRule{
				TenantID:    scope.TenantID,
				Resource:    r.Resource,
				Action:      r.Action,
				Scope:       r.Scope,
				GroupID:     r.GroupID,
				ResourceRef: r.ResourceRef,
			})
		}
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "CREATE", "role", strconv.FormatUint(uint64(role.ID), 10),
			model.AuditResultSuccess, map[string]any{"name": role.Name})
	})
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to create role", zap.String("name", req.Name), zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusCreated, role)
}

// ListRoles lists the tenant's roles with their rules.
func ListRoles(c echo.Context) error {
	log := logger.FromEcho(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var roles []model.Role
	var denied bool
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if !authorize(c, tx, sub, authz.ActionView, authz.Target{Resource: "role"}) {
			denied = true
			return nil
		}
		return tx.Preload("Rules").Order("id").Find(&roles).Error
	})
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to list roles", zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, roles)
}

// UpdateRoleRules replaces a role's rule set. Changes take effect on the
// next request; there is no cached evaluation to invalidate.
func UpdateRoleRules(c echo.Context) error {
	log := logger.FromEcho(c)

	roleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}

	var req struct {
		Name  string        `json:"name,omitempty"`
		Rules []ruleRequest `json:"rules"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	for _, rule := range req.Rules {
		if err := rule.validate(); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
	}

	scope, ok := requestScope(c)
	if !ok {
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "tenant setup required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var role model.Role
	var denied, notFound bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionEdit, authz.Target{Resource: "role", ID: strconv.FormatUint(roleID, 10)}) {
			denied = true
			return nil
		}

		if req.Name != "" && !role.IsSystem {
			role.Name = req.Name
			if err := tx.Save(&role).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("role_id = ?", role.ID).Delete(&model.PermissionRule{}).Error; err != nil {
			return err
		}
		rules := make([]model.PermissionRule, 0, len(req.Rules))
		for _, r := range req.Rules {
			rules = append(rules, model.PermissionRule{
				RoleID:      role.ID,
				TenantID:    scope.TenantID,
				Resource:    r.Resource,
				Action:      r.Action,
				Scope:       r.Scope,
				GroupID:     r.GroupID,
				ResourceRef: r.ResourceRef,
			})
		}
		if len(rules) > 0 {
			if err := tx.Create(&rules).Error; err != nil {
				return err
			}
		}
		role.Rules = rules

		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "UPDATE", "role", strconv.FormatUint(uint64(role.ID), 10),
			model.AuditResultSuccess, map[string]any{"rule_count": len(rules)})
	})
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
	}
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to update role", zap.Uint64("role_id", roleID), zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, role)
}

// DeleteRole removes a role. System roles and roles with active
// assignments are protected.
func DeleteRole(c echo.Context) error {
	log := logger.FromEcho(c)

	roleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var denied, notFound, isSystem bool
	var assignmentCount int64
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		var role model.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionDelete, authz.Target{Resource: "role", ID: strconv.FormatUint(roleID, 10)}) {
			denied = true
			return nil
		}
		if role.IsSystem {
			isSystem = true
			return nil
		}
		if err := tx.Model(&model.UserRole{}).Where("role_id = ?", role.ID).Count(&assignmentCount).Error; err != nil {
			return err
		}
		if assignmentCount > 0 {
			return nil
		}

		if err := tx.Where("role_id = ?", role.ID).Delete(&model.PermissionRule{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&role).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "DELETE", "role", strconv.FormatUint(uint64(role.ID), 10),
			model.AuditResultSuccess, map[string]any{"name": role.Name})
	})
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
	}
	if denied {
		return forbidden(c)
	}
	if isSystem {
		return c.JSON(http.StatusConflict, echo.Map{"error": "system roles cannot be deleted"})
	}
	if assignmentCount > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "role still has assigned users"})
	}
	if err != nil {
		log.Error("Failed to delete role", zap.Uint64("role_id", roleID), zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "role deleted"})
}

// AssignRole gives a user a role in the current tenant.
func AssignRole(c echo.Context) error {
	log := logger.FromEcho(c)

	roleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}
	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	scope, ok := requestScope(c)
	if !ok {
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "tenant setup required"})
	}

	// The target must be a member of this tenant before a role can bind.
	var membership model.UserTenant
	if result := database.GetDB().
		Where("user_id = ? AND tenant_id = ? AND active = ?", req.UserID, scope.TenantID, true).
		First(&membership); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user is not a member of this tenant"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var denied, notFound, exists bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		var role model.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionManage, authz.Target{Resource: "role", ID: strconv.FormatUint(roleID, 10)}) {
			denied = true
			return nil
		}

		var existing model.UserRole
		if err := tx.Where("user_id = ? AND role_id = ?", req.UserID, role.ID).First(&existing).Error; err == nil {
			exists = true
			return nil
		}

		assignment := model.UserRole{
			TenantID: scope.TenantID,
			UserID:   req.UserID,
			RoleID:   role.ID,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "ASSIGN", "role", strconv.FormatUint(uint64(role.ID), 10),
			model.AuditResultSuccess, map[string]any{"user_id": req.UserID})
	})
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
	}
	if denied {
		return forbidden(c)
	}
	if exists {
		return c.JSON(http.StatusOK, echo.Map{"message": "role already assigned"})
	}
	if err != nil {
		log.Error("Failed to assign role",
			zap.Uint64("role_id", roleID),
			zap.Uint("user_id", req.UserID),
			zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"message": "role assigned"})
}

// RevokeRole removes a role assignment from a user.
func RevokeRole(c echo.Context) error {
	log := logger.FromEcho(c)

	roleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var denied, notFound bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if !authorize(c, tx, sub, authz.ActionManage, authz.Target{Resource: "role", ID: strconv.FormatUint(roleID, 10)}) {
			denied = true
			return nil
		}
		result := tx.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&model.UserRole{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			notFound = true
			return nil
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "REVOKE", "role", strconv.FormatUint(roleID, 10),
			model.AuditResultSuccess, map[string]any{"user_id": userID})
	})
	if denied {
		return forbidden(c)
	}
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "assignment not found"})
	}
	if err != nil {
		log.Error("Failed to revoke role",
			zap.Uint64("role_id", roleID),
			zap.Uint64("user_id", userID),
			zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "role revoked"})
}
