package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/rls"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/database"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/jwtutil"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/logger"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

// Login authenticates a user and issues a credential. When the user has a
// resolvable tenant (requested explicitly or their default) the token
// carries the tenant claim; otherwise the token is tenant-less and the
// client is steered to the setup flow.
func Login(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		TenantID *uint  `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		log.Warn("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Resolve the tenant for the credential
	var selectedTenantID *uint
	if req.TenantID != nil {
		var membership model.UserTenant
		result := database.GetDB().
			Where("user_id = ? AND tenant_id = ? AND active = ?", user.ID, *req.TenantID, true).
			First(&membership)
		if result.Error != nil {
			log.Warn("User does not have access to the requested tenant",
				zap.String("email", req.Email),
				zap.Uint("tenant_id", *req.TenantID))
			prometheus.RecordAuthError("tenant_access_denied")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to the requested tenant"})
		}
		selectedTenantID = req.TenantID
	} else if user.TenantID != nil {
		selectedTenantID = user.TenantID
	}

	var token string
	var err error
	response := echo.Map{
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
		},
	}

	if selectedTenantID != nil {
		var tenant model.Tenant
		if result := database.GetDB().First(&tenant, *selectedTenantID); result.Error != nil {
			log.Error("Tenant not found", zap.Uint("id", *selectedTenantID), zap.Error(result.Error))
			prometheus.RecordAuthError("tenant_not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}

		roleNames := loadRoleNames(c, user.ID, *selectedTenantID)
		token, err = jwtutil.GenerateTokenWithTenant(user.Email, user.ID, selectedTenantID, tenant.Slug, roleNames)
		response["tenant"] = map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
			"slug": tenant.Slug,
		}
	} else {
		token, err = jwtutil.GenerateToken(user.Email, user.ID)
		response["setup_required"] = true
	}

	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}
	response["token"] = token

	prometheus.IncreaseActiveTokens()
	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.Bool("has_tenant", selectedTenantID != nil))

	return c.JSON(http.StatusOK, response)
}

// Register creates a user account. The account starts in the
// setup-required state: no tenant, no memberships.
func Register(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var existing model.User
	if result := database.GetDB().Where("email = ?", req.Email).First(&existing); result.Error == nil {
		log.Warn("User already exists", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	user := model.User{
		Email:    req.Email,
		Password: string(hashed),
	}
	if err := database.GetDB().Create(&user).Error; err != nil {
		log.Error("Failed to create user", zap.Error(err))
		prometheus.RecordAuthError("registration_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	log.Info("User registered", zap.String("email", user.Email), zap.Uint("id", user.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":        "registration successful",
		"setup_required": true,
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

// GetProfile returns the authenticated user's profile.
func GetProfile(c echo.Context) error {
	log := logger.FromEcho(c)

	userID, ok := currentUserID(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_profile_access")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		log.Error("User not found", zap.Uint("id", userID), zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, user)
}

// ChangePassword updates the authenticated user's password.
func ChangePassword(c echo.Context) error {
	log := logger.FromEcho(c)

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "new_password is required"})
	}

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
	}

	if err := database.GetDB().Model(&user).Update("password", string(hashed)).Error; err != nil {
		log.Error("Failed to update password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
	}

	log.Info("Password changed", zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// loadRoleNames returns the names of the roles a user holds in a tenant,
// for the convenience claim in the credential. The authoritative rule set
// is loaded per request by the permission evaluator, so a stale claim
// cannot widen access. The request has no tenant scope yet at login time,
// so the lookup binds the freshly verified membership's scope itself.
func loadRoleNames(c echo.Context, userID, tenantID uint) []string {
	scoped := tenantctx.WithScope(c.Request().Context(), tenantctx.Scope{TenantID: tenantID, UserID: userID})

	var names []string
	_ = rls.Transaction(scoped, database.GetDB(), func(tx *gorm.DB) error {
		var assignments []model.UserRole
		if err := tx.Preload("Role").Where("user_id = ?", userID).Find(&assignments).Error; err != nil {
			return err
		}
		for _, a := range assignments {
			if a.Role.Name != "" {
				names = append(names, a.Role.Name)
			}
		}
		return nil
	})
	return names
}
