package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/AstarWorks/AstarManagement-sub017/internal/audit"
	"github.com/AstarWorks/AstarManagement-sub017/internal/authz"
	"github.com/AstarWorks/AstarManagement-sub017/internal/directory"
	"github.com/AstarWorks/AstarManagement-sub017/internal/handler"
	"github.com/AstarWorks/AstarManagement-sub017/internal/middleware"
	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/rls"
	"github.com/AstarWorks/AstarManagement-sub017/internal/setup"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/config"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/database"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/jwtutil"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/logger"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("practice-service")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting practice service...", cfg.LogConfig()...)

	// Initialize JWT utilities
	jwtutil.Initialize(&cfg.JWT)

	// Initialize database
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(
		&model.User{},
		&model.Tenant{},
		&model.UserTenant{},
		&model.Role{},
		&model.PermissionRule{},
		&model.UserRole{},
		&model.Matter{},
		&model.Expense{},
		&model.AuditEntry{},
	); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// Declare the tenant-scoped tables. Identity and membership tables stay
	// outside row security: they are consulted at login, before a tenant
	// context exists.
	rls.Register(rls.Policy{Table: "matters", OwnerColumn: "owner_id"})
	rls.Register(rls.Policy{Table: "expenses", OwnerColumn: "owner_id"})
	rls.Register(rls.Policy{Table: "roles"})
	rls.Register(rls.Policy{Table: "permission_rules"})
	rls.Register(rls.Policy{Table: "user_roles"})
	rls.Register(rls.Policy{Table: "audit_entries"})
	if err := database.EnsureRestrictedRole(db); err != nil {
		log.Fatal("Failed to ensure restricted database role", zap.Error(err))
	}
	if err := rls.Apply(db); err != nil {
		log.Fatal("Failed to apply row security policies", zap.Error(err))
	}
	if err := rls.RegisterCallbacks(db, log); err != nil {
		log.Fatal("Failed to register tenancy callbacks", zap.Error(err))
	}
	log.Info("Row security policies applied", zap.Int("tables", len(rls.Policies())))

	// Wire the onboarding and audit collaborators
	dirClient := directory.NewClient(&cfg.Directory)
	setupSvc := setup.NewService(&setup.GormStore{DB: db}, dirClient, log)
	recorder := audit.NewRecorder(&audit.GormSink{DB: db}, log)
	handler.Init(setupSvc, recorder, authz.NewEvaluator(log))

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", prometheus.MetricsHandler())

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/register", handler.Register)
	auth.POST("/login", handler.Login)

	// Authenticated routes. Setup and tenant selection work with a
	// tenant-less credential; everything else requires the tenant claim.
	api := e.Group("/api", middleware.AuthMiddleware)
	api.GET("/profile", handler.GetProfile)
	api.POST("/password", handler.ChangePassword)
	api.POST("/setup", handler.SetupTenant)
	api.GET("/tenants", handler.ListUserTenants)
	api.POST("/tenants/switch", handler.SwitchTenant)
	api.POST("/tenants/default", handler.SetDefaultTenant)

	scoped := api.Group("", middleware.RequireTenantContext)
	scoped.POST("/tenants/users", handler.AddUserToTenant)
	scoped.DELETE("/tenants/users/:user_id", handler.RemoveUserFromTenant)

	scoped.POST("/roles", handler.CreateRole)
	scoped.GET("/roles", handler.ListRoles)
	scoped.PUT("/roles/:id", handler.UpdateRoleRules)
	scoped.DELETE("/roles/:id", handler.DeleteRole)
	scoped.POST("/roles/:id/assignments", handler.AssignRole)
	scoped.DELETE("/roles/:id/assignments/:user_id", handler.RevokeRole)

	scoped.POST("/matters", handler.CreateMatter)
	scoped.GET("/matters", handler.ListMatters)
	scoped.GET("/matters/export", handler.ExportMatters)
	scoped.GET("/matters/:id", handler.GetMatter)
	scoped.PUT("/matters/:id", handler.UpdateMatter)
	scoped.DELETE("/matters/:id", handler.DeleteMatter)

	scoped.POST("/expenses", handler.CreateExpense)
	scoped.GET("/expenses", handler.ListExpenses)
	scoped.PUT("/expenses/:id", handler.UpdateExpense)
	scoped.DELETE("/expenses/:id", handler.DeleteExpense)

	scoped.GET("/audit", handler.ListAuditEntries)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
