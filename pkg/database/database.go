package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AstarWorks/AstarManagement-sub017/pkg/config"
)

// RestrictedRole is the database role restricted integrations connect as.
// The owner_rows policies grant it SELECT on the session user's own rows
// only; the application role sees the whole tenant.
const RestrictedRole = "practice_restricted"

// DB is the global database instance
var DB *gorm.DB

// InitDB opens the Postgres connection pool for the service.
func InitDB(dbConfig *config.DBConfig) (*gorm.DB, error) {
	var err error

	pgConfig := postgres.Config{
		DSN:                  dbConfig.GetDSN(),
		PreferSimpleProtocol: true, // Disables implicit prepared statement usage
	}

	DB, err = gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger: logger.Default.LogMode(dbConfig.LogLevel),
	})
	if err != nil {
		zap.L().Error("Failed to connect to database", zap.Error(err))
		return nil, err
	}

	sqlDB, err := DB.DB()
	if err != nil {
		zap.L().Error("Failed to get database object", zap.Error(err))
		return nil, err
	}

	// Connection pool settings from config
	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return DB, nil
}

// MigrateModels runs migrations for the provided models
func MigrateModels(models ...interface{}) error {
	if DB == nil {
		return fmt.Errorf("database is not initialized")
	}

	if err := DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	return nil
}

// EnsureRestrictedRole creates the restricted database role when it does
// not exist yet. It must run before the row policies are applied: CREATE
// POLICY refuses to reference a missing role.
func EnsureRestrictedRole(db *gorm.DB) error {
	stmt := fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = '%s') THEN
		CREATE ROLE %s NOLOGIN;
	END IF;
END
$$`, RestrictedRole, RestrictedRole)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("ensuring restricted role %s: %w", RestrictedRole, err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
