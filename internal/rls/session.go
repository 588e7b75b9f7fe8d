package rls

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/autherr"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
)

// BindScope sets the tenant/user session variables on the given
// transaction. The third argument to set_config makes the setting
// transaction-local: it disappears on commit or rollback, so a pooled
// connection can never carry one request's tenant binding into the next.
func BindScope(tx *gorm.DB, scope tenantctx.Scope) error {
	if err := tx.Exec(
		"SELECT set_config(?, ?, true)",
		TenantSettingKey, strconv.FormatUint(uint64(scope.TenantID), 10),
	).Error; err != nil {
		return err
	}
	return tx.Exec(
		"SELECT set_config(?, ?, true)",
		UserSettingKey, strconv.FormatUint(uint64(scope.UserID), 10),
	).Error
}

// Reset clears any session-level tenant binding on the connection. The
// request path never needs this because BindScope is transaction-local;
// it exists for maintenance tooling that binds at session level.
func Reset(db *gorm.DB) error {
	if err := db.Exec("RESET " + TenantSettingKey).Error; err != nil {
		return err
	}
	return db.Exec("RESET " + UserSettingKey).Error
}

// Transaction runs fn inside a database transaction with the request's
// tenant scope bound before any statement of fn executes. A context
// without a tenant scope is refused rather than allowed to run unscoped.
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return autherr.ErrSetupRequired
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := BindScope(tx, scope); err != nil {
			return err
		}
		return fn(tx)
	})
}
