package rls

import (
	"reflect"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/AstarWorks/AstarManagement-sub017/internal/autherr"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

const skipSettingKey = "rls:without_tenancy"

// WithoutTenancy disables the application-level tenant callbacks for this
// statement chain. It exists for the tenancy bootstrap (login, setup,
// membership resolution) and audited maintenance tooling only; the
// database-level policies still apply to whatever role the connection
// runs under.
func WithoutTenancy(db *gorm.DB) *gorm.DB {
	return db.Set(skipSettingKey, true)
}

type tenantCallbacks struct {
	log *zap.Logger
}

// RegisterCallbacks installs the application-level enforcement layer on the
// GORM instance: reads against registered tables gain a tenant filter,
// writes are stamped with the session tenant, and writes carrying a foreign
// tenant fail with ErrCrossTenantViolation. Raw SQL bypasses these
// callbacks; the database policies are the backstop there.
func RegisterCallbacks(db *gorm.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	cb := &tenantCallbacks{log: log}

	if err := db.Callback().Query().Before("gorm:query").Register("rls:query", cb.beforeQuery); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("rls:row", cb.beforeQuery); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register("rls:create", cb.beforeCreate); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("rls:update", cb.beforeUpdate); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("rls:delete", cb.beforeDelete)
}

// policyFor resolves the registered policy and scope for the statement.
// The bool result is false when the statement needs no tenant handling.
func (cb *tenantCallbacks) policyFor(db *gorm.DB) (Policy, tenantctx.Scope, bool) {
	stmt := db.Statement
	if stmt.Model != nil && stmt.Schema == nil {
		_ = stmt.Parse(stmt.Model)
	}

	table := stmt.Table
	if table == "" && stmt.Schema != nil {
		table = stmt.Schema.Table
	}
	if table == "" {
		return Policy{}, tenantctx.Scope{}, false
	}

	pol, registered := Lookup(table)
	if !registered {
		return Policy{}, tenantctx.Scope{}, false
	}

	if v, ok := db.Get(skipSettingKey); ok && v == true {
		return Policy{}, tenantctx.Scope{}, false
	}

	scope, ok := tenantctx.FromContext(stmt.Context)
	if !ok {
		// An unscoped statement against a tenant-scoped table is refused,
		// never run wide open.
		cb.log.Warn("unscoped statement against tenant-scoped table refused",
			zap.String("table", table))
		_ = db.AddError(autherr.ErrSetupRequired)
		return Policy{}, tenantctx.Scope{}, false
	}

	return pol, scope, true
}

func (cb *tenantCallbacks) addTenantClause(db *gorm.DB, pol Policy, scope tenantctx.Scope) {
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: pol.tenantColumn()},
			Value:  scope.TenantID,
		},
	}})
}

func (cb *tenantCallbacks) beforeQuery(db *gorm.DB) {
	if pol, scope, ok := cb.policyFor(db); ok {
		cb.addTenantClause(db, pol, scope)
	}
}

func (cb *tenantCallbacks) beforeDelete(db *gorm.DB) {
	if pol, scope, ok := cb.policyFor(db); ok {
		cb.addTenantClause(db, pol, scope)
	}
}

func (cb *tenantCallbacks) beforeCreate(db *gorm.DB) {
	pol, scope, ok := cb.policyFor(db)
	if !ok || db.Statement.Schema == nil {
		return
	}
	field := db.Statement.Schema.LookUpField(pol.tenantColumn())
	if field == nil {
		return
	}

	switch db.Statement.ReflectValue.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < db.Statement.ReflectValue.Len(); i++ {
			cb.stampOrReject(db, pol, field, db.Statement.ReflectValue.Index(i), scope)
		}
	case reflect.Struct:
		cb.stampOrReject(db, pol, field, db.Statement.ReflectValue, scope)
	}
}

// stampOrReject fills an unset tenant column with the session tenant and
// rejects a row that already names a different one.
func (cb *tenantCallbacks) stampOrReject(db *gorm.DB, pol Policy, field *schema.Field, rv reflect.Value, scope tenantctx.Scope) {
	value, isZero := field.ValueOf(db.Statement.Context, rv)
	if isZero {
		_ = field.Set(db.Statement.Context, rv, scope.TenantID)
		return
	}
	if id, ok := value.(uint); ok && id == scope.TenantID {
		return
	}
	cb.reject(db, pol.Table, scope)
}

func (cb *tenantCallbacks) beforeUpdate(db *gorm.DB) {
	pol, scope, ok := cb.policyFor(db)
	if !ok {
		return
	}
	cb.addTenantClause(db, pol, scope)

	// Reassigning a row to another tenant is a violation, not an update.
	switch dest := db.Statement.Dest.(type) {
	case map[string]interface{}:
		if raw, present := dest[pol.tenantColumn()]; present {
			if !tenantValueMatches(raw, scope.TenantID) {
				cb.reject(db, pol.Table, scope)
			}
		}
	default:
		if db.Statement.Schema == nil {
			return
		}
		field := db.Statement.Schema.LookUpField(pol.tenantColumn())
		if field == nil {
			return
		}
		rv := db.Statement.ReflectValue
		if rv.Kind() != reflect.Struct {
			return
		}
		if value, isZero := field.ValueOf(db.Statement.Context, rv); !isZero {
			if id, ok := value.(uint); !ok || id != scope.TenantID {
				cb.reject(db, pol.Table, scope)
			}
		}
	}
}

func (cb *tenantCallbacks) reject(db *gorm.DB, table string, scope tenantctx.Scope) {
	prometheus.RecordCrossTenantViolation(table)
	cb.log.Error("cross-tenant write rejected",
		zap.String("table", table),
		zap.Uint("session_tenant_id", scope.TenantID),
		zap.Uint("user_id", scope.UserID))
	_ = db.AddError(autherr.ErrCrossTenantViolation)
}

func tenantValueMatches(raw interface{}, tenantID uint) bool {
	switch v := raw.(type) {
	case uint:
		return v == tenantID
	case uint64:
		return v == uint64(tenantID)
	case int:
		return v >= 0 && uint(v) == tenantID
	case int64:
		return v >= 0 && uint64(v) == uint64(tenantID)
	default:
		return false
	}
}
