// Package rls implements the row-level security layer: declarative
// per-table policies rendered to Postgres DDL, transaction-local binding of
// the tenant session variables those policies read, and GORM callbacks that
// enforce the same predicates inside the application. The database policies
// and the callbacks are redundant on purpose; either layer alone must be
// sufficient to keep tenants apart.
package rls

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/pkg/database"
)

// Session variable names consumed by the database policies.
const (
	TenantSettingKey = "app.current_tenant_id"
	UserSettingKey   = "app.current_user_id"
)

// Policy declares the row filter for one tenant-scoped table. The baseline
// predicate compares TenantColumn against the session tenant variable;
// when OwnerColumn is set an additional owner_rows policy exposes the
// owner's rows to the session user variable, which the database role for
// restricted integrations runs under.
type Policy struct {
	Table        string
	TenantColumn string
	OwnerColumn  string
}

func (p Policy) tenantColumn() string {
	if p.TenantColumn == "" {
		return "tenant_id"
	}
	return p.TenantColumn
}

// TenantPredicate returns the SQL predicate a row must satisfy under the
// current session context.
func (p Policy) TenantPredicate() string {
	return fmt.Sprintf("%s = current_setting('%s')::bigint", p.tenantColumn(), TenantSettingKey)
}

// EnableSQL returns the statements that switch the table to row-level
// security. FORCE applies the policies to the table owner as well, so even
// the application's own database role cannot read across tenants.
func (p Policy) EnableSQL() []string {
	return []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", p.Table),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", p.Table),
	}
}

// PolicySQL returns the CREATE POLICY statements for the table. The policy
// applies to ALL commands: SELECT visibility and the INSERT/UPDATE WITH
// CHECK both use the tenant predicate, so a write carrying a foreign
// tenant_id fails loudly instead of being silently filtered.
func (p Policy) PolicySQL() []string {
	predicate := p.TenantPredicate()
	stmts := []string{
		fmt.Sprintf("DROP POLICY IF EXISTS tenant_isolation ON %s", p.Table),
		fmt.Sprintf("CREATE POLICY tenant_isolation ON %s FOR ALL USING (%s) WITH CHECK (%s)", p.Table, predicate, predicate),
	}
	if p.OwnerColumn != "" {
		owner := fmt.Sprintf("%s AND %s = current_setting('%s')::bigint", predicate, p.OwnerColumn, UserSettingKey)
		stmts = append(stmts,
			fmt.Sprintf("DROP POLICY IF EXISTS owner_rows ON %s", p.Table),
			fmt.Sprintf("CREATE POLICY owner_rows ON %s FOR SELECT TO %s USING (%s)", p.Table, database.RestrictedRole, owner),
		)
	}
	return stmts
}

var (
	mu       sync.RWMutex
	registry = map[string]Policy{}
)

// Register adds a table policy to the registry. Registering a table twice
// replaces the earlier policy.
func Register(p Policy) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Table] = p
}

// Lookup returns the policy for a table, if one is registered.
func Lookup(table string) (Policy, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[table]
	return p, ok
}

// Policies returns all registered policies in table order.
func Policies() []Policy {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Policy, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// Apply executes the enable + policy DDL for every registered table. Run
// after migrations.
func Apply(db *gorm.DB) error {
	for _, p := range Policies() {
		for _, stmt := range append(p.EnableSQL(), p.PolicySQL()...) {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("applying row policy on %s: %w", p.Table, err)
			}
		}
	}
	return nil
}
