package rls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantPredicate(t *testing.T) {
	p := Policy{Table: "matters"}
	assert.Equal(t, "tenant_id = current_setting('app.current_tenant_id')::bigint", p.TenantPredicate())
}

func TestTenantPredicateCustomColumn(t *testing.T) {
	p := Policy{Table: "legacy_cases", TenantColumn: "firm_id"}
	assert.Equal(t, "firm_id = current_setting('app.current_tenant_id')::bigint", p.TenantPredicate())
}

func TestEnableSQLForcesPolicyOnOwner(t *testing.T) {
	p := Policy{Table: "matters"}
	stmts := p.EnableSQL()
	require.Len(t, stmts, 2)
	assert.Equal(t, "ALTER TABLE matters ENABLE ROW LEVEL SECURITY", stmts[0])
	assert.Equal(t, "ALTER TABLE matters FORCE ROW LEVEL SECURITY", stmts[1])
}

func TestPolicySQLAppliesPredicateToReadsAndWrites(t *testing.T) {
	p := Policy{Table: "matters"}
	stmts := p.PolicySQL()
	require.Len(t, stmts, 2)
	assert.Equal(t, "DROP POLICY IF EXISTS tenant_isolation ON matters", stmts[0])
	assert.Equal(t,
		"CREATE POLICY tenant_isolation ON matters FOR ALL "+
			"USING (tenant_id = current_setting('app.current_tenant_id')::bigint) "+
			"WITH CHECK (tenant_id = current_setting('app.current_tenant_id')::bigint)",
		stmts[1])
}

func TestPolicySQLOwnerPolicy(t *testing.T) {
	p := Policy{Table: "expenses", OwnerColumn: "owner_id"}
	stmts := p.PolicySQL()
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[3], "CREATE POLICY owner_rows ON expenses FOR SELECT TO practice_restricted")
	assert.Contains(t, stmts[3], "owner_id = current_setting('app.current_user_id')::bigint")
}

func TestRegistryLookupAndOrder(t *testing.T) {
	Register(Policy{Table: "zz_test_b"})
	Register(Policy{Table: "aa_test_a"})

	_, ok := Lookup("zz_test_b")
	assert.True(t, ok)
	_, ok = Lookup("never_registered")
	assert.False(t, ok)

	var tables []string
	for _, p := range Policies() {
		tables = append(tables, p.Table)
	}
	assert.IsType(t, []string{}, tables)
	assert.True(t, indexOf(tables, "aa_test_a") < indexOf(tables, "zz_test_b"),
		"policies apply in deterministic table order")
}

func TestRegisterReplaces(t *testing.T) {
	Register(Policy{Table: "replace_me"})
	Register(Policy{Table: "replace_me", OwnerColumn: "owner_id"})
	p, ok := Lookup("replace_me")
	require.True(t, ok)
	assert.Equal(t, "owner_id", p.OwnerColumn)
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}
