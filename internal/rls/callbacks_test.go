package rls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"

	"github.com/AstarWorks/AstarManagement-sub017/internal/autherr"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
)

type caseRow struct {
	ID       uint
	TenantID uint
	OwnerID  uint
	Title    string
}

// newCallbackDB opens a dry-run GORM handle: callbacks run and SQL is
// built, but nothing reaches a database.
func newCallbackDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, RegisterCallbacks(db, nil))
	Register(Policy{Table: "case_rows", OwnerColumn: "owner_id"})
	return db
}

func scopedCtx(tenantID, userID uint) context.Context {
	return tenantctx.WithScope(context.Background(), tenantctx.Scope{TenantID: tenantID, UserID: userID})
}

func TestCreateStampsSessionTenant(t *testing.T) {
	db := newCallbackDB(t)

	row := caseRow{Title: "estate of tanaka"}
	result := db.WithContext(scopedCtx(7, 3)).Create(&row)
	assert.NoError(t, result.Error)
	assert.Equal(t, uint(7), row.TenantID, "unset tenant column is stamped from the session")
}

func TestCreateMatchingTenantPasses(t *testing.T) {
	db := newCallbackDB(t)

	row := caseRow{TenantID: 7, Title: "estate of tanaka"}
	result := db.WithContext(scopedCtx(7, 3)).Create(&row)
	assert.NoError(t, result.Error)
	assert.Equal(t, uint(7), row.TenantID)
}

func TestCreateForeignTenantRejected(t *testing.T) {
	db := newCallbackDB(t)

	row := caseRow{TenantID: 8, Title: "smuggled row"}
	result := db.WithContext(scopedCtx(7, 3)).Create(&row)
	assert.ErrorIs(t, result.Error, autherr.ErrCrossTenantViolation)
}

func TestCreateSliceStampsEveryRow(t *testing.T) {
	db := newCallbackDB(t)

	rows := []caseRow{{Title: "a"}, {Title: "b"}}
	result := db.WithContext(scopedCtx(7, 3)).Create(&rows)
	assert.NoError(t, result.Error)
	for _, row := range rows {
		assert.Equal(t, uint(7), row.TenantID)
	}
}

func TestUpdateReassignToForeignTenantRejected(t *testing.T) {
	db := newCallbackDB(t)

	result := db.WithContext(scopedCtx(7, 3)).
		Model(&caseRow{ID: 1}).
		Updates(map[string]interface{}{"tenant_id": 9})
	assert.ErrorIs(t, result.Error, autherr.ErrCrossTenantViolation)
}

func TestUpdateKeepingOwnTenantPasses(t *testing.T) {
	db := newCallbackDB(t)

	result := db.WithContext(scopedCtx(7, 3)).
		Model(&caseRow{ID: 1}).
		Updates(map[string]interface{}{"tenant_id": uint(7), "title": "renamed"})
	assert.NoError(t, result.Error)
}

func TestQueryGainsTenantFilter(t *testing.T) {
	db := newCallbackDB(t)

	var rows []caseRow
	result := db.WithContext(scopedCtx(7, 3)).Find(&rows)
	assert.NoError(t, result.Error)
	assert.Contains(t, result.Statement.SQL.String(), "tenant_id")
}

func TestUnscopedStatementRefused(t *testing.T) {
	db := newCallbackDB(t)

	var rows []caseRow
	result := db.WithContext(context.Background()).Find(&rows)
	assert.ErrorIs(t, result.Error, autherr.ErrSetupRequired)
}

func TestWithoutTenancySkipsCallbacks(t *testing.T) {
	db := newCallbackDB(t)

	var rows []caseRow
	result := WithoutTenancy(db.WithContext(context.Background())).Find(&rows)
	assert.NoError(t, result.Error)
	assert.NotContains(t, result.Statement.SQL.String(), "tenant_id")
}

func TestUnregisteredTableNeedsNoScope(t *testing.T) {
	db := newCallbackDB(t)

	type loginRow struct {
		ID    uint
		Email string
	}
	var rows []loginRow
	result := db.WithContext(context.Background()).Find(&rows)
	assert.NoError(t, result.Error)
}

func TestTenantValueMatches(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want bool
	}{
		{"uint match", uint(7), true},
		{"uint mismatch", uint(8), false},
		{"uint64 match", uint64(7), true},
		{"uint64 mismatch", uint64(8), false},
		{"int match", int(7), true},
		{"int mismatch", int(8), false},
		{"negative int", int(-7), false},
		{"int64 match", int64(7), true},
		{"negative int64", int64(-7), false},
		{"string never matches", "7", false},
		{"nil never matches", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tenantValueMatches(tc.raw, 7))
		})
	}
}
