package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func subjectWith(roles ...Role) Subject {
	return Subject{UserID: 10, TeamIDs: []string{"litigation"}, Roles: roles}
}

func TestDefaultDenyWithZeroRoles(t *testing.T) {
	e := NewEvaluator(nil)
	d := e.Authorize(Subject{UserID: 10}, ActionView, Target{Resource: "matter", ID: "m-1"})
	assert.False(t, d.Allowed)
	assert.NotEmpty(t, d.Reason)
}

func TestDefaultDenyWithUnrelatedResourceRules(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "billing", Rules: []Rule{
		{Resource: "expense", Action: ActionManage, Scope: ScopeAll},
	}})
	d := e.Authorize(sub, ActionView, Target{Resource: "matter", ID: "m-1"})
	assert.False(t, d.Allowed, "rules for another resource type must not leak across")
}

func TestManageWildcard(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "partner", Rules: []Rule{
		{Resource: "matter", Action: ActionManage, Scope: ScopeAll},
	}})

	for _, action := range []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionImport} {
		d := e.Authorize(sub, action, Target{Resource: "matter", ID: "m-1", OwnerID: 99})
		assert.True(t, d.Allowed, "MANAGE must cover %s", action)
		assert.Equal(t, "partner", d.MatchedRole)
	}
}

func TestViewDoesNotGrantCreate(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "viewer", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeAll},
	}})
	assert.True(t, e.Authorize(sub, ActionView, Target{Resource: "matter", ID: "m-1"}).Allowed)
	assert.False(t, e.Authorize(sub, ActionCreate, Target{Resource: "matter"}).Allowed)
}

func TestViewDoesNotGrantManage(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "viewer", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeAll},
	}})
	assert.False(t, e.Authorize(sub, ActionManage, Target{Resource: "matter", ID: "m-1"}).Allowed)
}

func TestScopeHierarchyMonotonicity(t *testing.T) {
	e := NewEvaluator(nil)

	own := Target{Resource: "matter", ID: "m-own", OwnerID: 10}
	teammate := Target{Resource: "matter", ID: "m-team", OwnerID: 20, TeamID: "litigation"}
	foreign := Target{Resource: "matter", ID: "m-far", OwnerID: 30, TeamID: "tax"}

	allSub := subjectWith(Role{Name: "all", Rules: []Rule{{Resource: "matter", Action: ActionEdit, Scope: ScopeAll}}})
	teamSub := subjectWith(Role{Name: "team", Rules: []Rule{{Resource: "matter", Action: ActionEdit, Scope: ScopeTeam}}})
	ownSub := subjectWith(Role{Name: "own", Rules: []Rule{{Resource: "matter", Action: ActionEdit, Scope: ScopeOwn}}})

	// ALL covers every target
	assert.True(t, e.Authorize(allSub, ActionEdit, own).Allowed)
	assert.True(t, e.Authorize(allSub, ActionEdit, teammate).Allowed)
	assert.True(t, e.Authorize(allSub, ActionEdit, foreign).Allowed)

	// TEAM covers own and teammate rows, not foreign teams
	assert.True(t, e.Authorize(teamSub, ActionEdit, own).Allowed)
	assert.True(t, e.Authorize(teamSub, ActionEdit, teammate).Allowed)
	assert.False(t, e.Authorize(teamSub, ActionEdit, foreign).Allowed)

	// OWN covers only the subject's rows
	assert.True(t, e.Authorize(ownSub, ActionEdit, own).Allowed)
	assert.False(t, e.Authorize(ownSub, ActionEdit, teammate).Allowed)
	assert.False(t, e.Authorize(ownSub, ActionEdit, foreign).Allowed)
}

func TestRoleUnion(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(
		Role{Name: "viewer", Rules: []Rule{{Resource: "matter", Action: ActionView, Scope: ScopeAll}}},
		Role{Name: "editor", Rules: []Rule{{Resource: "matter", Action: ActionEdit, Scope: ScopeTeam}}},
	)

	foreign := Target{Resource: "matter", ID: "m-far", OwnerID: 30, TeamID: "tax"}
	teammate := Target{Resource: "matter", ID: "m-team", OwnerID: 20, TeamID: "litigation"}

	assert.True(t, e.Authorize(sub, ActionView, foreign).Allowed, "view-any comes from role A")
	assert.True(t, e.Authorize(sub, ActionEdit, teammate).Allowed, "edit-in-team comes from role B")
	assert.False(t, e.Authorize(sub, ActionEdit, foreign).Allowed, "edit outside team granted by neither")
}

func TestResourceGroupScope(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "ip-counsel", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeResourceGroup, GroupID: "intellectual-property"},
	}})

	inGroup := Target{Resource: "matter", ID: "m-1", OwnerID: 99, Groups: []string{"intellectual-property"}}
	outside := Target{Resource: "matter", ID: "m-2", OwnerID: 99, Groups: []string{"family-law"}}

	assert.True(t, e.Authorize(sub, ActionView, inGroup).Allowed)
	assert.False(t, e.Authorize(sub, ActionView, outside).Allowed)
}

func TestResourceIDScope(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "outside-counsel", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeResourceID, ResourceID: "m-42"},
	}})

	assert.True(t, e.Authorize(sub, ActionView, Target{Resource: "matter", ID: "m-42", OwnerID: 99}).Allowed)
	assert.False(t, e.Authorize(sub, ActionView, Target{Resource: "matter", ID: "m-43", OwnerID: 99}).Allowed)
}

func TestEmptyGroupRuleDoesNotMatchEverything(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "broken", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeResourceGroup},
	}})
	d := e.Authorize(sub, ActionView, Target{Resource: "matter", ID: "m-1", Groups: []string{""}})
	assert.False(t, d.Allowed, "a group rule without a group names nothing")
}

func TestCreateOnResourceTypeWithOwnScope(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "associate", Rules: []Rule{
		{Resource: "expense", Action: ActionCreate, Scope: ScopeOwn},
	}})
	// Creating a row the subject will own satisfies OWN.
	assert.True(t, e.Authorize(sub, ActionCreate, Target{Resource: "expense"}).Allowed)
}

func TestOwnScopeDeniesOwnerlessTargets(t *testing.T) {
	e := NewEvaluator(nil)
	sub := subjectWith(Role{Name: "clerk", Rules: []Rule{
		{Resource: "audit", Action: ActionView, Scope: ScopeOwn},
	}})

	// The audit trail carries no owner column; an OWN grant on it must not
	// widen into tenant-wide visibility.
	assert.False(t, e.Authorize(sub, ActionView, Target{Resource: "audit"}).Allowed)
	assert.False(t, e.Authorize(sub, ActionExport, Target{Resource: "audit"}).Allowed)

	// Same through a TEAM grant, which includes OWN.
	teamSub := subjectWith(Role{Name: "clerk", Rules: []Rule{
		{Resource: "audit", Action: ActionView, Scope: ScopeTeam},
	}})
	assert.False(t, e.Authorize(teamSub, ActionView, Target{Resource: "audit"}).Allowed)
}
