package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListConstraintDenyByDefault(t *testing.T) {
	c := ListConstraint(Subject{UserID: 10}, "matter", ActionView)
	assert.True(t, c.Deny)
}

func TestListConstraintAllSubsumesNarrowerGrants(t *testing.T) {
	sub := subjectWith(Role{Name: "mixed", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeOwn},
		{Resource: "matter", Action: ActionView, Scope: ScopeAll},
		{Resource: "matter", Action: ActionView, Scope: ScopeResourceGroup, GroupID: "ip"},
	}})
	c := ListConstraint(sub, "matter", ActionView)
	assert.False(t, c.Deny)
	assert.True(t, c.All)
	assert.False(t, c.Own)
	assert.Empty(t, c.Groups)
}

func TestListConstraintTeamIncludesOwn(t *testing.T) {
	sub := subjectWith(Role{Name: "team", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeTeam},
	}})
	c := ListConstraint(sub, "matter", ActionView)
	assert.False(t, c.Deny)
	assert.False(t, c.All)
	assert.True(t, c.Own)
	assert.Equal(t, []string{"litigation"}, c.TeamIDs)
}

func TestListConstraintCollectsGroupsAndIDs(t *testing.T) {
	sub := subjectWith(Role{Name: "special", Rules: []Rule{
		{Resource: "matter", Action: ActionView, Scope: ScopeResourceGroup, GroupID: "ip"},
		{Resource: "matter", Action: ActionView, Scope: ScopeResourceID, ResourceID: "42"},
	}})
	c := ListConstraint(sub, "matter", ActionView)
	assert.False(t, c.Deny)
	assert.Equal(t, []string{"ip"}, c.Groups)
	assert.Equal(t, []string{"42"}, c.IDs)
}

func TestListConstraintManageCoversView(t *testing.T) {
	sub := subjectWith(Role{Name: "partner", Rules: []Rule{
		{Resource: "matter", Action: ActionManage, Scope: ScopeAll},
	}})
	assert.True(t, ListConstraint(sub, "matter", ActionView).All)
}
