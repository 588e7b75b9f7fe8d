package authz

// Action is an operation on a resource type.
type Action string

const (
	ActionView   Action = "VIEW"
	ActionCreate Action = "CREATE"
	ActionEdit   Action = "EDIT"
	ActionDelete Action = "DELETE"
	ActionExport Action = "EXPORT"
	ActionImport Action = "IMPORT"

	// ActionManage is a wildcard subsuming every other action for the
	// same resource type.
	ActionManage Action = "MANAGE"
)

// ScopeLevel is the breadth of a permission rule. ALL, TEAM and OWN form a
// fixed hierarchy (ALL covers TEAM covers OWN); RESOURCE_GROUP and
// RESOURCE_ID grant access to named collections or single instances
// regardless of that hierarchy.
type ScopeLevel string

const (
	ScopeAll           ScopeLevel = "ALL"
	ScopeTeam          ScopeLevel = "TEAM"
	ScopeOwn           ScopeLevel = "OWN"
	ScopeResourceGroup ScopeLevel = "RESOURCE_GROUP"
	ScopeResourceID    ScopeLevel = "RESOURCE_ID"
)

// ValidAction reports whether s names a known action.
func ValidAction(s string) bool {
	switch Action(s) {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionImport, ActionManage:
		return true
	}
	return false
}

// ValidScope reports whether s names a known scope level.
func ValidScope(s string) bool {
	switch ScopeLevel(s) {
	case ScopeAll, ScopeTeam, ScopeOwn, ScopeResourceGroup, ScopeResourceID:
		return true
	}
	return false
}

// Rule is a single permission grant: (resource type, action, scope).
// GroupID is set only for RESOURCE_GROUP scope, ResourceID only for
// RESOURCE_ID scope.
type Rule struct {
	Resource   string
	Action     Action
	Scope      ScopeLevel
	GroupID    string
	ResourceID string
}

// Role is a flat, tenant-scoped named set of rules. There is no role
// inheritance; a user's effective permissions are the union across all
// held roles.
type Role struct {
	Name  string
	Rules []Rule
}

// Subject is the authenticated principal being authorized.
type Subject struct {
	UserID  uint
	TeamIDs []string
	Roles   []Role
}

// Target describes the resource an action is requested against. For CREATE
// checks on a resource type the ID and OwnerID may be empty; ownership then
// defaults to the acting user.
type Target struct {
	Resource string
	ID       string
	OwnerID  uint
	TeamID   string
	Groups   []string
}
