package authz

// Constraint narrows a list query to the rows the subject may see for a
// given (resource, action). It is the query-shaped counterpart of
// Authorize: applying it and then checking each returned row with
// Authorize yield the same answer.
type Constraint struct {
	// Deny is true when no rule matches at all; the query should return
	// nothing without touching the database.
	Deny bool
	// All is true when an ALL-scoped rule matches; no narrowing needed
	// beyond the tenant filter.
	All bool

	Own     bool
	TeamIDs []string
	Groups  []string
	IDs     []string
}

// ListConstraint aggregates the subject's matching rules into a query
// constraint. Like Authorize it starts from deny and only widens.
func ListConstraint(sub Subject, resource string, action Action) Constraint {
	c := Constraint{Deny: true}

	for _, role := range sub.Roles {
		for _, rule := range role.Rules {
			if rule.Resource != resource || !actionMatches(rule.Action, action) {
				continue
			}
			c.Deny = false
			switch rule.Scope {
			case ScopeAll:
				c.All = true
			case ScopeTeam:
				c.Own = true
				c.TeamIDs = append(c.TeamIDs, sub.TeamIDs...)
			case ScopeOwn:
				c.Own = true
			case ScopeResourceGroup:
				if rule.GroupID != "" {
					c.Groups = append(c.Groups, rule.GroupID)
				}
			case ScopeResourceID:
				if rule.ResourceID != "" {
					c.IDs = append(c.IDs, rule.ResourceID)
				}
			}
		}
	}

	if c.All {
		// Narrower grants are irrelevant once ALL matched.
		c.Own = false
		c.TeamIDs = nil
		c.Groups = nil
		c.IDs = nil
	}
	return c
}
