package authz

import (
	"fmt"

	"go.uber.org/zap"
)

// Decision is the result of an authorization check. Reason is safe to log
// and to return to the caller: it says that permission is lacking, not
// which rules would have granted it.
type Decision struct {
	Allowed     bool
	Reason      string
	MatchedRole string
	MatchedRule *Rule
}

// Evaluator decides whether a subject may perform an action on a target.
// It is a permissive whitelist: any single matching rule authorizes
// (OR across rules), and there is no explicit-deny rule type.
type Evaluator struct {
	log *zap.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{log: log}
}

// Authorize runs the rule scan. The decision starts out denied: a subject
// with zero roles, or a resource type with zero rules, is denied without
// relying on empty-set iteration happening to produce that result.
func (e *Evaluator) Authorize(sub Subject, action Action, target Target) Decision {
	decision := Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("no rule grants %s on %s", action, target.Resource),
	}

	for _, role := range sub.Roles {
		for i := range role.Rules {
			rule := role.Rules[i]
			if rule.Resource != target.Resource {
				continue
			}
			if !actionMatches(rule.Action, action) {
				continue
			}
			if !e.scopeSatisfied(rule, sub, action, target) {
				continue
			}
			decision.Allowed = true
			decision.Reason = ""
			decision.MatchedRole = role.Name
			decision.MatchedRule = &rule
			e.log.Debug("authorization granted",
				zap.String("resource", target.Resource),
				zap.String("action", string(action)),
				zap.String("role", role.Name),
				zap.String("scope", string(rule.Scope)))
			return decision
		}
	}

	e.log.Debug("authorization denied",
		zap.String("resource", target.Resource),
		zap.String("action", string(action)),
		zap.Uint("user_id", sub.UserID),
		zap.Int("roles_held", len(sub.Roles)))
	return decision
}

// actionMatches reports whether a granted action covers the requested one.
// MANAGE covers everything; nothing else covers MANAGE.
func actionMatches(granted, requested Action) bool {
	if granted == ActionManage {
		return true
	}
	return granted == requested
}

// scopeSatisfied checks the rule's scope against the target. The ALL, TEAM
// and OWN levels are monotonic: a TEAM grant also covers the subject's own
// rows, and ALL covers everything in the tenant.
func (e *Evaluator) scopeSatisfied(rule Rule, sub Subject, action Action, target Target) bool {
	switch rule.Scope {
	case ScopeAll:
		return true
	case ScopeTeam:
		if e.ownsTarget(sub, action, target) {
			return true
		}
		return target.TeamID != "" && contains(sub.TeamIDs, target.TeamID)
	case ScopeOwn:
		return e.ownsTarget(sub, action, target)
	case ScopeResourceGroup:
		return rule.GroupID != "" && contains(target.Groups, rule.GroupID)
	case ScopeResourceID:
		return rule.ResourceID != "" && rule.ResourceID == target.ID
	default:
		return false
	}
}

// ownsTarget reports whether the subject owns the target. Only a CREATE
// check may name a target without an owner and still count as owned: the
// row being created will be stamped with the caller's ownership. For every
// other action an ownerless target is owned by nobody, otherwise an OWN
// grant on ownerless resources would behave like ALL.
func (e *Evaluator) ownsTarget(sub Subject, action Action, target Target) bool {
	if target.OwnerID == 0 {
		return action == ActionCreate
	}
	return target.OwnerID == sub.UserID
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
