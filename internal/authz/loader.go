package authz

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/autherr"
	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
)

// LoadSubject builds the evaluator subject for the scoped user: every role
// they hold in the current tenant with its rule set, plus team membership.
// Rules are loaded per request; there is no cross-request cache to go
// stale when a role is edited.
//
// The tx must carry the tenant scope on its context: the role and
// assignment queries rely on the row policies to stay inside the tenant.
func LoadSubject(ctx context.Context, tx *gorm.DB) (Subject, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return Subject{}, autherr.ErrSetupRequired
	}

	sub := Subject{UserID: scope.UserID}

	var assignments []model.UserRole
	if err := tx.Preload("Role.Rules").
		Where("user_id = ?", scope.UserID).
		Find(&assignments).Error; err != nil {
		return Subject{}, err
	}

	for _, assignment := range assignments {
		role := Role{Name: assignment.Role.Name}
		for _, r := range assignment.Role.Rules {
			role.Rules = append(role.Rules, Rule{
				Resource:   r.Resource,
				Action:     Action(r.Action),
				Scope:      ScopeLevel(r.Scope),
				GroupID:    r.GroupID,
				ResourceID: r.ResourceRef,
			})
		}
		sub.Roles = append(sub.Roles, role)
	}

	var membership model.UserTenant
	err := tx.Where("user_id = ? AND tenant_id = ? AND active = ?", scope.UserID, scope.TenantID, true).
		First(&membership).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// A credential can outlive a membership; no roles, no teams.
	case err != nil:
		return Subject{}, err
	case membership.TeamID != "":
		sub.TeamIDs = append(sub.TeamIDs, membership.TeamID)
	}

	return sub, nil
}
