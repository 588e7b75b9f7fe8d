package setup

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/authz"
	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/rls"
	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
)

// Resources the system owner role is granted over at setup time.
var ownerResources = []string{"matter", "expense", "role", "audit"}

// GormStore is the Postgres-backed setup store.
type GormStore struct {
	DB *gorm.DB
}

// DefaultTenant returns the user's default tenant, nil when setup has not
// completed. Membership resolution runs before any tenant context exists,
// which is why user_tenants stays outside the row policy registry.
func (s *GormStore) DefaultTenant(ctx context.Context, userID uint) (*model.Tenant, error) {
	var membership model.UserTenant
	err := s.DB.WithContext(ctx).
		Preload("Tenant").
		Where("user_id = ? AND is_default = ? AND active = ?", userID, true, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tenant := membership.Tenant
	return &tenant, nil
}

// CreateDefaultTenant provisions the tenant, the owner membership, the
// system owner role and its rules in one transaction. The tenant context
// is bound to the transaction the moment the tenant row exists, so the
// role writes run under the same row policies as any other tenant-scoped
// write.
func (s *GormStore) CreateDefaultTenant(ctx context.Context, params CreateTenantParams) (*model.Tenant, error) {
	tenant := model.Tenant{
		Name:           params.Name,
		Slug:           params.Slug,
		OwnerID:        params.UserID,
		DirectoryOrgID: params.DirectoryOrgID,
		Active:         true,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		scope := tenantctx.Scope{TenantID: tenant.ID, UserID: params.UserID}
		if err := rls.BindScope(tx, scope); err != nil {
			return err
		}
		scopedCtx := tenantctx.WithScope(ctx, scope)
		scoped := tx.WithContext(scopedCtx)

		membership := model.UserTenant{
			UserID:         params.UserID,
			TenantID:       tenant.ID,
			MembershipRole: "owner",
			IsDefault:      true,
			Active:         true,
		}
		if err := scoped.Create(&membership).Error; err != nil {
			return err
		}

		if err := scoped.Model(&model.User{}).
			Where("id = ?", params.UserID).
			Update("tenant_id", tenant.ID).Error; err != nil {
			return err
		}

		role := model.Role{
			TenantID: tenant.ID,
			Name:     "owner",
			IsSystem: true,
			Rules:    ownerRules(tenant.ID),
		}
		if err := scoped.Create(&role).Error; err != nil {
			return err
		}

		assignment := model.UserRole{
			TenantID: tenant.ID,
			UserID:   params.UserID,
			RoleID:   role.ID,
		}
		return scoped.Create(&assignment).Error
	})
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func ownerRules(tenantID uint) []model.PermissionRule {
	rules := make([]model.PermissionRule, 0, len(ownerResources))
	for _, resource := range ownerResources {
		rules = append(rules, model.PermissionRule{
			TenantID: tenantID,
			Resource: resource,
			Action:   string(authz.ActionManage),
			Scope:    string(authz.ScopeAll),
		})
	}
	return rules
}
