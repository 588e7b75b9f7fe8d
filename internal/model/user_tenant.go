package model

import (
	"time"

	"gorm.io/gorm"
)

// UserTenant represents the association between users and tenants.
// MembershipRole is the management-level role ('owner', 'admin', 'member')
// that gates tenant administration; fine-grained data permissions come from
// Role/PermissionRule assignments instead. This table is the tenancy
// bootstrap: it is consulted before a tenant context exists (login, tenant
// switch), so it is deliberately not registered with the row-level policy
// engine.
type UserTenant struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	UserID         uint           `json:"user_id" gorm:"index;not null;uniqueIndex:idx_user_tenant"`
	TenantID       uint           `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_user_tenant"`
	MembershipRole string         `json:"membership_role" gorm:"type:varchar(50);not null;default:'member'"`
	TeamID         string         `json:"team_id" gorm:"type:varchar(100);index"` // team within the tenant, consumed by TEAM-scoped rules
	IsDefault      bool           `json:"is_default" gorm:"default:false"`
	Active         bool           `json:"active" gorm:"default:true"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}
