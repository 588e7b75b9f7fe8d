package model

import (
	"time"

	"gorm.io/gorm"
)

// Role is a flat, tenant-scoped collection of permission rules. Roles are
// created dynamically per tenant and carry no inheritance; a user's
// effective permissions are the union across every role they hold.
type Role struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	TenantID  uint             `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_tenant_role_name"`
	Name      string           `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_role_name"`
	IsSystem  bool             `json:"is_system" gorm:"default:false"` // system roles are created at setup and cannot be deleted
	Rules     []PermissionRule `json:"rules" gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	DeletedAt gorm.DeletedAt   `json:"-" gorm:"index"`
}

// PermissionRule is a (resource type, action, scope) grant attached to a
// role. GroupID is set only for RESOURCE_GROUP scope and ResourceRef only
// for RESOURCE_ID scope.
type PermissionRule struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RoleID      uint      `json:"role_id" gorm:"index;not null"`
	TenantID    uint      `json:"tenant_id" gorm:"index;not null"`
	Resource    string    `json:"resource" gorm:"type:varchar(50);not null"`
	Action      string    `json:"action" gorm:"type:varchar(20);not null"`
	Scope       string    `json:"scope" gorm:"type:varchar(20);not null"`
	GroupID     string    `json:"group_id,omitempty" gorm:"type:varchar(100)"`
	ResourceRef string    `json:"resource_ref,omitempty" gorm:"type:varchar(100)"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRole assigns a role to a user within a tenant.
type UserRole struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	UserID    uint      `json:"user_id" gorm:"index;not null;uniqueIndex:idx_user_role"`
	RoleID    uint      `json:"role_id" gorm:"index;not null;uniqueIndex:idx_user_role"`
	CreatedAt time.Time `json:"created_at"`

	Role Role `json:"role,omitempty" gorm:"foreignKey:RoleID"`
}
