package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents the tenant model stored in the database.
// This is the isolation boundary of the multi-tenant architecture: tenants
// are never merged, and every business row carries a tenant_id pointing
// here.
type Tenant struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Name           string         `json:"name" gorm:"type:varchar(100);not null"`
	Slug           string         `json:"slug" gorm:"type:varchar(100);uniqueIndex"`
	Plan           string         `json:"plan" gorm:"type:varchar(50);default:'starter'"`
	OwnerID        uint           `json:"owner_id" gorm:"index;not null"`
	DirectoryOrgID string         `json:"-" gorm:"type:varchar(100);index"` // organization ref in the external identity directory
	Active         bool           `json:"active" gorm:"default:true"`
	Settings       string         `json:"settings" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}
