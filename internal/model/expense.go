package model

import (
	"time"

	"gorm.io/gorm"
)

// Expense is a tenant-scoped cost entry billed against a matter.
type Expense struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"index;not null"`
	MatterID    uint           `json:"matter_id" gorm:"index;not null"`
	OwnerID     uint           `json:"owner_id" gorm:"index;not null"`
	TeamID      string         `json:"team_id" gorm:"type:varchar(100);index"`
	AmountCents int64          `json:"amount_cents" gorm:"not null"`
	Currency    string         `json:"currency" gorm:"type:varchar(3);default:'JPY'"`
	Description string         `json:"description" gorm:"type:text"`
	IncurredOn  time.Time      `json:"incurred_on"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
