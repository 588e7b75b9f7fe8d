package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents the user model stored in the database.
// TenantID is the user's default tenant; it is nil until setup completes,
// which is the setup-required state.
type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Email     string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Password  string         `json:"-" gorm:"type:varchar(255)"`
	Subject   string         `json:"-" gorm:"type:varchar(100);index"` // authentication subject reference
	TenantID  *uint          `json:"tenant_id,omitempty" gorm:"index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
