package model

import (
	"time"

	"gorm.io/gorm"
)

// Matter represents a legal case. It is the canonical tenant-scoped
// business row: visible only inside its tenant, further narrowed by the
// owner/team columns that OWN- and TEAM-scoped permission rules consume.
// PracticeArea doubles as the resource group for RESOURCE_GROUP rules.
type Matter struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TenantID     uint           `json:"tenant_id" gorm:"index;not null"`
	Title        string         `json:"title" gorm:"type:varchar(255);not null"`
	ClientName   string         `json:"client_name" gorm:"type:varchar(255)"`
	Status       string         `json:"status" gorm:"type:varchar(50);default:'open'"` // open, pending, closed
	OwnerID      uint           `json:"owner_id" gorm:"index;not null"`
	TeamID       string         `json:"team_id" gorm:"type:varchar(100);index"`
	PracticeArea string         `json:"practice_area" gorm:"type:varchar(100);index"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
