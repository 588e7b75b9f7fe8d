package model

import "time"

// Audit results.
const (
	AuditResultSuccess = "success"
	AuditResultDenied  = "denied"
	AuditResultError   = "error"
)

// AuditEntry is an immutable record of a permission decision or mutating
// operation. Application code only ever inserts rows here; there is no
// update or delete path.
type AuditEntry struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TenantID   uint      `json:"tenant_id" gorm:"index;not null"`
	ActorID    uint      `json:"actor_id" gorm:"index;not null"`
	Action     string    `json:"action" gorm:"type:varchar(50);not null"`
	EntityType string    `json:"entity_type" gorm:"type:varchar(50);not null"`
	EntityID   string    `json:"entity_id" gorm:"type:varchar(100)"`
	Result     string    `json:"result" gorm:"type:varchar(20);not null"`
	Detail     string    `json:"detail,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at"`
}
