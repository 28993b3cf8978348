// Package models defines the logical data model of the payroll core:
// pay components, salary structures, employee compensation history,
// statutory tables, payroll periods/runs/items and backpay requests.
// All monetary fields are shopspring decimals; rows are tenant-scoped
// and soft-deleted, never hard-deleted from application code.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a referenced entity does not exist or is soft-deleted.
var ErrNotFound = errors.New("not found")

// Record is the embedded base of every entity: identity, tenancy,
// timestamps and soft-delete flag.
type Record struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	TenantID  string    `gorm:"type:varchar(64);index;not null" json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDeleted bool      `gorm:"default:false;index" json:"is_deleted"`
}

// BeforeCreate assigns an ID when the caller did not.
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// AuditLog is an append-only record of state-changing operations.
// One entry per run compute / lifecycle transition / period reopen,
// not one per item.
type AuditLog struct {
	Record
	Actor      string `gorm:"type:varchar(64)" json:"actor"`
	Action     string `gorm:"type:varchar(64);index" json:"action"`
	EntityType string `gorm:"type:varchar(64)" json:"entity_type"`
	EntityID   string `gorm:"type:varchar(64);index" json:"entity_id"`
	Detail     string `gorm:"type:text" json:"detail,omitempty"`
}

func (AuditLog) TableName() string { return "audit_logs" }
