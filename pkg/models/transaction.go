package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionTarget selects who a transaction applies to.
type TransactionTarget string

const (
	TargetIndividual TransactionTarget = "INDIVIDUAL"
	TargetGrade      TransactionTarget = "GRADE"
	TargetBand       TransactionTarget = "BAND"
)

// OverrideType selects how a transaction derives its amount over the
// referenced pay component.
type OverrideType string

const (
	OverrideNone    OverrideType = "NONE"
	OverrideFixed   OverrideType = "FIXED"
	OverridePct     OverrideType = "PCT"
	OverrideFormula OverrideType = "FORMULA"
)

// TransactionStatus is the lifecycle of an employee transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionApproved  TransactionStatus = "APPROVED"
	TransactionActive    TransactionStatus = "ACTIVE"
	TransactionSuspended TransactionStatus = "SUSPENDED"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// EmployeeTransaction is a dated, versioned overlay that adds or
// replaces a pay component value for an employee, grade or band.
// Value changes never update in place: the current row is closed
// (effective_to set, is_current_version false) and a new row with
// version+1 is written. Only the current version computes.
type EmployeeTransaction struct {
	Record
	TargetType TransactionTarget `gorm:"type:varchar(32);not null;index" json:"target_type"`
	EmployeeID *uuid.UUID        `gorm:"type:text;index" json:"employee_id,omitempty"`
	GradeID    *uuid.UUID        `gorm:"type:text;index" json:"grade_id,omitempty"`
	BandID     *uuid.UUID        `gorm:"type:text;index" json:"band_id,omitempty"`

	PayComponentID uuid.UUID    `gorm:"type:text;index;not null" json:"pay_component_id"`
	OverrideType   OverrideType `gorm:"type:varchar(32);default:'NONE'" json:"override_type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount"`
	Percentage     decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"percentage"`
	Formula        string          `gorm:"type:text" json:"formula,omitempty"`

	EffectiveFrom   time.Time         `gorm:"index;not null" json:"effective_from"`
	EffectiveTo     *time.Time        `json:"effective_to,omitempty"`
	IsRecurring     bool              `gorm:"default:true" json:"is_recurring"`
	PayrollPeriodID *uuid.UUID        `gorm:"type:text;index" json:"payroll_period_id,omitempty"`
	Status          TransactionStatus `gorm:"type:varchar(32);default:'PENDING';index" json:"status"`

	Version          int        `gorm:"default:1" json:"version"`
	IsCurrentVersion bool       `gorm:"default:true;index" json:"is_current_version"`
	ParentID         *uuid.UUID `gorm:"type:text;index" json:"parent_id,omitempty"`

	Reason string `gorm:"type:text" json:"reason,omitempty"`

	PayComponent *PayComponent `gorm:"foreignKey:PayComponentID" json:"pay_component,omitempty"`
	Employee     *Employee     `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
}

func (EmployeeTransaction) TableName() string { return "employee_transactions" }

// RootID is the logical identity shared across versions of one transaction.
func (t *EmployeeTransaction) RootID() uuid.UUID {
	if t.ParentID != nil {
		return *t.ParentID
	}
	return t.ID
}

// AdHocPayment is a one-off approved payment for an (employee, period),
// never prorated.
type AdHocPayment struct {
	Record
	EmployeeID      uuid.UUID       `gorm:"type:text;index;not null" json:"employee_id"`
	PayrollPeriodID uuid.UUID       `gorm:"type:text;index;not null" json:"payroll_period_id"`
	PayComponentID  uuid.UUID       `gorm:"type:text;index;not null" json:"pay_component_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	IsApproved      bool            `gorm:"default:false;index" json:"is_approved"`
	Reason          string          `gorm:"type:text" json:"reason,omitempty"`

	PayComponent *PayComponent `gorm:"foreignKey:PayComponentID" json:"pay_component,omitempty"`
}

func (AdHocPayment) TableName() string { return "adhoc_payments" }
