package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BackpayStatus is the lifecycle of a backpay request.
// APPROVED -> APPLIED is one-way; CANCELLED is available any time
// before APPLIED.
type BackpayStatus string

const (
	BackpayDraft     BackpayStatus = "DRAFT"
	BackpayPreviewed BackpayStatus = "PREVIEWED"
	BackpayApproved  BackpayStatus = "APPROVED"
	BackpayApplied   BackpayStatus = "APPLIED"
	BackpayCancelled BackpayStatus = "CANCELLED"
)

// BackpayRequest scopes one employee's arrears over a date range.
type BackpayRequest struct {
	Record
	EmployeeID    uuid.UUID     `gorm:"type:text;index;not null" json:"employee_id"`
	Reason        string        `gorm:"type:text;not null" json:"reason"`
	EffectiveFrom time.Time     `gorm:"index;not null" json:"effective_from"`
	EffectiveTo   time.Time     `gorm:"index;not null" json:"effective_to"`
	NewSalaryID   *uuid.UUID    `gorm:"type:text" json:"new_salary_id,omitempty"`
	OldSalaryID   *uuid.UUID    `gorm:"type:text" json:"old_salary_id,omitempty"`
	Status        BackpayStatus `gorm:"type:varchar(32);default:'DRAFT';index" json:"status"`

	TotalEarningsArrears   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_earnings_arrears"`
	TotalDeductionsArrears decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_deductions_arrears"`
	NetArrears             decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"net_arrears"`
	PeriodCount            int             `gorm:"default:0" json:"period_count"`

	AppliedToRunID *uuid.UUID `gorm:"type:text;index" json:"applied_to_run_id,omitempty"`
	AppliedAt      *time.Time `json:"applied_at,omitempty"`
	ApprovedBy     string     `gorm:"type:varchar(64)" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`

	Employee *Employee       `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	Details  []BackpayDetail `gorm:"foreignKey:BackpayRequestID" json:"details,omitempty"`
}

func (BackpayRequest) TableName() string { return "backpay_requests" }

// Overlaps reports whether the request's range intersects [from, to].
func (b *BackpayRequest) Overlaps(from, to time.Time) bool {
	return !b.EffectiveFrom.After(to) && !b.EffectiveTo.Before(from)
}

// BackpayDetail is one per (request, period, component) delta.
type BackpayDetail struct {
	Record
	BackpayRequestID uuid.UUID       `gorm:"type:text;index;not null" json:"backpay_request_id"`
	PayrollPeriodID  uuid.UUID       `gorm:"type:text;index;not null" json:"payroll_period_id"`
	PayComponentID   uuid.UUID       `gorm:"type:text;index;not null" json:"pay_component_id"`
	ComponentCode    string          `gorm:"type:varchar(32)" json:"component_code"`
	ComponentType    ComponentType   `gorm:"type:varchar(32)" json:"component_type"`
	OldAmount        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"old_amount"`
	NewAmount        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"new_amount"`
	Difference       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"difference"`

	Period       *PayrollPeriod `gorm:"foreignKey:PayrollPeriodID" json:"period,omitempty"`
	PayComponent *PayComponent  `gorm:"foreignKey:PayComponentID" json:"pay_component,omitempty"`
}

func (BackpayDetail) TableName() string { return "backpay_details" }
