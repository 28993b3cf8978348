package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayrollCalendar is one (year, month) slot. Exactly one non-supplementary
// period hangs off each calendar row.
type PayrollCalendar struct {
	Record
	Year  int `gorm:"not null;index:idx_calendar_ym" json:"year"`
	Month int `gorm:"not null;index:idx_calendar_ym" json:"month"`
}

func (PayrollCalendar) TableName() string { return "payroll_calendars" }

// PeriodStatus is the lifecycle state of a payroll period.
type PeriodStatus string

const (
	PeriodOpen       PeriodStatus = "OPEN"
	PeriodProcessing PeriodStatus = "PROCESSING"
	PeriodComputed   PeriodStatus = "COMPUTED"
	PeriodApproved   PeriodStatus = "APPROVED"
	PeriodPaid       PeriodStatus = "PAID"
	PeriodClosed     PeriodStatus = "CLOSED"
)

// PayrollPeriod is a month-long payroll window.
type PayrollPeriod struct {
	Record
	CalendarID      uuid.UUID    `gorm:"type:text;index;not null" json:"calendar_id"`
	StartDate       time.Time    `gorm:"index;not null" json:"start_date"`
	EndDate         time.Time    `gorm:"index;not null" json:"end_date"`
	Status          PeriodStatus `gorm:"type:varchar(32);default:'OPEN';index" json:"status"`
	PaymentDate     *time.Time   `json:"payment_date,omitempty"`
	IsSupplementary bool         `gorm:"default:false" json:"is_supplementary"`
	ParentPeriodID  *uuid.UUID   `gorm:"type:text" json:"parent_period_id,omitempty"`

	Calendar *PayrollCalendar `gorm:"foreignKey:CalendarID" json:"calendar,omitempty"`
}

func (PayrollPeriod) TableName() string { return "payroll_periods" }

// Contains reports whether the date falls inside the period window.
func (p *PayrollPeriod) Contains(d time.Time) bool {
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// TotalDays is the calendar day count of the period, inclusive.
func (p *PayrollPeriod) TotalDays() int {
	return int(p.EndDate.Sub(p.StartDate).Hours()/24) + 1
}

// RunStatus is the lifecycle state of a payroll run.
type RunStatus string

const (
	RunDraft             RunStatus = "DRAFT"
	RunComputing         RunStatus = "COMPUTING"
	RunComputed          RunStatus = "COMPUTED"
	RunReviewing         RunStatus = "REVIEWING"
	RunApproved          RunStatus = "APPROVED"
	RunRejected          RunStatus = "REJECTED"
	RunProcessingPayment RunStatus = "PROCESSING_PAYMENT"
	RunPaid              RunStatus = "PAID"
	RunReversed          RunStatus = "REVERSED"
)

// PayrollRun is one computation attempt over a period. A period may
// host multiple runs, e.g. after a reject.
type PayrollRun struct {
	Record
	PayrollPeriodID uuid.UUID `gorm:"type:text;index;not null" json:"payroll_period_id"`
	RunNumber       string    `gorm:"type:varchar(32);index;not null" json:"run_number"`
	Status          RunStatus `gorm:"type:varchar(32);default:'DRAFT';index" json:"status"`

	TotalEmployees     int             `gorm:"default:0" json:"total_employees"`
	TotalGross         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_gross"`
	TotalDeductions    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_deductions"`
	TotalNet           decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_net"`
	TotalEmployerCost  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_employer_cost"`
	TotalPAYE          decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_paye"`
	TotalOvertimeTax   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_overtime_tax"`
	TotalBonusTax      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_bonus_tax"`
	TotalSSNITEmployee decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_ssnit_employee"`
	TotalSSNITEmployer decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_ssnit_employer"`
	TotalTier2Employer decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_tier2_employer"`

	ComputedBy string     `gorm:"type:varchar(64)" json:"computed_by,omitempty"`
	ComputedAt *time.Time `json:"computed_at,omitempty"`
	ApprovedBy string     `gorm:"type:varchar(64)" json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedBy string     `gorm:"type:varchar(64)" json:"rejected_by,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	Notes      string     `gorm:"type:text" json:"notes,omitempty"`

	Period *PayrollPeriod `gorm:"foreignKey:PayrollPeriodID" json:"period,omitempty"`
	Items  []PayrollItem  `gorm:"foreignKey:PayrollRunID" json:"items,omitempty"`
}

func (PayrollRun) TableName() string { return "payroll_runs" }

// FormatRunNumber builds the deterministic PR-YYYYMM-NNN run number.
func FormatRunNumber(year, month, seq int) string {
	return fmt.Sprintf("PR-%04d%02d-%03d", year, month, seq)
}

// ResetTotals zeroes the run summary fields, used by reset_to_draft.
func (r *PayrollRun) ResetTotals() {
	zero := decimal.Zero
	r.TotalEmployees = 0
	r.TotalGross = zero
	r.TotalDeductions = zero
	r.TotalNet = zero
	r.TotalEmployerCost = zero
	r.TotalPAYE = zero
	r.TotalOvertimeTax = zero
	r.TotalBonusTax = zero
	r.TotalSSNITEmployee = zero
	r.TotalSSNITEmployer = zero
	r.TotalTier2Employer = zero
}
