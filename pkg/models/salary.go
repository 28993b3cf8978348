package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EmployeeSalary is a time-sliced salary record. New records close out
// prior ones by setting effective_to = new.effective_from - 1 day; a
// superseded record is never updated again.
type EmployeeSalary struct {
	Record
	EmployeeID        uuid.UUID       `gorm:"type:text;index;not null" json:"employee_id"`
	BasicSalary       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"basic_salary"`
	SalaryStructureID *uuid.UUID      `gorm:"type:text;index" json:"salary_structure_id,omitempty"`
	SalaryNotchID     *uuid.UUID      `gorm:"type:text" json:"salary_notch_id,omitempty"`
	EffectiveFrom     time.Time       `gorm:"index;not null" json:"effective_from"`
	EffectiveTo       *time.Time      `json:"effective_to,omitempty"`
	IsCurrent         bool            `gorm:"default:true;index" json:"is_current"`

	Employee        *Employee                 `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	SalaryStructure *SalaryStructure          `gorm:"foreignKey:SalaryStructureID" json:"salary_structure,omitempty"`
	Components      []EmployeeSalaryComponent `gorm:"foreignKey:EmployeeSalaryID" json:"components,omitempty"`
}

func (EmployeeSalary) TableName() string { return "employee_salaries" }

// ActiveAt reports whether the salary window contains the given date.
func (s *EmployeeSalary) ActiveAt(asOf time.Time) bool {
	if s.EffectiveFrom.After(asOf) {
		return false
	}
	return s.EffectiveTo == nil || !s.EffectiveTo.Before(asOf)
}

// EmployeeSalaryComponent overrides a structure amount for one
// employee salary record.
type EmployeeSalaryComponent struct {
	Record
	EmployeeSalaryID uuid.UUID       `gorm:"type:text;index;not null" json:"employee_salary_id"`
	PayComponentID   uuid.UUID       `gorm:"type:text;index;not null" json:"pay_component_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount"`
	IsActive         bool            `gorm:"default:true" json:"is_active"`

	PayComponent *PayComponent `gorm:"foreignKey:PayComponentID" json:"pay_component,omitempty"`
}

func (EmployeeSalaryComponent) TableName() string { return "employee_salary_components" }

// UpgradeStatus is the approval state of a salary upgrade request.
type UpgradeStatus string

const (
	UpgradePending  UpgradeStatus = "PENDING"
	UpgradeApproved UpgradeStatus = "APPROVED"
	UpgradeRejected UpgradeStatus = "REJECTED"
)

// SalaryUpgradeRequest changes an employee's notch (and optionally
// grade/position) through an approval workflow. Approval is
// side-effecting: it creates a new EmployeeSalary, closes the prior
// one, writes an EmploymentHistory row, and auto-creates a DRAFT
// BackpayRequest when the effective date precedes the active period.
type SalaryUpgradeRequest struct {
	Record
	EmployeeID    uuid.UUID     `gorm:"type:text;index;not null" json:"employee_id"`
	NewNotchID    uuid.UUID     `gorm:"type:text;not null" json:"new_notch_id"`
	NewGradeID    *uuid.UUID    `gorm:"type:text" json:"new_grade_id,omitempty"`
	NewPosition   string        `gorm:"type:varchar(128)" json:"new_position,omitempty"`
	EffectiveFrom time.Time     `gorm:"not null" json:"effective_from"`
	Reason        string        `gorm:"type:text" json:"reason,omitempty"`
	Status        UpgradeStatus `gorm:"type:varchar(32);default:'PENDING';index" json:"status"`
	RequestedBy   string        `gorm:"type:varchar(64)" json:"requested_by,omitempty"`
	ApprovedBy    string        `gorm:"type:varchar(64)" json:"approved_by,omitempty"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`

	Employee *Employee    `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	NewNotch *SalaryNotch `gorm:"foreignKey:NewNotchID" json:"new_notch,omitempty"`
}

func (SalaryUpgradeRequest) TableName() string { return "salary_upgrade_requests" }
