package models

import (
	"time"

	"github.com/google/uuid"
)

// EmployeeStatus is the employment state used for run eligibility.
type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "ACTIVE"
	EmployeeOnLeave    EmployeeStatus = "ON_LEAVE"
	EmployeeProbation  EmployeeStatus = "PROBATION"
	EmployeeNotice     EmployeeStatus = "NOTICE"
	EmployeeSuspended  EmployeeStatus = "SUSPENDED"
	EmployeeTerminated EmployeeStatus = "TERMINATED"
)

// PayableStatuses are the statuses eligible for a payroll run.
var PayableStatuses = []EmployeeStatus{EmployeeActive, EmployeeOnLeave, EmployeeProbation, EmployeeNotice}

// Department groups employees for reporting.
type Department struct {
	Record
	Name string `gorm:"type:varchar(128);not null" json:"name"`
	Code string `gorm:"type:varchar(32)" json:"code,omitempty"`
}

func (Department) TableName() string { return "departments" }

// Grade is an employment grade, optionally tied to a salary band.
type Grade struct {
	Record
	Name         string     `gorm:"type:varchar(128);not null" json:"name"`
	SalaryBandID *uuid.UUID `gorm:"type:text;index" json:"salary_band_id,omitempty"`

	SalaryBand *SalaryBand `gorm:"foreignKey:SalaryBandID" json:"salary_band,omitempty"`
}

func (Grade) TableName() string { return "grades" }

// Bank is a payment institution.
type Bank struct {
	Record
	Name     string `gorm:"type:varchar(128);not null" json:"name"`
	SortCode string `gorm:"type:varchar(32)" json:"sort_code,omitempty"`
}

func (Bank) TableName() string { return "banks" }

// BankAccount is an employee's payment account. At most one primary
// active account participates in a run snapshot.
type BankAccount struct {
	Record
	EmployeeID    uuid.UUID `gorm:"type:text;index;not null" json:"employee_id"`
	BankID        uuid.UUID `gorm:"type:text;index;not null" json:"bank_id"`
	AccountName   string    `gorm:"type:varchar(128);not null" json:"account_name"`
	AccountNumber string    `gorm:"type:varchar(64);not null" json:"account_number"`
	Branch        string    `gorm:"type:varchar(128)" json:"branch,omitempty"`
	IsPrimary     bool      `gorm:"default:false" json:"is_primary"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`

	Bank *Bank `gorm:"foreignKey:BankID" json:"bank,omitempty"`
}

func (BankAccount) TableName() string { return "bank_accounts" }

// Employee is the roster entity the computation engine iterates.
type Employee struct {
	Record
	EmployeeNumber string         `gorm:"type:varchar(32);index;not null" json:"employee_number"`
	FirstName      string         `gorm:"type:varchar(64);not null" json:"first_name"`
	LastName       string         `gorm:"type:varchar(64);not null" json:"last_name"`
	Email          string         `gorm:"type:varchar(128)" json:"email,omitempty"`
	Status         EmployeeStatus `gorm:"type:varchar(32);default:'ACTIVE';index" json:"status"`
	DateOfJoining  time.Time      `json:"date_of_joining"`
	DateOfExit     *time.Time     `json:"date_of_exit,omitempty"`
	IsResident     bool           `gorm:"default:true" json:"is_resident"`
	Position       string         `gorm:"type:varchar(128)" json:"position,omitempty"`
	DepartmentID   *uuid.UUID     `gorm:"type:text;index" json:"department_id,omitempty"`
	GradeID        *uuid.UUID     `gorm:"type:text;index" json:"grade_id,omitempty"`
	SalaryNotchID  *uuid.UUID     `gorm:"type:text;index" json:"salary_notch_id,omitempty"`

	Department  *Department  `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Grade       *Grade       `gorm:"foreignKey:GradeID" json:"grade,omitempty"`
	SalaryNotch *SalaryNotch `gorm:"foreignKey:SalaryNotchID" json:"salary_notch,omitempty"`
}

func (Employee) TableName() string { return "employees" }

// FullName returns the display name.
func (e *Employee) FullName() string { return e.FirstName + " " + e.LastName }

// IsPayable reports run eligibility by status alone.
func (e *Employee) IsPayable() bool {
	for _, s := range PayableStatuses {
		if e.Status == s {
			return true
		}
	}
	return false
}

// HistoryChangeType enumerates employment history events.
type HistoryChangeType string

const (
	HistoryHire         HistoryChangeType = "HIRE"
	HistoryPromotion    HistoryChangeType = "PROMOTION"
	HistoryGradeChange  HistoryChangeType = "GRADE_CHANGE"
	HistoryDemotion     HistoryChangeType = "DEMOTION"
	HistorySalaryChange HistoryChangeType = "SALARY_CHANGE"
	HistoryExit         HistoryChangeType = "EXIT"
)

// GradeAffectingChanges answer "what grade was the employee on at date D".
var GradeAffectingChanges = []HistoryChangeType{HistoryPromotion, HistoryGradeChange, HistoryDemotion, HistoryHire}

// EmploymentHistory is the append-only ledger of grade/position/salary
// changes per employee.
type EmploymentHistory struct {
	Record
	EmployeeID    uuid.UUID         `gorm:"type:text;index;not null" json:"employee_id"`
	ChangeType    HistoryChangeType `gorm:"type:varchar(32);not null;index" json:"change_type"`
	EffectiveDate time.Time         `gorm:"index" json:"effective_date"`
	GradeID       *uuid.UUID        `gorm:"type:text" json:"grade_id,omitempty"`
	Position      string            `gorm:"type:varchar(128)" json:"position,omitempty"`
	OldSalaryID   *uuid.UUID        `gorm:"type:text" json:"old_salary_id,omitempty"`
	NewSalaryID   *uuid.UUID        `gorm:"type:text" json:"new_salary_id,omitempty"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`

	Grade *Grade `gorm:"foreignKey:GradeID" json:"grade,omitempty"`
}

func (EmploymentHistory) TableName() string { return "employment_history" }
