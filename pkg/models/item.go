package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemStatus is the state of one employee's row within a run.
type ItemStatus string

const (
	ItemPending  ItemStatus = "PENDING"
	ItemComputed ItemStatus = "COMPUTED"
	ItemApproved ItemStatus = "APPROVED"
	ItemOnHold   ItemStatus = "ON_HOLD"
	ItemPaid     ItemStatus = "PAID"
	ItemError    ItemStatus = "ERROR"
)

// PayrollItem is the full computed snapshot for one (run, employee).
// The bank fields are copied from the primary active account at
// compute time so later account edits do not alter a paid run.
type PayrollItem struct {
	Record
	PayrollRunID uuid.UUID `gorm:"type:text;index:idx_item_run_emp,unique;not null" json:"payroll_run_id"`
	EmployeeID   uuid.UUID `gorm:"type:text;index:idx_item_run_emp,unique;not null" json:"employee_id"`

	BasicSalary     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"basic_salary"`
	GrossEarnings   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"gross_earnings"`
	TotalDeductions decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_deductions"`
	NetSalary       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"net_salary"`
	TaxableIncome   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"taxable_income"`
	PAYE            decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"paye"`
	OvertimeTax     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"overtime_tax"`
	BonusTax        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"bonus_tax"`
	TotalOvertime   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_overtime"`
	TotalBonus      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_bonus"`
	SSNITEmployee   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"ssnit_employee"`
	SSNITEmployer   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"ssnit_employer"`
	Tier2Employer   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"tier2_employer"`
	EmployerCost    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"employer_cost"`

	ProrationFactor decimal.Decimal `gorm:"type:decimal(10,4);default:1" json:"proration_factor"`
	DaysPayable     int             `gorm:"default:0" json:"days_payable"`
	TotalDays       int             `gorm:"default:0" json:"total_days"`

	BankName      string `gorm:"type:varchar(128)" json:"bank_name,omitempty"`
	BankBranch    string `gorm:"type:varchar(128)" json:"bank_branch,omitempty"`
	AccountName   string `gorm:"type:varchar(128)" json:"account_name,omitempty"`
	AccountNumber string `gorm:"type:varchar(64)" json:"account_number,omitempty"`

	Status           ItemStatus `gorm:"type:varchar(32);default:'PENDING';index" json:"status"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	PaymentReference string     `gorm:"type:varchar(64)" json:"payment_reference,omitempty"`

	Employee *Employee           `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	Details  []PayrollItemDetail `gorm:"foreignKey:PayrollItemID" json:"details,omitempty"`
}

func (PayrollItem) TableName() string { return "payroll_items" }

// PayrollItemDetail links one component amount inside an item. Arrear
// rows injected by an applied backpay request carry is_arrear plus the
// originating request.
type PayrollItemDetail struct {
	Record
	PayrollItemID  uuid.UUID       `gorm:"type:text;index;not null" json:"payroll_item_id"`
	PayComponentID uuid.UUID       `gorm:"type:text;index;not null" json:"pay_component_id"`
	ComponentCode  string          `gorm:"type:varchar(32);index" json:"component_code"`
	ComponentType  ComponentType   `gorm:"type:varchar(32)" json:"component_type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`

	IsArrear         bool       `gorm:"default:false;index" json:"is_arrear"`
	ArrearMonths     *int       `json:"arrear_months,omitempty"`
	BackpayRequestID *uuid.UUID `gorm:"type:text;index" json:"backpay_request_id,omitempty"`

	PayComponent *PayComponent `gorm:"foreignKey:PayComponentID" json:"pay_component,omitempty"`
}

func (PayrollItemDetail) TableName() string { return "payroll_item_details" }
