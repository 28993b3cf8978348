package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComponentType classifies a pay component.
type ComponentType string

const (
	ComponentEarning         ComponentType = "EARNING"
	ComponentDeduction       ComponentType = "DEDUCTION"
	ComponentEmployerContrib ComponentType = "EMPLOYER_CONTRIBUTION"
)

// ComponentCategory groups components for reporting.
type ComponentCategory string

const (
	CategoryBasic     ComponentCategory = "BASIC"
	CategoryAllowance ComponentCategory = "ALLOWANCE"
	CategoryBonus     ComponentCategory = "BONUS"
	CategoryStatutory ComponentCategory = "STATUTORY"
	CategoryOvertime  ComponentCategory = "OVERTIME"
	CategoryShift     ComponentCategory = "SHIFT"
	CategoryLoan      ComponentCategory = "LOAN"
	CategoryFund      ComponentCategory = "FUND"
	CategoryOther     ComponentCategory = "OTHER"
)

// CalcKind determines how a component amount is derived.
type CalcKind string

const (
	CalcFixed      CalcKind = "FIXED"
	CalcPctOfBasic CalcKind = "PCT_OF_BASIC"
	CalcPctOfGross CalcKind = "PCT_OF_GROSS"
	CalcFormula    CalcKind = "FORMULA"
	CalcLookup     CalcKind = "LOOKUP"
)

// Reserved component codes. BASIC must exist exactly once per tenant;
// the statutory codes exist and are non-deletable.
const (
	CodeBasic       = "BASIC"
	CodePAYE        = "PAYE"
	CodeSSNITEmp    = "SSNIT_EMP"
	CodeOvertimeTax = "OVERTIME_TAX"
	CodeBonusTax    = "BONUS_TAX"
	CodeTier2Emp    = "TIER2_EMP"
)

// StatutoryCodes are the non-deletable component codes seeded per tenant.
var StatutoryCodes = []string{CodePAYE, CodeSSNITEmp, CodeOvertimeTax, CodeBonusTax, CodeTier2Emp}

// PayComponent defines one earning, deduction or employer contribution.
// Unique by Code within a tenant.
type PayComponent struct {
	Record
	Code        string            `gorm:"type:varchar(32);index" json:"code"`
	Name        string            `gorm:"type:varchar(128);not null" json:"name"`
	Type        ComponentType     `gorm:"type:varchar(32);not null" json:"type"`
	Category    ComponentCategory `gorm:"type:varchar(32);not null;default:'OTHER'" json:"category"`
	CalcKind    CalcKind          `gorm:"type:varchar(32);not null;default:'FIXED'" json:"calc_kind"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,2);default:0" json:"amount"`
	Percentage  decimal.Decimal   `gorm:"type:decimal(10,4);default:0" json:"percentage"`
	Formula     string            `gorm:"type:text" json:"formula,omitempty"`

	IsTaxable           bool `gorm:"default:true" json:"is_taxable"`
	ReducesTaxable      bool `gorm:"default:false" json:"reduces_taxable"`
	IsOvertime          bool `gorm:"default:false" json:"is_overtime"`
	IsBonus             bool `gorm:"default:false" json:"is_bonus"`
	AffectsSSNIT        bool `gorm:"default:false" json:"affects_ssnit"`
	IsStatutory         bool `gorm:"default:false" json:"is_statutory"`
	IsRecurring         bool `gorm:"default:true" json:"is_recurring"`
	IsProrated          bool `gorm:"default:true" json:"is_prorated"`
	IsArrearsApplicable bool `gorm:"default:true" json:"is_arrears_applicable"`
	ShowOnPayslip       bool `gorm:"default:true" json:"show_on_payslip"`
	DisplayOrder        int  `gorm:"default:0" json:"display_order"`
}

func (PayComponent) TableName() string { return "pay_components" }

// Validate enforces component-level invariants.
func (c *PayComponent) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("component code is required")
	}
	if c.Name == "" {
		return fmt.Errorf("component name is required")
	}
	if c.IsBonus && c.IsOvertime {
		return fmt.Errorf("component %s cannot be both bonus and overtime", c.Code)
	}
	switch c.Type {
	case ComponentEarning, ComponentDeduction, ComponentEmployerContrib:
	default:
		return fmt.Errorf("invalid component type %q", c.Type)
	}
	return nil
}

// IsReserved reports whether the component is BASIC or a statutory code.
func (c *PayComponent) IsReserved() bool {
	if c.Code == CodeBasic {
		return true
	}
	for _, code := range StatutoryCodes {
		if c.Code == code {
			return true
		}
	}
	return false
}
