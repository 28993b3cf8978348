package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxBracket is one monthly PAYE band. Max is nil for the open-ended
// top band. CumulativeTax is the total tax at the bracket floor; the
// computation walks brackets in order rather than using it, but the
// column is kept for closed-form verification.
type TaxBracket struct {
	Record
	BracketOrder  int              `gorm:"not null;index" json:"bracket_order"`
	MinAmount     decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"min_amount"`
	MaxAmount     *decimal.Decimal `gorm:"type:decimal(20,2)" json:"max_amount,omitempty"`
	RatePct       decimal.Decimal  `gorm:"type:decimal(10,4);not null" json:"rate_pct"`
	CumulativeTax decimal.Decimal  `gorm:"type:decimal(20,2);default:0" json:"cumulative_tax"`
	EffectiveFrom time.Time        `gorm:"index;not null" json:"effective_from"`
	EffectiveTo   *time.Time       `json:"effective_to,omitempty"`
	IsActive      bool             `gorm:"default:true" json:"is_active"`
}

func (TaxBracket) TableName() string { return "tax_brackets" }

// SSNITTier identifies the pension scheme tier.
type SSNITTier string

const (
	Tier1 SSNITTier = "TIER_1"
	Tier2 SSNITTier = "TIER_2"
	Tier3 SSNITTier = "TIER_3"
)

// SSNITRate is the contribution split for one tier.
type SSNITRate struct {
	Record
	Tier            SSNITTier        `gorm:"type:varchar(16);not null;index" json:"tier"`
	EmployerPct     decimal.Decimal  `gorm:"type:decimal(10,4);not null" json:"employer_pct"`
	EmployeePct     decimal.Decimal  `gorm:"type:decimal(10,4);not null" json:"employee_pct"`
	MaxContribution *decimal.Decimal `gorm:"type:decimal(20,2)" json:"max_contribution,omitempty"`
	EffectiveFrom   time.Time        `gorm:"index;not null" json:"effective_from"`
	EffectiveTo     *time.Time       `json:"effective_to,omitempty"`
	IsActive        bool             `gorm:"default:true" json:"is_active"`
}

func (SSNITRate) TableName() string { return "ssnit_rates" }

// ReliefKind selects how a tax relief is computed.
type ReliefKind string

const (
	ReliefFixed      ReliefKind = "FIXED"
	ReliefPercentage ReliefKind = "PERCENTAGE"
)

// TaxRelief reduces taxable income. FIXED contributes Amount;
// PERCENTAGE contributes gross x Percentage/100 capped at MaxAmount.
type TaxRelief struct {
	Record
	Name          string           `gorm:"type:varchar(128);not null" json:"name"`
	Kind          ReliefKind       `gorm:"type:varchar(16);not null" json:"kind"`
	Amount        decimal.Decimal  `gorm:"type:decimal(20,2);default:0" json:"amount"`
	Percentage    decimal.Decimal  `gorm:"type:decimal(10,4);default:0" json:"percentage"`
	MaxAmount     *decimal.Decimal `gorm:"type:decimal(20,2)" json:"max_amount,omitempty"`
	EffectiveFrom time.Time        `gorm:"index;not null" json:"effective_from"`
	EffectiveTo   *time.Time       `json:"effective_to,omitempty"`
	IsActive      bool             `gorm:"default:true" json:"is_active"`
}

func (TaxRelief) TableName() string { return "tax_reliefs" }

// OvertimeBonusTaxConfig carries the parameters of the segregated
// overtime and bonus taxation rules.
type OvertimeBonusTaxConfig struct {
	Record
	// Overtime
	OvertimeAnnualThreshold   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"overtime_annual_threshold"`
	OvertimeBasicPctThreshold decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"overtime_basic_pct_threshold"`
	OvertimeRateBelow         decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"overtime_rate_below"`
	OvertimeRateAbove         decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"overtime_rate_above"`
	// Bonus
	BonusAnnualBasicPctThreshold decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"bonus_annual_basic_pct_threshold"`
	BonusFlatRate                decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"bonus_flat_rate"`
	BonusExcessToPAYE            bool            `gorm:"default:true" json:"bonus_excess_to_paye"`
	// Shared
	NonResidentRate decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"non_resident_rate"`

	EffectiveFrom time.Time  `gorm:"index;not null" json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	IsActive      bool       `gorm:"default:true" json:"is_active"`
}

func (OvertimeBonusTaxConfig) TableName() string { return "overtime_bonus_tax_configs" }

// DefaultOvertimeBonusTaxConfig returns the hard-coded Ghana defaults
// used when no config row is active for the date.
func DefaultOvertimeBonusTaxConfig() OvertimeBonusTaxConfig {
	return OvertimeBonusTaxConfig{
		OvertimeAnnualThreshold:      decimal.NewFromInt(18000),
		OvertimeBasicPctThreshold:    decimal.NewFromInt(50),
		OvertimeRateBelow:            decimal.NewFromInt(5),
		OvertimeRateAbove:            decimal.NewFromInt(10),
		BonusAnnualBasicPctThreshold: decimal.NewFromInt(15),
		BonusFlatRate:                decimal.NewFromInt(5),
		BonusExcessToPAYE:            true,
		NonResidentRate:              decimal.NewFromInt(20),
	}
}
