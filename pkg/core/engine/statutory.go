package engine

import (
	"github.com/shopspring/decimal"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
)

var hundred = decimal.NewFromInt(100)

// OvertimeTax applies the segregated overtime taxation rule. The
// second return reports whether the employee qualifies for flat-rate
// treatment: when false the overtime amount must be folded into PAYE
// taxable income instead.
func OvertimeTax(overtime, basic, annualSalary decimal.Decimal, isResident bool, cfg models.OvertimeBonusTaxConfig) (decimal.Decimal, bool) {
	if overtime.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, true
	}
	if !isResident {
		return overtime.Mul(cfg.NonResidentRate).Div(hundred).Round(2), true
	}
	if annualSalary.GreaterThan(cfg.OvertimeAnnualThreshold) {
		return decimal.Zero, false
	}
	threshold := basic.Mul(cfg.OvertimeBasicPctThreshold).Div(hundred)
	if overtime.LessThanOrEqual(threshold) {
		return overtime.Mul(cfg.OvertimeRateBelow).Div(hundred).Round(2), true
	}
	below := threshold.Mul(cfg.OvertimeRateBelow).Div(hundred)
	above := overtime.Sub(threshold).Mul(cfg.OvertimeRateAbove).Div(hundred)
	return below.Add(above).Round(2), true
}

// BonusTax applies the segregated bonus taxation rule. The second
// return is the bonus excess to be added to PAYE taxable income.
func BonusTax(bonus, annualBasic decimal.Decimal, isResident bool, cfg models.OvertimeBonusTaxConfig) (decimal.Decimal, decimal.Decimal) {
	if bonus.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero
	}
	if !isResident {
		return bonus.Mul(cfg.NonResidentRate).Div(hundred).Round(2), decimal.Zero
	}
	threshold := annualBasic.Mul(cfg.BonusAnnualBasicPctThreshold).Div(hundred)
	if bonus.LessThanOrEqual(threshold) {
		return bonus.Mul(cfg.BonusFlatRate).Div(hundred).Round(2), decimal.Zero
	}
	if cfg.BonusExcessToPAYE {
		return threshold.Mul(cfg.BonusFlatRate).Div(hundred).Round(2), bonus.Sub(threshold)
	}
	return bonus.Mul(cfg.BonusFlatRate).Div(hundred).Round(2), decimal.Zero
}

// PAYE walks the brackets in order, consuming each bracket's capacity
// from the remaining taxable income. Brackets must be ordered; the top
// bracket has no maximum.
func PAYE(taxable decimal.Decimal, brackets []models.TaxBracket) decimal.Decimal {
	if taxable.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	tax := decimal.Zero
	remaining := taxable
	for _, b := range brackets {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		portion := remaining
		if b.MaxAmount != nil {
			capacity := b.MaxAmount.Sub(b.MinAmount)
			if portion.GreaterThan(capacity) {
				portion = capacity
			}
		}
		tax = tax.Add(portion.Mul(b.RatePct).Div(hundred))
		remaining = remaining.Sub(portion)
	}
	return tax.Round(2)
}

// Relief totals the active tax reliefs against the gross.
func Relief(gross decimal.Decimal, reliefs []models.TaxRelief) decimal.Decimal {
	total := decimal.Zero
	for _, r := range reliefs {
		switch r.Kind {
		case models.ReliefFixed:
			total = total.Add(r.Amount)
		case models.ReliefPercentage:
			v := gross.Mul(r.Percentage).Div(hundred)
			if r.MaxAmount != nil && v.GreaterThan(*r.MaxAmount) {
				v = *r.MaxAmount
			}
			total = total.Add(v)
		}
	}
	return total
}

// SSNIT contributions derived from the (prorated) basic.
type SSNIT struct {
	Employee      decimal.Decimal
	EmployerTier1 decimal.Decimal
	Tier2Employer decimal.Decimal
}

// ComputeSSNIT derives tier contributions from basic using the active
// rate set. The employee share respects the tier 1 cap when present.
func ComputeSSNIT(basic decimal.Decimal, rates map[models.SSNITTier]models.SSNITRate) SSNIT {
	var out SSNIT
	if t1, ok := rates[models.Tier1]; ok {
		out.Employee = basic.Mul(t1.EmployeePct).Div(hundred)
		if t1.MaxContribution != nil && out.Employee.GreaterThan(*t1.MaxContribution) {
			out.Employee = *t1.MaxContribution
		}
		out.Employee = out.Employee.Round(2)
		out.EmployerTier1 = basic.Mul(t1.EmployerPct).Div(hundred).Round(2)
	}
	if t2, ok := rates[models.Tier2]; ok {
		out.Tier2Employer = basic.Mul(t2.EmployerPct).Div(hundred).Round(2)
	}
	return out
}
