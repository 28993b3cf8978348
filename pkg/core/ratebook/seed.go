package ratebook

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("ratebook seed: bad decimal %q", s))
	}
	return d
}

// SeedGhanaDefaults writes the Ghana 2026 monthly PAYE bands, SSNIT
// tier rates and default overtime/bonus configuration for the context
// tenant. Idempotent: it skips seeding when active brackets already
// exist for the effective date.
func SeedGhanaDefaults(ctx context.Context, db *gorm.DB, effectiveFrom time.Time) error {
	tenant := store.TenantID(ctx)

	var count int64
	if err := store.Scoped(ctx, db).Model(&models.TaxBracket{}).
		Where("effective_from = ?", effectiveFrom).Count(&count).Error; err != nil {
		return fmt.Errorf("check existing brackets: %w", err)
	}
	if count > 0 {
		return nil
	}

	type band struct {
		min, max, rate, cumulative string
	}
	// Monthly bands. Cumulative tax is the total tax at the bracket
	// floor, retained for closed-form verification.
	bands := []band{
		{"0", "490", "0", "0"},
		{"490", "600", "5", "0"},
		{"600", "730", "10", "5.50"},
		{"730", "3896.67", "17.5", "18.50"},
		{"3896.67", "19896.67", "25", "572.67"},
		{"19896.67", "50416.67", "30", "4572.67"},
		{"50416.67", "", "35", "13728.67"},
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, bd := range bands {
			bracket := models.TaxBracket{
				Record:        models.Record{TenantID: tenant},
				BracketOrder:  i + 1,
				MinAmount:     dec(bd.min),
				RatePct:       dec(bd.rate),
				CumulativeTax: dec(bd.cumulative),
				EffectiveFrom: effectiveFrom,
				IsActive:      true,
			}
			if bd.max != "" {
				max := dec(bd.max)
				bracket.MaxAmount = &max
			}
			if err := tx.Create(&bracket).Error; err != nil {
				return fmt.Errorf("seed bracket %d: %w", i+1, err)
			}
		}

		// Tier 1 is the mandatory SSNIT scheme; Tier 2 the occupational
		// supplement funded by the employer; Tier 3 voluntary.
		rates := []models.SSNITRate{
			{Record: models.Record{TenantID: tenant}, Tier: models.Tier1, EmployeePct: dec("5.5"), EmployerPct: dec("13"), EffectiveFrom: effectiveFrom, IsActive: true},
			{Record: models.Record{TenantID: tenant}, Tier: models.Tier2, EmployeePct: dec("0"), EmployerPct: dec("5"), EffectiveFrom: effectiveFrom, IsActive: true},
			{Record: models.Record{TenantID: tenant}, Tier: models.Tier3, EmployeePct: dec("5"), EmployerPct: dec("5"), EffectiveFrom: effectiveFrom, IsActive: true},
		}
		for _, r := range rates {
			rate := r
			if err := tx.Create(&rate).Error; err != nil {
				return fmt.Errorf("seed ssnit %s: %w", r.Tier, err)
			}
		}

		cfg := models.DefaultOvertimeBonusTaxConfig()
		cfg.TenantID = tenant
		cfg.EffectiveFrom = effectiveFrom
		cfg.IsActive = true
		if err := tx.Create(&cfg).Error; err != nil {
			return fmt.Errorf("seed overtime/bonus config: %w", err)
		}
		return nil
	})
}

// SeedStatutoryComponents creates the reserved pay components (BASIC
// plus the statutory deduction codes) for the context tenant when they
// do not exist yet.
func SeedStatutoryComponents(ctx context.Context, db *gorm.DB) error {
	tenant := store.TenantID(ctx)

	seed := []models.PayComponent{
		{Code: models.CodeBasic, Name: "Basic Salary", Type: models.ComponentEarning, Category: models.CategoryBasic, IsTaxable: true, IsProrated: true, IsRecurring: true, IsArrearsApplicable: true, AffectsSSNIT: true, DisplayOrder: 1},
		{Code: models.CodeSSNITEmp, Name: "SSNIT Employee", Type: models.ComponentDeduction, Category: models.CategoryStatutory, IsStatutory: true, IsTaxable: false, IsProrated: false, IsArrearsApplicable: false, DisplayOrder: 100},
		{Code: models.CodePAYE, Name: "PAYE", Type: models.ComponentDeduction, Category: models.CategoryStatutory, IsStatutory: true, IsTaxable: false, IsProrated: false, IsArrearsApplicable: false, DisplayOrder: 101},
		{Code: models.CodeOvertimeTax, Name: "Overtime Tax", Type: models.ComponentDeduction, Category: models.CategoryStatutory, IsStatutory: true, IsTaxable: false, IsProrated: false, IsArrearsApplicable: false, DisplayOrder: 102},
		{Code: models.CodeBonusTax, Name: "Bonus Tax", Type: models.ComponentDeduction, Category: models.CategoryStatutory, IsStatutory: true, IsTaxable: false, IsProrated: false, IsArrearsApplicable: false, DisplayOrder: 103},
		{Code: models.CodeTier2Emp, Name: "Tier 2 Employer", Type: models.ComponentEmployerContrib, Category: models.CategoryStatutory, IsStatutory: true, IsTaxable: false, IsProrated: false, IsArrearsApplicable: false, ShowOnPayslip: false, DisplayOrder: 104},
	}
	for _, c := range seed {
		comp := c
		comp.TenantID = tenant
		var count int64
		if err := store.Scoped(ctx, db).Model(&models.PayComponent{}).
			Where("code = ?", comp.Code).Count(&count).Error; err != nil {
			return fmt.Errorf("check component %s: %w", comp.Code, err)
		}
		if count > 0 {
			continue
		}
		if err := db.WithContext(ctx).Create(&comp).Error; err != nil {
			return fmt.Errorf("seed component %s: %w", comp.Code, err)
		}
	}
	return nil
}
