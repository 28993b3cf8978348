package ratebook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

const testTenant = "t-ratebook"

func setup(t *testing.T) (context.Context, *gorm.DB, *Book) {
	t.Helper()
	db, err := store.OpenTest()
	require.NoError(t, err)
	ctx := store.WithTenant(context.Background(), testTenant)
	return ctx, db, New(db)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSeedGhanaDefaultsIdempotent(t *testing.T) {
	ctx, db, _ := setup(t)
	from := date(2026, time.January, 1)

	require.NoError(t, SeedGhanaDefaults(ctx, db, from))
	require.NoError(t, SeedGhanaDefaults(ctx, db, from))

	var brackets, rates, configs int64
	require.NoError(t, db.Model(&models.TaxBracket{}).Where("tenant_id = ?", testTenant).Count(&brackets).Error)
	require.NoError(t, db.Model(&models.SSNITRate{}).Where("tenant_id = ?", testTenant).Count(&rates).Error)
	require.NoError(t, db.Model(&models.OvertimeBonusTaxConfig{}).Where("tenant_id = ?", testTenant).Count(&configs).Error)
	assert.EqualValues(t, 7, brackets)
	assert.EqualValues(t, 3, rates)
	assert.EqualValues(t, 1, configs)
}

func TestBracketsOrderedWithOpenTopBand(t *testing.T) {
	ctx, db, book := setup(t)
	require.NoError(t, SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))

	brackets, err := book.Brackets(ctx, date(2026, time.March, 15))
	require.NoError(t, err)
	require.Len(t, brackets, 7)

	assert.True(t, brackets[0].MinAmount.IsZero())
	assert.True(t, brackets[0].RatePct.IsZero())
	for i := 1; i < len(brackets); i++ {
		assert.Greater(t, brackets[i].BracketOrder, brackets[i-1].BracketOrder)
	}
	top := brackets[6]
	assert.Nil(t, top.MaxAmount)
	assert.Equal(t, "35", top.RatePct.String())
}

func TestSSNITTierSplit(t *testing.T) {
	ctx, db, book := setup(t)
	require.NoError(t, SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))

	rates, err := book.SSNIT(ctx, date(2026, time.June, 1))
	require.NoError(t, err)
	require.Len(t, rates, 3)
	assert.Equal(t, "5.5", rates[models.Tier1].EmployeePct.String())
	assert.Equal(t, "13", rates[models.Tier1].EmployerPct.String())
	assert.True(t, rates[models.Tier2].EmployeePct.IsZero())
	assert.Equal(t, "5", rates[models.Tier2].EmployerPct.String())
}

func TestNoActiveRates(t *testing.T) {
	ctx, db, book := setup(t)
	require.NoError(t, SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))

	_, err := book.Brackets(ctx, date(2025, time.June, 1))
	require.Error(t, err)
	var noRates *ErrNoActiveRates
	require.True(t, errors.As(err, &noRates))
	assert.Equal(t, "PAYE bracket", noRates.Kind)
}

func TestCacheSurvivesWritesUntilInvalidate(t *testing.T) {
	ctx, db, book := setup(t)
	require.NoError(t, SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))
	asOf := date(2026, time.February, 1)

	_, err := book.Brackets(ctx, asOf)
	require.NoError(t, err)

	// Deactivate everything behind the book's back; the cached rows
	// must keep serving until an explicit Invalidate.
	require.NoError(t, db.Model(&models.TaxBracket{}).
		Where("tenant_id = ?", testTenant).Update("is_active", false).Error)

	cached, err := book.Brackets(ctx, asOf)
	require.NoError(t, err)
	assert.Len(t, cached, 7)

	book.Invalidate()
	_, err = book.Brackets(ctx, asOf)
	var noRates *ErrNoActiveRates
	require.True(t, errors.As(err, &noRates))
}

func TestOvertimeBonusConfigFallsBackToDefaults(t *testing.T) {
	ctx, db, book := setup(t)
	require.NoError(t, SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))

	// Before any config row is active the hard-coded defaults apply.
	cfg, err := book.OvertimeBonusConfig(ctx, date(2025, time.June, 1))
	require.NoError(t, err)
	defaults := models.DefaultOvertimeBonusTaxConfig()
	assert.True(t, cfg.OvertimeAnnualThreshold.Equal(defaults.OvertimeAnnualThreshold))
	assert.True(t, cfg.BonusFlatRate.Equal(defaults.BonusFlatRate))
	assert.True(t, cfg.NonResidentRate.Equal(defaults.NonResidentRate))
}

func TestSeedStatutoryComponents(t *testing.T) {
	ctx, db, _ := setup(t)

	require.NoError(t, SeedStatutoryComponents(ctx, db))
	require.NoError(t, SeedStatutoryComponents(ctx, db))

	var comps []models.PayComponent
	require.NoError(t, db.Where("tenant_id = ?", testTenant).Find(&comps).Error)
	require.Len(t, comps, 6)

	byCode := make(map[string]models.PayComponent, len(comps))
	for _, c := range comps {
		byCode[c.Code] = c
	}
	assert.Equal(t, models.ComponentEarning, byCode[models.CodeBasic].Type)
	assert.True(t, byCode[models.CodeBasic].AffectsSSNIT)
	assert.True(t, byCode[models.CodePAYE].IsStatutory)
	assert.Equal(t, models.ComponentDeduction, byCode[models.CodeSSNITEmp].Type)
	assert.False(t, byCode[models.CodeTier2Emp].ShowOnPayslip)
}

func TestTenantIsolation(t *testing.T) {
	ctx, db, book := setup(t)
	require.NoError(t, SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))

	other := store.WithTenant(context.Background(), "t-other")
	_, err := book.Brackets(other, date(2026, time.June, 1))
	var noRates *ErrNoActiveRates
	require.True(t, errors.As(err, &noRates))
}
