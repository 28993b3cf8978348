package compensation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

const testTenant = "t-compensation"

func setup(t *testing.T) (context.Context, *gorm.DB, *Graph) {
	t.Helper()
	db, err := store.OpenTest()
	require.NoError(t, err)
	ctx := store.WithTenant(context.Background(), testTenant)
	return ctx, db, New(db)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type hierarchy struct {
	band   *models.SalaryBand
	junior *models.SalaryLevel
	senior *models.SalaryLevel
	// notches in order: junior 1000, 1200; senior 2000, 2500
	notches []*models.SalaryNotch
}

func seedHierarchy(t *testing.T, db *gorm.DB) *hierarchy {
	t.Helper()
	band := &models.SalaryBand{Record: models.Record{TenantID: testTenant}, Name: "Band A",
		MinAmount: mustDec("1000"), MaxAmount: mustDec("2500")}
	require.NoError(t, db.Create(band).Error)

	junior := &models.SalaryLevel{Record: models.Record{TenantID: testTenant}, BandID: band.ID,
		Name: "Junior", MinAmount: mustDec("1000"), MaxAmount: mustDec("1200")}
	senior := &models.SalaryLevel{Record: models.Record{TenantID: testTenant}, BandID: band.ID,
		Name: "Senior", MinAmount: mustDec("2000"), MaxAmount: mustDec("2500")}
	require.NoError(t, db.Create(junior).Error)
	require.NoError(t, db.Create(senior).Error)

	amounts := []struct {
		level *models.SalaryLevel
		amt   string
	}{
		{junior, "1000"}, {junior, "1200"}, {senior, "2000"}, {senior, "2500"},
	}
	h := &hierarchy{band: band, junior: junior, senior: senior}
	for i, a := range amounts {
		n := &models.SalaryNotch{Record: models.Record{TenantID: testTenant},
			LevelID: a.level.ID, Name: "Notch", NotchOrder: i + 1, BaseAmount: mustDec(a.amt)}
		require.NoError(t, db.Create(n).Error)
		h.notches = append(h.notches, n)
	}
	return h
}

func seedEmployee(t *testing.T, db *gorm.DB) *models.Employee {
	t.Helper()
	emp := &models.Employee{
		Record:         models.Record{TenantID: testTenant},
		EmployeeNumber: "EMP-001",
		FirstName:      "Ama",
		LastName:       "Mensah",
		Status:         models.EmployeeActive,
		IsResident:     true,
		DateOfJoining:  date(2024, time.January, 1),
	}
	require.NoError(t, db.Create(emp).Error)
	return emp
}

func notchAmount(t *testing.T, db *gorm.DB, n *models.SalaryNotch) decimal.Decimal {
	t.Helper()
	var got models.SalaryNotch
	require.NoError(t, db.First(&got, "id = ?", n.ID).Error)
	return got.BaseAmount
}

func TestApplyIncrementPercentCascades(t *testing.T) {
	ctx, db, g := setup(t)
	h := seedHierarchy(t, db)

	touched, err := g.ApplyIncrement(ctx, IncrementInput{
		Scope: models.IncrementAll,
		Mode:  models.IncrementPct,
		Value: mustDec("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, touched)

	assert.Equal(t, "1100", notchAmount(t, db, h.notches[0]).String())
	assert.Equal(t, "2750", notchAmount(t, db, h.notches[3]).String())

	var junior models.SalaryLevel
	require.NoError(t, db.First(&junior, "id = ?", h.junior.ID).Error)
	assert.Equal(t, "1100", junior.MinAmount.String())
	assert.Equal(t, "1320", junior.MaxAmount.String())

	var band models.SalaryBand
	require.NoError(t, db.First(&band, "id = ?", h.band.ID).Error)
	assert.Equal(t, "1100", band.MinAmount.String())
	assert.Equal(t, "2750", band.MaxAmount.String())
}

func TestApplyIncrementLevelScope(t *testing.T) {
	ctx, db, g := setup(t)
	h := seedHierarchy(t, db)

	touched, err := g.ApplyIncrement(ctx, IncrementInput{
		Scope:   models.IncrementLevel,
		LevelID: &h.junior.ID,
		Mode:    models.IncrementFlat,
		Value:   mustDec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, touched)

	assert.Equal(t, "1100", notchAmount(t, db, h.notches[0]).String())
	assert.Equal(t, "1300", notchAmount(t, db, h.notches[1]).String())
	// Senior level untouched.
	assert.Equal(t, "2000", notchAmount(t, db, h.notches[2]).String())
}

func TestApplyIncrementValidation(t *testing.T) {
	ctx, _, g := setup(t)

	_, err := g.ApplyIncrement(ctx, IncrementInput{
		Scope: models.IncrementBand, Mode: models.IncrementPct, Value: mustDec("5")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "band scope")

	_, err = g.ApplyIncrement(ctx, IncrementInput{
		Scope: models.IncrementAll, Mode: "DOUBLE", Value: mustDec("5")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid increment mode")
}

func seedUpgradeRequest(t *testing.T, db *gorm.DB, emp *models.Employee, notch *models.SalaryNotch, effective time.Time) *models.SalaryUpgradeRequest {
	t.Helper()
	req := &models.SalaryUpgradeRequest{
		Record:        models.Record{TenantID: testTenant},
		EmployeeID:    emp.ID,
		NewNotchID:    notch.ID,
		NewPosition:   "Senior Analyst",
		EffectiveFrom: effective,
		Reason:        "annual promotion",
		Status:        models.UpgradePending,
		RequestedBy:   "hr.officer",
	}
	require.NoError(t, db.Create(req).Error)
	return req
}

func TestApproveUpgradeSupersedesSalary(t *testing.T) {
	ctx, db, g := setup(t)
	h := seedHierarchy(t, db)
	emp := seedEmployee(t, db)

	oldSalary := &models.EmployeeSalary{
		Record:        models.Record{TenantID: testTenant},
		EmployeeID:    emp.ID,
		BasicSalary:   mustDec("1000"),
		EffectiveFrom: date(2025, time.January, 1),
		IsCurrent:     true,
	}
	require.NoError(t, db.Create(oldSalary).Error)

	// Active period starts March 1; the upgrade backdates to January.
	cal := &models.PayrollCalendar{Record: models.Record{TenantID: testTenant}, Year: 2026, Month: 3}
	require.NoError(t, db.Create(cal).Error)
	period := &models.PayrollPeriod{
		Record:     models.Record{TenantID: testTenant},
		CalendarID: cal.ID,
		StartDate:  date(2026, time.March, 1),
		EndDate:    date(2026, time.March, 31),
		Status:     models.PeriodOpen,
	}
	require.NoError(t, db.Create(period).Error)

	effective := date(2026, time.January, 1)
	req := seedUpgradeRequest(t, db, emp, h.notches[2], effective)

	approved, err := g.ApproveUpgrade(ctx, req.ID, "payroll.manager")
	require.NoError(t, err)
	assert.Equal(t, models.UpgradeApproved, approved.Status)

	var closed models.EmployeeSalary
	require.NoError(t, db.First(&closed, "id = ?", oldSalary.ID).Error)
	assert.False(t, closed.IsCurrent)
	require.NotNil(t, closed.EffectiveTo)
	assert.True(t, closed.EffectiveTo.Equal(date(2025, time.December, 31)))

	current, err := g.CurrentSalary(ctx, emp.ID, date(2026, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, "2000", current.BasicSalary.String())
	require.NotNil(t, current.SalaryNotchID)
	assert.Equal(t, h.notches[2].ID, *current.SalaryNotchID)

	var history models.EmploymentHistory
	require.NoError(t, db.First(&history, "employee_id = ? AND change_type = ?",
		emp.ID, models.HistoryPromotion).Error)
	assert.Equal(t, "Senior Analyst", history.Position)
	require.NotNil(t, history.NewSalaryID)
	assert.Equal(t, current.ID, *history.NewSalaryID)

	// Backdated before the open period: a draft backpay request covers
	// January through February.
	var bp models.BackpayRequest
	require.NoError(t, db.First(&bp, "employee_id = ?", emp.ID).Error)
	assert.Equal(t, models.BackpayDraft, bp.Status)
	assert.True(t, bp.EffectiveFrom.Equal(effective))
	assert.True(t, bp.EffectiveTo.Equal(date(2026, time.February, 28)))
}

func TestApproveUpgradeWithoutBackdatingSkipsBackpay(t *testing.T) {
	ctx, db, g := setup(t)
	h := seedHierarchy(t, db)
	emp := seedEmployee(t, db)

	cal := &models.PayrollCalendar{Record: models.Record{TenantID: testTenant}, Year: 2026, Month: 3}
	require.NoError(t, db.Create(cal).Error)
	period := &models.PayrollPeriod{
		Record:     models.Record{TenantID: testTenant},
		CalendarID: cal.ID,
		StartDate:  date(2026, time.March, 1),
		EndDate:    date(2026, time.March, 31),
		Status:     models.PeriodOpen,
	}
	require.NoError(t, db.Create(period).Error)

	req := seedUpgradeRequest(t, db, emp, h.notches[2], date(2026, time.March, 1))
	_, err := g.ApproveUpgrade(ctx, req.ID, "payroll.manager")
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.BackpayRequest{}).
		Where("employee_id = ?", emp.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApproveUpgradeRequiresPending(t *testing.T) {
	ctx, db, g := setup(t)
	h := seedHierarchy(t, db)
	emp := seedEmployee(t, db)

	req := seedUpgradeRequest(t, db, emp, h.notches[2], date(2026, time.March, 1))
	require.NoError(t, g.RejectUpgrade(ctx, req.ID, "payroll.manager"))

	_, err := g.ApproveUpgrade(ctx, req.ID, "payroll.manager")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REJECTED")

	err = g.RejectUpgrade(ctx, req.ID, "payroll.manager")
	require.Error(t, err)
}
