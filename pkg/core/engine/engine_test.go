package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/ratebook"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

const testTenant = "t-engine"

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

func assertAmount(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(mustDec(want)), "%s: got %s want %s", msg, got, want)
}

func setup(t *testing.T) (context.Context, *gorm.DB, *Computer) {
	t.Helper()
	db, err := store.OpenTest()
	require.NoError(t, err)
	ctx := store.WithTenant(context.Background(), testTenant)
	require.NoError(t, ratebook.SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))
	require.NoError(t, ratebook.SeedStatutoryComponents(ctx, db))
	return ctx, db, New(db)
}

func seedPeriod(t *testing.T, db *gorm.DB, y int, m time.Month) *models.PayrollPeriod {
	t.Helper()
	cal := &models.PayrollCalendar{Record: models.Record{TenantID: testTenant}, Year: y, Month: int(m)}
	require.NoError(t, db.Create(cal).Error)
	start := date(y, m, 1)
	p := &models.PayrollPeriod{
		Record:     models.Record{TenantID: testTenant},
		CalendarID: cal.ID,
		StartDate:  start,
		EndDate:    start.AddDate(0, 1, -1),
		Status:     models.PeriodOpen,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedEmployee(t *testing.T, db *gorm.DB, number string, joined time.Time) *models.Employee {
	t.Helper()
	emp := &models.Employee{
		Record:         models.Record{TenantID: testTenant},
		EmployeeNumber: number,
		FirstName:      "Kofi",
		LastName:       "Boateng",
		Status:         models.EmployeeActive,
		IsResident:     true,
		DateOfJoining:  joined,
	}
	require.NoError(t, db.Create(emp).Error)
	return emp
}

func seedSalary(t *testing.T, db *gorm.DB, emp *models.Employee, basic string, from time.Time) *models.EmployeeSalary {
	t.Helper()
	s := &models.EmployeeSalary{
		Record:        models.Record{TenantID: testTenant},
		EmployeeID:    emp.ID,
		BasicSalary:   mustDec(basic),
		EffectiveFrom: from,
		IsCurrent:     true,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func seedEarning(t *testing.T, db *gorm.DB, code string, prorated bool) *models.PayComponent {
	t.Helper()
	c := &models.PayComponent{
		Record:      models.Record{TenantID: testTenant},
		Code:        code,
		Name:        code,
		Type:        models.ComponentEarning,
		Category:    models.CategoryAllowance,
		CalcKind:    models.CalcFixed,
		IsTaxable:   true,
		IsRecurring: true,
		IsProrated:  prorated,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func attachSalaryComponent(t *testing.T, db *gorm.DB, salary *models.EmployeeSalary, comp *models.PayComponent, amount string) {
	t.Helper()
	sc := &models.EmployeeSalaryComponent{
		Record:           models.Record{TenantID: testTenant},
		EmployeeSalaryID: salary.ID,
		PayComponentID:   comp.ID,
		Amount:           mustDec(amount),
		IsActive:         true,
	}
	require.NoError(t, db.Create(sc).Error)
}

func TestComputeSimpleMonthly(t *testing.T) {
	ctx, db, c := setup(t)
	jan := seedPeriod(t, db, 2026, time.January)
	emp := seedEmployee(t, db, "EMP-100", date(2024, time.March, 1))
	salary := seedSalary(t, db, emp, "5000", date(2025, time.January, 1))

	housing := seedEarning(t, db, "HOUSING", true)
	transport := seedEarning(t, db, "TRANSPORT", true)
	attachSalaryComponent(t, db, salary, housing, "1000")
	attachSalaryComponent(t, db, salary, transport, "200")

	risk := seedEarning(t, db, "RISK_ALL", true)
	tx := &models.EmployeeTransaction{
		Record:           models.Record{TenantID: testTenant},
		TargetType:       models.TargetIndividual,
		EmployeeID:       &emp.ID,
		PayComponentID:   risk.ID,
		OverrideType:     models.OverridePct,
		Percentage:       mustDec("10"),
		EffectiveFrom:    date(2026, time.January, 1),
		IsRecurring:      true,
		Status:           models.TransactionActive,
		Version:          1,
		IsCurrentVersion: true,
	}
	require.NoError(t, db.Create(tx).Error)

	res, err := c.ComputeEmployee(ctx, emp, jan)
	require.NoError(t, err)

	assertAmount(t, "6700", res.GrossEarnings, "gross")
	assertAmount(t, "275", res.SSNITEmployee, "ssnit employee")
	assertAmount(t, "650", res.SSNITEmployer, "ssnit employer tier 1")
	assertAmount(t, "250", res.Tier2Employer, "tier 2 employer")
	assertAmount(t, "6425", res.TaxableIncome, "taxable income")
	assertAmount(t, "1015.13", res.PAYE, "paye")
	assertAmount(t, "1290.13", res.TotalDeductions, "total deductions")
	assertAmount(t, "5409.87", res.NetSalary, "net")
	assertAmount(t, "7600", res.EmployerCost, "employer cost")
	assertAmount(t, "1", res.ProrationFactor, "factor")

	// Earning detail rows sum to gross.
	earnings := decimal.Zero
	for _, d := range res.Details {
		if d.Component.Type == models.ComponentEarning {
			earnings = earnings.Add(d.Amount)
		}
	}
	assertAmount(t, "6700", earnings, "earning details")
}

func TestComputeMidPeriodJoiner(t *testing.T) {
	ctx, db, c := setup(t)
	jan := seedPeriod(t, db, 2026, time.January)
	emp := seedEmployee(t, db, "EMP-101", date(2026, time.January, 16))
	seedSalary(t, db, emp, "3000", date(2026, time.January, 16))

	res, err := c.ComputeEmployee(ctx, emp, jan)
	require.NoError(t, err)

	assertAmount(t, "0.5161", res.ProrationFactor, "factor")
	assert.Equal(t, 16, res.DaysPayable)
	assert.Equal(t, 31, res.TotalDays)
	assertAmount(t, "1548.39", res.GrossEarnings, "prorated basic")
	assertAmount(t, "85.16", res.SSNITEmployee, "ssnit on prorated basic")
	assertAmount(t, "1463.23", res.TaxableIncome, "taxable income")
}

func TestComputeNoSalaryIsError(t *testing.T) {
	ctx, db, c := setup(t)
	jan := seedPeriod(t, db, 2026, time.January)
	emp := seedEmployee(t, db, "EMP-102", date(2024, time.March, 1))

	_, err := c.ComputeEmployee(ctx, emp, jan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no salary record")
}

func TestOvertimeTaxQualifying(t *testing.T) {
	cfg := models.DefaultOvertimeBonusTaxConfig()
	tax, qualifies := OvertimeTax(mustDec("800"), mustDec("1000"), mustDec("12000"), true, cfg)
	assert.True(t, qualifies)
	assertAmount(t, "55", tax, "overtime tax")
}

func TestOvertimeTaxNonQualifying(t *testing.T) {
	cfg := models.DefaultOvertimeBonusTaxConfig()
	tax, qualifies := OvertimeTax(mustDec("500"), mustDec("2000"), mustDec("24000"), true, cfg)
	assert.False(t, qualifies)
	assertAmount(t, "0", tax, "overtime tax")
}

func TestOvertimeTaxNonResident(t *testing.T) {
	cfg := models.DefaultOvertimeBonusTaxConfig()
	tax, qualifies := OvertimeTax(mustDec("800"), mustDec("1000"), mustDec("12000"), false, cfg)
	assert.True(t, qualifies)
	assertAmount(t, "160", tax, "overtime tax at non-resident rate")
}

func TestBonusTaxSplit(t *testing.T) {
	cfg := models.DefaultOvertimeBonusTaxConfig()
	tax, excess := BonusTax(mustDec("12000"), mustDec("60000"), true, cfg)
	assertAmount(t, "450", tax, "flat bonus tax")
	assertAmount(t, "3000", excess, "excess to paye")
}

func TestBonusTaxWithinThreshold(t *testing.T) {
	cfg := models.DefaultOvertimeBonusTaxConfig()
	tax, excess := BonusTax(mustDec("5000"), mustDec("60000"), true, cfg)
	assertAmount(t, "250", tax, "flat bonus tax")
	assertAmount(t, "0", excess, "no excess")
}

func TestPAYEBracketWalk(t *testing.T) {
	ctx, db, _ := setup(t)
	book := ratebook.New(db)
	brackets, err := book.Brackets(ctx, date(2026, time.June, 15))
	require.NoError(t, err)
	require.Len(t, brackets, 7)

	cases := []struct {
		income, want string
	}{
		{"0", "0"},
		{"490", "0"},
		{"600", "5.50"},
		{"730", "18.50"},
		{"6425", "1015.13"},
		{"3896.67", "572.67"},
	}
	for _, tc := range cases {
		got := PAYE(mustDec(tc.income), brackets)
		assertAmount(t, tc.want, got, "PAYE("+tc.income+")")
	}
}

func TestPAYEMonotonic(t *testing.T) {
	ctx, db, _ := setup(t)
	book := ratebook.New(db)
	brackets, err := book.Brackets(ctx, date(2026, time.June, 15))
	require.NoError(t, err)

	prev := decimal.Zero
	for x := decimal.NewFromInt(50); x.LessThan(decimal.NewFromInt(60000)); x = x.Add(decimal.NewFromFloat(137.5)) {
		got := PAYE(x, brackets)
		assert.True(t, got.GreaterThanOrEqual(prev), "PAYE(%s)=%s dipped below %s", x, got, prev)
		prev = got
	}
}

func TestReliefCapping(t *testing.T) {
	capAt := mustDec("100")
	reliefs := []models.TaxRelief{
		{Kind: models.ReliefFixed, Amount: mustDec("50")},
		{Kind: models.ReliefPercentage, Percentage: mustDec("5"), MaxAmount: &capAt},
	}
	got := Relief(mustDec("10000"), reliefs)
	// 50 fixed + min(500, 100) capped.
	assertAmount(t, "150", got, "relief")
}

func TestNetConservation(t *testing.T) {
	ctx, db, c := setup(t)
	jan := seedPeriod(t, db, 2026, time.January)
	emp := seedEmployee(t, db, "EMP-103", date(2024, time.March, 1))
	salary := seedSalary(t, db, emp, "8000", date(2025, time.January, 1))
	housing := seedEarning(t, db, "HOUSING", true)
	attachSalaryComponent(t, db, salary, housing, "1500")

	res, err := c.ComputeEmployee(ctx, emp, jan)
	require.NoError(t, err)
	diff := res.GrossEarnings.Sub(res.TotalDeductions).Sub(res.NetSalary).Abs()
	assert.True(t, diff.LessThanOrEqual(mustDec("0.02")), "net conservation off by %s", diff)
}
