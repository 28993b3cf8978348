package backpay

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/ratebook"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

const testTenant = "t-backpay"

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

func setup(t *testing.T) (context.Context, *gorm.DB, *Engine) {
	t.Helper()
	db, err := store.OpenTest()
	require.NoError(t, err)
	ctx := store.WithTenant(context.Background(), testTenant)
	require.NoError(t, ratebook.SeedGhanaDefaults(ctx, db, date(2026, time.January, 1)))
	require.NoError(t, ratebook.SeedStatutoryComponents(ctx, db))
	return ctx, db, New(db)
}

func componentByCode(t *testing.T, db *gorm.DB, code string) *models.PayComponent {
	t.Helper()
	var c models.PayComponent
	require.NoError(t, db.First(&c, "tenant_id = ? AND code = ?", testTenant, code).Error)
	return &c
}

func seedSettledPeriod(t *testing.T, db *gorm.DB, y int, m time.Month, status models.PeriodStatus) *models.PayrollPeriod {
	t.Helper()
	cal := &models.PayrollCalendar{Record: models.Record{TenantID: testTenant}, Year: y, Month: int(m)}
	require.NoError(t, db.Create(cal).Error)
	start := date(y, m, 1)
	p := &models.PayrollPeriod{
		Record:     models.Record{TenantID: testTenant},
		CalendarID: cal.ID,
		StartDate:  start,
		EndDate:    start.AddDate(0, 1, -1),
		Status:     status,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedEmployee(t *testing.T, db *gorm.DB) *models.Employee {
	t.Helper()
	emp := &models.Employee{
		Record:         models.Record{TenantID: testTenant},
		EmployeeNumber: "EMP-200",
		FirstName:      "Akosua",
		LastName:       "Darko",
		Status:         models.EmployeeActive,
		IsResident:     true,
		DateOfJoining:  date(2024, time.January, 1),
	}
	require.NoError(t, db.Create(emp).Error)
	return emp
}

// seedPaidMonth writes a PAID run with one item paying the old basic,
// its SSNIT and PAYE, for one settled period.
func seedPaidMonth(t *testing.T, db *gorm.DB, emp *models.Employee, period *models.PayrollPeriod, basic, ssnit, paye string) *models.PayrollItem {
	t.Helper()
	run := &models.PayrollRun{
		Record:          models.Record{TenantID: testTenant},
		PayrollPeriodID: period.ID,
		RunNumber:       models.FormatRunNumber(period.StartDate.Year(), int(period.StartDate.Month()), 1),
		Status:          models.RunPaid,
	}
	require.NoError(t, db.Create(run).Error)

	gross := mustDec(basic)
	deductions := mustDec(ssnit).Add(mustDec(paye))
	item := &models.PayrollItem{
		Record:          models.Record{TenantID: testTenant},
		PayrollRunID:    run.ID,
		EmployeeID:      emp.ID,
		BasicSalary:     gross,
		GrossEarnings:   gross,
		TotalDeductions: deductions,
		NetSalary:       gross.Sub(deductions),
		SSNITEmployee:   mustDec(ssnit),
		PAYE:            mustDec(paye),
		ProrationFactor: decimal.NewFromInt(1),
		DaysPayable:     period.TotalDays(),
		TotalDays:       period.TotalDays(),
		Status:          models.ItemPaid,
	}
	require.NoError(t, db.Create(item).Error)

	rows := []struct {
		code, amount string
	}{
		{models.CodeBasic, basic},
		{models.CodeSSNITEmp, ssnit},
		{models.CodePAYE, paye},
	}
	for _, r := range rows {
		comp := componentByCode(t, db, r.code)
		detail := &models.PayrollItemDetail{
			Record:         models.Record{TenantID: testTenant},
			PayrollItemID:  item.ID,
			PayComponentID: comp.ID,
			ComponentCode:  comp.Code,
			ComponentType:  comp.Type,
			Amount:         mustDec(r.amount),
		}
		require.NoError(t, db.Create(detail).Error)
	}
	return item
}

func seedSalary(t *testing.T, db *gorm.DB, emp *models.Employee, basic string, from time.Time, current bool) *models.EmployeeSalary {
	t.Helper()
	s := &models.EmployeeSalary{
		Record:        models.Record{TenantID: testTenant},
		EmployeeID:    emp.ID,
		BasicSalary:   mustDec(basic),
		EffectiveFrom: from,
		IsCurrent:     current,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// revisionFixture builds scenario: 4000 paid Jan+Feb, retroactive 5000
// effective Jan 1 recorded later.
func revisionFixture(t *testing.T, ctx context.Context, db *gorm.DB) (*models.Employee, *models.PayrollPeriod, *models.PayrollPeriod) {
	t.Helper()
	emp := seedEmployee(t, db)
	jan := seedSettledPeriod(t, db, 2026, time.January, models.PeriodPaid)
	feb := seedSettledPeriod(t, db, 2026, time.February, models.PeriodPaid)

	// Old PAYE on 4000-220=3780: 18.50 + (3780-730)*17.5% = 552.25.
	seedPaidMonth(t, db, emp, jan, "4000", "220", "552.25")
	seedPaidMonth(t, db, emp, feb, "4000", "220", "552.25")

	old := seedSalary(t, db, emp, "4000", date(2025, time.January, 1), false)
	closed := date(2025, time.December, 31)
	require.NoError(t, db.Model(old).Update("effective_to", closed).Error)

	// The revision is recorded mid-March, after Jan and Feb settled.
	revised := seedSalary(t, db, emp, "5000", date(2026, time.January, 1), true)
	require.NoError(t, db.Model(revised).Update("created_at", date(2026, time.March, 10)).Error)
	return emp, jan, feb
}

func TestCalculateSalaryRevision(t *testing.T) {
	ctx, db, e := setup(t)
	emp, _, _ := revisionFixture(t, ctx, db)

	calc, err := e.Calculate(ctx, CalcInput{
		EmployeeID: emp.ID,
		From:       date(2026, time.January, 1),
		To:         date(2026, time.February, 28),
		Reason:     "salary revision",
	})
	require.NoError(t, err)

	require.Equal(t, 2, calc.PeriodCount)
	assertAmount(t, "2000", calc.TotalEarningsArrears, "earnings arrears")

	for _, pd := range calc.Periods {
		require.Len(t, pd.Rows, 3)
		byCode := map[string]DeltaRow{}
		for _, r := range pd.Rows {
			byCode[r.Code] = r
		}

		basic := byCode[models.CodeBasic]
		assertAmount(t, "4000", basic.OldAmount, "old basic")
		assertAmount(t, "5000", basic.NewAmount, "new basic")
		assertAmount(t, "1000", basic.Difference, "basic diff")

		ssnit := byCode[models.CodeSSNITEmp]
		assertAmount(t, "55", ssnit.Difference, "ssnit diff")

		// New PAYE on 5000-275=4725: 572.67 + (4725-3896.67)*25% = 779.75.
		paye := byCode[models.CodePAYE]
		assertAmount(t, "552.25", paye.OldAmount, "old paye")
		assertAmount(t, "779.75", paye.NewAmount, "new paye")
		assertAmount(t, "227.50", paye.Difference, "paye diff")

		assertAmount(t, "1000", pd.EarningsDiff, "period earnings diff")
		assertAmount(t, "282.50", pd.DeductionsDiff, "period deductions diff")
		assertAmount(t, "717.50", pd.NetDiff, "period net diff")
	}

	assertAmount(t, "565", calc.TotalDeductionsArrears, "deductions arrears")
	assertAmount(t, "1435", calc.NetArrears, "net arrears")
}

func TestCalculateIsRepeatable(t *testing.T) {
	ctx, db, e := setup(t)
	emp, _, _ := revisionFixture(t, ctx, db)

	in := CalcInput{
		EmployeeID: emp.ID,
		From:       date(2026, time.January, 1),
		To:         date(2026, time.February, 28),
		Reason:     "salary revision",
	}
	first, err := e.Calculate(ctx, in)
	require.NoError(t, err)
	second, err := e.Calculate(ctx, in)
	require.NoError(t, err)

	assert.True(t, first.NetArrears.Equal(second.NetArrears))
	assert.True(t, first.TotalEarningsArrears.Equal(second.TotalEarningsArrears))
	assert.True(t, first.TotalDeductionsArrears.Equal(second.TotalDeductionsArrears))
	assert.Equal(t, first.PeriodCount, second.PeriodCount)
}

func TestCreateApproveApply(t *testing.T) {
	ctx, db, e := setup(t)
	emp, _, _ := revisionFixture(t, ctx, db)

	req, err := e.CreateRequest(ctx, CalcInput{
		EmployeeID: emp.ID,
		From:       date(2026, time.January, 1),
		To:         date(2026, time.February, 28),
		Reason:     "salary revision",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BackpayPreviewed, req.Status)
	assert.Equal(t, 2, req.PeriodCount)
	assertAmount(t, "1435", req.NetArrears, "net arrears")

	var detailCount int64
	require.NoError(t, db.Model(&models.BackpayDetail{}).
		Where("backpay_request_id = ?", req.ID).Count(&detailCount).Error)
	assert.Equal(t, int64(6), detailCount)

	// Apply requires APPROVED.
	mar := seedSettledPeriod(t, db, 2026, time.March, models.PeriodOpen)
	marRun := &models.PayrollRun{
		Record:          models.Record{TenantID: testTenant},
		PayrollPeriodID: mar.ID,
		RunNumber:       "PR-202603-001",
		Status:          models.RunComputed,
	}
	require.NoError(t, db.Create(marRun).Error)
	marItem := &models.PayrollItem{
		Record:          models.Record{TenantID: testTenant},
		PayrollRunID:    marRun.ID,
		EmployeeID:      emp.ID,
		GrossEarnings:   mustDec("5000"),
		TotalDeductions: mustDec("1054.75"),
		NetSalary:       mustDec("3945.25"),
		Status:          models.ItemComputed,
	}
	require.NoError(t, db.Create(marItem).Error)

	err = e.ApplyToRun(ctx, req.ID, marRun.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPROVED")

	require.NoError(t, e.Approve(ctx, req.ID, "boss"))
	require.NoError(t, e.ApplyToRun(ctx, req.ID, marRun.ID))

	var got models.BackpayRequest
	require.NoError(t, db.First(&got, "id = ?", req.ID).Error)
	assert.Equal(t, models.BackpayApplied, got.Status)
	require.NotNil(t, got.AppliedToRunID)
	assert.Equal(t, marRun.ID, *got.AppliedToRunID)

	var arrears []models.PayrollItemDetail
	require.NoError(t, db.Where("payroll_item_id = ? AND is_arrear = ?", marItem.ID, true).
		Find(&arrears).Error)
	require.Len(t, arrears, 3)
	for _, a := range arrears {
		require.NotNil(t, a.ArrearMonths)
		assert.Equal(t, 2, *a.ArrearMonths)
		require.NotNil(t, a.BackpayRequestID)
		assert.Equal(t, req.ID, *a.BackpayRequestID)
	}

	var item models.PayrollItem
	require.NoError(t, db.First(&item, "id = ?", marItem.ID).Error)
	assertAmount(t, "7000", item.GrossEarnings, "gross with arrears")
	assertAmount(t, "1619.75", item.TotalDeductions, "deductions with arrears")
	assertAmount(t, "5380.25", item.NetSalary, "net with arrears")

	// Applying twice is forbidden.
	err = e.ApplyToRun(ctx, req.ID, marRun.ID)
	require.Error(t, err)

	// Overlapping range with an APPLIED request is rejected.
	_, err = e.CreateRequest(ctx, CalcInput{
		EmployeeID: emp.ID,
		From:       date(2026, time.February, 1),
		To:         date(2026, time.February, 28),
		Reason:     "again",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already covers")
}

func TestArrearsExcludedFromBaseline(t *testing.T) {
	ctx, db, e := setup(t)
	emp := seedEmployee(t, db)
	seedSalary(t, db, emp, "5000", date(2026, time.January, 1), true)

	mar := seedSettledPeriod(t, db, 2026, time.March, models.PeriodPaid)
	item := seedPaidMonth(t, db, emp, mar, "5000", "275", "779.75")

	// An arrear row from a previously applied request sits on the item.
	basicComp := componentByCode(t, db, models.CodeBasic)
	months := 2
	prior := uuid.New()
	arrear := &models.PayrollItemDetail{
		Record:           models.Record{TenantID: testTenant},
		PayrollItemID:    item.ID,
		PayComponentID:   basicComp.ID,
		ComponentCode:    basicComp.Code,
		ComponentType:    basicComp.Type,
		Amount:           mustDec("2000"),
		IsArrear:         true,
		ArrearMonths:     &months,
		BackpayRequestID: &prior,
	}
	require.NoError(t, db.Create(arrear).Error)

	calc, err := e.Calculate(ctx, CalcInput{
		EmployeeID: emp.ID,
		From:       date(2026, time.March, 1),
		To:         date(2026, time.March, 31),
		Reason:     "check",
	})
	require.NoError(t, err)

	// Paid basic equals should-have-paid basic once arrears are
	// excluded, so no deltas at all.
	assert.Equal(t, 0, calc.PeriodCount)
	assert.True(t, calc.NetArrears.IsZero())
}

func TestDetectorFindsBackdatedSalary(t *testing.T) {
	ctx, db, e := setup(t)
	emp, jan, feb := revisionFixture(t, ctx, db)
	_ = jan
	_ = feb
	seedSettledPeriod(t, db, 2026, time.March, models.PeriodOpen)

	cands, err := e.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	cand := cands[0]
	assert.Equal(t, emp.ID, cand.Employee.ID)
	assert.Len(t, cand.AffectedPeriods, 2)
	assert.NotEmpty(t, cand.Changes)
	assert.Equal(t, date(2026, time.January, 1), cand.EarliestFrom)
	assert.Equal(t, date(2026, time.February, 28), cand.LatestTo)

	// An existing live request suppresses the candidate.
	_, err = e.CreateRequest(ctx, CalcInput{
		EmployeeID: emp.ID,
		From:       date(2026, time.January, 1),
		To:         date(2026, time.February, 28),
		Reason:     "salary revision",
	})
	require.NoError(t, err)

	cands, err = e.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, cands)
}
