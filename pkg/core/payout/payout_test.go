package payout

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

const testTenant = "t-payout"

func setup(t *testing.T) (context.Context, *gorm.DB, *Service) {
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

func seedEmployee(t *testing.T, db *gorm.DB, number, first, last string) *models.Employee {
	t.Helper()
	emp := &models.Employee{
		Record:         models.Record{TenantID: testTenant},
		EmployeeNumber: number,
		FirstName:      first,
		LastName:       last,
		Status:         models.EmployeeActive,
		DateOfJoining:  date(2024, time.January, 1),
	}
	require.NoError(t, db.Create(emp).Error)
	return emp
}

func seedPeriod(t *testing.T, db *gorm.DB, year int, month time.Month, status models.PeriodStatus) *models.PayrollPeriod {
	t.Helper()
	cal := &models.PayrollCalendar{
		Record: models.Record{TenantID: testTenant},
		Year:   year, Month: int(month),
	}
	require.NoError(t, db.Create(cal).Error)
	start := date(year, month, 1)
	period := &models.PayrollPeriod{
		Record:     models.Record{TenantID: testTenant},
		CalendarID: cal.ID,
		StartDate:  start,
		EndDate:    start.AddDate(0, 1, -1),
		Status:     status,
	}
	require.NoError(t, db.Create(period).Error)
	return period
}

func seedRun(t *testing.T, db *gorm.DB, period *models.PayrollPeriod, number string, status models.RunStatus) *models.PayrollRun {
	t.Helper()
	run := &models.PayrollRun{
		Record:          models.Record{TenantID: testTenant},
		PayrollPeriodID: period.ID,
		RunNumber:       number,
		Status:          status,
	}
	require.NoError(t, db.Create(run).Error)
	return run
}

type itemSpec struct {
	emp     *models.Employee
	net     string
	bank    string
	branch  string
	account string
}

func seedItem(t *testing.T, db *gorm.DB, run *models.PayrollRun, spec itemSpec) *models.PayrollItem {
	t.Helper()
	item := &models.PayrollItem{
		Record:        models.Record{TenantID: testTenant},
		PayrollRunID:  run.ID,
		EmployeeID:    spec.emp.ID,
		GrossEarnings: mustDec(spec.net).Add(mustDec("500")),
		NetSalary:     mustDec(spec.net),
		SSNITEmployee: mustDec("275"),
		PAYE:          mustDec("225"),
		Status:        models.ItemPaid,
		BankName:      spec.bank,
		BankBranch:    spec.branch,
		AccountName:   spec.emp.FullName(),
		AccountNumber: spec.account,
		PaymentReference: func() string {
			if spec.account == "" {
				return ""
			}
			return run.RunNumber + "-" + spec.emp.EmployeeNumber
		}(),
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestBankAdviceGroupsByBank(t *testing.T) {
	ctx, db, svc := setup(t)
	period := seedPeriod(t, db, 2026, time.January, models.PeriodPaid)
	paidAt := date(2026, time.January, 28)
	run := seedRun(t, db, period, "PR-202601-001", models.RunPaid)
	require.NoError(t, db.Model(run).Update("paid_at", paidAt).Error)
	run.PaidAt = &paidAt

	ama := seedEmployee(t, db, "EMP-001", "Ama", "Mensah")
	kofi := seedEmployee(t, db, "EMP-002", "Kofi", "Asante")
	esi := seedEmployee(t, db, "EMP-003", "Esi", "Owusu")
	seedItem(t, db, run, itemSpec{emp: kofi, net: "3200.50", bank: "GCB Bank", branch: "Accra Main", account: "0022"})
	seedItem(t, db, run, itemSpec{emp: ama, net: "4500.00", bank: "GCB Bank", branch: "Accra Main", account: "0011"})
	seedItem(t, db, run, itemSpec{emp: esi, net: "2800.00", bank: "Ecobank Ghana", branch: "Tema", account: "0033"})

	files, err := svc.BankAdvice(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)

	// Sorted by bank name: Ecobank then GCB.
	assert.Equal(t, "Ecobank Ghana", files[0].Bank)
	assert.Equal(t, "PR-202601-001_Ecobank_Ghana_20260128.csv", files[0].FileName)
	assert.Equal(t, 1, files[0].Records)

	gcb := files[1]
	assert.Equal(t, "PR-202601-001_GCB_Bank_20260128.csv", gcb.FileName)
	assert.Equal(t, 2, gcb.Records)
	assert.True(t, gcb.TotalAmount.Equal(mustDec("7700.50")))

	records, err := csv.NewReader(bytes.NewReader(gcb.Content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4) // header + 2 rows + summary
	assert.Equal(t, []string{"Bank", "Branch", "Account Number", "Account Name", "Employee Number", "Net Salary", "Reference"}, records[0])
	// Employee-number order within the bank.
	assert.Equal(t, "EMP-001", records[1][4])
	assert.Equal(t, "4500.00", records[1][5])
	assert.Equal(t, "PR-202601-001-EMP-001", records[1][6])
	assert.Equal(t, "EMP-002", records[2][4])
	assert.Equal(t, []string{"Total Records:", "2", "Total Amount:", "7700.50"}, records[3])
}

func TestBankAdviceSkipsUnbankedAndErrors(t *testing.T) {
	ctx, db, svc := setup(t)
	period := seedPeriod(t, db, 2026, time.January, models.PeriodPaid)
	run := seedRun(t, db, period, "PR-202601-001", models.RunPaid)

	ama := seedEmployee(t, db, "EMP-001", "Ama", "Mensah")
	kofi := seedEmployee(t, db, "EMP-002", "Kofi", "Asante")
	seedItem(t, db, run, itemSpec{emp: ama, net: "4500.00", bank: "GCB Bank", account: "0011"})
	seedItem(t, db, run, itemSpec{emp: kofi, net: "3000.00"}) // no account snapshot

	files, err := svc.BankAdvice(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 1, files[0].Records)
}

func TestBankAdviceNeedsSettledRun(t *testing.T) {
	ctx, db, svc := setup(t)
	period := seedPeriod(t, db, 2026, time.January, models.PeriodOpen)
	run := seedRun(t, db, period, "PR-202601-001", models.RunComputed)

	_, err := svc.BankAdvice(ctx, run.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approved or paid")
}

func seedComponent(t *testing.T, db *gorm.DB, code string, ctype models.ComponentType, category models.ComponentCategory, order int) *models.PayComponent {
	t.Helper()
	comp := &models.PayComponent{
		Record:       models.Record{TenantID: testTenant},
		Code:         code,
		Name:         code,
		Type:         ctype,
		Category:     category,
		DisplayOrder: order,
	}
	require.NoError(t, db.Create(comp).Error)
	return comp
}

func seedDetail(t *testing.T, db *gorm.DB, item *models.PayrollItem, comp *models.PayComponent, amount string) {
	t.Helper()
	require.NoError(t, db.Create(&models.PayrollItemDetail{
		Record:         models.Record{TenantID: testTenant},
		PayrollItemID:  item.ID,
		PayComponentID: comp.ID,
		ComponentCode:  comp.Code,
		ComponentType:  comp.Type,
		Amount:         mustDec(amount),
	}).Error)
}

func TestPayslipDataWithYTD(t *testing.T) {
	ctx, db, svc := setup(t)
	ama := seedEmployee(t, db, "EMP-001", "Ama", "Mensah")

	basic := seedComponent(t, db, "BASIC", models.ComponentEarning, models.CategoryBasic, 1)
	fund := seedComponent(t, db, "PF_EMP", models.ComponentDeduction, models.CategoryFund, 5)
	loan := seedComponent(t, db, "CAR_LOAN", models.ComponentDeduction, models.CategoryLoan, 6)

	// January, paid.
	jan := seedPeriod(t, db, 2026, time.January, models.PeriodPaid)
	janRun := seedRun(t, db, jan, "PR-202601-001", models.RunPaid)
	janItem := seedItem(t, db, janRun, itemSpec{emp: ama, net: "4500.00", bank: "GCB Bank", account: "0011"})
	seedDetail(t, db, janItem, basic, "5000")
	seedDetail(t, db, janItem, fund, "250")
	seedDetail(t, db, janItem, loan, "100")

	// December of the prior year must not count.
	dec25 := seedPeriod(t, db, 2025, time.December, models.PeriodClosed)
	decRun := seedRun(t, db, dec25, "PR-202512-001", models.RunPaid)
	decItem := seedItem(t, db, decRun, itemSpec{emp: ama, net: "4400.00", bank: "GCB Bank", account: "0011"})
	seedDetail(t, db, decItem, fund, "250")

	// February, computed: the slip under test.
	feb := seedPeriod(t, db, 2026, time.February, models.PeriodComputed)
	febRun := seedRun(t, db, feb, "PR-202602-001", models.RunComputed)
	febItem := seedItem(t, db, febRun, itemSpec{emp: ama, net: "4600.00", bank: "GCB Bank", account: "0011"})
	require.NoError(t, db.Model(febItem).Update("status", models.ItemComputed).Error)
	seedDetail(t, db, febItem, loan, "100")
	seedDetail(t, db, febItem, fund, "250")
	seedDetail(t, db, febItem, basic, "5000")

	slip, err := svc.BuildPayslipData(ctx, febRun.ID, ama.ID)
	require.NoError(t, err)

	assert.Equal(t, "PR-202602-001", slip.RunNumber)
	assert.Equal(t, "EMP-001", slip.Employee.EmployeeNumber)
	assert.True(t, slip.Item.NetSalary.Equal(mustDec("4600")))

	// Details ordered by display order: BASIC, PF_EMP, CAR_LOAN.
	require.Len(t, slip.Details, 3)
	assert.Equal(t, "BASIC", slip.Details[0].ComponentCode)
	assert.Equal(t, "PF_EMP", slip.Details[1].ComponentCode)
	assert.Equal(t, "CAR_LOAN", slip.Details[2].ComponentCode)

	// YTD covers January and February 2026 only.
	assert.True(t, slip.YTD.Net.Equal(mustDec("9100")), "got %s", slip.YTD.Net)
	assert.True(t, slip.YTD.Earnings.Equal(mustDec("10100")), "got %s", slip.YTD.Earnings)
	assert.True(t, slip.YTD.SSNITEmployee.Equal(mustDec("550")))
	assert.True(t, slip.YTD.PAYE.Equal(mustDec("450")))
	assert.True(t, slip.YTD.ProvidentFundEmployee.Equal(mustDec("500")), "got %s", slip.YTD.ProvidentFundEmployee)
	assert.True(t, slip.YTD.Loans.Equal(mustDec("200")), "got %s", slip.YTD.Loans)
}

func TestPayslipUnknownEmployee(t *testing.T) {
	ctx, db, svc := setup(t)
	period := seedPeriod(t, db, 2026, time.January, models.PeriodPaid)
	run := seedRun(t, db, period, "PR-202601-001", models.RunPaid)

	_, err := svc.BuildPayslipData(ctx, run.ID, uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no computed item")
}

func TestRegisterXLSX(t *testing.T) {
	ctx, db, svc := setup(t)
	period := seedPeriod(t, db, 2026, time.January, models.PeriodPaid)
	run := seedRun(t, db, period, "PR-202601-001", models.RunPaid)
	require.NoError(t, db.Model(run).Updates(map[string]interface{}{
		"total_gross": mustDec("8500.50"),
		"total_net":   mustDec("7700.50"),
	}).Error)

	ama := seedEmployee(t, db, "EMP-001", "Ama", "Mensah")
	kofi := seedEmployee(t, db, "EMP-002", "Kofi", "Asante")
	seedItem(t, db, run, itemSpec{emp: kofi, net: "3200.50", bank: "GCB Bank", account: "0022"})
	seedItem(t, db, run, itemSpec{emp: ama, net: "4500.00", bank: "GCB Bank", account: "0011"})

	path := filepath.Join(t.TempDir(), "register.xlsx")
	require.NoError(t, svc.WriteRegisterXLSX(ctx, run.ID, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(registerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5) // title, header, 2 items, totals

	assert.Equal(t, "Run PR-202601-001", rows[0][0])
	assert.Equal(t, "Employee Number", rows[1][0])
	assert.Equal(t, "EMP-001", rows[2][0])
	assert.Equal(t, "4500.00", rows[2][10])
	assert.Equal(t, "EMP-002", rows[3][0])
	assert.Equal(t, "TOTAL", rows[4][0])
	assert.Equal(t, "7700.50", rows[4][10])
}
