package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

const testTenant = "t-overlay"

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

func seedComponent(t *testing.T, db *gorm.DB, code string) *models.PayComponent {
	t.Helper()
	comp := &models.PayComponent{
		Record:      models.Record{TenantID: testTenant},
		Code:        code,
		Name:        code,
		Type:        models.ComponentEarning,
		Category:    models.CategoryAllowance,
		CalcKind:    models.CalcFixed,
		Amount:      mustDec("100"),
		IsTaxable:   true,
		IsRecurring: true,
	}
	require.NoError(t, db.Create(comp).Error)
	return comp
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

func TestCreateTransactionRejectsSecondCurrentVersion(t *testing.T) {
	ctx, db, svc := setup(t)
	emp := seedEmployee(t, db)
	comp := seedComponent(t, db, "CAR_ALLOW")

	first := &models.EmployeeTransaction{
		TargetType:     models.TargetIndividual,
		EmployeeID:     &emp.ID,
		PayComponentID: comp.ID,
		OverrideType:   models.OverrideFixed,
		Amount:         mustDec("500"),
		EffectiveFrom:  date(2026, time.January, 1),
		IsRecurring:    true,
		Status:         models.TransactionActive,
	}
	require.NoError(t, svc.CreateTransaction(ctx, first))
	assert.Equal(t, 1, first.Version)
	assert.True(t, first.IsCurrentVersion)

	dup := &models.EmployeeTransaction{
		TargetType:     models.TargetIndividual,
		EmployeeID:     &emp.ID,
		PayComponentID: comp.ID,
		OverrideType:   models.OverrideFixed,
		Amount:         mustDec("700"),
		EffectiveFrom:  date(2026, time.February, 1),
		IsRecurring:    true,
	}
	err := svc.CreateTransaction(ctx, dup)
	var overlap *ErrOverlap
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, first.ID, overlap.ExistingID)
}

func TestUpdateTransactionVersions(t *testing.T) {
	ctx, db, svc := setup(t)
	emp := seedEmployee(t, db)
	comp := seedComponent(t, db, "HOUSING")

	tx := &models.EmployeeTransaction{
		TargetType:     models.TargetIndividual,
		EmployeeID:     &emp.ID,
		PayComponentID: comp.ID,
		OverrideType:   models.OverrideFixed,
		Amount:         mustDec("500"),
		EffectiveFrom:  date(2026, time.January, 1),
		IsRecurring:    true,
		Status:         models.TransactionActive,
	}
	require.NoError(t, svc.CreateTransaction(ctx, tx))

	next, err := svc.UpdateTransaction(ctx, tx.ID, UpdateInput{
		OverrideType:  models.OverrideFixed,
		Amount:        mustDec("650"),
		EffectiveFrom: date(2026, time.March, 1),
		Reason:        "renegotiated",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
	assert.True(t, next.IsCurrentVersion)
	require.NotNil(t, next.ParentID)
	assert.Equal(t, tx.ID, *next.ParentID)
	assert.True(t, next.Amount.Equal(mustDec("650")))

	var old models.EmployeeTransaction
	require.NoError(t, db.First(&old, "id = ?", tx.ID).Error)
	assert.False(t, old.IsCurrentVersion)
	require.NotNil(t, old.EffectiveTo)
	assert.Equal(t, date(2026, time.February, 28), old.EffectiveTo.UTC().Truncate(24*time.Hour))
	// The original amount is untouched.
	assert.True(t, old.Amount.Equal(mustDec("500")))
}

func TestApplicableTransactionsPredicates(t *testing.T) {
	ctx, db, svc := setup(t)
	emp := seedEmployee(t, db)
	comp := seedComponent(t, db, "RISK")
	jan := seedPeriod(t, db, 2026, time.January)
	feb := seedPeriod(t, db, 2026, time.February)

	mk := func(mut func(*models.EmployeeTransaction)) *models.EmployeeTransaction {
		tx := &models.EmployeeTransaction{
			Record:           models.Record{TenantID: testTenant},
			TargetType:       models.TargetIndividual,
			EmployeeID:       &emp.ID,
			PayComponentID:   comp.ID,
			OverrideType:     models.OverrideFixed,
			Amount:           mustDec("100"),
			EffectiveFrom:    date(2026, time.January, 1),
			IsRecurring:      true,
			Status:           models.TransactionActive,
			Version:          1,
			IsCurrentVersion: true,
		}
		mut(tx)
		require.NoError(t, db.Create(tx).Error)
		return tx
	}

	active := mk(func(tx *models.EmployeeTransaction) {})
	mk(func(tx *models.EmployeeTransaction) { tx.Status = models.TransactionSuspended })
	mk(func(tx *models.EmployeeTransaction) { tx.IsCurrentVersion = false })
	mk(func(tx *models.EmployeeTransaction) { tx.EffectiveFrom = date(2026, time.March, 1) })
	mk(func(tx *models.EmployeeTransaction) {
		ended := date(2025, time.December, 31)
		tx.EffectiveFrom = date(2025, time.June, 1)
		tx.EffectiveTo = &ended
	})
	// One-shot bound to February only.
	febOnly := mk(func(tx *models.EmployeeTransaction) {
		tx.IsRecurring = false
		tx.PayrollPeriodID = &feb.ID
	})

	got, err := svc.ApplicableTransactions(ctx, emp, jan)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	got, err = svc.ApplicableTransactions(ctx, emp, feb)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(got))
	for i, g := range got {
		ids[i] = g.ID
	}
	assert.ElementsMatch(t, []uuid.UUID{active.ID, febOnly.ID}, ids)
}

func TestApplicableTransactionsGradeAndBandTargets(t *testing.T) {
	ctx, db, svc := setup(t)
	jan := seedPeriod(t, db, 2026, time.January)
	comp := seedComponent(t, db, "UNIFORM")

	band := &models.SalaryBand{Record: models.Record{TenantID: testTenant}, Name: "Band A"}
	require.NoError(t, db.Create(band).Error)
	grade := &models.Grade{Record: models.Record{TenantID: testTenant}, Name: "G1", SalaryBandID: &band.ID}
	require.NoError(t, db.Create(grade).Error)

	emp := seedEmployee(t, db)
	require.NoError(t, db.Model(emp).Update("grade_id", grade.ID).Error)
	emp.GradeID = &grade.ID

	other := &models.Grade{Record: models.Record{TenantID: testTenant}, Name: "G2"}
	require.NoError(t, db.Create(other).Error)

	gradeTx := &models.EmployeeTransaction{
		Record:           models.Record{TenantID: testTenant},
		TargetType:       models.TargetGrade,
		GradeID:          &grade.ID,
		PayComponentID:   comp.ID,
		OverrideType:     models.OverrideFixed,
		Amount:           mustDec("50"),
		EffectiveFrom:    date(2026, time.January, 1),
		IsRecurring:      true,
		Status:           models.TransactionActive,
		Version:          1,
		IsCurrentVersion: true,
	}
	require.NoError(t, db.Create(gradeTx).Error)

	bandTx := &models.EmployeeTransaction{
		Record:           models.Record{TenantID: testTenant},
		TargetType:       models.TargetBand,
		BandID:           &band.ID,
		PayComponentID:   comp.ID,
		OverrideType:     models.OverrideFixed,
		Amount:           mustDec("25"),
		EffectiveFrom:    date(2026, time.January, 1),
		IsRecurring:      true,
		Status:           models.TransactionActive,
		Version:          1,
		IsCurrentVersion: true,
	}
	require.NoError(t, db.Create(bandTx).Error)

	otherGradeTx := &models.EmployeeTransaction{
		Record:           models.Record{TenantID: testTenant},
		TargetType:       models.TargetGrade,
		GradeID:          &other.ID,
		PayComponentID:   comp.ID,
		OverrideType:     models.OverrideFixed,
		Amount:           mustDec("99"),
		EffectiveFrom:    date(2026, time.January, 1),
		IsRecurring:      true,
		Status:           models.TransactionActive,
		Version:          1,
		IsCurrentVersion: true,
	}
	require.NoError(t, db.Create(otherGradeTx).Error)

	got, err := svc.ApplicableTransactions(ctx, emp, jan)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(got))
	for i, g := range got {
		ids[i] = g.ID
	}
	assert.ElementsMatch(t, []uuid.UUID{gradeTx.ID, bandTx.ID}, ids)
}

func TestAmountOverrides(t *testing.T) {
	basic := mustDec("5000")
	gross := mustDec("6000")
	comp := &models.PayComponent{CalcKind: models.CalcPctOfBasic, Percentage: mustDec("10")}

	cases := []struct {
		name string
		tx   models.EmployeeTransaction
		want string
	}{
		{"fixed", models.EmployeeTransaction{OverrideType: models.OverrideFixed, Amount: mustDec("750"), PayComponent: comp}, "750"},
		{"pct of basic", models.EmployeeTransaction{OverrideType: models.OverridePct, Percentage: mustDec("15"), PayComponent: comp}, "750"},
		{"formula", models.EmployeeTransaction{OverrideType: models.OverrideFormula, Formula: "basic * 0.1 + 50", PayComponent: comp}, "550"},
		{"none falls back to component", models.EmployeeTransaction{OverrideType: models.OverrideNone, PayComponent: comp}, "500"},
		{"bad formula is zero", models.EmployeeTransaction{OverrideType: models.OverrideFormula, Formula: "basic +", PayComponent: comp}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Amount(&tc.tx, basic, gross)
			assert.True(t, got.Equal(mustDec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestAdHocPaymentsOnlyApproved(t *testing.T) {
	ctx, db, svc := setup(t)
	emp := seedEmployee(t, db)
	comp := seedComponent(t, db, "ADHOC")
	jan := seedPeriod(t, db, 2026, time.January)

	approved := &models.AdHocPayment{
		Record:          models.Record{TenantID: testTenant},
		EmployeeID:      emp.ID,
		PayrollPeriodID: jan.ID,
		PayComponentID:  comp.ID,
		Amount:          mustDec("300"),
		IsApproved:      true,
	}
	require.NoError(t, db.Create(approved).Error)
	pending := &models.AdHocPayment{
		Record:          models.Record{TenantID: testTenant},
		EmployeeID:      emp.ID,
		PayrollPeriodID: jan.ID,
		PayComponentID:  comp.ID,
		Amount:          mustDec("900"),
	}
	require.NoError(t, db.Create(pending).Error)

	got, err := svc.AdHocPayments(ctx, emp.ID, jan.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Amount.Equal(mustDec("300")))
}
