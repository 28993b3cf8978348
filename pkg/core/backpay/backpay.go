// Package backpay is the retroactive pay engine. It reconstructs what
// each already-paid period should have paid under the facts as they
// are now recorded, diffs that against what the period actually paid,
// restates SSNIT and PAYE under the rates effective at that period,
// and turns the deltas into arrear rows on a later run.
package backpay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/compensation"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/engine"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/overlay"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/proration"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/ratebook"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// statutoryRecomputed are the codes excluded from the component diff
// because the engine restates them from the new taxable base.
var statutoryRecomputed = map[string]bool{
	models.CodeSSNITEmp:    true,
	models.CodePAYE:        true,
	models.CodeOvertimeTax: true,
	models.CodeBonusTax:    true,
}

// Engine computes and applies retroactive pay.
type Engine struct {
	db      *gorm.DB
	book    *ratebook.Book
	comp    *compensation.Graph
	overlay *overlay.Service
}

// New builds a backpay engine over the shared connection.
func New(db *gorm.DB) *Engine {
	return &Engine{
		db:      db,
		book:    ratebook.New(db),
		comp:    compensation.New(db),
		overlay: overlay.New(db),
	}
}

// CalcInput parameterises a backpay calculation.
type CalcInput struct {
	EmployeeID uuid.UUID
	From       time.Time
	To         time.Time
	Reason     string
	// Optional pins; when unset the salary effective at each period is
	// resolved from the compensation graph.
	NewSalaryID       *uuid.UUID
	OldSalaryID       *uuid.UUID
	ReferencePeriodID *uuid.UUID
}

// DeltaRow is one component difference within a period.
type DeltaRow struct {
	Component  *models.PayComponent
	Code       string
	OldAmount  decimal.Decimal
	NewAmount  decimal.Decimal
	Difference decimal.Decimal
}

// PeriodDelta carries the per-period outcome.
type PeriodDelta struct {
	Period         *models.PayrollPeriod
	Rows           []DeltaRow
	EarningsDiff   decimal.Decimal
	DeductionsDiff decimal.Decimal
	NetDiff        decimal.Decimal
}

// Calculation is the complete preview.
type Calculation struct {
	Periods                []PeriodDelta
	TotalEarningsArrears   decimal.Decimal
	TotalDeductionsArrears decimal.Decimal
	NetArrears             decimal.Decimal
	PeriodCount            int
}

// componentAmounts keeps both amounts and component references per code.
type componentAmounts struct {
	amounts    map[string]decimal.Decimal
	components map[string]*models.PayComponent
}

func newComponentAmounts() *componentAmounts {
	return &componentAmounts{
		amounts:    make(map[string]decimal.Decimal),
		components: make(map[string]*models.PayComponent),
	}
}

func (m *componentAmounts) add(c *models.PayComponent, amount decimal.Decimal) {
	m.amounts[c.Code] = m.amounts[c.Code].Add(amount)
	m.components[c.Code] = c
}

func (m *componentAmounts) get(code string) decimal.Decimal {
	return m.amounts[code]
}

// Calculate previews the per-period arrears for the employee over
// [from, to]. Nothing is persisted.
func (e *Engine) Calculate(ctx context.Context, in CalcInput) (*Calculation, error) {
	var emp models.Employee
	err := store.Scoped(ctx, e.db).First(&emp, "id = ?", in.EmployeeID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}

	var refPeriod *models.PayrollPeriod
	if in.ReferencePeriodID != nil {
		var p models.PayrollPeriod
		if err := store.Scoped(ctx, e.db).First(&p, "id = ?", *in.ReferencePeriodID).Error; err != nil {
			return nil, fmt.Errorf("load reference period: %w", err)
		}
		refPeriod = &p
	}

	var periods []models.PayrollPeriod
	err = store.Scoped(ctx, e.db).
		Where("status IN ?", []models.PeriodStatus{models.PeriodPaid, models.PeriodClosed}).
		Where("is_supplementary = ?", false).
		Where("start_date <= ? AND end_date >= ?", in.To, in.From).
		Order("start_date asc").
		Find(&periods).Error
	if err != nil {
		return nil, fmt.Errorf("load settled periods: %w", err)
	}

	calc := &Calculation{}
	for i := range periods {
		delta, err := e.calculatePeriod(ctx, &emp, &periods[i], refPeriod, in)
		if err != nil {
			return nil, fmt.Errorf("period %s: %w", periods[i].StartDate.Format("2006-01"), err)
		}
		if len(delta.Rows) == 0 {
			continue
		}
		calc.Periods = append(calc.Periods, *delta)
		calc.TotalEarningsArrears = calc.TotalEarningsArrears.Add(delta.EarningsDiff)
		calc.TotalDeductionsArrears = calc.TotalDeductionsArrears.Add(delta.DeductionsDiff)
	}
	calc.PeriodCount = len(calc.Periods)
	calc.TotalEarningsArrears = calc.TotalEarningsArrears.Round(2)
	calc.TotalDeductionsArrears = calc.TotalDeductionsArrears.Round(2)
	calc.NetArrears = calc.TotalEarningsArrears.Sub(calc.TotalDeductionsArrears).Round(2)
	return calc, nil
}

func (e *Engine) calculatePeriod(ctx context.Context, emp *models.Employee, period *models.PayrollPeriod, refPeriod *models.PayrollPeriod, in CalcInput) (*PeriodDelta, error) {
	refStart := period.StartDate
	if refPeriod != nil {
		refStart = refPeriod.StartDate
	}

	// Facts as they should have been.
	salary, err := e.resolveSalary(ctx, emp.ID, refStart, in.NewSalaryID)
	if err != nil {
		return nil, err
	}
	gradeID, err := e.comp.GradeAt(ctx, emp, period.StartDate)
	if err != nil {
		return nil, err
	}

	paidItem, err := e.paidItem(ctx, emp.ID, period.ID)
	if err != nil {
		return nil, err
	}
	pro := e.prorationFor(emp, period, paidItem)

	should, err := e.shouldHavePaid(ctx, emp, period, salary, gradeID, pro)
	if err != nil {
		return nil, err
	}
	paid, err := e.paidAmounts(ctx, paidItem)
	if err != nil {
		return nil, err
	}

	delta := &PeriodDelta{Period: period}
	oldTaxable, newTaxable := decimal.Zero, decimal.Zero

	codes := make(map[string]bool)
	for code := range should.amounts {
		codes[code] = true
	}
	for code := range paid.amounts {
		codes[code] = true
	}
	for code := range codes {
		if statutoryRecomputed[code] {
			continue
		}
		comp := should.components[code]
		if comp == nil {
			comp = paid.components[code]
		}
		if comp == nil {
			continue
		}
		oldAmt, newAmt := paid.get(code), should.get(code)
		if comp.Type == models.ComponentEarning && comp.IsTaxable && !comp.IsOvertime && !comp.IsBonus {
			oldTaxable = oldTaxable.Add(oldAmt)
			newTaxable = newTaxable.Add(newAmt)
		}
		diff := newAmt.Sub(oldAmt)
		if diff.IsZero() {
			continue
		}
		delta.Rows = append(delta.Rows, DeltaRow{
			Component:  comp,
			Code:       code,
			OldAmount:  oldAmt.Round(2),
			NewAmount:  newAmt.Round(2),
			Difference: diff.Round(2),
		})
		if comp.Type == models.ComponentEarning {
			delta.EarningsDiff = delta.EarningsDiff.Add(diff)
		} else if comp.Type == models.ComponentDeduction {
			delta.DeductionsDiff = delta.DeductionsDiff.Add(diff)
		}
	}

	// Restate SSNIT and PAYE under the rates effective at this period.
	if err := e.restateStatutory(ctx, period, paid, should, oldTaxable, newTaxable, delta); err != nil {
		return nil, err
	}

	delta.EarningsDiff = delta.EarningsDiff.Round(2)
	delta.DeductionsDiff = delta.DeductionsDiff.Round(2)
	delta.NetDiff = delta.EarningsDiff.Sub(delta.DeductionsDiff).Round(2)
	return delta, nil
}

func (e *Engine) resolveSalary(ctx context.Context, employeeID uuid.UUID, asOf time.Time, pinned *uuid.UUID) (*models.EmployeeSalary, error) {
	if pinned != nil {
		var s models.EmployeeSalary
		if err := store.Scoped(ctx, e.db).First(&s, "id = ?", *pinned).Error; err != nil {
			return nil, fmt.Errorf("load pinned salary: %w", err)
		}
		return &s, nil
	}
	s, err := e.comp.CurrentSalary(ctx, employeeID, asOf)
	if err == models.ErrNotFound {
		return nil, nil
	}
	return s, err
}

// paidItem prefers the item of the run that actually paid the period.
func (e *Engine) paidItem(ctx context.Context, employeeID, periodID uuid.UUID) (*models.PayrollItem, error) {
	var item models.PayrollItem
	err := store.Scoped(ctx, e.db).
		Joins("JOIN payroll_runs ON payroll_runs.id = payroll_items.payroll_run_id").
		Where("payroll_runs.payroll_period_id = ?", periodID).
		Where("payroll_items.employee_id = ?", employeeID).
		Where("payroll_items.status <> ?", models.ItemError).
		Order("CASE WHEN payroll_runs.status = 'PAID' THEN 0 ELSE 1 END, payroll_items.created_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("paid item: %w", err)
	}
	return &item, nil
}

func (e *Engine) prorationFor(emp *models.Employee, period *models.PayrollPeriod, paidItem *models.PayrollItem) proration.Result {
	if paidItem != nil && paidItem.TotalDays > 0 {
		return proration.Result{
			Factor:      paidItem.ProrationFactor,
			DaysPayable: paidItem.DaysPayable,
			TotalDays:   paidItem.TotalDays,
		}
	}
	return proration.Compute(emp.DateOfJoining, emp.DateOfExit, period.StartDate, period.EndDate)
}

// shouldHavePaid reconstructs the arrears-applicable component amounts
// the period ought to have paid under today's recorded facts.
func (e *Engine) shouldHavePaid(ctx context.Context, emp *models.Employee, period *models.PayrollPeriod, salary *models.EmployeeSalary, gradeID *uuid.UUID, pro proration.Result) (*componentAmounts, error) {
	out := newComponentAmounts()
	if salary == nil {
		return out, nil
	}

	var basicComp models.PayComponent
	err := store.Scoped(ctx, e.db).First(&basicComp, "code = ?", models.CodeBasic).Error
	if err != nil {
		return nil, fmt.Errorf("load basic component: %w", err)
	}
	if basicComp.IsArrearsApplicable {
		amount := salary.BasicSalary
		if basicComp.IsProrated {
			amount = pro.Apply(amount)
		}
		out.add(&basicComp, amount.Round(2))
	}

	salaryComps, err := e.comp.SalaryComponents(ctx, salary.ID)
	if err != nil {
		return nil, err
	}
	for i := range salaryComps {
		sc := &salaryComps[i]
		if sc.PayComponent == nil || !sc.PayComponent.IsArrearsApplicable || sc.PayComponent.Code == models.CodeBasic {
			continue
		}
		amount := sc.Amount
		if sc.PayComponent.IsProrated {
			amount = pro.Apply(amount)
		}
		out.add(sc.PayComponent, amount.Round(2))
	}

	txs, err := e.overlay.ApplicableTransactionsWithGrade(ctx, emp, period, gradeID)
	if err != nil {
		return nil, err
	}
	gross := decimal.Zero
	for _, a := range out.amounts {
		gross = gross.Add(a)
	}
	for i := range txs {
		tx := &txs[i]
		if tx.PayComponent == nil || !tx.PayComponent.IsArrearsApplicable {
			continue
		}
		if _, covered := out.amounts[tx.PayComponent.Code]; covered {
			continue
		}
		amount := overlay.Amount(tx, salary.BasicSalary, gross)
		if tx.IsRecurring && tx.PayComponent.IsProrated {
			amount = pro.Apply(amount)
		}
		out.add(tx.PayComponent, amount.Round(2))
	}
	return out, nil
}

// paidAmounts extracts the non-arrear detail rows of the paid item.
// Arrear rows injected by prior backpay applications never count as
// baseline pay.
func (e *Engine) paidAmounts(ctx context.Context, item *models.PayrollItem) (*componentAmounts, error) {
	out := newComponentAmounts()
	if item == nil {
		return out, nil
	}
	var details []models.PayrollItemDetail
	err := store.Scoped(ctx, e.db).
		Preload("PayComponent").
		Where("payroll_item_id = ? AND is_arrear = ?", item.ID, false).
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("paid details: %w", err)
	}
	for i := range details {
		d := &details[i]
		if d.PayComponent == nil {
			continue
		}
		out.add(d.PayComponent, d.Amount)
	}
	return out, nil
}

// restateStatutory recomputes SSNIT and PAYE for both the old and the
// new state using the rates effective at the period, and appends their
// delta rows.
func (e *Engine) restateStatutory(ctx context.Context, period *models.PayrollPeriod, paid, should *componentAmounts, oldTaxable, newTaxable decimal.Decimal, delta *PeriodDelta) error {
	rates, err := e.book.SSNIT(ctx, period.EndDate)
	if err != nil {
		return err
	}
	brackets, err := e.book.Brackets(ctx, period.EndDate)
	if err != nil {
		return err
	}

	oldBasic := paid.get(models.CodeBasic)
	newBasic := should.get(models.CodeBasic)
	oldSSNIT := engine.ComputeSSNIT(oldBasic, rates)
	newSSNIT := engine.ComputeSSNIT(newBasic, rates)

	oldPAYE := engine.PAYE(oldTaxable.Sub(oldSSNIT.Employee), brackets)
	newPAYE := engine.PAYE(newTaxable.Sub(newSSNIT.Employee), brackets)

	type statRow struct {
		code           string
		oldAmt, newAmt decimal.Decimal
	}
	for _, r := range []statRow{
		{models.CodeSSNITEmp, oldSSNIT.Employee, newSSNIT.Employee},
		{models.CodePAYE, oldPAYE, newPAYE},
	} {
		diff := r.newAmt.Sub(r.oldAmt)
		if diff.IsZero() {
			continue
		}
		var comp models.PayComponent
		if err := store.Scoped(ctx, e.db).First(&comp, "code = ?", r.code).Error; err != nil {
			return fmt.Errorf("load component %s: %w", r.code, err)
		}
		delta.Rows = append(delta.Rows, DeltaRow{
			Component:  &comp,
			Code:       r.code,
			OldAmount:  r.oldAmt.Round(2),
			NewAmount:  r.newAmt.Round(2),
			Difference: diff.Round(2),
		})
		delta.DeductionsDiff = delta.DeductionsDiff.Add(diff)
	}
	return nil
}
