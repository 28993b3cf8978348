// Package engine is the per-employee payroll computer: it resolves the
// effective salary, prorates, accumulates earning and deduction
// buckets, applies Ghana statutory rules (SSNIT, segregated overtime
// and bonus taxation, progressive PAYE) and emits the detail rows that
// make up one payroll item.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/compensation"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/overlay"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/proration"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/ratebook"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// Computer computes one employee's payroll for one period.
type Computer struct {
	db      *gorm.DB
	book    *ratebook.Book
	comp    *compensation.Graph
	overlay *overlay.Service
}

// New wires a computer over the shared connection.
func New(db *gorm.DB) *Computer {
	return &Computer{
		db:      db,
		book:    ratebook.New(db),
		comp:    compensation.New(db),
		overlay: overlay.New(db),
	}
}

// NewWithBook shares an existing rate book, so a run-wide cache
// survives across employees.
func NewWithBook(db *gorm.DB, book *ratebook.Book) *Computer {
	c := New(db)
	c.book = book
	return c
}

// Detail is one component line of a computed result.
type Detail struct {
	Component *models.PayComponent
	Amount    decimal.Decimal
}

// Result is the computed payroll for one (employee, period).
type Result struct {
	BasicSalary     decimal.Decimal
	GrossEarnings   decimal.Decimal
	TotalDeductions decimal.Decimal
	NetSalary       decimal.Decimal
	TaxableIncome   decimal.Decimal
	PAYE            decimal.Decimal
	OvertimeTax     decimal.Decimal
	BonusTax        decimal.Decimal
	TotalOvertime   decimal.Decimal
	TotalBonus      decimal.Decimal
	SSNITEmployee   decimal.Decimal
	SSNITEmployer   decimal.Decimal
	Tier2Employer   decimal.Decimal
	EmployerCost    decimal.Decimal

	ProrationFactor decimal.Decimal
	DaysPayable     int
	TotalDays       int

	Details []Detail
}

// buckets are the running classification accumulators of step 3.
type buckets struct {
	regularTaxable   decimal.Decimal
	nonTaxable       decimal.Decimal
	overtime         decimal.Decimal
	bonus            decimal.Decimal
	preTaxDeductions decimal.Decimal
	otherDeductions  decimal.Decimal
	employerContrib  decimal.Decimal
}

func (b *buckets) add(c *models.PayComponent, amount decimal.Decimal) {
	switch c.Type {
	case models.ComponentDeduction:
		if c.ReducesTaxable {
			b.preTaxDeductions = b.preTaxDeductions.Add(amount)
		} else {
			b.otherDeductions = b.otherDeductions.Add(amount)
		}
	case models.ComponentEmployerContrib:
		b.employerContrib = b.employerContrib.Add(amount)
	default:
		switch {
		case c.IsOvertime:
			b.overtime = b.overtime.Add(amount)
		case c.IsBonus:
			b.bonus = b.bonus.Add(amount)
		case c.IsTaxable:
			b.regularTaxable = b.regularTaxable.Add(amount)
		default:
			b.nonTaxable = b.nonTaxable.Add(amount)
		}
	}
}

func (b *buckets) gross() decimal.Decimal {
	return b.regularTaxable.Add(b.nonTaxable).Add(b.overtime).Add(b.bonus)
}

func (c *Computer) componentByCode(ctx context.Context, code string) (*models.PayComponent, error) {
	var comp models.PayComponent
	err := store.Scoped(ctx, c.db).First(&comp, "code = ?", code).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("pay component %s is not configured", code)
	}
	if err != nil {
		return nil, fmt.Errorf("load component %s: %w", code, err)
	}
	return &comp, nil
}

// ComputeEmployee runs the full pipeline. Errors are per-employee
// facts the orchestrator records as ERROR items; they never abort the
// surrounding run.
func (c *Computer) ComputeEmployee(ctx context.Context, emp *models.Employee, period *models.PayrollPeriod) (*Result, error) {
	twelve := decimal.NewFromInt(12)

	salary, err := c.comp.CurrentSalary(ctx, emp.ID, period.EndDate)
	if err == models.ErrNotFound {
		return nil, fmt.Errorf("no salary record effective at %s", period.EndDate.Format("2006-01-02"))
	}
	if err != nil {
		return nil, err
	}
	basic := salary.BasicSalary
	annualBasic := basic.Mul(twelve)

	pro := proration.Compute(emp.DateOfJoining, emp.DateOfExit, period.StartDate, period.EndDate)
	if pro.DaysPayable == 0 {
		return nil, fmt.Errorf("no payable days in period")
	}

	basicComp, err := c.componentByCode(ctx, models.CodeBasic)
	if err != nil {
		return nil, err
	}

	res := &Result{
		BasicSalary:     basic.Round(2),
		ProrationFactor: pro.Factor,
		DaysPayable:     pro.DaysPayable,
		TotalDays:       pro.TotalDays,
	}
	var bk buckets

	emit := func(comp *models.PayComponent, amount decimal.Decimal) {
		amount = amount.Round(2)
		if amount.IsZero() {
			return
		}
		bk.add(comp, amount)
		res.Details = append(res.Details, Detail{Component: comp, Amount: amount})
	}

	// Step 3.1: basic, prorated per its component flag.
	proratedBasic := basic
	if basicComp.IsProrated {
		proratedBasic = pro.Apply(basic)
	}
	emit(basicComp, proratedBasic)

	// Step 3.2: salary components attached to the salary record.
	salaryComps, err := c.comp.SalaryComponents(ctx, salary.ID)
	if err != nil {
		return nil, err
	}
	covered := map[string]bool{models.CodeBasic: true}
	for i := range salaryComps {
		sc := &salaryComps[i]
		if sc.PayComponent == nil || sc.PayComponent.Code == models.CodeBasic {
			continue
		}
		covered[sc.PayComponent.Code] = true
		amount := sc.Amount
		if sc.PayComponent.IsProrated {
			amount = pro.Apply(amount)
		}
		emit(sc.PayComponent, amount)
	}

	// Step 3.3: approved ad-hoc payments, never prorated.
	adhoc, err := c.overlay.AdHocPayments(ctx, emp.ID, period.ID)
	if err != nil {
		return nil, err
	}
	for i := range adhoc {
		if adhoc[i].PayComponent == nil {
			continue
		}
		emit(adhoc[i].PayComponent, adhoc[i].Amount)
	}

	// Step 3.4: applicable transactions, skipping codes already covered
	// by a salary-component row.
	txs, err := c.overlay.ApplicableTransactions(ctx, emp, period)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		tx := &txs[i]
		if tx.PayComponent == nil || covered[tx.PayComponent.Code] {
			continue
		}
		amount := overlay.Amount(tx, basic, bk.gross())
		if tx.IsRecurring && tx.PayComponent.IsProrated {
			amount = pro.Apply(amount)
		}
		emit(tx.PayComponent, amount)
	}

	// Step 4.
	res.GrossEarnings = bk.gross().Round(2)
	res.TotalOvertime = bk.overtime.Round(2)
	res.TotalBonus = bk.bonus.Round(2)

	// Step 5. SSNIT on the prorated basic when BASIC prorates.
	ssnitBasic := basic
	if basicComp.IsProrated {
		ssnitBasic = proratedBasic
	}
	rates, err := c.book.SSNIT(ctx, period.EndDate)
	if err != nil {
		return nil, err
	}
	ssnit := ComputeSSNIT(ssnitBasic, rates)
	res.SSNITEmployee = ssnit.Employee
	res.SSNITEmployer = ssnit.EmployerTier1
	res.Tier2Employer = ssnit.Tier2Employer

	// Step 6.
	reliefs, err := c.book.Reliefs(ctx, period.EndDate)
	if err != nil {
		return nil, err
	}
	relief := Relief(res.GrossEarnings, reliefs)

	// Steps 7 and 8.
	cfg, err := c.book.OvertimeBonusConfig(ctx, period.EndDate)
	if err != nil {
		return nil, err
	}
	overtimeTax, qualifies := OvertimeTax(bk.overtime, basic, annualBasic, emp.IsResident, cfg)
	overtimeToPAYE := decimal.Zero
	if !qualifies {
		overtimeToPAYE = bk.overtime
		overtimeTax = decimal.Zero
	}
	res.OvertimeTax = overtimeTax

	bonusTax, bonusExcess := BonusTax(bk.bonus, annualBasic, emp.IsResident, cfg)
	res.BonusTax = bonusTax

	// Step 9.
	taxable := bk.regularTaxable.
		Add(overtimeToPAYE).
		Add(bonusExcess).
		Sub(ssnit.Employee).
		Sub(relief).
		Sub(bk.preTaxDeductions)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	res.TaxableIncome = taxable.Round(2)

	// Step 10.
	brackets, err := c.book.Brackets(ctx, period.EndDate)
	if err != nil {
		return nil, err
	}
	res.PAYE = PAYE(res.TaxableIncome, brackets)

	// Step 11.
	if err := c.emitStatutory(ctx, res); err != nil {
		return nil, err
	}

	res.TotalDeductions = bk.otherDeductions.
		Add(bk.preTaxDeductions).
		Add(res.SSNITEmployee).
		Add(res.PAYE).
		Add(res.OvertimeTax).
		Add(res.BonusTax).
		Round(2)
	res.NetSalary = res.GrossEarnings.Sub(res.TotalDeductions).Round(2)
	res.EmployerCost = res.GrossEarnings.
		Add(res.SSNITEmployer).
		Add(res.Tier2Employer).
		Add(bk.employerContrib).
		Round(2)
	return res, nil
}

// emitStatutory appends the SSNIT/PAYE/overtime/bonus deduction rows
// and the tier 2 employer contribution row.
func (c *Computer) emitStatutory(ctx context.Context, res *Result) error {
	type row struct {
		code   string
		amount decimal.Decimal
		always bool
	}
	rows := []row{
		{models.CodeSSNITEmp, res.SSNITEmployee, true},
		{models.CodePAYE, res.PAYE, true},
		{models.CodeOvertimeTax, res.OvertimeTax, false},
		{models.CodeBonusTax, res.BonusTax, false},
		{models.CodeTier2Emp, res.Tier2Employer, false},
	}
	for _, r := range rows {
		if !r.always && !r.amount.IsPositive() {
			continue
		}
		comp, err := c.componentByCode(ctx, r.code)
		if err != nil {
			return err
		}
		res.Details = append(res.Details, Detail{Component: comp, Amount: r.amount})
	}
	return nil
}

// SnapshotBankAccount resolves the primary active account at compute
// time; the orchestrator copies it onto the item so later edits do not
// change a paid run.
func (c *Computer) SnapshotBankAccount(ctx context.Context, employeeID uuid.UUID) (*models.BankAccount, error) {
	var acct models.BankAccount
	err := store.Scoped(ctx, c.db).
		Preload("Bank").
		Where("employee_id = ? AND is_primary = ? AND is_active = ?", employeeID, true, true).
		First(&acct).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bank account: %w", err)
	}
	return &acct, nil
}

// Book exposes the rate book so the backpay engine can restate a
// historical period under the rates effective back then.
func (c *Computer) Book() *ratebook.Book { return c.book }
