package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/engine"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/progress"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// progressEvery is the maximum number of employees between progress
// publications.
const progressEvery = 10

// BackpayApplier applies approved backpay requests onto a run's items.
// Implemented by the backpay engine; kept as an interface so the
// orchestrator tests run without it.
type BackpayApplier interface {
	ApplyToRun(ctx context.Context, requestID, runID uuid.UUID) error
	PendingApproved(ctx context.Context) ([]models.BackpayRequest, error)
}

// keyedMutex serialises lifecycle operations per run.
type keyedMutex struct {
	mu sync.Mutex
	m  map[uuid.UUID]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{m: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *keyedMutex) get(id uuid.UUID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.m[id]
	if !ok {
		m = &sync.Mutex{}
		k.m[id] = m
	}
	return m
}

func (k *keyedMutex) Lock(id uuid.UUID)         { k.get(id).Lock() }
func (k *keyedMutex) Unlock(id uuid.UUID)       { k.get(id).Unlock() }
func (k *keyedMutex) TryLock(id uuid.UUID) bool { return k.get(id).TryLock() }

// Orchestrator computes runs and drives the lifecycle state machine.
type Orchestrator struct {
	db       *gorm.DB
	computer *engine.Computer
	progress *progress.Store
	locks    *keyedMutex

	// Backpay is optional; when nil step 6 of compute is skipped.
	Backpay BackpayApplier
}

// New builds an orchestrator. The progress store may be shared with
// the HTTP layer for polling.
func New(db *gorm.DB, prog *progress.Store) *Orchestrator {
	if prog == nil {
		prog = progress.NewStore(time.Hour)
	}
	return &Orchestrator{
		db:       db,
		computer: engine.New(db),
		progress: prog,
		locks:    newKeyedMutex(),
	}
}

// Progress exposes the board for HTTP polling.
func (o *Orchestrator) Progress() *progress.Store { return o.progress }

// eligibleEmployees lists payable-status employees who joined on or
// before the period end.
func (o *Orchestrator) eligibleEmployees(ctx context.Context, period *models.PayrollPeriod) ([]models.Employee, error) {
	var emps []models.Employee
	err := store.Scoped(ctx, o.db).
		Where("status IN ?", models.PayableStatuses).
		Where("date_of_joining <= ?", period.EndDate).
		Order("employee_number asc").
		Find(&emps).Error
	if err != nil {
		return nil, fmt.Errorf("eligible employees: %w", err)
	}
	return emps, nil
}

// Compute executes the full run computation. Concurrent computes of
// the same run lose with an IllegalTransitionError; per-employee
// failures become ERROR items and never abort the run.
func (o *Orchestrator) Compute(ctx context.Context, runID uuid.UUID, actor string) error {
	if !o.locks.TryLock(runID) {
		return &IllegalTransitionError{Entity: "run", Current: "COMPUTING", Attempted: "compute"}
	}
	defer o.locks.Unlock(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunDraft && run.Status != models.RunComputed && run.Status != models.RunRejected {
		return illegalRun(run.Status, "compute")
	}
	period := run.Period
	if period == nil {
		return fmt.Errorf("run %s has no period", run.RunNumber)
	}
	if period.Status == models.PeriodPaid || period.Status == models.PeriodClosed {
		return illegalPeriod(period.Status, "compute")
	}

	// Idempotent recompute: prior items go first.
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return o.deleteItems(tx, run.ID)
	})
	if err != nil {
		return err
	}

	if err := store.Scoped(ctx, o.db).Model(&models.PayrollRun{}).
		Where("id = ?", run.ID).Update("status", models.RunComputing).Error; err != nil {
		return fmt.Errorf("mark computing: %w", err)
	}

	emps, err := o.eligibleEmployees(ctx, period)
	if err != nil {
		return err
	}

	key := progress.RunKey(run.ID.String())
	o.progress.Start(key, len(emps))
	logger := log.With().Str("run", run.RunNumber).Int("employees", len(emps)).Logger()
	logger.Info().Msg("run compute started")

	tenant := store.TenantID(ctx)
	errorCount := 0
	for i := range emps {
		if o.progress.Cancelled(key) {
			// Leave COMPUTING for reset_to_draft.
			o.progress.Finish(key, progress.StatusCancelled, "cancelled by operator")
			logger.Warn().Int("processed", i).Msg("run compute cancelled")
			return fmt.Errorf("compute cancelled")
		}
		emp := &emps[i]
		if err := o.computeOne(ctx, tenant, run, period, emp); err != nil {
			errorCount++
			logger.Warn().Err(err).Str("employee", emp.EmployeeNumber).Msg("employee compute failed")
			o.writeErrorItem(ctx, tenant, run, emp, err)
		}
		if (i+1)%progressEvery == 0 || i+1 == len(emps) {
			o.progress.Update(key, i+1)
		}
	}

	// Step 6: apply pending approved backpay onto the fresh items.
	if o.Backpay != nil {
		pending, err := o.Backpay.PendingApproved(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("pending backpay lookup failed")
		}
		for _, req := range pending {
			if err := o.Backpay.ApplyToRun(ctx, req.ID, run.ID); err != nil {
				logger.Warn().Err(err).Str("request", req.ID.String()).Msg("backpay apply failed")
			}
		}
	}

	now := time.Now()
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.aggregate(tx, run.ID, tenant); err != nil {
			return err
		}
		if err := tx.Model(&models.PayrollRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status": models.RunComputed, "computed_by": actor, "computed_at": now,
			}).Error; err != nil {
			return fmt.Errorf("mark computed: %w", err)
		}
		if period.Status == models.PeriodOpen || period.Status == models.PeriodProcessing {
			if err := tx.Model(&models.PayrollPeriod{}).Where("id = ?", period.ID).
				Update("status", models.PeriodComputed).Error; err != nil {
				return fmt.Errorf("mark period computed: %w", err)
			}
		}
		detail := fmt.Sprintf("employees=%d errors=%d", len(emps), errorCount)
		return o.audit(ctx, tx, actor, "run.compute", "payroll_run", run.ID, detail)
	})
	if err != nil {
		o.progress.Finish(key, progress.StatusFailed, err.Error())
		return err
	}

	o.progress.Finish(key, progress.StatusCompleted, "")
	logger.Info().Int("errors", errorCount).Msg("run compute finished")
	return nil
}

// computeOne runs the employee pipeline and persists the item with its
// detail rows atomically.
func (o *Orchestrator) computeOne(ctx context.Context, tenant string, run *models.PayrollRun, period *models.PayrollPeriod, emp *models.Employee) error {
	res, err := o.computer.ComputeEmployee(ctx, emp, period)
	if err != nil {
		return err
	}

	item := models.PayrollItem{
		Record:          models.Record{TenantID: tenant},
		PayrollRunID:    run.ID,
		EmployeeID:      emp.ID,
		BasicSalary:     res.BasicSalary,
		GrossEarnings:   res.GrossEarnings,
		TotalDeductions: res.TotalDeductions,
		NetSalary:       res.NetSalary,
		TaxableIncome:   res.TaxableIncome,
		PAYE:            res.PAYE,
		OvertimeTax:     res.OvertimeTax,
		BonusTax:        res.BonusTax,
		TotalOvertime:   res.TotalOvertime,
		TotalBonus:      res.TotalBonus,
		SSNITEmployee:   res.SSNITEmployee,
		SSNITEmployer:   res.SSNITEmployer,
		Tier2Employer:   res.Tier2Employer,
		EmployerCost:    res.EmployerCost,
		ProrationFactor: res.ProrationFactor,
		DaysPayable:     res.DaysPayable,
		TotalDays:       res.TotalDays,
		Status:          models.ItemComputed,
	}

	acct, err := o.computer.SnapshotBankAccount(ctx, emp.ID)
	if err != nil {
		return err
	}
	if acct != nil {
		if acct.Bank != nil {
			item.BankName = acct.Bank.Name
		}
		item.BankBranch = acct.Branch
		item.AccountName = acct.AccountName
		item.AccountNumber = acct.AccountNumber
	}

	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		for _, d := range res.Details {
			detail := models.PayrollItemDetail{
				Record:         models.Record{TenantID: tenant},
				PayrollItemID:  item.ID,
				PayComponentID: d.Component.ID,
				ComponentCode:  d.Component.Code,
				ComponentType:  d.Component.Type,
				Amount:         d.Amount,
			}
			if err := tx.Create(&detail).Error; err != nil {
				return fmt.Errorf("create detail %s: %w", d.Component.Code, err)
			}
		}
		return nil
	})
}

// writeErrorItem records a per-employee failure without aborting the
// run. Best effort: a failing write is only logged.
func (o *Orchestrator) writeErrorItem(ctx context.Context, tenant string, run *models.PayrollRun, emp *models.Employee, cause error) {
	item := models.PayrollItem{
		Record:       models.Record{TenantID: tenant},
		PayrollRunID: run.ID,
		EmployeeID:   emp.ID,
		Status:       models.ItemError,
		ErrorMessage: cause.Error(),
	}
	if err := o.db.WithContext(ctx).Create(&item).Error; err != nil {
		log.Error().Err(err).Str("employee", emp.EmployeeNumber).Msg("error item write failed")
	}
}

// aggregate sums non-error items into the run's summary fields.
func (o *Orchestrator) aggregate(tx *gorm.DB, runID uuid.UUID, tenant string) error {
	var items []models.PayrollItem
	if err := tx.Where("tenant_id = ? AND payroll_run_id = ? AND status <> ?",
		tenant, runID, models.ItemError).Find(&items).Error; err != nil {
		return fmt.Errorf("load items for aggregation: %w", err)
	}

	var run models.PayrollRun
	run.ResetTotals()
	for i := range items {
		it := &items[i]
		run.TotalGross = run.TotalGross.Add(it.GrossEarnings)
		run.TotalDeductions = run.TotalDeductions.Add(it.TotalDeductions)
		run.TotalNet = run.TotalNet.Add(it.NetSalary)
		run.TotalEmployerCost = run.TotalEmployerCost.Add(it.EmployerCost)
		run.TotalPAYE = run.TotalPAYE.Add(it.PAYE)
		run.TotalOvertimeTax = run.TotalOvertimeTax.Add(it.OvertimeTax)
		run.TotalBonusTax = run.TotalBonusTax.Add(it.BonusTax)
		run.TotalSSNITEmployee = run.TotalSSNITEmployee.Add(it.SSNITEmployee)
		run.TotalSSNITEmployer = run.TotalSSNITEmployer.Add(it.SSNITEmployer)
		run.TotalTier2Employer = run.TotalTier2Employer.Add(it.Tier2Employer)
	}

	return tx.Model(&models.PayrollRun{}).Where("id = ?", runID).
		Updates(map[string]interface{}{
			"total_employees":      len(items),
			"total_gross":          run.TotalGross,
			"total_deductions":     run.TotalDeductions,
			"total_net":            run.TotalNet,
			"total_employer_cost":  run.TotalEmployerCost,
			"total_paye":           run.TotalPAYE,
			"total_overtime_tax":   run.TotalOvertimeTax,
			"total_bonus_tax":      run.TotalBonusTax,
			"total_ssnit_employee": run.TotalSSNITEmployee,
			"total_ssnit_employer": run.TotalSSNITEmployer,
			"total_tier2_employer": run.TotalTier2Employer,
		}).Error
}
