// Package run owns payroll run orchestration and the run/period
// lifecycle state machine. All transitions on one run are serialised
// by a run-scoped mutex; illegal transitions fail with a typed error
// carrying the current and attempted states.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// IllegalTransitionError reports a forbidden lifecycle move.
type IllegalTransitionError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition from %s to %s", e.Entity, e.Current, e.Attempted)
}

func illegalRun(current models.RunStatus, attempted string) error {
	return &IllegalTransitionError{Entity: "run", Current: string(current), Attempted: attempted}
}

func illegalPeriod(current models.PeriodStatus, attempted string) error {
	return &IllegalTransitionError{Entity: "period", Current: string(current), Attempted: attempted}
}

func (o *Orchestrator) loadRun(ctx context.Context, runID uuid.UUID) (*models.PayrollRun, error) {
	var run models.PayrollRun
	err := store.Scoped(ctx, o.db).Preload("Period").First(&run, "id = ?", runID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return &run, nil
}

func (o *Orchestrator) audit(ctx context.Context, tx *gorm.DB, actor, action, entityType string, entityID uuid.UUID, detail string) error {
	entry := models.AuditLog{
		Record:     models.Record{TenantID: store.TenantID(ctx)},
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID.String(),
		Detail:     detail,
	}
	return tx.Create(&entry).Error
}

// CreateRun opens a new run over the period with the next sequential
// run number (PR-YYYYMM-NNN).
func (o *Orchestrator) CreateRun(ctx context.Context, periodID uuid.UUID) (*models.PayrollRun, error) {
	var period models.PayrollPeriod
	err := store.Scoped(ctx, o.db).Preload("Calendar").First(&period, "id = ?", periodID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load period: %w", err)
	}
	if period.Status == models.PeriodPaid || period.Status == models.PeriodClosed {
		return nil, illegalPeriod(period.Status, "create_run")
	}

	year, month := period.StartDate.Year(), int(period.StartDate.Month())
	if period.Calendar != nil {
		year, month = period.Calendar.Year, period.Calendar.Month
	}

	run := &models.PayrollRun{
		Record:          models.Record{TenantID: store.TenantID(ctx)},
		PayrollPeriodID: period.ID,
		Status:          models.RunDraft,
	}
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PayrollRun{}).
			Where("tenant_id = ? AND payroll_period_id = ?", run.TenantID, period.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count runs: %w", err)
		}
		run.RunNumber = models.FormatRunNumber(year, month, int(count)+1)
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Period = &period
	return run, nil
}

// Approve moves a COMPUTED run with zero error items to APPROVED,
// promotes its items and the period.
func (o *Orchestrator) Approve(ctx context.Context, runID uuid.UUID, approver string) error {
	o.locks.Lock(runID)
	defer o.locks.Unlock(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunComputed {
		return illegalRun(run.Status, "approve")
	}

	var errorItems int64
	if err := store.Scoped(ctx, o.db).Model(&models.PayrollItem{}).
		Where("payroll_run_id = ? AND status = ?", run.ID, models.ItemError).
		Count(&errorItems).Error; err != nil {
		return fmt.Errorf("count error items: %w", err)
	}
	if errorItems > 0 {
		return fmt.Errorf("run has %d error items, resolve them before approval", errorItems)
	}

	now := time.Now()
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PayrollRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status": models.RunApproved, "approved_by": approver, "approved_at": now,
			}).Error; err != nil {
			return fmt.Errorf("approve run: %w", err)
		}
		if err := tx.Model(&models.PayrollItem{}).
			Where("payroll_run_id = ? AND status = ?", run.ID, models.ItemComputed).
			Update("status", models.ItemApproved).Error; err != nil {
			return fmt.Errorf("approve items: %w", err)
		}
		if err := tx.Model(&models.PayrollPeriod{}).Where("id = ?", run.PayrollPeriodID).
			Update("status", models.PeriodApproved).Error; err != nil {
			return fmt.Errorf("approve period: %w", err)
		}
		return o.audit(ctx, tx, approver, "run.approve", "payroll_run", run.ID, run.RunNumber)
	})
}

// Reject sends a COMPUTED or REVIEWING run back; the period reopens.
func (o *Orchestrator) Reject(ctx context.Context, runID uuid.UUID, actor, reason string) error {
	o.locks.Lock(runID)
	defer o.locks.Unlock(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunComputed && run.Status != models.RunReviewing {
		return illegalRun(run.Status, "reject")
	}

	now := time.Now()
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PayrollRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status": models.RunRejected, "rejected_by": actor, "rejected_at": now, "notes": reason,
			}).Error; err != nil {
			return fmt.Errorf("reject run: %w", err)
		}
		if err := tx.Model(&models.PayrollPeriod{}).Where("id = ?", run.PayrollPeriodID).
			Update("status", models.PeriodOpen).Error; err != nil {
			return fmt.Errorf("reopen period: %w", err)
		}
		return o.audit(ctx, tx, actor, "run.reject", "payroll_run", run.ID, reason)
	})
}

// ProcessPayment drives APPROVED through PROCESSING_PAYMENT to PAID,
// stamping every approved item with the payment date and reference.
func (o *Orchestrator) ProcessPayment(ctx context.Context, runID uuid.UUID, actor string) error {
	o.locks.Lock(runID)
	defer o.locks.Unlock(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunApproved {
		return illegalRun(run.Status, "process_payment")
	}

	if err := store.Scoped(ctx, o.db).Model(&models.PayrollRun{}).Where("id = ?", run.ID).
		Update("status", models.RunProcessingPayment).Error; err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	now := time.Now()
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.PayrollItem
		if err := tx.Preload("Employee").
			Where("payroll_run_id = ? AND status = ?", run.ID, models.ItemApproved).
			Find(&items).Error; err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		for i := range items {
			it := &items[i]
			ref := fmt.Sprintf("%s-%s", run.RunNumber, it.EmployeeID)
			if it.Employee != nil {
				ref = fmt.Sprintf("%s-%s", run.RunNumber, it.Employee.EmployeeNumber)
			}
			if err := tx.Model(&models.PayrollItem{}).Where("id = ?", it.ID).
				Updates(map[string]interface{}{
					"status": models.ItemPaid, "paid_at": now, "payment_reference": ref,
				}).Error; err != nil {
				return fmt.Errorf("pay item: %w", err)
			}
		}
		if err := tx.Model(&models.PayrollRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{"status": models.RunPaid, "paid_at": now}).Error; err != nil {
			return fmt.Errorf("mark run paid: %w", err)
		}
		if err := tx.Model(&models.PayrollPeriod{}).Where("id = ?", run.PayrollPeriodID).
			Updates(map[string]interface{}{"status": models.PeriodPaid, "payment_date": now}).Error; err != nil {
			return fmt.Errorf("mark period paid: %w", err)
		}
		return o.audit(ctx, tx, actor, "run.process_payment", "payroll_run", run.ID, run.RunNumber)
	})
	if err != nil {
		// Leave the run in PROCESSING_PAYMENT for the operator.
		log.Error().Err(err).Str("run", run.RunNumber).Msg("payment processing failed")
		return err
	}
	return nil
}

// ResetToDraft deletes the run's items and zeroes its summary. Only
// COMPUTED/REJECTED runs whose period is not PAID/CLOSED reset.
func (o *Orchestrator) ResetToDraft(ctx context.Context, runID uuid.UUID, actor string) error {
	o.locks.Lock(runID)
	defer o.locks.Unlock(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunComputed && run.Status != models.RunRejected && run.Status != models.RunComputing {
		return illegalRun(run.Status, "reset_to_draft")
	}
	if run.Period != nil && (run.Period.Status == models.PeriodPaid || run.Period.Status == models.PeriodClosed) {
		return illegalPeriod(run.Period.Status, "reset_to_draft")
	}

	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.deleteItems(tx, run.ID); err != nil {
			return err
		}
		run.ResetTotals()
		if err := tx.Model(&models.PayrollRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":               models.RunDraft,
				"total_employees":      0,
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
			}).Error; err != nil {
			return fmt.Errorf("reset run: %w", err)
		}
		return o.audit(ctx, tx, actor, "run.reset_to_draft", "payroll_run", run.ID, run.RunNumber)
	})
}

// Delete soft-deletes a DRAFT run.
func (o *Orchestrator) Delete(ctx context.Context, runID uuid.UUID, actor string) error {
	o.locks.Lock(runID)
	defer o.locks.Unlock(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunDraft {
		return illegalRun(run.Status, "delete")
	}
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PayrollRun{}).Where("id = ?", run.ID).
			Update("is_deleted", true).Error; err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		return o.audit(ctx, tx, actor, "run.delete", "payroll_run", run.ID, run.RunNumber)
	})
}

// ReopenInput parameterises a period reopen.
type ReopenInput struct {
	Force     bool
	Reason    string
	ResetRuns bool
	Actor     string
}

// Reopen returns a period to OPEN. PAID/CLOSED periods require force
// plus a reason; ResetRuns optionally demotes the period's runs.
func (o *Orchestrator) Reopen(ctx context.Context, periodID uuid.UUID, in ReopenInput) error {
	var period models.PayrollPeriod
	err := store.Scoped(ctx, o.db).First(&period, "id = ?", periodID).Error
	if err == gorm.ErrRecordNotFound {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load period: %w", err)
	}
	if period.Status == models.PeriodOpen {
		return illegalPeriod(period.Status, "reopen")
	}
	if period.Status == models.PeriodPaid || period.Status == models.PeriodClosed {
		if !in.Force {
			return fmt.Errorf("reopening a %s period requires force", period.Status)
		}
		if in.Reason == "" {
			return fmt.Errorf("reopening a %s period requires a reason", period.Status)
		}
	}

	runsReset := 0
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ResetRuns {
			var runs []models.PayrollRun
			if err := tx.Where("tenant_id = ? AND payroll_period_id = ? AND is_deleted = ?",
				store.TenantID(ctx), period.ID, false).Find(&runs).Error; err != nil {
				return fmt.Errorf("load runs: %w", err)
			}
			for i := range runs {
				var target models.RunStatus
				switch runs[i].Status {
				case models.RunComputed, models.RunApproved, models.RunReviewing:
					target = models.RunDraft
				case models.RunPaid, models.RunReversed:
					target = models.RunRejected
				default:
					continue
				}
				if target == models.RunDraft {
					if err := o.deleteItems(tx, runs[i].ID); err != nil {
						return err
					}
				}
				if err := tx.Model(&models.PayrollRun{}).Where("id = ?", runs[i].ID).
					Update("status", target).Error; err != nil {
					return fmt.Errorf("reset run %s: %w", runs[i].RunNumber, err)
				}
				runsReset++
			}
		}
		if err := tx.Model(&models.PayrollPeriod{}).Where("id = ?", period.ID).
			Update("status", models.PeriodOpen).Error; err != nil {
			return fmt.Errorf("reopen period: %w", err)
		}
		detail := fmt.Sprintf("previous_status=%s reason=%q force=%t runs_reset=%d",
			period.Status, in.Reason, in.Force, runsReset)
		return o.audit(ctx, tx, in.Actor, "period.reopen", "payroll_period", period.ID, detail)
	})
	return err
}

// Close finalises a PAID or APPROVED period.
func (o *Orchestrator) Close(ctx context.Context, periodID uuid.UUID, actor string) error {
	var period models.PayrollPeriod
	err := store.Scoped(ctx, o.db).First(&period, "id = ?", periodID).Error
	if err == gorm.ErrRecordNotFound {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load period: %w", err)
	}
	if period.Status != models.PeriodPaid && period.Status != models.PeriodApproved {
		return illegalPeriod(period.Status, "close")
	}
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PayrollPeriod{}).Where("id = ?", period.ID).
			Update("status", models.PeriodClosed).Error; err != nil {
			return fmt.Errorf("close period: %w", err)
		}
		return o.audit(ctx, tx, actor, "period.close", "payroll_period", period.ID, "")
	})
}

// deleteItems hard-removes a run's items and their details; the run
// itself survives and is recomputed or reset.
func (o *Orchestrator) deleteItems(tx *gorm.DB, runID uuid.UUID) error {
	var itemIDs []uuid.UUID
	if err := tx.Model(&models.PayrollItem{}).
		Where("payroll_run_id = ?", runID).
		Pluck("id", &itemIDs).Error; err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	if len(itemIDs) == 0 {
		return nil
	}
	if err := tx.Where("payroll_item_id IN ?", itemIDs).
		Delete(&models.PayrollItemDetail{}).Error; err != nil {
		return fmt.Errorf("delete details: %w", err)
	}
	if err := tx.Where("payroll_run_id = ?", runID).
		Delete(&models.PayrollItem{}).Error; err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}
