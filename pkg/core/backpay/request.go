package backpay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// CreateRequest runs Calculate and persists the request with status
// PREVIEWED plus its per-period detail rows. A range already covered
// by an APPLIED request for the same employee is rejected.
func (e *Engine) CreateRequest(ctx context.Context, in CalcInput) (*models.BackpayRequest, error) {
	if in.Reason == "" {
		return nil, fmt.Errorf("reason is required")
	}
	if in.To.Before(in.From) {
		return nil, fmt.Errorf("effective_to precedes effective_from")
	}

	var applied models.BackpayRequest
	err := store.Scoped(ctx, e.db).
		Where("employee_id = ? AND status = ?", in.EmployeeID, models.BackpayApplied).
		Where("effective_from <= ? AND effective_to >= ?", in.To, in.From).
		First(&applied).Error
	if err == nil {
		return nil, fmt.Errorf("an applied backpay request already covers part of this range")
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("check applied requests: %w", err)
	}

	calc, err := e.Calculate(ctx, in)
	if err != nil {
		return nil, err
	}

	tenant := store.TenantID(ctx)
	req := &models.BackpayRequest{
		Record:                 models.Record{TenantID: tenant},
		EmployeeID:             in.EmployeeID,
		Reason:                 in.Reason,
		EffectiveFrom:          in.From,
		EffectiveTo:            in.To,
		NewSalaryID:            in.NewSalaryID,
		OldSalaryID:            in.OldSalaryID,
		Status:                 models.BackpayPreviewed,
		TotalEarningsArrears:   calc.TotalEarningsArrears,
		TotalDeductionsArrears: calc.TotalDeductionsArrears,
		NetArrears:             calc.NetArrears,
		PeriodCount:            calc.PeriodCount,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		for _, pd := range calc.Periods {
			for _, row := range pd.Rows {
				detail := models.BackpayDetail{
					Record:           models.Record{TenantID: tenant},
					BackpayRequestID: req.ID,
					PayrollPeriodID:  pd.Period.ID,
					PayComponentID:   row.Component.ID,
					ComponentCode:    row.Code,
					ComponentType:    row.Component.Type,
					OldAmount:        row.OldAmount,
					NewAmount:        row.NewAmount,
					Difference:       row.Difference,
				}
				if err := tx.Create(&detail).Error; err != nil {
					return fmt.Errorf("create detail %s: %w", row.Code, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Approve moves a DRAFT or PREVIEWED request to APPROVED.
func (e *Engine) Approve(ctx context.Context, requestID uuid.UUID, approver string) error {
	now := time.Now()
	res := store.Scoped(ctx, e.db).Model(&models.BackpayRequest{}).
		Where("id = ? AND status IN ?", requestID,
			[]models.BackpayStatus{models.BackpayDraft, models.BackpayPreviewed}).
		Updates(map[string]interface{}{
			"status": models.BackpayApproved, "approved_by": approver, "approved_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("approve request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("request not found or not approvable")
	}
	return nil
}

// Cancel withdraws a request that has not yet been applied.
func (e *Engine) Cancel(ctx context.Context, requestID uuid.UUID) error {
	res := store.Scoped(ctx, e.db).Model(&models.BackpayRequest{}).
		Where("id = ? AND status <> ?", requestID, models.BackpayApplied).
		Update("status", models.BackpayCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("request not found or already applied")
	}
	return nil
}

// PendingApproved lists APPROVED requests not yet applied to a run.
func (e *Engine) PendingApproved(ctx context.Context) ([]models.BackpayRequest, error) {
	var reqs []models.BackpayRequest
	err := store.Scoped(ctx, e.db).
		Where("status = ? AND applied_to_run_id IS NULL", models.BackpayApproved).
		Order("created_at asc").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("pending approved: %w", err)
	}
	return reqs, nil
}

// ApplyToRun injects the request's aggregated component deltas into
// the employee's item on the target run as arrear detail rows and
// adjusts the item's totals. APPROVED -> APPLIED is one-way.
func (e *Engine) ApplyToRun(ctx context.Context, requestID, runID uuid.UUID) error {
	var req models.BackpayRequest
	err := store.Scoped(ctx, e.db).Preload("Details").First(&req, "id = ?", requestID).Error
	if err == gorm.ErrRecordNotFound {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	if req.Status != models.BackpayApproved {
		return fmt.Errorf("request is %s, expected APPROVED", req.Status)
	}

	var item models.PayrollItem
	err = store.Scoped(ctx, e.db).
		Where("payroll_run_id = ? AND employee_id = ? AND status <> ?",
			runID, req.EmployeeID, models.ItemError).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return fmt.Errorf("employee has no item in the target run")
	}
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}

	// Aggregate per component across all periods of the request.
	type agg struct {
		componentID   uuid.UUID
		componentType models.ComponentType
		diff          decimal.Decimal
	}
	byCode := make(map[string]*agg)
	order := []string{}
	periodSeen := make(map[uuid.UUID]bool)
	for i := range req.Details {
		d := &req.Details[i]
		periodSeen[d.PayrollPeriodID] = true
		a, ok := byCode[d.ComponentCode]
		if !ok {
			a = &agg{componentID: d.PayComponentID, componentType: d.ComponentType}
			byCode[d.ComponentCode] = a
			order = append(order, d.ComponentCode)
		}
		a.diff = a.diff.Add(d.Difference)
	}
	arrearMonths := len(periodSeen)

	tenant := store.TenantID(ctx)
	now := time.Now()
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		earningsDiff, deductionsDiff := decimal.Zero, decimal.Zero
		for _, code := range order {
			a := byCode[code]
			if a.diff.IsZero() {
				continue
			}
			months := arrearMonths
			detail := models.PayrollItemDetail{
				Record:           models.Record{TenantID: tenant},
				PayrollItemID:    item.ID,
				PayComponentID:   a.componentID,
				ComponentCode:    code,
				ComponentType:    a.componentType,
				Amount:           a.diff.Round(2),
				IsArrear:         true,
				ArrearMonths:     &months,
				BackpayRequestID: &req.ID,
			}
			if err := tx.Create(&detail).Error; err != nil {
				return fmt.Errorf("create arrear detail %s: %w", code, err)
			}
			if a.componentType == models.ComponentEarning {
				earningsDiff = earningsDiff.Add(a.diff)
			} else if a.componentType == models.ComponentDeduction {
				deductionsDiff = deductionsDiff.Add(a.diff)
			}
		}

		gross := item.GrossEarnings.Add(earningsDiff).Round(2)
		deductions := item.TotalDeductions.Add(deductionsDiff).Round(2)
		net := gross.Sub(deductions).Round(2)
		if err := tx.Model(&models.PayrollItem{}).Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"gross_earnings":   gross,
				"total_deductions": deductions,
				"net_salary":       net,
			}).Error; err != nil {
			return fmt.Errorf("update item totals: %w", err)
		}

		res := tx.Model(&models.BackpayRequest{}).
			Where("id = ? AND status = ?", req.ID, models.BackpayApproved).
			Updates(map[string]interface{}{
				"status": models.BackpayApplied, "applied_to_run_id": runID, "applied_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("mark applied: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("request was applied concurrently")
		}
		return nil
	})
}
