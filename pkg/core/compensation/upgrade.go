package compensation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// ApproveUpgrade approves a pending salary upgrade request. The
// approval is side-effecting: a new EmployeeSalary is created at the
// new notch amount, the prior salary closed, an EmploymentHistory row
// written, and when the effective date precedes the start of the
// active (OPEN/PROCESSING) period a DRAFT BackpayRequest is created
// for the operator to preview.
func (g *Graph) ApproveUpgrade(ctx context.Context, requestID uuid.UUID, approver string) (*models.SalaryUpgradeRequest, error) {
	var req models.SalaryUpgradeRequest
	err := store.Scoped(ctx, g.db).Preload("NewNotch").First(&req, "id = ?", requestID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load upgrade request: %w", err)
	}
	if req.Status != models.UpgradePending {
		return nil, fmt.Errorf("upgrade request is %s, expected PENDING", req.Status)
	}
	if req.NewNotch == nil {
		return nil, fmt.Errorf("upgrade request has no target notch")
	}

	tenant := store.TenantID(ctx)
	now := time.Now()

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var oldSalary models.EmployeeSalary
		var oldSalaryID *uuid.UUID
		findErr := tx.Where("tenant_id = ? AND employee_id = ? AND is_current = ?", tenant, req.EmployeeID, true).
			First(&oldSalary).Error
		if findErr == nil {
			oldSalaryID = &oldSalary.ID
			closeDate := req.EffectiveFrom.AddDate(0, 0, -1)
			if err := tx.Model(&models.EmployeeSalary{}).Where("id = ?", oldSalary.ID).
				Updates(map[string]interface{}{"is_current": false, "effective_to": closeDate}).Error; err != nil {
				return fmt.Errorf("close prior salary: %w", err)
			}
		} else if findErr != gorm.ErrRecordNotFound {
			return fmt.Errorf("load prior salary: %w", findErr)
		}

		newSalary := models.EmployeeSalary{
			Record:        models.Record{TenantID: tenant},
			EmployeeID:    req.EmployeeID,
			BasicSalary:   req.NewNotch.BaseAmount,
			SalaryNotchID: &req.NewNotchID,
			EffectiveFrom: req.EffectiveFrom,
			IsCurrent:     true,
		}
		if err := tx.Create(&newSalary).Error; err != nil {
			return fmt.Errorf("create salary: %w", err)
		}

		history := models.EmploymentHistory{
			Record:        models.Record{TenantID: tenant},
			EmployeeID:    req.EmployeeID,
			ChangeType:    models.HistoryPromotion,
			EffectiveDate: req.EffectiveFrom,
			GradeID:       req.NewGradeID,
			Position:      req.NewPosition,
			OldSalaryID:   oldSalaryID,
			NewSalaryID:   &newSalary.ID,
			Notes:         req.Reason,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("write employment history: %w", err)
		}

		updates := map[string]interface{}{"salary_notch_id": req.NewNotchID}
		if req.NewGradeID != nil {
			updates["grade_id"] = *req.NewGradeID
		}
		if req.NewPosition != "" {
			updates["position"] = req.NewPosition
		}
		if err := tx.Model(&models.Employee{}).Where("id = ?", req.EmployeeID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("update employee: %w", err)
		}

		// Backdated into a period that already started: raise a draft
		// backpay request for the operator.
		var active models.PayrollPeriod
		activeErr := tx.Where("tenant_id = ? AND status IN ? AND is_supplementary = ?",
			tenant, []models.PeriodStatus{models.PeriodOpen, models.PeriodProcessing}, false).
			Order("start_date asc").First(&active).Error
		if activeErr == nil && req.EffectiveFrom.Before(active.StartDate) {
			backpay := models.BackpayRequest{
				Record:        models.Record{TenantID: tenant},
				EmployeeID:    req.EmployeeID,
				Reason:        fmt.Sprintf("Salary upgrade effective %s", req.EffectiveFrom.Format("2006-01-02")),
				EffectiveFrom: req.EffectiveFrom,
				EffectiveTo:   active.StartDate.AddDate(0, 0, -1),
				NewSalaryID:   &newSalary.ID,
				OldSalaryID:   oldSalaryID,
				Status:        models.BackpayDraft,
			}
			if err := tx.Create(&backpay).Error; err != nil {
				return fmt.Errorf("create backpay request: %w", err)
			}
		} else if activeErr != nil && activeErr != gorm.ErrRecordNotFound {
			return fmt.Errorf("load active period: %w", activeErr)
		}

		req.Status = models.UpgradeApproved
		req.ApprovedBy = approver
		req.ApprovedAt = &now
		if err := tx.Model(&models.SalaryUpgradeRequest{}).Where("id = ?", req.ID).
			Updates(map[string]interface{}{"status": req.Status, "approved_by": approver, "approved_at": now}).Error; err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// RejectUpgrade marks a pending request rejected.
func (g *Graph) RejectUpgrade(ctx context.Context, requestID uuid.UUID, approver string) error {
	res := store.Scoped(ctx, g.db).Model(&models.SalaryUpgradeRequest{}).
		Where("id = ? AND status = ?", requestID, models.UpgradePending).
		Updates(map[string]interface{}{"status": models.UpgradeRejected, "approved_by": approver})
	if res.Error != nil {
		return fmt.Errorf("reject upgrade: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("upgrade request not found or not pending")
	}
	return nil
}
