package overlay

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

// ErrOverlap rejects a second current version for the same logical
// transaction key.
type ErrOverlap struct {
	ExistingID uuid.UUID
}

func (e *ErrOverlap) Error() string {
	return fmt.Sprintf("a current transaction already exists for this target and component (id %s)", e.ExistingID)
}

func validateTarget(t *models.EmployeeTransaction) error {
	switch t.TargetType {
	case models.TargetIndividual:
		if t.EmployeeID == nil {
			return fmt.Errorf("individual transaction requires an employee")
		}
	case models.TargetGrade:
		if t.GradeID == nil {
			return fmt.Errorf("grade transaction requires a grade")
		}
	case models.TargetBand:
		if t.BandID == nil {
			return fmt.Errorf("band transaction requires a band")
		}
	default:
		return fmt.Errorf("invalid target type %q", t.TargetType)
	}
	if t.PayComponentID == uuid.Nil {
		return fmt.Errorf("pay component is required")
	}
	if t.EffectiveFrom.IsZero() {
		return fmt.Errorf("effective_from is required")
	}
	if t.EffectiveTo != nil && t.EffectiveTo.Before(t.EffectiveFrom) {
		return fmt.Errorf("effective_to precedes effective_from")
	}
	if !t.IsRecurring && t.PayrollPeriodID == nil {
		return fmt.Errorf("one-shot transaction requires a payroll period")
	}
	return nil
}

// logicalKey scopes the uniqueness check to the transaction's target.
func logicalKey(q *gorm.DB, t *models.EmployeeTransaction) *gorm.DB {
	q = q.Where("target_type = ? AND pay_component_id = ? AND is_current_version = ?",
		t.TargetType, t.PayComponentID, true)
	switch t.TargetType {
	case models.TargetIndividual:
		q = q.Where("employee_id = ?", *t.EmployeeID)
	case models.TargetGrade:
		q = q.Where("grade_id = ?", *t.GradeID)
	case models.TargetBand:
		q = q.Where("band_id = ?", *t.BandID)
	}
	return q
}

// CreateTransaction writes version 1 of a new transaction. A current
// version already covering the same (target, component) key is
// rejected with ErrOverlap; callers change values via
// UpdateTransaction so history stays intact.
func (s *Service) CreateTransaction(ctx context.Context, t *models.EmployeeTransaction) error {
	if err := validateTarget(t); err != nil {
		return err
	}
	t.TenantID = store.TenantID(ctx)
	t.Version = 1
	t.IsCurrentVersion = true
	t.ParentID = nil
	if t.Status == "" {
		t.Status = models.TransactionPending
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.EmployeeTransaction
		err := logicalKey(store.Scoped(ctx, tx).Where("status NOT IN ?",
			[]models.TransactionStatus{models.TransactionCancelled, models.TransactionCompleted}), t).
			First(&existing).Error
		if err == nil {
			return &ErrOverlap{ExistingID: existing.ID}
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("check overlap: %w", err)
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return nil
	})
}

// UpdateInput carries the fields a new version may change.
type UpdateInput struct {
	OverrideType models.OverrideType
	Amount       decimal.Decimal
	Percentage   decimal.Decimal
	Formula      string
	// EffectiveFrom of the new version; the prior version is closed
	// the day before.
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Reason        string
}

// UpdateTransaction supersedes the current version: the existing row
// is closed at EffectiveFrom-1 and a version+1 row is written sharing
// the same root.
func (s *Service) UpdateTransaction(ctx context.Context, transactionID uuid.UUID, in UpdateInput) (*models.EmployeeTransaction, error) {
	if in.EffectiveFrom.IsZero() {
		return nil, fmt.Errorf("effective_from is required")
	}

	var next models.EmployeeTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.EmployeeTransaction
		err := store.Scoped(ctx, tx).
			Where("is_current_version = ?", true).
			First(&current, "id = ?", transactionID).Error
		if err == gorm.ErrRecordNotFound {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if in.EffectiveFrom.Before(current.EffectiveFrom) {
			return fmt.Errorf("new version cannot start before the current version")
		}

		closeDate := in.EffectiveFrom.AddDate(0, 0, -1)
		if err := tx.Model(&models.EmployeeTransaction{}).Where("id = ?", current.ID).
			Updates(map[string]interface{}{"is_current_version": false, "effective_to": closeDate}).Error; err != nil {
			return fmt.Errorf("close current version: %w", err)
		}

		root := current.RootID()
		next = current
		next.ID = uuid.Nil
		next.Version = current.Version + 1
		next.IsCurrentVersion = true
		next.ParentID = &root
		next.OverrideType = in.OverrideType
		next.Amount = in.Amount
		next.Percentage = in.Percentage
		next.Formula = in.Formula
		next.EffectiveFrom = in.EffectiveFrom
		next.EffectiveTo = in.EffectiveTo
		if in.Reason != "" {
			next.Reason = in.Reason
		}
		if err := tx.Create(&next).Error; err != nil {
			return fmt.Errorf("create new version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// SetStatus moves a transaction through its lifecycle. Terminal states
// (COMPLETED, CANCELLED) cannot be left.
func (s *Service) SetStatus(ctx context.Context, transactionID uuid.UUID, status models.TransactionStatus) error {
	res := store.Scoped(ctx, s.db).Model(&models.EmployeeTransaction{}).
		Where("id = ? AND status NOT IN ?", transactionID,
			[]models.TransactionStatus{models.TransactionCompleted, models.TransactionCancelled}).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("set status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction not found or already terminal")
	}
	return nil
}

// AdHocPayments lists the approved ad-hoc payments for an employee and
// period. They are added as-is, never prorated.
func (s *Service) AdHocPayments(ctx context.Context, employeeID, periodID uuid.UUID) ([]models.AdHocPayment, error) {
	var pays []models.AdHocPayment
	err := store.Scoped(ctx, s.db).
		Preload("PayComponent").
		Where("employee_id = ? AND payroll_period_id = ? AND is_approved = ?", employeeID, periodID, true).
		Find(&pays).Error
	if err != nil {
		return nil, fmt.Errorf("adhoc payments: %w", err)
	}
	return pays, nil
}
