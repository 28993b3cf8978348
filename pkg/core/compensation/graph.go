// Package compensation owns the compensation graph: employee salaries
// and their component overrides, salary structures, and the Band ->
// Level -> Notch hierarchy. Historical rows are immutable; every write
// closes the prior record and inserts a new one, which is what the
// backpay engine's temporal queries depend on.
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

// Graph answers compensation queries and applies salary writes.
type Graph struct {
	db *gorm.DB
}

// New creates a compensation graph over the given connection.
func New(db *gorm.DB) *Graph {
	return &Graph{db: db}
}

// CurrentSalary returns the employee salary effective at asOf: the row
// with the greatest effective_from not after asOf.
func (g *Graph) CurrentSalary(ctx context.Context, employeeID uuid.UUID, asOf time.Time) (*models.EmployeeSalary, error) {
	var salary models.EmployeeSalary
	err := store.Scoped(ctx, g.db).
		Where("employee_id = ?", employeeID).
		Where("effective_from <= ?", asOf).
		Order("effective_from desc").
		First(&salary).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("current salary: %w", err)
	}
	return &salary, nil
}

// SalaryComponents lists the active component overrides of a salary
// record, with the pay component preloaded.
func (g *Graph) SalaryComponents(ctx context.Context, salaryID uuid.UUID) ([]models.EmployeeSalaryComponent, error) {
	var comps []models.EmployeeSalaryComponent
	err := store.Scoped(ctx, g.db).
		Preload("PayComponent").
		Where("employee_salary_id = ? AND is_active = ?", salaryID, true).
		Find(&comps).Error
	if err != nil {
		return nil, fmt.Errorf("salary components: %w", err)
	}
	return comps, nil
}

// StructureComponents lists the active components of a salary structure.
func (g *Graph) StructureComponents(ctx context.Context, structureID uuid.UUID) ([]models.SalaryStructureComponent, error) {
	var comps []models.SalaryStructureComponent
	err := store.Scoped(ctx, g.db).
		Preload("PayComponent").
		Where("structure_id = ? AND is_active = ?", structureID, true).
		Find(&comps).Error
	if err != nil {
		return nil, fmt.Errorf("structure components: %w", err)
	}
	return comps, nil
}

// SetSalary writes a new salary record for the employee effective at
// effectiveFrom, closing out the current record. The superseded row is
// never touched again.
func (g *Graph) SetSalary(ctx context.Context, salary *models.EmployeeSalary) error {
	if salary.EmployeeID == uuid.Nil {
		return fmt.Errorf("employee is required")
	}
	if salary.EffectiveFrom.IsZero() {
		return fmt.Errorf("effective_from is required")
	}
	salary.TenantID = store.TenantID(ctx)
	salary.IsCurrent = true

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closeDate := salary.EffectiveFrom.AddDate(0, 0, -1)
		err := tx.Model(&models.EmployeeSalary{}).
			Where("tenant_id = ? AND employee_id = ? AND is_current = ?", salary.TenantID, salary.EmployeeID, true).
			Updates(map[string]interface{}{"is_current": false, "effective_to": closeDate}).Error
		if err != nil {
			return fmt.Errorf("close prior salary: %w", err)
		}
		if err := tx.Create(salary).Error; err != nil {
			return fmt.Errorf("create salary: %w", err)
		}
		return nil
	})
}

// GradeAt resolves the employee's grade as of a date from the
// employment history ledger, falling back to the current grade.
func (g *Graph) GradeAt(ctx context.Context, employee *models.Employee, asOf time.Time) (*uuid.UUID, error) {
	var change models.EmploymentHistory
	err := store.Scoped(ctx, g.db).
		Where("employee_id = ?", employee.ID).
		Where("change_type IN ?", []models.HistoryChangeType{
			models.HistoryPromotion, models.HistoryGradeChange, models.HistoryDemotion, models.HistoryHire,
		}).
		Where("effective_date <= ?", asOf).
		Where("grade_id IS NOT NULL").
		Order("effective_date desc").
		First(&change).Error
	if err == nil && change.GradeID != nil {
		return change.GradeID, nil
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("grade history: %w", err)
	}
	return employee.GradeID, nil
}
