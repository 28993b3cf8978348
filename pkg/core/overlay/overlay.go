// Package overlay implements employee transactions: dated, versioned
// modifiers that add or replace a pay component value for an employee,
// grade or salary band. Value changes version the row rather than
// updating it, so historical periods recompute deterministically.
package overlay

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/formula"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// Service answers overlay queries and owns the versioned write path.
type Service struct {
	db *gorm.DB
}

// New creates an overlay service.
func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// bandOf resolves the employee's salary band: first through the
// grade's band, then through the notch's level.
func (s *Service) bandOf(ctx context.Context, emp *models.Employee) (*uuid.UUID, error) {
	if emp.GradeID != nil {
		var grade models.Grade
		err := store.Scoped(ctx, s.db).First(&grade, "id = ?", *emp.GradeID).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("load grade: %w", err)
		}
		if err == nil && grade.SalaryBandID != nil {
			return grade.SalaryBandID, nil
		}
	}
	if emp.SalaryNotchID != nil {
		var notch models.SalaryNotch
		err := store.Scoped(ctx, s.db).Preload("Level").First(&notch, "id = ?", *emp.SalaryNotchID).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("load notch: %w", err)
		}
		if err == nil && notch.Level != nil {
			return &notch.Level.BandID, nil
		}
	}
	return nil, nil
}

// ApplicableTransactions returns the current-version ACTIVE
// transactions that overlap the period and target the employee
// individually, by grade, or by band. One-shot transactions must be
// bound to this exact period.
func (s *Service) ApplicableTransactions(ctx context.Context, emp *models.Employee, period *models.PayrollPeriod) ([]models.EmployeeTransaction, error) {
	return s.applicable(ctx, emp, period, emp.GradeID)
}

// ApplicableTransactionsWithGrade mirrors ApplicableTransactions with
// an explicit grade, used by the backpay engine when reconstructing a
// historical period under the grade the employee held then.
func (s *Service) ApplicableTransactionsWithGrade(ctx context.Context, emp *models.Employee, period *models.PayrollPeriod, gradeID *uuid.UUID) ([]models.EmployeeTransaction, error) {
	return s.applicable(ctx, emp, period, gradeID)
}

func (s *Service) applicable(ctx context.Context, emp *models.Employee, period *models.PayrollPeriod, gradeID *uuid.UUID) ([]models.EmployeeTransaction, error) {
	bandID, err := s.bandOf(ctx, emp)
	if err != nil {
		return nil, err
	}

	q := store.Scoped(ctx, s.db).
		Preload("PayComponent").
		Where("is_current_version = ? AND status = ?", true, models.TransactionActive).
		Where("effective_from <= ?", period.EndDate).
		Where("effective_to IS NULL OR effective_to >= ?", period.StartDate).
		Where("is_recurring = ? OR payroll_period_id = ?", true, period.ID)

	target := s.db.Where("target_type = ? AND employee_id = ?", models.TargetIndividual, emp.ID)
	if gradeID != nil {
		target = target.Or("target_type = ? AND grade_id = ?", models.TargetGrade, *gradeID)
	}
	if bandID != nil {
		target = target.Or("target_type = ? AND band_id = ?", models.TargetBand, *bandID)
	}
	q = q.Where(target)

	var txs []models.EmployeeTransaction
	if err := q.Order("effective_from asc").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("applicable transactions: %w", err)
	}
	return txs, nil
}

// Amount derives the transaction's value over its pay component given
// the employee's basic and running gross. Formula failures come back
// as zero, consistent with the evaluator contract.
func Amount(t *models.EmployeeTransaction, basic, gross decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	switch t.OverrideType {
	case models.OverrideFixed:
		return t.Amount.Round(2)
	case models.OverridePct:
		return basic.Mul(t.Percentage).Div(hundred).Round(2)
	case models.OverrideFormula:
		return formula.EvalOrZero(t.Formula, formula.Binding{Basic: basic, Gross: gross})
	}

	// NONE: fall through to the component's own calculation kind.
	c := t.PayComponent
	if c == nil {
		return decimal.Zero
	}
	switch c.CalcKind {
	case models.CalcPctOfBasic:
		return basic.Mul(c.Percentage).Div(hundred).Round(2)
	case models.CalcPctOfGross:
		return gross.Mul(c.Percentage).Div(hundred).Round(2)
	case models.CalcFormula:
		return formula.EvalOrZero(c.Formula, formula.Binding{Basic: basic, Gross: gross})
	default:
		return c.Amount.Round(2)
	}
}
