package backpay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// Change is one backdated fact touching a settled period.
type Change struct {
	Type             string
	Description      string
	AffectedPeriodID uuid.UUID
	CreatedAt        time.Time
}

// Candidate groups an employee's backdated changes. The detector only
// surfaces candidates; creating a request is the operator's decision.
type Candidate struct {
	Employee        *models.Employee
	Changes         []Change
	AffectedPeriods []uuid.UUID
	EarliestFrom    time.Time
	LatestTo        time.Time
}

// Scan finds compensation facts recorded after their period settled,
// restricted to facts created within the currently active period's
// window so the same change is not re-reported every month.
func (e *Engine) Scan(ctx context.Context) ([]Candidate, error) {
	var active models.PayrollPeriod
	err := store.Scoped(ctx, e.db).
		Where("status IN ?", []models.PeriodStatus{models.PeriodOpen, models.PeriodProcessing}).
		Where("is_supplementary = ?", false).
		Order("start_date asc").
		First(&active).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active period: %w", err)
	}

	var settled []models.PayrollPeriod
	err = store.Scoped(ctx, e.db).
		Where("status IN ?", []models.PeriodStatus{models.PeriodPaid, models.PeriodClosed}).
		Where("is_supplementary = ?", false).
		Order("start_date asc").
		Find(&settled).Error
	if err != nil {
		return nil, fmt.Errorf("load settled periods: %w", err)
	}

	covered, err := e.coveredEmployees(ctx)
	if err != nil {
		return nil, err
	}

	byEmployee := make(map[uuid.UUID]*Candidate)
	record := func(employeeID uuid.UUID, period *models.PayrollPeriod, ch Change) error {
		if covered[employeeID] {
			return nil
		}
		cand, ok := byEmployee[employeeID]
		if !ok {
			var emp models.Employee
			if err := store.Scoped(ctx, e.db).First(&emp, "id = ?", employeeID).Error; err != nil {
				return fmt.Errorf("load employee: %w", err)
			}
			cand = &Candidate{
				Employee:     &emp,
				EarliestFrom: period.StartDate,
				LatestTo:     period.EndDate,
			}
			byEmployee[employeeID] = cand
		}
		cand.Changes = append(cand.Changes, ch)
		seen := false
		for _, pid := range cand.AffectedPeriods {
			if pid == period.ID {
				seen = true
				break
			}
		}
		if !seen {
			cand.AffectedPeriods = append(cand.AffectedPeriods, period.ID)
		}
		if period.StartDate.Before(cand.EarliestFrom) {
			cand.EarliestFrom = period.StartDate
		}
		if period.EndDate.After(cand.LatestTo) {
			cand.LatestTo = period.EndDate
		}
		return nil
	}

	for i := range settled {
		p := &settled[i]

		var salaries []models.EmployeeSalary
		err := store.Scoped(ctx, e.db).
			Where("effective_from <= ?", p.EndDate).
			Where("created_at > ?", p.EndDate).
			Where("created_at >= ? AND created_at <= ?", active.StartDate, active.EndDate.AddDate(0, 0, 1)).
			Find(&salaries).Error
		if err != nil {
			return nil, fmt.Errorf("scan salaries: %w", err)
		}
		for j := range salaries {
			s := &salaries[j]
			ch := Change{
				Type: "SALARY_CHANGE",
				Description: fmt.Sprintf("salary %s effective %s recorded %s",
					s.BasicSalary, s.EffectiveFrom.Format("2006-01-02"), s.CreatedAt.Format("2006-01-02")),
				AffectedPeriodID: p.ID,
				CreatedAt:        s.CreatedAt,
			}
			if err := record(s.EmployeeID, p, ch); err != nil {
				return nil, err
			}
		}

		var history []models.EmploymentHistory
		err = store.Scoped(ctx, e.db).
			Where("change_type IN ?", models.GradeAffectingChanges).
			Where("effective_date <= ?", p.EndDate).
			Where("created_at > ?", p.EndDate).
			Where("created_at >= ? AND created_at <= ?", active.StartDate, active.EndDate.AddDate(0, 0, 1)).
			Find(&history).Error
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		for j := range history {
			h := &history[j]
			ch := Change{
				Type: string(h.ChangeType),
				Description: fmt.Sprintf("%s effective %s recorded %s",
					h.ChangeType, h.EffectiveDate.Format("2006-01-02"), h.CreatedAt.Format("2006-01-02")),
				AffectedPeriodID: p.ID,
				CreatedAt:        h.CreatedAt,
			}
			if err := record(h.EmployeeID, p, ch); err != nil {
				return nil, err
			}
		}

		var txs []models.EmployeeTransaction
		err = store.Scoped(ctx, e.db).
			Where("target_type = ? AND status = ? AND is_current_version = ?",
				models.TargetIndividual, models.TransactionActive, true).
			Where("effective_from <= ?", p.EndDate).
			Where("created_at > ?", p.EndDate).
			Where("created_at >= ? AND created_at <= ?", active.StartDate, active.EndDate.AddDate(0, 0, 1)).
			Find(&txs).Error
		if err != nil {
			return nil, fmt.Errorf("scan transactions: %w", err)
		}
		for j := range txs {
			tx := &txs[j]
			if tx.EmployeeID == nil {
				continue
			}
			ch := Change{
				Type: "TRANSACTION",
				Description: fmt.Sprintf("transaction effective %s recorded %s",
					tx.EffectiveFrom.Format("2006-01-02"), tx.CreatedAt.Format("2006-01-02")),
				AffectedPeriodID: p.ID,
				CreatedAt:        tx.CreatedAt,
			}
			if err := record(*tx.EmployeeID, p, ch); err != nil {
				return nil, err
			}
		}
	}

	out := make([]Candidate, 0, len(byEmployee))
	for _, c := range byEmployee {
		out = append(out, *c)
	}
	return out, nil
}

// coveredEmployees are those already holding a live backpay request.
func (e *Engine) coveredEmployees(ctx context.Context) (map[uuid.UUID]bool, error) {
	var reqs []models.BackpayRequest
	err := store.Scoped(ctx, e.db).
		Where("status <> ?", models.BackpayCancelled).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	covered := make(map[uuid.UUID]bool, len(reqs))
	for i := range reqs {
		covered[reqs[i].EmployeeID] = true
	}
	return covered, nil
}
