package payout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// YTD aggregates the employee's year so far, computed across
// COMPUTED/APPROVED/PAID items of the same calendar year.
type YTD struct {
	Earnings              decimal.Decimal `json:"earnings"`
	SSNITEmployee         decimal.Decimal `json:"ssnit_employee"`
	PAYE                  decimal.Decimal `json:"paye"`
	Net                   decimal.Decimal `json:"net"`
	ProvidentFundEmployee decimal.Decimal `json:"provident_fund_employee"`
	Loans                 decimal.Decimal `json:"loans"`
}

// PayslipData is everything the layout engine needs to render one
// payslip. Layout itself is outside the core.
type PayslipData struct {
	RunNumber string                     `json:"run_number"`
	Period    *models.PayrollPeriod      `json:"period"`
	Employee  *models.Employee           `json:"employee"`
	Item      *models.PayrollItem        `json:"item"`
	Details   []models.PayrollItemDetail `json:"details"`
	YTD       YTD                        `json:"ytd"`
}

// BuildPayslipData assembles the payslip contract for one employee on
// one run. Details come back ordered by component display order.
func (s *Service) BuildPayslipData(ctx context.Context, runID, employeeID uuid.UUID) (*PayslipData, error) {
	var run models.PayrollRun
	err := store.Scoped(ctx, s.db).Preload("Period").First(&run, "id = ?", runID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	var item models.PayrollItem
	err = store.Scoped(ctx, s.db).
		Where("payroll_run_id = ? AND employee_id = ? AND status <> ?",
			runID, employeeID, models.ItemError).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("employee has no computed item on this run")
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}

	var emp models.Employee
	err = store.Scoped(ctx, s.db).
		Preload("Department").Preload("Grade").
		First(&emp, "id = ?", employeeID).Error
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}

	var details []models.PayrollItemDetail
	err = store.Scoped(ctx, s.db).
		Preload("PayComponent").
		Where("payroll_item_id = ?", item.ID).
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("load details: %w", err)
	}
	sort.SliceStable(details, func(i, j int) bool {
		di, dj := 0, 0
		if details[i].PayComponent != nil {
			di = details[i].PayComponent.DisplayOrder
		}
		if details[j].PayComponent != nil {
			dj = details[j].PayComponent.DisplayOrder
		}
		if di != dj {
			return di < dj
		}
		return details[i].ComponentCode < details[j].ComponentCode
	})

	ytd, err := s.yearToDate(ctx, employeeID, run.Period)
	if err != nil {
		return nil, err
	}

	return &PayslipData{
		RunNumber: run.RunNumber,
		Period:    run.Period,
		Employee:  &emp,
		Item:      &item,
		Details:   details,
		YTD:       ytd,
	}, nil
}

// yearToDate sums the employee's items across settled and computed
// runs of the same calendar year, up to and including this period.
func (s *Service) yearToDate(ctx context.Context, employeeID uuid.UUID, period *models.PayrollPeriod) (YTD, error) {
	var ytd YTD
	if period == nil {
		return ytd, fmt.Errorf("run has no period")
	}
	yearStart := time.Date(period.StartDate.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	countable := []models.ItemStatus{models.ItemComputed, models.ItemApproved, models.ItemPaid}
	var items []models.PayrollItem
	err := store.Scoped(ctx, s.db).Model(&models.PayrollItem{}).
		Joins("JOIN payroll_runs ON payroll_runs.id = payroll_items.payroll_run_id").
		Joins("JOIN payroll_periods ON payroll_periods.id = payroll_runs.payroll_period_id").
		Where("payroll_items.employee_id = ? AND payroll_items.status IN ?", employeeID, countable).
		Where("payroll_runs.status IN ?", []models.RunStatus{models.RunComputed, models.RunApproved, models.RunProcessingPayment, models.RunPaid}).
		Where("payroll_periods.start_date >= ? AND payroll_periods.start_date <= ?", yearStart, period.StartDate).
		Find(&items).Error
	if err != nil {
		return ytd, fmt.Errorf("load ytd items: %w", err)
	}

	itemIDs := make([]uuid.UUID, 0, len(items))
	for i := range items {
		it := &items[i]
		itemIDs = append(itemIDs, it.ID)
		ytd.Earnings = ytd.Earnings.Add(it.GrossEarnings)
		ytd.SSNITEmployee = ytd.SSNITEmployee.Add(it.SSNITEmployee)
		ytd.PAYE = ytd.PAYE.Add(it.PAYE)
		ytd.Net = ytd.Net.Add(it.NetSalary)
	}
	if len(itemIDs) == 0 {
		return ytd, nil
	}

	var details []models.PayrollItemDetail
	err = store.Scoped(ctx, s.db).
		Preload("PayComponent").
		Where("payroll_item_id IN ?", itemIDs).
		Find(&details).Error
	if err != nil {
		return ytd, fmt.Errorf("load ytd details: %w", err)
	}
	for i := range details {
		d := &details[i]
		if d.PayComponent == nil || d.ComponentType != models.ComponentDeduction {
			continue
		}
		switch d.PayComponent.Category {
		case models.CategoryFund:
			ytd.ProvidentFundEmployee = ytd.ProvidentFundEmployee.Add(d.Amount)
		case models.CategoryLoan:
			ytd.Loans = ytd.Loans.Add(d.Amount)
		}
	}
	return ytd, nil
}
