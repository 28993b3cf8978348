package payout

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const registerSheet = "Payroll Register"

var registerHeader = []interface{}{
	"Employee Number", "Employee Name", "Department",
	"Basic Salary", "Gross Earnings", "SSNIT Employee", "PAYE",
	"Overtime Tax", "Bonus Tax", "Total Deductions", "Net Salary",
	"Employer Cost", "Status",
}

// WriteRegisterXLSX renders the run's register workbook to path: one
// row per item in employee-number order plus a totals row.
func (s *Service) WriteRegisterXLSX(ctx context.Context, runID uuid.UUID, path string) error {
	run, items, err := s.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Employee.EmployeeNumber < items[j].Employee.EmployeeNumber
	})

	f := excelize.NewFile()
	defer f.Close()
	idx, err := f.NewSheet(registerSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(registerSheet, "A1", &[]interface{}{
		fmt.Sprintf("Run %s", run.RunNumber)}); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := f.SetSheetRow(registerSheet, "A2", &registerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rowNum := 3
	for i := range items {
		it := &items[i]
		dept := ""
		if it.Employee != nil && it.Employee.Department != nil {
			dept = it.Employee.Department.Name
		}
		row := []interface{}{
			it.Employee.EmployeeNumber,
			it.Employee.FullName(),
			dept,
			money(it.BasicSalary),
			money(it.GrossEarnings),
			money(it.SSNITEmployee),
			money(it.PAYE),
			money(it.OvertimeTax),
			money(it.BonusTax),
			money(it.TotalDeductions),
			money(it.NetSalary),
			money(it.EmployerCost),
			string(it.Status),
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(registerSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", rowNum, err)
		}
		rowNum++
	}

	totals := []interface{}{
		"TOTAL", "", "",
		"",
		money(run.TotalGross),
		money(run.TotalSSNITEmployee),
		money(run.TotalPAYE),
		money(run.TotalOvertimeTax),
		money(run.TotalBonusTax),
		money(run.TotalDeductions),
		money(run.TotalNet),
		money(run.TotalEmployerCost),
		"",
	}
	cell, _ := excelize.CoordinatesToCellName(1, rowNum)
	if err := f.SetSheetRow(registerSheet, cell, &totals); err != nil {
		return fmt.Errorf("write totals: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save register %s: %w", path, err)
	}
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
