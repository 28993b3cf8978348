// Package payout produces the payment-side outputs of a settled run:
// per-bank advice files, the payslip data contract for the layout
// engine and an XLSX payroll register.
package payout

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// Service reads settled runs and renders payout artefacts.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AdviceFile is one bank's advice, ready to be stored or transmitted.
type AdviceFile struct {
	Bank        string
	FileName    string
	Records     int
	TotalAmount decimal.Decimal
	Content     []byte
}

var adviceHeader = []string{"Bank", "Branch", "Account Number", "Account Name", "Employee Number", "Net Salary", "Reference"}

// BankAdvice renders one RFC 4180 CSV per bank from the run's items,
// using the bank snapshot taken at compute time. Items without an
// account are skipped with a warning; they need manual payment.
func (s *Service) BankAdvice(ctx context.Context, runID uuid.UUID) ([]AdviceFile, error) {
	run, items, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case models.RunApproved, models.RunProcessingPayment, models.RunPaid:
	default:
		return nil, fmt.Errorf("run is %s, bank advice needs an approved or paid run", run.Status)
	}

	byBank := map[string][]*models.PayrollItem{}
	for i := range items {
		it := &items[i]
		if it.Status == models.ItemError {
			continue
		}
		if it.AccountNumber == "" {
			log.Warn().Str("run", run.RunNumber).Str("employee", it.Employee.EmployeeNumber).
				Msg("no bank account snapshot, excluded from advice")
			continue
		}
		byBank[it.BankName] = append(byBank[it.BankName], it)
	}

	banks := make([]string, 0, len(byBank))
	for bank := range byBank {
		banks = append(banks, bank)
	}
	sort.Strings(banks)

	stamp := adviceDate(run)
	files := make([]AdviceFile, 0, len(banks))
	for _, bank := range banks {
		rows := byBank[bank]
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].Employee.EmployeeNumber < rows[j].Employee.EmployeeNumber
		})

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(adviceHeader); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		total := decimal.Zero
		for _, it := range rows {
			ref := it.PaymentReference
			if ref == "" {
				ref = fmt.Sprintf("%s-%s", run.RunNumber, it.Employee.EmployeeNumber)
			}
			rec := []string{
				it.BankName,
				it.BankBranch,
				it.AccountNumber,
				it.AccountName,
				it.Employee.EmployeeNumber,
				it.NetSalary.StringFixed(2),
				ref,
			}
			if err := w.Write(rec); err != nil {
				return nil, fmt.Errorf("write record: %w", err)
			}
			total = total.Add(it.NetSalary)
		}
		summary := []string{"Total Records:", strconv.Itoa(len(rows)), "Total Amount:", total.StringFixed(2)}
		if err := w.Write(summary); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("flush advice csv: %w", err)
		}

		files = append(files, AdviceFile{
			Bank:        bank,
			FileName:    AdviceFileName(run.RunNumber, bank, stamp),
			Records:     len(rows),
			TotalAmount: total.Round(2),
			Content:     buf.Bytes(),
		})
	}
	return files, nil
}

// AdviceFileName applies the {run_number}_{bank_safe}_{YYYYMMDD}.csv
// rule, bank_safe replacing spaces and slashes with underscores.
func AdviceFileName(runNumber, bank string, date time.Time) string {
	safe := strings.NewReplacer(" ", "_", "/", "_").Replace(bank)
	return fmt.Sprintf("%s_%s_%s.csv", runNumber, safe, date.Format("20060102"))
}

func adviceDate(run *models.PayrollRun) time.Time {
	if run.PaidAt != nil {
		return *run.PaidAt
	}
	if run.Period != nil && run.Period.PaymentDate != nil {
		return *run.Period.PaymentDate
	}
	return time.Now()
}

func (s *Service) loadRun(ctx context.Context, runID uuid.UUID) (*models.PayrollRun, []models.PayrollItem, error) {
	var run models.PayrollRun
	err := store.Scoped(ctx, s.db).Preload("Period").First(&run, "id = ?", runID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil, models.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load run: %w", err)
	}
	var items []models.PayrollItem
	err = store.Scoped(ctx, s.db).
		Preload("Employee").
		Where("payroll_run_id = ?", runID).
		Find(&items).Error
	if err != nil {
		return nil, nil, fmt.Errorf("load items: %w", err)
	}
	return &run, items, nil
}
