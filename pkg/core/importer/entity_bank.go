package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

func bankHandler() *Handler {
	schema := Schema{
		{Name: "bank_name", Required: true, Kind: "string"},
		{Name: "sort_code", Kind: "string"},
	}
	e := &bankEntity{schema: schema}
	return &Handler{Schema: schema, Validator: e, Matcher: e, Creator: e}
}

type bankEntity struct {
	schema Schema
}

func (e *bankEntity) Validate(row map[string]string) ([]string, []string) {
	return checkFormats(e.schema, row), nil
}

func (e *bankEntity) Match(ctx context.Context, db *gorm.DB, row map[string]string) (*MatchResult, error) {
	var existing models.Bank
	err := store.Scoped(ctx, db).
		Where("LOWER(name) = LOWER(?)", row["bank_name"]).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return &MatchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match bank: %w", err)
	}
	changes := map[string]FieldChange{}
	diffStr(changes, "sort_code", existing.SortCode, row["sort_code"])
	return &MatchResult{ExistingID: &existing.ID, Changes: changes}, nil
}

func (e *bankEntity) Create(ctx context.Context, db *gorm.DB, row map[string]string, user string) error {
	bank := models.Bank{
		Record:   models.Record{TenantID: store.TenantID(ctx)},
		Name:     row["bank_name"],
		SortCode: row["sort_code"],
	}
	if err := db.Create(&bank).Error; err != nil {
		return fmt.Errorf("create bank %s: %w", bank.Name, err)
	}
	return nil
}

func (e *bankEntity) Update(ctx context.Context, db *gorm.DB, existingID uuid.UUID, row map[string]string, user string) error {
	updates := map[string]interface{}{}
	setStr(updates, "sort_code", row["sort_code"])
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()
	if err := store.Scoped(ctx, db).Model(&models.Bank{}).
		Where("id = ?", existingID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update bank: %w", err)
	}
	return nil
}

func bankAccountHandler() *Handler {
	schema := Schema{
		{Name: "employee_number", Required: true, Kind: "string"},
		{Name: "bank_name", Required: true, Kind: "string"},
		{Name: "account_name", Required: true, Kind: "string"},
		{Name: "account_number", Required: true, Kind: "string"},
		{Name: "branch", Kind: "string"},
		{Name: "is_primary", Kind: "bool"},
	}
	e := &bankAccountEntity{schema: schema}
	return &Handler{Schema: schema, Validator: e, Matcher: e, Creator: e}
}

type bankAccountEntity struct {
	schema Schema
}

func (e *bankAccountEntity) Validate(row map[string]string) ([]string, []string) {
	return checkFormats(e.schema, row), nil
}

func (e *bankAccountEntity) resolve(ctx context.Context, db *gorm.DB, row map[string]string) (*models.Employee, *models.Bank, []string, error) {
	var errs []string
	var emp models.Employee
	err := store.Scoped(ctx, db).
		Where("employee_number = ?", row["employee_number"]).
		First(&emp).Error
	if err == gorm.ErrRecordNotFound {
		errs = append(errs, fmt.Sprintf("employee %q does not exist", row["employee_number"]))
	} else if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve employee: %w", err)
	}

	var bank models.Bank
	err = store.Scoped(ctx, db).
		Where("LOWER(name) = LOWER(?)", row["bank_name"]).
		First(&bank).Error
	if err == gorm.ErrRecordNotFound {
		errs = append(errs, fmt.Sprintf("bank %q does not exist", row["bank_name"]))
	} else if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve bank: %w", err)
	}
	if len(errs) > 0 {
		return nil, nil, errs, nil
	}
	return &emp, &bank, nil, nil
}

func (e *bankAccountEntity) Match(ctx context.Context, db *gorm.DB, row map[string]string) (*MatchResult, error) {
	emp, bank, errs, err := e.resolve(ctx, db, row)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return &MatchResult{Errors: errs}, nil
	}

	var existing models.BankAccount
	err = store.Scoped(ctx, db).
		Where("employee_id = ? AND account_number = ?", emp.ID, row["account_number"]).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return &MatchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match bank account: %w", err)
	}

	changes := map[string]FieldChange{}
	diffStr(changes, "account_name", existing.AccountName, row["account_name"])
	diffStr(changes, "branch", existing.Branch, row["branch"])
	if existing.BankID != bank.ID {
		changes["bank_name"] = FieldChange{Old: existing.BankID.String(), New: row["bank_name"]}
	}
	if v, ok := parseBool(row["is_primary"]); row["is_primary"] != "" && ok && v != existing.IsPrimary {
		changes["is_primary"] = FieldChange{Old: fmt.Sprint(existing.IsPrimary), New: fmt.Sprint(v)}
	}
	return &MatchResult{ExistingID: &existing.ID, Changes: changes}, nil
}

func (e *bankAccountEntity) Create(ctx context.Context, db *gorm.DB, row map[string]string, user string) error {
	emp, bank, errs, err := e.resolve(ctx, db, row)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", errs[0])
	}

	acct := models.BankAccount{
		Record:        models.Record{TenantID: store.TenantID(ctx)},
		EmployeeID:    emp.ID,
		BankID:        bank.ID,
		AccountName:   row["account_name"],
		AccountNumber: row["account_number"],
		Branch:        row["branch"],
		IsActive:      true,
	}
	if v, ok := parseBool(row["is_primary"]); row["is_primary"] == "" || (ok && v) {
		acct.IsPrimary = true
	}
	if acct.IsPrimary {
		if err := demotePrimaries(ctx, db, emp.ID); err != nil {
			return err
		}
	}
	if err := db.Create(&acct).Error; err != nil {
		return fmt.Errorf("create bank account %s: %w", acct.AccountNumber, err)
	}
	return nil
}

func (e *bankAccountEntity) Update(ctx context.Context, db *gorm.DB, existingID uuid.UUID, row map[string]string, user string) error {
	emp, bank, errs, err := e.resolve(ctx, db, row)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", errs[0])
	}

	updates := map[string]interface{}{"bank_id": bank.ID, "updated_at": time.Now()}
	setStr(updates, "account_name", row["account_name"])
	setStr(updates, "branch", row["branch"])
	if v, ok := parseBool(row["is_primary"]); row["is_primary"] != "" && ok {
		if v {
			if err := demotePrimaries(ctx, db, emp.ID); err != nil {
				return err
			}
		}
		updates["is_primary"] = v
	}
	if err := store.Scoped(ctx, db).Model(&models.BankAccount{}).
		Where("id = ?", existingID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update bank account: %w", err)
	}
	return nil
}

// demotePrimaries clears the primary flag ahead of promoting another
// account; at most one primary active account feeds a run snapshot.
func demotePrimaries(ctx context.Context, db *gorm.DB, employeeID uuid.UUID) error {
	err := store.Scoped(ctx, db).Model(&models.BankAccount{}).
		Where("employee_id = ? AND is_primary = ?", employeeID, true).
		Update("is_primary", false).Error
	if err != nil {
		return fmt.Errorf("demote primary accounts: %w", err)
	}
	return nil
}
