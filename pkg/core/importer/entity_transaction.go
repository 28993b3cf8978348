package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/overlay"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

func transactionHandler() *Handler {
	schema := Schema{
		{Name: "employee_number", Required: true, Kind: "string"},
		{Name: "component_code", Required: true, Kind: "string"},
		{Name: "override_type", Kind: "string"},
		{Name: "amount", Kind: "decimal"},
		{Name: "percentage", Kind: "decimal"},
		{Name: "formula", Kind: "string"},
		{Name: "effective_from", Required: true, Kind: "date"},
		{Name: "effective_to", Kind: "date"},
		{Name: "reason", Kind: "string"},
	}
	e := &transactionEntity{schema: schema}
	return &Handler{Schema: schema, Validator: e, Matcher: e, Creator: e}
}

// transactionEntity imports individual-target transactions. Matching a
// live current version means UPDATE, which supersedes it with a new
// version through the overlay service so history stays intact.
type transactionEntity struct {
	schema Schema
}

var overrideTypes = map[string]models.OverrideType{
	string(models.OverrideNone):    models.OverrideNone,
	string(models.OverrideFixed):   models.OverrideFixed,
	string(models.OverridePct):     models.OverridePct,
	string(models.OverrideFormula): models.OverrideFormula,
}

func (e *transactionEntity) Validate(row map[string]string) (errs []string, warns []string) {
	errs = checkFormats(e.schema, row)
	ot := strings.ToUpper(strings.TrimSpace(row["override_type"]))
	if ot != "" {
		if _, ok := overrideTypes[ot]; !ok {
			errs = append(errs, fmt.Sprintf("override_type: unknown value %q", row["override_type"]))
		}
	}
	if ot == string(models.OverrideFixed) && strings.TrimSpace(row["amount"]) == "" {
		errs = append(errs, "amount is required for a FIXED override")
	}
	if ot == string(models.OverridePct) && strings.TrimSpace(row["percentage"]) == "" {
		errs = append(errs, "percentage is required for a PCT override")
	}
	if ot == string(models.OverrideFormula) && strings.TrimSpace(row["formula"]) == "" {
		errs = append(errs, "formula is required for a FORMULA override")
	}
	if from, okFrom := parseDate(row["effective_from"]); okFrom {
		if to, okTo := parseDate(row["effective_to"]); row["effective_to"] != "" && okTo && to.Before(from) {
			errs = append(errs, "effective_to precedes effective_from")
		}
	}
	return errs, warns
}

func (e *transactionEntity) resolve(ctx context.Context, db *gorm.DB, row map[string]string) (*models.Employee, *models.PayComponent, []string, error) {
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

	code := strings.ToUpper(strings.TrimSpace(row["component_code"]))
	var comp models.PayComponent
	err = store.Scoped(ctx, db).Where("code = ?", code).First(&comp).Error
	if err == gorm.ErrRecordNotFound {
		errs = append(errs, fmt.Sprintf("pay component %q does not exist", code))
	} else if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve component: %w", err)
	}
	if len(errs) > 0 {
		return nil, nil, errs, nil
	}
	return &emp, &comp, nil, nil
}

func (e *transactionEntity) Match(ctx context.Context, db *gorm.DB, row map[string]string) (*MatchResult, error) {
	emp, comp, errs, err := e.resolve(ctx, db, row)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return &MatchResult{Errors: errs}, nil
	}

	var existing models.EmployeeTransaction
	err = store.Scoped(ctx, db).
		Where("target_type = ? AND employee_id = ? AND pay_component_id = ? AND is_current_version = ?",
			models.TargetIndividual, emp.ID, comp.ID, true).
		Where("status NOT IN ?", []models.TransactionStatus{models.TransactionCancelled, models.TransactionCompleted}).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return &MatchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match transaction: %w", err)
	}

	changes := map[string]FieldChange{}
	if d, ok := parseDecimal(row["amount"]); row["amount"] != "" && ok && !d.Equal(existing.Amount) {
		changes["amount"] = FieldChange{Old: existing.Amount.String(), New: d.String()}
	}
	if d, ok := parseDecimal(row["percentage"]); row["percentage"] != "" && ok && !d.Equal(existing.Percentage) {
		changes["percentage"] = FieldChange{Old: existing.Percentage.String(), New: d.String()}
	}
	diffStr(changes, "formula", existing.Formula, row["formula"])
	if ot := strings.ToUpper(strings.TrimSpace(row["override_type"])); ot != "" && ot != string(existing.OverrideType) {
		changes["override_type"] = FieldChange{Old: string(existing.OverrideType), New: ot}
	}
	return &MatchResult{ExistingID: &existing.ID, Changes: changes}, nil
}

func (e *transactionEntity) Create(ctx context.Context, db *gorm.DB, row map[string]string, user string) error {
	emp, comp, errs, err := e.resolve(ctx, db, row)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", errs[0])
	}

	t := &models.EmployeeTransaction{
		TargetType:     models.TargetIndividual,
		EmployeeID:     &emp.ID,
		PayComponentID: comp.ID,
		OverrideType:   models.OverrideNone,
		Amount:         decimalOrZero(row["amount"]),
		Percentage:     decimalOrZero(row["percentage"]),
		Formula:        row["formula"],
		IsRecurring:    true,
		Status:         models.TransactionActive,
		Reason:         row["reason"],
	}
	if ot := strings.ToUpper(strings.TrimSpace(row["override_type"])); ot != "" {
		t.OverrideType = overrideTypes[ot]
	}
	if d, ok := parseDate(row["effective_from"]); ok {
		t.EffectiveFrom = d
	}
	if d, ok := parseDate(row["effective_to"]); row["effective_to"] != "" && ok {
		t.EffectiveTo = &d
	}
	return overlay.New(db).CreateTransaction(ctx, t)
}

func (e *transactionEntity) Update(ctx context.Context, db *gorm.DB, existingID uuid.UUID, row map[string]string, user string) error {
	var current models.EmployeeTransaction
	if err := store.Scoped(ctx, db).First(&current, "id = ?", existingID).Error; err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	in := overlay.UpdateInput{
		OverrideType: current.OverrideType,
		Amount:       current.Amount,
		Percentage:   current.Percentage,
		Formula:      current.Formula,
		Reason:       row["reason"],
	}
	if ot := strings.ToUpper(strings.TrimSpace(row["override_type"])); ot != "" {
		in.OverrideType = overrideTypes[ot]
	}
	if d, ok := parseDecimal(row["amount"]); row["amount"] != "" && ok {
		in.Amount = d
	}
	if d, ok := parseDecimal(row["percentage"]); row["percentage"] != "" && ok {
		in.Percentage = d
	}
	if f := row["formula"]; f != "" {
		in.Formula = f
	}
	if d, ok := parseDate(row["effective_from"]); ok {
		in.EffectiveFrom = d
	}
	if d, ok := parseDate(row["effective_to"]); row["effective_to"] != "" && ok {
		in.EffectiveTo = &d
	}
	_, err := overlay.New(db).UpdateTransaction(ctx, existingID, in)
	return err
}
