package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

func componentHandler() *Handler {
	schema := Schema{
		{Name: "code", Required: true, Kind: "string"},
		{Name: "name", Required: true, Kind: "string"},
		{Name: "type", Required: true, Kind: "string"},
		{Name: "category", Kind: "string"},
		{Name: "calc_kind", Kind: "string"},
		{Name: "amount", Kind: "decimal"},
		{Name: "percentage", Kind: "decimal"},
		{Name: "formula", Kind: "string"},
		{Name: "is_taxable", Kind: "bool"},
		{Name: "reduces_taxable", Kind: "bool"},
		{Name: "is_overtime", Kind: "bool"},
		{Name: "is_bonus", Kind: "bool"},
		{Name: "is_recurring", Kind: "bool"},
		{Name: "is_prorated", Kind: "bool"},
	}
	e := &componentEntity{schema: schema}
	return &Handler{Schema: schema, Validator: e, Matcher: e, Creator: e}
}

type componentEntity struct {
	schema Schema
}

var componentTypes = map[string]models.ComponentType{
	string(models.ComponentEarning):         models.ComponentEarning,
	string(models.ComponentDeduction):       models.ComponentDeduction,
	string(models.ComponentEmployerContrib): models.ComponentEmployerContrib,
}

var calcKinds = map[string]models.CalcKind{
	string(models.CalcFixed):      models.CalcFixed,
	string(models.CalcPctOfBasic): models.CalcPctOfBasic,
	string(models.CalcPctOfGross): models.CalcPctOfGross,
	string(models.CalcFormula):    models.CalcFormula,
	string(models.CalcLookup):     models.CalcLookup,
}

func (e *componentEntity) Validate(row map[string]string) (errs []string, warns []string) {
	errs = checkFormats(e.schema, row)
	if t := strings.ToUpper(strings.TrimSpace(row["type"])); t != "" {
		if _, ok := componentTypes[t]; !ok {
			errs = append(errs, fmt.Sprintf("type: unknown value %q", row["type"]))
		}
	}
	if k := strings.ToUpper(strings.TrimSpace(row["calc_kind"])); k != "" {
		if _, ok := calcKinds[k]; !ok {
			errs = append(errs, fmt.Sprintf("calc_kind: unknown value %q", row["calc_kind"]))
		}
	}
	ot, _ := parseBool(row["is_overtime"])
	bn, _ := parseBool(row["is_bonus"])
	if ot && bn {
		errs = append(errs, "a component cannot be both overtime and bonus")
	}
	return errs, warns
}

func (e *componentEntity) Match(ctx context.Context, db *gorm.DB, row map[string]string) (*MatchResult, error) {
	code := strings.ToUpper(strings.TrimSpace(row["code"]))
	var existing models.PayComponent
	err := store.Scoped(ctx, db).Where("code = ?", code).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return &MatchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match component: %w", err)
	}

	if t := strings.ToUpper(strings.TrimSpace(row["type"])); t != "" &&
		existing.IsReserved() && t != string(existing.Type) {
		return &MatchResult{Errors: []string{
			fmt.Sprintf("component %s is reserved; its type cannot change", code)}}, nil
	}

	changes := map[string]FieldChange{}
	diffStr(changes, "name", existing.Name, row["name"])
	diffStr(changes, "formula", existing.Formula, row["formula"])
	if d, ok := parseDecimal(row["amount"]); row["amount"] != "" && ok && !d.Equal(existing.Amount) {
		changes["amount"] = FieldChange{Old: existing.Amount.String(), New: d.String()}
	}
	if d, ok := parseDecimal(row["percentage"]); row["percentage"] != "" && ok && !d.Equal(existing.Percentage) {
		changes["percentage"] = FieldChange{Old: existing.Percentage.String(), New: d.String()}
	}
	if t := strings.ToUpper(strings.TrimSpace(row["type"])); t != "" && t != string(existing.Type) {
		changes["type"] = FieldChange{Old: string(existing.Type), New: t}
	}
	return &MatchResult{ExistingID: &existing.ID, Changes: changes}, nil
}

func (e *componentEntity) Create(ctx context.Context, db *gorm.DB, row map[string]string, user string) error {
	c := models.PayComponent{
		Record:   models.Record{TenantID: store.TenantID(ctx)},
		Code:     strings.ToUpper(strings.TrimSpace(row["code"])),
		Name:     row["name"],
		Type:     componentTypes[strings.ToUpper(strings.TrimSpace(row["type"]))],
		Category: models.CategoryOther,
		CalcKind: models.CalcFixed,
		Formula:  row["formula"],

		IsTaxable:           true,
		IsRecurring:         true,
		IsProrated:          true,
		IsArrearsApplicable: true,
		ShowOnPayslip:       true,
	}
	if cat := strings.ToUpper(strings.TrimSpace(row["category"])); cat != "" {
		c.Category = models.ComponentCategory(cat)
	}
	if k := strings.ToUpper(strings.TrimSpace(row["calc_kind"])); k != "" {
		c.CalcKind = calcKinds[k]
	}
	c.Amount = decimalOrZero(row["amount"])
	c.Percentage = decimalOrZero(row["percentage"])
	applyComponentFlags(&c, row)

	if err := c.Validate(); err != nil {
		return err
	}
	if err := db.Create(&c).Error; err != nil {
		return fmt.Errorf("create component %s: %w", c.Code, err)
	}
	return nil
}

func (e *componentEntity) Update(ctx context.Context, db *gorm.DB, existingID uuid.UUID, row map[string]string, user string) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	setStr(updates, "name", row["name"])
	setStr(updates, "formula", row["formula"])
	if t := strings.ToUpper(strings.TrimSpace(row["type"])); t != "" {
		updates["type"] = t
	}
	if cat := strings.ToUpper(strings.TrimSpace(row["category"])); cat != "" {
		updates["category"] = cat
	}
	if k := strings.ToUpper(strings.TrimSpace(row["calc_kind"])); k != "" {
		updates["calc_kind"] = k
	}
	if d, ok := parseDecimal(row["amount"]); row["amount"] != "" && ok {
		updates["amount"] = d
	}
	if d, ok := parseDecimal(row["percentage"]); row["percentage"] != "" && ok {
		updates["percentage"] = d
	}
	for _, flag := range []string{"is_taxable", "reduces_taxable", "is_overtime", "is_bonus", "is_recurring", "is_prorated"} {
		if v, ok := parseBool(row[flag]); row[flag] != "" && ok {
			updates[flag] = v
		}
	}
	if err := store.Scoped(ctx, db).Model(&models.PayComponent{}).
		Where("id = ?", existingID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update component: %w", err)
	}
	return nil
}

func decimalOrZero(s string) decimal.Decimal {
	if d, ok := parseDecimal(s); s != "" && ok {
		return d
	}
	return decimal.Zero
}

func applyComponentFlags(c *models.PayComponent, row map[string]string) {
	if v, ok := parseBool(row["is_taxable"]); row["is_taxable"] != "" && ok {
		c.IsTaxable = v
	}
	if v, ok := parseBool(row["reduces_taxable"]); row["reduces_taxable"] != "" && ok {
		c.ReducesTaxable = v
	}
	if v, ok := parseBool(row["is_overtime"]); row["is_overtime"] != "" && ok {
		c.IsOvertime = v
	}
	if v, ok := parseBool(row["is_bonus"]); row["is_bonus"] != "" && ok {
		c.IsBonus = v
	}
	if v, ok := parseBool(row["is_recurring"]); row["is_recurring"] != "" && ok {
		c.IsRecurring = v
	}
	if v, ok := parseBool(row["is_prorated"]); row["is_prorated"] != "" && ok {
		c.IsProrated = v
	}
}
