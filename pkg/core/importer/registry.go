// Package importer implements the three-phase bulk import pipeline:
// Analyse (entity detection and column mapping, AI-assisted with a
// fuzzy fallback), Preview (per-row validate and upsert detection,
// no mutation) and Execute (dispatch to registered entity creators
// with per-row or all-or-nothing atomicity).
package importer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
)

// Field is one target column of an entity's canonical schema.
type Field struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Kind     string `json:"kind"` // string, decimal, date, bool
}

// Schema is the ordered list of target fields an entity accepts.
type Schema []Field

// Names returns the target field names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Has reports whether name is a declared target field.
func (s Schema) Has(name string) bool {
	for _, f := range s {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FieldChange is one field-level difference between an incoming row
// and the existing record it matched.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// MatchResult is the upsert decision input for one row. A nil
// ExistingID means CREATE; an ExistingID with no Changes means SKIP.
// Errors found while resolving references surface on the preview row.
type MatchResult struct {
	ExistingID *uuid.UUID
	Changes    map[string]FieldChange
	Errors     []string
}

// Validator checks a mapped row's format and required fields. It is
// pure: reference resolution belongs to the Matcher.
type Validator interface {
	Validate(row map[string]string) (errs []string, warns []string)
}

// Matcher resolves a row against existing records to decide between
// create, update and skip.
type Matcher interface {
	Match(ctx context.Context, db *gorm.DB, row map[string]string) (*MatchResult, error)
}

// Creator persists one row during the execute phase. The db handle is
// the row's transaction in per-row mode or the session transaction in
// all-or-nothing mode.
type Creator interface {
	Create(ctx context.Context, db *gorm.DB, row map[string]string, user string) error
	Update(ctx context.Context, db *gorm.DB, existingID uuid.UUID, row map[string]string, user string) error
}

// Handler bundles the triple an entity contributes to the pipeline.
type Handler struct {
	Schema    Schema
	Validator Validator
	Matcher   Matcher
	Creator   Creator
}

// Registry maps entity types to their handlers. Registration happens
// at process start; lookups afterwards are read-only.
type Registry struct {
	handlers map[models.ImportEntityType]*Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.ImportEntityType]*Handler)}
}

// Register adds or replaces the handler for an entity type.
func (r *Registry) Register(entity models.ImportEntityType, h *Handler) {
	r.handlers[entity] = h
}

// Handler returns the registered handler, nil when the entity type is
// unknown.
func (r *Registry) Handler(entity models.ImportEntityType) *Handler {
	return r.handlers[entity]
}

// Entities lists the registered entity types in a stable order.
func (r *Registry) Entities() []models.ImportEntityType {
	order := []models.ImportEntityType{
		models.ImportEmployee,
		models.ImportEmployeeTransaction,
		models.ImportPayComponent,
		models.ImportBank,
		models.ImportBankAccount,
	}
	out := make([]models.ImportEntityType, 0, len(r.handlers))
	for _, e := range order {
		if _, ok := r.handlers[e]; ok {
			out = append(out, e)
		}
	}
	return out
}

// DefaultRegistry registers the five built-in entities.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(models.ImportEmployee, employeeHandler())
	r.Register(models.ImportEmployeeTransaction, transactionHandler())
	r.Register(models.ImportPayComponent, componentHandler())
	r.Register(models.ImportBank, bankHandler())
	r.Register(models.ImportBankAccount, bankAccountHandler())
	return r
}

// dateLayouts are the accepted input formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"2 Jan 2006",
	"Jan 2, 2006",
	"02-01-2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}

// checkFormats validates every mapped value against its schema kind
// and reports missing required fields.
func checkFormats(schema Schema, row map[string]string) []string {
	var errs []string
	for _, f := range schema {
		v, ok := row[f.Name]
		if !ok || strings.TrimSpace(v) == "" {
			if f.Required {
				errs = append(errs, "missing required field "+f.Name)
			}
			continue
		}
		switch f.Kind {
		case "decimal":
			if _, ok := parseDecimal(v); !ok {
				errs = append(errs, f.Name+": not a number: "+strconv.Quote(v))
			}
		case "date":
			if _, ok := parseDate(v); !ok {
				errs = append(errs, f.Name+": not a date: "+strconv.Quote(v))
			}
		case "bool":
			if _, ok := parseBool(v); !ok {
				errs = append(errs, f.Name+": not a boolean: "+strconv.Quote(v))
			}
		}
	}
	return errs
}
