// Package ratebook is the read-mostly, date-indexed store of Ghana
// statutory tables: PAYE brackets, SSNIT tier rates, tax reliefs and
// the overtime/bonus tax configuration. Every lookup is parameterised
// by an as-of date; results are cached per (tenant, kind, date) and
// never mutate during a run.
package ratebook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// ErrNoActiveRates is the rate-resolution failure: no statutory row is
// active for the required date. Fatal for the item, not the run.
type ErrNoActiveRates struct {
	Kind string
	AsOf time.Time
}

func (e *ErrNoActiveRates) Error() string {
	return fmt.Sprintf("no active %s rates as of %s", e.Kind, e.AsOf.Format("2006-01-02"))
}

// Book resolves the active statutory row set for any date.
type Book struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string]interface{}
}

// New creates a rate book over the given connection.
func New(db *gorm.DB) *Book {
	return &Book{db: db, cache: make(map[string]interface{})}
}

func cacheKey(tenant, kind string, asOf time.Time) string {
	return tenant + "|" + kind + "|" + asOf.Format("2006-01-02")
}

func (b *Book) cached(key string) (interface{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.cache[key]
	return v, ok
}

func (b *Book) put(key string, v interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache[key] = v
}

// Invalidate drops all cached rows, used after a rate-book write.
func (b *Book) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[string]interface{})
}

// activeWindow is the shared "active at D" predicate for every
// statutory table.
func activeWindow(q *gorm.DB, asOf time.Time) *gorm.DB {
	return q.Where("is_active = ?", true).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf)
}

// Brackets returns the PAYE brackets active as of the date, ordered by
// bracket order then minimum.
func (b *Book) Brackets(ctx context.Context, asOf time.Time) ([]models.TaxBracket, error) {
	key := cacheKey(store.TenantID(ctx), "brackets", asOf)
	if v, ok := b.cached(key); ok {
		return v.([]models.TaxBracket), nil
	}

	var brackets []models.TaxBracket
	q := activeWindow(store.Scoped(ctx, b.db).Model(&models.TaxBracket{}), asOf)
	if err := q.Order("bracket_order asc, min_amount asc").Find(&brackets).Error; err != nil {
		return nil, fmt.Errorf("load tax brackets: %w", err)
	}
	if len(brackets) == 0 {
		return nil, &ErrNoActiveRates{Kind: "PAYE bracket", AsOf: asOf}
	}
	b.put(key, brackets)
	return brackets, nil
}

// SSNIT returns the active contribution rates keyed by tier.
func (b *Book) SSNIT(ctx context.Context, asOf time.Time) (map[models.SSNITTier]models.SSNITRate, error) {
	key := cacheKey(store.TenantID(ctx), "ssnit", asOf)
	if v, ok := b.cached(key); ok {
		return v.(map[models.SSNITTier]models.SSNITRate), nil
	}

	var rows []models.SSNITRate
	q := activeWindow(store.Scoped(ctx, b.db).Model(&models.SSNITRate{}), asOf)
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ssnit rates: %w", err)
	}
	if len(rows) == 0 {
		return nil, &ErrNoActiveRates{Kind: "SSNIT", AsOf: asOf}
	}
	rates := make(map[models.SSNITTier]models.SSNITRate, len(rows))
	for _, r := range rows {
		rates[r.Tier] = r
	}
	b.put(key, rates)
	return rates, nil
}

// Reliefs returns the active tax reliefs, possibly empty.
func (b *Book) Reliefs(ctx context.Context, asOf time.Time) ([]models.TaxRelief, error) {
	key := cacheKey(store.TenantID(ctx), "reliefs", asOf)
	if v, ok := b.cached(key); ok {
		return v.([]models.TaxRelief), nil
	}

	var reliefs []models.TaxRelief
	q := activeWindow(store.Scoped(ctx, b.db).Model(&models.TaxRelief{}), asOf)
	if err := q.Find(&reliefs).Error; err != nil {
		return nil, fmt.Errorf("load tax reliefs: %w", err)
	}
	b.put(key, reliefs)
	return reliefs, nil
}

// OvertimeBonusConfig returns the active overtime/bonus tax parameters,
// falling back to the hard-coded Ghana defaults when no row is active.
func (b *Book) OvertimeBonusConfig(ctx context.Context, asOf time.Time) (models.OvertimeBonusTaxConfig, error) {
	key := cacheKey(store.TenantID(ctx), "otbonus", asOf)
	if v, ok := b.cached(key); ok {
		return v.(models.OvertimeBonusTaxConfig), nil
	}

	var cfg models.OvertimeBonusTaxConfig
	q := activeWindow(store.Scoped(ctx, b.db).Model(&models.OvertimeBonusTaxConfig{}), asOf)
	err := q.Order("effective_from desc").First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		cfg = models.DefaultOvertimeBonusTaxConfig()
	} else if err != nil {
		return cfg, fmt.Errorf("load overtime/bonus config: %w", err)
	}
	b.put(key, cfg)
	return cfg, nil
}
