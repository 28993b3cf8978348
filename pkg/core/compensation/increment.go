package compensation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// IncrementInput describes a global salary increment over the notch
// hierarchy.
type IncrementInput struct {
	Scope   models.IncrementScope
	BandID  *uuid.UUID // required for BAND scope
	LevelID *uuid.UUID // required for LEVEL scope
	Mode    models.IncrementMode
	// Percent for PERCENT mode (e.g. 10 = +10%), absolute cedis for FLAT.
	Value decimal.Decimal
}

// ApplyIncrement atomically scales or shifts every notch in scope and
// cascades recomputed min/max up through levels and bands.
func (g *Graph) ApplyIncrement(ctx context.Context, in IncrementInput) (int, error) {
	switch in.Scope {
	case models.IncrementAll:
	case models.IncrementBand:
		if in.BandID == nil {
			return 0, fmt.Errorf("band scope requires a band")
		}
	case models.IncrementLevel:
		if in.LevelID == nil {
			return 0, fmt.Errorf("level scope requires a level")
		}
	default:
		return 0, fmt.Errorf("invalid increment scope %q", in.Scope)
	}
	if in.Mode != models.IncrementPct && in.Mode != models.IncrementFlat {
		return 0, fmt.Errorf("invalid increment mode %q", in.Mode)
	}

	var touched int
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		notches, levelIDs, err := g.notchesInScope(ctx, tx, in)
		if err != nil {
			return err
		}
		if len(notches) == 0 {
			return fmt.Errorf("no notches in scope")
		}

		hundred := decimal.NewFromInt(100)
		for i := range notches {
			n := &notches[i]
			if in.Mode == models.IncrementPct {
				n.BaseAmount = n.BaseAmount.Add(n.BaseAmount.Mul(in.Value).Div(hundred)).Round(2)
			} else {
				n.BaseAmount = n.BaseAmount.Add(in.Value).Round(2)
			}
			if err := tx.Model(&models.SalaryNotch{}).Where("id = ?", n.ID).
				Update("base_amount", n.BaseAmount).Error; err != nil {
				return fmt.Errorf("update notch %s: %w", n.ID, err)
			}
		}
		touched = len(notches)

		return g.cascadeMinMax(ctx, tx, levelIDs)
	})
	return touched, err
}

func (g *Graph) notchesInScope(ctx context.Context, tx *gorm.DB, in IncrementInput) ([]models.SalaryNotch, []uuid.UUID, error) {
	q := store.Scoped(ctx, tx).Model(&models.SalaryNotch{})
	switch in.Scope {
	case models.IncrementLevel:
		q = q.Where("level_id = ?", *in.LevelID)
	case models.IncrementBand:
		var levels []models.SalaryLevel
		if err := store.Scoped(ctx, tx).Where("band_id = ?", *in.BandID).Find(&levels).Error; err != nil {
			return nil, nil, fmt.Errorf("levels of band: %w", err)
		}
		ids := make([]uuid.UUID, len(levels))
		for i, l := range levels {
			ids[i] = l.ID
		}
		q = q.Where("level_id IN ?", ids)
	}

	var notches []models.SalaryNotch
	if err := q.Find(&notches).Error; err != nil {
		return nil, nil, fmt.Errorf("notches in scope: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	var levelIDs []uuid.UUID
	for _, n := range notches {
		if !seen[n.LevelID] {
			seen[n.LevelID] = true
			levelIDs = append(levelIDs, n.LevelID)
		}
	}
	return notches, levelIDs, nil
}

// cascadeMinMax recomputes level min/max from notch amounts, then band
// min/max from level aggregates.
func (g *Graph) cascadeMinMax(ctx context.Context, tx *gorm.DB, levelIDs []uuid.UUID) error {
	bandSeen := make(map[uuid.UUID]bool)
	var bandIDs []uuid.UUID

	for _, levelID := range levelIDs {
		var notches []models.SalaryNotch
		if err := store.Scoped(ctx, tx).Where("level_id = ?", levelID).Find(&notches).Error; err != nil {
			return fmt.Errorf("notches of level: %w", err)
		}
		if len(notches) == 0 {
			continue
		}
		min, max := notches[0].BaseAmount, notches[0].BaseAmount
		for _, n := range notches[1:] {
			if n.BaseAmount.LessThan(min) {
				min = n.BaseAmount
			}
			if n.BaseAmount.GreaterThan(max) {
				max = n.BaseAmount
			}
		}
		if err := tx.Model(&models.SalaryLevel{}).Where("id = ?", levelID).
			Updates(map[string]interface{}{"min_amount": min, "max_amount": max}).Error; err != nil {
			return fmt.Errorf("update level bounds: %w", err)
		}

		var level models.SalaryLevel
		if err := tx.First(&level, "id = ?", levelID).Error; err != nil {
			return fmt.Errorf("reload level: %w", err)
		}
		if !bandSeen[level.BandID] {
			bandSeen[level.BandID] = true
			bandIDs = append(bandIDs, level.BandID)
		}
	}

	for _, bandID := range bandIDs {
		var levels []models.SalaryLevel
		if err := store.Scoped(ctx, tx).Where("band_id = ?", bandID).Find(&levels).Error; err != nil {
			return fmt.Errorf("levels of band: %w", err)
		}
		if len(levels) == 0 {
			continue
		}
		min, max := levels[0].MinAmount, levels[0].MaxAmount
		for _, l := range levels[1:] {
			if l.MinAmount.LessThan(min) {
				min = l.MinAmount
			}
			if l.MaxAmount.GreaterThan(max) {
				max = l.MaxAmount
			}
		}
		if err := tx.Model(&models.SalaryBand{}).Where("id = ?", bandID).
			Updates(map[string]interface{}{"min_amount": min, "max_amount": max}).Error; err != nil {
			return fmt.Errorf("update band bounds: %w", err)
		}
	}
	return nil
}
