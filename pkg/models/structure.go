package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalaryBand is the top of the Band -> Level -> Notch hierarchy.
// Min/Max must equal the aggregate of the band's levels.
type SalaryBand struct {
	Record
	Name      string          `gorm:"type:varchar(64);not null" json:"name"`
	BandOrder int             `gorm:"default:0" json:"band_order"`
	MinAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"min_amount"`
	MaxAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"max_amount"`

	Levels []SalaryLevel `gorm:"foreignKey:BandID" json:"levels,omitempty"`
}

func (SalaryBand) TableName() string { return "salary_bands" }

// SalaryLevel is the middle tier. Min/Max must equal the aggregate of
// the level's notches.
type SalaryLevel struct {
	Record
	BandID     uuid.UUID       `gorm:"type:text;index;not null" json:"band_id"`
	Name       string          `gorm:"type:varchar(64);not null" json:"name"`
	LevelOrder int             `gorm:"default:0" json:"level_order"`
	MinAmount  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"min_amount"`
	MaxAmount  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"max_amount"`

	Band    *SalaryBand   `gorm:"foreignKey:BandID" json:"band,omitempty"`
	Notches []SalaryNotch `gorm:"foreignKey:LevelID" json:"notches,omitempty"`
}

func (SalaryLevel) TableName() string { return "salary_levels" }

// SalaryNotch carries the absolute base amount an employee on that
// notch earns.
type SalaryNotch struct {
	Record
	LevelID    uuid.UUID       `gorm:"type:text;index;not null" json:"level_id"`
	Name       string          `gorm:"type:varchar(64);not null" json:"name"`
	NotchOrder int             `gorm:"default:0" json:"notch_order"`
	BaseAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"base_amount"`

	Level *SalaryLevel `gorm:"foreignKey:LevelID" json:"level,omitempty"`
}

func (SalaryNotch) TableName() string { return "salary_notches" }

// SalaryStructure names a reusable set of component amounts, usually
// tied to a grade.
type SalaryStructure struct {
	Record
	Name    string     `gorm:"type:varchar(128);not null" json:"name"`
	GradeID *uuid.UUID `gorm:"type:text;index" json:"grade_id,omitempty"`

	Grade      *Grade                     `gorm:"foreignKey:GradeID" json:"grade,omitempty"`
	Components []SalaryStructureComponent `gorm:"foreignKey:StructureID" json:"components,omitempty"`
}

func (SalaryStructure) TableName() string { return "salary_structures" }

// SalaryStructureComponent is one component amount within a structure.
type SalaryStructureComponent struct {
	Record
	StructureID    uuid.UUID       `gorm:"type:text;index;not null" json:"structure_id"`
	PayComponentID uuid.UUID       `gorm:"type:text;index;not null" json:"pay_component_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`

	PayComponent *PayComponent `gorm:"foreignKey:PayComponentID" json:"pay_component,omitempty"`
}

func (SalaryStructureComponent) TableName() string { return "salary_structure_components" }

// IncrementScope selects which notches a salary increment touches.
type IncrementScope string

const (
	IncrementAll   IncrementScope = "ALL"
	IncrementBand  IncrementScope = "BAND"
	IncrementLevel IncrementScope = "LEVEL"
)

// IncrementMode selects how notch amounts move.
type IncrementMode string

const (
	IncrementPct  IncrementMode = "PERCENT"
	IncrementFlat IncrementMode = "FLAT"
)
