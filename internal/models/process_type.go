package models

import (
	"github.com/jinzhu/gorm"
)

// ProcessType is a named production step in the registry (e.g. "Add Honey")
// with its standard duration and allowed variation buffer. Identity is
// immutable; duration and buffer are admin-editable. Once referenced by a
// batch a process type is only ever soft-deactivated, never hard-deleted.
type ProcessType struct {
	gorm.Model
	Name                    string  `gorm:"not null" json:"name"`
	StandardDurationMinutes float64 `json:"standard_duration_minutes"`
	VariationBufferMinutes  float64 `json:"variation_buffer_minutes"`
	Active                  bool    `gorm:"default:true" json:"active"`
	CreatedBy               string  `json:"created_by"`
}

// TableName sets the table name for ProcessType
func (ProcessType) TableName() string {
	return "process_types"
}

// ToleranceWindow returns the acceptable duration window [lower, upper] for
// one timed run of this process. The lower bound never goes below zero.
func (p *ProcessType) ToleranceWindow() (lower, upper float64) {
	lower = p.StandardDurationMinutes - p.VariationBufferMinutes
	if lower < 0 {
		lower = 0
	}
	upper = p.StandardDurationMinutes + p.VariationBufferMinutes
	return lower, upper
}
