package models

import (
	"github.com/jinzhu/gorm"
)

// ProductTemplate is an admin-defined product ("halwa type") mapping to an
// ordered subset of process types via TemplateStep rows.
type ProductTemplate struct {
	gorm.Model
	Name             string `gorm:"not null" json:"name"`
	BaseProcessCount int    `json:"base_process_count"`
	Active           bool   `gorm:"default:true" json:"active"`
	CreatedBy        string `json:"created_by"`
}

// TableName sets the table name for ProductTemplate
func (ProductTemplate) TableName() string {
	return "product_templates"
}

// TemplateStep maps one process type into one product template at a relative
// position. Unique per (product template, process type); SequenceOrder is the
// authoritative tie-break when merging multiple products into one batch.
type TemplateStep struct {
	gorm.Model
	ProductTemplateID   uint   `gorm:"index;not null" json:"product_template_id"`
	ProcessTypeID       uint   `gorm:"index;not null" json:"process_type_id"`
	SequenceOrder       int    `json:"sequence_order"`
	AdditionalProcesses int    `json:"additional_processes"`
	CreatedBy           string `json:"created_by"`
}

// TableName sets the table name for TemplateStep
func (TemplateStep) TableName() string {
	return "template_steps"
}
