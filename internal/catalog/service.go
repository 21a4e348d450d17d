package catalog

import (
	"fmt"

	"halwakitchen/internal/models"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// Service owns the process type registry and the product template catalog:
// admin CRUD over process types, product templates and the per-product step
// mappings that the merge engine consumes.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewService creates a new catalog service
func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// Process type registry

// CreateProcessType registers a new named process step.
func (s *Service) CreateProcessType(operator, name string, standardMinutes, bufferMinutes float64) (*models.ProcessType, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	pt := &models.ProcessType{
		Name:                    name,
		StandardDurationMinutes: standardMinutes,
		VariationBufferMinutes:  bufferMinutes,
		Active:                  true,
		CreatedBy:               operator,
	}
	if err := s.db.Create(pt).Error; err != nil {
		return nil, fmt.Errorf("failed to create process type: %w", err)
	}
	s.log.Info("process type created", zap.Uint("id", pt.ID), zap.String("name", name), zap.String("by", operator))
	return pt, nil
}

// GetProcessType looks up one process type by id.
func (s *Service) GetProcessType(id uint) (*models.ProcessType, error) {
	var pt models.ProcessType
	if err := s.db.First(&pt, id).Error; err != nil {
		return nil, err
	}
	return &pt, nil
}

// ListProcessTypes returns all process types, active first.
func (s *Service) ListProcessTypes() ([]models.ProcessType, error) {
	var pts []models.ProcessType
	if err := s.db.Order("active desc, id asc").Find(&pts).Error; err != nil {
		return nil, err
	}
	return pts, nil
}

// UpdateProcessType edits a process type's duration, buffer and name. The id
// never changes.
func (s *Service) UpdateProcessType(operator string, id uint, name string, standardMinutes, bufferMinutes float64, active bool) (*models.ProcessType, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	var pt models.ProcessType
	if err := s.db.First(&pt, id).Error; err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"name":                      name,
		"standard_duration_minutes": standardMinutes,
		"variation_buffer_minutes":  bufferMinutes,
		"active":                    active,
	}
	if err := s.db.Model(&pt).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update process type: %w", err)
	}
	return &pt, nil
}

// DeleteProcessType removes a process type from the registry. A type that is
// referenced by batch history or template mappings is only deactivated, so
// recorded timings keep resolving; the deactivated type simply stops being
// selectable by future merges.
func (s *Service) DeleteProcessType(operator string, id uint) error {
	if operator == "" {
		return models.ErrAuthenticationRequired
	}
	var pt models.ProcessType
	if err := s.db.First(&pt, id).Error; err != nil {
		return err
	}

	var refs int64
	if err := s.db.Model(&models.ProcessInstance{}).Where("process_type_id = ?", id).Count(&refs).Error; err != nil {
		return err
	}
	if refs == 0 {
		var mapped int64
		if err := s.db.Model(&models.TemplateStep{}).Where("process_type_id = ?", id).Count(&mapped).Error; err != nil {
			return err
		}
		refs = mapped
	}

	if refs > 0 {
		if err := s.db.Model(&pt).Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate process type: %w", err)
		}
		s.log.Info("process type deactivated instead of deleted", zap.Uint("id", id), zap.Int64("references", refs))
		return nil
	}

	return s.db.Delete(&pt).Error
}

// Product template catalog

// CreateProductTemplate registers a new product ("halwa type").
func (s *Service) CreateProductTemplate(operator, name string, baseProcessCount int) (*models.ProductTemplate, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	tpl := &models.ProductTemplate{
		Name:             name,
		BaseProcessCount: baseProcessCount,
		Active:           true,
		CreatedBy:        operator,
	}
	if err := s.db.Create(tpl).Error; err != nil {
		return nil, fmt.Errorf("failed to create product template: %w", err)
	}
	s.log.Info("product template created", zap.Uint("id", tpl.ID), zap.String("name", name), zap.String("by", operator))
	return tpl, nil
}

// GetProductTemplate looks up one product template by id.
func (s *Service) GetProductTemplate(id uint) (*models.ProductTemplate, error) {
	var tpl models.ProductTemplate
	if err := s.db.First(&tpl, id).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListProductTemplates returns all product templates, active first.
func (s *Service) ListProductTemplates() ([]models.ProductTemplate, error) {
	var tpls []models.ProductTemplate
	if err := s.db.Order("active desc, id asc").Find(&tpls).Error; err != nil {
		return nil, err
	}
	return tpls, nil
}

// UpdateProductTemplate edits a product template's name, base process count
// and active flag.
func (s *Service) UpdateProductTemplate(operator string, id uint, name string, baseProcessCount int, active bool) (*models.ProductTemplate, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	var tpl models.ProductTemplate
	if err := s.db.First(&tpl, id).Error; err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"name":               name,
		"base_process_count": baseProcessCount,
		"active":             active,
	}
	if err := s.db.Model(&tpl).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update product template: %w", err)
	}
	return &tpl, nil
}

// DeleteProductTemplate removes a product and its step mappings. Batches that
// already snapshotted the template are untouched.
func (s *Service) DeleteProductTemplate(operator string, id uint) error {
	if operator == "" {
		return models.ErrAuthenticationRequired
	}
	var tpl models.ProductTemplate
	if err := s.db.First(&tpl, id).Error; err != nil {
		return err
	}

	tx := s.db.Begin()
	if err := tx.Where("product_template_id = ?", id).Delete(&models.TemplateStep{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&tpl).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// Template step mappings

// ListSteps returns a product's step mappings in sequence order.
func (s *Service) ListSteps(productID uint) ([]models.TemplateStep, error) {
	var steps []models.TemplateStep
	if err := s.db.Where("product_template_id = ?", productID).
		Order("sequence_order asc, id asc").Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

// CreateStep maps a process type into a product template at a position. The
// create path fails with ErrDuplicateMapping when the (product, process type)
// pair is already claimed; UpsertStep is the update-tolerant variant.
func (s *Service) CreateStep(operator string, productID, processTypeID uint, sequenceOrder, additionalProcesses int) (*models.TemplateStep, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	if err := s.checkStepTargets(productID, processTypeID); err != nil {
		return nil, err
	}

	var existing models.TemplateStep
	err := s.db.Where("product_template_id = ? AND process_type_id = ?", productID, processTypeID).
		First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: process type %d is already mapped to product %d by step %d",
			models.ErrDuplicateMapping, processTypeID, productID, existing.ID)
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	step := &models.TemplateStep{
		ProductTemplateID:   productID,
		ProcessTypeID:       processTypeID,
		SequenceOrder:       sequenceOrder,
		AdditionalProcesses: additionalProcesses,
		CreatedBy:           operator,
	}
	if err := s.db.Create(step).Error; err != nil {
		return nil, fmt.Errorf("failed to create template step: %w", err)
	}
	return step, nil
}

// UpsertStep creates the (product, process type) mapping or updates its
// sequence order and additional process count when it already exists.
func (s *Service) UpsertStep(operator string, productID, processTypeID uint, sequenceOrder, additionalProcesses int) (*models.TemplateStep, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	if err := s.checkStepTargets(productID, processTypeID); err != nil {
		return nil, err
	}

	var step models.TemplateStep
	err := s.db.Where("product_template_id = ? AND process_type_id = ?", productID, processTypeID).
		First(&step).Error
	if gorm.IsRecordNotFoundError(err) {
		return s.CreateStep(operator, productID, processTypeID, sequenceOrder, additionalProcesses)
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"sequence_order":       sequenceOrder,
		"additional_processes": additionalProcesses,
	}
	if err := s.db.Model(&step).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update template step: %w", err)
	}
	return &step, nil
}

// DeleteStep removes one mapping from a product template.
func (s *Service) DeleteStep(operator string, productID, stepID uint) error {
	if operator == "" {
		return models.ErrAuthenticationRequired
	}
	var step models.TemplateStep
	if err := s.db.First(&step, stepID).Error; err != nil {
		return err
	}
	if step.ProductTemplateID != productID {
		return fmt.Errorf("%w: step %d belongs to product %d, not %d",
			models.ErrCrossProductMismatch, stepID, step.ProductTemplateID, productID)
	}
	return s.db.Delete(&step).Error
}

// Reorder reassigns sequence orders 1..N to the product's steps by array
// position. The whole reassignment is transactional; a step id that belongs
// to another product fails the call with no partial write.
func (s *Service) Reorder(operator string, productID uint, orderedStepIDs []uint) error {
	if operator == "" {
		return models.ErrAuthenticationRequired
	}

	var steps []models.TemplateStep
	if err := s.db.Where("product_template_id = ?", productID).Find(&steps).Error; err != nil {
		return err
	}
	owned := make(map[uint]bool, len(steps))
	for _, st := range steps {
		owned[st.ID] = true
	}
	for _, id := range orderedStepIDs {
		if !owned[id] {
			return fmt.Errorf("%w: step %d is not part of product %d",
				models.ErrCrossProductMismatch, id, productID)
		}
	}

	tx := s.db.Begin()
	for pos, id := range orderedStepIDs {
		if err := tx.Model(&models.TemplateStep{}).Where("id = ?", id).
			Update("sequence_order", pos+1).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to reorder step %d: %w", id, err)
		}
	}
	return tx.Commit().Error
}

// checkStepTargets verifies the product exists and the process type exists
// and is still selectable.
func (s *Service) checkStepTargets(productID, processTypeID uint) error {
	var tpl models.ProductTemplate
	if err := s.db.First(&tpl, productID).Error; err != nil {
		return err
	}
	var pt models.ProcessType
	if err := s.db.First(&pt, processTypeID).Error; err != nil {
		return err
	}
	if !pt.Active {
		return fmt.Errorf("%w: process type %d", models.ErrProcessTypeInactive, processTypeID)
	}
	return nil
}
