package batch

import (
	"fmt"
	"math"
	"strings"
	"time"

	"halwakitchen/internal/catalog"
	"halwakitchen/internal/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// Service is the batch lifecycle manager: batch creation with template
// merging, the per-step stopwatch, and batch completion. Elapsed time is
// always derived from two persisted timestamps; there is no in-memory timer,
// so a step keeps "running" across client disconnects.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	strict bool

	// server-authoritative clock, swappable in tests
	now func() time.Time
}

// NewService creates a new batch lifecycle service. With strict enabled,
// stopping a never-started step fails instead of recording a synthetic
// zero-length window.
func NewService(db *gorm.DB, log *zap.Logger, strict bool) *Service {
	return &Service{
		db:     db,
		log:    log,
		strict: strict,
		now:    time.Now,
	}
}

// CreateBatch starts a new production run for the selected products. The
// template merge runs once, here; the resulting process list is materialized
// as ProcessInstance rows with null timestamps, in merged order, inside one
// transaction. Later template edits never touch this snapshot.
func (s *Service) CreateBatch(operator string, productIDs []uint, startWeightKg float64) (*models.Batch, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	productIDs = dedupIDs(productIDs)

	label, err := s.productLabel(productIDs)
	if err != nil {
		return nil, err
	}

	merged, err := catalog.MergeTemplates(s.db, productIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	b := &models.Batch{
		Code:          newBatchCode(now),
		ProductIDs:    models.UintSlice(productIDs),
		ProductKey:    models.UintSlice(productIDs).Key(),
		ProductLabel:  label,
		StartWeightKg: startWeightKg,
		Operator:      operator,
		StartTime:     now,
		Status:        string(models.BatchStatusInProgress),
	}

	tx := s.db.Begin()
	if err := tx.Create(b).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	for i, step := range merged {
		inst := models.ProcessInstance{
			BatchID:       b.ID,
			ProcessTypeID: step.ProcessTypeID,
			SequenceOrder: i + 1,
		}
		if err := tx.Create(&inst).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create process instance: %w", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.log.Info("batch created",
		zap.Uint("batch_id", b.ID),
		zap.String("code", b.Code),
		zap.String("products", label),
		zap.Int("steps", len(merged)),
		zap.String("operator", operator))
	return b, nil
}

// StartStep opens the timing window of one process instance. The update is
// guarded by "start_time IS NULL" so that two racing starts persist exactly
// one start time; the loser gets ErrStepAlreadyStarted and the recorded
// timestamp survives.
func (s *Service) StartStep(operator string, instanceID uint, remarks string) (*models.ProcessInstance, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	inst, err := s.instanceInProgress(instanceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	res := s.db.Model(&models.ProcessInstance{}).
		Where("id = ? AND start_time IS NULL", inst.ID).
		Updates(map[string]interface{}{
			"start_time":    now,
			"auto_recorded": true,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to start step %d: %w", inst.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: instance %d", models.ErrStepAlreadyStarted, inst.ID)
	}

	return s.appendRemark(inst.ID, remarks)
}

// StopStep closes the timing window and records the duration in minutes with
// millisecond-derived three-decimal precision, clamped at zero. Without a
// recorded start the call fails in strict mode; otherwise now() serves as a
// best-effort synthetic start, yielding a zero-length window rather than
// silent data loss. A second stop never overwrites the recorded end time,
// and the synthetic start never overwrites a start persisted by a racing
// StartStep.
func (s *Service) StopStep(operator string, instanceID uint, remarks string) (*models.ProcessInstance, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}
	inst, err := s.instanceInProgress(instanceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stopped, err := s.closeWindow(inst, now)
	if err != nil {
		return nil, err
	}
	if !stopped {
		// The guarded update matched nothing: either the step is already
		// stopped, or a racing start persisted a start time after our read.
		// Re-read and, when a fresh start appeared, close against it.
		var cur models.ProcessInstance
		if err := s.db.First(&cur, inst.ID).Error; err != nil {
			return nil, err
		}
		if cur.EndTime != nil || cur.StartTime == nil {
			return nil, fmt.Errorf("%w: instance %d", models.ErrStepAlreadyStopped, inst.ID)
		}
		stopped, err = s.closeWindow(&cur, now)
		if err != nil {
			return nil, err
		}
		if !stopped {
			return nil, fmt.Errorf("%w: instance %d", models.ErrStepAlreadyStopped, inst.ID)
		}
	}

	return s.appendRemark(inst.ID, remarks)
}

// closeWindow records the end of one timing window. The synthetic fallback
// start is additionally guarded by "start_time IS NULL" so it can never
// clobber a start persisted between the caller's read and this update; the
// caller re-reads and retries against the recorded start instead.
func (s *Service) closeWindow(inst *models.ProcessInstance, now time.Time) (bool, error) {
	start := inst.StartTime
	updates := map[string]interface{}{
		"end_time":      now,
		"auto_recorded": true,
	}
	guard := "id = ? AND end_time IS NULL"
	if start == nil {
		if s.strict {
			return false, fmt.Errorf("%w: instance %d", models.ErrStepNotStarted, inst.ID)
		}
		start = &now
		updates["start_time"] = now
		guard = "id = ? AND end_time IS NULL AND start_time IS NULL"
	}
	updates["duration_minutes"] = DurationMinutes(*start, now)

	res := s.db.Model(&models.ProcessInstance{}).Where(guard, inst.ID).Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to stop step %d: %w", inst.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FinishBatch completes a running batch. The total is the sum of all owned
// step durations (never-stopped steps contribute zero and keep a null
// duration), not wall-clock end minus start; the two legitimately differ when
// steps run sequentially with gaps.
func (s *Service) FinishBatch(operator string, batchID uint) (*models.Batch, error) {
	if operator == "" {
		return nil, models.ErrAuthenticationRequired
	}

	var b models.Batch
	if err := s.db.First(&b, batchID).Error; err != nil {
		return nil, err
	}

	now := s.now().UTC()

	tx := s.db.Begin()
	res := tx.Model(&models.Batch{}).
		Where("id = ? AND status = ?", batchID, string(models.BatchStatusInProgress)).
		Updates(map[string]interface{}{
			"status":   string(models.BatchStatusCompleted),
			"end_time": now,
		})
	if res.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to finish batch %d: %w", batchID, res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: batch %d", models.ErrBatchNotInProgress, batchID)
	}

	// Summed inside the same transaction as the status flip so a stop
	// committing while the finish is underway is never left out of the total.
	var instances []models.ProcessInstance
	if err := tx.Where("batch_id = ?", batchID).Find(&instances).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	total := 0.0
	for _, inst := range instances {
		if inst.DurationMinutes != nil {
			total += *inst.DurationMinutes
		}
	}
	total = math.Round(total*1000) / 1000

	if err := tx.Model(&models.Batch{}).Where("id = ?", batchID).
		Update("total_duration_minutes", total).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := s.db.First(&b, batchID).Error; err != nil {
		return nil, err
	}
	s.log.Info("batch finished",
		zap.Uint("batch_id", b.ID),
		zap.Float64("total_minutes", total),
		zap.String("operator", operator))
	return &b, nil
}

// GetBatch loads one batch by id.
func (s *Service) GetBatch(batchID uint) (*models.Batch, error) {
	var b models.Batch
	if err := s.db.First(&b, batchID).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches pages batches newest first for the reporting consumer.
func (s *Service) ListBatches(limit, offset int) ([]models.Batch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var batches []models.Batch
	if err := s.db.Order("created_at desc, id desc").Limit(limit).Offset(offset).Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// ListInstances returns a batch's process instances in merged order.
func (s *Service) ListInstances(batchID uint) ([]models.ProcessInstance, error) {
	var instances []models.ProcessInstance
	if err := s.db.Where("batch_id = ?", batchID).
		Order("sequence_order asc, id asc").Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

// DeleteBatch removes a batch together with every process instance it owns.
func (s *Service) DeleteBatch(operator string, batchID uint) error {
	if operator == "" {
		return models.ErrAuthenticationRequired
	}
	var b models.Batch
	if err := s.db.First(&b, batchID).Error; err != nil {
		return err
	}

	tx := s.db.Begin()
	if err := tx.Where("batch_id = ?", batchID).Delete(&models.ProcessInstance{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&b).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// DurationMinutes converts a timing window into fractional minutes with
// three-decimal precision. A window that somehow ends before it starts is
// clamped to zero, never stored negative.
func DurationMinutes(start, end time.Time) float64 {
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return math.Round(float64(ms)/60000*1000) / 1000
}

// instanceInProgress loads an instance and checks its batch still accepts
// stopwatch actions.
func (s *Service) instanceInProgress(instanceID uint) (*models.ProcessInstance, error) {
	var inst models.ProcessInstance
	if err := s.db.First(&inst, instanceID).Error; err != nil {
		return nil, err
	}
	var b models.Batch
	if err := s.db.First(&b, inst.BatchID).Error; err != nil {
		return nil, err
	}
	if !b.IsInProgress() {
		return nil, fmt.Errorf("%w: batch %d", models.ErrBatchNotInProgress, b.ID)
	}
	return &inst, nil
}

// appendRemark records an optional operator remark and returns the fresh row.
func (s *Service) appendRemark(instanceID uint, remark string) (*models.ProcessInstance, error) {
	var inst models.ProcessInstance
	if err := s.db.First(&inst, instanceID).Error; err != nil {
		return nil, err
	}
	if remark != "" {
		inst.AppendRemark(remark)
		if err := s.db.Model(&inst).Update("remarks", inst.Remarks).Error; err != nil {
			return nil, err
		}
	}
	return &inst, nil
}

// productLabel resolves and validates the product selection into a
// human-readable description.
func (s *Service) productLabel(productIDs []uint) (string, error) {
	if len(productIDs) == 0 {
		return "", nil
	}
	var tpls []models.ProductTemplate
	if err := s.db.Where("id IN (?)", productIDs).Find(&tpls).Error; err != nil {
		return "", err
	}
	found := make(map[uint]string, len(tpls))
	for _, tpl := range tpls {
		found[tpl.ID] = tpl.Name
	}
	names := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		name, ok := found[id]
		if !ok {
			return "", fmt.Errorf("product template %d: %w", id, gorm.ErrRecordNotFound)
		}
		names = append(names, name)
	}
	return strings.Join(names, " + "), nil
}

// dedupIDs drops repeated ids, keeping first-seen order.
func dedupIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// newBatchCode builds the human-facing batch reference.
func newBatchCode(now time.Time) string {
	return fmt.Sprintf("B-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.New().String()[:8]))
}
