package validation

import (
	"fmt"

	"halwakitchen/internal/models"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// History comparison knobs. A finished batch is compared against the mean
// total of up to historyDepth most-recent batches sharing its product
// selection and start weight; falling outside [lowFactor, highFactor] of that
// mean is treated as a detected shift regardless of per-step results.
const (
	historyDepth = 3
	highFactor   = 1.5
	lowFactor    = 0.5
)

// Service is the validation engine. Given a completed batch it scores every
// recorded step duration against the process type tolerance windows, compares
// the batch total against recent matching history, and persists the verdict
// exactly once at the completed -> validated transition.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewService creates a new validation service
func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// ValidateBatch runs all checks once, deterministically, and records the
// verdict. Checks only ever escalate on the good < moderate < shift_detected
// scale. The transition is one-shot: an already-validated batch is rejected
// with ErrAlreadyValidated and its stored verdict is never touched.
func (s *Service) ValidateBatch(validator string, batchID uint, comments string) (*models.Batch, error) {
	if validator == "" {
		return nil, models.ErrAuthenticationRequired
	}

	var b models.Batch
	if err := s.db.First(&b, batchID).Error; err != nil {
		return nil, err
	}
	switch b.Status {
	case string(models.BatchStatusValidated):
		return nil, fmt.Errorf("%w: batch %d", models.ErrAlreadyValidated, batchID)
	case string(models.BatchStatusInProgress):
		return nil, fmt.Errorf("%w: batch %d", models.ErrBatchNotCompleted, batchID)
	}

	verdict, err := s.scoreSteps(batchID)
	if err != nil {
		return nil, err
	}

	historyVerdict, err := s.scoreAgainstHistory(&b)
	if err != nil {
		return nil, err
	}
	verdict = models.Escalate(verdict, historyVerdict)

	// One-shot persist: the guard on status loses gracefully to a racing
	// validation instead of overwriting its verdict.
	res := s.db.Model(&models.Batch{}).
		Where("id = ? AND status = ?", batchID, string(models.BatchStatusCompleted)).
		Updates(map[string]interface{}{
			"status":              string(models.BatchStatusValidated),
			"validation_status":   string(verdict),
			"validated_by":        validator,
			"validation_comments": comments,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to validate batch %d: %w", batchID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: batch %d", models.ErrAlreadyValidated, batchID)
	}

	if err := s.db.First(&b, batchID).Error; err != nil {
		return nil, err
	}
	s.log.Info("batch validated",
		zap.Uint("batch_id", b.ID),
		zap.String("verdict", string(verdict)),
		zap.String("validated_by", validator))
	return &b, nil
}

// scoreSteps scores every recorded step duration against its process type's
// tolerance window. Outside [standard-buffer, standard+buffer] escalates to
// moderate; beyond double the window on either side (above 2x the upper bound
// or below half the lower bound) escalates straight to shift_detected.
// Never-timed steps are skipped.
func (s *Service) scoreSteps(batchID uint) (models.Verdict, error) {
	var instances []models.ProcessInstance
	if err := s.db.Where("batch_id = ? AND duration_minutes IS NOT NULL", batchID).
		Find(&instances).Error; err != nil {
		return models.VerdictGood, err
	}
	if len(instances) == 0 {
		return models.VerdictGood, nil
	}

	typeIDs := make([]uint, 0, len(instances))
	for _, inst := range instances {
		typeIDs = append(typeIDs, inst.ProcessTypeID)
	}
	var types []models.ProcessType
	if err := s.db.Where("id IN (?)", typeIDs).Find(&types).Error; err != nil {
		return models.VerdictGood, err
	}
	byID := make(map[uint]models.ProcessType, len(types))
	for _, pt := range types {
		byID[pt.ID] = pt
	}

	verdict := models.VerdictGood
	for _, inst := range instances {
		pt, ok := byID[inst.ProcessTypeID]
		if !ok {
			continue
		}
		verdict = models.Escalate(verdict, scoreDuration(*inst.DurationMinutes, &pt))
	}
	return verdict, nil
}

// scoreDuration classifies one recorded duration against a process type.
func scoreDuration(minutes float64, pt *models.ProcessType) models.Verdict {
	lower, upper := pt.ToleranceWindow()
	if minutes >= lower && minutes <= upper {
		return models.VerdictGood
	}
	if minutes > 2*upper || minutes < lowFactor*lower {
		return models.VerdictShiftDetected
	}
	return models.VerdictModerate
}

// scoreAgainstHistory compares the batch total against the mean total of up
// to three most-recent other batches over the same product selection and
// start weight. With no comparable history the check is skipped entirely.
func (s *Service) scoreAgainstHistory(b *models.Batch) (models.Verdict, error) {
	if b.TotalDurationMinutes == nil {
		return models.VerdictGood, nil
	}

	var prior []models.Batch
	err := s.db.Where(
		"id <> ? AND product_key = ? AND start_weight_kg = ? AND total_duration_minutes IS NOT NULL",
		b.ID, b.ProductKey, b.StartWeightKg).
		Order("created_at desc, id desc").
		Limit(historyDepth).
		Find(&prior).Error
	if err != nil {
		return models.VerdictGood, err
	}
	if len(prior) == 0 {
		return models.VerdictGood, nil
	}

	sum := 0.0
	for _, p := range prior {
		sum += *p.TotalDurationMinutes
	}
	mean := sum / float64(len(prior))

	total := *b.TotalDurationMinutes
	if total > highFactor*mean || total < lowFactor*mean {
		return models.VerdictShiftDetected, nil
	}
	return models.VerdictGood, nil
}
