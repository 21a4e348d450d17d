package catalog

import (
	"fmt"
	"sort"

	"halwakitchen/internal/models"

	"github.com/jinzhu/gorm"
)

// MergedStep is one entry of a batch's materialized process list: a process
// type at its merged position.
type MergedStep struct {
	ProcessTypeID uint
	SequenceOrder int
}

// MergeTemplates combines the template steps of the selected products into a
// single deduplicated, ordered process list.
//
// When the same process type is mapped by more than one selected product, the
// smallest sequence order seen wins (earliest-requested position). Inactive
// process types are skipped so that deactivated registry entries never reach
// new batches. The result depends only on the set of products, not on the
// order they were selected in; ties on sequence order fall back to process
// type id so the output is fully deterministic.
func MergeTemplates(db *gorm.DB, productIDs []uint) ([]MergedStep, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	var steps []models.TemplateStep
	if err := db.Where("product_template_id IN (?)", productIDs).Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to load template steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, nil
	}

	// Dedup by process type, keeping the smallest sequence order seen.
	best := make(map[uint]int, len(steps))
	for _, s := range steps {
		if cur, ok := best[s.ProcessTypeID]; !ok || s.SequenceOrder < cur {
			best[s.ProcessTypeID] = s.SequenceOrder
		}
	}

	typeIDs := make([]uint, 0, len(best))
	for id := range best {
		typeIDs = append(typeIDs, id)
	}

	var activeTypes []models.ProcessType
	if err := db.Where("id IN (?) AND active = ?", typeIDs, true).Find(&activeTypes).Error; err != nil {
		return nil, fmt.Errorf("failed to load process types: %w", err)
	}

	merged := make([]MergedStep, 0, len(activeTypes))
	for _, pt := range activeTypes {
		merged = append(merged, MergedStep{
			ProcessTypeID: pt.ID,
			SequenceOrder: best[pt.ID],
		})
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].SequenceOrder != merged[j].SequenceOrder {
			return merged[i].SequenceOrder < merged[j].SequenceOrder
		}
		return merged[i].ProcessTypeID < merged[j].ProcessTypeID
	})

	return merged, nil
}
