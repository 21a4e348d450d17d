package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
)

// UintSlice represents a slice of ids that can be stored in the database
type UintSlice []uint

// Value converts the slice to a JSON string for storage
func (s UintSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan converts the database value back to a slice
func (s *UintSlice) Scan(value interface{}) error {
	if value == nil {
		*s = UintSlice{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("unsupported type for UintSlice")
	}
}

// Key returns the canonical form of the selection: ids sorted ascending and
// joined with commas. Two batches over the same product set share a key
// regardless of the order the products were picked in.
func (s UintSlice) Key() string {
	ids := make([]uint, len(s))
	copy(ids, s)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusValidated  BatchStatus = "validated"
)

// Verdict represents the validation outcome of a completed batch
type Verdict string

const (
	VerdictGood          Verdict = "good"
	VerdictModerate      Verdict = "moderate"
	VerdictShiftDetected Verdict = "shift_detected"
)

// verdict severity ranks; escalation only ever moves up this scale
var verdictRank = map[Verdict]int{
	VerdictGood:          0,
	VerdictModerate:      1,
	VerdictShiftDetected: 2,
}

// Escalate returns the more severe of the two verdicts.
func Escalate(current, proposed Verdict) Verdict {
	if verdictRank[proposed] > verdictRank[current] {
		return proposed
	}
	return current
}

// Batch is one production run of a product selection at a given start weight,
// tracked from creation through completion to validation. Status moves
// forward only: in_progress -> completed -> validated. ValidationStatus is
// set exactly once, at the completed -> validated transition.
type Batch struct {
	gorm.Model
	Code                 string     `gorm:"index" json:"code"`
	ProductIDs           UintSlice  `gorm:"type:text" json:"product_ids"`
	ProductKey           string     `gorm:"index" json:"-"`
	ProductLabel         string     `json:"product_label"`
	StartWeightKg        float64    `json:"start_weight_kg"`
	Operator             string     `json:"operator"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	TotalDurationMinutes *float64   `json:"total_duration_minutes,omitempty"`
	Status               string     `gorm:"index" json:"status"`
	ValidationStatus     *string    `json:"validation_status,omitempty"`
	ValidatedBy          string     `json:"validated_by,omitempty"`
	ValidationComments   string     `json:"validation_comments,omitempty"`
}

// TableName sets the table name for Batch
func (Batch) TableName() string {
	return "batches"
}

// IsInProgress reports whether stopwatch actions are still allowed.
func (b *Batch) IsInProgress() bool {
	return b.Status == string(BatchStatusInProgress)
}

// ProcessInstance is a batch's concrete timed step. Instances are
// materialized in bulk at batch creation, then individually started and
// stopped. DurationMinutes is set only once both timestamps exist and is
// never negative.
type ProcessInstance struct {
	gorm.Model
	BatchID         uint       `gorm:"index;not null" json:"batch_id"`
	ProcessTypeID   uint       `gorm:"index;not null" json:"process_type_id"`
	SequenceOrder   int        `json:"sequence_order"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *float64   `json:"duration_minutes,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
	AutoRecorded    bool       `json:"auto_recorded"`
}

// TableName sets the table name for ProcessInstance
func (ProcessInstance) TableName() string {
	return "process_instances"
}

// AppendRemark appends a free-text remark to the instance ledger. Earlier
// remarks are never overwritten.
func (pi *ProcessInstance) AppendRemark(remark string) {
	if remark == "" {
		return
	}
	if pi.Remarks == "" {
		pi.Remarks = remark
		return
	}
	pi.Remarks = pi.Remarks + "\n" + remark
}
