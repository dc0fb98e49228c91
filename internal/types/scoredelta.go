package types

import (
	"time"

	"github.com/google/uuid"
)

// ScoreDelta is a write-once fact about one metric across one ordered scan
// pair. Deltas are recomputed (new rows) whenever a new completed scan
// appears; existing rows are never updated.
type ScoreDelta struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CurrentScanID  uuid.UUID  `gorm:"type:uuid;not null;index;column:current_scan_id" json:"current_scan_id"`
	PreviousScanID uuid.UUID  `gorm:"type:uuid;not null;column:previous_scan_id" json:"previous_scan_id"`
	MetricName     string     `gorm:"not null;column:metric_name" json:"metric_name"`
	PreviousScore  float64    `gorm:"not null;column:previous_score" json:"previous_score"`
	CurrentScore   float64    `gorm:"not null;column:current_score" json:"current_score"`
	Delta          float64    `gorm:"not null;column:delta" json:"delta"`
	PercentChange  float64    `gorm:"not null;column:percent_change" json:"percent_change"`
	Improvement    bool       `gorm:"not null;column:improvement" json:"improvement"`
	IsSignificant  bool       `gorm:"not null;default:false;column:is_significant" json:"is_significant"`
	DaysBetween    int        `gorm:"not null;column:days_between_scans" json:"days_between_scans"`
	PlanID         *uuid.UUID `gorm:"type:uuid;column:treatment_plan_id" json:"treatment_plan_id,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (ScoreDelta) TableName() string {
	return "score_delta"
}
