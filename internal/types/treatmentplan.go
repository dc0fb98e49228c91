package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusAdjusted  PlanStatus = "adjusted"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

type AdjustmentReason string

const (
	AdjustScoreDecline     AdjustmentReason = "score_decline"
	AdjustSevereIrritation AdjustmentReason = "severe_irritation"
	AdjustUserRequest      AdjustmentReason = "user_request"
	AdjustPlanCompletion   AdjustmentReason = "plan_completion"
)

// TreatmentPlan is a locked skincare routine. At most one plan per user may
// be active at any time. Adjustment closes the current plan and opens a
// successor with version+1 and previous_plan_id set; plans are never revived
// or hard-deleted.
type TreatmentPlan struct {
	ID     uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID  `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	Status PlanStatus `gorm:"not null;default:active;column:status" json:"status"`

	Version        int    `gorm:"not null;default:1;column:version" json:"version"`
	PrimaryConcern string `gorm:"not null;column:primary_concern" json:"primary_concern"`

	StartDate        time.Time  `gorm:"not null;column:start_date" json:"start_date"`
	PlannedEndDate   time.Time  `gorm:"not null;column:planned_end_date" json:"planned_end_date"`
	ActualEndDate    *time.Time `gorm:"column:actual_end_date" json:"actual_end_date,omitempty"`
	LockDurationDays int        `gorm:"not null;column:lock_duration_days" json:"lock_duration_days"`

	BaselineScanID *uuid.UUID `gorm:"type:uuid;column:baseline_scan_id" json:"baseline_scan_id,omitempty"`

	AMRoutine           datatypes.JSON `gorm:"not null;column:am_routine" json:"am_routine"`
	PMRoutine           datatypes.JSON `gorm:"not null;column:pm_routine" json:"pm_routine"`
	RecommendedProducts datatypes.JSON `gorm:"column:recommended_products" json:"recommended_products,omitempty"`

	Instructions string `gorm:"column:instructions" json:"instructions,omitempty"`
	Warnings     string `gorm:"column:warnings" json:"warnings,omitempty"`

	CanAdjust        bool             `gorm:"column:can_adjust;default:false" json:"can_adjust"`
	AdjustmentReason AdjustmentReason `gorm:"column:adjustment_reason" json:"adjustment_reason,omitempty"`
	AdjustmentNotes  string           `gorm:"column:adjustment_notes" json:"adjustment_notes,omitempty"`

	PreviousPlanID *uuid.UUID `gorm:"type:uuid;column:previous_plan_id" json:"previous_plan_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TreatmentPlan) TableName() string {
	return "treatment_plan"
}

// IsLocked reports whether the plan is still inside its lock period. The
// boundary is exclusive: on planned_end_date itself the plan is unlocked.
func (p *TreatmentPlan) IsLocked(now time.Time) bool {
	if p.Status != PlanStatusActive {
		return false
	}
	return truncateToDay(now).Before(truncateToDay(p.PlannedEndDate))
}

// DaysRemaining is the whole days left in the lock period, 0 for any
// non-active plan.
func (p *TreatmentPlan) DaysRemaining(now time.Time) int {
	if p.Status != PlanStatusActive {
		return 0
	}
	d := int(truncateToDay(p.PlannedEndDate).Sub(truncateToDay(now)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// DaysElapsed is the whole days since the plan started.
func (p *TreatmentPlan) DaysElapsed(now time.Time) int {
	return int(truncateToDay(now).Sub(truncateToDay(p.StartDate)).Hours() / 24)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
