package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatMessage struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	Role    string    `gorm:"not null;column:role" json:"role"`
	Content string    `gorm:"not null;column:content" json:"content"`

	SessionID string `gorm:"index;column:session_id" json:"session_id"`

	// Context pinned at the time of the message.
	CurrentScanID    *uuid.UUID     `gorm:"type:uuid;column:current_scan_id" json:"current_scan_id,omitempty"`
	CurrentPlanID    *uuid.UUID     `gorm:"type:uuid;column:current_plan_id" json:"current_plan_id,omitempty"`
	ReportedConcerns datatypes.JSON `gorm:"column:reported_concerns" json:"reported_concerns,omitempty"`

	ModelUsed      string `gorm:"column:model_used" json:"model_used,omitempty"`
	ResponseTimeMS *int   `gorm:"column:response_time_ms" json:"response_time_ms,omitempty"`

	ContainsMedicalAdvice bool `gorm:"column:contains_medical_advice;default:false" json:"contains_medical_advice"`
	RequiresFollowUp      bool `gorm:"column:requires_follow_up;default:false" json:"requires_follow_up"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_message"
}
