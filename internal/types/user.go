package types

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email    string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password string    `gorm:"not null;column:password" json:"-"`
	FullName string    `gorm:"column:full_name" json:"full_name"`

	// Skin profile, captured at registration and editable afterwards.
	SkinType       string `gorm:"column:skin_type" json:"skin_type"`
	PrimaryConcern string `gorm:"column:primary_concern" json:"primary_concern"`
	Sensitivity    bool   `gorm:"column:sensitivity;default:false" json:"sensitivity"`

	IsActive  bool       `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;default:now()" json:"updated_at"`
	LastLogin *time.Time `gorm:"column:last_login" json:"last_login,omitempty"`
}

func (User) TableName() string {
	return "user"
}
