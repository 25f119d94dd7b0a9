package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InviteRecord is an audit row written whenever an invite batch is
// submitted for a meeting.
type InviteRecord struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	MeetingID string    `gorm:"type:varchar(36);not null;index" json:"meeting_id"`
	Scope     string    `gorm:"type:varchar(36);not null" json:"scope"`
	Requested int       `gorm:"not null" json:"requested"`
	Failed    int       `gorm:"not null" json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *InviteRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
