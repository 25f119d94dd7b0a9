package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomKind tells a plain conference room apart from a video room that is
// reached through a SIP gateway.
type RoomKind string

const (
	RoomKindConference RoomKind = "room"
	RoomKindVideoSIPGW RoomKind = "videosipgw"
)

// DirectoryRoom is a room listed in the local directory.
type DirectoryRoom struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Kind      RoomKind  `gorm:"type:varchar(20);not null;index;default:room" json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *DirectoryRoom) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
