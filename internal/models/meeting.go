package models

import "time"

// MeetingStatus is the lifecycle state of a meeting room.
// Keep values stable because they are part of the public API.
type MeetingStatus string

const (
	MeetingStatusWaiting MeetingStatus = "waiting"
	MeetingStatusActive  MeetingStatus = "active"
	MeetingStatusEnded   MeetingStatus = "ended"
)

type ParticipantRole string

const (
	ParticipantRoleHost  ParticipantRole = "host"
	ParticipantRoleGuest ParticipantRole = "guest"
)

type MeetingParticipant struct {
	PeerID         string          `json:"peer_id"`
	Role           ParticipantRole `json:"role"`
	JoinedAt       time.Time       `json:"joined_at"`
	DisconnectedAt time.Time       `json:"disconnected_at,omitempty"`
	IsPresent      bool            `json:"is_present"`
	ReconnectCount int             `json:"reconnect_count"`
}

type Meeting struct {
	ID           string                         `json:"meeting_id"`
	Status       MeetingStatus                  `json:"status"`
	CreatedAt    time.Time                      `json:"created_at"`
	UpdatedAt    time.Time                      `json:"updated_at"`
	ExpiresAt    time.Time                      `json:"expires_at"`
	Participants map[string]*MeetingParticipant `json:"-"`
}

func (m *Meeting) PresentCount() int {
	count := 0
	for _, p := range m.Participants {
		if p.IsPresent {
			count++
		}
	}
	return count
}

// Host returns the participant who created the meeting, or nil before the
// first join.
func (m *Meeting) Host() *MeetingParticipant {
	for _, p := range m.Participants {
		if p.Role == ParticipantRoleHost {
			return p
		}
	}
	return nil
}

// Snapshot deep-copies the meeting so callers can read it without holding
// the store lock.
func (m *Meeting) Snapshot() *Meeting {
	out := *m
	out.Participants = make(map[string]*MeetingParticipant, len(m.Participants))
	for id, p := range m.Participants {
		participant := *p
		out.Participants[id] = &participant
	}
	return &out
}
