package conference

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/models"
)

// PeerSender delivers a payload to one connected peer. The WebSocket hub
// satisfies it.
type PeerSender interface {
	SendTo(meetingID, peerID string, payload []byte) bool
}

// Session exposes the conference-side capabilities invites need: placing
// an outbound call and pulling video gateway rooms in. Both are relayed to
// the meeting's host client, which owns the actual signaling legs.
type Session struct {
	meetingID string
	meetings  *meetings.Store
	peers     PeerSender
	baseURL   string
	nowFn     func() time.Time
}

func NewSession(meetingID string, store *meetings.Store, peers PeerSender, baseURL string) *Session {
	return &Session{
		meetingID: meetingID,
		meetings:  store,
		peers:     peers,
		baseURL:   strings.TrimRight(baseURL, "/"),
		nowFn:     time.Now,
	}
}

// JoinURL is the link invited people follow into this meeting.
func (s *Session) JoinURL() string {
	return s.baseURL + "/m/" + s.meetingID
}

type hostEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type dialRequest struct {
	Number string `json:"number"`
}

type videoRoomRequest struct {
	Rooms models.CandidateList `json:"rooms"`
}

// Dial asks the host client to place the outbound call leg.
func (s *Session) Dial(ctx context.Context, number string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hostID, err := s.meetings.HostPeerID(s.meetingID, s.nowFn())
	if err != nil {
		return err
	}

	payload, err := encodeHostEvent("dial-request", dialRequest{Number: number})
	if err != nil {
		return err
	}
	if !s.peers.SendTo(s.meetingID, hostID, payload) {
		return errors.New("meeting host is not connected")
	}
	return nil
}

// InviteVideoRooms relays gateway rooms to the host client. Delivery is not
// tracked beyond the immediate send.
func (s *Session) InviteVideoRooms(items models.CandidateList) bool {
	hostID, err := s.meetings.HostPeerID(s.meetingID, s.nowFn())
	if err != nil {
		return false
	}

	payload, err := encodeHostEvent("videosipgw-invite", videoRoomRequest{Rooms: items})
	if err != nil {
		return false
	}
	return s.peers.SendTo(s.meetingID, hostID, payload)
}

func encodeHostEvent(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hostEvent{Type: eventType, Data: raw})
}
