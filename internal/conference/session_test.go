package conference

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/models"
)

type fakePeers struct {
	meetingID string
	peerID    string
	payloads  [][]byte
	connected bool
}

func (f *fakePeers) SendTo(meetingID, peerID string, payload []byte) bool {
	f.meetingID = meetingID
	f.peerID = peerID
	f.payloads = append(f.payloads, payload)
	return f.connected
}

func newJoinedMeeting(t *testing.T, store *meetings.Store) (meetingID, hostID string) {
	t.Helper()

	// The session resolves the host with its own clock, so the meeting
	// must be created against the real one to stay inside its TTL.
	base := time.Now()
	meeting, err := store.Create(base)
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	hostID, _, err = store.Join(meeting.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("join meeting: %v", err)
	}
	return meeting.ID, hostID
}

func TestJoinURL(t *testing.T) {
	session := NewSession("abc123", meetings.NewStore(), &fakePeers{}, "https://meet.example.com/")
	if got := session.JoinURL(); got != "https://meet.example.com/m/abc123" {
		t.Errorf("unexpected join url %q", got)
	}
}

func TestDialRelaysToHost(t *testing.T) {
	store := meetings.NewStore()
	meetingID, hostID := newJoinedMeeting(t, store)
	peers := &fakePeers{connected: true}
	session := NewSession(meetingID, store, peers, "https://meet.example.com")

	if err := session.Dial(context.Background(), "15551234567"); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if peers.meetingID != meetingID || peers.peerID != hostID {
		t.Errorf("dial must target the host, got meeting=%s peer=%s", peers.meetingID, peers.peerID)
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Number string `json:"number"`
		} `json:"data"`
	}
	if err := json.Unmarshal(peers.payloads[0], &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.Type != "dial-request" || event.Data.Number != "15551234567" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestDialFailsWhenHostOffline(t *testing.T) {
	store := meetings.NewStore()
	meetingID, _ := newJoinedMeeting(t, store)
	session := NewSession(meetingID, store, &fakePeers{connected: false}, "https://meet.example.com")

	if err := session.Dial(context.Background(), "15551234567"); err == nil {
		t.Fatal("expected error when the host is not connected")
	}
}

func TestDialFailsWithoutHost(t *testing.T) {
	store := meetings.NewStore()
	meeting, err := store.Create(time.Now())
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	session := NewSession(meeting.ID, store, &fakePeers{connected: true}, "https://meet.example.com")

	if err := session.Dial(context.Background(), "15551234567"); err == nil {
		t.Fatal("expected error for a meeting nobody joined")
	}
}

func TestInviteVideoRooms(t *testing.T) {
	store := meetings.NewStore()
	meetingID, _ := newJoinedMeeting(t, store)
	peers := &fakePeers{connected: true}
	session := NewSession(meetingID, store, peers, "https://meet.example.com")

	rooms := models.CandidateList{models.VideoSIPGW{ID: "g1", Name: "Board room"}}
	if !session.InviteVideoRooms(rooms) {
		t.Fatal("expected handoff to succeed")
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Rooms models.CandidateList `json:"rooms"`
		} `json:"data"`
	}
	if err := json.Unmarshal(peers.payloads[0], &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.Type != "videosipgw-invite" || len(event.Data.Rooms) != 1 {
		t.Errorf("unexpected event %+v", event)
	}

	offline := NewSession(meetingID, store, &fakePeers{connected: false}, "https://meet.example.com")
	if offline.InviteVideoRooms(rooms) {
		t.Error("handoff must report false when the host is offline")
	}
}
