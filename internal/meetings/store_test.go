package meetings

import (
	"errors"
	"testing"
	"time"

	"github.com/tariel-x/gomeet/internal/models"
)

func TestCreateGeneratesUniqueIDs(t *testing.T) {
	store := NewStore()
	base := time.Unix(1_700_000_000, 0)

	first, err := store.Create(base)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	second, err := store.Create(base.Add(10 * time.Second))
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	if first.ID == second.ID {
		t.Fatalf("expected unique meeting IDs, got duplicate %s", first.ID)
	}
	if first.Status != models.MeetingStatusWaiting {
		t.Fatalf("new meeting should be waiting, got %s", first.Status)
	}
	if len(first.Participants) != 0 {
		t.Fatalf("new meeting should be empty, got %d participants", len(first.Participants))
	}
}

func TestFirstJoinBecomesHost(t *testing.T) {
	store := NewStore()
	base := time.Unix(1_700_100_000, 0)

	meeting, _ := store.Create(base)

	hostID, ref, err := store.Join(meeting.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("host join failed: %v", err)
	}
	if ref.Participants[hostID].Role != models.ParticipantRoleHost {
		t.Fatalf("first peer should be host, got %s", ref.Participants[hostID].Role)
	}
	if ref.Status != models.MeetingStatusWaiting {
		t.Fatalf("meeting with one peer should still be waiting, got %s", ref.Status)
	}

	guestID, ref, err := store.Join(meeting.ID, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("guest join failed: %v", err)
	}
	if ref.Participants[guestID].Role != models.ParticipantRoleGuest {
		t.Fatalf("second peer should be guest, got %s", ref.Participants[guestID].Role)
	}
	if ref.Status != models.MeetingStatusActive {
		t.Fatalf("meeting with two peers should be active, got %s", ref.Status)
	}

	got, err := store.HostPeerID(meeting.ID, base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("HostPeerID failed: %v", err)
	}
	if got != hostID {
		t.Fatalf("expected host %s, got %s", hostID, got)
	}
}

func TestHostPeerIDBeforeAnyJoin(t *testing.T) {
	store := NewStore()
	base := time.Unix(1_700_150_000, 0)

	meeting, _ := store.Create(base)
	if _, err := store.HostPeerID(meeting.ID, base.Add(time.Second)); !errors.Is(err, ErrNoHost) {
		t.Fatalf("expected ErrNoHost, got %v", err)
	}
}

func TestJoinRespectsCapacity(t *testing.T) {
	store := NewStore()
	store.maxParticipants = 2
	base := time.Unix(1_700_200_000, 0)

	meeting, _ := store.Create(base)
	if _, _, err := store.Join(meeting.ID, base.Add(time.Second)); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if _, _, err := store.Join(meeting.ID, base.Add(2*time.Second)); err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if _, _, err := store.Join(meeting.ID, base.Add(3*time.Second)); !errors.Is(err, ErrMeetingFull) {
		t.Fatalf("expected ErrMeetingFull, got %v", err)
	}
}

func TestValidatePeerTracksReconnects(t *testing.T) {
	store := NewStore()
	base := time.Unix(1_700_300_000, 0)

	meeting, _ := store.Create(base)
	peerID, _, err := store.Join(meeting.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	role, _, reconnected, err := store.ValidatePeer(meeting.ID, peerID, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if role != models.ParticipantRoleHost || reconnected {
		t.Fatalf("expected present host, got role=%s reconnected=%v", role, reconnected)
	}

	store.MarkPeerDisconnected(meeting.ID, peerID, base.Add(3*time.Second))

	_, ref, reconnected, err := store.ValidatePeer(meeting.ID, peerID, base.Add(4*time.Second))
	if err != nil {
		t.Fatalf("validate after disconnect failed: %v", err)
	}
	if !reconnected {
		t.Fatal("expected a reconnect after disconnection")
	}
	if ref.Participants[peerID].ReconnectCount != 1 {
		t.Fatalf("expected reconnect count 1, got %d", ref.Participants[peerID].ReconnectCount)
	}

	if _, _, _, err := store.ValidatePeer(meeting.ID, "stranger", base.Add(5*time.Second)); !errors.Is(err, ErrInvalidPeer) {
		t.Fatalf("expected ErrInvalidPeer, got %v", err)
	}
}

func TestListByStatusTracksUpdates(t *testing.T) {
	store := NewStore()
	base := time.Unix(1_700_400_000, 0)

	meetingA, _ := store.Create(base)
	meetingB, _ := store.Create(base.Add(time.Second))

	waiting, err := store.ListByStatus(models.MeetingStatusWaiting, 0, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("list waiting failed: %v", err)
	}
	if len(waiting) != 2 {
		t.Fatalf("expected 2 waiting meetings, got %d", len(waiting))
	}

	if _, _, err := store.Join(meetingA.ID, base.Add(3*time.Second)); err != nil {
		t.Fatalf("join meetingA failed: %v", err)
	}
	if _, _, err := store.Join(meetingA.ID, base.Add(4*time.Second)); err != nil {
		t.Fatalf("second join meetingA failed: %v", err)
	}

	waiting, err = store.ListByStatus(models.MeetingStatusWaiting, 0, base.Add(5*time.Second))
	if err != nil {
		t.Fatalf("list waiting after joins failed: %v", err)
	}
	if len(waiting) != 1 || waiting[0].ID != meetingB.ID {
		t.Fatalf("expected only meetingB waiting, got %+v", waiting)
	}

	active, err := store.ListByStatus(models.MeetingStatusActive, 0, base.Add(5*time.Second))
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != meetingA.ID {
		t.Fatalf("expected meetingA active, got %+v", active)
	}
}

func TestEndAndExpiryRemoveMeeting(t *testing.T) {
	store := NewStore()
	base := time.Unix(1_700_500_000, 0)

	meeting, _ := store.Create(base)

	// Manual end removes the meeting
	if _, err := store.End(meeting.ID, base.Add(time.Second)); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := store.GetByID(meeting.ID, base.Add(2*time.Second)); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("expected ErrMeetingNotFound after end, got %v", err)
	}

	// Expiry after TTL
	store.meetingTTL = time.Millisecond
	created := base.Add(3 * time.Second)
	second, _ := store.Create(created)
	beforeExpiry := created.Add(500 * time.Microsecond)
	if _, err := store.GetByID(second.ID, beforeExpiry); err != nil {
		t.Fatalf("meeting should be available before TTL, got %v", err)
	}
	afterExpiry := created.Add(2 * time.Millisecond)
	if _, err := store.GetByID(second.ID, afterExpiry); !errors.Is(err, ErrMeetingEnded) {
		t.Fatalf("expected ErrMeetingEnded after ttl, got %v", err)
	}
}

func TestSnapshotsAreDetached(t *testing.T) {
	store := NewStore()
	base := time.Unix(1_700_600_000, 0)

	meeting, _ := store.Create(base)
	peerID, snapshot, err := store.Join(meeting.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Mutating the snapshot must not leak into the store.
	snapshot.Participants[peerID].IsPresent = false

	current, err := store.GetByID(meeting.ID, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !current.Participants[peerID].IsPresent {
		t.Fatal("snapshot mutation leaked into the store")
	}
}
