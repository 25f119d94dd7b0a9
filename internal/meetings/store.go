package meetings

import (
	"errors"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tariel-x/gomeet/internal/models"
)

var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrMeetingFull     = errors.New("meeting is full")
	ErrMeetingEnded    = errors.New("meeting already ended")
	ErrInvalidPeer     = errors.New("unknown peer for this meeting")
	ErrNoHost          = errors.New("meeting has no host yet")
)

const defaultMaxParticipants = 8

// Store keeps the live meetings in memory. All read paths hand out
// snapshots: a meeting carries a participant map, and callers such as the
// heartbeat loop read it outside the store lock.
type Store struct {
	mu              sync.Mutex
	meetings        map[string]*models.Meeting
	statusIndex     map[models.MeetingStatus]map[string]struct{}
	meetingTTL      time.Duration
	cleanupInterval time.Duration
	maxParticipants int
}

func NewStore() *Store {
	s := &Store{
		meetings: make(map[string]*models.Meeting),
		statusIndex: map[models.MeetingStatus]map[string]struct{}{
			models.MeetingStatusWaiting: {},
			models.MeetingStatusActive:  {},
		},
		meetingTTL:      30 * time.Minute,
		cleanupInterval: 3 * time.Hour,
		maxParticipants: defaultMaxParticipants,
	}
	go s.cleanupLoop()
	return s
}

// Create mints an empty meeting room. Nobody is inside yet; the first peer
// to join becomes the host.
func (s *Store) Create(now time.Time) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := gonanoid.New(16)
	if err != nil {
		return nil, err
	}

	meeting := &models.Meeting{
		ID:           id,
		Status:       models.MeetingStatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.meetingTTL),
		Participants: make(map[string]*models.MeetingParticipant),
	}

	s.meetings[id] = meeting
	s.syncStatusIndexLocked(id, models.MeetingStatusWaiting)
	return meeting.Snapshot(), nil
}

func (s *Store) GetByID(meetingID string, now time.Time) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, err := s.loadActiveMeetingLocked(meetingID, now)
	if err != nil {
		return nil, err
	}
	return meeting.Snapshot(), nil
}

func (s *Store) ListByStatus(status models.MeetingStatus, limit int, now time.Time) ([]*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked(now)

	bucket, ok := s.statusIndex[status]
	if !ok || len(bucket) == 0 {
		return nil, nil
	}

	meetings := make([]*models.Meeting, 0, len(bucket))
	for id := range bucket {
		if meeting, exists := s.meetings[id]; exists {
			meetings = append(meetings, meeting.Snapshot())
		}
	}

	sort.Slice(meetings, func(i, j int) bool {
		if meetings[i].CreatedAt.Equal(meetings[j].CreatedAt) {
			return meetings[i].ID < meetings[j].ID
		}
		return meetings[i].CreatedAt.Before(meetings[j].CreatedAt)
	})

	if limit > 0 && len(meetings) > limit {
		meetings = meetings[:limit]
	}

	return meetings, nil
}

// Join adds a peer to the meeting and returns its minted peer id. The first
// peer in becomes the host; the meeting turns active once two peers are
// present.
func (s *Store) Join(meetingID string, now time.Time) (peerID string, meeting *models.Meeting, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.loadActiveMeetingLocked(meetingID, now)
	if err != nil {
		return "", nil, err
	}

	if len(live.Participants) >= s.maxParticipants {
		return "", live.Snapshot(), ErrMeetingFull
	}

	id, err := gonanoid.New(16)
	if err != nil {
		return "", nil, err
	}

	role := models.ParticipantRoleGuest
	if len(live.Participants) == 0 {
		role = models.ParticipantRoleHost
	}
	live.Participants[id] = &models.MeetingParticipant{
		PeerID:    id,
		Role:      role,
		JoinedAt:  now,
		IsPresent: true,
	}

	if live.PresentCount() >= 2 {
		live.Status = models.MeetingStatusActive
	}
	live.UpdatedAt = now
	live.ExpiresAt = now.Add(s.meetingTTL)
	s.syncStatusIndexLocked(live.ID, live.Status)

	return id, live.Snapshot(), nil
}

// ValidatePeer confirms a peer belongs to the meeting and marks it present
// again, reporting whether this was a reconnect.
func (s *Store) ValidatePeer(meetingID, peerID string, now time.Time) (role models.ParticipantRole, meeting *models.Meeting, reconnected bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.loadActiveMeetingLocked(meetingID, now)
	if err != nil {
		return "", nil, false, err
	}

	peer, ok := live.Participants[peerID]
	if !ok {
		return "", live.Snapshot(), false, ErrInvalidPeer
	}

	reconnected = !peer.IsPresent
	peer.IsPresent = true
	if reconnected {
		peer.ReconnectCount++
	}
	peer.DisconnectedAt = time.Time{}

	if live.PresentCount() >= 2 {
		live.Status = models.MeetingStatusActive
		s.syncStatusIndexLocked(live.ID, live.Status)
	}
	live.UpdatedAt = now
	live.ExpiresAt = now.Add(s.meetingTTL)

	return peer.Role, live.Snapshot(), reconnected, nil
}

// HostPeerID reports which peer currently hosts the meeting.
func (s *Store) HostPeerID(meetingID string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.loadActiveMeetingLocked(meetingID, now)
	if err != nil {
		return "", err
	}

	host := live.Host()
	if host == nil {
		return "", ErrNoHost
	}
	return host.PeerID, nil
}

// End marks the meeting as ended and removes it, returning a final
// snapshot. Anyone who knows the meeting id may end it.
func (s *Store) End(meetingID string, now time.Time) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, exists := s.meetings[meetingID]
	if !exists {
		return nil, ErrMeetingNotFound
	}

	s.markEndedLocked(meeting, now)
	snapshot := meeting.Snapshot()
	s.removeMeetingLocked(meetingID)

	return snapshot, nil
}

// MarkPeerDisconnected flags lost presence but keeps the meeting alive so
// the peer can reconnect.
func (s *Store) MarkPeerDisconnected(meetingID, peerID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, ok := s.meetings[meetingID]
	if !ok {
		return
	}

	peer, ok := meeting.Participants[peerID]
	if !ok {
		return
	}

	peer.IsPresent = false
	peer.DisconnectedAt = now
	meeting.UpdatedAt = now
}

func (s *Store) loadActiveMeetingLocked(meetingID string, now time.Time) (*models.Meeting, error) {
	meeting, ok := s.meetings[meetingID]
	if !ok {
		return nil, ErrMeetingNotFound
	}

	if meeting.Status == models.MeetingStatusEnded {
		s.removeMeetingLocked(meetingID)
		return nil, ErrMeetingEnded
	}

	if !meeting.ExpiresAt.IsZero() && now.After(meeting.ExpiresAt) {
		s.markEndedLocked(meeting, now)
		s.removeMeetingLocked(meetingID)
		return nil, ErrMeetingEnded
	}

	return meeting, nil
}

func (s *Store) cleanupLoop() {
	if s.cleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cleanupInterval)
	for range ticker.C {
		s.mu.Lock()
		s.cleanupExpiredLocked(time.Now())
		s.mu.Unlock()
	}
}

func (s *Store) cleanupExpiredLocked(now time.Time) {
	for id, meeting := range s.meetings {
		if meeting.Status == models.MeetingStatusEnded {
			s.removeMeetingLocked(id)
			continue
		}
		if !meeting.ExpiresAt.IsZero() && now.After(meeting.ExpiresAt) {
			s.markEndedLocked(meeting, now)
			s.removeMeetingLocked(id)
		}
	}
}

func (s *Store) markEndedLocked(meeting *models.Meeting, now time.Time) {
	meeting.Status = models.MeetingStatusEnded
	meeting.UpdatedAt = now
	meeting.ExpiresAt = now
	for _, peer := range meeting.Participants {
		peer.IsPresent = false
	}
}

func (s *Store) removeMeetingLocked(meetingID string) {
	delete(s.meetings, meetingID)
	s.untrackStatusLocked(meetingID)
}

func (s *Store) syncStatusIndexLocked(meetingID string, status models.MeetingStatus) {
	s.untrackStatusLocked(meetingID)
	if bucket, ok := s.statusIndex[status]; ok {
		bucket[meetingID] = struct{}{}
	}
}

func (s *Store) untrackStatusLocked(meetingID string) {
	for _, bucket := range s.statusIndex {
		delete(bucket, meetingID)
	}
}
