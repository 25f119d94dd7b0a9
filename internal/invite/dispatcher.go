package invite

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/tariel-x/gomeet/internal/dialout"
	"github.com/tariel-x/gomeet/internal/models"
)

// Dialer places an outbound call from within a conference.
type Dialer interface {
	Dial(ctx context.Context, number string) error
}

// VideoRoomInviter pulls SIP gateway rooms into a conference. The attempt
// is fire-and-forget; the boolean only reports whether it was handed off.
type VideoRoomInviter interface {
	InviteVideoRooms(items models.CandidateList) bool
}

// InviteSender submits one batched directory invite.
type InviteSender interface {
	Send(ctx context.Context, items models.CandidateList, joinURL string) error
}

// Dispatcher sends a confirmed candidate selection through the channel each
// variant belongs to and reports whatever could not be sent. A failing
// channel never aborts the others, and nothing is retried here; the caller
// decides what to do with the leftovers.
type Dispatcher struct {
	invites          InviteSender
	directoryEnabled bool
	dialOutEnabled   bool
	log              *slog.Logger
}

type DispatcherConfig struct {
	Invites          InviteSender
	DirectoryEnabled bool
	DialOutEnabled   bool
	Logger           *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		invites:          cfg.Invites,
		directoryEnabled: cfg.DirectoryEnabled,
		dialOutEnabled:   cfg.DialOutEnabled,
		log:              log,
	}
}

// Dispatch fans the selection out. Phone candidates are dialed one by one
// through the conference, users and rooms go to the invite service as a
// single batch, and videosipgw candidates are handed to the video room
// inviter without waiting for an outcome. Successfully sent candidates are
// removed from the returned list; it is empty when everything went out.
func (d *Dispatcher) Dispatch(ctx context.Context, items models.CandidateList, conference Dialer, joinURL string, videoRooms VideoRoomInviter) models.CandidateList {
	pending := newWorkingSet(items)
	p := pool.New()

	if d.dialOutEnabled && conference != nil {
		for _, item := range items {
			phone, ok := item.(models.Phone)
			if !ok {
				continue
			}
			p.Go(func() {
				if err := conference.Dial(ctx, dialout.DigitsOnly(phone.Number)); err != nil {
					d.log.Warn("dial-out failed", "number", phone.Number, "error", err)
					return
				}
				pending.remove(phone)
			})
		}
	}

	if d.directoryEnabled && d.invites != nil {
		batch := append(items.FilterType(models.CandidateTypeUser), items.FilterType(models.CandidateTypeRoom)...)
		if len(batch) > 0 {
			p.Go(func() {
				if err := d.invites.Send(ctx, batch, joinURL); err != nil {
					d.log.Warn("directory invite failed", "invited", len(batch), "error", err)
					return
				}
				pending.removeAll(batch)
			})
		}
	}

	if gateways := items.FilterType(models.CandidateTypeVideoSIPGW); len(gateways) > 0 {
		if videoRooms != nil {
			videoRooms.InviteVideoRooms(gateways)
		}
		// No success signal exists for gateway rooms, so they are
		// considered handled either way.
		pending.removeAll(gateways)
	}

	p.Wait()
	return pending.rest()
}

// workingSet tracks the candidates still awaiting a successful send.
// Removal is by value equality, which the comparable candidate variants
// make exact.
type workingSet struct {
	mu    sync.Mutex
	items models.CandidateList
}

func newWorkingSet(items models.CandidateList) *workingSet {
	s := &workingSet{items: make(models.CandidateList, len(items))}
	copy(s.items, items)
	return s
}

func (s *workingSet) remove(target models.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(target)
}

func (s *workingSet) removeAll(targets models.CandidateList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, target := range targets {
		s.removeLocked(target)
	}
}

func (s *workingSet) removeLocked(target models.Candidate) {
	for i, item := range s.items {
		if item == target {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

func (s *workingSet) rest() models.CandidateList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items
}
