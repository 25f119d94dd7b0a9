package invite

import (
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrSessionNotFound = errors.New("invite session not found")

const (
	sessionTTL             = 15 * time.Minute
	sessionCleanupInterval = time.Hour
)

// ControllerFactory builds a session controller bound to a meeting. It runs
// under the registry lock and should only wire collaborators together.
type ControllerFactory func(scope, meetingID string, events Events) (*Controller, error)

type session struct {
	ctl       *Controller
	meetingID string
	expiresAt time.Time
}

// Registry owns the live invite-search sessions, keyed by scope. Touching
// a session extends its lifetime; sessions idle past their TTL are swept by
// a background loop so abandoned searches do not pile up.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session

	factory         ControllerFactory
	sessionTTL      time.Duration
	cleanupInterval time.Duration
	nowFn           func() time.Time
}

func NewRegistry(factory ControllerFactory) *Registry {
	r := &Registry{
		sessions:        make(map[string]*session),
		factory:         factory,
		sessionTTL:      sessionTTL,
		cleanupInterval: sessionCleanupInterval,
		nowFn:           time.Now,
	}
	go r.cleanupLoop()
	return r
}

// Launch mints a fresh scope and builds a controller for the meeting.
func (r *Registry) Launch(meetingID string, events Events) (*Controller, error) {
	scope, err := gonanoid.New(16)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctl, err := r.factory(scope, meetingID, events)
	if err != nil {
		return nil, err
	}

	r.sessions[scope] = &session{
		ctl:       ctl,
		meetingID: meetingID,
		expiresAt: r.nowFn().Add(r.sessionTTL),
	}
	return ctl, nil
}

// Get resolves a scope to its controller and extends the session lifetime.
func (r *Registry) Get(scope string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[scope]
	if !ok {
		return nil, ErrSessionNotFound
	}

	now := r.nowFn()
	if now.After(sess.expiresAt) {
		delete(r.sessions, scope)
		return nil, ErrSessionNotFound
	}
	sess.expiresAt = now.Add(r.sessionTTL)
	return sess.ctl, nil
}

// Close drops one session. Closing an unknown scope is a no-op.
func (r *Registry) Close(scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, scope)
}

// CloseMeeting drops every session attached to a meeting, typically because
// the meeting ended.
func (r *Registry) CloseMeeting(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for scope, sess := range r.sessions {
		if sess.meetingID == meetingID {
			delete(r.sessions, scope)
		}
	}
}

func (r *Registry) cleanupLoop() {
	if r.cleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		now := r.nowFn()
		for scope, sess := range r.sessions {
			if now.After(sess.expiresAt) {
				delete(r.sessions, scope)
			}
		}
		r.mu.Unlock()
	}
}
