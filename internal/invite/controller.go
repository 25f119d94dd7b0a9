package invite

import (
	"context"
	"sync"

	"github.com/tariel-x/gomeet/internal/models"
)

// Searcher resolves query text into invite candidates.
type Searcher interface {
	Search(ctx context.Context, query string) (models.CandidateList, error)
}

// Events receives a controller's outbound notifications. A nil sink drops
// them: the surface that launched the session may be gone, which is not an
// error.
type Events interface {
	ResultsReceived(scope, query string, results models.CandidateList)
	InviteFailed(scope string, failed models.CandidateList)
}

// Controller is one participant's invite-search session. It runs queries,
// remembers every candidate it has shown keyed by identity, and dispatches
// a selection submitted later as bare identifiers.
type Controller struct {
	scope      string
	meetingID  string
	search     Searcher
	dispatch   *Dispatcher
	conference Dialer
	videoRooms VideoRoomInviter
	joinURL    string
	events     Events

	mu    sync.Mutex
	known map[string]models.Candidate
}

type ControllerConfig struct {
	Scope      string
	MeetingID  string
	Search     Searcher
	Dispatch   *Dispatcher
	Conference Dialer
	VideoRooms VideoRoomInviter
	JoinURL    string
	Events     Events
}

func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		scope:      cfg.Scope,
		meetingID:  cfg.MeetingID,
		search:     cfg.Search,
		dispatch:   cfg.Dispatch,
		conference: cfg.Conference,
		videoRooms: cfg.VideoRooms,
		joinURL:    cfg.JoinURL,
		events:     cfg.Events,
		known:      make(map[string]models.Candidate),
	}
}

func (c *Controller) Scope() string { return c.scope }

// MeetingID names the meeting this session invites people into.
func (c *Controller) MeetingID() string { return c.meetingID }

// Query runs the aggregated lookup and caches every returned candidate by
// identity, so a later Submit can reference plain identifiers. Repeated
// queries accumulate; the cache lives as long as the session.
func (c *Controller) Query(ctx context.Context, query string) (models.CandidateList, error) {
	results, err := c.search.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, item := range results {
		if key := item.Key(); key != "" {
			c.known[key] = item
		}
	}
	c.mu.Unlock()

	if c.events != nil {
		c.events.ResultsReceived(c.scope, query, results)
	}
	return results, nil
}

// Submit resolves the selected identifiers against the session cache and
// dispatches them. Identifiers that never appeared in a query response are
// dropped without complaint: the client may hold stale entries after the
// results changed under it. The returned list holds the candidates that
// could not be sent.
func (c *Controller) Submit(ctx context.Context, ids []string) models.CandidateList {
	c.mu.Lock()
	selected := make(models.CandidateList, 0, len(ids))
	for _, id := range ids {
		if item, ok := c.known[id]; ok {
			selected = append(selected, item)
		}
	}
	c.mu.Unlock()

	if len(selected) == 0 {
		return nil
	}

	failed := c.dispatch.Dispatch(ctx, selected, c.conference, c.joinURL, c.videoRooms)
	if len(failed) > 0 && c.events != nil {
		c.events.InviteFailed(c.scope, failed)
	}
	return failed
}
