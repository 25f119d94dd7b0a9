package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tariel-x/gomeet/internal/invite"
	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 70 * time.Second
	wsPingPeriod      = 30 * time.Second
	wsHeartbeatPeriod = 5 * time.Second

	inviteQueryTimeout  = 10 * time.Second
	inviteSubmitTimeout = 30 * time.Second
)

type wsEnvelope struct {
	Type string          `json:"type"`
	To   string          `json:"to,omitempty"`
	From string          `json:"from,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsJoinData struct {
	PeerID       string                 `json:"peer_id"`
	Role         models.ParticipantRole `json:"role"`
	IsReconnect  bool                   `json:"is_reconnect"`
	Participants meetingParticipants    `json:"participants"`
}

type wsStateData struct {
	MeetingID    string               `json:"meeting_id"`
	Status       models.MeetingStatus `json:"status"`
	Participants meetingParticipants  `json:"participants"`
}

type wsInviteQuery struct {
	Scope string `json:"scope,omitempty"`
	Query string `json:"query"`
}

type wsInviteSubmit struct {
	Scope string   `json:"scope"`
	IDs   []string `json:"ids"`
}

type wsInviteClose struct {
	Scope string `json:"scope"`
}

type wsInviteResults struct {
	Scope   string               `json:"scope"`
	Query   string               `json:"query"`
	Results models.CandidateList `json:"results"`
}

type wsInviteFailed struct {
	Scope  string               `json:"scope"`
	Failed models.CandidateList `json:"failed"`
}

type wsInviteError struct {
	Scope string `json:"scope,omitempty"`
	Error string `json:"error"`
}

func (h *Handlers) HandleWebSocket(c *gin.Context) {
	meetingID := c.Query("meeting_id")
	peerID := c.Query("peer_id")
	if meetingID == "" || peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meeting_id and peer_id are required"})
		return
	}
	slog.Default().Debug("ws connect request", "meeting_id", meetingID, "peer_id", peerID, "ip", c.ClientIP())

	now := h.nowFn()

	role, meeting, reconnected, err := h.meetings.ValidatePeer(meetingID, peerID, now)
	if err != nil {
		if errors.Is(err, meetings.ErrInvalidPeer) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid peer_id"})
			return
		}
		h.writeWSMeetingError(c, err)
		return
	}
	slog.Default().Debug("ws resolved peer", "meeting_id", meetingID, "peer_id", peerID, "role", role, "reconnected", reconnected)

	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Default().Warn("ws upgrade failed", "meeting_id", meetingID, "peer_id", peerID, "error", err)
		return
	}

	client := &wsClient{
		conn:      conn,
		send:      make(chan []byte, 32),
		meetingID: meetingID,
		peerID:    peerID,
	}

	h.wsHub.Add(client)
	slog.Default().Debug("ws connected", "meeting_id", meetingID, "peer_id", peerID, "role", role)

	// Initial join ack to the client.
	joinMsg, _ := json.Marshal(wsEnvelope{
		Type: "join",
		Data: mustMarshal(wsJoinData{
			PeerID:      peerID,
			Role:        role,
			IsReconnect: reconnected,
			Participants: meetingParticipants{
				Count: meeting.PresentCount(),
			},
		}),
	})
	if !client.trySend(joinMsg) {
		slog.Default().Debug("ws send join failed", "meeting_id", meetingID, "peer_id", peerID)
		_ = client.conn.Close()
		return
	}

	if reconnected {
		reconnectMsg, _ := json.Marshal(wsEnvelope{Type: "peer-reconnected", From: peerID})
		if ok := h.wsHub.BroadcastExcept(meetingID, peerID, reconnectMsg); !ok {
			slog.Default().Debug("ws peer-reconnected not delivered", "meeting_id", meetingID, "from_peer_id", peerID)
		}
	}

	h.broadcastState(meeting)
	slog.Default().Debug("ws broadcast state", "meeting_id", meetingID, "peer_id", peerID)

	stopHeartbeat := make(chan struct{})
	go h.writePump(client)
	go h.heartbeatState(client, stopHeartbeat)
	h.readPump(client)
	close(stopHeartbeat)
}

func (h *Handlers) readPump(client *wsClient) {
	defer func() {
		slog.Default().Debug("ws disconnect", "meeting_id", client.meetingID, "peer_id", client.peerID)
		_ = client.conn.Close()
		h.meetings.MarkPeerDisconnected(client.meetingID, client.peerID, h.nowFn())
		h.wsHub.Remove(client.meetingID, client.peerID)

		// Do not end the meeting on disconnect.
		// Clients may navigate between SPA screens and reconnect.
		disconnectMsg, _ := json.Marshal(wsEnvelope{Type: "peer-disconnected", From: client.peerID})
		if ok := h.wsHub.BroadcastExcept(client.meetingID, client.peerID, disconnectMsg); !ok {
			slog.Default().Debug("ws peer-disconnected not delivered", "meeting_id", client.meetingID, "from_peer_id", client.peerID)
		}
	}()

	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			slog.Default().Debug("ws read error", "meeting_id", client.meetingID, "peer_id", client.peerID, "error", err)
			return
		}

		var msg wsEnvelope
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Default().Debug("ws bad json", "meeting_id", client.meetingID, "peer_id", client.peerID, "error", err)
			continue
		}

		if msg.Type == "ping" {
			continue
		}

		// Invite traffic terminates here; everything else is relayed
		// between peers. Handled off the read loop so a slow directory
		// lookup does not stall signaling.
		switch msg.Type {
		case "invite-query":
			go h.handleInviteQuery(client, msg.Data)
			continue
		case "invite-submit":
			go h.handleInviteSubmit(client, msg.Data)
			continue
		case "invite-close":
			go h.handleInviteClose(msg.Data)
			continue
		}

		// Avoid logging full SDP/candidate payloads (may contain IPs). Log sizes/type only.
		slog.Default().Debug("ws recv", "meeting_id", client.meetingID, "peer_id", client.peerID, "type", msg.Type, "to", msg.To, "data_bytes", len(msg.Data))

		msg.From = client.peerID
		forward, err := json.Marshal(msg)
		if err != nil {
			continue
		}

		if msg.To != "" {
			if ok := h.wsHub.SendTo(client.meetingID, msg.To, forward); !ok {
				slog.Default().Debug("ws forward direct not delivered", "meeting_id", client.meetingID, "from_peer_id", client.peerID, "to_peer_id", msg.To, "type", msg.Type)
			}
			continue
		}

		// If 'to' is omitted, fan out to everyone else in the meeting.
		if ok := h.wsHub.BroadcastExcept(client.meetingID, client.peerID, forward); !ok {
			slog.Default().Debug("ws forward fanout not delivered", "meeting_id", client.meetingID, "from_peer_id", client.peerID, "type", msg.Type)
		}
	}
}

func (h *Handlers) writePump(client *wsClient) {
	defer func() {
		_ = client.conn.Close()
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) broadcastState(meeting *models.Meeting) {
	msg := stateMessage(meeting)
	if len(msg) == 0 {
		return
	}
	h.wsHub.Broadcast(meeting.ID, msg)
}

func (h *Handlers) heartbeatState(client *wsClient, stop <-chan struct{}) {
	ticker := time.NewTicker(wsHeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			meeting, err := h.meetings.GetByID(client.meetingID, h.nowFn())
			if err != nil {
				if errors.Is(err, meetings.ErrMeetingNotFound) || errors.Is(err, meetings.ErrMeetingEnded) {
					_ = client.conn.Close()
					return
				}
				continue
			}
			msg := stateMessage(meeting)
			if len(msg) == 0 {
				continue
			}
			if !client.trySend(msg) {
				_ = client.conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

// handleInviteQuery runs a directory search inside an invite session. An
// empty scope opens a fresh session bound to this peer; its scope travels
// back to the client inside the invite-results message.
func (h *Handlers) handleInviteQuery(client *wsClient, data json.RawMessage) {
	var req wsInviteQuery
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendInviteError(client, "", "bad invite-query payload")
		return
	}

	ctl, err := h.resolveSession(client, req.Scope)
	if err != nil {
		h.sendInviteError(client, req.Scope, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inviteQueryTimeout)
	defer cancel()

	// Results reach the client through the session events.
	if _, err := ctl.Query(ctx, req.Query); err != nil {
		slog.Default().Warn("ws invite query failed", "meeting_id", client.meetingID, "scope", ctl.Scope(), "error", err)
		h.sendInviteError(client, ctl.Scope(), "search failed")
	}
}

func (h *Handlers) handleInviteSubmit(client *wsClient, data json.RawMessage) {
	var req wsInviteSubmit
	if err := json.Unmarshal(data, &req); err != nil || req.Scope == "" {
		h.sendInviteError(client, req.Scope, "bad invite-submit payload")
		return
	}

	ctl, err := h.sessions.Get(req.Scope)
	if err != nil {
		h.sendInviteError(client, req.Scope, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inviteSubmitTimeout)
	defer cancel()

	failed := ctl.Submit(ctx, req.IDs)
	h.recordInvite(client.meetingID, req.Scope, len(req.IDs), len(failed))
}

func (h *Handlers) handleInviteClose(data json.RawMessage) {
	var req wsInviteClose
	if err := json.Unmarshal(data, &req); err != nil || req.Scope == "" {
		return
	}
	h.sessions.Close(req.Scope)
}

func (h *Handlers) resolveSession(client *wsClient, scope string) (*invite.Controller, error) {
	if scope == "" {
		events := &wsInviteEvents{hub: h.wsHub, meetingID: client.meetingID, peerID: client.peerID}
		return h.sessions.Launch(client.meetingID, events)
	}
	return h.sessions.Get(scope)
}

func (h *Handlers) sendInviteError(client *wsClient, scope, message string) {
	msg, _ := json.Marshal(wsEnvelope{
		Type: "invite-error",
		Data: mustMarshal(wsInviteError{Scope: scope, Error: message}),
	})
	if !client.trySend(msg) {
		slog.Default().Debug("ws invite-error not delivered", "meeting_id", client.meetingID, "peer_id", client.peerID)
	}
}

// wsInviteEvents routes session notifications back to the peer who opened
// the session. Delivery goes through the hub so it survives a reconnect.
type wsInviteEvents struct {
	hub       *WSHub
	meetingID string
	peerID    string
}

func (e *wsInviteEvents) ResultsReceived(scope, query string, results models.CandidateList) {
	msg, _ := json.Marshal(wsEnvelope{
		Type: "invite-results",
		Data: mustMarshal(wsInviteResults{Scope: scope, Query: query, Results: results}),
	})
	if ok := e.hub.SendTo(e.meetingID, e.peerID, msg); !ok {
		slog.Default().Debug("ws invite-results not delivered", "meeting_id", e.meetingID, "peer_id", e.peerID, "scope", scope)
	}
}

func (e *wsInviteEvents) InviteFailed(scope string, failed models.CandidateList) {
	msg, _ := json.Marshal(wsEnvelope{
		Type: "invite-failed",
		Data: mustMarshal(wsInviteFailed{Scope: scope, Failed: failed}),
	})
	if ok := e.hub.SendTo(e.meetingID, e.peerID, msg); !ok {
		slog.Default().Debug("ws invite-failed not delivered", "meeting_id", e.meetingID, "peer_id", e.peerID, "scope", scope)
	}
}

func stateMessage(meeting *models.Meeting) []byte {
	if meeting == nil {
		return nil
	}
	msg, _ := json.Marshal(wsEnvelope{
		Type: "state",
		Data: mustMarshal(wsStateData{
			MeetingID: meeting.ID,
			Status:    meeting.Status,
			Participants: meetingParticipants{
				Count: meeting.PresentCount(),
			},
		}),
	})
	return msg
}

func (h *Handlers) writeWSMeetingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, meetings.ErrMeetingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
	case errors.Is(err, meetings.ErrMeetingEnded):
		c.JSON(http.StatusConflict, gin.H{"error": "meeting ended"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
