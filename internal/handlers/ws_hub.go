package handlers

import (
	"sync"

	"github.com/gorilla/websocket"
)

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	meetingID string
	peerID    string
	closeOnce sync.Once
}

func (c *wsClient) trySend(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *wsClient) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

type WSHub struct {
	mu       sync.Mutex
	meetings map[string]map[string]*wsClient // meetingID -> peerID -> client
}

func NewWSHub() *WSHub {
	return &WSHub{
		meetings: make(map[string]map[string]*wsClient),
	}
}

func (h *WSHub) Add(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.meetings[client.meetingID]
	if !ok {
		peers = make(map[string]*wsClient)
		h.meetings[client.meetingID] = peers
	}

	// Replace existing connection for the same peer_id.
	if old := peers[client.peerID]; old != nil {
		_ = old.conn.Close()
		old.closeSend()
	}

	peers[client.peerID] = client
}

func (h *WSHub) Remove(meetingID, peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.meetings[meetingID]
	if !ok {
		return
	}

	if client, exists := peers[peerID]; exists {
		client.closeSend()
	}
	delete(peers, peerID)
	if len(peers) == 0 {
		delete(h.meetings, meetingID)
	}
}

func (h *WSHub) SendTo(meetingID, peerID string, payload []byte) bool {
	h.mu.Lock()
	client := func() *wsClient {
		peers := h.meetings[meetingID]
		return peers[peerID]
	}()
	h.mu.Unlock()

	if client == nil {
		return false
	}

	if !client.trySend(payload) {
		_ = client.conn.Close()
		return false
	}
	return true
}

// BroadcastExcept delivers a payload to every peer in the meeting but the
// sender. Reports whether at least one peer got it.
func (h *WSHub) BroadcastExcept(meetingID, fromPeerID string, payload []byte) bool {
	h.mu.Lock()
	var targets []*wsClient
	if peers, ok := h.meetings[meetingID]; ok {
		targets = make([]*wsClient, 0, len(peers))
		for peerID, client := range peers {
			if peerID == fromPeerID {
				continue
			}
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	delivered := false
	for _, client := range targets {
		if !client.trySend(payload) {
			_ = client.conn.Close()
			continue
		}
		delivered = true
	}
	return delivered
}

func (h *WSHub) Broadcast(meetingID string, payload []byte) {
	h.mu.Lock()
	var clients []*wsClient
	if peers, ok := h.meetings[meetingID]; ok {
		clients = make([]*wsClient, 0, len(peers))
		for _, client := range peers {
			clients = append(clients, client)
		}
	}
	h.mu.Unlock()

	for _, client := range clients {
		if !client.trySend(payload) {
			_ = client.conn.Close()
		}
	}
}

func (h *WSHub) CloseMeeting(meetingID string) {
	h.mu.Lock()
	peers, ok := h.meetings[meetingID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.meetings, meetingID)
	h.mu.Unlock()

	for _, client := range peers {
		_ = client.conn.Close()
		client.closeSend()
	}
}
