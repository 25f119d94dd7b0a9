package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) GetTURNConfig(c *gin.Context) {
	// When the embedded TURN server is disabled, clients fall back to
	// direct connectivity.
	if h.turnServer == nil {
		c.JSON(http.StatusOK, gin.H{"iceServers": []map[string]interface{}{}})
		return
	}

	// TURN servers also support STUN, so we don't need separate STUN servers.
	// Note: We use "turn:" (not "turns:") because our TURN server is UDP-only.
	// Media encryption is handled by DTLS-SRTP in WebRTC.
	host := c.Request.Host
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	creds := h.turnServer.GetCredentials()

	turnURL := fmt.Sprintf("turn:%s:%d", host, h.config.TURNPort)
	stunURL := fmt.Sprintf("stun:%s:%d", host, h.config.TURNPort)

	iceServers := []map[string]interface{}{
		{
			"urls": stunURL,
		},
		{
			"urls":       turnURL,
			"username":   creds.Username,
			"credential": creds.Password,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"iceServers": iceServers,
	})
}
