package handlers

import (
	"net/http"
	"strings"

	"github.com/tariel-x/gomeet/internal/dialout"
	"github.com/tariel-x/gomeet/internal/models"

	"github.com/gin-gonic/gin"
)

// The provider endpoints are what other deployments point their
// DIRECTORY_SEARCH_URL, INVITE_SERVICE_URL and DIALOUT_CHECK_URL at. The
// same server can therefore be both a meeting host and the directory
// behind another one.

// RequireServiceToken guards a provider endpoint with a shared token,
// read from the "jwt" or "token" query parameter. An empty expected token
// leaves the endpoint open.
func RequireServiceToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}

		token := c.Query("jwt")
		if token == "" {
			token = c.Query("token")
		}
		if token != expected {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid service token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SearchDirectory answers people-directory lookups with a flat candidate
// array, the format the aggregator consumes.
func (h *Handlers) SearchDirectory(c *gin.Context) {
	query := c.Query("query")
	var types []string
	if raw := c.Query("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	results, err := h.directory.Search(c.Request.Context(), query, types)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// CheckDialOut applies the local dial-out policy to a number. The policy
// itself rejects anything that is not a plain digit string.
func (h *Handlers) CheckDialOut(c *gin.Context) {
	c.JSON(http.StatusOK, dialout.Rules{}.Check(c.Query("phone")))
}

type receiveInviteRequest struct {
	Invited models.CandidateList `json:"invited" binding:"required"`
	URL     string               `json:"url" binding:"required"`
}

// ReceiveInvite accepts an invite batch from another deployment and pushes
// it out to the named accounts.
func (h *Handlers) ReceiveInvite(c *gin.Context) {
	var req receiveInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sent, err := h.delivery.Deliver(c.Request.Context(), req.Invited, req.URL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": sent})
}
