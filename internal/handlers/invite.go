package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/models"

	"github.com/gin-gonic/gin"
)

type inviteSearchRequest struct {
	Query string `json:"query"`
}

type inviteSearchResponse struct {
	Scope   string               `json:"scope"`
	Query   string               `json:"query"`
	Results models.CandidateList `json:"results"`
}

type inviteSubmitRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

type inviteSubmitResponse struct {
	Scope     string               `json:"scope"`
	Requested int                  `json:"requested"`
	Failed    models.CandidateList `json:"failed"`
}

// LaunchInviteSession opens an invite-search session over plain HTTP. REST
// sessions carry no event channel; results and failures come back in the
// responses instead.
func (h *Handlers) LaunchInviteSession(c *gin.Context) {
	meetingID := c.Param("meeting_id")

	ctl, err := h.sessions.Launch(meetingID, nil)
	if err != nil {
		switch {
		case errors.Is(err, meetings.ErrMeetingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		case errors.Is(err, meetings.ErrMeetingEnded):
			c.JSON(http.StatusConflict, gin.H{"error": "meeting ended"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"scope": ctl.Scope(), "meeting_id": ctl.MeetingID()})
}

func (h *Handlers) SearchInviteSession(c *gin.Context) {
	scope := c.Param("scope")
	ctl, err := h.sessions.Get(scope)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invite session not found"})
		return
	}

	var req inviteSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := ctl.Query(c.Request.Context(), req.Query)
	if err != nil {
		slog.Default().Warn("invite search failed", "scope", scope, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, inviteSearchResponse{Scope: scope, Query: req.Query, Results: results})
}

func (h *Handlers) SubmitInviteSession(c *gin.Context) {
	scope := c.Param("scope")
	ctl, err := h.sessions.Get(scope)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invite session not found"})
		return
	}

	var req inviteSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	failed := ctl.Submit(c.Request.Context(), req.IDs)
	h.recordInvite(ctl.MeetingID(), scope, len(req.IDs), len(failed))

	c.JSON(http.StatusOK, inviteSubmitResponse{
		Scope:     scope,
		Requested: len(req.IDs),
		Failed:    failed,
	})
}

func (h *Handlers) CloseInviteSession(c *gin.Context) {
	h.sessions.Close(c.Param("scope"))
	c.JSON(http.StatusOK, gin.H{"message": "closed"})
}

// ListInviteRecords returns the audit trail of invite batches submitted for
// a meeting, newest first.
func (h *Handlers) ListInviteRecords(c *gin.Context) {
	meetingID := c.Param("meeting_id")

	var records []models.InviteRecord
	if err := h.db.Where("meeting_id = ?", meetingID).Order("created_at DESC").Limit(50).Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invites": records})
}

func (h *Handlers) recordInvite(meetingID, scope string, requested, failed int) {
	if h.db == nil || requested == 0 {
		return
	}
	record := models.InviteRecord{
		MeetingID: meetingID,
		Scope:     scope,
		Requested: requested,
		Failed:    failed,
	}
	if err := h.db.Create(&record).Error; err != nil {
		slog.Default().Warn("invite audit write failed", "meeting_id", meetingID, "scope", scope, "error", err)
	}
}
