package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/models"

	"github.com/gin-gonic/gin"
)

type createMeetingResponse struct {
	MeetingID string               `json:"meeting_id"`
	Status    models.MeetingStatus `json:"status"`
	JoinURL   string               `json:"join_url"`
}

type meetingParticipants struct {
	Count int `json:"count"`
}

type getMeetingResponse struct {
	MeetingID    string               `json:"meeting_id"`
	Status       models.MeetingStatus `json:"status"`
	Participants meetingParticipants  `json:"participants"`
}

type joinMeetingResponse struct {
	MeetingID string                 `json:"meeting_id"`
	PeerID    string                 `json:"peer_id"`
	Role      models.ParticipantRole `json:"role"`
}

func (h *Handlers) CreateMeeting(c *gin.Context) {
	meeting, err := h.meetings.Create(h.nowFn())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, createMeetingResponse{
		MeetingID: meeting.ID,
		Status:    meeting.Status,
		JoinURL:   h.joinURL(meeting.ID),
	})
}

func (h *Handlers) GetMeeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	meeting, err := h.meetings.GetByID(meetingID, h.nowFn())
	if err != nil {
		if errors.Is(err, meetings.ErrMeetingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, getMeetingResponse{
		MeetingID: meeting.ID,
		Status:    meeting.Status,
		Participants: meetingParticipants{
			Count: meeting.PresentCount(),
		},
	})
}

func (h *Handlers) ListMeetings(c *gin.Context) {
	status := models.MeetingStatus(c.DefaultQuery("status", string(models.MeetingStatusActive)))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	listed, err := h.meetings.ListByStatus(status, limit, h.nowFn())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]getMeetingResponse, 0, len(listed))
	for _, meeting := range listed {
		items = append(items, getMeetingResponse{
			MeetingID: meeting.ID,
			Status:    meeting.Status,
			Participants: meetingParticipants{
				Count: meeting.PresentCount(),
			},
		})
	}

	c.JSON(http.StatusOK, gin.H{"meetings": items})
}

func (h *Handlers) JoinMeeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	peerID, meeting, err := h.meetings.Join(meetingID, h.nowFn())
	if err != nil {
		switch {
		case errors.Is(err, meetings.ErrMeetingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		case errors.Is(err, meetings.ErrMeetingFull):
			c.JSON(http.StatusConflict, gin.H{"error": "meeting is full"})
			return
		case errors.Is(err, meetings.ErrMeetingEnded):
			c.JSON(http.StatusConflict, gin.H{"error": "meeting ended"})
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	role := models.ParticipantRoleGuest
	if p := meeting.Participants[peerID]; p != nil {
		role = p.Role
	}

	c.JSON(http.StatusOK, joinMeetingResponse{MeetingID: meeting.ID, PeerID: peerID, Role: role})
}

func (h *Handlers) EndMeeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	meeting, err := h.meetings.End(meetingID, h.nowFn())
	if err != nil {
		if errors.Is(err, meetings.ErrMeetingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Notify WS peers about the ended state before closing sockets.
	h.wsHub.Broadcast(meetingID, stateMessage(meeting))

	// Close any active WS sessions and invite-search sessions for this meeting.
	h.wsHub.CloseMeeting(meetingID)
	h.sessions.CloseMeeting(meetingID)

	c.JSON(http.StatusOK, createMeetingResponse{
		MeetingID: meeting.ID,
		Status:    meeting.Status,
		JoinURL:   h.joinURL(meeting.ID),
	})
}

func (h *Handlers) joinURL(meetingID string) string {
	return h.config.PublicURL + "/m/" + meetingID
}
