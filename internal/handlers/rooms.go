package handlers

import (
	"net/http"

	"github.com/tariel-x/gomeet/internal/models"

	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	Name string          `json:"name" binding:"required,min=3,max=100"`
	Kind models.RoomKind `json:"kind,omitempty"`
}

// CreateRoom registers a room in the local directory so searches can find
// it. Video gateway rooms are created with kind "videosipgw".
func (h *Handlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := req.Kind
	switch kind {
	case "":
		kind = models.RoomKindConference
	case models.RoomKindConference, models.RoomKindVideoSIPGW:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown room kind"})
		return
	}

	var existing models.DirectoryRoom
	if err := h.db.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "room already exists"})
		return
	}

	room := models.DirectoryRoom{Name: req.Name, Kind: kind}
	if err := h.db.Create(&room).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *Handlers) ListRooms(c *gin.Context) {
	var rooms []models.DirectoryRoom
	if err := h.db.Order("name ASC").Find(&rooms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
