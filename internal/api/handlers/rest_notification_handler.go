package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// RestNotificationHandler lists and acknowledges the caller's notifications.
type RestNotificationHandler struct {
	notificationService services.INotificationService
}

// NewRestNotificationHandler creates a new RestNotificationHandler.
func NewRestNotificationHandler(notificationService services.INotificationService) *RestNotificationHandler {
	return &RestNotificationHandler{notificationService: notificationService}
}

type markReadRequest struct {
	IDs  []utils.SixID `json:"ids"`
	Read *bool         `json:"read"`
}

// List handles GET /v1/notifications?unread=true
func (h *RestNotificationHandler) List(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notificationService.List(c.Request.Context(), callerID(c), unreadOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

// MarkRead handles PATCH /v1/notifications. An empty ids list applies to all of the caller's notifications.
func (h *RestNotificationHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	read := true
	if req.Read != nil {
		read = *req.Read
	}

	updated, err := h.notificationService.MarkRead(c.Request.Context(), callerID(c), req.IDs, read)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
