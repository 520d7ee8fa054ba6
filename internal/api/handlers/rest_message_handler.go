package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// RestMessageHandler handles direct messages between users.
type RestMessageHandler struct {
	messageService services.IMessageService
}

// NewRestMessageHandler creates a new RestMessageHandler.
func NewRestMessageHandler(messageService services.IMessageService) *RestMessageHandler {
	return &RestMessageHandler{messageService: messageService}
}

type sendMessageRequest struct {
	ReceiverID string       `json:"receiverId"`
	ListingID  *utils.SixID `json:"listingId"`
	Content    string       `json:"content"`
}

// Send handles POST /v1/messages
func (h *RestMessageHandler) Send(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	message, err := h.messageService.Send(c.Request.Context(), callerID(c), req.ReceiverID, req.ListingID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// ListConversations handles GET /v1/messages
func (h *RestMessageHandler) ListConversations(c *gin.Context) {
	conversations, err := h.messageService.ListConversations(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conversations})
}

// ListThread handles GET /v1/messages/:user_id
func (h *RestMessageHandler) ListThread(c *gin.Context) {
	messages, err := h.messageService.ListThread(c.Request.Context(), callerID(c), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}
