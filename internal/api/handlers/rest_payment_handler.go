package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/payment"
	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// maxWebhookBody bounds the webhook payload read into memory. Larger bodies are refused, not truncated.
const maxWebhookBody = 1 << 20

// RestPaymentHandler exposes checkout, verification and the provider webhook.
type RestPaymentHandler struct {
	paymentService services.IPaymentReconciler
}

// NewRestPaymentHandler creates a new RestPaymentHandler.
func NewRestPaymentHandler(paymentService services.IPaymentReconciler) *RestPaymentHandler {
	return &RestPaymentHandler{paymentService: paymentService}
}

type checkoutRequest struct {
	OfferID utils.SixID `json:"offerId"`
}

// Checkout handles POST /v1/payments/checkout
func (h *RestPaymentHandler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OfferID.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offerId is required"})
		return
	}

	result, err := h.paymentService.InitiateCheckout(c.Request.Context(), callerID(c), req.OfferID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Verify handles GET /v1/payments/verify?session_id=
func (h *RestPaymentHandler) Verify(c *gin.Context) {
	result, err := h.paymentService.Verify(c.Request.Context(), callerID(c), c.Query("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Webhook handles POST /v1/payments/webhook. The raw body is needed for signature verification.
func (h *RestPaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	err = h.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader(payment.SignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, services.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	default:
		respondError(c, err)
	}
}
