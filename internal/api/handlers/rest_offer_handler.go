package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/negotiation"
	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// RestOfferHandler exposes offer negotiation.
type RestOfferHandler struct {
	offerService services.IOfferService
}

// NewRestOfferHandler creates a new RestOfferHandler.
func NewRestOfferHandler(offerService services.IOfferService) *RestOfferHandler {
	return &RestOfferHandler{offerService: offerService}
}

type createOfferRequest struct {
	ListingID utils.SixID `json:"listingId"`
	Amount    float64     `json:"amount"`
}

type respondOfferRequest struct {
	Action string   `json:"action"`
	Amount *float64 `json:"amount"`
}

// CreateOffer handles POST /v1/offers
func (h *RestOfferHandler) CreateOffer(c *gin.Context) {
	var req createOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ListingID.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listingId and amount are required"})
		return
	}

	offer, err := h.offerService.CreateOffer(c.Request.Context(), callerID(c), req.ListingID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// RespondToOffer handles PATCH /v1/offers/:id
func (h *RestOfferHandler) RespondToOffer(c *gin.Context) {
	offerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offer ID format"})
		return
	}
	var req respondOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	action, err := negotiation.ParseAction(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of counter, accept, decline"})
		return
	}

	offer, err := h.offerService.RespondToOffer(c.Request.Context(), callerID(c), offerID, action, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// GetOffer handles GET /v1/offers/:id
func (h *RestOfferHandler) GetOffer(c *gin.Context) {
	offerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offer ID format"})
		return
	}

	offer, err := h.offerService.GetOffer(c.Request.Context(), callerID(c), offerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// ListOffers handles GET /v1/offers?role=buyer|seller&listing_id=
func (h *RestOfferHandler) ListOffers(c *gin.Context) {
	var listingID *utils.SixID
	if raw := c.Query("listing_id"); raw != "" {
		id, err := utils.ParseSixID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
			return
		}
		listingID = &id
	}

	offers, err := h.offerService.ListOffers(c.Request.Context(), callerID(c), negotiation.Role(c.Query("role")), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": offers})
}
