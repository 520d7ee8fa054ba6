package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService) *RestListingHandler {
	return &RestListingHandler{listingService: listingService}
}

type createListingRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Images      []string `json:"images"`
}

type updateListingRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Images      []string `json:"images"`
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), callerID(c), req.Title, req.Description, req.Price, req.Images)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// GetMyListings handles GET /v1/listing
func (h *RestListingHandler) GetMyListings(c *gin.Context) {
	listings, err := h.listingService.ListBySeller(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listings})
}

// UpdateListing handles PATCH /v1/listing/:id
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}
	var req updateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.UpdateListing(c.Request.Context(), callerID(c), listingID, services.ListingEdit{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Images:      req.Images,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// DeleteListing handles DELETE /v1/listing/:id
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
	listingID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	if err := h.listingService.DeleteListing(c.Request.Context(), callerID(c), listingID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
