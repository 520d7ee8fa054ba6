package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// RestWishlistHandler manages the caller's wishlist.
type RestWishlistHandler struct {
	wishlistService services.IWishlistService
}

// NewRestWishlistHandler creates a new RestWishlistHandler.
func NewRestWishlistHandler(wishlistService services.IWishlistService) *RestWishlistHandler {
	return &RestWishlistHandler{wishlistService: wishlistService}
}

type addWishlistRequest struct {
	ListingID utils.SixID `json:"listingId"`
}

// List handles GET /v1/wishlist
func (h *RestWishlistHandler) List(c *gin.Context) {
	entries, err := h.wishlistService.List(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// Add handles POST /v1/wishlist
func (h *RestWishlistHandler) Add(c *gin.Context) {
	var req addWishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ListingID.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listingId is required"})
		return
	}

	entry, err := h.wishlistService.Add(c.Request.Context(), callerID(c), req.ListingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Remove handles DELETE /v1/wishlist/:listing_id
func (h *RestWishlistHandler) Remove(c *gin.Context) {
	listingID, err := utils.ParseSixID(c.Param("listing_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	if err := h.wishlistService.Remove(c.Request.Context(), callerID(c), listingID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
