package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/api/handlers"
	"greendrake/haggle/internal/api/middleware"
	"greendrake/haggle/internal/config"
	"greendrake/haggle/internal/payment"
	"greendrake/haggle/internal/services"
)

// Services are the domain services the public API dispatches to.
type Services struct {
	Listings      services.IListingService
	Offers        services.IOfferService
	Payments      services.IPaymentReconciler
	Wishlists     services.IWishlistService
	Notifications services.INotificationService
	Messages      services.IMessageService
}

// TestCheckoutStore is the part of the mock payment provider the service API drives.
type TestCheckoutStore interface {
	GetSession(ctx context.Context, sessionRef string) (map[string]interface{}, error)
	CompleteSession(ctx context.Context, sessionRef string) (*payment.SessionStatus, error)
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc *Services) *gin.Engine {
	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigins))
	r.Use(rateLimiter.Limit())

	listingHandler := handlers.NewRestListingHandler(svc.Listings)
	offerHandler := handlers.NewRestOfferHandler(svc.Offers)
	paymentHandler := handlers.NewRestPaymentHandler(svc.Payments)
	wishlistHandler := handlers.NewRestWishlistHandler(svc.Wishlists)
	notificationHandler := handlers.NewRestNotificationHandler(svc.Notifications)
	messageHandler := handlers.NewRestMessageHandler(svc.Messages)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		v1.GET("/listing/:id", listingHandler.GetListingByID)

		// Signed by the payment provider, not the user.
		v1.POST("/payments/webhook", paymentHandler.Webhook)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/listing", listingHandler.GetMyListings)
			authRequired.POST("/listing", listingHandler.CreateListing)
			authRequired.PATCH("/listing/:id", listingHandler.UpdateListing)
			authRequired.DELETE("/listing/:id", listingHandler.DeleteListing)

			authRequired.GET("/offers", offerHandler.ListOffers)
			authRequired.POST("/offers", offerHandler.CreateOffer)
			authRequired.GET("/offers/:id", offerHandler.GetOffer)
			authRequired.PATCH("/offers/:id", offerHandler.RespondToOffer)

			authRequired.POST("/payments/checkout", paymentHandler.Checkout)
			authRequired.GET("/payments/verify", paymentHandler.Verify)

			authRequired.GET("/wishlist", wishlistHandler.List)
			authRequired.POST("/wishlist", wishlistHandler.Add)
			authRequired.DELETE("/wishlist/:listing_id", wishlistHandler.Remove)

			authRequired.GET("/notifications", notificationHandler.List)
			authRequired.PATCH("/notifications", notificationHandler.MarkRead)

			authRequired.GET("/messages", messageHandler.ListConversations)
			authRequired.POST("/messages", messageHandler.Send)
			authRequired.GET("/messages/:user_id", messageHandler.ListThread)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// checkouts is nil unless MOCK_SERVICES is enabled.
func SetupServiceRouter(cfg *config.Config, checkouts TestCheckoutStore, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestCheckout", "completeTestCheckout":
			if checkouts == nil || !cfg.MockServices {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Mock payment provider is not enabled"})
				return
			}
			var args []string // Expect ["sessionRef"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 || args[0] == "" {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [sessionRef]"})
				return
			}

			var data interface{}
			var err error
			if req.Method == "getTestCheckout" {
				data, err = checkouts.GetSession(c.Request.Context(), args[0])
			} else {
				data, err = checkouts.CompleteSession(c.Request.Context(), args[0])
			}
			if err != nil {
				if errors.Is(err, payment.ErrSessionNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test checkout not found: %s", args[0])})
					return
				}
				log.Printf("Service API: %s failed for %s: %v", req.Method, args[0], err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": data})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
