package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/haggle/internal/api/middleware"
	"greendrake/haggle/internal/services"
)

// statusFor maps a service error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAlreadyPaid):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": msg}. Internal failures never leak their cause.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	msg := err.Error()
	var domainErr *services.Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		msg = domainErr.Message
	}
	c.JSON(status, gin.H{"error": msg})
}

// callerID returns the authenticated user id set by AuthMiddleware, or "" for anonymous requests.
func callerID(c *gin.Context) string {
	return c.GetString(middleware.ContextKeyUserID)
}
