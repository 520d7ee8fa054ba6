package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/haggle/internal/api/middleware"
	"greendrake/haggle/internal/auth"
)

func setupAuthEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.AuthMiddleware("secret"))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(middleware.ContextKeyUserID))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	router := setupAuthEngine()
	token, err := auth.GenerateJWT("user-42", "secret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", w.Body.String())
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	router := setupAuthEngine()
	wrongKey, err := auth.GenerateJWT("user-42", "other", time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Token abc",
		"wrong key": "Bearer " + wrongKey,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
