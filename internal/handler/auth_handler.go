package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examsim-backend/internal/middleware"
	"github.com/stemsi/examsim-backend/internal/response"
)

// AuthHandler exposes the identity carried by the caller's token. Tokens are
// issued out of band.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// GetProfile godoc
// GET /api/v1/auth/me
func (h *AuthHandler) GetProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	profile := gin.H{
		"owner_id": claims.OwnerID(),
		"name":     claims.Name,
	}
	if claims.ExpiresAt != nil {
		profile["expires_at"] = claims.ExpiresAt.Time
	}

	response.Success(c, http.StatusOK, gin.H{"profile": profile})
}
