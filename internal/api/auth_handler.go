package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mgate/internal/errors"
	"mgate/internal/session"
)

// AuthHandler drives the two-step login flow.
type AuthHandler struct {
	sessions *session.Manager
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(sessions *session.Manager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Login starts step one with the configured credentials; the broker sends an
// OTP to the account's registered contact.
func (h *AuthHandler) Login(c *gin.Context) {
	if _, err := h.sessions.Login(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message: "OTP sent",
		Note:    "Check your registered mobile/email, then call /auth/session with your OTP.",
	})
}

// Session completes step two: the OTP is exchanged for an access token, which
// is persisted and installed for all subsequent broker calls.
func (h *AuthHandler) Session(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid request body", err))
		return
	}

	resp, err := h.sessions.GenerateSession(c.Request.Context(), req.OTP)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeRaw(c, resp)
}

// Logout clears the cached session; the state machine returns to LoggedOut.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.sessions.Invalidate()
	c.JSON(http.StatusOK, gin.H{"message": "Session cleared"})
}
