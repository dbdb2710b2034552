package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type appleSignInRequest struct {
	AppleUserID   string `json:"apple_user_id"`
	IdentityToken string `json:"identity_token"`
}

func (h *handler) signInWithApple(c *gin.Context) {
	if h.Auth == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sign-in is not configured"})
		return
	}
	var req appleSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AppleUserID == "" || req.IdentityToken == "" {
		badRequest(c, "apple_user_id and identity_token are required")
		return
	}

	res, err := h.Auth.SignInWithApple(c.Request.Context(), req.AppleUserID, req.IdentityToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
