package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chris/helpem/internal/auth"
	"github.com/chris/helpem/internal/conversation"
	"github.com/chris/helpem/internal/oracle"
	"github.com/chris/helpem/internal/quota"
	"github.com/chris/helpem/internal/store"
	"github.com/chris/helpem/internal/voice"
)

// writeError maps a domain error to a status and a message that is safe to
// show. Internal details go to the log only.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	status, body := http.StatusInternalServerError, gin.H{"error": conversation.UserMessage(err)}
	switch {
	case errors.Is(err, quota.ErrExceeded):
		status = http.StatusTooManyRequests
		body["code"] = "quota_exceeded"
	case errors.Is(err, oracle.ErrUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, conversation.ErrNoPending):
		status = http.StatusConflict
		body["code"] = "no_pending_action"
	case errors.Is(err, conversation.ErrSuperseded):
		status = http.StatusConflict
		body = gin.H{"error": "superseded by a newer message", "code": "superseded"}
	case errors.Is(err, auth.ErrKeysUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, auth.ErrAuthFailed):
		status = http.StatusUnauthorized
		body = gin.H{"error": "unauthorized"}
	case auth.IsConfigError(err):
		body = gin.H{"error": "server configuration error"}
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		body = gin.H{"error": "not found"}
	case errors.Is(err, store.ErrDuplicateID):
		status = http.StatusConflict
		body = gin.H{"error": "already exists"}
	case errors.Is(err, voice.ErrInvalidVoice):
		status = http.StatusBadRequest
		body = gin.H{"error": err.Error()}
	case errors.Is(err, voice.ErrTranscriptionFailed), errors.Is(err, voice.ErrSpeechFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
