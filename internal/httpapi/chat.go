package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chris/helpem/internal/assistant"
	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/conversation"
	"github.com/chris/helpem/internal/llm"
)

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the stateless form: the client carries its own history
// and, optionally, its own commitments.
type chatRequest struct {
	Message             string               `json:"message" binding:"required"`
	ConversationHistory []historyMessage     `json:"conversationHistory"`
	CurrentDateTime     string               `json:"currentDateTime"`
	Commitments         *commitment.Snapshot `json:"commitments"`
}

func (h *handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message is required")
		return
	}
	now, ok := h.clientTime(req.CurrentDateTime)
	if !ok {
		badRequest(c, "currentDateTime must be an ISO 8601 timestamp")
		return
	}

	var snap commitment.Snapshot
	if req.Commitments != nil {
		snap = *req.Commitments
	} else {
		var err error
		if snap, err = h.Stores.ForUser(userID(c)).List(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
	}

	history := make([]llm.Message, 0, len(req.ConversationHistory))
	for _, m := range req.ConversationHistory {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	d, err := h.Pipeline.Decide(c.Request.Context(), assistant.Request{
		Utterance: strings.TrimSpace(req.Message),
		History:   history,
		Snapshot:  snap,
		Now:       now,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// clientTime parses the client's clock. Its offset becomes the zone for
// every date in the turn. An empty value means the server's clock.
func (h *handler) clientTime(s string) (time.Time, bool) {
	if s == "" {
		return h.now(), true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (h *handler) sessionKey(c *gin.Context) conversation.Key {
	return conversation.Key{UserID: userID(c), SessionID: c.Param("id")}
}

type messageRequest struct {
	Utterance       string `json:"utterance" binding:"required"`
	CurrentDateTime string `json:"currentDateTime"`
}

func (h *handler) submit(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "utterance is required")
		return
	}

	k := h.sessionKey(c)
	var (
		reply conversation.Reply
		err   error
	)
	if req.CurrentDateTime == "" {
		reply, err = h.Sessions.Submit(c.Request.Context(), k, req.Utterance)
	} else {
		now, ok := h.clientTime(req.CurrentDateTime)
		if !ok {
			badRequest(c, "currentDateTime must be an ISO 8601 timestamp")
			return
		}
		reply, err = h.Sessions.SubmitAt(c.Request.Context(), k, req.Utterance, now)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// confirm accepts an optional overrides body.
func (h *handler) confirm(c *gin.Context) {
	var ov conversation.Overrides
	if err := c.ShouldBindJSON(&ov); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid overrides")
		return
	}
	if ov.Priority != nil {
		p, err := commitment.ParsePriority(string(*ov.Priority))
		if err != nil {
			badRequest(c, "priority must be low, medium or high")
			return
		}
		ov.Priority = &p
	}
	if ov.Frequency != nil {
		f, err := commitment.ParseFrequency(string(*ov.Frequency))
		if err != nil {
			badRequest(c, "frequency must be daily or weekly")
			return
		}
		ov.Frequency = &f
	}

	reply, err := h.Sessions.Confirm(c.Request.Context(), h.sessionKey(c), ov)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handler) cancel(c *gin.Context) {
	reply, err := h.Sessions.Cancel(c.Request.Context(), h.sessionKey(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handler) viewSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.Sessions.Snapshot(h.sessionKey(c)))
}
