package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/events"
)

func (h *handler) listCommitments(c *gin.Context) {
	snap, err := h.Stores.ForUser(userID(c)).List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) completeTask(c *gin.Context) {
	id := c.Param("id")
	at := h.now()
	if err := h.Stores.ForUser(userID(c)).SetCompleted(c.Request.Context(), id, at); err != nil {
		writeError(c, err)
		return
	}
	h.publish(c, events.Event{Type: events.TaskCompleted, UserID: userID(c), Kind: string(commitment.KindTask), ID: id, At: at})
	c.Status(http.StatusNoContent)
}

type completionRequest struct {
	Date *time.Time `json:"date"`
}

// completeRoutine records one completion, by default now. Several on the
// same day are all kept but count once.
func (h *handler) completeRoutine(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "date must be an ISO 8601 timestamp")
		return
	}
	date := h.now()
	if req.Date != nil {
		date = *req.Date
	}

	id := c.Param("id")
	if err := h.Stores.ForUser(userID(c)).AppendCompletion(c.Request.Context(), id, date); err != nil {
		writeError(c, err)
		return
	}
	h.publish(c, events.Event{Type: events.RoutineCompleted, UserID: userID(c), Kind: string(commitment.KindRoutine), ID: id, At: date})
	c.Status(http.StatusNoContent)
}

func (h *handler) publish(c *gin.Context, e events.Event) {
	if err := h.Events.Publish(c.Request.Context(), e); err != nil {
		h.Logger.Warn("publish event", zap.String("type", e.Type), zap.Error(err))
	}
}
