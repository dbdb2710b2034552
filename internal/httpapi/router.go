// Package httpapi exposes the assistant over HTTP for the mobile and web
// clients.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/assistant"
	"github.com/chris/helpem/internal/auth"
	"github.com/chris/helpem/internal/conversation"
	"github.com/chris/helpem/internal/events"
	"github.com/chris/helpem/internal/quota"
	"github.com/chris/helpem/internal/store"
	"github.com/chris/helpem/internal/voice"
)

// Decider runs one stateless classification; *assistant.Pipeline.
type Decider = conversation.Decider

// Check is a readiness probe, e.g. a database ping.
type Check func(ctx context.Context) error

// Deps are the collaborators the handlers call. Auth may be nil, in which
// case every request acts as OwnerID. Transcriber and Speaker may be nil
// when no OpenAI key is configured.
type Deps struct {
	Pipeline    Decider
	Sessions    *conversation.Manager
	Stores      store.Provider
	Quota       quota.Gate
	Auth        *auth.Service
	OwnerID     string
	Transcriber voice.Transcriber
	Speaker     voice.Speaker
	Events      events.Publisher
	Location    *time.Location
	Clock       func() time.Time
	Logger      *zap.Logger
	Ready       []Check
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger), observe())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", h.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api/auth/apple", h.signInWithApple)

	api := r.Group("/api")
	api.Use(authenticate(d.Auth, d.OwnerID))
	{
		api.POST("/chat", h.chat)

		api.GET("/sessions/:id", h.viewSession)
		api.POST("/sessions/:id/messages", h.submit)
		api.POST("/sessions/:id/confirm", h.confirm)
		api.POST("/sessions/:id/cancel", h.cancel)

		api.GET("/commitments", h.listCommitments)
		api.POST("/tasks/:id/complete", h.completeTask)
		api.POST("/routines/:id/completions", h.completeRoutine)

		api.POST("/transcribe", h.transcribe)
		api.POST("/tts", h.speak)

		api.GET("/usage", h.usage)
	}

	return &Router{Engine: r}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Engine.ServeHTTP(w, req)
}

type handler struct {
	Deps
}

func (h *handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	for _, check := range h.Ready {
		if err := check(ctx); err != nil {
			h.Logger.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// now is the request time in the server's zone.
func (h *handler) now() time.Time {
	return h.Clock().In(h.Location)
}

var _ Decider = (*assistant.Pipeline)(nil)
