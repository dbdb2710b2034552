package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chris/helpem/internal/discord"
	"github.com/chris/helpem/internal/httpapi"
	"github.com/chris/helpem/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Discord bot and the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var dm func(userID, content string) error
	if a.cfg.DiscordToken != "" {
		bot, err := discord.NewBot(a.cfg.DiscordToken, a.sessions, a.db, a.cfg.OwnerID, a.logger.Named("discord"))
		if err != nil {
			return err
		}
		defer bot.Close()
		dm = bot.SendDM
	}

	sched := scheduler.New(scheduler.Config{
		CheckInCron:   a.cfg.CheckInCron,
		OwnerID:       a.cfg.OwnerID,
		WebhookURL:    a.cfg.DiscordWebhook,
		DiscordUserID: a.cfg.DiscordUserID,
		Location:      a.loc,
	}, a.pipeline, a.db, a.db, a.sessions,
		scheduler.WithDM(dm),
		scheduler.WithLogger(a.logger.Named("scheduler")),
	)
	g.Go(func() error { return sched.Run(ctx) })

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.logger.Info("shut down")
	return err
}

func (a *app) router() http.Handler {
	if a.cfg.LogFormat != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := httpapi.Deps{
		Pipeline: a.pipeline,
		Sessions: a.sessions,
		Stores:   a.db,
		Quota:    a.gate,
		Auth:     a.auth,
		OwnerID:  a.cfg.OwnerID,
		Events:   a.events,
		Location: a.loc,
		Logger:   a.logger.Named("http"),
		Ready:    append([]httpapi.Check{a.db.Ping}, a.ready...),
	}
	if a.voice != nil {
		deps.Transcriber = a.voice
		deps.Speaker = a.voice
	}
	return httpapi.NewRouter(deps)
}
