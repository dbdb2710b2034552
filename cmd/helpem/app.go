package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chris/helpem/config"
	"github.com/chris/helpem/internal/assistant"
	"github.com/chris/helpem/internal/auth"
	"github.com/chris/helpem/internal/conversation"
	"github.com/chris/helpem/internal/db"
	"github.com/chris/helpem/internal/events"
	"github.com/chris/helpem/internal/httpapi"
	"github.com/chris/helpem/internal/llm"
	"github.com/chris/helpem/internal/logging"
	"github.com/chris/helpem/internal/oracle"
	"github.com/chris/helpem/internal/quota"
	"github.com/chris/helpem/internal/voice"
)

// app holds everything the commands share. Optional infrastructure is
// only connected when configured.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	loc    *time.Location

	db       *db.DB
	gate     quota.Gate
	pipeline *assistant.Pipeline
	sessions *conversation.Manager
	events   events.Publisher
	auth     *auth.Service
	voice    *voice.OpenAI
	ready    []httpapi.Check

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, loc: loc}
	a.closers = append(a.closers, func() { _ = logger.Sync() })
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = database
	a.onClose(func() { _ = database.Close() })

	if err := a.wireQuota(ctx); err != nil {
		return err
	}

	client, err := llm.NewClient(ctx, llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.APIKey(),
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.OllamaBaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}
	gateway := oracle.New(client, a.gate,
		oracle.WithTimeout(cfg.OracleTimeout),
		oracle.WithLogger(a.logger.Named("oracle")),
	)
	a.pipeline = assistant.New(gateway,
		assistant.WithLocation(a.loc),
		assistant.WithLogger(a.logger.Named("assistant")),
	)

	a.events = events.Nop{}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQP(cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("connecting to AMQP: %w", err)
		}
		a.events = pub
		a.onClose(func() { _ = pub.Close() })
		a.ready = append(a.ready, func(context.Context) error {
			if !pub.IsConnected() {
				return fmt.Errorf("amqp connection closed")
			}
			return nil
		})
	}

	a.sessions = conversation.NewManager(a.pipeline, database,
		conversation.WithEvents(a.events),
		conversation.WithLocation(a.loc),
		conversation.WithLogger(a.logger.Named("conversation")),
	)

	if err := a.wireAuth(ctx); err != nil {
		return err
	}

	if cfg.OpenAIKey != "" {
		a.voice = voice.NewOpenAI(cfg.OpenAIKey, a.gate,
			voice.WithDefaultVoice(cfg.TTSVoice),
			voice.WithLogger(a.logger.Named("voice")),
		)
	}
	return nil
}

// wireQuota shares the monthly counter through redis when configured.
func (a *app) wireQuota(ctx context.Context) error {
	if a.cfg.RedisAddr == "" {
		a.gate = quota.NewMemory(a.cfg.MonthlyUsageLimit, nil)
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("connecting to redis: %w", err)
	}
	a.gate = quota.NewRedis(rdb, a.cfg.MonthlyUsageLimit, nil)
	a.onClose(func() { _ = rdb.Close() })
	a.ready = append(a.ready, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	return nil
}

// wireAuth enables sign-in when a session secret is set. Users live in
// postgres when DATABASE_URL is set, otherwise in memory.
func (a *app) wireAuth(ctx context.Context) error {
	if a.cfg.JWTSecret == "" {
		a.logger.Info("JWT_SECRET not set, every request acts as the owner", zap.String("owner", a.cfg.OwnerID))
		return nil
	}

	var users auth.UserRepository = auth.NewMemoryUsers()
	if a.cfg.DatabaseURL != "" {
		pg, err := auth.NewPostgresUsers(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		users = pg
		a.onClose(pg.Close)
		a.ready = append(a.ready, pg.Ping)
	}

	a.auth = auth.NewService(
		auth.NewSessions(a.cfg.JWTSecret),
		auth.NewAppleVerifier(a.cfg.AppleClientID),
		users,
		a.logger.Named("auth"),
	)
	return nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
