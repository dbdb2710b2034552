// Package scheduler runs the owner's background jobs: the daily check-in,
// appointment reminders and idle session pruning.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/store"
)

const (
	// ReminderLead is how long before an appointment its reminder fires.
	ReminderLead = 15 * time.Minute

	reminderEvery = time.Minute
	pruneEvery    = 10 * time.Minute
	// SessionIdle is how long an untouched session is kept.
	SessionIdle = 24 * time.Hour

	// DiscordUserNote is the note key holding the Discord user to DM.
	DiscordUserNote = "discord_user_id"
)

// Orienter is satisfied by *assistant.Pipeline.
type Orienter interface {
	Orient(ctx context.Context, snap commitment.Snapshot, now time.Time) (string, error)
}

// Pruner is satisfied by *conversation.Manager.
type Pruner interface {
	Prune(maxIdle time.Duration) int
}

// Notes is satisfied by *db.DB.
type Notes interface {
	GetNote(ctx context.Context, key string) (string, error)
	ClaimReminder(ctx context.Context, appointmentID string, at time.Time) (bool, error)
}

type Config struct {
	CheckInCron string
	OwnerID     string
	WebhookURL  string
	// DiscordUserID is used when no user has been recorded in the notes.
	DiscordUserID string
	Location      *time.Location
}

type Scheduler struct {
	cfg      Config
	cron     *cron.Cron
	orient   Orienter
	stores   store.Provider
	notes    Notes
	sessions Pruner
	dmSend   func(userID, content string) error
	client   *http.Client
	now      func() time.Time
	logger   *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

type Option func(*Scheduler)

// WithDM sets the Discord direct message sender tried before the webhook.
func WithDM(send func(userID, content string) error) Option {
	return func(s *Scheduler) { s.dmSend = send }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Scheduler) { s.client = c }
}

func New(cfg Config, orient Orienter, stores store.Provider, notes Notes, sessions Pruner, opts ...Option) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Scheduler{
		cfg:      cfg,
		cron:     cron.New(cron.WithLocation(cfg.Location)),
		orient:   orient,
		stores:   stores,
		notes:    notes,
		sessions: sessions,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		logger:   zap.NewNop(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the check-in and starts the polling loops. It fails only
// on an invalid cron expression.
func (s *Scheduler) Start() error {
	if s.cfg.CheckInCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.CheckInCron, func() {
			if err := s.CheckIn(context.Background()); err != nil {
				s.logger.Warn("check-in failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("invalid check-in cron %q: %w", s.cfg.CheckInCron, err)
		}
	}
	s.cron.Start()

	s.every(reminderEvery, func() { s.FireReminders(context.Background()) })
	s.every(pruneEvery, func() {
		if n := s.sessions.Prune(SessionIdle); n > 0 {
			s.logger.Info("pruned idle sessions", zap.Int("count", n))
		}
	})

	s.logger.Info("scheduler started", zap.String("checkin_cron", s.cfg.CheckInCron))
	return nil
}

// Run starts the scheduler and stops it when ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) every(d time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				fn()
			}
		}
	}()
}

func (s *Scheduler) clock() time.Time {
	return s.now().In(s.cfg.Location)
}

// CheckIn generates and delivers the daily orientation for the owner.
func (s *Scheduler) CheckIn(ctx context.Context) error {
	snap, err := s.stores.ForUser(s.cfg.OwnerID).List(ctx)
	if err != nil {
		return fmt.Errorf("loading commitments: %w", err)
	}
	msg, err := s.orient.Orient(ctx, snap, s.clock())
	if err != nil {
		return fmt.Errorf("orientation: %w", err)
	}
	s.deliver(ctx, "checkin", msg)
	return nil
}

// FireReminders announces appointments starting within ReminderLead. Each
// appointment is announced at most once. It returns how many fired.
func (s *Scheduler) FireReminders(ctx context.Context) int {
	snap, err := s.stores.ForUser(s.cfg.OwnerID).List(ctx)
	if err != nil {
		s.logger.Warn("listing appointments for reminders", zap.Error(err))
		return 0
	}

	now := s.clock()
	fired := 0
	for _, a := range snap.UpcomingAppointments(now) {
		if a.Datetime.After(now.Add(ReminderLead)) {
			break
		}
		claimed, err := s.notes.ClaimReminder(ctx, a.ID, now)
		if err != nil {
			s.logger.Warn("claiming reminder", zap.String("appointment", a.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		at := a.Datetime.In(now.Location()).Format("3:04 PM")
		s.deliver(ctx, "reminder", fmt.Sprintf("Coming up at %s: %s.", at, a.Title))
		fired++
	}
	return fired
}

// deliver sends a Discord DM when a user is known and falls back to the
// webhook.
func (s *Scheduler) deliver(ctx context.Context, label, content string) {
	if s.dmSend != nil {
		if user := s.dmUser(ctx); user != "" {
			err := s.dmSend(user, content)
			if err == nil {
				return
			}
			s.logger.Warn("DM send failed", zap.String("job", label), zap.Error(err))
		}
	}
	if s.cfg.WebhookURL != "" {
		if err := s.postWebhook(ctx, content); err != nil {
			s.logger.Warn("webhook failed", zap.String("job", label), zap.Error(err))
		}
		return
	}
	s.logger.Warn("no delivery method available", zap.String("job", label))
}

func (s *Scheduler) dmUser(ctx context.Context) string {
	user, err := s.notes.GetNote(ctx, DiscordUserNote)
	if err != nil {
		s.logger.Warn("reading discord user note", zap.Error(err))
	}
	if user != "" {
		return user
	}
	return s.cfg.DiscordUserID
}

func (s *Scheduler) postWebhook(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
