// Package schedule runs stored publish jobs on a timer: cron expressions for
// recurring campaigns, one-shot timestamps for queued posts. Cron parsing and
// triggering are delegated to robfig/cron; this service only maps stored
// definitions onto trigger registrations and records each run's result.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	"github.com/seawingai/ai-marketing-agent/internal/storage"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrStoreRequired    = errors.New("schedule service requires a store")
)

type Config struct {
	Enabled  bool
	Timezone string
}

// Publisher is the slice of the agent the scheduler needs.
type Publisher interface {
	Publish(ctx context.Context, payload dispatch.PublishPayload) (*dispatch.FanOutResult, error)
}

type Service struct {
	cfg   Config
	log   logx.Logger
	store storage.Store
	pub   Publisher

	mu      sync.Mutex
	c       *cron.Cron
	parser  cron.Parser
	loc     *time.Location
	entries map[string]cron.EntryID
	timers  map[string]*time.Timer

	// runCtx is the lifetime context for fired jobs; set on Start.
	runCtx context.Context
}

func New(cfg Config, pub Publisher, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		store: store,
		pub:   pub,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]cron.EntryID{},
		timers:  map[string]*time.Timer{},
	}
}

// Start begins cron triggering and restores stored definitions.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if s.store == nil {
		return ErrStoreRequired
	}

	s.runCtx = ctx
	s.loc = s.loadLocation()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))

	posts, err := s.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("restore schedules: %w", err)
	}
	restored := 0
	for _, p := range posts {
		if err := s.registerLocked(p); err != nil {
			s.log.Warn("skipping unrestorable schedule",
				logx.String("id", p.ID), logx.Err(err))
			continue
		}
		restored++
	}

	s.c.Start()
	s.log.Info("schedule service started",
		logx.String("tz", s.loc.String()),
		logx.Int("schedules", restored))
	return nil
}

// Stop halts triggering. Stored definitions remain so they resume on the
// next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.entries = map[string]cron.EntryID{}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("schedule service stopped", logx.Duration("took", time.Since(start)))
}

// Add validates, persists, and registers one schedule. A zero ID gets a
// generated one; the (possibly filled-in) post is returned.
func (s *Service) Add(ctx context.Context, p storage.ScheduledPost) (storage.ScheduledPost, error) {
	if s.store == nil {
		return storage.ScheduledPost{}, ErrStoreRequired
	}
	if errs := dispatch.CheckPayload(p.Payload); len(errs) > 0 {
		return storage.ScheduledPost{}, fmt.Errorf("%w: %s", dispatch.ErrInvalidPayload, strings.Join(errs, ", "))
	}
	if p.Cron == "" && p.RunAt == nil {
		return storage.ScheduledPost{}, errors.New("schedule needs a cron expression or a run_at timestamp")
	}
	if p.Cron != "" && p.RunAt != nil {
		return storage.ScheduledPost{}, errors.New("schedule cannot have both cron and run_at")
	}
	if p.Cron != "" {
		if _, err := s.parser.Parse(p.Cron); err != nil {
			return storage.ScheduledPost{}, fmt.Errorf("invalid cron expression %q: %w", p.Cron, err)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	if err := s.store.PutSchedule(ctx, p); err != nil {
		return storage.ScheduledPost{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.unregisterLocked(p.ID)
		if err := s.registerLocked(p); err != nil {
			return storage.ScheduledPost{}, err
		}
	}
	s.log.Info("schedule added",
		logx.String("id", p.ID),
		logx.String("cron", p.Cron),
		logx.Bool("one_shot", p.RunAt != nil))
	return p, nil
}

// Remove deletes a schedule and cancels its trigger.
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	if s.store == nil {
		return false, ErrStoreRequired
	}
	ok, err := s.store.DeleteSchedule(ctx, id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.unregisterLocked(id)
	s.mu.Unlock()

	if ok {
		s.log.Info("schedule removed", logx.String("id", id))
	}
	return ok, nil
}

// List returns every stored schedule, oldest first.
func (s *Service) List(ctx context.Context) ([]storage.ScheduledPost, error) {
	if s.store == nil {
		return nil, ErrStoreRequired
	}
	return s.store.ListSchedules(ctx)
}

// registerLocked wires one definition into cron or a one-shot timer.
// A one-shot whose time already passed fires immediately.
func (s *Service) registerLocked(p storage.ScheduledPost) error {
	if p.Cron != "" {
		id, err := s.c.AddFunc(p.Cron, func() { s.fire(p.ID) })
		if err != nil {
			return err
		}
		s.entries[p.ID] = id
		return nil
	}

	delay := time.Until(*p.RunAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[p.ID] = time.AfterFunc(delay, func() { s.fire(p.ID) })
	return nil
}

func (s *Service) unregisterLocked(id string) {
	if entry, ok := s.entries[id]; ok {
		s.c.Remove(entry)
		delete(s.entries, id)
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// fire runs one schedule: publish, record history, update bookkeeping.
// One-shot schedules are deleted after their run.
func (s *Service) fire(id string) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	p, ok, err := s.store.GetSchedule(ctx, id)
	if err != nil || !ok {
		// Deleted between trigger and fire; nothing to do.
		return
	}

	start := time.Now()
	res, err := s.pub.Publish(ctx, p.Payload)
	if err != nil {
		// Only invalid payloads reach here; target failures are inside res.
		s.log.Error("scheduled publish rejected",
			logx.String("id", id), logx.Err(err))
		res = &dispatch.FanOutResult{CompletedAt: time.Now(), Errors: map[string]string{"payload": err.Error()}}
	}

	rec := storage.PublishRecord{
		ID:         uuid.NewString(),
		ScheduleID: p.ID,
		Content:    snippet(p.Payload.Content),
		Result:     *res,
		At:         start,
	}
	if err := s.store.AppendHistory(ctx, rec); err != nil {
		s.log.Warn("history append failed", logx.String("id", id), logx.Err(err))
	}

	now := time.Now()
	p.LastRunAt = &now
	p.Runs++
	if p.RunAt != nil {
		_, _ = s.store.DeleteSchedule(ctx, p.ID)
		s.mu.Lock()
		s.unregisterLocked(p.ID)
		s.mu.Unlock()
	} else if err := s.store.PutSchedule(ctx, p); err != nil {
		s.log.Warn("schedule bookkeeping failed", logx.String("id", id), logx.Err(err))
	}

	s.log.Info("scheduled publish complete",
		logx.String("id", id),
		logx.Bool("success", res.Success),
		logx.Int("succeeded", len(res.Succeeded)),
		logx.Int("failed", len(res.Failed)),
		logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local",
			logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// snippet keeps history rows small; full content lives in the schedule.
func snippet(content string) string {
	const max = 200
	if len(content) <= max {
		return content
	}
	return content[:max]
}
