// Package core is the central orchestrator for alarmd.
//
// All entry points (the console gateway, the HTTP observation API, the
// websocket stream) talk to the Core — never directly to the registry or
// scheduler. This keeps the layering flat: one writer surface, many readers.
//
// Data flow:
//
//	Gateway → Core.StartAlarm / Core.ChangeAlarm → registry → scheduler.Notify
//	Scheduler → workers → hub → sinks (console, journal, metrics, websocket)
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alarmd-project/alarmd/internal/config"
	"github.com/alarmd-project/alarmd/internal/event"
	"github.com/alarmd-project/alarmd/internal/registry"
	"github.com/alarmd-project/alarmd/internal/scheduler"
	"github.com/alarmd-project/alarmd/internal/types"
)

// ─── Error sentinels ──────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned by ChangeAlarm when no live alarm has the id.
	ErrNotFound = registry.ErrNotFound

	// ErrInvalidSeconds is returned when the requested duration is not positive.
	ErrInvalidSeconds = errors.New("core: seconds must be positive")

	// ErrInvalidMessage is returned when the message is empty or too long.
	ErrInvalidMessage = errors.New("core: message must be 1..127 characters")
)

// ─── Option / functional options ─────────────────────────────────────────────

// Option is a functional option for the Core.
type Option func(*Core)

// WithLogger attaches a structured logger for operational diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Core) { c.log = log }
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// ─── Core ─────────────────────────────────────────────────────────────────────

// Core wires the alarm registry, the scheduler, and the event hub into a
// single façade used by every entry point.
//
// All methods are safe for concurrent use.
type Core struct {
	cfg   *config.Config
	actor string

	reg   *registry.Registry
	sched *scheduler.Scheduler
	hub   *event.Hub

	log    *slog.Logger
	now    func() time.Time
	cancel context.CancelFunc
}

// New creates a Core. actor names the inserting context in notifications
// (the console prints "Inserted by Gateway(<actor>)"). Call Start to begin
// scheduling.
func New(cfg *config.Config, actor string, opts ...Option) *Core {
	c := &Core{
		cfg:   cfg,
		actor: actor,
		reg:   registry.New(),
		hub:   event.NewHub(),
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.sched = scheduler.New(c.reg, c.hub,
		scheduler.WithRenderInterval(cfg.RenderInterval()),
		scheduler.WithIdleWait(time.Duration(cfg.Alarm.IdleWaitMs)*time.Millisecond),
		scheduler.WithClock(c.now),
	)
	return c
}

// Hub returns the event hub so callers can attach sinks and subscribers.
// Attach sinks before Start to avoid missing early events.
func (c *Core) Hub() *event.Hub { return c.hub }

// Start launches the scheduler. The context governs worker lifetimes;
// Close cancels it.
func (c *Core) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.sched.Start(ctx)
	c.log.Info("core started", "actor", c.actor,
		"render_interval_ms", c.cfg.Alarm.RenderIntervalMs)
}

// Close stops the scheduler and waits for every worker to exit.
func (c *Core) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.sched.Stop()
	c.log.Info("core stopped")
	return nil
}

// StartAlarm inserts a new alarm, or updates the live alarm with the same id
// in place. It returns the resulting record and whether a new record was
// created. The scheduler is woken either way.
func (c *Core) StartAlarm(id int64, seconds int, message string) (types.Alarm, bool, error) {
	if err := validate(seconds, message); err != nil {
		return types.Alarm{}, false, err
	}

	now := c.now()
	a, created := c.reg.Start(id, seconds, message, now.UnixMilli())

	typ := event.TypeInserted
	if !created {
		// Same observable outcome as Change_Alarm on a live id.
		typ = event.TypeChanged
	}
	c.hub.Publish(event.Event{
		Type:     typ,
		AlarmID:  a.ID,
		At:       now.Unix(),
		Seconds:  a.Seconds,
		Message:  a.Message,
		Revision: a.Revision,
		Actor:    c.actor,
	})
	c.sched.Notify()
	return a, created, nil
}

// ChangeAlarm updates a live alarm's duration and message, re-computing its
// due time. It returns ErrNotFound when no live alarm has the id; nothing is
// mutated or announced in that case.
func (c *Core) ChangeAlarm(id int64, seconds int, message string) (types.Alarm, error) {
	if err := validate(seconds, message); err != nil {
		return types.Alarm{}, err
	}

	now := c.now()
	a, err := c.reg.Change(id, seconds, message, now.UnixMilli())
	if err != nil {
		return types.Alarm{}, fmt.Errorf("change alarm %d: %w", id, err)
	}

	c.hub.Publish(event.Event{
		Type:     event.TypeChanged,
		AlarmID:  a.ID,
		At:       now.Unix(),
		Seconds:  a.Seconds,
		Message:  a.Message,
		Revision: a.Revision,
		Actor:    c.actor,
	})
	c.sched.Notify()
	return a, nil
}

// Alarms returns a copy of every live alarm, ordered by id.
func (c *Core) Alarms() []types.Alarm { return c.reg.Snapshot() }

// Lookup returns a copy of the live alarm with the given id.
func (c *Core) Lookup(id int64) (types.Alarm, bool) { return c.reg.Lookup(id) }

// LiveWorkers reports how many message workers are currently running.
func (c *Core) LiveWorkers() int { return c.sched.LiveWorkers() }

func validate(seconds int, message string) error {
	if seconds <= 0 {
		return ErrInvalidSeconds
	}
	if message == "" || len(message) > types.MaxMessageLen {
		return ErrInvalidMessage
	}
	return nil
}
