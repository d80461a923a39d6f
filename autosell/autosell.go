// Package autosell periodically sends a sell command to the game server.
package autosell

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Session is the part of a game session used to sell.
type Session interface {
	Connected() bool
	Chat(ctx context.Context, msg string) error
}

// Scheduler runs periodic tasks.
type Scheduler interface {
	// Every arranges for f to be called every d until stop is called.
	// A firing already in flight when stop is called may still run.
	Every(d time.Duration, f func()) (stop func())
}

// Seller sends a configured command on a fixed period.
// A Seller is not safe for concurrent use. Its methods and the functions run
// by its Scheduler must all be called from the same goroutine.
type Seller struct {
	session Session
	sched   Scheduler

	cmd   string
	every time.Duration
	cur   *Handle

	// Sold is called after each sell command is sent. It may be nil.
	Sold func(ctx context.Context, cmd string)
}

// Handle is a running auto-sell task. The handle is required to stop it.
type Handle struct {
	stop  func()
	every time.Duration
}

// Interval returns the period with which the task was started.
func (h *Handle) Interval() time.Duration {
	return h.every
}

// New creates a stopped Seller.
func New(session Session, sched Scheduler, cmd string, every time.Duration) *Seller {
	return &Seller{
		session: session,
		sched:   sched,
		cmd:     cmd,
		every:   every,
	}
}

// Start begins selling. The first sell happens immediately. If the Seller is
// already running, Start does nothing and returns the current handle.
func (s *Seller) Start(ctx context.Context) *Handle {
	if s.cur != nil {
		return s.cur
	}
	h := &Handle{every: s.every}
	s.cur = h
	slog.InfoContext(ctx, "auto-sell started", slog.Duration("interval", s.every), slog.String("command", s.cmd))
	s.Sell(ctx)
	h.stop = s.sched.Every(s.every, func() {
		// A firing may already be queued when the task stops.
		if s.cur != h {
			return
		}
		s.Sell(ctx)
	})
	return h
}

// Stop stops the task identified by h. It does nothing if h is nil or is not
// the running task.
func (s *Seller) Stop(ctx context.Context, h *Handle) {
	if h == nil || s.cur != h {
		return
	}
	s.cur = nil
	if h.stop != nil {
		h.stop()
	}
	slog.InfoContext(ctx, "auto-sell stopped")
}

// Running returns the handle of the running task, or nil if stopped.
func (s *Seller) Running() *Handle {
	return s.cur
}

// SetInterval changes the selling period. If a task is running, it is
// restarted with the new period, which sells immediately; the result is the
// new handle. Otherwise the result is nil.
func (s *Seller) SetInterval(ctx context.Context, every time.Duration) *Handle {
	s.every = every
	if s.cur == nil {
		return nil
	}
	s.Stop(ctx, s.cur)
	return s.Start(ctx)
}

// Interval returns the configured period.
func (s *Seller) Interval() time.Duration {
	return s.every
}

// SetCommand changes the command sent by subsequent sells.
func (s *Seller) SetCommand(cmd string) {
	s.cmd = cmd
}

// Command returns the configured command.
func (s *Seller) Command() string {
	return s.cmd
}

// Sell sends the sell command once. It does nothing if the session is not
// connected.
func (s *Seller) Sell(ctx context.Context) {
	if !s.session.Connected() {
		return
	}
	slog.InfoContext(ctx, "selling", slog.String("command", s.cmd))
	if err := s.session.Chat(ctx, s.cmd); err != nil {
		slog.ErrorContext(ctx, "sell failed", slog.String("command", s.cmd), slog.Any("err", err))
		return
	}
	if s.Sold != nil {
		s.Sold(ctx, s.cmd)
	}
}

// Ticker is a [Scheduler] backed by [time.Ticker]. Each firing is handed to
// Post, which should run it on the goroutine that owns the task.
type Ticker struct {
	Post func(f func())
}

// Every implements [Scheduler].
func (t Ticker) Every(d time.Duration, f func()) (stop func()) {
	tk := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case <-tk.C:
				t.Post(f)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
