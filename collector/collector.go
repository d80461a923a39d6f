// Package collector gathers item drops around a spawner and deposits them
// into a chest.
package collector

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/zephyrtronium/banana/config"
	"github.com/zephyrtronium/banana/game"
)

// State is the collector's activity.
type State int

const (
	Off State = iota
	Collecting
	Depositing
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case Collecting:
		return "collecting"
	case Depositing:
		return "depositing"
	default:
		return "State(?)"
	}
}

const (
	// reach is the distance from which the player can open the chest.
	reach = 4.5
	// standoff is how far from the chest's center the player stands.
	standoff = 1.5
	// patience is the number of ticks to wait for the chest to open before
	// trying again.
	patience = 10
)

// Scheduler runs periodic tasks.
type Scheduler interface {
	Every(d time.Duration, f func()) (stop func())
}

// Collector walks to drops near a spawner and deposits matching items into
// a chest when enough are held.
// A Collector is not safe for concurrent use. Its methods and the functions
// run by its Scheduler must all be called from the same goroutine.
type Collector struct {
	session game.Session
	sched   Scheduler
	cfg     config.Bones

	state   State
	stop    func()
	waiting int

	// Deposited is called with the number of items moved into the chest.
	// It may be nil.
	Deposited func(ctx context.Context, n int)
}

// New creates a stopped collector.
func New(session game.Session, sched Scheduler, cfg config.Bones) *Collector {
	c := &Collector{session: session, sched: sched}
	c.Configure(cfg)
	return c
}

// Configure replaces the collector's positions and tuning. A change of tick
// applies at the next Start.
func (c *Collector) Configure(cfg config.Bones) {
	cfg.Items = slices.Clone(cfg.Items)
	c.cfg = cfg
}

// State returns the current activity.
func (c *Collector) State() State {
	return c.state
}

// Start begins collecting. It returns false if the collector was already
// running.
func (c *Collector) Start(ctx context.Context) bool {
	if c.state != Off {
		return false
	}
	c.state = Collecting
	c.waiting = 0
	slog.InfoContext(ctx, "bone collector started",
		slog.String("spawner", c.cfg.Spawner.String()),
		slog.String("chest", c.cfg.Chest.String()),
	)
	c.stop = c.sched.Every(config.Millis(c.cfg.Tick), func() { c.Tick(ctx) })
	return true
}

// Stop stops collecting. It does nothing if the collector is off.
func (c *Collector) Stop(ctx context.Context) {
	if c.state == Off {
		return
	}
	c.stop()
	c.stop = nil
	c.state = Off
	c.waiting = 0
	slog.InfoContext(ctx, "bone collector stopped")
}

// Reset abandons a deposit in progress, e.g. after a disconnect.
func (c *Collector) Reset() {
	if c.state != Off {
		c.state = Collecting
	}
	c.waiting = 0
}

// Tick advances the collector by one step.
func (c *Collector) Tick(ctx context.Context) {
	if c.state == Off || !c.session.Connected() {
		return
	}
	switch c.state {
	case Collecting:
		if n := c.held(); c.cfg.DepositAt > 0 && n >= c.cfg.DepositAt {
			slog.InfoContext(ctx, "depositing", slog.Int("held", n))
			c.state = Depositing
			c.waiting = 0
			c.session.WalkTo(c.approach(c.session.Position()))
			return
		}
		if d, ok := c.nearest(); ok {
			c.session.WalkTo(d.Pos)
		}
	case Depositing:
		if c.waiting > 0 {
			c.waiting--
			return
		}
		pos := c.session.Position()
		if pos.Dist(c.cfg.Chest.Center()) > reach {
			c.session.WalkTo(c.approach(pos))
			return
		}
		if err := c.session.OpenContainer(c.cfg.Chest); err != nil {
			slog.ErrorContext(ctx, "couldn't open chest", slog.String("chest", c.cfg.Chest.String()), slog.Any("err", err))
			return
		}
		c.waiting = patience
	}
}

// WindowOpened deposits matching items if the collector is waiting for the
// chest to open.
func (c *Collector) WindowOpened(ctx context.Context, w game.Window) {
	if c.state != Depositing || c.waiting == 0 {
		return
	}
	lo, hi := w.Inventory()
	moved := 0
	for i := lo; i < hi; i++ {
		it := w.Slots[i]
		if it.Empty() || !slices.Contains(c.cfg.Items, it.Name) {
			continue
		}
		if err := c.session.Click(i, game.ClickShift); err != nil {
			slog.ErrorContext(ctx, "couldn't deposit", slog.Int("slot", i), slog.Any("err", err))
			break
		}
		moved += it.Count
	}
	if err := c.session.CloseWindow(); err != nil {
		slog.WarnContext(ctx, "couldn't close chest", slog.Any("err", err))
	}
	slog.InfoContext(ctx, "deposited", slog.Int("items", moved))
	c.state = Collecting
	c.waiting = 0
	if c.Deposited != nil {
		c.Deposited(ctx, moved)
	}
}

// held counts the matching items in the player's inventory.
func (c *Collector) held() int {
	n := 0
	for _, it := range c.session.Inventory() {
		if !it.Empty() && slices.Contains(c.cfg.Items, it.Name) {
			n += it.Count
		}
	}
	return n
}

// nearest finds the drop closest to the player among those within range of
// the spawner.
func (c *Collector) nearest() (game.Drop, bool) {
	center := c.cfg.Spawner.Center()
	pos := c.session.Position()
	var best game.Drop
	bd := math.Inf(1)
	for _, d := range c.session.Drops() {
		if d.Pos.Dist(center) > c.cfg.Radius {
			continue
		}
		if k := d.Pos.Dist(pos); k < bd {
			best, bd = d, k
		}
	}
	return best, !math.IsInf(bd, 1)
}

// approach returns a point beside the chest on the side facing from.
func (c *Collector) approach(from game.Pos) game.Pos {
	center := c.cfg.Chest.Center()
	dx, dz := from.X-center.X, from.Z-center.Z
	d := math.Hypot(dx, dz)
	if d < 1e-6 {
		dx, dz, d = 1, 0, 1
	}
	return game.Pos{
		X: center.X + dx/d*standoff,
		Y: center.Y,
		Z: center.Z + dz/d*standoff,
	}
}
