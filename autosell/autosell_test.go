package autosell_test

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zephyrtronium/banana/autosell"
	"github.com/zephyrtronium/banana/game/gametest"
)

func fixture(t *testing.T, every time.Duration) (*autosell.Seller, *gametest.Session, *gametest.Clock) {
	t.Helper()
	sess := &gametest.Session{Spawned: true}
	clk := new(gametest.Clock)
	return autosell.New(sess, clk, "/sell all", every), sess, clk
}

func TestStartSellsImmediately(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, 5*time.Minute)
	h := s.Start(ctx)
	if h == nil {
		t.Fatal("nil handle")
	}
	if s.Running() != h {
		t.Error("running handle isn't the started one")
	}
	if diff := cmp.Diff([]string{"/sell all"}, sess.Sent()); diff != "" {
		t.Errorf("wrong sends after start (-want +got):\n%s", diff)
	}
	if clk.Active() != 1 {
		t.Errorf("wrong number of tasks: want 1, got %d", clk.Active())
	}
}

func TestStartIdempotent(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, time.Second)
	a := s.Start(ctx)
	b := s.Start(ctx)
	if a != b {
		t.Error("second start made a new handle")
	}
	if clk.Active() != 1 {
		t.Errorf("wrong number of tasks: want 1, got %d", clk.Active())
	}
	if n := len(sess.Sent()); n != 1 {
		t.Errorf("second start sold again: %d sends", n)
	}
	clk.Advance(time.Second)
	if n := len(sess.Sent()); n != 2 {
		t.Errorf("wrong number of sends after one period: want 2, got %d", n)
	}
}

func TestStop(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, time.Second)
	h := s.Start(ctx)
	clk.Advance(time.Second)
	s.Stop(ctx, h)
	if s.Running() != nil {
		t.Error("still running after stop")
	}
	if clk.Active() != 0 {
		t.Errorf("task still scheduled after stop")
	}
	clk.Advance(time.Hour)
	if n := len(sess.Sent()); n != 2 {
		t.Errorf("wrong number of sends: want 2, got %d", n)
	}
	// Stopping again is harmless.
	s.Stop(ctx, h)
	s.Stop(ctx, nil)
}

func TestStopStaleHandle(t *testing.T) {
	ctx := context.Background()
	s, _, clk := fixture(t, time.Second)
	old := s.Start(ctx)
	s.Stop(ctx, old)
	cur := s.Start(ctx)
	s.Stop(ctx, old)
	if s.Running() != cur {
		t.Error("stale handle stopped the current task")
	}
	if clk.Active() != 1 {
		t.Errorf("wrong number of tasks: want 1, got %d", clk.Active())
	}
}

// queued is a scheduler that holds firings until released, like an event
// loop with a backlog.
type queued struct {
	f    func()
	stop atomic.Bool
}

func (q *queued) Every(d time.Duration, f func()) func() {
	q.f = f
	return func() { q.stop.Store(true) }
}

func TestQueuedFiringAfterStop(t *testing.T) {
	ctx := context.Background()
	sess := &gametest.Session{Spawned: true}
	q := new(queued)
	s := autosell.New(sess, q, "/sell all", time.Second)
	h := s.Start(ctx)
	s.Stop(ctx, h)
	if !q.stop.Load() {
		t.Error("task not stopped")
	}
	// The firing was already in flight.
	q.f()
	if n := len(sess.Sent()); n != 1 {
		t.Errorf("sold after stop: %d sends", n)
	}
}

func TestSetIntervalRunning(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, 10*time.Second)
	h := s.Start(ctx)
	clk.Advance(4 * time.Second)
	nh := s.SetInterval(ctx, 3*time.Second)
	if nh == nil || nh == h {
		t.Fatalf("interval change didn't restart: %p -> %p", h, nh)
	}
	if nh.Interval() != 3*time.Second {
		t.Errorf("wrong new interval: %v", nh.Interval())
	}
	if diff := cmp.Diff([]time.Duration{3 * time.Second}, clk.Intervals()); diff != "" {
		t.Errorf("wrong scheduled tasks (-want +got):\n%s", diff)
	}
	// Immediate sell on restart.
	if n := len(sess.Sent()); n != 2 {
		t.Errorf("wrong number of sends after restart: want 2, got %d", n)
	}
	clk.Advance(3 * time.Second)
	if n := len(sess.Sent()); n != 3 {
		t.Errorf("wrong number of sends after new period: want 3, got %d", n)
	}
	// The old period must not fire.
	clk.Advance(3 * time.Second)
	if n := len(sess.Sent()); n != 4 {
		t.Errorf("wrong number of sends after second new period: want 4, got %d", n)
	}
}

func TestSetIntervalStopped(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, 10*time.Second)
	if h := s.SetInterval(ctx, time.Second); h != nil {
		t.Error("interval change started a stopped seller")
	}
	if s.Interval() != time.Second {
		t.Errorf("wrong interval: %v", s.Interval())
	}
	if len(sess.Sent()) != 0 || clk.Active() != 0 {
		t.Error("stopped seller sold")
	}
}

func TestSetCommand(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, time.Second)
	h := s.Start(ctx)
	s.SetCommand("/sell hand")
	if s.Running() != h {
		t.Error("command change restarted")
	}
	clk.Advance(time.Second)
	want := []string{"/sell all", "/sell hand"}
	if diff := cmp.Diff(want, sess.Sent()); diff != "" {
		t.Errorf("wrong sends (-want +got):\n%s", diff)
	}
}

func TestSellNotConnected(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, time.Second)
	sess.SetSpawned(false)
	var sold int
	s.Sold = func(ctx context.Context, cmd string) { sold++ }
	s.Start(ctx)
	clk.Advance(3 * time.Second)
	if len(sess.Sent()) != 0 || sold != 0 {
		t.Errorf("sold while disconnected")
	}
	sess.SetSpawned(true)
	clk.Advance(time.Second)
	if len(sess.Sent()) != 1 || sold != 1 {
		t.Errorf("didn't sell after connecting: %d sends, %d sold", len(sess.Sent()), sold)
	}
}

func TestSellChatError(t *testing.T) {
	ctx := context.Background()
	sess := &gametest.Session{Spawned: true, ChatErr: errors.New("kicked for spam")}
	var sold int
	s := autosell.New(sess, new(gametest.Clock), "/sell all", time.Second)
	s.Sold = func(ctx context.Context, cmd string) { sold++ }
	s.Sell(ctx)
	if sold != 0 {
		t.Error("failed sell reported as sold")
	}
}

// TestSellOnScenario covers enabling auto-sell with the default interval.
func TestSellOnScenario(t *testing.T) {
	ctx := context.Background()
	s, sess, clk := fixture(t, 300000*time.Millisecond)
	s.Start(ctx)
	if diff := cmp.Diff([]string{"/sell all"}, sess.Sent()); diff != "" {
		t.Errorf("wrong immediate sell (-want +got):\n%s", diff)
	}
	clk.Advance(299999 * time.Millisecond)
	if n := len(sess.Sent()); n != 1 {
		t.Errorf("sold before the interval elapsed: %d sends", n)
	}
	clk.Advance(time.Millisecond)
	if !slices.Equal(sess.Sent(), []string{"/sell all", "/sell all"}) {
		t.Errorf("wrong sends after interval: %q", sess.Sent())
	}
}

func TestTicker(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real time")
	}
	posted := make(chan func(), 4)
	tk := autosell.Ticker{Post: func(f func()) { posted <- f }}
	var n atomic.Int32
	stop := tk.Every(time.Millisecond, func() { n.Add(1) })
	for range 3 {
		f := <-posted
		f()
	}
	stop()
	stop()
	if n.Load() != 3 {
		t.Errorf("wrong number of runs: want 3, got %d", n.Load())
	}
}
