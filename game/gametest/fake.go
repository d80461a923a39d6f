// Package gametest provides an in-memory game session for tests.
package gametest

import (
	"context"
	"slices"
	"sync"

	"github.com/zephyrtronium/banana/game"
)

// Click is a recorded window click.
type Click struct {
	Slot int
	Mode game.ClickMode
}

// Session is a fake [game.Session]. Its exported fields may be set directly
// by tests before use and inspected through its methods afterward.
type Session struct {
	mu sync.Mutex

	// Spawned is the value returned by Connected.
	Spawned bool
	// Pos is the player position.
	Pos game.Pos
	// Items is the player inventory.
	Items []game.Item
	// Entities is the set of known drops.
	Entities []game.Drop
	// Open is the open window.
	Open *game.Window
	// ChatErr is returned from Chat when non-nil.
	ChatErr error

	connects int
	sent     []string
	clicks   []Click
	walks    []game.Pos
	opened   []game.Vec3
	closed   int
}

var _ game.Session = (*Session)(nil)

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return nil
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Spawned
}

// SetSpawned changes the connection state.
func (s *Session) SetSpawned(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spawned = v
}

func (s *Session) Chat(ctx context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Spawned {
		return game.ErrNotConnected
	}
	if s.ChatErr != nil {
		return s.ChatErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *Session) Position() game.Pos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Pos
}

func (s *Session) Drops() []game.Drop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Entities)
}

func (s *Session) Inventory() []game.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Items)
}

func (s *Session) Window() *game.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Open == nil {
		return nil
	}
	w := *s.Open
	w.Slots = slices.Clone(w.Slots)
	return &w
}

func (s *Session) Click(slot int, mode game.ClickMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Open == nil {
		return game.ErrNoWindow
	}
	if slot < 0 || slot >= len(s.Open.Slots) {
		return game.ErrSlot
	}
	s.clicks = append(s.clicks, Click{Slot: slot, Mode: mode})
	return nil
}

func (s *Session) CloseWindow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Open == nil {
		return game.ErrNoWindow
	}
	s.Open = nil
	s.closed++
	return nil
}

func (s *Session) WalkTo(p game.Pos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walks = append(s.walks, p)
}

func (s *Session) OpenContainer(v game.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Spawned {
		return game.ErrNotConnected
	}
	s.opened = append(s.opened, v)
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spawned = false
	return nil
}

// Connects returns the number of calls to Connect.
func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Sent returns the chat messages sent so far.
func (s *Session) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// Clicks returns the clicks performed so far.
func (s *Session) Clicks() []Click {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.clicks)
}

// Walks returns the walk targets requested so far.
func (s *Session) Walks() []game.Pos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.walks)
}

// Opened returns the containers opened so far.
func (s *Session) Opened() []game.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.opened)
}

// Closed returns the number of windows closed.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
