// Package game defines the boundary between the bot and the game client
// library that connects it to a server.
package game

import (
	"context"
	"fmt"
	"math"
)

// Session is a connection to a game server as the bot uses it.
// Methods other than Connect never block on the network.
type Session interface {
	// Connect begins connecting to the server in the background. Progress is
	// reported through the session's [Listener]. It returns an error only if
	// a connection is already active.
	Connect(ctx context.Context) error
	// Connected reports whether the player is spawned in the world.
	Connected() bool
	// Chat sends a chat message or, if msg begins with a slash, a command.
	Chat(ctx context.Context, msg string) error
	// Position returns the player's current position.
	Position() Pos
	// Drops returns the item entities currently known to the session.
	Drops() []Drop
	// Inventory returns the player's main inventory and hotbar, 36 slots.
	Inventory() []Item
	// Window returns a snapshot of the open window, or nil if none is open.
	Window() *Window
	// Click clicks a slot of the open window.
	Click(slot int, mode ClickMode) error
	// CloseWindow closes the open window.
	CloseWindow() error
	// WalkTo starts walking in a straight line toward p, replacing any
	// previous target. Walking happens in the background.
	WalkTo(p Pos)
	// OpenContainer interacts with the block at v.
	OpenContainer(v Vec3) error
	// Close ends the connection.
	Close() error
}

// Listener receives session events. Any field may be nil. Functions are
// called from the session's own goroutines.
type Listener struct {
	// Spawn is called when the player enters the world.
	Spawn func()
	// End is called when the connection is gone, including when a connection
	// attempt fails. err describes why.
	End func(err error)
	// Kicked is called with the decoded disconnect reason before End.
	Kicked func(reason string)
	// Error is called for errors that do not end the connection.
	Error func(err error)
	// WindowOpen is called when the server opens a window.
	WindowOpen func(w Window)
	// Chat is called for each chat line.
	Chat func(kind ChatKind, text string)
	// Death is called when the player dies.
	Death func()
	// Health is called when health or food changes.
	Health func(health float32, food int)
}

// ChatKind distinguishes chat lines.
type ChatKind string

const (
	ChatPlayer ChatKind = "chat"
	ChatSystem ChatKind = "system"
)

// Vec3 is a block position.
type Vec3 struct {
	X int `toml:"x" json:"x"`
	Y int `toml:"y" json:"y"`
	Z int `toml:"z" json:"z"`
}

func (v Vec3) String() string {
	return fmt.Sprintf("%d, %d, %d", v.X, v.Y, v.Z)
}

// Center returns the position at the center of the top of the block below v,
// where a player standing in v would be.
func (v Vec3) Center() Pos {
	return Pos{X: float64(v.X) + 0.5, Y: float64(v.Y), Z: float64(v.Z) + 0.5}
}

// Pos is a precise position in the world.
type Pos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Dist returns the Euclidean distance between p and q.
func (p Pos) Dist(q Pos) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Drop is an item entity lying in the world.
type Drop struct {
	EntityID int
	Pos      Pos
}

// Item is the content of a slot.
type Item struct {
	// Name is the item's registry name without namespace, e.g. "bone".
	// It is empty for an empty slot.
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Empty reports whether the slot holds nothing.
func (it Item) Empty() bool {
	return it.Count <= 0 || it.Name == ""
}

// Window is a snapshot of an open container window.
type Window struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Slots []Item `json:"slots"`
}

// PlayerSlots is the number of player inventory slots appended to every
// container window.
const PlayerSlots = 36

// Inventory returns the bounds of the player inventory section of the window.
func (w *Window) Inventory() (lo, hi int) {
	return max(len(w.Slots)-PlayerSlots, 0), len(w.Slots)
}

// ClickMode is the kind of click to perform on a slot.
type ClickMode int

const (
	// ClickLeft picks up or places a stack.
	ClickLeft ClickMode = iota
	// ClickShift moves a stack between the container and the inventory.
	ClickShift
)

func (m ClickMode) String() string {
	switch m {
	case ClickLeft:
		return "left"
	case ClickShift:
		return "shift"
	default:
		return fmt.Sprintf("ClickMode(%d)", int(m))
	}
}
