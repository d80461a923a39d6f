// Package mcsession connects the bot to a Minecraft server using go-mc.
//
// Protocol handling, login, and chat signing belong to go-mc. This package
// tracks the small slice of world state the bot needs (its own position,
// item entities, the inventory, and the open window) and reports events to a
// [game.Listener].
package mcsession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/bot/basic"
	"github.com/Tnze/go-mc/bot/msg"
	"github.com/Tnze/go-mc/bot/playerlist"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/chat/sign"
	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/Tnze/go-mc/offline"

	"github.com/zephyrtronium/banana/config"
	"github.com/zephyrtronium/banana/game"
)

// Version is the game version spoken by the client.
const Version = "1.20.2"

// Options configures a session.
type Options struct {
	// Addr is the server address as host:port.
	Addr string
	// Name is the player name.
	Name string
	// UUID is the player UUID. If empty, the offline-mode UUID of Name is
	// used.
	UUID string
	// Login returns the account for each connection attempt. If nil, the
	// session joins in offline mode as Name.
	Login func(ctx context.Context) (bot.Auth, error)
	// Eat configures eating when hungry.
	Eat config.Eat
}

// Session is a [game.Session] backed by a go-mc client.
type Session struct {
	opts Options
	l    game.Listener

	mu sync.Mutex
	// conn is the active connection, or nil if there is none.
	conn *conn
	// spawned is whether the player is in the world.
	spawned bool
	pos     game.Pos
	drops   map[int32]game.Pos
	// inv is the player inventory window, including crafting and armor
	// slots.
	inv    [invSlots]game.Item
	window *window
	// stateID is the last container state ID from the server.
	stateID int32
	// held is the selected hotbar slot.
	held int
	// food is the last known food level.
	food int
	// eating is whether an eat was started since food last changed.
	eating bool
	// target is the walk destination.
	target *game.Pos
	seq    int32
}

// conn is one connection to the server.
type conn struct {
	c      *bot.Client
	player *basic.Player
	chat   *msg.Manager
	cancel context.CancelFunc
	// respawn asks the server to respawn the player.
	respawn func() error
}

const (
	// invSlots is the size of the player inventory window.
	invSlots = 46
	// mainLo is the first slot of the main inventory in the player window.
	mainLo = 9
	// hotbarLo is the first hotbar slot in the player window.
	hotbarLo = 36
	// hotbarHi is the end of the hotbar in the player window.
	hotbarHi = 45
)

// window is the open container.
type window struct {
	id    int
	kind  string
	title string
	slots []game.Item
	// announced is whether the listener has been told of the window.
	announced bool
}

var _ game.Session = (*Session)(nil)

// New creates a disconnected session reporting to l.
func New(opts Options, l game.Listener) *Session {
	return &Session{
		opts:  opts,
		l:     l,
		drops: make(map[int32]game.Pos),
	}
}

// Connect starts connecting in the background.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return game.ErrConnected
	}
	c := bot.NewClient()
	c.Auth = bot.Auth{Name: s.opts.Name, UUID: s.opts.UUID}
	if c.Auth.UUID == "" {
		c.Auth.UUID = offline.NameToUUID(s.opts.Name).String()
	}
	ctx, cancel := context.WithCancel(ctx)
	cn := &conn{c: c, cancel: cancel}
	cn.player = basic.NewPlayer(c, basic.DefaultSettings, basic.EventsListener{
		GameStart:    s.onGameStart,
		HealthChange: s.onHealth,
		Death:        func() error { return s.onDeath(cn) },
		Teleported: func(x, y, z float64, yaw, pitch float32, flags byte, id int32) error {
			return s.onTeleport(cn, x, y, z, yaw, pitch, flags, id)
		},
	})
	cn.respawn = cn.player.Respawn
	cn.chat = msg.New(c, cn.player, playerlist.New(c), msg.EventsHandler{
		SystemChat:        s.onSystemChat,
		PlayerChatMessage: s.onPlayerChat,
		DisguisedChat:     s.onDisguisedChat,
	})
	s.attach(c)
	s.conn = cn
	go s.run(ctx, cn)
	return nil
}

// run joins the server and handles packets until the connection ends.
func (s *Session) run(ctx context.Context, cn *conn) {
	defer cn.cancel()
	if s.opts.Login != nil {
		a, err := s.opts.Login(ctx)
		if err != nil {
			s.end(cn, fmt.Errorf("couldn't log in: %w", err))
			return
		}
		cn.c.Auth = a
	}
	slog.InfoContext(ctx, "joining", slog.String("addr", s.opts.Addr), slog.String("name", cn.c.Auth.Name))
	err := cn.c.JoinServerWithOptions(s.opts.Addr, bot.JoinOptions{Context: ctx})
	if err != nil {
		s.end(cn, err)
		return
	}
	go s.walk(ctx, cn)
	// Close the connection when the context ends so that HandleGame returns.
	stop := context.AfterFunc(ctx, func() { cn.c.Close() })
	defer stop()
	for {
		err := cn.c.HandleGame()
		e := classify(err)
		if e == nil {
			cn.c.Close()
			s.end(cn, err)
			return
		}
		// HandleGame stops at the first handler error. Resume.
		if s.l.Error != nil {
			s.l.Error(e)
		}
	}
}

// end clears the state of the connection and reports its end.
func (s *Session) end(cn *conn, err error) {
	s.mu.Lock()
	if s.conn != cn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.spawned = false
	s.window = nil
	s.target = nil
	s.eating = false
	s.inv = [invSlots]game.Item{}
	clear(s.drops)
	s.mu.Unlock()
	if reason := kicked(err); reason != "" && s.l.Kicked != nil {
		s.l.Kicked(reason)
	}
	if s.l.End != nil {
		s.l.End(err)
	}
}

// write sends a packet on the active connection.
func (s *Session) write(p pk.Packet) error {
	s.mu.Lock()
	cn := s.conn
	s.mu.Unlock()
	if cn == nil {
		return game.ErrNotConnected
	}
	return cn.c.Conn.WritePacket(p)
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned
}

// maxChat is the longest chat message or command the server accepts.
const maxChat = 256

func (s *Session) Chat(ctx context.Context, m string) error {
	s.mu.Lock()
	cn, ok := s.conn, s.spawned
	s.mu.Unlock()
	if cn == nil || !ok {
		return game.ErrNotConnected
	}
	cmd, ok := strings.CutPrefix(m, "/")
	if !ok {
		if err := cn.chat.SendMessage(m); err != nil {
			return fmt.Errorf("couldn't send chat: %w", err)
		}
		return nil
	}
	if len(cmd) > maxChat {
		return fmt.Errorf("command is longer than %d characters", maxChat)
	}
	p := pk.Marshal(
		packetid.ServerboundChatCommand,
		pk.String(cmd),
		pk.Long(time.Now().UnixMilli()),
		pk.Long(0), // salt
		pk.VarInt(0),
		sign.HistoryUpdate{Acknowledged: pk.NewFixedBitSet(20)},
	)
	if err := cn.c.Conn.WritePacket(p); err != nil {
		return fmt.Errorf("couldn't send command: %w", err)
	}
	return nil
}

func (s *Session) Position() game.Pos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Session) Drops() []game.Drop {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make([]game.Drop, 0, len(s.drops))
	for id, p := range s.drops {
		r = append(r, game.Drop{EntityID: int(id), Pos: p})
	}
	return r
}

func (s *Session) Inventory() []game.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make([]game.Item, hotbarHi-mainLo)
	copy(r, s.inv[mainLo:hotbarHi])
	return r
}

func (s *Session) Window() *game.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == nil || !s.window.announced {
		return nil
	}
	return s.window.snapshot()
}

func (w *window) snapshot() *game.Window {
	return &game.Window{
		ID:    w.id,
		Type:  w.kind,
		Title: w.title,
		Slots: append([]game.Item(nil), w.slots...),
	}
}

func (s *Session) Click(slot int, mode game.ClickMode) error {
	s.mu.Lock()
	w, state := s.window, s.stateID
	s.mu.Unlock()
	if w == nil {
		return game.ErrNoWindow
	}
	if slot < 0 || slot >= len(w.slots) {
		return game.ErrSlot
	}
	var m int32
	switch mode {
	case game.ClickLeft:
		m = 0
	case game.ClickShift:
		m = 1
	default:
		return fmt.Errorf("unknown click mode %v", mode)
	}
	p := pk.Marshal(
		packetid.ServerboundContainerClick,
		pk.UnsignedByte(w.id),
		pk.VarInt(state),
		pk.Short(slot),
		pk.Byte(0), // button
		pk.VarInt(m),
		// The server corrects any mismatch between the predicted result and
		// the real one, so no changed slots are sent.
		pk.VarInt(0),
		pk.Boolean(false), // carried item
	)
	return s.write(p)
}

func (s *Session) CloseWindow() error {
	s.mu.Lock()
	w := s.window
	s.window = nil
	s.mu.Unlock()
	if w == nil {
		return game.ErrNoWindow
	}
	return s.write(pk.Marshal(packetid.ServerboundContainerClose, pk.UnsignedByte(w.id)))
}

func (s *Session) WalkTo(p game.Pos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = &p
}

func (s *Session) OpenContainer(v game.Vec3) error {
	s.mu.Lock()
	ok := s.spawned
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if !ok {
		return game.ErrNotConnected
	}
	p := pk.Marshal(
		packetid.ServerboundUseItemOn,
		pk.VarInt(0), // main hand
		pk.Position{X: v.X, Y: v.Y, Z: v.Z},
		pk.VarInt(1), // top face
		pk.Float(0.5),
		pk.Float(0.5),
		pk.Float(0.5),
		pk.Boolean(false), // inside block
		pk.VarInt(seq),
	)
	return s.write(p)
}

// Close ends the active connection, if any. The listener's End is called
// once the connection is gone.
func (s *Session) Close() error {
	s.mu.Lock()
	cn := s.conn
	s.mu.Unlock()
	if cn == nil {
		return nil
	}
	cn.cancel()
	return nil
}

// text renders a chat component as plain text.
func text(m chat.Message) string {
	return m.ClearString()
}
