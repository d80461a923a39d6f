package mcsession

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/bot/msg"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/data/entity"
	"github.com/Tnze/go-mc/data/item"
	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/zephyrtronium/banana/game"
)

func TestKickReason(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"text", `{"text":"You are banned."}`, "You are banned."},
		{"string", `"Server closed"`, "Server closed"},
		{"translate", `{"translate":"multiplayer.disconnect.server_shutdown"}`, "multiplayer.disconnect.server_shutdown"},
		{"extra", `{"text":"","extra":[{"text":"Kicked for spamming","color":"red"},{"text":"!"}]}`, "Kicked for spamming"},
		{"extra-string", `{"extra":["Flying is not enabled"]}`, "Flying is not enabled"},
		{"plain", `Timed out`, "Timed out"},
		{"empty", `{}`, `{}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := kickReason(c.raw); got != c.want {
				t.Errorf("wrong reason: want %q, got %q", c.want, got)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	unknown := &game.Error{Kind: game.KindIgnorable, Op: "set container content", Err: errors.New("unknown container id 3")}
	cases := []struct {
		name string
		err  error
		want game.Kind
		end  bool
	}{
		{"eof", io.EOF, 0, true},
		{"kick", bot.PacketHandlerError{ID: packetid.ClientboundDisconnect, Err: bot.DisconnectErr(chat.Text("bye"))}, 0, true},
		{"chat-sender", bot.PacketHandlerError{ID: packetid.ClientboundPlayerChat, Err: msg.InvalidChatPacket}, game.KindIgnorable, false},
		{"chat-validation", bot.PacketHandlerError{ID: packetid.ClientboundPlayerChat, Err: msg.ValidationFailed}, game.KindIgnorable, false},
		{"disguised", bot.PacketHandlerError{ID: packetid.ClientboundDisguisedChat, Err: msg.InvalidChatPacket}, game.KindIgnorable, false},
		{"container", bot.PacketHandlerError{ID: packetid.ClientboundContainerSetContent, Err: unknown}, game.KindIgnorable, false},
		{"other", bot.PacketHandlerError{ID: packetid.ClientboundAddEntity, Err: io.ErrUnexpectedEOF}, game.KindProtocol, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classify(c.err)
			if c.end {
				if got != nil {
					t.Errorf("connection-ending error classified as %v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("error ended the connection")
			}
			if got.Kind != c.want {
				t.Errorf("wrong kind: want %v, got %v", c.want, got.Kind)
			}
		})
	}
}

func TestKicked(t *testing.T) {
	err := bot.LoginErr{Stage: "disconnect", Err: bot.DisconnectErr(chat.Text("Whitelist only"))}
	if got := kicked(err); got != "Whitelist only" {
		t.Errorf("wrong reason: %q", got)
	}
	if got := kicked(io.EOF); got != "" {
		t.Errorf("eof is a kick: %q", got)
	}
}

func TestStep(t *testing.T) {
	cases := []struct {
		name string
		p, q game.Pos
		d    float64
		want game.Pos
		done bool
	}{
		{"arrive", game.Pos{X: 0, Y: 64, Z: 0}, game.Pos{X: 0.1, Y: 64, Z: 0.1}, 0.5, game.Pos{X: 0.1, Y: 64, Z: 0.1}, true},
		{"partial", game.Pos{X: 0, Y: 64, Z: 0}, game.Pos{X: 3, Y: 64, Z: 4}, 1, game.Pos{X: 0.6, Y: 64, Z: 0.8}, false},
		{"keep-height", game.Pos{X: 0, Y: 64, Z: 0}, game.Pos{X: 0, Y: 60, Z: 10}, 2, game.Pos{X: 0, Y: 64, Z: 2}, false},
		{"already", game.Pos{X: 5, Y: 64, Z: 5}, game.Pos{X: 5, Y: 64, Z: 5}, 1, game.Pos{X: 5, Y: 64, Z: 5}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, done := step(c.p, c.q, c.d)
			if done != c.done {
				t.Errorf("wrong arrival: want %t, got %t", c.done, done)
			}
			if got.Dist(c.want) > 1e-9 {
				t.Errorf("wrong position: want %v, got %v", c.want, got)
			}
		})
	}
}

func TestPickFood(t *testing.T) {
	hotbar := make([]game.Item, 9)
	hotbar[1] = game.Item{Name: "bread", Count: 3}
	hotbar[4] = game.Item{Name: "cooked_beef", Count: 10}
	hotbar[6] = game.Item{Name: "bone", Count: 64}
	cases := []struct {
		name  string
		foods []string
		want  int
		ok    bool
	}{
		{"preferred", []string{"cooked_beef", "bread"}, 4, true},
		{"order", []string{"bread", "cooked_beef"}, 1, true},
		{"none", []string{"golden_carrot"}, -1, false},
		{"empty", nil, -1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := pickFood(hotbar, c.foods)
			if got != c.want || ok != c.ok {
				t.Errorf("wrong pick: want %d %t, got %d %t", c.want, c.ok, got, ok)
			}
		})
	}
}

// slot encodes a slot without NBT.
type slot struct {
	id, count int
}

func (s slot) WriteTo(w io.Writer) (int64, error) {
	if s.count == 0 {
		return pk.Boolean(false).WriteTo(w)
	}
	return pk.Tuple{pk.Boolean(true), pk.VarInt(s.id), pk.Byte(s.count), pk.UnsignedByte(0)}.WriteTo(w)
}

func chest(id int, bones int) pk.Packet {
	slots := make([]slot, 27+game.PlayerSlots)
	slots[0] = slot{id: int(item.Bone.ID), count: 5}
	slots[27] = slot{id: int(item.Bone.ID), count: bones}
	slots[len(slots)-1] = slot{id: int(item.CookedBeef.ID), count: 12}
	return pk.Marshal(
		packetid.ClientboundContainerSetContent,
		pk.UnsignedByte(id),
		pk.VarInt(7),
		pk.Array(slots),
		slot{},
	)
}

func TestWindowTracking(t *testing.T) {
	var opened []game.Window
	s := New(Options{Name: "bocchi"}, game.Listener{
		WindowOpen: func(w game.Window) { opened = append(opened, w) },
	})
	open := pk.Marshal(packetid.ClientboundOpenScreen, pk.VarInt(3), pk.VarInt(2), chat.Text("Chest"))
	if err := s.onOpenScreen(open); err != nil {
		t.Fatalf("couldn't open screen: %v", err)
	}
	if w := s.Window(); w != nil {
		t.Errorf("window visible before contents: %v", w)
	}
	if err := s.onSetContent(chest(3, 64)); err != nil {
		t.Fatalf("couldn't set content: %v", err)
	}
	if len(opened) != 1 {
		t.Fatalf("wrong number of window opens: want 1, got %d", len(opened))
	}
	w := opened[0]
	if w.ID != 3 || w.Type != "minecraft:generic_9x3" || w.Title != "Chest" {
		t.Errorf("wrong window: %d %q %q", w.ID, w.Type, w.Title)
	}
	if len(w.Slots) != 63 {
		t.Errorf("wrong slot count: %d", len(w.Slots))
	}
	if w.Slots[27] != (game.Item{Name: "bone", Count: 64}) {
		t.Errorf("wrong first inventory slot: %v", w.Slots[27])
	}
	// Contents again do not reopen.
	if err := s.onSetContent(chest(3, 32)); err != nil {
		t.Fatalf("couldn't set content again: %v", err)
	}
	if len(opened) != 1 {
		t.Errorf("content update announced the window again")
	}
	inv := s.Inventory()
	if len(inv) != game.PlayerSlots {
		t.Fatalf("wrong inventory size: %d", len(inv))
	}
	if inv[0] != (game.Item{Name: "bone", Count: 32}) || inv[35] != (game.Item{Name: "cooked_beef", Count: 12}) {
		t.Errorf("inventory not mirrored from the window: %v", inv)
	}
	set := pk.Marshal(packetid.ClientboundContainerSetSlot, pk.Byte(3), pk.VarInt(8), pk.Short(27), slot{})
	if err := s.onSetSlot(set); err != nil {
		t.Fatalf("couldn't set slot: %v", err)
	}
	if w := s.Window(); w == nil || !w.Slots[27].Empty() {
		t.Errorf("slot not cleared: %v", w)
	}
	if err := s.onCloseScreen(pk.Marshal(packetid.ClientboundContainerClose, pk.UnsignedByte(3))); err != nil {
		t.Fatalf("couldn't close screen: %v", err)
	}
	if w := s.Window(); w != nil {
		t.Errorf("window still open after close: %v", w)
	}
}

func TestUnknownContainer(t *testing.T) {
	s := New(Options{Name: "bocchi"}, game.Listener{
		WindowOpen: func(w game.Window) { t.Errorf("unknown container opened %v", w) },
	})
	err := s.onSetContent(chest(9, 1))
	if !game.Ignorable(err) {
		t.Errorf("unknown container isn't ignorable: %v", err)
	}
}

func TestItemDrops(t *testing.T) {
	s := New(Options{Name: "bocchi"}, game.Listener{})
	add := func(id int, kind entity.ID, x, y, z float64) {
		t.Helper()
		p := pk.Marshal(
			packetid.ClientboundAddEntity,
			pk.VarInt(id), pk.UUID(uuid.New()), pk.VarInt(kind),
			pk.Double(x), pk.Double(y), pk.Double(z),
			pk.Angle(0), pk.Angle(0), pk.Angle(0),
			pk.VarInt(0),
			pk.Short(0), pk.Short(0), pk.Short(0),
		)
		if err := s.onAddEntity(p); err != nil {
			t.Fatalf("couldn't add entity %d: %v", id, err)
		}
	}
	add(1, entity.Item.ID, 100.5, 64, -200.5)
	add(2, entity.Zombie.ID, 101, 64, -200)
	add(3, entity.Item.ID, 0, 70, 0)
	move := pk.Marshal(packetid.ClientboundMoveEntityPos, pk.VarInt(1), pk.Short(4096), pk.Short(-2048), pk.Short(0), pk.Boolean(true))
	if err := s.onMoveEntity(move); err != nil {
		t.Fatalf("couldn't move entity: %v", err)
	}
	take := pk.Marshal(packetid.ClientboundTakeItemEntity, pk.VarInt(3), pk.VarInt(99), pk.VarInt(1))
	if err := s.onTakeItem(take); err != nil {
		t.Fatalf("couldn't take item: %v", err)
	}
	want := []game.Drop{{EntityID: 1, Pos: game.Pos{X: 101.5, Y: 63.5, Z: -200.5}}}
	if diff := cmp.Diff(want, s.Drops()); diff != "" {
		t.Errorf("wrong drops (-want +got):\n%s", diff)
	}
	rm := pk.Marshal(packetid.ClientboundRemoveEntities, pk.Array([]pk.VarInt{1, 2}))
	if err := s.onRemoveEntities(rm); err != nil {
		t.Fatalf("couldn't remove entities: %v", err)
	}
	if d := s.Drops(); len(d) != 0 {
		t.Errorf("drops left after removal: %v", d)
	}
}

func TestDisconnected(t *testing.T) {
	s := New(Options{Name: "bocchi"}, game.Listener{})
	if s.Connected() {
		t.Error("new session is connected")
	}
	if err := s.Chat(context.Background(), "hello"); !errors.Is(err, game.ErrNotConnected) {
		t.Errorf("wrong chat error: %v", err)
	}
	if err := s.OpenContainer(game.Vec3{}); !errors.Is(err, game.ErrNotConnected) {
		t.Errorf("wrong open error: %v", err)
	}
	if err := s.Click(0, game.ClickLeft); !errors.Is(err, game.ErrNoWindow) {
		t.Errorf("wrong click error: %v", err)
	}
	if err := s.CloseWindow(); !errors.Is(err, game.ErrNoWindow) {
		t.Errorf("wrong close error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("closing a disconnected session failed: %v", err)
	}
}

func TestDeathRespawns(t *testing.T) {
	var deaths, respawns int
	s := New(Options{Name: "bocchi"}, game.Listener{Death: func() { deaths++ }})
	cn := &conn{respawn: func() error { respawns++; return nil }}
	if err := s.onDeath(cn); err != nil {
		t.Fatalf("death failed: %v", err)
	}
	if deaths != 1 || respawns != 1 {
		t.Errorf("wrong counts: %d deaths, %d respawns", deaths, respawns)
	}
	// Respawning doesn't depend on anyone listening.
	s = New(Options{Name: "bocchi"}, game.Listener{})
	if err := s.onDeath(cn); err != nil {
		t.Fatalf("death without listener failed: %v", err)
	}
	if respawns != 2 {
		t.Errorf("no respawn without a death listener")
	}
	cn.respawn = func() error { return io.ErrClosedPipe }
	if err := s.onDeath(cn); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("respawn error not returned: %v", err)
	}
}

func TestGameStart(t *testing.T) {
	var s *Session
	var spawns int
	var connected bool
	s = New(Options{Name: "bocchi"}, game.Listener{
		Spawn: func() {
			spawns++
			connected = s.Connected()
		},
	})
	if err := s.onGameStart(); err != nil {
		t.Fatalf("game start failed: %v", err)
	}
	if spawns != 1 {
		t.Errorf("wrong number of spawns: %d", spawns)
	}
	if !connected {
		t.Errorf("not connected during the spawn listener")
	}
	if !s.Connected() {
		t.Errorf("not connected after spawning")
	}
}

func TestEndResets(t *testing.T) {
	var ended []error
	s := New(Options{Name: "bocchi"}, game.Listener{End: func(err error) { ended = append(ended, err) }})
	cn := &conn{cancel: func() {}}
	s.conn = cn
	if err := s.onGameStart(); err != nil {
		t.Fatal(err)
	}
	if err := s.onOpenScreen(pk.Marshal(packetid.ClientboundOpenScreen, pk.VarInt(3), pk.VarInt(2), chat.Text("Chest"))); err != nil {
		t.Fatal(err)
	}
	if err := s.onSetContent(chest(3, 64)); err != nil {
		t.Fatal(err)
	}
	if inv := s.Inventory(); inv[0].Empty() {
		t.Fatalf("inventory not filled: %v", inv)
	}
	s.end(cn, io.EOF)
	if s.Connected() {
		t.Error("still connected")
	}
	if w := s.Window(); w != nil {
		t.Errorf("window survived: %v", w)
	}
	for i, it := range s.Inventory() {
		if !it.Empty() {
			t.Errorf("slot %d survived: %v", i, it)
		}
	}
	if len(ended) != 1 || ended[0] != io.EOF {
		t.Errorf("wrong end errors: %v", ended)
	}
	// A stale connection ending changes nothing.
	s.end(cn, io.ErrUnexpectedEOF)
	if len(ended) != 1 {
		t.Errorf("stale end reported: %v", ended)
	}
}
