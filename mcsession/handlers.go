package mcsession

import (
	"fmt"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/bot/screen"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/data/entity"
	"github.com/Tnze/go-mc/data/item"
	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/zephyrtronium/banana/game"
)

// attach registers the packet handlers for tracked state.
func (s *Session) attach(c *bot.Client) {
	c.Events.AddListener(
		bot.PacketHandler{ID: packetid.ClientboundDisconnect, F: s.onDisconnect},
		bot.PacketHandler{ID: packetid.ClientboundOpenScreen, F: s.onOpenScreen},
		bot.PacketHandler{ID: packetid.ClientboundContainerSetContent, F: s.onSetContent},
		bot.PacketHandler{ID: packetid.ClientboundContainerSetSlot, F: s.onSetSlot},
		bot.PacketHandler{ID: packetid.ClientboundContainerClose, F: s.onCloseScreen},
		bot.PacketHandler{ID: packetid.ClientboundSetCarriedItem, F: s.onSetCarried},
		bot.PacketHandler{ID: packetid.ClientboundAddEntity, F: s.onAddEntity},
		bot.PacketHandler{ID: packetid.ClientboundRemoveEntities, F: s.onRemoveEntities},
		bot.PacketHandler{ID: packetid.ClientboundTakeItemEntity, F: s.onTakeItem},
		bot.PacketHandler{ID: packetid.ClientboundTeleportEntity, F: s.onTeleportEntity},
		bot.PacketHandler{ID: packetid.ClientboundMoveEntityPos, F: s.onMoveEntity},
		bot.PacketHandler{ID: packetid.ClientboundMoveEntityPosRot, F: s.onMoveEntity},
	)
}

func (s *Session) onGameStart() error {
	s.mu.Lock()
	s.spawned = true
	s.mu.Unlock()
	if s.l.Spawn != nil {
		s.l.Spawn()
	}
	return nil
}

// onDisconnect decodes the kick reason and stops packet handling.
func (s *Session) onDisconnect(p pk.Packet) error {
	var raw pk.String
	if err := p.Scan(&raw); err != nil {
		return fmt.Errorf("couldn't read disconnect reason: %w", err)
	}
	return bot.DisconnectErr(chat.Text(kickReason(string(raw))))
}

func (s *Session) onSystemChat(m chat.Message, overlay bool) error {
	if overlay {
		// Action bar text.
		return nil
	}
	if s.l.Chat != nil {
		s.l.Chat(game.ChatSystem, text(m))
	}
	return nil
}

func (s *Session) onPlayerChat(m chat.Message, validated bool) error {
	if s.l.Chat != nil {
		s.l.Chat(game.ChatPlayer, text(m))
	}
	return nil
}

func (s *Session) onDisguisedChat(m chat.Message) error {
	if s.l.Chat != nil {
		s.l.Chat(game.ChatPlayer, text(m))
	}
	return nil
}

func (s *Session) onDeath(cn *conn) error {
	if s.l.Death != nil {
		s.l.Death()
	}
	return cn.respawn()
}

func (s *Session) onTeleport(cn *conn, x, y, z float64, yaw, pitch float32, flags byte, id int32) error {
	s.mu.Lock()
	// Flag bits mark coordinates relative to the current position.
	if flags&0x01 != 0 {
		x += s.pos.X
	}
	if flags&0x02 != 0 {
		y += s.pos.Y
	}
	if flags&0x04 != 0 {
		z += s.pos.Z
	}
	s.pos = game.Pos{X: x, Y: y, Z: z}
	// A teleport interrupts walking.
	s.target = nil
	s.mu.Unlock()
	if err := cn.player.AcceptTeleportation(pk.VarInt(id)); err != nil {
		return err
	}
	return cn.c.Conn.WritePacket(pk.Marshal(
		packetid.ServerboundMovePlayerPosRot,
		pk.Double(x), pk.Double(y), pk.Double(z),
		pk.Float(yaw), pk.Float(pitch),
		pk.Boolean(true),
	))
}

// menus are the names of window types by registry ID.
var menus = [...]string{
	"generic_9x1", "generic_9x2", "generic_9x3", "generic_9x4", "generic_9x5",
	"generic_9x6", "generic_3x3", "anvil", "beacon", "blast_furnace",
	"brewing_stand", "crafting", "enchantment", "furnace", "grindstone",
	"hopper", "lectern", "loom", "merchant", "shulker_box", "smithing",
	"smoker", "cartography_table", "stonecutter",
}

func menuName(id int32) string {
	if id < 0 || int(id) >= len(menus) {
		return fmt.Sprintf("menu(%d)", id)
	}
	return "minecraft:" + menus[id]
}

func (s *Session) onOpenScreen(p pk.Packet) error {
	var (
		id    pk.VarInt
		kind  pk.VarInt
		title chat.Message
	)
	if err := p.Scan(&id, &kind, &title); err != nil {
		return fmt.Errorf("couldn't read open screen: %w", err)
	}
	s.mu.Lock()
	// Contents arrive separately. The window is announced with them.
	s.window = &window{id: int(id), kind: menuName(int32(kind)), title: text(title)}
	s.mu.Unlock()
	return nil
}

// itemOf converts a slot to an item.
func itemOf(sl screen.Slot) game.Item {
	if sl.Count <= 0 {
		return game.Item{}
	}
	it, ok := item.ByID[item.ID(sl.ID)]
	if !ok {
		return game.Item{Name: fmt.Sprintf("item(%d)", sl.ID), Count: int(sl.Count)}
	}
	return game.Item{Name: it.Name, Count: int(sl.Count)}
}

// mirror copies the player inventory part of a container slot into the
// inventory. Must be called with s.mu held.
func (s *Session) mirror(w *window, i int, it game.Item) {
	lo := len(w.slots) - game.PlayerSlots
	if lo < 0 || i < lo {
		return
	}
	s.inv[mainLo+i-lo] = it
}

func (s *Session) onSetContent(p pk.Packet) error {
	var (
		id      pk.UnsignedByte
		state   pk.VarInt
		slots   []screen.Slot
		carried screen.Slot
	)
	if err := p.Scan(&id, &state, pk.Array(&slots), &carried); err != nil {
		return fmt.Errorf("couldn't read container content: %w", err)
	}
	s.mu.Lock()
	s.stateID = int32(state)
	if id == 0 {
		for i, sl := range slots[:min(len(slots), invSlots)] {
			s.inv[i] = itemOf(sl)
		}
		s.mu.Unlock()
		return nil
	}
	w := s.window
	if w == nil || w.id != int(id) {
		s.mu.Unlock()
		return &game.Error{
			Kind: game.KindIgnorable,
			Op:   "set container content",
			Err:  fmt.Errorf("unknown container id %d", id),
		}
	}
	w.slots = make([]game.Item, len(slots))
	for i, sl := range slots {
		w.slots[i] = itemOf(sl)
		s.mirror(w, i, w.slots[i])
	}
	announce := !w.announced
	w.announced = true
	snap := w.snapshot()
	s.mu.Unlock()
	if announce && s.l.WindowOpen != nil {
		s.l.WindowOpen(*snap)
	}
	return nil
}

func (s *Session) onSetSlot(p pk.Packet) error {
	var (
		id    pk.Byte
		state pk.VarInt
		slot  pk.Short
		data  screen.Slot
	)
	if err := p.Scan(&id, &state, &slot, &data); err != nil {
		return fmt.Errorf("couldn't read container slot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateID = int32(state)
	it := itemOf(data)
	switch {
	case id == -1:
		// Carried item.
	case id == -2 || id == 0:
		if slot >= 0 && int(slot) < invSlots {
			s.inv[slot] = it
		}
	case s.window != nil && s.window.id == int(id):
		if slot >= 0 && int(slot) < len(s.window.slots) {
			s.window.slots[slot] = it
			s.mirror(s.window, int(slot), it)
		}
	}
	return nil
}

func (s *Session) onCloseScreen(p pk.Packet) error {
	var id pk.UnsignedByte
	if err := p.Scan(&id); err != nil {
		return fmt.Errorf("couldn't read close screen: %w", err)
	}
	s.mu.Lock()
	if s.window != nil && s.window.id == int(id) {
		s.window = nil
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) onSetCarried(p pk.Packet) error {
	var slot pk.Byte
	if err := p.Scan(&slot); err != nil {
		return fmt.Errorf("couldn't read held slot: %w", err)
	}
	s.mu.Lock()
	s.held = int(slot)
	s.mu.Unlock()
	return nil
}

func (s *Session) onAddEntity(p pk.Packet) error {
	var (
		id      pk.VarInt
		uid     pk.UUID
		kind    pk.VarInt
		x, y, z pk.Double
	)
	if err := p.Scan(&id, &uid, &kind, &x, &y, &z); err != nil {
		return fmt.Errorf("couldn't read entity: %w", err)
	}
	if entity.ID(kind) != entity.Item.ID {
		return nil
	}
	s.mu.Lock()
	s.drops[int32(id)] = game.Pos{X: float64(x), Y: float64(y), Z: float64(z)}
	s.mu.Unlock()
	return nil
}

func (s *Session) onRemoveEntities(p pk.Packet) error {
	var ids []pk.VarInt
	if err := p.Scan(pk.Array(&ids)); err != nil {
		return fmt.Errorf("couldn't read removed entities: %w", err)
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.drops, int32(id))
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) onTakeItem(p pk.Packet) error {
	var collected, collector pk.VarInt
	if err := p.Scan(&collected, &collector); err != nil {
		return fmt.Errorf("couldn't read item pickup: %w", err)
	}
	s.mu.Lock()
	delete(s.drops, int32(collected))
	s.mu.Unlock()
	return nil
}

func (s *Session) onTeleportEntity(p pk.Packet) error {
	var (
		id      pk.VarInt
		x, y, z pk.Double
	)
	if err := p.Scan(&id, &x, &y, &z); err != nil {
		return fmt.Errorf("couldn't read entity teleport: %w", err)
	}
	s.mu.Lock()
	if _, ok := s.drops[int32(id)]; ok {
		s.drops[int32(id)] = game.Pos{X: float64(x), Y: float64(y), Z: float64(z)}
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) onMoveEntity(p pk.Packet) error {
	var (
		id         pk.VarInt
		dx, dy, dz pk.Short
	)
	if err := p.Scan(&id, &dx, &dy, &dz); err != nil {
		return fmt.Errorf("couldn't read entity move: %w", err)
	}
	s.mu.Lock()
	if q, ok := s.drops[int32(id)]; ok {
		// Deltas are in units of 1/4096 block.
		q.X += float64(dx) / 4096
		q.Y += float64(dy) / 4096
		q.Z += float64(dz) / 4096
		s.drops[int32(id)] = q
	}
	s.mu.Unlock()
	return nil
}

