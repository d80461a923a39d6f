package mcsession

import (
	"log/slog"
	"slices"

	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/zephyrtronium/banana/game"
)

func (s *Session) onHealth(health float32, food int32, saturation float32) error {
	s.mu.Lock()
	if int(food) != s.food {
		s.eating = false
	}
	s.food = int(food)
	eat := s.opts.Eat
	var slot int
	ok := false
	if eat.Enabled && s.spawned && !s.eating && int(food) < eat.Below && health > 0 {
		slot, ok = pickFood(s.inv[hotbarLo:hotbarHi], eat.Foods)
		s.eating = ok
	}
	s.mu.Unlock()
	if s.l.Health != nil {
		s.l.Health(health, int(food))
	}
	if !ok {
		return nil
	}
	slog.Info("eating", slog.Int("food", int(food)), slog.Int("hotbar", slot))
	return s.useHotbar(slot)
}

// pickFood finds the hotbar slot holding the most preferred food.
func pickFood(hotbar []game.Item, foods []string) (int, bool) {
	best, rank := -1, len(foods)
	for i, it := range hotbar {
		if it.Empty() {
			continue
		}
		if k := slices.Index(foods, it.Name); k >= 0 && k < rank {
			best, rank = i, k
		}
	}
	return best, best >= 0
}

// useHotbar selects a hotbar slot and uses the item in it.
func (s *Session) useHotbar(slot int) error {
	s.mu.Lock()
	s.held = slot
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if err := s.write(pk.Marshal(packetid.ServerboundSetCarriedItem, pk.Short(slot))); err != nil {
		return err
	}
	return s.write(pk.Marshal(packetid.ServerboundUseItem, pk.VarInt(0), pk.VarInt(seq)))
}
