package mcsession

import (
	"context"
	"math"
	"time"

	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/zephyrtronium/banana/game"
)

const (
	// tick is the movement update period.
	tick = 50 * time.Millisecond
	// stride is the distance walked per tick, a little under walking speed.
	stride = 4.3 * 0.05
)

// walk moves the player toward the walk target until ctx ends.
func (s *Session) walk(ctx context.Context, cn *conn) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		s.mu.Lock()
		if s.target == nil || !s.spawned || s.conn != cn {
			s.mu.Unlock()
			continue
		}
		next, done := step(s.pos, *s.target, stride)
		s.pos = next
		if done {
			s.target = nil
		}
		s.mu.Unlock()
		p := pk.Marshal(
			packetid.ServerboundMovePlayerPos,
			pk.Double(next.X), pk.Double(next.Y), pk.Double(next.Z),
			pk.Boolean(true),
		)
		if err := cn.c.Conn.WritePacket(p); err != nil {
			return
		}
	}
}

// step moves from p toward q by at most d on the horizontal plane, keeping
// p's height. It reports whether q was reached.
func step(p, q game.Pos, d float64) (game.Pos, bool) {
	dx, dz := q.X-p.X, q.Z-p.Z
	n := math.Hypot(dx, dz)
	if n <= d {
		return game.Pos{X: q.X, Y: p.Y, Z: q.Z}, true
	}
	return game.Pos{X: p.X + dx/n*d, Y: p.Y, Z: p.Z + dz/n*d}, false
}
