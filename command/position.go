package command

import (
	"context"
	"strconv"

	"github.com/zephyrtronium/banana/config"
	"github.com/zephyrtronium/banana/game"
)

// Spawner sets the position around which the bone collector gathers drops.
//   - x, y, z: block coordinates.
func Spawner(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	v, ok := coords(robo, call, "spawner")
	if !ok {
		return nil
	}
	cfg := call.Config.Clone()
	cfg.Bones.Spawner = v
	robo.Collector.Configure(cfg.Bones)
	robo.Say("spawner position set to %v", v)
	return &cfg
}

// Chest sets the container into which the bone collector deposits.
//   - x, y, z: block coordinates.
func Chest(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	v, ok := coords(robo, call, "chest")
	if !ok {
		return nil
	}
	cfg := call.Config.Clone()
	cfg.Bones.Chest = v
	robo.Collector.Configure(cfg.Bones)
	robo.Say("chest position set to %v", v)
	return &cfg
}

func coords(robo *Robot, call *Invocation, name string) (game.Vec3, bool) {
	if len(call.Args) != 3 {
		robo.Say("usage: !%s <x> <y> <z>", name)
		return game.Vec3{}, false
	}
	var p [3]int
	for i, s := range call.Args {
		n, err := strconv.Atoi(s)
		if err != nil {
			robo.Say("invalid coordinates; usage: !%s <x> <y> <z>", name)
			return game.Vec3{}, false
		}
		p[i] = n
	}
	return game.Vec3{X: p[0], Y: p[1], Z: p[2]}, true
}
