package command

import (
	"context"

	"github.com/zephyrtronium/banana/config"
)

// Status describes the connection and the automation state.
func Status(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	if robo.Session.Connected() {
		p := robo.Session.Position()
		robo.Say("connected to %s as %s at %.1f, %.1f, %.1f", call.Config.Server.Addr(), call.Config.Server.Username, p.X, p.Y, p.Z)
	} else {
		robo.Say("not connected")
	}
	if h := robo.Seller.Running(); h != nil {
		robo.Say("auto-sell: on, %q every %v", robo.Seller.Command(), h.Interval())
	} else {
		robo.Say("auto-sell: off, %q every %v", robo.Seller.Command(), robo.Seller.Interval())
	}
	robo.Say("bone collector: %v, spawner %v, chest %v", robo.Collector.State(), call.Config.Bones.Spawner, call.Config.Bones.Chest)
	if w := robo.Session.Window(); w != nil {
		robo.Say("window: %q", w.Title)
	}
	return nil
}
