package command

import (
	"context"
	"strings"

	"github.com/zephyrtronium/banana/config"
)

// Bones toggles the bone collector.
//   - on: start collecting.
//   - off: stop collecting.
func Bones(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	if len(call.Args) != 1 {
		robo.Say("usage: !bones <on|off>")
		return nil
	}
	switch strings.ToLower(call.Args[0]) {
	case "on":
		if !robo.Collector.Start(ctx) {
			robo.Say("bone collector is already running")
		}
	case "off":
		robo.Collector.Stop(ctx)
	default:
		robo.Say("usage: !bones <on|off>")
	}
	return nil
}
