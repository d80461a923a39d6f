package command

import (
	"context"

	"github.com/zephyrtronium/banana/config"
)

var helpText = []string{
	"Commands:",
	"  !help                      show this list",
	"  !sell on|off               toggle auto-sell",
	"  !sell interval <seconds>   set the auto-sell period",
	"  !sell cmd <text>           set the auto-sell command",
	"  !bones on|off              toggle the bone collector",
	"  !gui, !window              show the open window",
	"  !click <slot>              click a window slot",
	"  !shift <slot>              shift-click a window slot",
	"  !close                     close the open window",
	"  !spawner <x> <y> <z>       set the spawner position",
	"  !chest <x> <y> <z>         set the chest position",
	"  !alias [<key> <value>]     list or set console aliases",
	"  !unalias <key>             remove a console alias",
	"  !status                    show bot status",
	"Anything else is sent as chat.",
}

// Help lists the console commands.
func Help(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	for _, l := range helpText {
		robo.Say("%s", l)
	}
	return nil
}
