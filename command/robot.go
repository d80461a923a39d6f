package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/zephyrtronium/banana/autosell"
	"github.com/zephyrtronium/banana/collector"
	"github.com/zephyrtronium/banana/game"
)

// Robot is the bot state as is visible to commands.
type Robot struct {
	Log *slog.Logger
	// Out is the console. Command output is written here.
	Out       io.Writer
	Session   game.Session
	Seller    *autosell.Seller
	Collector *collector.Collector
	// Sell is the handle of the running auto-sell task, if any.
	Sell *autosell.Handle
}

// Say writes a line of output to the console.
func (robo *Robot) Say(format string, args ...any) {
	fmt.Fprintf(robo.Out, format+"\n", args...)
}
