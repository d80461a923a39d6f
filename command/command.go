package command

import (
	"context"

	"github.com/zephyrtronium/banana/config"
)

// Invocation is a command invocation. An Invocation and its fields must not
// be modified or retained by any command, except that a command may modify
// a clone of Config to return.
type Invocation struct {
	// Name is the lowercased command name without the prefix.
	Name string
	// Args is the whitespace-separated arguments in their original case.
	Args []string
	// Text is everything after the command name with its original spacing.
	Text string
	// Config is the current configuration.
	Config config.Config
}

// Func executes a command. If the command changes the configuration, it
// returns the new configuration, which the caller installs and saves.
// Otherwise it returns nil.
type Func func(ctx context.Context, robo *Robot, call *Invocation) *config.Config
