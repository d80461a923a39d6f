package command

import (
	"context"
	"maps"
	"slices"

	"github.com/zephyrtronium/banana/config"
)

// Alias lists console aliases or sets one.
//   - key: the shorthand. Optional.
//   - value: the expansion, the rest of the line.
func Alias(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	switch len(call.Args) {
	case 0:
		if len(call.Config.Aliases) == 0 {
			robo.Say("no aliases")
			return nil
		}
		for _, k := range slices.Sorted(maps.Keys(call.Config.Aliases)) {
			robo.Say("  %s -> %s", k, call.Config.Aliases[k])
		}
		return nil
	case 1:
		robo.Say("usage: !alias [<key> <value>]")
		return nil
	}
	k, v := call.Args[0], after(call.Text)
	cfg := call.Config.Clone()
	if cfg.Aliases == nil {
		cfg.Aliases = make(map[string]string)
	}
	cfg.Aliases[k] = v
	robo.Say("alias %s -> %s", k, v)
	return &cfg
}

// Unalias removes a console alias.
//   - key: the shorthand to remove.
func Unalias(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	if len(call.Args) != 1 {
		robo.Say("usage: !unalias <key>")
		return nil
	}
	k := call.Args[0]
	if _, ok := call.Config.Aliases[k]; !ok {
		robo.Say("no alias %s", k)
		return nil
	}
	cfg := call.Config.Clone()
	delete(cfg.Aliases, k)
	robo.Say("removed alias %s", k)
	return &cfg
}
