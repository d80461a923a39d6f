package command

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/zephyrtronium/banana/config"
)

const sellUsage = "usage: !sell <on|off|interval <seconds>|cmd <text>>"

// Sell controls auto-sell.
//   - on: start selling and enable auto-sell on spawn.
//   - off: stop selling.
//   - interval <seconds>: set the period.
//   - cmd <text>: set the command.
func Sell(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	if len(call.Args) == 0 {
		robo.Say(sellUsage)
		return nil
	}
	switch strings.ToLower(call.Args[0]) {
	case "on":
		cfg := call.Config.Clone()
		cfg.AutoSell.Enabled = true
		robo.Sell = robo.Seller.Start(ctx)
		return &cfg
	case "off":
		cfg := call.Config.Clone()
		cfg.AutoSell.Enabled = false
		robo.Seller.Stop(ctx, robo.Sell)
		robo.Sell = nil
		return &cfg
	case "interval":
		if len(call.Args) != 2 {
			robo.Say("usage: !sell interval <seconds>")
			return nil
		}
		n, err := strconv.ParseInt(call.Args[1], 10, 64)
		if err != nil || n <= 0 {
			robo.Log.DebugContext(ctx, "bad interval", slog.String("arg", call.Args[1]), slog.Any("err", err))
			robo.Say("invalid interval; usage: !sell interval <seconds>")
			return nil
		}
		// Seconds beyond this overflow the millisecond field.
		if n > (1<<63-1)/int64(time.Second) {
			robo.Say("interval too long")
			return nil
		}
		cfg := call.Config.Clone()
		cfg.AutoSell.Interval = n * 1000
		if h := robo.Seller.SetInterval(ctx, time.Duration(n)*time.Second); h != nil {
			robo.Sell = h
		}
		robo.Say("auto-sell interval set to %ds", n)
		return &cfg
	case "cmd":
		text := after(call.Text)
		if text == "" {
			robo.Say("usage: !sell cmd <text>")
			return nil
		}
		cfg := call.Config.Clone()
		cfg.AutoSell.Command = text
		robo.Seller.SetCommand(text)
		robo.Say("auto-sell command set to %q", text)
		return &cfg
	default:
		robo.Say(sellUsage)
		return nil
	}
}

// after returns s without its first word.
func after(s string) string {
	s = strings.TrimSpace(s)
	k := strings.IndexFunc(s, unicode.IsSpace)
	if k < 0 {
		return ""
	}
	return strings.TrimSpace(s[k:])
}
