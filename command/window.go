package command

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/zephyrtronium/banana/config"
	"github.com/zephyrtronium/banana/game"
)

// Window describes the open window and its non-empty slots.
func Window(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	w := robo.Session.Window()
	if w == nil {
		robo.Say("no window open")
		return nil
	}
	robo.Say("window %d: %q (%s), %d slots", w.ID, w.Title, w.Type, len(w.Slots))
	lo, _ := w.Inventory()
	for i, it := range w.Slots {
		if it.Empty() {
			continue
		}
		where := ""
		if i >= lo {
			where = " (inventory)"
		}
		robo.Say("  %d: %s x%d%s", i, it.Name, it.Count, where)
	}
	return nil
}

// Click left-clicks a slot of the open window.
//   - slot: slot number.
func Click(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	click(ctx, robo, call, "click", game.ClickLeft)
	return nil
}

// Shift shift-clicks a slot of the open window.
//   - slot: slot number.
func Shift(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	click(ctx, robo, call, "shift", game.ClickShift)
	return nil
}

func click(ctx context.Context, robo *Robot, call *Invocation, name string, mode game.ClickMode) {
	if len(call.Args) != 1 {
		robo.Say("usage: !%s <slot>", name)
		return
	}
	slot, err := strconv.Atoi(call.Args[0])
	if err != nil || slot < 0 {
		robo.Say("invalid slot; usage: !%s <slot>", name)
		return
	}
	switch err := robo.Session.Click(slot, mode); {
	case err == nil:
		robo.Log.InfoContext(ctx, "clicked", slog.Int("slot", slot), slog.String("mode", mode.String()))
	case errors.Is(err, game.ErrNoWindow):
		robo.Say("no window open")
	case errors.Is(err, game.ErrSlot):
		robo.Say("no slot %d in the open window", slot)
	default:
		robo.Log.ErrorContext(ctx, "click failed", slog.Int("slot", slot), slog.Any("err", err))
	}
}

// Close closes the open window.
func Close(ctx context.Context, robo *Robot, call *Invocation) *config.Config {
	switch err := robo.Session.CloseWindow(); {
	case err == nil:
		robo.Log.InfoContext(ctx, "closed window")
	case errors.Is(err, game.ErrNoWindow):
		robo.Say("no window open")
	default:
		robo.Log.ErrorContext(ctx, "close failed", slog.Any("err", err))
	}
	return nil
}
