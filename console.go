package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/chzyer/readline"
)

// errQuit is returned by the console when the user exits.
var errQuit = errors.New("quit")

// console reads lines from rl and posts them to the event loop in order.
func (robo *Robot) console(ctx context.Context, rl *readline.Instance) error {
	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()
	for {
		line, err := rl.Readline()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				slog.InfoContext(ctx, "exiting")
				return errQuit
			}
			return fmt.Errorf("couldn't read console: %w", err)
		}
		robo.post(func(ctx context.Context) { robo.line(ctx, line) })
	}
}
