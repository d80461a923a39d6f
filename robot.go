package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode"

	"github.com/chzyer/readline"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/banana/alias"
	"github.com/zephyrtronium/banana/autosell"
	"github.com/zephyrtronium/banana/chatlog"
	"github.com/zephyrtronium/banana/collector"
	"github.com/zephyrtronium/banana/command"
	"github.com/zephyrtronium/banana/config"
	"github.com/zephyrtronium/banana/game"
	"github.com/zephyrtronium/banana/metrics"
)

// Robot is the session controller. Apart from construction, everything it
// does happens on its event loop.
type Robot struct {
	// path is the configuration file.
	path string
	// raw is the configuration as it is saved, without environment
	// expansion or overrides.
	raw config.Config
	// cfg is the current effective configuration.
	cfg     config.Config
	out     io.Writer
	session game.Session
	cmd     command.Robot
	limiter *rate.Limiter
	chatlog *sqlitex.Pool
	history *chatlog.History
	metrics *metrics.Metrics

	events chan func(context.Context)
	// done is closed when the event loop exits.
	done chan struct{}
	// after runs f on the event loop once d has elapsed.
	after func(d time.Duration, f func(context.Context))

	// connecting is when the last connection attempt started.
	connecting time.Time
	// spawned is when the player last spawned, or zero if not spawned.
	spawned time.Time
}

// New creates a Robot. raw is the configuration as decoded from path, and
// cfg is its resolved form. chat may be nil to disable the chat log.
// [Robot.Attach] must be called before the robot runs.
func New(path string, raw, cfg config.Config, out io.Writer, m *metrics.Metrics, chat *sqlitex.Pool) *Robot {
	robo := &Robot{
		path:    path,
		raw:     raw,
		cfg:     cfg,
		out:     out,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.Chat.Rate.Num)/cfg.Chat.Rate.Every), cfg.Chat.Rate.Num),
		chatlog: chat,
		history: chatlog.NewHistory(),
		metrics: m,
		events:  make(chan func(context.Context), 64),
		done:    make(chan struct{}),
	}
	robo.after = func(d time.Duration, f func(context.Context)) {
		time.AfterFunc(d, func() { robo.post(f) })
	}
	return robo
}

// Attach connects the robot to a game session. Periodic tasks are scheduled
// through sched, which must run them on the event loop.
func (robo *Robot) Attach(s game.Session, sched autosell.Scheduler) {
	robo.session = s
	seller := autosell.New(s, sched, robo.cfg.AutoSell.Command, config.Millis(robo.cfg.AutoSell.Interval))
	seller.Sold = robo.sold
	coll := collector.New(s, sched, robo.cfg.Bones)
	coll.Deposited = robo.deposited
	robo.cmd = command.Robot{
		Log:       slog.Default(),
		Out:       robo.out,
		Session:   s,
		Seller:    seller,
		Collector: coll,
	}
}

// Run connects and processes events until the console closes or ctx ends.
func (robo *Robot) Run(ctx context.Context, rl *readline.Instance, listen string) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return robo.loop(ctx) })
	group.Go(func() error { return robo.console(ctx, rl) })
	if listen != "" {
		group.Go(func() error { return robo.api(ctx, listen, http.NewServeMux(), robo.metrics.Collectors()) })
	}
	robo.post(robo.connect)
	err := group.Wait()
	robo.session.Close()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// loop runs posted events in order until ctx ends.
func (robo *Robot) loop(ctx context.Context) error {
	defer close(robo.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-robo.events:
			robo.run(ctx, f)
		}
	}
}

// run runs one event, recovering from panics.
func (robo *Robot) run(ctx context.Context, f func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic in event", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	f(ctx)
}

// post queues f to run on the event loop. It is dropped if the loop has
// exited.
func (robo *Robot) post(f func(context.Context)) {
	select {
	case robo.events <- f:
	case <-robo.done:
	}
}

// postFunc posts a function that ignores the loop's context.
func (robo *Robot) postFunc(f func()) {
	robo.post(func(context.Context) { f() })
}

// errStopped is returned by do when the event loop has exited.
var errStopped = errors.New("event loop stopped")

// do runs f on the event loop and waits for it to finish.
func (robo *Robot) do(ctx context.Context, f func(context.Context)) error {
	ch := make(chan struct{})
	robo.post(func(ctx context.Context) {
		defer close(ch)
		f(ctx)
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-robo.done:
		return errStopped
	}
}

// Listener returns the session listener that forwards events to the loop.
func (robo *Robot) Listener() game.Listener {
	return game.Listener{
		Spawn: func() { robo.post(robo.onSpawn) },
		End: func(err error) {
			robo.post(func(ctx context.Context) { robo.onEnd(ctx, err) })
		},
		Kicked: func(reason string) {
			robo.post(func(ctx context.Context) { slog.WarnContext(ctx, "kicked", slog.String("reason", reason)) })
		},
		Error: func(err error) {
			robo.post(func(ctx context.Context) { robo.onError(ctx, err) })
		},
		WindowOpen: func(w game.Window) {
			robo.post(func(ctx context.Context) { robo.onWindow(ctx, w) })
		},
		Chat: func(kind game.ChatKind, text string) {
			robo.post(func(ctx context.Context) { robo.onChat(ctx, kind, text) })
		},
		Death: func() {
			robo.post(func(ctx context.Context) { slog.WarnContext(ctx, "died, respawning") })
		},
		Health: func(health float32, food int) {
			robo.post(func(ctx context.Context) {
				slog.DebugContext(ctx, "health", slog.Float64("health", float64(health)), slog.Int("food", food))
			})
		},
	}
}

func (robo *Robot) connect(ctx context.Context) {
	slog.InfoContext(ctx, "connecting",
		slog.String("host", robo.cfg.Server.Addr()),
		slog.String("username", robo.cfg.Server.Username),
	)
	robo.connecting = time.Now()
	if err := robo.session.Connect(ctx); err != nil {
		slog.ErrorContext(ctx, "couldn't connect", slog.Any("err", err))
	}
}

func (robo *Robot) onSpawn(ctx context.Context) {
	if !robo.connecting.IsZero() {
		robo.metrics.ConnectLatency.Observe(time.Since(robo.connecting).Seconds())
	}
	robo.spawned = time.Now()
	slog.InfoContext(ctx, "spawned", slog.String("hint", "type !help for commands"))
	if robo.cfg.AutoSell.Enabled {
		robo.cmd.Sell = robo.cmd.Seller.Start(ctx)
	}
}

func (robo *Robot) onEnd(ctx context.Context, err error) {
	if !robo.spawned.IsZero() {
		robo.metrics.SessionDuration.Observe(time.Since(robo.spawned).Seconds())
		robo.spawned = time.Time{}
	}
	slog.WarnContext(ctx, "disconnected", slog.Any("err", err))
	robo.cmd.Seller.Stop(ctx, robo.cmd.Sell)
	robo.cmd.Sell = nil
	// The collector idles while disconnected.
	robo.cmd.Collector.Reset()
	if !robo.cfg.Server.AutoReconnect {
		return
	}
	d := config.Millis(robo.cfg.Server.ReconnectDelay)
	slog.InfoContext(ctx, "reconnecting", slog.Duration("delay", d))
	robo.after(d, func(ctx context.Context) {
		robo.metrics.ReconnectCount.Observe(1)
		robo.connect(ctx)
	})
}

func (robo *Robot) onError(ctx context.Context, err error) {
	if game.Ignorable(err) {
		robo.metrics.SessionErrors.Observe(1, game.KindIgnorable.String())
		slog.DebugContext(ctx, "ignored", slog.Any("err", err))
		return
	}
	robo.metrics.SessionErrors.Observe(1, game.KindProtocol.String())
	slog.ErrorContext(ctx, "session error", slog.Any("err", err))
}

func (robo *Robot) onWindow(ctx context.Context, w game.Window) {
	slog.InfoContext(ctx, "window opened",
		slog.String("title", w.Title),
		slog.String("type", w.Type),
		slog.Int("slots", len(w.Slots)),
	)
	robo.cmd.Collector.WindowOpened(ctx, w)
}

func (robo *Robot) onChat(ctx context.Context, kind game.ChatKind, text string) {
	robo.metrics.ChatReceived.Observe(1, string(kind))
	slog.InfoContext(ctx, "chat", slog.String("kind", string(kind)), slog.String("text", text))
	robo.record(ctx, string(kind), text)
}

func (robo *Robot) sold(ctx context.Context, cmd string) {
	robo.metrics.SellCount.Observe(1)
	robo.record(ctx, chatlog.KindSell, cmd)
}

func (robo *Robot) deposited(ctx context.Context, n int) {
	robo.metrics.DepositedItems.Observe(float64(n))
}

// record adds a line to the history and the chat log, if there is one.
func (robo *Robot) record(ctx context.Context, kind, text string) {
	now := time.Now()
	robo.history.Add(kind, text, now)
	if robo.chatlog == nil {
		return
	}
	if err := chatlog.Record(ctx, robo.chatlog, kind, text, now); err != nil {
		slog.ErrorContext(ctx, "couldn't record chat", slog.Any("err", err))
	}
}

// line handles one line of console input.
func (robo *Robot) line(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	robo.metrics.ConsoleLines.Observe(1)
	line = alias.Resolve(robo.cfg.Aliases, line)
	if cmd, ok := strings.CutPrefix(line, "!"); ok {
		robo.dispatch(ctx, cmd)
		return
	}
	robo.chat(ctx, line)
}

// commands is the console command vocabulary.
var commands = map[string]command.Func{
	"help":    command.Help,
	"sell":    command.Sell,
	"bones":   command.Bones,
	"gui":     command.Window,
	"window":  command.Window,
	"click":   command.Click,
	"shift":   command.Shift,
	"close":   command.Close,
	"spawner": command.Spawner,
	"chest":   command.Chest,
	"alias":   command.Alias,
	"unalias": command.Unalias,
	"status":  command.Status,
}

// dispatch runs a console command. text is the line without its prefix.
func (robo *Robot) dispatch(ctx context.Context, text string) {
	name, rest := text, ""
	if k := strings.IndexFunc(text, unicode.IsSpace); k >= 0 {
		name, rest = text[:k], strings.TrimSpace(text[k:])
	}
	name = strings.ToLower(name)
	f := commands[name]
	if f == nil {
		slog.DebugContext(ctx, "unknown command", slog.String("name", name))
		robo.cmd.Say("unknown command: %s. Type !help", name)
		return
	}
	robo.metrics.CommandCount.Observe(1, name)
	call := command.Invocation{
		Name:   name,
		Args:   strings.Fields(rest),
		Text:   rest,
		Config: robo.cfg,
	}
	next := f(ctx, &robo.cmd, &call)
	if next == nil {
		return
	}
	robo.raw = config.Edit(robo.raw, robo.cfg, *next)
	robo.cfg = *next
	if err := config.Save(robo.path, robo.raw); err != nil {
		slog.ErrorContext(ctx, "couldn't save config", slog.String("path", robo.path), slog.Any("err", err))
		return
	}
	slog.InfoContext(ctx, "saved", slog.String("path", robo.path))
}

// chat sends a chat line, waiting on the event loop's timers if the rate
// limit requires it.
func (robo *Robot) chat(ctx context.Context, text string) {
	if !robo.session.Connected() {
		slog.ErrorContext(ctx, "not connected", slog.String("text", text))
		return
	}
	if d := robo.limiter.Reserve().Delay(); d > 0 {
		slog.DebugContext(ctx, "chat delayed", slog.Duration("delay", d))
		robo.after(d, func(ctx context.Context) { robo.send(ctx, text) })
		return
	}
	robo.send(ctx, text)
}

func (robo *Robot) send(ctx context.Context, text string) {
	if err := robo.session.Chat(ctx, text); err != nil {
		slog.ErrorContext(ctx, "couldn't send chat", slog.String("text", text), slog.Any("err", err))
		return
	}
	robo.metrics.ChatSent.Observe(1)
	robo.record(ctx, chatlog.KindSent, text)
}
