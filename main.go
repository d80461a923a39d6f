package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/chat"
	"github.com/chzyer/readline"
	"github.com/go-json-experiment/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/banana/autosell"
	"github.com/zephyrtronium/banana/chatlog"
	"github.com/zephyrtronium/banana/config"
	"github.com/zephyrtronium/banana/mcsession"
	"github.com/zephyrtronium/banana/metrics"
)

//go:embed example.toml
var exampleConfig []byte

var app = cli.Command{
	Name:  "banana",
	Usage: "Console-driven Minecraft automation client",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:   "run",
			Usage:  "Connect and start the console (default)",
			Action: cliRun,
		},
		{
			Name:  "ping",
			Usage: "Show the server's status without joining",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "How long to wait for the server",
					Value: 10 * time.Second,
				},
			},
			Action: cliPing,
		},
		{
			Name:      "init",
			Usage:     "Write an example configuration file",
			ArgsUsage: "FILE",
			Action:    cliInit,
		},
	},
	Action: cliRun,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("couldn't start console: %w", err)
	}
	defer rl.Close()
	slog.SetDefault(loggerFromFlags(cmd, rl.Stdout()))
	path := cmd.String("config")
	raw, cfg, err := loadConfig(ctx, path)
	if err != nil {
		return err
	}
	if cfg.Server.Version != mcsession.Version {
		slog.WarnContext(ctx, "configured version differs from client version",
			slog.String("configured", cfg.Server.Version),
			slog.String("client", mcsession.Version),
		)
	}
	login, err := accountLogin(cfg, func(userCode, verURI, verURIComplete string) {
		slog.InfoContext(ctx, "sign in to microsoft", slog.String("url", verURI), slog.String("code", userCode))
	})
	if err != nil {
		return err
	}
	var pool *sqlitex.Pool
	if cfg.DB.Chatlog != "" {
		slog.DebugContext(ctx, "chat log db", slog.String("path", cfg.DB.Chatlog))
		pool, err = sqlitex.NewPool(cfg.DB.Chatlog, sqlitex.PoolOptions{})
		if err != nil {
			return fmt.Errorf("couldn't open chat log db: %w", err)
		}
		defer pool.Close()
		if err := chatlog.Init(ctx, pool); err != nil {
			return fmt.Errorf("couldn't initialize chat log: %w", err)
		}
	}
	m := metrics.Nop()
	if cfg.HTTP.Listen != "" {
		m = newMetrics()
	}

	robo := New(path, raw, *cfg, rl.Stdout(), m, pool)
	sess := mcsession.New(mcsession.Options{
		Addr:  cfg.Server.Addr(),
		Name:  cfg.Server.Username,
		Login: login,
		Eat:   cfg.Eat,
	}, robo.Listener())
	robo.Attach(sess, autosell.Ticker{Post: robo.postFunc})
	return robo.Run(ctx, rl, cfg.HTTP.Listen)
}

// serverStatus is the status response of a server list ping.
type serverStatus struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description chat.Message `json:"description"`
}

func cliPing(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd, os.Stderr))
	_, cfg, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	addr := cfg.Server.Addr()
	slog.InfoContext(ctx, "ping", slog.String("addr", addr))
	b, delay, err := bot.PingAndListContext(ctx, addr)
	if err != nil {
		return fmt.Errorf("couldn't ping %s: %w", addr, err)
	}
	var st serverStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("couldn't decode server status: %w", err)
	}
	fmt.Printf("%s (protocol %d)\n", st.Version.Name, st.Version.Protocol)
	fmt.Printf("players: %d/%d\n", st.Players.Online, st.Players.Max)
	fmt.Printf("latency: %v\n", delay)
	fmt.Println(st.Description.ClearString())
	return nil
}

func cliInit(ctx context.Context, cmd *cli.Command) error {
	p := cmd.Args().First()
	if p == "" {
		return errors.New("usage: banana init FILE")
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("couldn't create config: %w", err)
	}
	if _, err := f.Write(exampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("couldn't write config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("couldn't write config: %w", err)
	}
	fmt.Println("wrote", p)
	return nil
}

// loadConfig loads and validates the configuration file at path.
// loadConfig reads the configuration file at path. The first result is the
// configuration as written in the file, which is what gets saved back; the
// second is the validated effective configuration.
func loadConfig(ctx context.Context, path string) (config.Config, *config.Config, error) {
	if path == "" {
		return config.Config{}, nil, errors.New("--config is required")
	}
	r, err := os.Open(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	raw, _, err := config.Decode(r)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("couldn't load config: %w", err)
	}
	cfg, err := config.Resolve(raw)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("couldn't load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}
	return raw, &cfg, nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command, w io.Writer) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		ConsoleLines: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "console",
					Name:      "lines",
					Help:      "Number of non-empty console lines read.",
				},
			),
		),
		CommandCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "console",
					Name:      "commands",
					Help:      "Number of console command invocations by command.",
				},
				[]string{"command"},
			),
		),
		ChatReceived: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "chat",
					Name:      "received",
					Help:      "Number of chat lines received by kind.",
				},
				[]string{"kind"},
			),
		),
		ChatSent: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "chat",
					Name:      "sent",
					Help:      "Number of chat messages and commands sent from the console.",
				},
			),
		),
		SellCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "autosell",
					Name:      "sells",
					Help:      "Number of sell commands sent.",
				},
			),
		),
		ReconnectCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "session",
					Name:      "reconnects",
					Help:      "Number of reconnection attempts.",
				},
			),
		),
		SessionErrors: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "session",
					Name:      "errors",
					Help:      "Number of session errors that did not end the connection, by kind.",
				},
				[]string{"kind"},
			),
		),
		DepositedItems: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "banana",
					Subsystem: "bones",
					Name:      "deposited",
					Help:      "Number of items deposited into the chest.",
				},
			),
		),
		ConnectLatency: metrics.NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
					Namespace: "banana",
					Subsystem: "session",
					Name:      "connect_latency",
					Help:      "How long it takes from connecting to spawning in seconds",
				},
			),
		),
		SessionDuration: metrics.NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   []float64{10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
					Namespace: "banana",
					Subsystem: "session",
					Name:      "duration",
					Help:      "How long the player stays spawned per connection in seconds",
				},
			),
		),
	}
}
