// Package config loads and saves the bot's TOML configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/zephyrtronium/banana/game"
)

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// SecretFile is the path to a file containing a secret key used to
	// encrypt durable secrets like OAuth2 refresh tokens.
	SecretFile string `toml:"secret,omitempty" env:"BANANA_SECRET"`
	// Server is the table of connection parameters.
	Server Server `toml:"server"`
	// AutoSell is the auto-sell configuration.
	AutoSell AutoSell `toml:"autosell"`
	// Bones is the bone collector configuration.
	Bones Bones `toml:"bones"`
	// Aliases maps console shorthands to their expansions.
	Aliases map[string]string `toml:"aliases"`
	// Eat is the auto-eat configuration.
	Eat Eat `toml:"eat"`
	// Chat is the outbound chat configuration.
	Chat Chat `toml:"chat"`
	// Microsoft is the Microsoft account configuration, used when
	// Server.Auth is "microsoft".
	Microsoft Microsoft `toml:"microsoft,omitempty"`
	// HTTP is the status and metrics API configuration.
	HTTP HTTP `toml:"http,omitempty"`
	// DB is the table of database connection strings.
	DB DB `toml:"db,omitempty"`
}

// Server is the configuration for connecting to a game server.
type Server struct {
	// Host is the server's host name or address.
	Host string `toml:"host" env:"BANANA_HOST"`
	// Port is the server's port.
	Port int `toml:"port" env:"BANANA_PORT"`
	// Username is the player name to use. With Microsoft authentication,
	// the account's profile name replaces it.
	Username string `toml:"username" env:"BANANA_USERNAME"`
	// Auth is the authentication mode, either "offline" or "microsoft".
	Auth string `toml:"auth" env:"BANANA_AUTH"`
	// Version is the game version to speak.
	Version string `toml:"version" env:"BANANA_VERSION"`
	// AutoReconnect enables reconnecting after every disconnect.
	AutoReconnect bool `toml:"auto_reconnect"`
	// ReconnectDelay is the delay before reconnecting in milliseconds.
	ReconnectDelay int64 `toml:"reconnect_delay"`
}

// Addr returns the host and port joined for dialing.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AutoSell is the auto-sell configuration.
type AutoSell struct {
	// Enabled starts auto-sell when the player spawns.
	Enabled bool `toml:"enabled"`
	// Command is the chat command to send.
	Command string `toml:"command"`
	// Interval is the period between sells in milliseconds.
	Interval int64 `toml:"interval"`
}

// Bones is the bone collector configuration.
type Bones struct {
	// Spawner is the position around which drops are collected.
	Spawner game.Vec3 `toml:"spawner"`
	// Chest is the container into which collected items are deposited.
	Chest game.Vec3 `toml:"chest"`
	// Radius is the distance from the spawner within which drops are
	// collected.
	Radius float64 `toml:"radius"`
	// Items is the names of items to deposit.
	Items []string `toml:"items"`
	// DepositAt is the number of held items at which to deposit.
	DepositAt int `toml:"deposit_at"`
	// Tick is the collector's period in milliseconds.
	Tick int64 `toml:"tick"`
}

// Eat is the auto-eat configuration.
type Eat struct {
	Enabled bool `toml:"enabled"`
	// Below is the food level under which to eat.
	Below int `toml:"below"`
	// Foods is the names of items that may be eaten, in order of preference.
	Foods []string `toml:"foods"`
}

// Chat is the outbound chat configuration.
type Chat struct {
	// Rate is the limit on outbound chat messages.
	Rate Rate `toml:"rate"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

// Microsoft is the configuration for Microsoft account login.
type Microsoft struct {
	// CID is the Azure application client ID.
	CID string `toml:"cid,omitempty" env:"BANANA_MICROSOFT_CID"`
	// TokenFile is the path to a file in which the bot persists its OAuth2
	// tokens. It is encrypted with a key derived from the secret key.
	TokenFile string `toml:"token,omitempty" env:"BANANA_MICROSOFT_TOKEN"`
}

// HTTP is the configuration for the HTTP API.
type HTTP struct {
	// Listen is the address on which to serve. Empty disables the API.
	Listen string `toml:"listen,omitempty" env:"BANANA_HTTP_LISTEN"`
}

// DB is the configuration of databases.
type DB struct {
	// Chatlog is the SQLite DSN of the chat log. Empty disables the log.
	Chatlog string `toml:"chatlog,omitempty" env:"BANANA_CHATLOG"`
}

// Auth modes.
const (
	AuthOffline   = "offline"
	AuthMicrosoft = "microsoft"
)

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Server: Server{
			Port:           25565,
			Auth:           AuthOffline,
			Version:        "1.20.2",
			AutoReconnect:  true,
			ReconnectDelay: 5000,
		},
		AutoSell: AutoSell{
			Command:  "/sell all",
			Interval: 300000,
		},
		Bones: Bones{
			Radius:    8,
			Items:     []string{"bone"},
			DepositAt: 256,
			Tick:      500,
		},
		Aliases: map[string]string{},
		Eat: Eat{
			Enabled: true,
			Below:   14,
			Foods:   []string{"cooked_beef", "cooked_porkchop", "bread", "baked_potato", "cooked_chicken", "carrot", "apple"},
		},
		Chat: Chat{
			Rate: Rate{Every: 1, Num: 3},
		},
	}
}

// Load loads a configuration from TOML. Fields absent from the document take
// their values from [Default]. String fields are expanded against the
// environment, then environment variables override individual fields.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	raw, md, err := Decode(r)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := Resolve(raw)
	if err != nil {
		return nil, nil, err
	}
	return &cfg, &md, nil
}

// Decode decodes a configuration from TOML without consulting the
// environment. Fields absent from the document take their values from
// [Default]. The result is the form to pass to [Save].
func Decode(r io.Reader) (Config, toml.MetaData, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, md, fmt.Errorf("couldn't decode config: %w", err)
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	return cfg, md, nil
}

// Resolve returns the effective configuration for a decoded one: string
// fields expanded against the environment, then environment variables
// overriding individual fields. raw is not modified.
func Resolve(raw Config) (Config, error) {
	cfg := raw.Clone()
	expandcfg(&cfg, os.Getenv)
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("couldn't parse env: %w", err)
	}
	return cfg, nil
}

// Edit returns raw with the changes from prev to next applied, limited to
// the fields that console commands edit. Other fields keep their decoded
// values.
func Edit(raw, prev, next Config) Config {
	raw = raw.Clone()
	if next.AutoSell != prev.AutoSell {
		raw.AutoSell = next.AutoSell
	}
	if next.Bones.Spawner != prev.Bones.Spawner {
		raw.Bones.Spawner = next.Bones.Spawner
	}
	if next.Bones.Chest != prev.Bones.Chest {
		raw.Bones.Chest = next.Bones.Chest
	}
	if !maps.Equal(next.Aliases, prev.Aliases) {
		raw.Aliases = maps.Clone(next.Aliases)
	}
	return raw
}

// Validate reports problems that make a configuration unusable.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if cfg.Server.Username == "" && cfg.Server.Auth != AuthMicrosoft {
		errs = append(errs, errors.New("server.username is required"))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	switch cfg.Server.Auth {
	case AuthOffline: // do nothing
	case AuthMicrosoft:
		if cfg.Microsoft.CID == "" || cfg.Microsoft.TokenFile == "" || cfg.SecretFile == "" {
			errs = append(errs, errors.New("microsoft auth requires microsoft.cid, microsoft.token, and secret"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown server.auth %q", cfg.Server.Auth))
	}
	if cfg.Server.ReconnectDelay < 0 {
		errs = append(errs, errors.New("server.reconnect_delay must not be negative"))
	}
	if cfg.AutoSell.Interval <= 0 {
		errs = append(errs, errors.New("autosell.interval must be positive"))
	}
	if cfg.Bones.Tick <= 0 {
		errs = append(errs, errors.New("bones.tick must be positive"))
	}
	if cfg.Chat.Rate.Every <= 0 || cfg.Chat.Rate.Num <= 0 {
		errs = append(errs, errors.New("chat.rate must be positive"))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of cfg.
func (cfg Config) Clone() Config {
	cfg.Aliases = maps.Clone(cfg.Aliases)
	cfg.Bones.Items = slices.Clone(cfg.Bones.Items)
	cfg.Eat.Foods = slices.Clone(cfg.Eat.Foods)
	return cfg
}

// Save writes cfg to the file at path, replacing its contents entirely.
func Save(path string, cfg Config) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("couldn't create temp config: %w", err)
	}
	tmp := f.Name()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("couldn't encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("couldn't write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("couldn't replace config: %w", err)
	}
	return nil
}

// Millis converts a millisecond count to a duration.
func Millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.SecretFile,
		&cfg.Server.Host,
		&cfg.Server.Username,
		&cfg.Microsoft.CID,
		&cfg.Microsoft.TokenFile,
		&cfg.HTTP.Listen,
		&cfg.DB.Chatlog,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	cfg.Server.Auth = strings.ToLower(cfg.Server.Auth)
}
