package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zephyrtronium/banana/game"
)

func TestLoadDefaults(t *testing.T) {
	const doc = `
[server]
host = 'localhost'
username = 'bocchi'
`
	cfg, md, err := Load(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("couldn't load: %v", err)
	}
	if md.IsDefined("autosell") {
		t.Errorf("autosell unexpectedly defined")
	}
	want := Default()
	want.Server.Host = "localhost"
	want.Server.Username = "bocchi"
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("wrong config (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults are invalid: %v", err)
	}
}

func TestLoadExpand(t *testing.T) {
	t.Setenv("BANANA_TEST_DIR", "/srv/banana")
	const doc = `
secret = '${BANANA_TEST_DIR}/key'
[server]
host = 'localhost'
username = 'bocchi'
[db]
chatlog = 'file:$BANANA_TEST_DIR/chat.db'
`
	cfg, _, err := Load(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("couldn't load: %v", err)
	}
	if cfg.SecretFile != "/srv/banana/key" {
		t.Errorf("wrong secret: %q", cfg.SecretFile)
	}
	if cfg.DB.Chatlog != "file:/srv/banana/chat.db" {
		t.Errorf("wrong chatlog: %q", cfg.DB.Chatlog)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BANANA_HOST", "mc.example.com")
	t.Setenv("BANANA_PORT", "25566")
	const doc = `
[server]
host = 'localhost'
username = 'bocchi'
`
	cfg, _, err := Load(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("couldn't load: %v", err)
	}
	if cfg.Server.Host != "mc.example.com" {
		t.Errorf("wrong host: %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 25566 {
		t.Errorf("wrong port: %d", cfg.Server.Port)
	}
	if cfg.Server.Username != "bocchi" {
		t.Errorf("username changed: %q", cfg.Server.Username)
	}
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("BANANA_PORT", "ryo")
	_, _, err := Load(context.Background(), strings.NewReader(`[server]`))
	if err == nil {
		t.Error("no error with non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		ok   bool
	}{
		{"ok", func(*Config) {}, true},
		{"no-host", func(c *Config) { c.Server.Host = "" }, false},
		{"no-user", func(c *Config) { c.Server.Username = "" }, false},
		{"port", func(c *Config) { c.Server.Port = 70000 }, false},
		{"auth", func(c *Config) { c.Server.Auth = "mojang" }, false},
		{"microsoft-missing", func(c *Config) { c.Server.Auth = AuthMicrosoft }, false},
		{
			"microsoft",
			func(c *Config) {
				c.Server.Auth = AuthMicrosoft
				c.Server.Username = ""
				c.SecretFile = "key"
				c.Microsoft = Microsoft{CID: "cid", TokenFile: "tok"}
			},
			true,
		},
		{"interval", func(c *Config) { c.AutoSell.Interval = 0 }, false},
		{"delay", func(c *Config) { c.Server.ReconnectDelay = -1 }, false},
		{"zero-delay", func(c *Config) { c.Server.ReconnectDelay = 0 }, true},
		{"tick", func(c *Config) { c.Bones.Tick = 0 }, false},
		{"rate", func(c *Config) { c.Chat.Rate.Num = 0 }, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.Host = "localhost"
			cfg.Server.Username = "bocchi"
			c.mod(&cfg)
			err := cfg.Validate()
			if (err == nil) != c.ok {
				t.Errorf("wrong validity: want ok=%t, got %v", c.ok, err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	p := filepath.Join(t.TempDir(), "banana.toml")
	if err := os.WriteFile(p, []byte("garbage that will be replaced"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.Server.Host = "localhost"
	cfg.Server.Username = "bocchi"
	cfg.Bones.Spawner = game.Vec3{X: 100, Y: 64, Z: -200}
	cfg.Aliases["!c"] = "!click"
	cfg.AutoSell.Command = "/sell hand"
	if err := Save(p, cfg); err != nil {
		t.Fatalf("couldn't save: %v", err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, _, err := Load(context.Background(), f)
	if err != nil {
		t.Fatalf("couldn't reload: %v", err)
	}
	if diff := cmp.Diff(&cfg, got); diff != "" {
		t.Errorf("reloaded config differs (-saved +loaded):\n%s", diff)
	}
	ents, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 1 {
		t.Errorf("temporary files left behind: %v", ents)
	}
}

func TestSaveMissingDir(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nope", "banana.toml")
	if err := Save(p, Default()); err == nil {
		t.Error("saved into a directory that doesn't exist")
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.Aliases["!c"] = "!click"
	c := cfg.Clone()
	c.Aliases["!c"] = "!close"
	c.Bones.Items[0] = "arrow"
	c.Eat.Foods[0] = "rotten_flesh"
	if cfg.Aliases["!c"] != "!click" {
		t.Errorf("clone shares aliases")
	}
	if cfg.Bones.Items[0] != "bone" {
		t.Errorf("clone shares items")
	}
	if cfg.Eat.Foods[0] != "cooked_beef" {
		t.Errorf("clone shares foods")
	}
}

func TestResolveKeepsRaw(t *testing.T) {
	t.Setenv("BANANA_TEST_DIR", "/srv/banana")
	t.Setenv("BANANA_HOST", "mc.example.com")
	const doc = `
secret = '$BANANA_TEST_DIR/key'
[server]
host = 'localhost'
username = 'bocchi'
[aliases]
'!c' = '!click'
`
	raw, _, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("couldn't decode: %v", err)
	}
	cfg, err := Resolve(raw)
	if err != nil {
		t.Fatalf("couldn't resolve: %v", err)
	}
	if cfg.SecretFile != "/srv/banana/key" || cfg.Server.Host != "mc.example.com" {
		t.Errorf("wrong effective config: secret %q, host %q", cfg.SecretFile, cfg.Server.Host)
	}
	if raw.SecretFile != "$BANANA_TEST_DIR/key" || raw.Server.Host != "localhost" {
		t.Errorf("raw config changed: secret %q, host %q", raw.SecretFile, raw.Server.Host)
	}
	cfg.Aliases["!c"] = "!close"
	if raw.Aliases["!c"] != "!click" {
		t.Errorf("resolved config shares aliases with raw")
	}
}

func TestEdit(t *testing.T) {
	raw := Default()
	raw.SecretFile = "$HOME/key"
	raw.Server.Host = "localhost"
	raw.Server.Username = "bocchi"
	prev := raw.Clone()
	prev.SecretFile = "/home/bocchi/key"
	prev.Server.Host = "mc.example.com"

	cases := []struct {
		name string
		mod  func(*Config)
		want func(*Config)
	}{
		{
			name: "none",
			mod:  func(*Config) {},
			want: func(*Config) {},
		},
		{
			name: "spawner",
			mod:  func(c *Config) { c.Bones.Spawner = game.Vec3{X: 1, Y: 2, Z: 3} },
			want: func(c *Config) { c.Bones.Spawner = game.Vec3{X: 1, Y: 2, Z: 3} },
		},
		{
			name: "chest",
			mod:  func(c *Config) { c.Bones.Chest = game.Vec3{X: -4, Y: 5, Z: 6} },
			want: func(c *Config) { c.Bones.Chest = game.Vec3{X: -4, Y: 5, Z: 6} },
		},
		{
			name: "autosell",
			mod: func(c *Config) {
				c.AutoSell.Enabled = true
				c.AutoSell.Interval = 60000
			},
			want: func(c *Config) {
				c.AutoSell.Enabled = true
				c.AutoSell.Interval = 60000
			},
		},
		{
			name: "alias",
			mod:  func(c *Config) { c.Aliases = map[string]string{"sp": "/spawn"} },
			want: func(c *Config) { c.Aliases = map[string]string{"sp": "/spawn"} },
		},
		{
			// Fields commands don't edit are never copied.
			name: "host",
			mod:  func(c *Config) { c.Server.Host = "elsewhere.example.com" },
			want: func(*Config) {},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next := prev.Clone()
			c.mod(&next)
			want := raw.Clone()
			c.want(&want)
			got := Edit(raw, prev, next)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("wrong raw config (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEditDoesNotShare(t *testing.T) {
	raw := Default()
	prev := raw.Clone()
	next := prev.Clone()
	next.Aliases["!c"] = "!click"
	got := Edit(raw, prev, next)
	next.Aliases["!c"] = "!close"
	if got.Aliases["!c"] != "!click" {
		t.Errorf("edited config shares aliases with next")
	}
	if len(raw.Aliases) != 0 {
		t.Errorf("raw config modified: %v", raw.Aliases)
	}
}
