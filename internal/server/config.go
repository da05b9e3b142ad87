package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/zapzap/internal/store"
)

// Config represents the complete server configuration
type Config struct {
	Server   ServerSettings `hcl:"server,block"`
	Game     GameSettings   `hcl:"game,block"`
	Database DBSettings     `hcl:"database,block"`
	Bots     []BotConfig    `hcl:"bot,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// GameSettings tunes the bot orchestrator timing, in milliseconds.
type GameSettings struct {
	TickIntervalMS  int `hcl:"tick_interval_ms,optional"`
	ActionDelayMS   int `hcl:"action_delay_ms,optional"`
	DecideTimeoutMS int `hcl:"decide_timeout_ms,optional"`
}

// DBSettings selects the persistence backend.
type DBSettings struct {
	Path string `hcl:"path,optional"`
}

// BotConfig defines one bot user seeded into the user repository at startup.
type BotConfig struct {
	Name       string `hcl:"name,label"`
	Difficulty string `hcl:"difficulty,optional"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Game: GameSettings{
			TickIntervalMS:  1000,
			ActionDelayMS:   500,
			DecideTimeoutMS: 5000,
		},
		Database: DBSettings{
			Path: "zapzap.db",
		},
		Bots: []BotConfig{
			{Name: "zippy", Difficulty: "easy"},
			{Name: "zappa", Difficulty: "medium"},
			{Name: "zorro", Difficulty: "hard"},
		},
	}
}

// LoadConfig loads server configuration from an HCL file. A missing file
// yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(src, filename)
}

// ParseConfig decodes HCL source and applies defaults.
func ParseConfig(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Game.TickIntervalMS == 0 {
		config.Game.TickIntervalMS = defaults.Game.TickIntervalMS
	}
	if config.Game.ActionDelayMS == 0 {
		config.Game.ActionDelayMS = defaults.Game.ActionDelayMS
	}
	if config.Game.DecideTimeoutMS == 0 {
		config.Game.DecideTimeoutMS = defaults.Game.DecideTimeoutMS
	}
	if config.Database.Path == "" {
		config.Database.Path = defaults.Database.Path
	}
	for i := range config.Bots {
		if config.Bots[i].Difficulty == "" {
			config.Bots[i].Difficulty = "medium"
		}
	}

	return &config, nil
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validDifficulties := map[string]bool{
		string(store.BotEasy):   true,
		string(store.BotMedium): true,
		string(store.BotHard):   true,
	}
	seen := make(map[string]bool)
	for _, bot := range c.Bots {
		if bot.Name == "" {
			return fmt.Errorf("bot name must not be empty")
		}
		if seen[bot.Name] {
			return fmt.Errorf("duplicate bot name %q", bot.Name)
		}
		seen[bot.Name] = true
		if !validDifficulties[bot.Difficulty] {
			return fmt.Errorf("bot %s: invalid difficulty %q", bot.Name, bot.Difficulty)
		}
	}
	return nil
}

// ListenAddress returns the full listen address.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// TickInterval returns the orchestrator tick interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Game.TickIntervalMS) * time.Millisecond
}

// ActionDelay returns the bot action delay as a duration.
func (c *Config) ActionDelay() time.Duration {
	return time.Duration(c.Game.ActionDelayMS) * time.Millisecond
}

// DecideTimeout returns the per-strategy decision deadline as a duration.
func (c *Config) DecideTimeout() time.Duration {
	return time.Duration(c.Game.DecideTimeoutMS) * time.Millisecond
}
