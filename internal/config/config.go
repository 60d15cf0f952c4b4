package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Simulation SimulationConfig `json:"simulation"`
	Reference  ReferenceConfig  `json:"reference"`
	Database   DatabaseConfig   `json:"database"`
	Notify     NotifyConfig     `json:"notify"`
	Auth       AuthConfig       `json:"auth"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type SimulationConfig struct {
	TickInterval Duration `json:"tick_interval"`
	Speed        float64  `json:"speed"`
	Timezone     string   `json:"timezone"`
	Seed         uint64   `json:"seed"`
}

// Reference sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

type ReferenceConfig struct {
	// Path is a YAML file; empty means the bundled tables.
	Path   string `json:"path"`
	Source string `json:"source"`
	// SeedPostgres imports the file tables into Postgres before loading them back.
	SeedPostgres  bool   `json:"seed_postgres"`
	MigrationsDir string `json:"migrations_dir"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL    string `json:"url"`
	Stream string `json:"stream"`
}

type NotifyConfig struct {
	Slack   ChannelConfig `json:"slack"`
	Discord ChannelConfig `json:"discord"`
}

type ChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type AuthConfig struct {
	Users []UserConfig `json:"users"`
}

type UserConfig struct {
	Role     string `json:"role"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// Duration reads "10s"-style strings or plain nanosecond numbers.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		if val == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Simulation.TickInterval <= 0 {
		c.Simulation.TickInterval = Duration(10 * time.Second)
	}
	if c.Simulation.Speed <= 0 {
		c.Simulation.Speed = 1.0
	}
	if c.Reference.Source == "" {
		c.Reference.Source = SourceFile
	}
	if c.Reference.MigrationsDir == "" {
		c.Reference.MigrationsDir = "migrations"
	}
}

// Validate reports settings that cannot be used as given.
func (c *Config) Validate() error {
	switch c.Reference.Source {
	case SourceFile:
	case SourcePostgres:
		if c.Database.Postgres.DSN == "" {
			return fmt.Errorf("reference source postgres needs database.postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown reference source %q", c.Reference.Source)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the simulation time zone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Simulation.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Simulation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("simulation timezone: %w", err)
	}
	return loc, nil
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config bytes the same way Load does.
func Parse(data []byte) (*Config, error) {
	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
