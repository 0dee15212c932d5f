package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Engine   EngineConfig   `toml:"engine"`
	Report   ReportConfig   `toml:"report"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// EngineConfig carries the workflow vocabulary and projection policy of timeline builds.
type EngineConfig struct {
	WeeklyCapacityHours float64 `toml:"weekly_capacity_hours"`
	SentinelDeveloper   string  `toml:"sentinel_developer"`
	AuditKeyword        string  `toml:"audit_keyword"`
	ClosedState         string  `toml:"closed_state"`
	ActiveState         string  `toml:"active_state"`
	NewState            string  `toml:"new_state"`
	Workers             int     `toml:"workers"`
}

type ReportConfig struct {
	DateLayout string `toml:"date_layout"`
	Style      string `toml:"style"` // dark | light | notty | ascii
	WordWrap   int    `toml:"word_wrap"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// Env holds the environment overrides read at startup.
type Env struct {
	ConfigPath string `env:"TIMELINE_CONFIG"`
	DBPath     string `env:"TIMELINE_DB_PATH"`
	AppName    string `env:"TIMELINE_APP_NAME"`
	DevMode    *bool  `env:"TIMELINE_DEV_MODE"`
}

// ParseEnv loads the environment overrides.
func ParseEnv() (Env, error) {
	var out Env
	if err := env.Parse(&out); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	out.ConfigPath = strings.TrimSpace(out.ConfigPath)
	out.DBPath = strings.TrimSpace(out.DBPath)
	out.AppName = strings.TrimSpace(out.AppName)
	return out, nil
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".timeline/log",
			},
		},
		Engine: EngineConfig{
			WeeklyCapacityHours: 0,
			SentinelDeveloper:   "Resource1",
			AuditKeyword:        "audit",
			ClosedState:         "Closed",
			ActiveState:         "Active",
			NewState:            "New",
			Workers:             0,
		},
		Report: ReportConfig{
			DateLayout: "1/2/2006",
			Style:      "dark",
			WordWrap:   100,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:5437",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if c.Engine.WeeklyCapacityHours < 0 {
		return errors.New("engine.weekly_capacity_hours must be >= 0")
	}
	if c.Engine.Workers < 0 {
		return errors.New("engine.workers must be >= 0")
	}
	states := map[string]string{
		"engine.closed_state": c.Engine.ClosedState,
		"engine.active_state": c.Engine.ActiveState,
		"engine.new_state":    c.Engine.NewState,
	}
	seenState := map[string]string{}
	for _, key := range []string{"engine.closed_state", "engine.active_state", "engine.new_state"} {
		state := strings.TrimSpace(states[key])
		if state == "" {
			continue
		}
		if other, ok := seenState[state]; ok {
			return fmt.Errorf("%s duplicates %s: %q", key, other, state)
		}
		seenState[state] = key
	}

	switch strings.TrimSpace(strings.ToLower(c.Report.Style)) {
	case "", "dark", "light", "notty", "ascii":
	default:
		return fmt.Errorf("invalid report.style: %q", c.Report.Style)
	}
	if c.Report.WordWrap < 0 {
		return errors.New("report.word_wrap must be >= 0")
	}

	for key, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with '/': %q", key, endpoint)
		}
	}

	return nil
}

// WriteFile encodes cfg as TOML at path. An existing file is kept unless force is set.
func WriteFile(path string, cfg Config, force bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %q: %w", path, os.ErrExist)
		}
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	content, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
