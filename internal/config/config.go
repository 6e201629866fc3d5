package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// EnvRemoteURL overrides remote.base_url when set.
const EnvRemoteURL = "TAVLA_REMOTE_URL"

type Config struct {
	Remote   RemoteConfig   `toml:"remote"`
	Cache    CacheConfig    `toml:"cache"`
	Board    BoardConfig    `toml:"board"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
	Serve    ServeConfig    `toml:"serve"`
	Keys     KeyConfig      `toml:"keys"`
}

type RemoteConfig struct {
	BaseURL        string   `toml:"base_url"`
	RequestTimeout Duration `toml:"request_timeout"`
	TasksPath      string   `toml:"tasks_path"`
	StatusesPath   string   `toml:"statuses_path"`
	TaskStatusPath string   `toml:"task_status_path"`
}

type CacheConfig struct {
	TTL Duration `toml:"ttl"`
}

type BoardConfig struct {
	TaskLimit  int  `toml:"task_limit"`
	ShowCounts bool `toml:"show_counts"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServeConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
	// Seed fills an empty sandbox database with sample tasks on startup.
	Seed bool `toml:"seed"`
}

// KeyConfig overrides board key bindings. Blank fields keep the defaults.
type KeyConfig struct {
	MoveTaskLeft  string `toml:"move_task_left"`
	MoveTaskRight string `toml:"move_task_right"`
	Refresh       string `toml:"refresh"`
	TaskInfo      string `toml:"task_info"`
	CopyID        string `toml:"copy_id"`
}

// Duration is a time.Duration written as a TOML string such as "5m".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText writes the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default(dbPath string) Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL:        "http://127.0.0.1:8080/api/v1",
			RequestTimeout: Duration(10 * time.Second),
			TasksPath:      "/tasks",
			StatusesPath:   "/statuses",
			TaskStatusPath: "/task/{id}/status",
		},
		Cache: CacheConfig{
			TTL: Duration(5 * time.Minute),
		},
		Board: BoardConfig{
			TaskLimit:  0,
			ShowCounts: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".tavla/log",
			},
		},
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Serve: ServeConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
			Seed:        true,
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

// ApplyEnv overrides values from environment lookups and revalidates.
func (c Config) ApplyEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvRemoteURL)); v != "" {
		c.Remote.BaseURL = v
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	base := strings.TrimSpace(c.Remote.BaseURL)
	if base == "" {
		return errors.New("remote.base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid remote.base_url: %q", c.Remote.BaseURL)
	}
	if c.Remote.RequestTimeout <= 0 {
		return errors.New("remote.request_timeout must be > 0")
	}
	for name, path := range map[string]string{
		"remote.tasks_path":       c.Remote.TasksPath,
		"remote.statuses_path":    c.Remote.StatusesPath,
		"remote.task_status_path": c.Remote.TaskStatusPath,
	} {
		if !strings.HasPrefix(strings.TrimSpace(path), "/") {
			return fmt.Errorf("%s must start with /: %q", name, path)
		}
	}
	if !strings.Contains(c.Remote.TaskStatusPath, "{id}") {
		return fmt.Errorf("remote.task_status_path must contain {id}: %q", c.Remote.TaskStatusPath)
	}

	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}
	if c.Board.TaskLimit < 0 {
		return errors.New("board.task_limit must be >= 0")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if strings.TrimSpace(c.Serve.Bind) == "" {
		return errors.New("serve.bind is required")
	}
	api := "/" + strings.Trim(strings.TrimSpace(c.Serve.APIEndpoint), "/")
	mcp := "/" + strings.Trim(strings.TrimSpace(c.Serve.MCPEndpoint), "/")
	if api == mcp {
		return fmt.Errorf("serve.api_endpoint and serve.mcp_endpoint must differ: %q", api)
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
