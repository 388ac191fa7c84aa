package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/contentcrew/internal/types"
)

// Config is the on-disk configuration. Fields tagged secret:"true" are masked
// whenever values are shown.
type Config struct {
	DataDir       string `json:"data_dir"`
	OutputDir     string `json:"output_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	MaxTurns      int    `json:"max_turns"`
	LLM           struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key" secret:"true"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
		TimeoutSeconds   int     `json:"timeout_seconds"`
	} `json:"llm"`
	Search struct {
		// Provider is "tavily" or "brave"; the other one, when configured,
		// is used as a fallback.
		Provider string `json:"provider"`
	} `json:"search"`
	Tavily struct {
		APIKey string `json:"api_key" secret:"true"`
	} `json:"tavily"`
	Brave struct {
		APIKey string `json:"api_key" secret:"true"`
	} `json:"brave"`
	Researcher struct {
		MaxRounds   int `json:"max_rounds"`
		MaxMessages int `json:"max_messages"`
	} `json:"researcher"`
	Copywriter struct {
		// StylesFile optionally replaces the built-in style sheet.
		StylesFile string `json:"styles_file"`
	} `json:"copywriter"`
	Checkpoint struct {
		// Backend is "file", "redis" or "none".
		Backend  string `json:"backend"`
		TTLHours int    `json:"ttl_hours"`
	} `json:"checkpoint"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password" secret:"true"`
		DB       int    `json:"db"`
	} `json:"redis"`
	HTTP struct {
		Addr string `json:"addr"`
	} `json:"http"`
	Telegram struct {
		Token        string  `json:"token" secret:"true"`
		AllowedUsers []int64 `json:"allowed_users"`
	} `json:"telegram"`
}

// DefaultPath returns $CONTENTCREW_CONFIG or ~/.contentcrew/config.json.
func DefaultPath() string {
	if p := os.Getenv("CONTENTCREW_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".contentcrew", "config.json")
}

// Defaults returns the configuration written on first run.
func Defaults() *Config {
	home := filepath.Join(os.Getenv("HOME"), ".contentcrew")
	cfg := &Config{
		DataDir:       home,
		OutputDir:     filepath.Join(home, "output"),
		MaxConcurrent: 2,
	}
	cfg.LogLevel = "info"
	cfg.MaxTurns = 8
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.LLM.TimeoutSeconds = 120
	cfg.Search.Provider = "tavily"
	cfg.Researcher.MaxRounds = 8
	cfg.Researcher.MaxMessages = 10
	cfg.Checkpoint.Backend = "file"
	cfg.Redis.Addr = "localhost:6379"
	cfg.HTTP.Addr = "127.0.0.1:8080"
	return cfg
}

// Load reads path, writing the defaults there on first run, and applies the
// environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// loadFile reads path over the defaults. The environment is left out so a
// value written back never captures an exported key.
func loadFile(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment (highest precedence).
func applyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		"OPENAI_API_KEY":     &cfg.LLM.APIKey,
		"OPENAI_BASE_URL":    &cfg.LLM.BaseURL,
		"OPENAI_MODEL":       &cfg.LLM.Model,
		"TAVILY_API_KEY":     &cfg.Tavily.APIKey,
		"BRAVE_API_KEY":      &cfg.Brave.APIKey,
		"TELEGRAM_BOT_TOKEN": &cfg.Telegram.Token,
		"REDIS_ADDR":         &cfg.Redis.Addr,
		"CONTENTCREW_OUTPUT": &cfg.OutputDir,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// Validate reports everything that keeps the agents from starting, as a
// configuration failure.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is not set (or export OPENAI_API_KEY)"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is not set"))
	}
	switch c.Search.Provider {
	case "tavily":
		if c.Tavily.APIKey == "" {
			errs = append(errs, errors.New("tavily.api_key is not set (or export TAVILY_API_KEY)"))
		}
	case "brave":
		if c.Brave.APIKey == "" {
			errs = append(errs, errors.New("brave.api_key is not set (or export BRAVE_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("search.provider must be tavily or brave, got %q", c.Search.Provider))
	}
	switch c.Checkpoint.Backend {
	case "file", "none", "":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpoint.backend must be file, redis or none, got %q", c.Checkpoint.Backend))
	}
	if c.MaxTurns <= 0 {
		errs = append(errs, errors.New("max_turns must be positive"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is not set"))
	}
	if len(errs) > 0 {
		return types.Fail(types.FailureConfiguration, "validate config", errors.Join(errs...))
	}
	return nil
}

// CallTimeout is the per LLM call timeout.
func (c *Config) CallTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// CheckpointTTL is how long Redis keeps a session; zero keeps it forever.
func (c *Config) CheckpointTTL() time.Duration {
	return time.Duration(c.Checkpoint.TTLHours) * time.Hour
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// SetValue parses value for key and writes it to the file at path.
func SetValue(path, key, value string) error {
	cfg, err := loadFile(path)
	if err != nil {
		return err
	}
	f, err := Lookup(cfg, key)
	if err != nil {
		return err
	}
	if err := f.Set(value); err != nil {
		return err
	}
	return Save(path, cfg)
}
