package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config holds runtime configuration. Values come from the environment first;
// an optional config.toml in the data dir fills anything the environment left
// unset. Secrets are never written back to disk.
type Config struct {
	// LLMAPIBase is the base URL of an OpenAI-compatible completions API.
	LLMAPIBase string `toml:"llm_api_base"`
	// LLMAPIKey is read from LLM_API_KEY only; not representable in the file.
	LLMAPIKey string `toml:"-"`
	// Model is the completion model name (e.g. mistral-7b-instruct).
	Model string `toml:"model"`
	// MaxTokens caps generation length.
	MaxTokens int `toml:"max_tokens"`
	// Temperature is the sampling temperature.
	Temperature float64 `toml:"temperature"`
	// DataDir is the root for per-user JSON documents and the memory archive.
	DataDir string `toml:"data_dir"`
	// OpsAddr is the listen address of the diagnostics HTTP server; empty disables it.
	OpsAddr string `toml:"ops_addr"`
	// AdminUserID gates the execute_script function.
	AdminUserID string `toml:"admin_user_id"`
	// ShortTermLimit is the short-term memory window per user, in messages.
	ShortTermLimit int `toml:"short_term_limit"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// New builds config from the environment plus an optional config.toml under
// dataDir. dataDir may be empty to use LACHESIS_DATA_DIR or ./data.
func New(dataDir string) (*Config, error) {
	if dataDir == "" {
		if d := os.Getenv("LACHESIS_DATA_DIR"); d != "" {
			dataDir = d
		} else {
			dataDir = "data"
		}
	}
	cfg := &Config{
		Model:          "mistral-7b-instruct",
		MaxTokens:      1024,
		Temperature:    0.7,
		DataDir:        dataDir,
		ShortTermLimit: 20,
		LogLevel:       "info",
	}

	path := filepath.Join(dataDir, "config.toml")
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	cfg.DataDir = dataDir

	if v := os.Getenv("LLM_API_BASE"); v != "" {
		cfg.LLMAPIBase = v
	}
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("LACHESIS_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("LACHESIS_OPS_ADDR"); v != "" {
		cfg.OpsAddr = v
	}
	if v := os.Getenv("LACHESIS_ADMIN_USER_ID"); v != "" {
		cfg.AdminUserID = v
	}
	if v := os.Getenv("LACHESIS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.LLMAPIBase == "" {
		return nil, fmt.Errorf("missing LLM_API_BASE (env or %s)", path)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
