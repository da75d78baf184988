package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// FiboChat backend
	ServerURL string `yaml:"server_url"`
	HubPath   string `yaml:"hub_path"`

	// Local state (session file, config file, log file)
	DataDir string `yaml:"data_dir"`

	// Logging
	LogFile      string     `yaml:"log_file"`
	LogLevelName string     `yaml:"log_level"`
	LogLevel     slog.Level `yaml:"-"`
}

// Load reads configuration in precedence order: built-in defaults, then the
// YAML config file (FIBOCHAT_CONFIG or <data dir>/config.yaml), then
// environment variables.
func Load() Config {
	cfg := Config{
		ServerURL:    "http://localhost:5217",
		HubPath:      "/hubs/chatbot",
		DataDir:      defaultDataDir(),
		LogLevelName: "INFO",
	}

	loadFile(&cfg)

	cfg.ServerURL = getEnv("FIBOCHAT_SERVER_URL", cfg.ServerURL)
	cfg.HubPath = getEnv("FIBOCHAT_HUB_PATH", cfg.HubPath)
	cfg.DataDir = getEnv("FIBOCHAT_DATA_DIR", cfg.DataDir)
	cfg.LogFile = getEnv("FIBOCHAT_LOG_FILE", cfg.LogFile)
	cfg.LogLevelName = getEnv("FIBOCHAT_LOG_LEVEL", cfg.LogLevelName)

	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "fibochat.log")
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	return cfg
}

// loadFile overlays values from the YAML config file, if one exists.
// A malformed file is ignored rather than fatal so the CLI stays usable
// with env-only configuration.
func loadFile(cfg *Config) {
	path := os.Getenv("FIBOCHAT_CONFIG")
	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("ignoring malformed config file", "file", path, "error", err)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fibochat"
	}
	return filepath.Join(home, ".fibochat")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
