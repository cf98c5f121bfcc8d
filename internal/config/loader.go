package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/example/clientdb/internal/logging"
)

// Config captures environment driven configuration for the clientdb service.
type Config struct {
	DataDir         string
	HTTPAddr        string
	LogLevel        slog.Level
	LogFile         string
	RedisAddr       string
	ConfigFile      string
	ShutdownTimeout time.Duration
	// Databases is read from ConfigFile, when set.
	Databases []Database
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Invalid values are collected and
// reported together.
func Load() (Config, error) {
	cfg := Config{
		DataDir:         "data",
		HTTPAddr:        "127.0.0.1:8080",
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 10 * time.Second,
	}

	invalid := make([]string, 0, 2)

	if dir := strings.TrimSpace(os.Getenv("CLIENTDB_DATA_DIR")); dir != "" {
		cfg.DataDir = dir
	}

	if addr := strings.TrimSpace(os.Getenv("CLIENTDB_HTTP_ADDR")); addr != "" {
		if !strings.Contains(addr, ":") {
			invalid = append(invalid, "CLIENTDB_HTTP_ADDR")
		} else {
			cfg.HTTPAddr = addr
		}
	}

	if levelValue := strings.TrimSpace(os.Getenv("CLIENTDB_LOG_LEVEL")); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, "CLIENTDB_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	cfg.LogFile = strings.TrimSpace(os.Getenv("CLIENTDB_LOG_FILE"))
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("CLIENTDB_REDIS_ADDR"))

	if timeoutValue := strings.TrimSpace(os.Getenv("CLIENTDB_SHUTDOWN_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "CLIENTDB_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	if path := strings.TrimSpace(os.Getenv("CLIENTDB_CONFIG")); path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = path
		cfg.Databases = file.Databases
	}

	return cfg, nil
}
