package config

import (
	"fmt"
	"strings"

	logx "backupd/pkg/logx"
)

// DefaultScript is the backup executable used when backup.script is unset.
const DefaultScript = "/app/scripts/backup.sh"

// Config is the optional file-based configuration.
//
// Only the logging section is re-applied on reload; backup and telegram
// settings are read once at startup.
type Config struct {
	Backup   BackupConfig   `json:"backup"`
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
}

type BackupConfig struct {
	// Script is the executable invoked for every attempt, without arguments.
	Script string `json:"script,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  *bool           `json:"console,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
	Format  string `json:"format,omitempty"` // "text" | "json"
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// TelegramConfig addresses the alert chat. Token may also come from
// TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return (&Config{}).WithDefaults()
}

// WithDefaults fills unset fields in place and returns c.
//
// Defaults:
//   - backup.script: /app/scripts/backup.sh
//   - logging.level: INFO
//   - logging.console: true
//   - logging.file: enabled, /app/logs/backup_service.log, text
//   - logging.telegram.min_level: ERROR, rate_per_sec: 1
func (c *Config) WithDefaults() *Config {
	if strings.TrimSpace(c.Backup.Script) == "" {
		c.Backup.Script = DefaultScript
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Console == nil {
		c.Logging.Console = boolPtr(true)
	}
	if c.Logging.File.Enabled == nil {
		c.Logging.File.Enabled = boolPtr(true)
	}
	if strings.TrimSpace(c.Logging.File.Path) == "" {
		c.Logging.File.Path = logx.DefaultFilePath
	}
	if strings.TrimSpace(c.Logging.File.Format) == "" {
		c.Logging.File.Format = "text"
	}
	if strings.TrimSpace(c.Logging.Telegram.MinLevel) == "" {
		c.Logging.Telegram.MinLevel = "ERROR"
	}
	if c.Logging.Telegram.RatePerSec <= 0 {
		c.Logging.Telegram.RatePerSec = 1
	}
	return c
}

// Validate checks values that would otherwise be silently ignored.
func (c *Config) Validate() error {
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if !logx.ValidLevel(c.Logging.Telegram.MinLevel) {
		return fmt.Errorf("%w: logging.telegram.min_level %q", ErrInvalidConfig, c.Logging.Telegram.MinLevel)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.File.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.file.format %q (use text or json)", ErrInvalidConfig, c.Logging.File.Format)
	}
	if c.Logging.Telegram.RatePerSec < 0 {
		return fmt.Errorf("%w: logging.telegram.rate_per_sec must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// LogConfig maps the logging section onto logx.Config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console == nil || *c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled == nil || *c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
			Format:  c.Logging.File.Format,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Logging.Telegram.Enabled,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		},
	}
}

func boolPtr(v bool) *bool { return &v }
