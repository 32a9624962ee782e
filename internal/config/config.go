// Package config holds the options of a sync run and loads them from
// flags, environment variables and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ning0612/foldersync/internal/core/checksum"
	"github.com/Ning0612/foldersync/internal/core/diff"
	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/lock"
	"github.com/Ning0612/foldersync/internal/logger"
)

// InvalidEntryPolicy decides what happens to invalid entries in the target
type InvalidEntryPolicy string

const (
	// InvalidPrompt asks before removing invalid target entries
	InvalidPrompt InvalidEntryPolicy = "prompt"
	// InvalidAutoRemove removes them without asking
	InvalidAutoRemove InvalidEntryPolicy = "autoRemove"
	// InvalidAbort fails the run with domain.ErrInvalidEntries
	InvalidAbort InvalidEntryPolicy = "abort"
)

// IsValid reports whether p is a known policy
func (p InvalidEntryPolicy) IsValid() bool {
	switch p {
	case InvalidPrompt, InvalidAutoRemove, InvalidAbort:
		return true
	}
	return false
}

// Options configures a sync run
type Options struct {
	// Workers is the worker pool size; 0 means one per CPU
	Workers int `mapstructure:"workers"`

	Depth     diff.Depth `mapstructure:"depth"`
	BatchSize int        `mapstructure:"batch_size"`

	InvalidEntries InvalidEntryPolicy `mapstructure:"invalid_entries"`

	// FailFast stops before the next phase once an action failed
	FailFast bool `mapstructure:"fail_fast"`

	// Checksum is the algorithm used by the checksum depth
	Checksum checksum.Algorithm `mapstructure:"checksum"`

	// LockDir holds per-target lock files; empty uses lock.DefaultDir
	LockDir string `mapstructure:"lock_dir"`

	// StaleLockTimeout is the age after which a lock written on another
	// host is taken over
	StaleLockTimeout time.Duration `mapstructure:"stale_lock_timeout"`

	// HistoryDir holds the run history database; empty disables history
	HistoryDir string `mapstructure:"history_dir"`

	// MaxLoggedPaths caps the paths listed per action kind in previews
	MaxLoggedPaths int `mapstructure:"max_logged_paths"`

	Log LogOptions `mapstructure:"log"`
}

// LogOptions configures logging
type LogOptions struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns the default options
func Default() Options {
	return Options{
		Workers:          0,
		Depth:            diff.DepthDeep,
		BatchSize:        1,
		InvalidEntries:   InvalidPrompt,
		Checksum:         checksum.XXHash,
		MaxLoggedPaths:   10,
		StaleLockTimeout: lock.DefaultStaleTimeout,
		Log: LogOptions{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxAgeDays: 30,
			MaxBackups: 5,
		},
	}
}

// Validate checks that every option has a usable value
func (o *Options) Validate() error {
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", domain.ErrConfigInvalid, o.Workers)
	}
	if !o.Depth.IsValid() {
		return fmt.Errorf("%w: invalid depth: %q", domain.ErrConfigInvalid, o.Depth)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrConfigInvalid, o.BatchSize)
	}
	if !o.InvalidEntries.IsValid() {
		return fmt.Errorf("%w: invalid entries policy must be prompt, autoRemove or abort, got %q",
			domain.ErrConfigInvalid, o.InvalidEntries)
	}
	if !checksum.IsSupported(o.Checksum) {
		return fmt.Errorf("%w: unsupported checksum algorithm: %q", domain.ErrConfigInvalid, o.Checksum)
	}
	if o.StaleLockTimeout <= 0 {
		return fmt.Errorf("%w: stale lock timeout must be positive, got %s", domain.ErrConfigInvalid, o.StaleLockTimeout)
	}
	if o.MaxLoggedPaths < 0 {
		return fmt.Errorf("%w: max logged paths must not be negative", domain.ErrConfigInvalid)
	}
	switch strings.ToLower(o.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: invalid log level: %q", domain.ErrConfigInvalid, o.Log.Level)
	}
	switch strings.ToLower(o.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format: %q", domain.ErrConfigInvalid, o.Log.Format)
	}
	return nil
}

// Logger converts the log options into a logger configuration
func (l LogOptions) Logger() logger.Config {
	cfg := logger.Config{
		Level:  logger.ParseLevel(l.Level),
		Format: logger.ParseFormat(l.Format),
	}
	if l.File != "" {
		cfg.File = logger.FileConfig{
			Path:       ExpandPath(l.File),
			MaxSizeMB:  l.MaxSizeMB,
			MaxAgeDays: l.MaxAgeDays,
			MaxBackups: l.MaxBackups,
			Compress:   l.Compress,
		}
	}
	return cfg
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
