package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Ning0612/foldersync/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. FOLDERSYNC_WORKERS
const EnvPrefix = "FOLDERSYNC"

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"workers":            "workers",
	"depth":              "depth",
	"batch-size":         "batch_size",
	"invalid-entries":    "invalid_entries",
	"fail-fast":          "fail_fast",
	"checksum":           "checksum",
	"lock-dir":           "lock_dir",
	"stale-lock-timeout": "stale_lock_timeout",
	"history-dir":        "history_dir",
	"max-logged-paths":   "max_logged_paths",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"log-file":           "log.file",
}

// DefaultConfigPaths returns the directories searched for foldersync.yaml
func DefaultConfigPaths() []string {
	paths := []string{"."}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "foldersync"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".foldersync"))
	}

	return paths
}

// Load resolves the options from defaults, the config file, FOLDERSYNC_*
// environment variables and flags, in increasing precedence.
//
// An explicit path must exist (domain.ErrConfigNotFound otherwise); with an
// empty path foldersync.yaml is looked up in DefaultConfigPaths and may be
// absent. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Options, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(ExpandPath(path))
	} else {
		v.SetConfigName("foldersync")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) && path == "":
			// optional
		case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := Default()
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("depth", string(defaults.Depth))
	v.SetDefault("batch_size", defaults.BatchSize)
	v.SetDefault("invalid_entries", string(defaults.InvalidEntries))
	v.SetDefault("fail_fast", defaults.FailFast)
	v.SetDefault("checksum", string(defaults.Checksum))
	v.SetDefault("lock_dir", defaults.LockDir)
	v.SetDefault("stale_lock_timeout", defaults.StaleLockTimeout)
	v.SetDefault("history_dir", defaults.HistoryDir)
	v.SetDefault("max_logged_paths", defaults.MaxLoggedPaths)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_age_days", defaults.Log.MaxAgeDays)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)
	v.SetDefault("log.compress", defaults.Log.Compress)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func decode(v *viper.Viper) (*Options, error) {
	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	opts.LockDir = ExpandPath(opts.LockDir)
	opts.HistoryDir = ExpandPath(opts.HistoryDir)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}
