// Package config loads microdot's configuration.
//
// Precedence, lowest to highest: embedded defaults, the user's
// config.toml, then MICRODOT_* environment variables. The result is a
// plain Config value constructed once at startup and passed into the
// engine by value; there is no process-wide mutable configuration.
package config

import (
	_ "embed"
	"errors"
	"os"
	"strings"
	"time"

	mderrors "github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/paths"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

//go:embed defaults.toml
var defaultConfig []byte

// envPrefix namespaces the environment variables koanf consumes.
const envPrefix = "MICRODOT_"

// Config is the resolved configuration for one run.
type Config struct {
	Core       CoreConfig       `koanf:"core"`
	Sync       SyncConfig       `koanf:"sync"`
	Encryption EncryptionConfig `koanf:"encryption"`
}

// CoreConfig selects the store and channel.
type CoreConfig struct {
	DotfilesRoot string `koanf:"dotfiles_root"`
	Channel      string `koanf:"channel"`
}

// SyncConfig controls the orchestrator.
type SyncConfig struct {
	IntervalSeconds int  `koanf:"interval_seconds"`
	UseGit          bool `koanf:"use_git"`
}

// EncryptionConfig carries the store key and the default for newly
// tracked items.
type EncryptionConfig struct {
	Key        string `koanf:"key"`
	EncryptNew bool   `koanf:"encrypt_new"`
}

// Interval returns the watch interval as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Load resolves the configuration for the given paths.
func Load(p *paths.Paths) (Config, error) {
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return Config{}, mderrors.Wrap(err, mderrors.ErrConfigLoad, "failed to load defaults")
	}

	// 2. User config file, if present
	cfgPath := p.ConfigFilePath()
	if _, err := os.Stat(cfgPath); err == nil {
		if err := k.Load(file.Provider(cfgPath), toml.Parser()); err != nil {
			return Config{}, mderrors.Wrapf(err, mderrors.ErrConfigLoad, "failed to load config from %s", cfgPath)
		}
	}

	// 3. Environment overrides. Only the first underscore separates the
	// section from the key, so MICRODOT_SYNC_USE_GIT -> sync.use_git.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if section, key, ok := strings.Cut(s, "_"); ok {
			return section + "." + key
		}
		return s
	}), nil)
	if err != nil {
		return Config{}, mderrors.Wrap(err, mderrors.ErrConfigLoad, "failed to load env vars")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, mderrors.Wrap(err, mderrors.ErrConfigLoad, "failed to unmarshal config")
	}

	if cfg.Core.DotfilesRoot == "" {
		cfg.Core.DotfilesRoot = p.DotfilesRoot()
	}
	if cfg.Core.Channel == "" {
		cfg.Core.Channel = paths.DefaultChannel
	}
	if cfg.Sync.IntervalSeconds <= 0 {
		return Config{}, mderrors.Newf(mderrors.ErrConfigValid, "sync.interval_seconds must be positive, got %d", cfg.Sync.IntervalSeconds)
	}

	return cfg, nil
}
