// Package config loads jcode's runtime configuration from defaults, an
// optional TOML file, environment variables, and CLI flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable the daemon and CLI consult at startup.
type Config struct {
	DefaultProvider    string        `toml:"default_provider"`
	DefaultModel       string        `toml:"default_model"`
	RuntimeDir         string        `toml:"runtime_dir"`
	ToolTimeout        time.Duration `toml:"-"`
	ProviderTimeout    time.Duration `toml:"-"`
	IdleShutdown       time.Duration `toml:"-"`
	DebugSocket        bool          `toml:"debug_socket"`
	ToolTimeoutRaw     string        `toml:"tool_timeout"`
	ProviderTimeoutRaw string        `toml:"provider_timeout"`
	IdleShutdownRaw    string        `toml:"idle_shutdown"`
}

// Default returns the built-in defaults, the lowest-precedence layer.
func Default() Config {
	return Config{
		DefaultProvider: "anthropic",
		DefaultModel:    "",
		RuntimeDir:      "",
		ToolTimeout:     2 * time.Minute,
		ProviderTimeout: 5 * time.Minute,
		IdleShutdown:    5 * time.Minute,
		DebugSocket:     false,
	}
}

// Load builds a Config by layering defaults, an optional TOML file at
// tomlPath (if it exists), environment variables, and finally the
// already-parsed CLI flags passed in as overrides. Each layer only
// overrides fields the previous layer left at its zero value or that
// the layer explicitly sets.
func Load(tomlPath string, env func(string) string, flags Config) (Config, error) {
	cfg := Default()

	if tomlPath != "" {
		var fileCfg Config
		if _, err := toml.DecodeFile(tomlPath, &fileCfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		} else {
			cfg = mergeNonZero(cfg, fileCfg)
			if fileCfg.ToolTimeoutRaw != "" {
				if d, err := time.ParseDuration(fileCfg.ToolTimeoutRaw); err == nil {
					cfg.ToolTimeout = d
				}
			}
			if fileCfg.ProviderTimeoutRaw != "" {
				if d, err := time.ParseDuration(fileCfg.ProviderTimeoutRaw); err == nil {
					cfg.ProviderTimeout = d
				}
			}
			if fileCfg.IdleShutdownRaw != "" {
				if d, err := time.ParseDuration(fileCfg.IdleShutdownRaw); err == nil {
					cfg.IdleShutdown = d
				}
			}
		}
	}

	if env != nil {
		applyEnv(&cfg, env)
	}

	cfg = mergeNonZero(cfg, flags)
	return cfg, nil
}

// DefaultTOMLPath returns ~/.jcode/config.toml, or "" if the home
// directory cannot be resolved.
func DefaultTOMLPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jcode", "config.toml")
}

func applyEnv(cfg *Config, env func(string) string) {
	if v := env("JCODE_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := env("JCODE_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := env("JCODE_RUNTIME_DIR"); v != "" {
		cfg.RuntimeDir = v
	}
	if v := env("JCODE_TOOL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ToolTimeout = d
		}
	}
	if v := env("JCODE_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProviderTimeout = d
		}
	}
	if v := env("JCODE_IDLE_SHUTDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.IdleShutdown = d
		}
	}
	if v := env("JCODE_DEBUG_SOCKET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DebugSocket = b
		}
	}
}

// mergeNonZero overlays override's non-zero fields onto base.
func mergeNonZero(base, override Config) Config {
	if override.DefaultProvider != "" {
		base.DefaultProvider = override.DefaultProvider
	}
	if override.DefaultModel != "" {
		base.DefaultModel = override.DefaultModel
	}
	if override.RuntimeDir != "" {
		base.RuntimeDir = override.RuntimeDir
	}
	if override.ToolTimeout != 0 {
		base.ToolTimeout = override.ToolTimeout
	}
	if override.ProviderTimeout != 0 {
		base.ProviderTimeout = override.ProviderTimeout
	}
	if override.IdleShutdown != 0 {
		base.IdleShutdown = override.IdleShutdown
	}
	if override.DebugSocket {
		base.DebugSocket = override.DebugSocket
	}
	return base
}
