package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jcodehq/jcode/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load("", noEnv, config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, 5*time.Minute, cfg.IdleShutdown)
}

func TestLoad_MissingTOMLFileIsNotAnError(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"), noEnv, config.Config{})
	require.NoError(t, err)
	assert.Equal(t, config.Default().DefaultProvider, cfg.DefaultProvider)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Parallel()
	env := func(k string) string {
		if k == "JCODE_PROVIDER" {
			return "gemini"
		}
		return ""
	}
	cfg, err := config.Load("", env, config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.DefaultProvider)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	t.Parallel()
	env := func(k string) string {
		if k == "JCODE_PROVIDER" {
			return "gemini"
		}
		return ""
	}
	cfg, err := config.Load("", env, config.Config{DefaultProvider: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
}

func TestDefaultTOMLPath_EndsInConfigTOML(t *testing.T) {
	t.Parallel()
	p := config.DefaultTOMLPath()
	if p == "" {
		t.Skip("no home directory resolvable")
	}
	assert.Equal(t, "config.toml", filepath.Base(p))
}
