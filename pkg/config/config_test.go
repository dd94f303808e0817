package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	config, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 500, config.Validation.ReferenceMaxLines)
	assert.False(t, config.Validation.Strict)
	assert.Equal(t, []string{"cursor", "windsurf"}, config.Adapter.DefaultTargets)
	assert.Equal(t, 4, config.Fetch.Concurrency)
	assert.Equal(t, 30*time.Second, config.Fetch.Timeout)
	assert.Equal(t, 3, config.Fetch.Retries)
	assert.Equal(t, "warn", config.LogLevel)
	assert.Equal(t, "text", config.LogFormat)
}

func TestFromViperReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
validation:
  reference_max_lines: 200
  strict: true
adapter:
  default_targets: [codex]
fetch:
  concurrency: 8
log_level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	require.NoError(t, v.ReadInConfig())

	config, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 200, config.Validation.ReferenceMaxLines)
	assert.True(t, config.Validation.Strict)
	assert.Equal(t, []string{"codex"}, config.Adapter.DefaultTargets)
	assert.Equal(t, 8, config.Fetch.Concurrency)
	assert.Equal(t, "debug", config.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, config.Fetch.Retries)
}

func TestFromViperClampsOutOfRangeValues(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("fetch.concurrency", 0)
	v.Set("fetch.timeout", "-5s")
	v.Set("fetch.retries", -1)
	v.Set("validation.reference_max_lines", 0)

	config, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 4, config.Fetch.Concurrency)
	assert.Equal(t, 30*time.Second, config.Fetch.Timeout)
	assert.Equal(t, 3, config.Fetch.Retries)
	assert.Equal(t, 500, config.Validation.ReferenceMaxLines)
}

func TestStateHomeOverride(t *testing.T) {
	home := filepath.Join(t.TempDir(), "custom-asr")
	t.Setenv("ASR_HOME", home)

	got, err := StateHome()
	require.NoError(t, err)
	assert.Equal(t, home, got)
	assert.DirExists(t, got)

	path, err := ConfigFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml"), path)
}
