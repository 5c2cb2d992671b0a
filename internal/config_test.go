package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigurationMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrReadConfigurationFailure)
}

func TestLoadConfigurationInvalidYaml(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "configuration.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\ttoken: not yaml"), 0o600))

	_, err := LoadConfiguration(path)
	assert.ErrorIs(t, err, ErrLoadConfigurationFailure)
}

func TestLoadConfiguration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "configuration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
token: file-token
bot:
  prefix: "?"
  ignore_self: true
http:
  enabled: true
  host: 127.0.0.1:8080
`), 0o600))

	configuration, err := LoadConfiguration(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", configuration.Token)
	assert.Equal(t, "?", configuration.Bot.Prefix)
	assert.True(t, configuration.Bot.IgnoreSelf)
	assert.True(t, configuration.HTTP.Enabled)
	assert.Equal(t, "127.0.0.1:8080", configuration.HTTP.Host)

	// Unset values fall back to defaults.
	assert.Equal(t, DefaultBucketCapacity, configuration.RateLimits.DefaultCapacity)
	assert.Equal(t, DefaultBucketWindow, configuration.RateLimits.DefaultWindow)
	assert.Equal(t, DefaultGlobalCapacity, configuration.RateLimits.GlobalCapacity)
	assert.Equal(t, DefaultAutodeleteDelay, configuration.Bot.AutodeleteDelay)
}

func TestDefaultConfiguration(t *testing.T) {
	t.Parallel()

	configuration := DefaultConfiguration()

	assert.Empty(t, configuration.Token)
	assert.Equal(t, DefaultPrefix, configuration.Bot.Prefix)
	assert.True(t, configuration.Bot.IgnoreSelf)
	assert.True(t, configuration.Bot.DefaultCommands)
}
