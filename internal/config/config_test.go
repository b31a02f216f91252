package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		path := writeConfig(t, `
device:
  type: cpu
  threads: 4
  maxMemory: 512MB
logger:
  verbosity: debug
`)
		config, err := LoadConfig(path)
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "cpu", config.Device.Type)
		assert.Equal(t, 4, config.Device.Threads)
		assert.Equal(t, "512MB", config.Device.MaxMemory)
		assert.Equal(t, int64(512*1024*1024), config.MaxMemoryBytes())
		assert.Equal(t, "debug", config.Logger.Verbosity)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "device: [unbalanced")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestParseBytes(t *testing.T) {
	cases := map[string]int64{
		"":      0,
		"0":     0,
		"1024":  1024,
		"4GB":   4 * 1024 * 1024 * 1024,
		"100MB": 100 * 1024 * 1024,
		"16K":   16 * 1024,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseBytes(in), "input %q", in)
	}
}
