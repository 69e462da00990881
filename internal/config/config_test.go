package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uploadkit/engine/internal/bytesize"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, bytesize.ByteSize(5*bytesize.MiB), cfg.Engine.ChunkSize)
	assert.Equal(t, 3, cfg.Engine.MaxConcurrentParts)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "NOISY"
	assert.Error(t, Validate(cfg))
}

func TestValidateRequiresStatusServerAddrWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StatusServer.Enabled = true
	cfg.StatusServer.Addr = ""
	assert.Error(t, Validate(cfg))
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
  output: stdout
engine:
  chunk_size: "10Mi"
  max_concurrent_parts: 5
  max_retries: 2
  retry_delay: "2s"
  use_exponential_backoff: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, bytesize.ByteSize(10*bytesize.MiB), cfg.Engine.ChunkSize)
	assert.Equal(t, 5, cfg.Engine.MaxConcurrentParts)
	assert.Equal(t, 2*time.Second, cfg.Engine.RetryDelay)
	assert.False(t, cfg.Engine.UseExponentialBackoff)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Engine.ChunkSize, cfg.Engine.ChunkSize)
}
