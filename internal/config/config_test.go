package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "source:\n  directory: ./content\n"))
	require.NoError(t, err)

	assert.Equal(t, "./content", cfg.Source.Directory)
	assert.Equal(t, "./site", cfg.Output.Directory)
	assert.Greater(t, cfg.Build.Workers, 0)
	assert.Equal(t, int64(256<<20), cfg.Cache.MaxBytes)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.QuietWindow)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
source:
  directory: ./docs
output:
  directory: ./public
build:
  workers: 3
  fail_on_warning: true
render:
  theme: slate
  site_title: My Docs
cache:
  max_bytes: 1048576
  max_age: 24h
  path: ./.docforge/cache.db
watch:
  quiet_window: 100ms
  max_delay: 1s
server:
  listen: ":9000"
nats:
  url: nats://localhost:4222
`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Build.Workers)
	assert.True(t, cfg.Build.FailOnWarning)
	assert.Equal(t, "slate", cfg.Render.Theme)
	assert.Equal(t, "My Docs", cfg.Render.SiteTitle)
	assert.Equal(t, int64(1<<20), cfg.Cache.MaxBytes)
	assert.Equal(t, 24*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.QuietWindow)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCS_DIR", "/srv/docs")
	cfg, err := Load(writeConfig(t, "source:\n  directory: ${DOCS_DIR}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs", cfg.Source.Directory)
}

func TestValidationRejectsBadConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "source:\n  directory: ./x\noutput:\n  directory: ./x\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "watch:\n  quiet_window: 10s\n  max_delay: 1s\n"))
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
