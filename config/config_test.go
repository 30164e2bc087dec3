package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)
	require.Equal(t, time.Second, cfg.Worker.Interval.Std())
	require.Equal(t, 10, cfg.Worker.Batch)
	require.Empty(t, cfg.Mongo.URI)
	require.Empty(t, cfg.Redis.Addr)
}

func TestParseFullDocument(t *testing.T) {
	raw := []byte(`
worker:
  interval: 250ms
  batch: 25
mongo:
  uri: mongodb://localhost:27017
  database: slumber
redis:
  addr: localhost:6379
  lock_lease: 90s
  publish_events: true
`)
	cfg, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.Worker.Interval.Std())
	require.Equal(t, 25, cfg.Worker.Batch)
	require.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	require.Equal(t, "slumber", cfg.Mongo.Database)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 90*time.Second, cfg.Redis.LockLease.Std())
	require.True(t, cfg.Redis.PublishEvents)
}

func TestParseValidation(t *testing.T) {
	_, err := Parse([]byte("mongo:\n  uri: mongodb://localhost:27017\n"))
	require.ErrorContains(t, err, "mongo.database is required")

	_, err = Parse([]byte("redis:\n  publish_events: true\n"))
	require.ErrorContains(t, err, "redis.addr is required")

	_, err = Parse([]byte("worker: ["))
	require.Error(t, err)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  batch: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Worker.Batch)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
