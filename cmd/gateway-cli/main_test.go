package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/84hero/stream-gateway/pkg/config"
	"github.com/84hero/stream-gateway/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestCLI_InitStore_Memory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dedup.Backend = "memory"
	cfg.Dedup.Retention = time.Hour

	store, err := initStore(cfg)
	assert.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, store)
	store.Close()
}

func TestCLI_InitStore_Unknown(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dedup.Backend = "etcd"

	_, err := initStore(cfg)
	assert.Error(t, err)
}

func TestCLI_InitStore_RedisUnreachable(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dedup.Backend = "redis"
	cfg.Dedup.Redis.Addr = "localhost:65432"

	_, err := initStore(cfg)
	assert.Error(t, err)
}

func TestCLI_InitSinks_Empty(t *testing.T) {
	sinks := initSinks(&config.Config{})
	assert.Empty(t, sinks)
}

func TestCLI_InitSinks_ConsoleFileSlack(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sinks.Console.Enabled = true
	cfg.Sinks.File.Enabled = true
	cfg.Sinks.File.Path = "/tmp/gateway_test_events.jsonl"
	cfg.Sinks.Slack.Enabled = true
	cfg.Sinks.Slack.HookURL = "https://hooks.slack.com/services/T/B/X"
	defer os.Remove("/tmp/gateway_test_events.jsonl")

	sinks := initSinks(cfg)
	assert.Len(t, sinks, 3)

	names := make(map[string]bool)
	for _, s := range sinks {
		names[s.Name()] = true
		s.Close()
	}
	assert.True(t, names["console"])
	assert.True(t, names["file"])
	assert.True(t, names["slack"])
}

func TestCLI_InitSinks_BadFileSkipped(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sinks.File.Enabled = true
	cfg.Sinks.File.Path = "/"

	sinks := initSinks(cfg)
	assert.Empty(t, sinks)
}

func TestCLI_Run(t *testing.T) {
	content := `
project: "test"
server:
  listen: "127.0.0.1:0"
  secret: "test-secret"
sinks:
  console:
    enabled: true
`
	tmpFile, _ := os.CreateTemp("", "gateway_*.yaml")
	defer os.Remove(tmpFile.Name())
	tmpFile.WriteString(content)
	tmpFile.Close()

	os.Setenv("CONFIG_FILE", tmpFile.Name())
	defer os.Unsetenv("CONFIG_FILE")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCLI_Run_MissingConfig(t *testing.T) {
	os.Setenv("CONFIG_FILE", "non_existent.yaml")
	defer os.Unsetenv("CONFIG_FILE")

	err := Run(context.Background())
	assert.Error(t, err)
}
