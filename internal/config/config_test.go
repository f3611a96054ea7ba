package config_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tendril/internal/config"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "tendril.yaml", `
log_level: debug
log_format: json
fallback_topic: help
lock_ttl: 10s
metrics: false
http:
  port: 9000
store:
  type: redis
  redis:
    address: redis:6379
    prefix: "bot:"
    ttl: 24h
  pii_patterns: ["(?i)email"]
`)
	cfg, err := config.Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "help", cfg.FallbackTopic)
	assert.Equal(t, domain.DefaultEscalationTopic, cfg.EscalationTopic)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.False(t, cfg.Metrics)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 4096, cfg.HTTP.MaxInputSize)
	assert.Equal(t, config.StoreRedis, cfg.Store.Type)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Address)
	assert.Equal(t, "bot:", cfg.Store.Redis.Prefix)
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, []string{"(?i)email"}, cfg.Store.PIIPatterns)
}

func TestLoad_JSON(t *testing.T) {
	path := write(t, "tendril.json", `{"log_level":"warn","mcp":{"port":7000}}`)
	cfg, err := config.Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7000, cfg.MCP.Port)
	assert.Equal(t, config.StoreMemory, cfg.Store.Type)
}

func TestLoad_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	cfg, err := config.Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(missing, true)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := config.Load(write(t, "bad.yaml", "store:\n  type: etcd\n"), true)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = config.Load(write(t, "broken.yaml", "http: [\n"), true)
	assert.Error(t, err)

	_, err = config.Load(write(t, "neg.yaml", "lock_ttl: -1s\n"), true)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPath(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	assert.Equal(t, config.DefaultPath, config.Path(""))

	t.Setenv(config.EnvConfig, "/etc/tendril.yaml")
	assert.Equal(t, "/etc/tendril.yaml", config.Path(""))
	assert.Equal(t, "flag.yaml", config.Path("flag.yaml"))
}

func TestOpenStore_Memory(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	b, err := config.StoreConfig{Type: config.StoreMemory, EncryptionKey: key, PIIPatterns: []string{"phone"}}.OpenStore()
	require.NoError(t, err)
	defer b.Close()
	assert.Nil(t, b.Locker)

	ctx := context.Background()
	snap := domain.NewConversationSnapshot("c")
	snap.Globals["phone"] = "555-0100"
	snap.Globals["city"] = "Porto"
	require.NoError(t, b.Store.Save(ctx, "c", snap))

	loaded, err := b.Store.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "***", loaded.Globals["phone"])
	assert.Equal(t, "Porto", loaded.Globals["city"])
	_, isMemory := b.Store.(*memory.Store)
	assert.False(t, isMemory)
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := config.StoreConfig{
		Type:  config.StoreRedis,
		Redis: config.RedisConfig{Address: mr.Addr(), Prefix: "t:"},
	}.OpenStore()
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.Locker)

	ctx := context.Background()
	require.NoError(t, b.Store.Save(ctx, "c", domain.NewConversationSnapshot("c")))
	assert.True(t, mr.Exists("t:c"))

	unlock, err := b.Locker.Lock(ctx, "c", time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestOpenStore_Errors(t *testing.T) {
	_, err := config.StoreConfig{Type: "etcd"}.OpenStore()
	assert.Error(t, err)

	_, err = config.StoreConfig{EncryptionKey: "not base64!"}.OpenStore()
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = config.StoreConfig{EncryptionKey: short}.OpenStore()
	assert.Error(t, err)

	_, err = config.StoreConfig{PIIPatterns: []string{"("}}.OpenStore()
	assert.Error(t, err)
}

func TestLoad_Commands(t *testing.T) {
	path := write(t, "tendril.yaml", `
llm_routing: true
completion:
  command: llm
  args: ["-m", "small"]
  timeout: 20s
saver:
  command: ./crm-import
  env:
    CRM_URL: http://crm.local
`)
	cfg, err := config.Load(path, true)
	require.NoError(t, err)
	assert.True(t, cfg.LLMRouting)
	assert.Equal(t, "llm", cfg.Completion.Command)
	assert.Equal(t, []string{"-m", "small"}, cfg.Completion.Args)
	assert.Equal(t, 20*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, "http://crm.local", cfg.Saver.Environment["CRM_URL"])

	svc, err := cfg.OpenCompletion()
	require.NoError(t, err)
	assert.NotNil(t, svc)
	saver, err := cfg.OpenSaver()
	require.NoError(t, err)
	assert.NotNil(t, saver)

	_, err = config.Load(write(t, "routing.yaml", "llm_routing: true\n"), true)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenCommands_Disabled(t *testing.T) {
	cfg := config.Default()
	svc, err := cfg.OpenCompletion()
	require.NoError(t, err)
	assert.Nil(t, svc)
	saver, err := cfg.OpenSaver()
	require.NoError(t, err)
	assert.Nil(t, saver)
}
