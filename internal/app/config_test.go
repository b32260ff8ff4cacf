package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, ":50051", cfg.GRPCAddr)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Positive(t, cfg.Workers)
	require.Equal(t, 5*time.Minute, cfg.DedupTTL)
	require.Positive(t, cfg.SweepInterval)
	require.Positive(t, cfg.SweepBatchSize)
	require.Positive(t, cfg.OutboxPollInterval)
	require.Positive(t, cfg.OutboxBatchSize)
	require.Positive(t, cfg.OutboxMaxAttempts)
	require.Empty(t, cfg.KafkaBrokers)
	require.NotEmpty(t, cfg.KafkaTopic)
}

func TestConfig_Comparison(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg2 := DefaultConfig()
	require.Equal(t, cfg1, cfg2)

	cfg2.HTTPAddr = ":8081"
	require.NotEqual(t, cfg1, cfg2)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TABLESIDE_HTTP_ADDR", "127.0.0.1:18080")
	t.Setenv("TABLESIDE_GRPC_ADDR", "127.0.0.1:15051")
	t.Setenv("TABLESIDE_METRICS_ADDR", "127.0.0.1:19090")
	t.Setenv("TABLESIDE_WORKERS", "16")
	t.Setenv("TABLESIDE_DEDUP_TTL", "1s")
	t.Setenv("TABLESIDE_SWEEP_INTERVAL", "250ms")
	t.Setenv("TABLESIDE_SWEEP_BATCH", "50")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092,")
	t.Setenv("TABLESIDE_KAFKA_TOPIC", "orders.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:18080", cfg.HTTPAddr)
	require.Equal(t, "127.0.0.1:15051", cfg.GRPCAddr)
	require.Equal(t, "127.0.0.1:19090", cfg.MetricsAddr)
	require.Equal(t, 16, cfg.Workers)
	require.Equal(t, time.Second, cfg.DedupTTL)
	require.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	require.Equal(t, 50, cfg.SweepBatchSize)
	require.Equal(t, "orders.test", cfg.KafkaTopic)
	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Brokers())
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Setenv("TABLESIDE_WORKERS", "zero")
	t.Setenv("TABLESIDE_DEDUP_TTL", "-5s")

	_, err := LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "TABLESIDE_WORKERS")
	require.Contains(t, err.Error(), "TABLESIDE_DEDUP_TTL")
}

func TestConfig_BrokersEmpty(t *testing.T) {
	require.Empty(t, DefaultConfig().Brokers())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("TABLESIDE_SWEEP_BATCH=42\n"), 0o600))

	// godotenv не перезаписывает уже заданные переменные; t.Setenv восстановит исходное значение.
	t.Setenv("TABLESIDE_SWEEP_BATCH", "")
	require.NoError(t, os.Unsetenv("TABLESIDE_SWEEP_BATCH"))

	require.NoError(t, LoadDotEnv(file))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 42, cfg.SweepBatchSize)
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
