package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	// Workers — размер пула, выполняющего запросы к сервису заказов.
	Workers int

	// DedupTTL — сколько живёт привязка request token к заказу.
	// Удалённые заказы хранятся столько же, чтобы повтор получил конфликт, а не дубль.
	DedupTTL          time.Duration
	SweepInterval     time.Duration
	SweepBatchSize    int
	MaxDedupEntries   int
	MaxDeletedBacklog int

	KafkaBrokers       string
	KafkaTopic         string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		GRPCAddr:           ":50051",
		MetricsAddr:        ":9090",
		Workers:            8,
		DedupTTL:           5 * time.Minute,
		SweepInterval:      30 * time.Second,
		SweepBatchSize:     500,
		MaxDedupEntries:    100_000,
		MaxDeletedBacklog:  100_000,
		KafkaTopic:         "tableside.order.events",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		ShutdownTimeout:    5 * time.Second,
	}
}

// LoadDotEnv подгружает переменные из .env файлов, если они есть.
// Уже выставленные переменные окружения не перезаписываются.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadConfig накладывает переменные окружения на DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	cfg.HTTPAddr = envString("TABLESIDE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = envString("TABLESIDE_GRPC_ADDR", cfg.GRPCAddr)
	cfg.MetricsAddr = envString("TABLESIDE_METRICS_ADDR", cfg.MetricsAddr)
	cfg.KafkaBrokers = envString("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envString("TABLESIDE_KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.Workers = envPositiveInt("TABLESIDE_WORKERS", cfg.Workers, &errs)
	cfg.SweepBatchSize = envPositiveInt("TABLESIDE_SWEEP_BATCH", cfg.SweepBatchSize, &errs)
	cfg.OutboxBatchSize = envPositiveInt("TABLESIDE_OUTBOX_BATCH", cfg.OutboxBatchSize, &errs)
	cfg.OutboxMaxAttempts = envPositiveInt("TABLESIDE_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts, &errs)

	cfg.DedupTTL = envDuration("TABLESIDE_DEDUP_TTL", cfg.DedupTTL, &errs)
	cfg.SweepInterval = envDuration("TABLESIDE_SWEEP_INTERVAL", cfg.SweepInterval, &errs)
	cfg.OutboxPollInterval = envDuration("TABLESIDE_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval, &errs)
	cfg.ShutdownTimeout = envDuration("TABLESIDE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, &errs)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Brokers возвращает список брокеров Kafka без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envPositiveInt(key string, fallback int, errs *[]error) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: expected positive integer, got %q", key, raw))
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: expected positive duration, got %q", key, raw))
		return fallback
	}
	return d
}
