package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tableside/internal/app"
	"github.com/vladislavdragonenkov/tableside/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(rawLevel string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	level, err := parseLogLevel(rawLevel)
	if err != nil {
		log.WithError(err).Warn("некорректный LOG_LEVEL, используем info")
	}
	log.SetLevel(level)
}

// parseLogLevel разбирает уровень логирования; пустая строка означает info.
func parseLogLevel(raw string) (log.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(raw)
	if err != nil {
		return log.InfoLevel, err
	}
	return level, nil
}

func main() {
	if err := app.LoadDotEnv(); err != nil {
		log.WithError(err).Fatal("не удалось прочитать .env")
	}
	setupLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"workers":      cfg.Workers,
		"dedup_ttl":    cfg.DedupTTL,
		"kafka":        len(cfg.Brokers()) > 0,
		"version":      version.Get().String(),
	}).Info("запускаем tableside order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("tableside order service остановлен")
}
