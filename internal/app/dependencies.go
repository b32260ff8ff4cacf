package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
	"github.com/vladislavdragonenkov/tableside/internal/metrics"
	"github.com/vladislavdragonenkov/tableside/internal/service/orders"
	"github.com/vladislavdragonenkov/tableside/internal/storage/memory"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Repo       domain.OrderRepository
	Dedup      domain.DedupCache
	OutboxRepo domain.OutboxRepository
	Metrics    *metrics.OrderMetrics
	Service    *orders.Service
	Logger     *log.Entry
}

// NewDependencies создаёт хранилища и сервис заказов.
func NewDependencies(cfg Config, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	repo := memory.NewOrderRepository()
	dedup := memory.NewDedupCache(cfg.DedupTTL)
	outboxRepo := memory.NewOutboxRepository()
	orderMetrics := metrics.NewOrderMetrics()

	service := orders.NewService(
		repo,
		dedup,
		logger.WithField("component", "order-service"),
		orders.WithOutbox(outboxRepo),
		orders.WithMetrics(orderMetrics),
	)

	return &Dependencies{
		Repo:       repo,
		Dedup:      dedup,
		OutboxRepo: outboxRepo,
		Metrics:    orderMetrics,
		Service:    service,
		Logger:     logger,
	}
}
