// Package orders реализует публичный контракт сервиса заказов:
// дедупликацию повторных запросов и делегирование в хранилище.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
	"github.com/vladislavdragonenkov/tableside/internal/metrics"
)

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает постановку событий жизненного цикла в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithMetrics задаёт метрики сервиса.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service — единственная точка входа для транспортного слоя.
// Между вызовами кэша и хранилища не удерживается ни одна блокировка.
type Service struct {
	repo    domain.OrderRepository
	dedup   domain.DedupCache
	outbox  domain.OutboxRepository
	metrics *metrics.OrderMetrics
	logger  *log.Entry
}

// Stats — сводное состояние сервиса для health-check и метрик.
type Stats struct {
	Store        domain.StoreStats
	DedupEntries int
}

// NewService конструирует сервис с зависимостями.
func NewService(repo domain.OrderRepository, dedup domain.DedupCache, logger *log.Entry, options ...Option) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	s := &Service{
		repo:   repo,
		dedup:  dedup,
		logger: logger,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateOrder создаёт заказ не более одного раза на request token.
// Пустой токен отключает дедупликацию для запроса.
func (s *Service) CreateOrder(ctx context.Context, token string, tableNumber int, items []domain.LineItem) (domain.Order, error) {
	start := time.Now()
	defer func() { s.metrics.RecordCreateDuration(time.Since(start)) }()

	if err := domain.ValidateNewOrder(tableNumber, items); err != nil {
		s.metrics.RecordValidationFailure()
		return domain.Order{}, err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return s.create(tableNumber, items)
	}

	res, err := s.dedup.ReserveOrGet(ctx, token)
	if err != nil {
		return domain.Order{}, fmt.Errorf("reserve request token: %w", err)
	}
	if res.Waited {
		s.metrics.RecordDedupOutcome("waited")
	}
	s.metrics.RecordDedupOutcome(res.Outcome.String())

	switch res.Outcome {
	case domain.Existing:
		return s.resolveExisting(token, res.OrderID)
	case domain.Reserved:
		return s.createReserved(token, tableNumber, items)
	default:
		return domain.Order{}, fmt.Errorf("unexpected reservation outcome %d", res.Outcome)
	}
}

func (s *Service) createReserved(token string, tableNumber int, items []domain.LineItem) (order domain.Order, err error) {
	resolved := false
	defer func() {
		// Неудачное создание (или паника) не должно навсегда блокировать дубликаты.
		if !resolved {
			s.dedup.Abort(token)
		}
	}()

	order, err = s.create(tableNumber, items)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.dedup.Complete(token, order.ID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"request_token": token,
			"order_id":      order.ID,
		}).Warn("failed to complete dedup reservation")
	}
	resolved = true

	return order, nil
}

func (s *Service) create(tableNumber int, items []domain.LineItem) (domain.Order, error) {
	order, err := s.repo.Create(tableNumber, items)
	if err != nil {
		if domain.IsValidation(err) {
			s.metrics.RecordValidationFailure()
		}
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"table_number": order.TableNumber,
		"items":        len(order.Items),
	}).Debug("order created")
	s.enqueue(domain.EventTypeOrderCreated, order)

	return order, nil
}

func (s *Service) resolveExisting(token string, id domain.OrderID) (domain.Order, error) {
	order, err := s.repo.Get(id)
	if err == nil {
		return order, nil
	}
	if domain.IsNotFound(err) {
		s.metrics.RecordDedupConflict()
		s.logger.WithFields(log.Fields{
			"request_token": token,
			"order_id":      id,
		}).Warn("request token points to an order that no longer exists")
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrDedupConflict)
	}
	return domain.Order{}, err
}

// ListOrders возвращает открытые заказы по возрастанию ID.
func (s *Service) ListOrders(_ context.Context, filter domain.ListFilter) ([]domain.Order, error) {
	return s.repo.List(filter)
}

// GetOrder возвращает открытый заказ. Удалённые заказы недоступны.
func (s *Service) GetOrder(_ context.Context, id domain.OrderID) (domain.Order, error) {
	return s.repo.Get(id)
}

// DeleteOrder помечает заказ удалённым. Повторный вызов вернёт ErrOrderNotFound,
// что для клиента означает «цель уже достигнута».
func (s *Service) DeleteOrder(_ context.Context, id domain.OrderID) error {
	deleted, err := s.repo.Delete(id)
	if err != nil {
		if domain.IsNotFound(err) {
			s.metrics.RecordDeleteNotFound()
		}
		return err
	}

	s.metrics.RecordOrderDeleted()
	s.logger.WithField("order_id", id).Debug("order deleted")

	s.enqueue(domain.EventTypeOrderDeleted, deleted)
	return nil
}

// Stats возвращает сводное состояние хранилища и кэша.
func (s *Service) Stats() Stats {
	return Stats{
		Store:        s.repo.Stats(),
		DedupEntries: s.dedup.Len(),
	}
}

// RefreshGauges обновляет gauge-метрики по текущему состоянию.
func (s *Service) RefreshGauges() {
	stats := s.Stats()
	s.metrics.SetOpenOrders(stats.Store.Open)
	s.metrics.SetDedupEntries(stats.DedupEntries)
}

func (s *Service) enqueue(eventType domain.EventType, order domain.Order) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(domain.NewOrderEvent(eventType, order))
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to marshal order event")
		return
	}

	_, err = s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID.String(),
		EventType:     string(eventType),
		Payload:       payload,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue order event")
	}
}
