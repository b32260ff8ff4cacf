package domain

import (
	"context"
	"time"
)

// DedupCache поглощает повторные запросы на создание заказа по request token.
type DedupCache interface {
	// ReserveOrGet атомарно резервирует токен или возвращает уже созданный заказ.
	// Если токен в обработке, вызов блокируется до Complete/Abort или отмены ctx.
	ReserveOrGet(ctx context.Context, token string) (Reservation, error)
	// Complete фиксирует привязку токена к заказу на время TTL и будит ожидающих.
	Complete(token string, orderID OrderID) error
	// Abort снимает резервацию, если создание не удалось.
	Abort(token string)
	// EvictExpired удаляет завершённые записи с ExpiresAt <= before.
	EvictExpired(before time.Time, limit int) (int, error)
	// Len возвращает текущее число записей.
	Len() int
}

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
