package health

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
)

// OutboxChecker следит за очередью событий о заказах. Если самое старое
// событие ждёт дольше staleAfter, брокер, скорее всего, недоступен.
type OutboxChecker struct {
	stats      func() (domain.OutboxStats, error)
	staleAfter time.Duration
	now        func() time.Time
}

// NewOutboxChecker создаёт проверку. staleAfter <= 0 отключает порог по возрасту.
func NewOutboxChecker(stats func() (domain.OutboxStats, error), staleAfter time.Duration) *OutboxChecker {
	return &OutboxChecker{stats: stats, staleAfter: staleAfter, now: time.Now}
}

// Check выполняет проверку
func (c *OutboxChecker) Check() Check {
	start := time.Now()
	check := Check{Name: "order-events", Status: StatusHealthy}

	stats, err := c.stats()
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case stats.PendingCount == 0:
		check.Message = "no pending events"
	default:
		age := c.now().Sub(stats.OldestPendingAt)
		check.Message = fmt.Sprintf("%d pending, oldest %s", stats.PendingCount, age.Truncate(time.Millisecond))
		if c.staleAfter > 0 && age > c.staleAfter {
			check.Status = StatusDegraded
		}
	}

	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
