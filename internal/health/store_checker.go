package health

import (
	"fmt"
	"time"
)

// StoreSnapshot — показатели хранилища заказов, которые видит health-check.
type StoreSnapshot struct {
	OpenOrders    int
	DeletedOrders int
	DedupEntries  int
}

// StoreChecker сообщает degraded, если dedup-кэш или хвост удалённых заказов
// вырос сверх порога: это значит, что фоновая очистка не успевает.
type StoreChecker struct {
	snapshot   func() StoreSnapshot
	maxDedup   int
	maxDeleted int
}

// NewStoreChecker создаёт проверку. Нулевой порог отключает соответствующее условие.
func NewStoreChecker(snapshot func() StoreSnapshot, maxDedupEntries, maxDeletedOrders int) *StoreChecker {
	return &StoreChecker{
		snapshot:   snapshot,
		maxDedup:   maxDedupEntries,
		maxDeleted: maxDeletedOrders,
	}
}

// Check выполняет проверку
func (c *StoreChecker) Check() Check {
	start := time.Now()
	snap := c.snapshot()
	check := Check{
		Name:   "order-store",
		Status: StatusHealthy,
		Message: fmt.Sprintf("open=%d deleted=%d dedup=%d",
			snap.OpenOrders, snap.DeletedOrders, snap.DedupEntries),
	}

	switch {
	case c.maxDedup > 0 && snap.DedupEntries > c.maxDedup:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("dedup cache has %d entries (limit %d)", snap.DedupEntries, c.maxDedup)
	case c.maxDeleted > 0 && snap.DeletedOrders > c.maxDeleted:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d deleted orders await purge (limit %d)", snap.DeletedOrders, c.maxDeleted)
	}

	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
