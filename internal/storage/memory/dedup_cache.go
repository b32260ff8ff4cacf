package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
)

// DefaultDedupTTL покрывает реалистичное окно повторов с устройств официантов.
const DefaultDedupTTL = 5 * time.Minute

// DedupOption настраивает in-memory кэш дедупликации.
type DedupOption func(*dedupCacheInMemory)

// WithDedupClock подменяет источник времени (используется в тестах).
func WithDedupClock(now func() time.Time) DedupOption {
	return func(c *dedupCacheInMemory) {
		if now != nil {
			c.now = now
		}
	}
}

type dedupSlot struct {
	entry domain.DedupEntry
	// resolved закрывается при Complete или Abort и будит всех ожидающих.
	resolved chan struct{}
}

type dedupCacheInMemory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	slots map[string]*dedupSlot
}

// NewDedupCache создаёт in-memory реализацию DedupCache с заданным TTL.
func NewDedupCache(ttl time.Duration, options ...DedupOption) domain.DedupCache {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	c := &dedupCacheInMemory{
		ttl:   ttl,
		now:   time.Now,
		slots: make(map[string]*dedupSlot),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *dedupCacheInMemory) ReserveOrGet(ctx context.Context, token string) (domain.Reservation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Reservation{}, domain.ErrDedupTokenRequired
	}

	waited := false
	for {
		c.mu.Lock()
		now := c.now().UTC()
		slot, ok := c.slots[token]
		if ok && slot.entry.Expired(now) {
			delete(c.slots, token)
			ok = false
		}

		if !ok {
			c.slots[token] = &dedupSlot{
				entry: domain.DedupEntry{
					Token:     token,
					State:     domain.DedupStateInFlight,
					CreatedAt: now,
				},
				resolved: make(chan struct{}),
			}
			c.mu.Unlock()
			return domain.Reservation{Outcome: domain.Reserved, Waited: waited}, nil
		}

		if slot.entry.State == domain.DedupStateDone {
			orderID := slot.entry.OrderID
			c.mu.Unlock()
			return domain.Reservation{Outcome: domain.Existing, OrderID: orderID, Waited: waited}, nil
		}

		// Параллельный дубликат: ждём без удержания блокировки.
		resolved := slot.resolved
		c.mu.Unlock()

		waited = true
		select {
		case <-resolved:
		case <-ctx.Done():
			return domain.Reservation{}, ctx.Err()
		}
	}
}

func (c *dedupCacheInMemory) Complete(token string, orderID domain.OrderID) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrDedupTokenRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[token]
	if !ok || slot.entry.State != domain.DedupStateInFlight {
		return domain.ErrDedupTokenNotFound
	}

	slot.entry.State = domain.DedupStateDone
	slot.entry.OrderID = orderID
	slot.entry.ExpiresAt = c.now().UTC().Add(c.ttl)
	close(slot.resolved)
	return nil
}

func (c *dedupCacheInMemory) Abort(token string) {
	token = strings.TrimSpace(token)

	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[token]
	if !ok || slot.entry.State != domain.DedupStateInFlight {
		return
	}
	delete(c.slots, token)
	close(slot.resolved)
}

func (c *dedupCacheInMemory) EvictExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = c.now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for token, slot := range c.slots {
		if !slot.entry.Expired(before) {
			continue
		}

		delete(c.slots, token)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

func (c *dedupCacheInMemory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

var _ domain.DedupCache = (*dedupCacheInMemory)(nil)
