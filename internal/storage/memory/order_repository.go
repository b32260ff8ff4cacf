package memory

import (
	"math/rand"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
)

// OrderOption настраивает in-memory хранилище заказов.
type OrderOption func(*orderRepositoryInMemory)

// WithOrderClock подменяет источник времени (используется в тестах).
func WithOrderClock(now func() time.Time) OrderOption {
	return func(r *orderRepositoryInMemory) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCookingTime подменяет генератор оценки времени приготовления.
func WithCookingTime(fn func() int) OrderOption {
	return func(r *orderRepositoryInMemory) {
		if fn != nil {
			r.cookingTime = fn
		}
	}
}

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Выдача ID и вставка в map выполняются под одной эксклюзивной блокировкой,
// поэтому List никогда не видит частично созданный заказ.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[domain.OrderID]domain.Order
	// ids хранит идентификаторы в порядке выдачи, то есть по возрастанию.
	ids    []domain.OrderID
	nextID domain.OrderID
	lastTS time.Time

	now         func() time.Time
	cookingTime func() int
}

// NewOrderRepository возвращает in-memory хранилище заказов.
func NewOrderRepository(options ...OrderOption) domain.OrderRepository {
	r := &orderRepositoryInMemory{
		items:       make(map[domain.OrderID]domain.Order),
		now:         time.Now,
		cookingTime: randomCookingTime,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func randomCookingTime() int {
	return domain.MinCookingTimeMinutes + rand.Intn(domain.MaxCookingTimeMinutes-domain.MinCookingTimeMinutes+1)
}

// Create валидирует позиции и сохраняет новый открытый заказ.
func (r *orderRepositoryInMemory) Create(tableNumber int, items []domain.LineItem) (domain.Order, error) {
	if err := domain.ValidateNewOrder(tableNumber, items); err != nil {
		return domain.Order{}, err
	}
	// Копируем позиции до захвата блокировки: вызывающий может продолжать владеть срезом.
	owned := domain.CloneItems(items)
	cooking := r.cookingTime()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.tickLocked()
	order := domain.Order{
		ID:                 r.nextID,
		TableNumber:        tableNumber,
		Items:              owned,
		Status:             domain.OrderStatusOpen,
		CookingTimeMinutes: cooking,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.items[order.ID] = order
	r.ids = append(r.ids, order.ID)

	return order.Clone(), nil
}

// Get возвращает открытый заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(id domain.OrderID) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok || order.Status != domain.OrderStatusOpen {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// List возвращает снимок открытых заказов по возрастанию ID.
func (r *orderRepositoryInMemory) List(filter domain.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.ids))
	for _, id := range r.ids {
		order := r.items[id]
		if order.Status != domain.OrderStatusOpen || !filter.Match(order) {
			continue
		}
		result = append(result, order.Clone())
	}
	return result, nil
}

// Delete помечает заказ удалённым и возвращает копию с меткой времени удаления.
func (r *orderRepositoryInMemory) Delete(id domain.OrderID) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok || order.Status != domain.OrderStatusOpen {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Status = domain.OrderStatusDeleted
	order.UpdatedAt = r.tickLocked()
	r.items[id] = order
	return order.Clone(), nil
}

// PurgeDeleted физически удаляет помеченные заказы, обновлённые не позже before.
func (r *orderRepositoryInMemory) PurgeDeleted(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	kept := r.ids[:0]
	for _, id := range r.ids {
		order := r.items[id]
		canRemove := limit <= 0 || removed < limit
		if canRemove && order.Status == domain.OrderStatusDeleted && !order.UpdatedAt.After(before) {
			delete(r.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	// Обнуляем хвост, чтобы не держать лишнюю ёмкость со старыми значениями.
	clear(r.ids[len(kept):])
	r.ids = kept

	return removed, nil
}

// Stats возвращает количество открытых и удалённых заказов.
func (r *orderRepositoryInMemory) Stats() domain.StoreStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.StoreStats
	for _, order := range r.items {
		switch order.Status {
		case domain.OrderStatusOpen:
			stats.Open++
		case domain.OrderStatusDeleted:
			stats.Deleted++
		}
	}
	return stats
}

// tickLocked возвращает неубывающую метку времени. Вызывать под r.mu.
func (r *orderRepositoryInMemory) tickLocked() time.Time {
	now := r.now().UTC()
	if now.Before(r.lastTS) {
		now = r.lastTS
	}
	r.lastTS = now
	return now
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
