package domain

import "time"

// EventType определяет тип события жизненного цикла заказа.
type EventType string

const (
	EventTypeOrderCreated EventType = "order.created"
	EventTypeOrderDeleted EventType = "order.deleted"
)

// AggregateTypeOrder — тип агрегата для outbox-сообщений о заказах.
const AggregateTypeOrder = "order"

// OrderEventItem — позиция заказа в публикуемом событии.
type OrderEventItem struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

// OrderEvent — полезная нагрузка события о заказе для кухни и внешних подписчиков.
type OrderEvent struct {
	EventType          EventType        `json:"event_type"`
	OrderID            OrderID          `json:"order_id"`
	TableNumber        int              `json:"table_number"`
	Status             OrderStatus      `json:"status"`
	Items              []OrderEventItem `json:"items,omitempty"`
	CookingTimeMinutes int              `json:"cooking_time_minutes,omitempty"`
	Timestamp          time.Time        `json:"timestamp"`
}

// NewOrderEvent строит событие по текущему состоянию заказа.
func NewOrderEvent(eventType EventType, order Order) OrderEvent {
	items := make([]OrderEventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderEventItem{DishID: item.DishID, Quantity: item.Quantity})
	}
	return OrderEvent{
		EventType:          eventType,
		OrderID:            order.ID,
		TableNumber:        order.TableNumber,
		Status:             order.Status,
		Items:              items,
		CookingTimeMinutes: order.CookingTimeMinutes,
		Timestamp:          order.UpdatedAt,
	}
}
