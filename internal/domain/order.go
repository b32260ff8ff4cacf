package domain

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// OrderID — идентификатор заказа, выдаётся хранилищем по возрастающей последовательности.
type OrderID uint64

// String возвращает десятичное представление идентификатора.
func (id OrderID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseOrderID разбирает идентификатор из строки (например, из URL).
func ParseOrderID(raw string) (OrderID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v == 0 {
		return 0, ErrOrderIDInvalid
	}
	return OrderID(v), nil
}

// MarshalJSON отдаёт идентификатор строкой: клиенты не должны полагаться на его числовую природу.
func (id OrderID) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, id.String()), nil
}

// UnmarshalJSON принимает как строку, так и число.
func (id *OrderID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(bytes.Trim(data, `"`))
	parsed, err := ParseOrderID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusOpen — заказ принят и виден официантам и кухне.
	OrderStatusOpen OrderStatus = "open"
	// OrderStatusDeleted — заказ удалён; запись живёт до очистки по TTL.
	OrderStatusDeleted OrderStatus = "deleted"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusDeleted:
		return true
	default:
		return false
	}
}

const (
	// MinCookingTimeMinutes и MaxCookingTimeMinutes ограничивают оценку времени приготовления.
	MinCookingTimeMinutes = 5
	MaxCookingTimeMinutes = 15
)

// LineItem представляет одну позицию заказа.
type LineItem struct {
	// DishID — идентификатор блюда из меню.
	DishID string
	// Quantity — количество порций.
	Quantity int
}

// Order агрегирует состояние заказа за столом.
type Order struct {
	ID                 OrderID
	TableNumber        int
	Items              []LineItem
	Status             OrderStatus
	CookingTimeMinutes int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone возвращает копию заказа, не разделяющую срез позиций с оригиналом.
func (o Order) Clone() Order {
	dst := o
	dst.Items = CloneItems(o.Items)
	return dst
}

// HasDish сообщает, содержит ли заказ позицию с указанным блюдом.
func (o Order) HasDish(dishID string) bool {
	for _, item := range o.Items {
		if item.DishID == dishID {
			return true
		}
	}
	return false
}

// CloneItems копирует срез позиций с сохранением порядка.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	return append([]LineItem(nil), items...)
}

// ValidateNewOrder проверяет входные данные для создания заказа.
// Возвращает первую найденную ошибку валидации с указанием позиции.
func ValidateNewOrder(tableNumber int, items []LineItem) error {
	if tableNumber <= 0 {
		return ErrTableNumberInvalid
	}
	if len(items) == 0 {
		return ErrItemsRequired
	}
	for idx, item := range items {
		if strings.TrimSpace(item.DishID) == "" {
			return ErrDishIDRequired.At(idx)
		}
		if item.Quantity <= 0 {
			return ErrItemQtyInvalid.At(idx)
		}
	}
	return nil
}

// ListFilter ограничивает выборку открытых заказов. Нулевые поля не фильтруют.
type ListFilter struct {
	TableNumber int
	DishID      string
}

// Match проверяет, попадает ли заказ под фильтр.
func (f ListFilter) Match(o Order) bool {
	if f.TableNumber != 0 && o.TableNumber != f.TableNumber {
		return false
	}
	if f.DishID != "" && !o.HasDish(f.DishID) {
		return false
	}
	return true
}

// StoreStats — агрегированное состояние хранилища заказов.
type StoreStats struct {
	Open    int
	Deleted int
}
