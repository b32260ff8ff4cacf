package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
// In-memory реализация — одна из возможных; durable-бэкенды реализуют тот же контракт.
type OrderRepository interface {
	// Create валидирует позиции, выдаёт новый ID и сохраняет заказ в статусе open.
	Create(tableNumber int, items []LineItem) (Order, error)
	// Get возвращает открытый заказ или ErrOrderNotFound.
	Get(id OrderID) (Order, error)
	// List возвращает согласованный снимок открытых заказов по возрастанию ID.
	List(filter ListFilter) ([]Order, error)
	// Delete помечает открытый заказ удалённым и возвращает его итоговое состояние;
	// повторный вызов вернёт ErrOrderNotFound.
	Delete(id OrderID) (Order, error)
	// PurgeDeleted физически удаляет помеченные заказы, обновлённые не позже before.
	PurgeDeleted(before time.Time, limit int) (int, error)
	// Stats возвращает количество открытых и удалённых заказов.
	Stats() StoreStats
}
