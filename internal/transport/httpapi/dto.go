package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
)

type lineItemDTO struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

// createOrderRequest — тело POST /orders.
type createOrderRequest struct {
	TableNumber  int           `json:"table_number"`
	Items        []lineItemDTO `json:"items"`
	RequestToken string        `json:"request_token"`
}

func (r createOrderRequest) lineItems() []domain.LineItem {
	items := make([]domain.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, domain.LineItem{DishID: it.DishID, Quantity: it.Quantity})
	}
	return items
}

type orderResponse struct {
	ID                 domain.OrderID     `json:"id"`
	TableNumber        int                `json:"table_number"`
	Items              []lineItemDTO      `json:"items"`
	Status             domain.OrderStatus `json:"status"`
	CookingTimeMinutes int                `json:"cooking_time_minutes"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func mapOrderToResponse(o domain.Order) orderResponse {
	items := make([]lineItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemDTO{DishID: it.DishID, Quantity: it.Quantity})
	}
	return orderResponse{
		ID:                 o.ID,
		TableNumber:        o.TableNumber,
		Items:              items,
		Status:             o.Status,
		CookingTimeMinutes: o.CookingTimeMinutes,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func mapOrdersToResponse(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, mapOrderToResponse(o))
	}
	return out
}

// errorResponse — единый формат ошибок API.
type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
