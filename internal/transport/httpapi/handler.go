// Package httpapi предоставляет REST API сервиса заказов поверх chi.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
)

const (
	// IdempotencyKeyHeader — альтернативный способ передать request token.
	IdempotencyKeyHeader = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

// OrderService — операции сервиса заказов, используемые транспортом.
type OrderService interface {
	CreateOrder(ctx context.Context, token string, tableNumber int, items []domain.LineItem) (domain.Order, error)
	ListOrders(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error)
	GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	DeleteOrder(ctx context.Context, id domain.OrderID) error
}

// Dispatcher выполняет задачу на воркере и ждёт её завершения.
type Dispatcher interface {
	Submit(ctx context.Context, fn func()) error
}

// Handler обрабатывает HTTP-запросы к заказам.
type Handler struct {
	service    OrderService
	dispatcher Dispatcher
	logger     *log.Entry
}

// NewHandler создаёт обработчик. Без dispatcher запросы выполняются в горутине запроса.
func NewHandler(service OrderService, dispatcher Dispatcher, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		service:    service,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *Handler) run(ctx context.Context, fn func()) error {
	if h.dispatcher == nil {
		fn()
		return nil
	}
	return h.dispatcher.Submit(ctx, fn)
}

// CreateOrder обрабатывает POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "request body must be a JSON order: "+err.Error())
		return
	}

	token := req.RequestToken
	if strings.TrimSpace(token) == "" {
		token = r.Header.Get(IdempotencyKeyHeader)
	}

	var (
		order domain.Order
		err   error
	)
	if subErr := h.run(r.Context(), func() {
		order, err = h.service.CreateOrder(r.Context(), token, req.TableNumber, req.lineItems())
	}); subErr != nil {
		h.writeServiceError(w, r, subErr)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

// ListOrders обрабатывает GET /orders?table_number=&dish_id=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var orders []domain.Order
	if subErr := h.run(r.Context(), func() {
		orders, err = h.service.ListOrders(r.Context(), filter)
	}); subErr != nil {
		h.writeServiceError(w, r, subErr)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrdersToResponse(orders))
}

// GetOrder обрабатывает GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var order domain.Order
	if subErr := h.run(r.Context(), func() {
		order, err = h.service.GetOrder(r.Context(), id)
	}); subErr != nil {
		h.writeServiceError(w, r, subErr)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// DeleteOrder обрабатывает DELETE /orders/{id}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if subErr := h.run(r.Context(), func() {
		err = h.service.DeleteOrder(r.Context(), id)
	}); subErr != nil {
		h.writeServiceError(w, r, subErr)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	filter := domain.ListFilter{DishID: strings.TrimSpace(q.Get("dish_id"))}

	if raw := strings.TrimSpace(q.Get("table_number")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return domain.ListFilter{}, domain.ErrTableNumberInvalid
		}
		filter.TableNumber = n
	}
	return filter, nil
}
