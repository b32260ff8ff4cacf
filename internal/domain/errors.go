package domain

import (
	"errors"
	"fmt"
)

// ErrValidation — корневая ошибка для некорректных входных данных (вина клиента).
var ErrValidation = errors.New("validation failed")

// ValidationError описывает конкретное нарушение и всегда сводится к ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
	Index  int
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is позволяет errors.Is сопоставлять ошибку как с ErrValidation, так и с исходным шаблоном.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Field == e.Field && t.Reason == e.Reason
}

// At возвращает копию ошибки с индексом позиции.
func (e *ValidationError) At(idx int) *ValidationError {
	dst := *e
	dst.Index = idx
	return &dst
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Index: -1}
}

var (
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = newValidationError("items", "order must contain at least one item")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = newValidationError("items.quantity", "must be greater than zero")
	// Ошибка пустого идентификатора блюда.
	ErrDishIDRequired = newValidationError("items.dish_id", "is required")
	// Ошибка некорректного номера стола.
	ErrTableNumberInvalid = newValidationError("table_number", "must be a positive integer")
	// Ошибка пустого request token.
	ErrDedupTokenRequired = newValidationError("request_token", "is required")
	// Ошибка некорректного идентификатора заказа в запросе.
	ErrOrderIDInvalid = newValidationError("id", "must be a positive integer")
)

var (
	// ErrOrderNotFound возвращается, если заказ не найден или уже удалён.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDedupConflict — токен указывает на заказ, которого больше нет в хранилище.
	ErrDedupConflict = errors.New("request token resolved to a missing order")
	// ErrDedupTokenNotFound — Complete вызван без активной резервации.
	ErrDedupTokenNotFound = errors.New("request token is not reserved")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsValidation проверяет, относится ли ошибка к ошибкам валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound проверяет, означает ли ошибка отсутствие заказа.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsConflict проверяет, является ли ошибка конфликтом dedup-записи.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDedupConflict)
}
