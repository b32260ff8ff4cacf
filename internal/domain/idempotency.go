package domain

import "time"

// DedupState описывает жизненный цикл request token.
type DedupState string

const (
	// DedupStateInFlight означает, что создание заказа по токену ещё выполняется.
	DedupStateInFlight DedupState = "in_flight"
	// DedupStateDone означает, что заказ создан и токен привязан к нему до ExpiresAt.
	DedupStateDone DedupState = "done"
)

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s DedupState) Valid() bool {
	switch s {
	case DedupStateInFlight, DedupStateDone:
		return true
	default:
		return false
	}
}

// DedupEntry связывает request token клиента с созданным заказом.
// Запись хранит только ссылку на заказ, но не его содержимое.
type DedupEntry struct {
	Token     string
	OrderID   OrderID
	State     DedupState
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired сообщает, истёк ли срок жизни завершённой записи к моменту now.
// Записи в состоянии in_flight не истекают.
func (e DedupEntry) Expired(now time.Time) bool {
	return e.State == DedupStateDone && !e.ExpiresAt.After(now)
}

// ReservationOutcome — результат ReserveOrGet.
type ReservationOutcome int

const (
	// Reserved — вызывающий получил право создать заказ и обязан вызвать Complete или Abort.
	Reserved ReservationOutcome = iota + 1
	// Existing — токен уже привязан к заказу, создавать ничего не нужно.
	Existing
)

// String возвращает имя исхода для логов и метрик.
func (o ReservationOutcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case Existing:
		return "existing"
	default:
		return "unknown"
	}
}

// Reservation — ответ кэша дедупликации.
type Reservation struct {
	Outcome ReservationOutcome
	// OrderID заполнен только для Existing.
	OrderID OrderID
	// Waited выставляется, если вызов ждал завершения параллельного дубликата.
	Waited bool
}
