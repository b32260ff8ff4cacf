// Package health отдаёт состояние сервиса заказов для оркестратора и дежурных:
// /healthz с подробными проверками, /livez и /readyz для проб.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladislavdragonenkov/tableside/internal/version"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status            `json:"status"`
	Draining      bool              `json:"draining,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Checks        map[string]Check  `json:"checks,omitempty"`
	Build         version.BuildInfo `json:"build"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// Checker интерфейс для проверки здоровья компонента
type Checker interface {
	Check() Check
}

// Handler обслуживает health-пробы. Проверки выполняются на каждый запрос.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	build     version.BuildInfo
	startTime time.Time
	draining  atomic.Bool
}

// NewHandler создаёт handler, который отдаёт сведения о сборке в /healthz.
func NewHandler(build version.BuildInfo) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		build:     build,
		startTime: time.Now(),
	}
}

// RegisterChecker регистрирует проверку компонента
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// SetDraining переводит readiness в 503 на время graceful shutdown,
// чтобы балансировщик перестал направлять новые заказы.
func (h *Handler) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// Draining сообщает, идёт ли остановка.
func (h *Handler) Draining() bool {
	return h.draining.Load()
}

// runChecks выполняет все проверки без удержания h.mu.
// Итог: unhealthy важнее degraded, degraded важнее healthy.
func (h *Handler) runChecks() (map[string]Check, Status) {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	checks := make(map[string]Check, len(checkers))
	overall := StatusHealthy
	for name, checker := range checkers {
		check := checker.Check()
		checks[name] = check

		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return checks, overall
}

// ServeHTTP отдаёт /healthz. 503 только при unhealthy: degraded и draining
// видны в теле, но не роняют пробу.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks, overall := h.runChecks()

	response := Response{
		Status:        overall,
		Draining:      h.Draining(),
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Build:         h.build,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отдаёт /readyz: 503 во время остановки или при unhealthy проверке.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if h.Draining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}

	if _, overall := h.runChecks(); overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
