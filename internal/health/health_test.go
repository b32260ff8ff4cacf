package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
	"github.com/vladislavdragonenkov/tableside/internal/version"
)

var testBuild = version.BuildInfo{Version: "v1.4.0", Commit: "abc123", Date: "2026-10-01"}

type staticChecker struct {
	status Status
}

func (c staticChecker) Check() Check {
	return Check{Name: "static", Status: c.status}
}

func serve(t *testing.T, h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHealthHandler_ReportsBuildAndStore(t *testing.T) {
	handler := NewHandler(testBuild)
	handler.RegisterChecker("order-store", NewStoreChecker(func() StoreSnapshot {
		return StoreSnapshot{OpenOrders: 3, DeletedOrders: 1, DedupEntries: 2}
	}, 10, 10))

	w := serve(t, handler.ServeHTTP, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeResponse(t, w)
	require.Equal(t, StatusHealthy, response.Status)
	require.Equal(t, testBuild, response.Build)
	require.False(t, response.Draining)
	require.Equal(t, "open=3 deleted=1 dedup=2", response.Checks["order-store"].Message)
}

func TestHealthHandler_WorstStatusWins(t *testing.T) {
	cases := []struct {
		name     string
		statuses []Status
		want     Status
		code     int
	}{
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, want: StatusHealthy, code: http.StatusOK},
		{name: "degraded", statuses: []Status{StatusHealthy, StatusDegraded}, want: StatusDegraded, code: http.StatusOK},
		{name: "unhealthy", statuses: []Status{StatusDegraded, StatusUnhealthy}, want: StatusUnhealthy, code: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(testBuild)
			for i, status := range tc.statuses {
				handler.RegisterChecker(string(rune('a'+i)), staticChecker{status: status})
			}

			w := serve(t, handler.ServeHTTP, "/healthz")
			require.Equal(t, tc.code, w.Code)
			require.Equal(t, tc.want, decodeResponse(t, w).Status)
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	w := serve(t, LivenessHandler, "/livez")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler(testBuild)
	handler.RegisterChecker("order-store", staticChecker{status: StatusDegraded})

	// Деградация не делает сервис неготовым.
	w := serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())

	handler.RegisterChecker("order-events", staticChecker{status: StatusUnhealthy})
	w = serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}

func TestReadinessHandler_Draining(t *testing.T) {
	handler := NewHandler(testBuild)
	handler.SetDraining(true)

	w := serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "draining", w.Body.String())

	// /healthz остаётся 200 и показывает остановку в теле.
	w = serve(t, handler.ServeHTTP, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decodeResponse(t, w).Draining)

	handler.SetDraining(false)
	w = serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStoreChecker(t *testing.T) {
	snap := StoreSnapshot{OpenOrders: 3, DeletedOrders: 1, DedupEntries: 2}
	checker := NewStoreChecker(func() StoreSnapshot { return snap }, 10, 10)

	require.Equal(t, StatusHealthy, checker.Check().Status)

	snap.DedupEntries = 11
	check := checker.Check()
	require.Equal(t, StatusDegraded, check.Status)
	require.Contains(t, check.Message, "dedup cache has 11 entries")

	snap.DedupEntries = 0
	snap.DeletedOrders = 50
	check = checker.Check()
	require.Equal(t, StatusDegraded, check.Status)
	require.Contains(t, check.Message, "50 deleted orders await purge")
}

func TestStoreChecker_ZeroLimitsDisabled(t *testing.T) {
	checker := NewStoreChecker(func() StoreSnapshot {
		return StoreSnapshot{DedupEntries: 1 << 20, DeletedOrders: 1 << 20}
	}, 0, 0)

	require.Equal(t, StatusHealthy, checker.Check().Status)
}

func TestOutboxChecker(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	var (
		stats    domain.OutboxStats
		statsErr error
	)
	checker := NewOutboxChecker(func() (domain.OutboxStats, error) { return stats, statsErr }, time.Minute)
	checker.now = func() time.Time { return now }

	check := checker.Check()
	require.Equal(t, StatusHealthy, check.Status)
	require.Equal(t, "no pending events", check.Message)

	stats = domain.OutboxStats{PendingCount: 4, OldestPendingAt: now.Add(-10 * time.Second)}
	check = checker.Check()
	require.Equal(t, StatusHealthy, check.Status)
	require.Equal(t, "4 pending, oldest 10s", check.Message)

	stats.OldestPendingAt = now.Add(-2 * time.Minute)
	require.Equal(t, StatusDegraded, checker.Check().Status)

	statsErr = errors.New("outbox unavailable")
	check = checker.Check()
	require.Equal(t, StatusUnhealthy, check.Status)
	require.Equal(t, "outbox unavailable", check.Message)
}
