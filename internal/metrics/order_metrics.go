package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики сервиса заказов и кэша дедупликации.
// Все методы безопасны для nil-получателя, чтобы метрики можно было отключить.
type OrderMetrics struct {
	ordersCreated      prometheus.Counter
	ordersDeleted      prometheus.Counter
	deleteNotFound     prometheus.Counter
	validationFailures prometheus.Counter

	// Исходы ReserveOrGet: reserved, existing, waited.
	dedupOutcomes  *prometheus.CounterVec
	dedupConflicts prometheus.Counter

	createDuration prometheus.Histogram

	openOrders   prometheus.Gauge
	dedupEntries prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в глобальном registry.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registry.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tableside_orders_created_total",
			Help: "Total number of orders created in the store",
		}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tableside_orders_deleted_total",
			Help: "Total number of orders marked deleted",
		}),
		deleteNotFound: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tableside_delete_not_found_total",
			Help: "Total number of deletes that targeted a missing or already deleted order",
		}),
		validationFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tableside_validation_failures_total",
			Help: "Total number of create requests rejected by validation",
		}),
		dedupOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "tableside_dedup_outcomes_total",
			Help: "Dedup cache lookups grouped by outcome",
		}, []string{"outcome"}),
		dedupConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tableside_dedup_conflicts_total",
			Help: "Total number of request tokens that resolved to a missing order",
		}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "tableside_create_order_duration_seconds",
			Help:    "Duration of CreateOrder including dedup waits",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		openOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "tableside_open_orders",
			Help: "Number of open orders currently held in memory",
		}),
		dedupEntries: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "tableside_dedup_entries",
			Help: "Number of entries currently held by the dedup cache",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderDeleted увеличивает счётчик удалённых заказов.
func (m *OrderMetrics) RecordOrderDeleted() {
	if m == nil {
		return
	}
	m.ordersDeleted.Inc()
}

// RecordDeleteNotFound увеличивает счётчик повторных/ошибочных удалений.
func (m *OrderMetrics) RecordDeleteNotFound() {
	if m == nil {
		return
	}
	m.deleteNotFound.Inc()
}

// RecordValidationFailure увеличивает счётчик отклонённых запросов.
func (m *OrderMetrics) RecordValidationFailure() {
	if m == nil {
		return
	}
	m.validationFailures.Inc()
}

// RecordDedupOutcome фиксирует исход обращения к кэшу дедупликации.
func (m *OrderMetrics) RecordDedupOutcome(outcome string) {
	if m == nil {
		return
	}
	m.dedupOutcomes.WithLabelValues(outcome).Inc()
}

// RecordDedupConflict увеличивает счётчик конфликтов dedup-записей.
func (m *OrderMetrics) RecordDedupConflict() {
	if m == nil {
		return
	}
	m.dedupConflicts.Inc()
}

// RecordCreateDuration записывает время выполнения CreateOrder.
func (m *OrderMetrics) RecordCreateDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.createDuration.Observe(duration.Seconds())
}

// SetOpenOrders обновляет gauge открытых заказов.
func (m *OrderMetrics) SetOpenOrders(n int) {
	if m == nil {
		return
	}
	m.openOrders.Set(float64(n))
}

// SetDedupEntries обновляет gauge записей кэша дедупликации.
func (m *OrderMetrics) SetDedupEntries(n int) {
	if m == nil {
		return
	}
	m.dedupEntries.Set(float64(n))
}
