package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tableside/internal/domain"
)

const (
	defaultCleanupInterval  = 30 * time.Second
	defaultCleanupBatchSize = 500
)

var (
	dedupCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableside_dedup_cleanup_runs_total",
		Help: "Total number of dedup cleanup runs grouped by result.",
	}, []string{"result"})
	dedupCleanupEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tableside_dedup_cleanup_evicted_total",
		Help: "Total number of evicted expired dedup entries.",
	})
	ordersPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tableside_orders_purged_total",
		Help: "Total number of soft-deleted orders removed from memory.",
	})
	dedupCleanupLastEvicted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tableside_dedup_cleanup_last_evicted",
		Help: "Number of evicted entries during the last cleanup run.",
	})
)

// CleanupOptions задает параметры воркера очистки.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Orders    domain.OrderRepository
	Retention time.Duration
	OnCycle   func()
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithDeletedOrders включает физическое удаление заказов, помеченных удалёнными
// дольше retention. Обычно retention равен TTL кэша дедупликации.
func WithDeletedOrders(repo domain.OrderRepository, retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Orders = repo
		opts.Retention = retention
	}
}

// WithOnCycle задает хук, вызываемый после каждого цикла (например, обновление gauge).
func WithOnCycle(fn func()) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.OnCycle = fn
	}
}

// CleanupWorker периодически вытесняет просроченные dedup-записи
// и удаляет из памяти заказы, помеченные удалёнными.
type CleanupWorker struct {
	cache     domain.DedupCache
	orders    domain.OrderRepository
	retention time.Duration
	onCycle   func()
	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// NewCleanupWorker создает воркер очистки.
func NewCleanupWorker(cache domain.DedupCache, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "dedup-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Retention < 0 {
		opts.Retention = 0
	}

	return &CleanupWorker{
		cache:     cache,
		orders:    opts.Orders,
		retention: opts.Retention,
		onCycle:   opts.OnCycle,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.cache == nil {
		w.logger.Warn("dedup cleanup worker is disabled: cache is nil")
		return
	}

	w.cleanup(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx, time.Now().UTC())
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context, now time.Time) {
	if w.onCycle != nil {
		defer w.onCycle()
	}

	evicted, err := w.EvictExpired(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		dedupCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("dedup cleanup run failed")
		return
	}

	purged, err := w.PurgeDeleted(ctx, now.Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		dedupCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("deleted orders purge failed")
		return
	}

	dedupCleanupRunsTotal.WithLabelValues("ok").Inc()
	dedupCleanupLastEvicted.Set(float64(evicted))
	if evicted > 0 || purged > 0 {
		w.logger.WithFields(log.Fields{
			"evicted": evicted,
			"purged":  purged,
		}).Info("dedup cleanup completed")
	}
}

// EvictExpired удаляет все dedup-записи с ExpiresAt <= before порциями batchSize.
func (w *CleanupWorker) EvictExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total, err := w.drain(ctx, func() (int, error) {
		return w.cache.EvictExpired(before, w.batchSize)
	})
	if total > 0 {
		dedupCleanupEvictedTotal.Add(float64(total))
	}
	return total, err
}

// PurgeDeleted физически удаляет заказы, помеченные удалёнными не позже before.
func (w *CleanupWorker) PurgeDeleted(ctx context.Context, before time.Time) (int, error) {
	if w.orders == nil {
		return 0, nil
	}

	total, err := w.drain(ctx, func() (int, error) {
		return w.orders.PurgeDeleted(before, w.batchSize)
	})
	if total > 0 {
		ordersPurgedTotal.Add(float64(total))
	}
	return total, err
}

func (w *CleanupWorker) drain(ctx context.Context, step func() (int, error)) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := step()
		if err != nil {
			return total, err
		}

		total += n
		if n < w.batchSize {
			return total, nil
		}
	}
}
