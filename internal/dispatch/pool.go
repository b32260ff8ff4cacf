// Package dispatch содержит пул воркеров, на котором выполняются запросы к сервису заказов.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const defaultWorkers = 8

var (
	// ErrBusy возвращается, если контекст запроса завершился до того, как задачу взял воркер.
	ErrBusy = errors.New("no worker became available")
	// ErrStopped возвращается при отправке задачи в остановленный пул.
	ErrStopped = errors.New("dispatch pool is stopped")
	// ErrJobPanicked — задача завершилась паникой; воркер продолжает работу.
	ErrJobPanicked = errors.New("dispatched job panicked")
)

var (
	dispatchJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableside_dispatch_jobs_total",
		Help: "Total number of jobs submitted to the dispatch pool by result",
	}, []string{"result"})

	dispatchWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tableside_dispatch_waiting_jobs",
		Help: "Number of submitters waiting for a free worker",
	})

	dispatchWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tableside_dispatch_wait_seconds",
		Help:    "Time a job waited for a free worker",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)

// Option настраивает Pool.
type Option func(*Options)

// Options описывает параметры пула.
type Options struct {
	Logger  *log.Entry
	Workers int
}

// WithLogger задаёт логгер пула.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithWorkers задаёт количество воркеров.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

type job struct {
	fn   func()
	done chan error
}

// Pool — фиксированный набор горутин. Submit блокируется, пока задача не выполнится.
type Pool struct {
	jobs    chan job
	stopCh  chan struct{}
	logger  *log.Entry
	workers int

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool создаёт пул. Воркеры запускаются в Start.
func NewPool(options ...Option) *Pool {
	opts := Options{
		Logger:  log.WithField("component", "dispatch-pool"),
		Workers: defaultWorkers,
	}
	for _, option := range options {
		option(&opts)
	}

	return &Pool{
		// Небуферизованный канал: задача считается принятой только когда её взял воркер.
		jobs:    make(chan job),
		stopCh:  make(chan struct{}),
		logger:  opts.Logger,
		workers: opts.Workers,
	}
}

// Workers возвращает размер пула.
func (p *Pool) Workers() int {
	return p.workers
}

// Start запускает воркеры. Повторный вызов ничего не делает.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(p.workers)
		for i := 0; i < p.workers; i++ {
			go p.worker(ctx, i)
		}
		p.logger.WithField("workers", p.workers).Info("dispatch pool started")
	})
}

// Stop перестаёт принимать задачи и дожидается завершения уже взятых.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		p.logger.Info("dispatch pool stopped")
	})
}

// Submit передаёт fn свободному воркеру и ждёт её завершения.
// Пока задача ждёт воркера, отмена ctx возвращает ErrBusy.
// Взятая задача всегда выполняется до конца.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-p.stopCh:
		dispatchJobsTotal.WithLabelValues("stopped").Inc()
		return ErrStopped
	default:
	}

	j := job{fn: fn, done: make(chan error, 1)}

	dispatchWaiting.Inc()
	start := time.Now()
	select {
	case p.jobs <- j:
		dispatchWaiting.Dec()
		dispatchWaitSeconds.Observe(time.Since(start).Seconds())
	case <-ctx.Done():
		dispatchWaiting.Dec()
		dispatchJobsTotal.WithLabelValues("busy").Inc()
		return fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
	case <-p.stopCh:
		dispatchWaiting.Dec()
		dispatchJobsTotal.WithLabelValues("stopped").Inc()
		return ErrStopped
	}

	err := <-j.done
	if err != nil {
		dispatchJobsTotal.WithLabelValues("panic").Inc()
		return err
	}
	dispatchJobsTotal.WithLabelValues("done").Inc()
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case j := <-p.jobs:
			j.done <- p.run(id, j.fn)
		}
	}
}

func (p *Pool) run(id int, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(log.Fields{
				"worker": id,
				"panic":  r,
			}).Error("dispatched job panicked")
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	fn()
	return nil
}
