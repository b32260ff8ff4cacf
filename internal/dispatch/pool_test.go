package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_SubmitRunsJob(t *testing.T) {
	pool := NewPool(WithWorkers(2))
	pool.Start(context.Background())
	defer pool.Stop()

	var ran bool
	err := pool.Submit(context.Background(), func() { ran = true })
	require.NoError(t, err)
	require.True(t, ran, "Submit должен вернуться после выполнения задачи")
}

func TestPool_DefaultWorkers(t *testing.T) {
	pool := NewPool(WithWorkers(0))
	require.Equal(t, defaultWorkers, pool.Workers())
}

func TestPool_ConcurrencyBoundedByWorkers(t *testing.T) {
	const workers = 3
	pool := NewPool(WithWorkers(workers))
	pool.Start(context.Background())
	defer pool.Stop()

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), func() {
				n := active.Add(1)
				for {
					cur := maxSeen.Load()
					if n <= cur || maxSeen.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxSeen.Load(), int32(workers))
	require.Positive(t, maxSeen.Load())
}

func TestPool_SubmitHonoursContextWhileQueued(t *testing.T) {
	pool := NewPool(WithWorkers(1))
	pool.Start(context.Background())
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	err := pool.Submit(ctx, func() { ran.Store(true) })
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.False(t, ran.Load(), "задача, не взятая воркером, не должна выполняться")
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(WithWorkers(1))
	pool.Start(context.Background())
	pool.Stop()

	err := pool.Submit(context.Background(), func() {})
	require.ErrorIs(t, err, ErrStopped)

	// Повторная остановка безопасна.
	pool.Stop()
}

func TestPool_RecoversFromPanic(t *testing.T) {
	pool := NewPool(WithWorkers(1))
	pool.Start(context.Background())
	defer pool.Stop()

	err := pool.Submit(context.Background(), func() { panic("boom") })
	require.True(t, errors.Is(err, ErrJobPanicked))

	// Воркер продолжает обслуживать задачи после паники.
	var ran bool
	require.NoError(t, pool.Submit(context.Background(), func() { ran = true }))
	require.True(t, ran)
}

func TestPool_StopWaitsForRunningJob(t *testing.T) {
	pool := NewPool(WithWorkers(1))
	pool.Start(context.Background())

	started := make(chan struct{})
	var finished atomic.Bool
	go func() {
		_ = pool.Submit(context.Background(), func() {
			close(started)
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
		})
	}()
	<-started

	pool.Stop()
	require.True(t, finished.Load())
}
