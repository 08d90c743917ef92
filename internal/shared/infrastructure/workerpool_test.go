package infrastructure

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsEveryTask(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 4)
	wp.Start()

	var done int64
	for i := 0; i < 100; i++ {
		require.NoError(t, wp.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&done, 1)
			return nil
		}))
	}

	errs := wp.Wait()
	assert.Empty(t, errs)
	assert.Equal(t, int64(100), atomic.LoadInt64(&done))
}

func TestWorkerPool_CollectsErrors(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 2)
	wp.Start()

	boom := errors.New("boom")
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, wp.Submit(func(ctx context.Context) error {
			if i%2 == 0 {
				return boom
			}
			return nil
		}))
	}

	errs := wp.Wait()
	require.Len(t, errs, 5)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 1)
	wp.Start()
	wp.Stop()

	err := wp.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestWorkerPool_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	wp := NewWorkerPool(parent, 2)
	wp.Start()

	seen := make(chan error, 1)
	require.NoError(t, wp.Submit(func(ctx context.Context) error {
		<-ctx.Done()
		seen <- ctx.Err()
		return nil
	}))

	cancel()
	wp.Stop()

	select {
	case err := <-seen:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not observe cancellation")
	}
}

func TestWorkerPool_NonPositiveWorkerCount(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 0)
	wp.Start()

	var ran bool
	require.NoError(t, wp.Submit(func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.Empty(t, wp.Wait())
	assert.True(t, ran)
}

// ========================================
// Benchmarks: Worker Pool with Different Worker Counts
// ========================================

func benchmarkWorkerPool(b *testing.B, workers int, task Task) {
	wp := NewWorkerPool(context.Background(), workers)
	wp.Start()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = wp.Submit(task)
	}
	_ = wp.Wait()
}

// BenchmarkWorkerPool_1Worker_FastTasks teste avec 1 seul worker
func BenchmarkWorkerPool_1Worker_FastTasks(b *testing.B) {
	benchmarkWorkerPool(b, 1, func(ctx context.Context) error {
		_ = 1 + 1
		return nil
	})
}

// BenchmarkWorkerPool_4Workers_FastTasks teste avec 4 workers (défaut)
func BenchmarkWorkerPool_4Workers_FastTasks(b *testing.B) {
	benchmarkWorkerPool(b, 4, func(ctx context.Context) error {
		_ = 1 + 1
		return nil
	})
}

// BenchmarkWorkerPool_4Workers_MediumTasks simule une régression par produit
func BenchmarkWorkerPool_4Workers_MediumTasks(b *testing.B) {
	benchmarkWorkerPool(b, 4, func(ctx context.Context) error {
		sum := 0.0
		for j := 1; j < 2000; j++ {
			sum += 1.0 / float64(j)
		}
		_ = sum
		return nil
	})
}

// ========================================
// Benchmarks: Throughput
// ========================================

// BenchmarkWorkerPool_Throughput_1000Tasks mesure le débit pour 1000 produits
func BenchmarkWorkerPool_Throughput_1000Tasks(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		wp := NewWorkerPool(context.Background(), 4)
		wp.Start()

		var counter int64
		for j := 0; j < 1000; j++ {
			_ = wp.Submit(func(ctx context.Context) error {
				atomic.AddInt64(&counter, 1)
				return nil
			})
		}
		_ = wp.Wait()
	}
}

// BenchmarkComparison_WorkerPool_vs_Goroutines compare au lancement direct de goroutines
func BenchmarkComparison_WorkerPool_vs_Goroutines(b *testing.B) {
	b.Run("WorkerPool", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			wp := NewWorkerPool(context.Background(), 4)
			wp.Start()
			for j := 0; j < 100; j++ {
				_ = wp.Submit(func(ctx context.Context) error { return nil })
			}
			_ = wp.Wait()
		}
	})

	b.Run("Goroutines", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			var wg sync.WaitGroup
			for j := 0; j < 100; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
				}()
			}
			wg.Wait()
		}
	})
}
