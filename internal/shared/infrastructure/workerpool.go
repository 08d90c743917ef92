package infrastructure

import (
	"context"
	"fmt"
	"sync"
)

// Task représente une tâche à exécuter
type Task func(ctx context.Context) error

// WorkerPool gère un pool de workers pour traiter des tâches indépendantes en parallèle
// (une analyse d'élasticité par produit, par exemple). Chaque tâche écrit son
// résultat dans son propre emplacement: le pool ne partage aucun état mutable.
type WorkerPool struct {
	workerCount int
	tasks       chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu     sync.Mutex
	errors []error
}

// NewWorkerPool crée un nouveau pool de workers rattaché au contexte parent
func NewWorkerPool(parent context.Context, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &WorkerPool{
		workerCount: workerCount,
		tasks:       make(chan Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// worker est la routine d'exécution des tâches
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}
			if err := task(wp.ctx); err != nil {
				wp.mu.Lock()
				wp.errors = append(wp.errors, err)
				wp.mu.Unlock()
			}
		}
	}
}

// Start démarre les workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Submit soumet une tâche au pool
func (wp *WorkerPool) Submit(task Task) error {
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is stopped")
	case wp.tasks <- task:
		return nil
	}
}

// Wait attend que toutes les tâches soient terminées, ferme le canal de tâches
// et retourne les erreurs remontées par les tâches
func (wp *WorkerPool) Wait() []error {
	close(wp.tasks)
	wp.wg.Wait()
	wp.cancel()
	return wp.Errors()
}

// Stop arrête le pool immédiatement
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}

// Errors retourne une copie des erreurs collectées
func (wp *WorkerPool) Errors() []error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	return append([]error(nil), wp.errors...)
}
