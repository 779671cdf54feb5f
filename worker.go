package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gofalre.io/catalog/models"
)

type EventProcessor interface {
	ProcessEvent(ctx context.Context, orderEvent *models.OrderEvent) error
}

type WorkerPool struct {
	tasks     chan func()
	wg        sync.WaitGroup
	logger    *zap.Logger
	processor EventProcessor
}

func NewWorkerPool(size int, processor EventProcessor, logger *zap.Logger) *WorkerPool {
	wp := &WorkerPool{
		tasks:     make(chan func(), 1000),
		logger:    logger,
		processor: processor,
	}

	wp.wg.Add(size)
	for i := 0; i < size; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task()
	}
}

func (wp *WorkerPool) Submit(ctx context.Context, orderEvent *models.OrderEvent) {
	wp.tasks <- func() {
		if err := wp.processor.ProcessEvent(ctx, orderEvent); err != nil {
			wp.logger.Error("Failed to process order event",
				zap.Error(err),
				zap.String("event_type", string(orderEvent.Type)),
				zap.String("event_id", orderEvent.ID))
		}
	}
}

// Shutdown 不再接受新任務，等所有 worker 把佇列清空後才返回
func (wp *WorkerPool) Shutdown() {
	close(wp.tasks)
	wp.wg.Wait()
}
