package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const dispatchBatchSize = 100

// Scheduler periodically moves due retries onto the work queue. It never
// executes a retry itself, keeping timers decoupled from request handling.
type Scheduler struct {
	svc      *Service
	queue    Queue
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler builds a retry scheduler.
func NewScheduler(svc *Service, queue Queue, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{svc: svc, queue: queue, interval: interval, logger: logger}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	due, err := s.svc.DueForRetry(ctx, time.Now().UTC(), dispatchBatchSize)
	if err != nil {
		s.logger.Error("list due retries", "error", err)
		return
	}

	for _, stl := range due {
		if err := s.queue.Enqueue(ctx, stl.ID); err != nil {
			s.logger.Error("enqueue retry", "settlement_id", stl.ID, "error", err)
			continue
		}
		if err := s.svc.MarkDispatched(ctx, stl.ID); err != nil {
			s.logger.Error("mark dispatched", "settlement_id", stl.ID, "error", err)
		}
		s.logger.Info("settlement retry dispatched", "settlement_id", stl.ID, "retry_count", stl.RetryCount)
	}
}

// Worker consumes the queue and executes retries.
type Worker struct {
	svc    *Service
	queue  Queue
	logger *slog.Logger
}

// NewWorker builds a retry worker.
func NewWorker(svc *Service, queue Queue, logger *slog.Logger) *Worker {
	return &Worker{svc: svc, queue: queue, logger: logger}
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		id, err := w.queue.Dequeue(ctx)
		if errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue retry", "error", err)
			continue
		}

		if _, err := w.svc.ExecuteRetry(ctx, id); err != nil {
			w.logger.Error("execute retry", "settlement_id", id, "error", err)
			continue
		}
		w.logger.Info("settlement retry executed", "settlement_id", id)
	}
}
