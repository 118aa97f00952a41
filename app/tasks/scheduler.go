package tasks

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"feedsync/app/cfg"
	"feedsync/app/sync"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	registry      *sync.Registry
	interval      time.Duration
	flushInterval time.Duration
	workerCount   int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            gosync.WaitGroup
	taskQueue     chan TaskInterface
}

func NewScheduler(registry *sync.Registry) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		registry:      registry,
		interval:      time.Duration(cfg.SchedulerInterval) * time.Second,
		flushInterval: time.Duration(cfg.FlushInterval) * time.Second,
		workerCount:   cfg.WorkerCount,
		ctx:           ctx,
		cancel:        cancel,
		taskQueue:     make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueRefreshTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueRefreshTasks()
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueFlushTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueRefreshTasks() {
	coordinators := s.registry.All()
	if len(coordinators) == 0 {
		slog.Debug("No accounts configured")
		return
	}

	slog.Debug("Scheduling account refreshes", "count", len(coordinators))

	for _, coordinator := range coordinators {
		task := NewRefreshAccountTask(coordinator)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RefreshAccountTask", "account", coordinator.AccountID(), "error", err)
		}
	}
}

func (s *Scheduler) enqueueFlushTasks() {
	for _, coordinator := range s.registry.All() {
		task := NewFlushStatusesTask(coordinator)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue FlushStatusesTask", "account", coordinator.AccountID(), "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "account", task.GetAccountID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
