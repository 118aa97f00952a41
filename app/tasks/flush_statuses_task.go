package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedsync/app/sync"
)

// FlushStatusesTask delivers an account's queued status mutations between
// full passes so read/star changes reach the provider promptly.
type FlushStatusesTask struct {
	Task
	coordinator sync.Coordinator
}

func NewFlushStatusesTask(coordinator sync.Coordinator) *FlushStatusesTask {
	return &FlushStatusesTask{
		Task:        NewTask(TaskTypeFlushStatuses, coordinator.AccountID()),
		coordinator: coordinator,
	}
}

func (t *FlushStatusesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.coordinator.FlushPending(ctx)
	if err != nil {
		if errors.Is(err, sync.ErrPassInProgress) {
			// The running pass delivers the queue itself.
			slog.Debug("Pass in progress, skipping flush", "account", t.AccountID)
			return nil
		}
		return fmt.Errorf("failed to flush pending statuses: %w", err)
	}

	slog.Debug("Task completed",
		"type", "FlushStatuses",
		"account", t.AccountID,
		"duration", t.GetDuration())

	return nil
}
