package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedsync/app/provider"
	"feedsync/app/sync"
)

type RefreshAccountTask struct {
	Task
	coordinator sync.Coordinator
}

func NewRefreshAccountTask(coordinator sync.Coordinator) *RefreshAccountTask {
	return &RefreshAccountTask{
		Task:        NewTask(TaskTypeRefreshAccount, coordinator.AccountID()),
		coordinator: coordinator,
	}
}

func (t *RefreshAccountTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.coordinator.RefreshAll(ctx)
	if err != nil {
		if errors.Is(err, sync.ErrPassInProgress) {
			slog.Debug("Refresh already running, skipping", "account", t.AccountID)
			return nil
		}
		// Credential and suspension failures don't clear up on their own;
		// retrying just hammers the provider.
		switch provider.KindOf(err) {
		case provider.KindAuthenticationRequired, provider.KindSuspended:
			t.RetryCount = t.MaxRetries
		}
		return fmt.Errorf("failed to refresh account: %w", err)
	}

	slog.Info("Task completed",
		"type", "RefreshAccount",
		"account", t.AccountID,
		"duration", t.GetDuration())

	return nil
}
