package sync

import (
	"context"
	"log/slog"

	"feedsync/app/database"
	"feedsync/app/model"
	"feedsync/app/provider"
)

// statusBatch maps one (key, flag) pending combination onto the provider
// action that carries it.
type statusBatch struct {
	key    model.StatusKey
	flag   bool
	action provider.StatusAction
}

var remoteBatches = []statusBatch{
	{model.StatusRead, true, provider.ActionMarkRead},
	{model.StatusRead, false, provider.ActionKeepUnread},
	{model.StatusStarred, true, provider.ActionMarkSaved},
	{model.StatusStarred, false, provider.ActionMarkUnsaved},
}

// drainPending pushes queued status mutations to the provider in chunks.
// Each chunk is selected, sent, and only then deleted; a failed send resets
// the selection so the entries survive for the next pass. Entries stay
// authoritative until the delete, which is what makes a crash mid-send safe:
// the worst case is a resend, and status application is idempotent remotely.
func drainPending(ctx context.Context, pending database.SyncStatusRepository, client provider.Client, accountID string, batchSize int, logger *slog.Logger) error {
	// Entries still marked selected are leftovers of a run that died between
	// selection and delete confirmation. The drain runs under the pass gate,
	// so no send is in flight and they can rejoin the queue.
	if err := pending.ResetAllSelected(ctx, accountID); err != nil {
		return err
	}

	for _, batch := range remoteBatches {
		for {
			ids, err := pending.SelectForProcessing(ctx, accountID, batch.key, batch.flag, batchSize)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				break
			}

			if err := client.SendStatus(ctx, ids, batch.action); err != nil {
				if resetErr := pending.ResetSelected(ctx, accountID, ids, batch.key); resetErr != nil {
					logger.Error("Failed to reset pending statuses after send failure",
						"account_id", accountID, "key", batch.key, "error", resetErr)
				}
				return err
			}

			if err := pending.DeleteSelected(ctx, accountID, ids, batch.key); err != nil {
				return err
			}
			logger.Debug("Sent pending statuses",
				"account_id", accountID, "key", batch.key, "flag", batch.flag, "count", len(ids))
		}
	}

	// userDeleted has no remote representation; acknowledge the entries so
	// the queue drains instead of growing forever.
	for _, flag := range []bool{true, false} {
		for {
			ids, err := pending.SelectForProcessing(ctx, accountID, model.StatusUserDeleted, flag, batchSize)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				break
			}
			if err := pending.DeleteSelected(ctx, accountID, ids, model.StatusUserDeleted); err != nil {
				return err
			}
		}
	}

	return nil
}
