package database

import (
	"context"
	"fmt"

	"feedsync/app/model"
)

// SyncStatusRepo is the durable pending-status queue. An enqueue is flushed
// to disk before it returns, so a crash between a UI action and the next
// successful push cannot drop the mutation.
type SyncStatusRepo struct {
	db *DB
}

func NewSyncStatusRepository(db *DB) *SyncStatusRepo {
	return &SyncStatusRepo{db: db}
}

var _ SyncStatusRepository = (*SyncStatusRepo)(nil)

// Enqueue records a local status mutation awaiting delivery. A newer
// mutation for the same (article, key) overwrites the outstanding entry.
func (r *SyncStatusRepo) Enqueue(ctx context.Context, accountID, articleID string, key model.StatusKey, flag bool) error {
	if !key.Valid() {
		return fmt.Errorf("invalid status key: %s", key)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_statuses (account_id, article_id, status_key, flag, selected, queued_at)
		VALUES (?, ?, ?, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id, article_id, status_key) DO UPDATE SET
			flag = excluded.flag,
			selected = 0,
			queued_at = CURRENT_TIMESTAMP
	`, accountID, articleID, string(key), flag)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending status: %w", err)
	}

	return nil
}

// SelectPendingIDs returns every article id with an outstanding entry for
// the key, selected or not. These ids are authoritative locally and must not
// be overwritten by a remote status read.
func (r *SyncStatusRepo) SelectPendingIDs(ctx context.Context, accountID string, key model.StatusKey) (model.IDSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT article_id FROM sync_statuses WHERE account_id = ? AND status_key = ?
	`, accountID, string(key))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending ids: %w", err)
	}
	defer rows.Close()

	ids := make(model.IDSet)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending id: %w", err)
		}
		ids.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending ids: %w", err)
	}

	return ids, nil
}

// SelectForProcessing marks up to limit entries matching (key, flag) as
// selected and returns their article ids. Selected entries stay in the
// queue until DeleteSelected confirms delivery; ResetSelected returns them
// for a later retry.
func (r *SyncStatusRepo) SelectForProcessing(ctx context.Context, accountID string, key model.StatusKey, flag bool, limit int) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT article_id FROM sync_statuses
		WHERE account_id = ? AND status_key = ? AND flag = ? AND selected = 0
		ORDER BY queued_at
		LIMIT ?
	`, accountID, string(key), flag, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending entries: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pending entry: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending entries: %w", err)
	}

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	query := `
		UPDATE sync_statuses SET selected = 1
		WHERE account_id = ? AND status_key = ? AND article_id IN (` + placeholders(len(ids)) + `)`
	args := []any{accountID, string(key)}
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to mark entries selected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit selection: %w", err)
	}

	return ids, nil
}

// DeleteSelected removes entries whose delivery was confirmed. Only rows
// still marked selected are removed: an entry re-enqueued while the send was
// in flight has selected reset to 0 and must survive for the next delivery.
func (r *SyncStatusRepo) DeleteSelected(ctx context.Context, accountID string, ids []string, key model.StatusKey) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		DELETE FROM sync_statuses
		WHERE account_id = ? AND status_key = ? AND selected = 1
		AND article_id IN (` + placeholders(len(ids)) + `)`
	args := []any{accountID, string(key)}
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete delivered entries: %w", err)
	}

	return nil
}

// ResetSelected returns entries to the queue after a failed push so the next
// pass retries them.
func (r *SyncStatusRepo) ResetSelected(ctx context.Context, accountID string, ids []string, key model.StatusKey) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE sync_statuses SET selected = 0
		WHERE account_id = ? AND status_key = ? AND article_id IN (` + placeholders(len(ids)) + `)`
	args := []any{accountID, string(key)}
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to reset selected entries: %w", err)
	}

	return nil
}

// ResetAllSelected returns every selected entry of the account to the queue.
// Runs before a drain starts: selected rows at that point are leftovers of a
// run that died between selection and delete confirmation, and would
// otherwise never be selectable again.
func (r *SyncStatusRepo) ResetAllSelected(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE sync_statuses SET selected = 0 WHERE account_id = ? AND selected = 1
	`, accountID); err != nil {
		return fmt.Errorf("failed to reset selected entries: %w", err)
	}
	return nil
}

func (r *SyncStatusRepo) PendingCount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_statuses WHERE account_id = ?
	`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return count, nil
}
