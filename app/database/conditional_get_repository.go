package database

import (
	"context"
	"database/sql"
	"fmt"

	"feedsync/app/model"
)

// ConditionalGetRepo stores the last validator headers per (account,
// resource) so unchanged resources produce empty network responses.
type ConditionalGetRepo struct {
	db *DB
}

func NewConditionalGetRepository(db *DB) *ConditionalGetRepo {
	return &ConditionalGetRepo{db: db}
}

var _ ConditionalGetRepository = (*ConditionalGetRepo)(nil)

func (r *ConditionalGetRepo) Validator(ctx context.Context, accountID, resourceKey string) (*model.Validator, error) {
	var v model.Validator
	err := r.db.QueryRowContext(ctx, `
		SELECT etag, last_modified FROM conditional_gets
		WHERE account_id = ? AND resource_key = ?
	`, accountID, resourceKey).Scan(&v.ETag, &v.LastModified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validator: %w", err)
	}
	return &v, nil
}

func (r *ConditionalGetRepo) Store(ctx context.Context, accountID, resourceKey string, v model.Validator) error {
	if v.IsZero() {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conditional_gets (account_id, resource_key, etag, last_modified, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id, resource_key) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			updated_at = CURRENT_TIMESTAMP
	`, accountID, resourceKey, v.ETag, v.LastModified)
	if err != nil {
		return fmt.Errorf("failed to store validator: %w", err)
	}

	return nil
}

// Expire drops a stored validator so the next fetch of the resource is
// unconditional. Used when a rename is only observable through a resource
// the provider does not re-validate.
func (r *ConditionalGetRepo) Expire(ctx context.Context, accountID, resourceKey string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM conditional_gets WHERE account_id = ? AND resource_key = ?
	`, accountID, resourceKey)
	if err != nil {
		return fmt.Errorf("failed to expire validator: %w", err)
	}
	return nil
}
