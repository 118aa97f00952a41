package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedsync/app/model"
)

type AccountRepo struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

var _ AccountRepository = (*AccountRepo)(nil)

// UpsertAccount registers an account by name, updating provider and
// credentials key on conflict, and returns the row id.
func (r *AccountRepo) UpsertAccount(ctx context.Context, account model.Account) (string, error) {
	id := account.ID
	if id == "" {
		id = uuid.NewString()
	}

	var rowID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, name, provider, credentials_key, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			provider = excluded.provider,
			credentials_key = excluded.credentials_key,
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, id, account.Name, string(account.Provider), account.CredentialsKey, account.Enabled).Scan(&rowID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert account: %w", err)
	}

	return rowID, nil
}

const accountColumns = `id, name, provider, credentials_key, enabled, last_article_fetch, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var provider string
	err := row.Scan(&a.ID, &a.Name, &provider, &a.CredentialsKey, &a.Enabled,
		&a.LastArticleFetch, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Provider = model.Provider(provider)
	return &a, nil
}

func (r *AccountRepo) GetAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepo) GetAccountByName(ctx context.Context, name string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by name: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) SetAccountEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set account enabled: %w", err)
	}
	return nil
}

func (r *AccountRepo) SetLastArticleFetch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET last_article_fetch = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set last article fetch: %w", err)
	}
	return nil
}

// DeleteAccount removes the account; folders, feeds, articles, statuses and
// pending entries cascade.
func (r *AccountRepo) DeleteAccount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// placeholders returns a "?, ?, ..." fragment for n bind parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
