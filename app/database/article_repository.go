package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"feedsync/app/model"
)

// ArticleRepo handles database operations for articles and their statuses.
type ArticleRepo struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

var _ ArticleRepository = (*ArticleRepo)(nil)

// UpsertArticles merges fetched articles in one transaction. Content fields
// are overwritten (servers update previously fetched items); the status row
// is created with read = defaultRead only when the article is new, so local
// status never regresses from a content merge. Returns the number of newly
// seen articles.
func (r *ArticleRepo) UpsertArticles(ctx context.Context, accountID string, articles []model.Article, defaultRead bool) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, a := range articles {
		authors, err := json.Marshal(a.Authors)
		if err != nil {
			return 0, fmt.Errorf("failed to encode authors: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO articles (id, account_id, feed_id, title, url, external_url, summary, content_html, authors, published, modified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (account_id, id) DO UPDATE SET
				title = excluded.title,
				url = excluded.url,
				external_url = excluded.external_url,
				summary = excluded.summary,
				content_html = excluded.content_html,
				authors = excluded.authors,
				published = excluded.published,
				modified = excluded.modified
		`, a.ID, accountID, a.FeedID, a.Title, a.URL, a.ExternalURL, a.Summary,
			a.ContentHTML, string(authors), a.Published, a.Modified)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert article: %w", err)
		}

		statusRes, err := tx.ExecContext(ctx, `
			INSERT INTO article_statuses (article_id, account_id, read)
			VALUES (?, ?, ?)
			ON CONFLICT (account_id, article_id) DO NOTHING
		`, a.ID, accountID, defaultRead)
		if err != nil {
			return 0, fmt.Errorf("failed to ensure article status: %w", err)
		}
		if n, err := statusRes.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit article upsert: %w", err)
	}

	return inserted, nil
}

func (r *ArticleRepo) GetArticles(ctx context.Context, accountID, feedID string, limit int) ([]model.Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, feed_id, title, url, external_url, summary, content_html, authors, published, modified, created_at
		FROM articles
		WHERE account_id = ? AND feed_id = ?
		ORDER BY published DESC
		LIMIT ?
	`, accountID, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		var authors string
		err := rows.Scan(&a.ID, &a.AccountID, &a.FeedID, &a.Title, &a.URL, &a.ExternalURL,
			&a.Summary, &a.ContentHTML, &authors, &a.Published, &a.Modified, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		if authors != "" {
			if err := json.Unmarshal([]byte(authors), &a.Authors); err != nil {
				return nil, fmt.Errorf("failed to decode authors: %w", err)
			}
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) GetStatus(ctx context.Context, accountID, articleID string) (*model.ArticleStatus, error) {
	var s model.ArticleStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT article_id, read, starred, user_deleted, date_arrived
		FROM article_statuses
		WHERE account_id = ? AND article_id = ?
	`, accountID, articleID).Scan(&s.ArticleID, &s.Read, &s.Starred, &s.UserDeleted, &s.DateArrived)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article status: %w", err)
	}
	return &s, nil
}

func (r *ArticleRepo) statusIDs(ctx context.Context, accountID, condition string) (model.IDSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT article_id FROM article_statuses WHERE account_id = ? AND `+condition,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get article ids (%s): %w", condition, err)
	}
	defer rows.Close()

	ids := make(model.IDSet)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article ids: %w", err)
	}

	return ids, nil
}

func (r *ArticleRepo) UnreadArticleIDs(ctx context.Context, accountID string) (model.IDSet, error) {
	return r.statusIDs(ctx, accountID, "read = 0")
}

func (r *ArticleRepo) StarredArticleIDs(ctx context.Context, accountID string) (model.IDSet, error) {
	return r.statusIDs(ctx, accountID, "starred = 1")
}

func statusColumn(key model.StatusKey) (string, error) {
	switch key {
	case model.StatusRead:
		return "read", nil
	case model.StatusStarred:
		return "starred", nil
	case model.StatusUserDeleted:
		return "user_deleted", nil
	}
	return "", fmt.Errorf("unknown status key: %s", key)
}

// MarkArticles flips one status flag for a batch of article ids in a single
// transaction. Status rows are created when missing: a remote unread or
// starred set can reference articles whose bodies have not arrived yet, and
// those statuses must stick so the missing-article fetch can find them.
func (r *ArticleRepo) MarkArticles(ctx context.Context, accountID string, ids []string, key model.StatusKey, flag bool) error {
	if len(ids) == 0 {
		return nil
	}

	column, err := statusColumn(key)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO article_statuses (article_id, account_id, `+column+`)
			VALUES (?, ?, ?)
			ON CONFLICT (account_id, article_id) DO UPDATE SET `+column+` = excluded.`+column,
			id, accountID, flag)
		if err != nil {
			return fmt.Errorf("failed to mark article %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status batch: %w", err)
	}

	return nil
}

// ArticleIDsMissingBodies returns ids that have a status row newer than
// cutoff but no article row. These come from unread/starred id sets naming
// articles the entry fetch has not covered.
func (r *ArticleRepo) ArticleIDsMissingBodies(ctx context.Context, accountID string, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.article_id
		FROM article_statuses s
		LEFT JOIN articles a ON a.account_id = s.account_id AND a.id = s.article_id
		WHERE s.account_id = ? AND s.date_arrived > ? AND a.id IS NULL
	`, accountID, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get missing article ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan missing article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missing article ids: %w", err)
	}

	return ids, nil
}

func (r *ArticleRepo) DeleteArticlesForFeed(ctx context.Context, accountID, feedID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM article_statuses
		WHERE account_id = ? AND article_id IN (
			SELECT id FROM articles WHERE account_id = ? AND feed_id = ?
		)
	`, accountID, accountID, feedID)
	if err != nil {
		return fmt.Errorf("failed to delete article statuses for feed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM articles WHERE account_id = ? AND feed_id = ?
	`, accountID, feedID)
	if err != nil {
		return fmt.Errorf("failed to delete articles for feed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit article deletion: %w", err)
	}

	return nil
}

func (r *ArticleRepo) CountUnread(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM article_statuses WHERE account_id = ? AND read = 0 AND user_deleted = 0
	`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread articles: %w", err)
	}
	return count, nil
}
