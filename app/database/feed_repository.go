package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"feedsync/app/model"
)

// FeedRepo handles database operations for the folder/feed tree.
type FeedRepo struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

var _ FeedRepository = (*FeedRepo)(nil)

func (r *FeedRepo) GetFolders(ctx context.Context, accountID string) ([]model.Folder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, name, external_id, created_at
		FROM folders
		WHERE account_id = ?
		ORDER BY name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get folders: %w", err)
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Name, &f.ExternalID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder row: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folder rows: %w", err)
	}

	return folders, nil
}

// EnsureFolder returns the existing folder with the given name, creating it
// when absent. Folder names are unique per account.
func (r *FeedRepo) EnsureFolder(ctx context.Context, accountID, name, externalID string) (*model.Folder, error) {
	var f model.Folder
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, external_id, created_at
		FROM folders WHERE account_id = ? AND name = ?
	`, accountID, name).Scan(&f.ID, &f.AccountID, &f.Name, &f.ExternalID, &f.CreatedAt)
	if err == nil {
		if externalID != "" && externalID != f.ExternalID {
			if _, err := r.db.ExecContext(ctx, `UPDATE folders SET external_id = ? WHERE id = ?`, externalID, f.ID); err != nil {
				return nil, fmt.Errorf("failed to update folder external id: %w", err)
			}
			f.ExternalID = externalID
		}
		return &f, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up folder: %w", err)
	}

	f = model.Folder{ID: uuid.NewString(), AccountID: accountID, Name: name, ExternalID: externalID}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO folders (id, account_id, name, external_id) VALUES (?, ?, ?, ?)
	`, f.ID, f.AccountID, f.Name, f.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	return &f, nil
}

// DeleteFolder removes a folder row. Member feeds keep their rows; their
// folder_id is cleared by the schema's ON DELETE SET NULL, which is what
// reparenting to the account top level means here.
func (r *FeedRepo) DeleteFolder(ctx context.Context, folderID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, folderID)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

const feedColumns = `id, account_id, folder_id, feed_id, external_id, url, home_page_url, name, edited_name, created_at, updated_at`

func (r *FeedRepo) scanFeed(ctx context.Context, row interface{ Scan(...any) error }) (*model.Feed, error) {
	var f model.Feed
	err := row.Scan(&f.ID, &f.AccountID, &f.FolderID, &f.FeedID, &f.ExternalID,
		&f.URL, &f.HomePageURL, &f.Name, &f.EditedName, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FeedRepo) loadRelationships(ctx context.Context, feeds []model.Feed) error {
	for i := range feeds {
		rows, err := r.db.QueryContext(ctx, `
			SELECT folder_name, relationship_id FROM folder_feeds WHERE feed_row_id = ?
		`, feeds[i].ID)
		if err != nil {
			return fmt.Errorf("failed to get folder relationships: %w", err)
		}

		rels := make(map[string]string)
		for rows.Next() {
			var name, rel string
			if err := rows.Scan(&name, &rel); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan folder relationship: %w", err)
			}
			rels[name] = rel
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating folder relationships: %w", err)
		}
		if len(rels) > 0 {
			feeds[i].FolderRelationship = rels
		}
	}
	return nil
}

func (r *FeedRepo) GetFeeds(ctx context.Context, accountID string) ([]model.Feed, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+feedColumns+` FROM feeds WHERE account_id = ? ORDER BY name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []model.Feed
	for rows.Next() {
		f, err := r.scanFeed(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	if err := r.loadRelationships(ctx, feeds); err != nil {
		return nil, err
	}

	return feeds, nil
}

func (r *FeedRepo) GetFeedByFeedID(ctx context.Context, accountID, feedID string) (*model.Feed, error) {
	f, err := r.scanFeed(ctx, r.db.QueryRowContext(ctx, `
		SELECT `+feedColumns+` FROM feeds WHERE account_id = ? AND feed_id = ?
	`, accountID, feedID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	feeds := []model.Feed{*f}
	if err := r.loadRelationships(ctx, feeds); err != nil {
		return nil, err
	}
	return &feeds[0], nil
}

// InsertFeed creates a feed row. The (account, provider feed id) mapping is
// bijective; a second insert for the same provider id fails on the unique
// constraint rather than silently merging.
func (r *FeedRepo) InsertFeed(ctx context.Context, feed model.Feed) (string, error) {
	id := feed.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (id, account_id, folder_id, feed_id, external_id, url, home_page_url, name, edited_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, feed.AccountID, feed.FolderID, feed.FeedID, feed.ExternalID,
		feed.URL, feed.HomePageURL, feed.Name, feed.EditedName)
	if err != nil {
		return "", fmt.Errorf("failed to insert feed: %w", err)
	}

	for folderName, rel := range feed.FolderRelationship {
		if err := r.SaveFolderRelationship(ctx, id, folderName, rel); err != nil {
			return "", err
		}
	}

	return id, nil
}

// ApplyRemoteMetadata writes the provider's current metadata onto a matched
// local feed. When the provider renamed the feed, the locally edited name is
// cleared so the provider name wins again.
func (r *FeedRepo) ApplyRemoteMetadata(ctx context.Context, rowID, name, homePageURL, externalID string, renamed bool) error {
	var err error
	if renamed {
		_, err = r.db.ExecContext(ctx, `
			UPDATE feeds
			SET name = ?, home_page_url = ?, external_id = ?, edited_name = '', updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, name, homePageURL, externalID, rowID)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE feeds
			SET name = ?, home_page_url = ?, external_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, name, homePageURL, externalID, rowID)
	}
	if err != nil {
		return fmt.Errorf("failed to apply remote feed metadata: %w", err)
	}
	return nil
}

func (r *FeedRepo) SetEditedName(ctx context.Context, rowID, editedName string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds SET edited_name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, editedName, rowID)
	if err != nil {
		return fmt.Errorf("failed to set edited name: %w", err)
	}
	return nil
}

// SetFeedFolder moves a feed between a folder and the account top level
// (folderID nil).
func (r *FeedRepo) SetFeedFolder(ctx context.Context, rowID string, folderID *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds SET folder_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, folderID, rowID)
	if err != nil {
		return fmt.Errorf("failed to set feed folder: %w", err)
	}
	return nil
}

func (r *FeedRepo) DeleteFeed(ctx context.Context, rowID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, rowID)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return nil
}

func (r *FeedRepo) SaveFolderRelationship(ctx context.Context, feedRowID, folderName, relationshipID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO folder_feeds (feed_row_id, folder_name, relationship_id)
		VALUES (?, ?, ?)
		ON CONFLICT (feed_row_id, folder_name) DO UPDATE SET relationship_id = excluded.relationship_id
	`, feedRowID, folderName, relationshipID)
	if err != nil {
		return fmt.Errorf("failed to save folder relationship: %w", err)
	}
	return nil
}

func (r *FeedRepo) ClearFolderRelationship(ctx context.Context, feedRowID, folderName string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM folder_feeds WHERE feed_row_id = ? AND folder_name = ?
	`, feedRowID, folderName)
	if err != nil {
		return fmt.Errorf("failed to clear folder relationship: %w", err)
	}
	return nil
}
