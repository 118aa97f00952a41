package database

import (
	"context"
	"time"

	"feedsync/app/model"
)

type AccountRepository interface {
	UpsertAccount(ctx context.Context, account model.Account) (string, error)
	GetAccounts(ctx context.Context) ([]model.Account, error)
	GetAccountByName(ctx context.Context, name string) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	SetAccountEnabled(ctx context.Context, id string, enabled bool) error
	SetLastArticleFetch(ctx context.Context, id string, at time.Time) error
	DeleteAccount(ctx context.Context, id string) error
}

type FeedRepository interface {
	GetFolders(ctx context.Context, accountID string) ([]model.Folder, error)
	EnsureFolder(ctx context.Context, accountID, name, externalID string) (*model.Folder, error)
	DeleteFolder(ctx context.Context, folderID string) error

	GetFeeds(ctx context.Context, accountID string) ([]model.Feed, error)
	GetFeedByFeedID(ctx context.Context, accountID, feedID string) (*model.Feed, error)
	InsertFeed(ctx context.Context, feed model.Feed) (string, error)
	ApplyRemoteMetadata(ctx context.Context, rowID, name, homePageURL, externalID string, renamed bool) error
	SetEditedName(ctx context.Context, rowID, editedName string) error
	SetFeedFolder(ctx context.Context, rowID string, folderID *string) error
	DeleteFeed(ctx context.Context, rowID string) error

	SaveFolderRelationship(ctx context.Context, feedRowID, folderName, relationshipID string) error
	ClearFolderRelationship(ctx context.Context, feedRowID, folderName string) error
}

type ArticleRepository interface {
	UpsertArticles(ctx context.Context, accountID string, articles []model.Article, defaultRead bool) (int, error)
	GetArticles(ctx context.Context, accountID, feedID string, limit int) ([]model.Article, error)
	GetStatus(ctx context.Context, accountID, articleID string) (*model.ArticleStatus, error)
	UnreadArticleIDs(ctx context.Context, accountID string) (model.IDSet, error)
	StarredArticleIDs(ctx context.Context, accountID string) (model.IDSet, error)
	MarkArticles(ctx context.Context, accountID string, ids []string, key model.StatusKey, flag bool) error
	ArticleIDsMissingBodies(ctx context.Context, accountID string, cutoff time.Time) ([]string, error)
	DeleteArticlesForFeed(ctx context.Context, accountID, feedID string) error
	CountUnread(ctx context.Context, accountID string) (int, error)
}

// SyncStatusRepository is the durable queue of not-yet-acknowledged local
// status mutations. Entries are only removed after the provider call that
// carried them succeeds.
type SyncStatusRepository interface {
	Enqueue(ctx context.Context, accountID, articleID string, key model.StatusKey, flag bool) error
	SelectPendingIDs(ctx context.Context, accountID string, key model.StatusKey) (model.IDSet, error)
	SelectForProcessing(ctx context.Context, accountID string, key model.StatusKey, flag bool, limit int) ([]string, error)
	DeleteSelected(ctx context.Context, accountID string, ids []string, key model.StatusKey) error
	ResetSelected(ctx context.Context, accountID string, ids []string, key model.StatusKey) error
	ResetAllSelected(ctx context.Context, accountID string) error
	PendingCount(ctx context.Context, accountID string) (int, error)
}

// ConditionalGetRepository maps (account, resource) to the validator headers
// of the last successful fetch.
type ConditionalGetRepository interface {
	Validator(ctx context.Context, accountID, resourceKey string) (*model.Validator, error)
	Store(ctx context.Context, accountID, resourceKey string, v model.Validator) error
	Expire(ctx context.Context, accountID, resourceKey string) error
}
