// Package store is the authoritative local representation of the
// account → folder/feed tree and the article/status sets. All mutation runs
// through a single-writer update scope per store, and every update scope
// produces exactly one coalesced change notification, so observers never see
// a half-applied delta and bulk status flips do not fire per item.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedsync/app/database"
	"feedsync/app/model"
)

type ChangeKind string

const (
	ChangeFolders  ChangeKind = "folders"
	ChangeFeeds    ChangeKind = "feeds"
	ChangeArticles ChangeKind = "articles"
	ChangeStatuses ChangeKind = "statuses"
)

type Change struct {
	AccountID string     `json:"account_id"`
	Kind      ChangeKind `json:"kind"`
	Count     int        `json:"count"`
}

// Observer receives the coalesced change set of one update scope.
type Observer func(changes []Change)

type Store struct {
	mu sync.Mutex

	accounts database.AccountRepository
	feeds    database.FeedRepository
	articles database.ArticleRepository

	obsMu     sync.Mutex
	observers []Observer
}

func New(accounts database.AccountRepository, feeds database.FeedRepository, articles database.ArticleRepository) *Store {
	return &Store{
		accounts: accounts,
		feeds:    feeds,
		articles: articles,
	}
}

func (s *Store) AddObserver(obs Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Store) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.obsMu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, obs := range observers {
		obs(changes)
	}
}

// Update runs fn inside the store's single-writer scope. Mutations go
// through the Tx; the coalesced change set is delivered to observers once fn
// returns without error. No two updates run concurrently, which is what
// keeps two sync passes from interleaving tree mutations for one account.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	tx := &Tx{ctx: ctx, s: s}
	err := fn(tx)
	changes := coalesce(tx.changes)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(changes)
	return nil
}

func coalesce(changes []Change) []Change {
	type key struct {
		accountID string
		kind      ChangeKind
	}
	counts := make(map[key]int)
	var order []key
	for _, c := range changes {
		k := key{c.AccountID, c.Kind}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k] += c.Count
	}

	out := make([]Change, 0, len(order))
	for _, k := range order {
		out = append(out, Change{AccountID: k.accountID, Kind: k.kind, Count: counts[k]})
	}
	return out
}

// Tx is the mutation handle passed to Update callbacks.
type Tx struct {
	ctx     context.Context
	s       *Store
	changes []Change
}

func (tx *Tx) note(accountID string, kind ChangeKind, count int) {
	if count > 0 {
		tx.changes = append(tx.changes, Change{AccountID: accountID, Kind: kind, Count: count})
	}
}

func (tx *Tx) EnsureFolder(accountID, name, externalID string) (*model.Folder, error) {
	folder, err := tx.s.feeds.EnsureFolder(tx.ctx, accountID, name, externalID)
	if err != nil {
		return nil, err
	}
	tx.note(accountID, ChangeFolders, 1)
	return folder, nil
}

// DissolveFolder removes a folder that vanished remotely. Member feeds are
// reparented to the account top level and their relationship entries
// cleared; feeds are never deleted with their folder.
func (tx *Tx) DissolveFolder(accountID string, folder model.Folder) error {
	feeds, err := tx.s.feeds.GetFeeds(tx.ctx, accountID)
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		if feed.FolderID == nil || *feed.FolderID != folder.ID {
			continue
		}
		if err := tx.s.feeds.ClearFolderRelationship(tx.ctx, feed.ID, folder.Name); err != nil {
			return err
		}
		if err := tx.s.feeds.SetFeedFolder(tx.ctx, feed.ID, nil); err != nil {
			return err
		}
		tx.note(accountID, ChangeFeeds, 1)
	}

	if err := tx.s.feeds.DeleteFolder(tx.ctx, folder.ID); err != nil {
		return err
	}
	tx.note(accountID, ChangeFolders, 1)
	return nil
}

func (tx *Tx) AddFeed(feed model.Feed) (string, error) {
	rowID, err := tx.s.feeds.InsertFeed(tx.ctx, feed)
	if err != nil {
		return "", err
	}
	tx.note(feed.AccountID, ChangeFeeds, 1)
	return rowID, nil
}

// RemoveFeed deletes a feed and its articles and statuses.
func (tx *Tx) RemoveFeed(feed model.Feed) error {
	if err := tx.s.articles.DeleteArticlesForFeed(tx.ctx, feed.AccountID, feed.FeedID); err != nil {
		return err
	}
	if err := tx.s.feeds.DeleteFeed(tx.ctx, feed.ID); err != nil {
		return err
	}
	tx.note(feed.AccountID, ChangeFeeds, 1)
	return nil
}

// ApplyRemoteFeed writes the provider's metadata onto a matched local feed.
// A server-side rename clears the locally edited name.
func (tx *Tx) ApplyRemoteFeed(feed *model.Feed, name, homePageURL, externalID string) error {
	renamed := feed.Name != name
	if err := tx.s.feeds.ApplyRemoteMetadata(tx.ctx, feed.ID, name, homePageURL, externalID, renamed); err != nil {
		return err
	}
	feed.Name = name
	feed.HomePageURL = homePageURL
	feed.ExternalID = externalID
	if renamed {
		feed.EditedName = ""
	}
	tx.note(feed.AccountID, ChangeFeeds, 1)
	return nil
}

func (tx *Tx) SetEditedName(feed *model.Feed, editedName string) error {
	if err := tx.s.feeds.SetEditedName(tx.ctx, feed.ID, editedName); err != nil {
		return err
	}
	feed.EditedName = editedName
	tx.note(feed.AccountID, ChangeFeeds, 1)
	return nil
}

// MoveFeed reparents a feed into a folder, or to the account top level when
// folderID is nil.
func (tx *Tx) MoveFeed(feed *model.Feed, folderID *string) error {
	if err := tx.s.feeds.SetFeedFolder(tx.ctx, feed.ID, folderID); err != nil {
		return err
	}
	feed.FolderID = folderID
	tx.note(feed.AccountID, ChangeFeeds, 1)
	return nil
}

func (tx *Tx) SaveFolderRelationship(feed *model.Feed, folderName, relationshipID string) error {
	if err := tx.s.feeds.SaveFolderRelationship(tx.ctx, feed.ID, folderName, relationshipID); err != nil {
		return err
	}
	if feed.FolderRelationship == nil {
		feed.FolderRelationship = make(map[string]string)
	}
	feed.FolderRelationship[folderName] = relationshipID
	return nil
}

func (tx *Tx) ClearFolderRelationship(feed *model.Feed, folderName string) error {
	if err := tx.s.feeds.ClearFolderRelationship(tx.ctx, feed.ID, folderName); err != nil {
		return err
	}
	delete(feed.FolderRelationship, folderName)
	return nil
}

// UpsertArticles merges fetched articles; statuses for new articles default
// to read when defaultRead is set (remote accounts track read state through
// the unread id set, not through entry payloads).
func (tx *Tx) UpsertArticles(accountID string, articles []model.Article, defaultRead bool) (int, error) {
	inserted, err := tx.s.articles.UpsertArticles(tx.ctx, accountID, articles, defaultRead)
	if err != nil {
		return 0, err
	}
	tx.note(accountID, ChangeArticles, len(articles))
	return inserted, nil
}

func (tx *Tx) MarkArticles(accountID string, ids []string, key model.StatusKey, flag bool) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.s.articles.MarkArticles(tx.ctx, accountID, ids, key, flag); err != nil {
		return err
	}
	tx.note(accountID, ChangeStatuses, len(ids))
	return nil
}

// Read-side queries. These take the store lock briefly so a reader never
// observes a half-applied update scope.

func (s *Store) Folders(ctx context.Context, accountID string) ([]model.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds.GetFolders(ctx, accountID)
}

func (s *Store) Feeds(ctx context.Context, accountID string) ([]model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds.GetFeeds(ctx, accountID)
}

func (s *Store) FeedByFeedID(ctx context.Context, accountID, feedID string) (*model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds.GetFeedByFeedID(ctx, accountID, feedID)
}

func (s *Store) Articles(ctx context.Context, accountID, feedID string, limit int) ([]model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles.GetArticles(ctx, accountID, feedID, limit)
}

func (s *Store) ArticleStatus(ctx context.Context, accountID, articleID string) (*model.ArticleStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles.GetStatus(ctx, accountID, articleID)
}

func (s *Store) UnreadArticleIDs(ctx context.Context, accountID string) (model.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles.UnreadArticleIDs(ctx, accountID)
}

func (s *Store) StarredArticleIDs(ctx context.Context, accountID string) (model.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles.StarredArticleIDs(ctx, accountID)
}

// MissingArticleIDs returns ids whose statuses arrived (via unread/starred
// sets) newer than cutoff but whose bodies have not been fetched yet.
func (s *Store) MissingArticleIDs(ctx context.Context, accountID string, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles.ArticleIDsMissingBodies(ctx, accountID, cutoff)
}

func (s *Store) UnreadCount(ctx context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles.CountUnread(ctx, accountID)
}

// FolderNameSet returns the folder names currently known for the account.
func (s *Store) FolderNameSet(ctx context.Context, accountID string) ([]string, error) {
	folders, err := s.Folders(ctx, accountID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(folders))
	for _, f := range folders {
		names = append(names, f.Name)
	}
	return names, nil
}

// Snapshot is a consistent read of one account's tree used by sync passes
// and the API layer.
type Snapshot struct {
	Folders []model.Folder
	Feeds   []model.Feed
}

func (s *Store) Snapshot(ctx context.Context, accountID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders, err := s.feeds.GetFolders(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot folders: %w", err)
	}
	feeds, err := s.feeds.GetFeeds(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot feeds: %w", err)
	}

	return &Snapshot{Folders: folders, Feeds: feeds}, nil
}
