package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedsync/app/database"
	"feedsync/app/model"
	"feedsync/app/parser"
	"feedsync/app/provider"
	"feedsync/app/provider/local"
	"feedsync/app/store"
)

// LocalCoordinator synchronizes a local account. There is no remote service,
// so a pass reduces to fetching each feed document: no pending queue, no
// status sets, and statuses mutate locally only. New articles arrive unread,
// unlike remote accounts where the unread set is the provider's to declare.
type LocalCoordinator struct {
	account   model.Account
	refresher *local.Refresher
	store     *store.Store
	accounts  database.AccountRepository
	progress  *Tracker
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

var _ Coordinator = (*LocalCoordinator)(nil)

func NewLocalCoordinator(account model.Account, refresher *local.Refresher, st *store.Store, accounts database.AccountRepository, progress *Tracker, logger *slog.Logger) *LocalCoordinator {
	return &LocalCoordinator{
		account:   account,
		refresher: refresher,
		store:     st,
		accounts:  accounts,
		progress:  progress,
		logger:    logger.With("account", account.Name, "provider", "local"),
	}
}

func (c *LocalCoordinator) AccountID() string { return c.account.ID }

// ValidateCredentials always succeeds: local accounts have none.
func (c *LocalCoordinator) ValidateCredentials(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *LocalCoordinator) Suspend() {
	c.refresher.Suspend()
	c.progress.Suspend(c.account.ID)
}

func (c *LocalCoordinator) Resume() {
	c.refresher.Resume()
	c.progress.SetState(c.account.ID, StateIdle)
}

func (c *LocalCoordinator) RefreshAll(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrPassInProgress
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	feeds, err := c.store.Feeds(ctx, c.account.ID)
	if err != nil {
		return err
	}

	c.progress.Begin(c.account.ID, len(feeds))
	c.progress.SetState(c.account.ID, StateFetchingArticles)
	c.logger.Info("Starting refresh", "feeds", len(feeds))

	var failed int
	for i := range feeds {
		feed := feeds[i]
		if err := c.refreshFeed(ctx, feed); err != nil {
			if provider.IsSuspended(err) {
				c.progress.Suspend(c.account.ID)
				return err
			}
			failed++
			c.logger.Warn("Feed refresh failed", "feed", feed.URL, "error", err)
		}
		c.progress.CompleteTask(c.account.ID)
	}

	now := time.Now().UTC()
	if err := c.accounts.SetLastArticleFetch(ctx, c.account.ID, now); err != nil {
		return err
	}
	c.account.LastArticleFetch = &now

	c.progress.Finish(c.account.ID)
	c.logger.Info("Refresh completed", "feeds", len(feeds), "failed", failed)
	return nil
}

func (c *LocalCoordinator) refreshFeed(ctx context.Context, feed model.Feed) error {
	result, err := c.refresher.RefreshFeed(ctx, feed)
	if err != nil {
		return err
	}
	if result.Unchanged {
		c.logger.Debug("Feed unchanged", "feed", feed.URL)
		return nil
	}

	return c.store.Update(ctx, func(tx *store.Tx) error {
		if result.Metadata != nil {
			name := result.Metadata.Title
			if name == "" {
				name = feed.Name
			}
			if err := tx.ApplyRemoteFeed(&feed, name, result.Metadata.Link, feed.ExternalID); err != nil {
				return err
			}
		}
		if len(result.Items) == 0 {
			return nil
		}
		_, err := tx.UpsertArticles(c.account.ID, parser.Articles(c.account.ID, result.Items), false)
		return err
	})
}

// AddFeed validates that the URL parses as a feed before subscribing. The
// feed id of a local feed is its URL.
func (c *LocalCoordinator) AddFeed(ctx context.Context, feedURL, folderName string) (provider.CreateFeedResult, error) {
	existing, err := c.store.FeedByFeedID(ctx, c.account.ID, feedURL)
	if err != nil {
		return provider.CreateFeedResult{}, err
	}
	if existing != nil {
		return provider.CreateFeedResult{Kind: provider.CreateFeedAlreadySubscribed}, nil
	}

	metadata, err := c.refresher.ValidateFeedURL(ctx, feedURL)
	if err != nil {
		if provider.KindOf(err) == provider.KindNotFound || provider.KindOf(err) == provider.KindMalformedResponse {
			return provider.CreateFeedResult{Kind: provider.CreateFeedNotFound}, nil
		}
		return provider.CreateFeedResult{}, err
	}

	feed := model.Feed{
		AccountID:   c.account.ID,
		FeedID:      feedURL,
		URL:         feedURL,
		Name:        metadata.Title,
		HomePageURL: metadata.Link,
	}

	err = c.store.Update(ctx, func(tx *store.Tx) error {
		rowID, err := tx.AddFeed(feed)
		if err != nil {
			return err
		}
		feed.ID = rowID
		if folderName == "" {
			return nil
		}
		folder, err := tx.EnsureFolder(c.account.ID, folderName, "")
		if err != nil {
			return err
		}
		return tx.MoveFeed(&feed, &folder.ID)
	})
	if err != nil {
		return provider.CreateFeedResult{}, err
	}

	// Initial download so the subscription isn't empty until the next pass.
	if err := c.refreshFeed(ctx, feed); err != nil {
		c.logger.Warn("Initial feed download failed", "feed", feed.URL, "error", err)
	}

	remote := provider.RemoteFeed{
		FeedID:      feed.FeedID,
		Name:        feed.Name,
		URL:         feed.URL,
		HomePageURL: feed.HomePageURL,
	}
	return provider.CreateFeedResult{Kind: provider.CreateFeedCreated, Feed: &remote}, nil
}

func (c *LocalCoordinator) feedByID(ctx context.Context, feedID string) (*model.Feed, error) {
	feed, err := c.store.FeedByFeedID(ctx, c.account.ID, feedID)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, fmt.Errorf("feed %s not found in account %s", feedID, c.account.Name)
	}
	return feed, nil
}

func (c *LocalCoordinator) DeleteFeed(ctx context.Context, feedID string) error {
	feed, err := c.feedByID(ctx, feedID)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, func(tx *store.Tx) error {
		return tx.RemoveFeed(*feed)
	})
}

func (c *LocalCoordinator) RenameFeed(ctx context.Context, feedID, name string) error {
	feed, err := c.feedByID(ctx, feedID)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, func(tx *store.Tx) error {
		return tx.SetEditedName(feed, name)
	})
}

func (c *LocalCoordinator) MoveFeed(ctx context.Context, feedID, folderName string) error {
	feed, err := c.feedByID(ctx, feedID)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, func(tx *store.Tx) error {
		if folderName == "" {
			return tx.MoveFeed(feed, nil)
		}
		folder, err := tx.EnsureFolder(c.account.ID, folderName, "")
		if err != nil {
			return err
		}
		return tx.MoveFeed(feed, &folder.ID)
	})
}

// ExtractContent fetches an article's web page and extracts the readable
// body, for feed entries that carried only a summary.
func (c *LocalCoordinator) ExtractContent(ctx context.Context, pageURL string) (string, error) {
	return c.refresher.ExtractContent(ctx, pageURL)
}

// FlushPending is a no-op: local accounts queue nothing.
func (c *LocalCoordinator) FlushPending(ctx context.Context) error {
	return nil
}

// SetStatuses flips statuses locally. Nothing is queued: local statuses have
// nowhere to go.
func (c *LocalCoordinator) SetStatuses(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error {
	if len(articleIDs) == 0 {
		return nil
	}
	if !key.Valid() {
		return fmt.Errorf("invalid status key %q", key)
	}
	return c.store.Update(ctx, func(tx *store.Tx) error {
		return tx.MarkArticles(c.account.ID, articleIDs, key, flag)
	})
}
