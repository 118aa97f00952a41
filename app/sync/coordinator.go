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
	"feedsync/app/reconcile"
	"feedsync/app/store"
)

// RemoteCoordinator synchronizes one remote account. The step order mirrors
// what the provider data model requires: the folder/feed tree must exist
// before memberships, pending statuses must go out before the remote status
// sets come in, and status sets must land before articles so newly fetched
// articles pick up pre-created status rows.
type RemoteCoordinator struct {
	account  model.Account
	client   provider.Client
	store    *store.Store
	accounts database.AccountRepository
	pending  database.SyncStatusRepository
	profile  Profile
	progress *Tracker
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

var _ Coordinator = (*RemoteCoordinator)(nil)

func NewRemoteCoordinator(account model.Account, client provider.Client, st *store.Store, accounts database.AccountRepository, pending database.SyncStatusRepository, profile Profile, progress *Tracker, logger *slog.Logger) *RemoteCoordinator {
	return &RemoteCoordinator{
		account:  account,
		client:   client,
		store:    st,
		accounts: accounts,
		pending:  pending,
		profile:  profile,
		progress: progress,
		logger:   logger.With("account", account.Name, "provider", string(account.Provider)),
	}
}

func (c *RemoteCoordinator) AccountID() string { return c.account.ID }

func (c *RemoteCoordinator) ValidateCredentials(ctx context.Context) (bool, error) {
	return c.client.ValidateCredentials(ctx)
}

func (c *RemoteCoordinator) Suspend() {
	c.client.Suspend()
	c.progress.Suspend(c.account.ID)
}

func (c *RemoteCoordinator) Resume() {
	c.client.Resume()
	c.progress.SetState(c.account.ID, StateIdle)
}

func (c *RemoteCoordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *RemoteCoordinator) end() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// RefreshAll runs one pass. A pass already in progress for this account is
// not queued behind but rejected, so scheduler retries and manual refreshes
// cannot stack.
func (c *RemoteCoordinator) RefreshAll(ctx context.Context) error {
	if !c.begin() {
		return ErrPassInProgress
	}
	defer c.end()

	c.progress.Begin(c.account.ID, 6)
	c.logger.Info("Starting sync pass")

	err := c.runPass(ctx)
	if err == nil {
		c.progress.Finish(c.account.ID)
		c.logger.Info("Sync pass completed")
		return nil
	}

	switch provider.KindOf(err) {
	case provider.KindAuthenticationRequired:
		c.progress.Fail(c.account.ID, err)
		c.logger.Error("Sync pass halted, credentials rejected", "error", err)
	case provider.KindSuspended:
		c.progress.Suspend(c.account.ID)
		c.logger.Warn("Sync pass suspended by provider", "error", err)
	default:
		c.progress.Fail(c.account.ID, err)
		c.logger.Warn("Sync pass failed", "error", err)
	}
	return err
}

func (c *RemoteCoordinator) runPass(ctx context.Context) error {
	steps := []struct {
		state State
		fn    func(context.Context) error
	}{
		{StateFetchingFolders, c.refreshFolders},
		{StateFetchingFeeds, c.refreshFeeds},
		{StateSendingStatuses, c.sendPendingStatuses},
		{StateFetchingStatusSets, c.refreshStatusSets},
		{StateFetchingArticles, c.refreshArticles},
		{StateFetchingMissingArticles, c.refreshMissingArticles},
	}

	for _, step := range steps {
		c.progress.SetState(c.account.ID, step.state)
		err := step.fn(ctx)
		if err != nil {
			// A malformed response spoils one step, not the pass.
			if provider.KindOf(err) == provider.KindMalformedResponse {
				c.logger.Warn("Skipping step after malformed response",
					"state", string(step.state), "error", err)
				c.progress.CompleteTask(c.account.ID)
				continue
			}
			return err
		}
		c.progress.CompleteTask(c.account.ID)
	}
	return nil
}

func (c *RemoteCoordinator) refreshFolders(ctx context.Context) error {
	if !c.profile.HasFolders {
		return nil
	}

	list, err := c.client.Folders(ctx)
	if err != nil {
		return err
	}
	if list.Unchanged {
		c.logger.Debug("Folder listing unchanged")
		return nil
	}

	localNames, err := c.store.FolderNameSet(ctx, c.account.ID)
	if err != nil {
		return err
	}

	remoteNames := make([]string, 0, len(list.Folders))
	externalIDs := make(map[string]string, len(list.Folders))
	for _, f := range list.Folders {
		remoteNames = append(remoteNames, f.Name)
		externalIDs[f.Name] = f.ExternalID
	}

	plan := reconcile.PlanFolders(localNames, remoteNames, "")
	if len(plan.ToCreate) == 0 && len(plan.ToDissolve) == 0 {
		return nil
	}

	folders, err := c.store.Folders(ctx, c.account.ID)
	if err != nil {
		return err
	}
	byName := make(map[string]model.Folder, len(folders))
	for _, f := range folders {
		byName[f.Name] = f
	}

	return c.store.Update(ctx, func(tx *store.Tx) error {
		for _, name := range plan.ToCreate {
			if _, err := tx.EnsureFolder(c.account.ID, name, externalIDs[name]); err != nil {
				return err
			}
		}
		for _, name := range plan.ToDissolve {
			folder, ok := byName[name]
			if !ok {
				continue
			}
			if err := tx.DissolveFolder(c.account.ID, folder); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *RemoteCoordinator) refreshFeeds(ctx context.Context) error {
	list, err := c.client.Feeds(ctx)
	if err != nil {
		return err
	}

	if !list.Unchanged {
		if err := c.reconcileFeeds(ctx, list.Feeds); err != nil {
			return err
		}
	} else {
		c.logger.Debug("Feed listing unchanged")
	}

	if !c.profile.HasTaggings {
		return nil
	}

	taggings, err := c.client.Taggings(ctx)
	if err != nil {
		return err
	}
	if taggings.Unchanged {
		c.logger.Debug("Tagging listing unchanged")
		return nil
	}
	return c.reconcileMemberships(ctx, taggings.Taggings)
}

func (c *RemoteCoordinator) reconcileFeeds(ctx context.Context, remoteFeeds []provider.RemoteFeed) error {
	localFeeds, err := c.store.Feeds(ctx, c.account.ID)
	if err != nil {
		return err
	}

	localByID := make(map[string]model.Feed, len(localFeeds))
	localIDs := make(model.IDSet, len(localFeeds))
	for _, f := range localFeeds {
		localByID[f.FeedID] = f
		localIDs.Add(f.FeedID)
	}

	remoteByID := make(map[string]provider.RemoteFeed, len(remoteFeeds))
	remoteIDs := make(model.IDSet, len(remoteFeeds))
	for _, f := range remoteFeeds {
		remoteByID[f.FeedID] = f
		remoteIDs.Add(f.FeedID)
	}

	delta := reconcile.Diff(localIDs, remoteIDs)

	return c.store.Update(ctx, func(tx *store.Tx) error {
		for _, feedID := range delta.ToAdd.Slice() {
			remote := remoteByID[feedID]
			if _, err := tx.AddFeed(model.Feed{
				AccountID:   c.account.ID,
				FeedID:      remote.FeedID,
				ExternalID:  remote.ExternalID,
				URL:         remote.URL,
				HomePageURL: remote.HomePageURL,
				Name:        remote.Name,
			}); err != nil {
				return err
			}
		}
		for _, feedID := range delta.ToRemove.Slice() {
			feed := localByID[feedID]
			if err := tx.RemoveFeed(feed); err != nil {
				return err
			}
		}
		for _, feedID := range delta.ToKeep.Slice() {
			feed := localByID[feedID]
			remote := remoteByID[feedID]
			if err := tx.ApplyRemoteFeed(&feed, remote.Name, remote.HomePageURL, remote.ExternalID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *RemoteCoordinator) reconcileMemberships(ctx context.Context, taggings []provider.RemoteTagging) error {
	// First membership per feed wins; the tree has no multi-folder feeds.
	desired := make(map[string]provider.RemoteTagging, len(taggings))
	for _, t := range taggings {
		if _, seen := desired[t.FeedID]; !seen {
			desired[t.FeedID] = t
		}
	}

	feeds, err := c.store.Feeds(ctx, c.account.ID)
	if err != nil {
		return err
	}
	folders, err := c.store.Folders(ctx, c.account.ID)
	if err != nil {
		return err
	}
	folderByID := make(map[string]model.Folder, len(folders))
	for _, f := range folders {
		folderByID[f.ID] = f
	}

	return c.store.Update(ctx, func(tx *store.Tx) error {
		for i := range feeds {
			feed := &feeds[i]
			tagging, wantFolder := desired[feed.FeedID]

			for folderName := range feed.FolderRelationship {
				if !wantFolder || folderName != tagging.FolderName {
					if err := tx.ClearFolderRelationship(feed, folderName); err != nil {
						return err
					}
				}
			}

			if wantFolder {
				folder, err := tx.EnsureFolder(c.account.ID, tagging.FolderName, "")
				if err != nil {
					return err
				}
				if feed.FolderID == nil || *feed.FolderID != folder.ID {
					if err := tx.MoveFeed(feed, &folder.ID); err != nil {
						return err
					}
				}
				if err := tx.SaveFolderRelationship(feed, tagging.FolderName, tagging.RelationshipID); err != nil {
					return err
				}
			} else if feed.FolderID != nil {
				if err := tx.MoveFeed(feed, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (c *RemoteCoordinator) sendPendingStatuses(ctx context.Context) error {
	return drainPending(ctx, c.pending, c.client, c.account.ID, c.profile.SendBatchSize, c.logger)
}

// FlushPending delivers queued statuses outside a full pass, then pulls the
// remote status sets so a flip made on another device lands without waiting
// for the next pass. It shares the pass gate so a flush never races a pass
// over the same queue entries.
func (c *RemoteCoordinator) FlushPending(ctx context.Context) error {
	if !c.begin() {
		return ErrPassInProgress
	}
	defer c.end()

	if err := c.sendPendingStatuses(ctx); err != nil {
		return err
	}
	return c.refreshStatusSets(ctx)
}

// refreshStatusSets pulls the remote unread and starred id sets and applies
// the difference. Ids with a queued local mutation are excluded from the
// remote truth: the user's unsent change outranks what the provider last
// confirmed.
func (c *RemoteCoordinator) refreshStatusSets(ctx context.Context) error {
	if err := c.refreshStatusSet(ctx, model.StatusRead, c.client.UnreadIDs, false); err != nil {
		return err
	}
	return c.refreshStatusSet(ctx, model.StatusStarred, c.client.StarredIDs, true)
}

// refreshStatusSet applies one remote id set. For the read key the remote
// set enumerates unread articles, so membership means flag=false; for
// starred it enumerates starred articles and membership means flag=true.
func (c *RemoteCoordinator) refreshStatusSet(ctx context.Context, key model.StatusKey, fetch func(context.Context) (provider.IDList, error), memberFlag bool) error {
	list, err := fetch(ctx)
	if err != nil {
		return err
	}
	if list.Unchanged {
		c.logger.Debug("Status set unchanged", "key", string(key))
		return nil
	}

	pendingIDs, err := c.pending.SelectPendingIDs(ctx, c.account.ID, key)
	if err != nil {
		return err
	}

	var local model.IDSet
	if key == model.StatusRead {
		local, err = c.store.UnreadArticleIDs(ctx, c.account.ID)
	} else {
		local, err = c.store.StarredArticleIDs(ctx, c.account.ID)
	}
	if err != nil {
		return err
	}

	delta := reconcile.StatusDiff(model.NewIDSet(list.IDs...), pendingIDs, local)
	if len(delta.SetOn) == 0 && len(delta.SetOff) == 0 {
		return nil
	}

	return c.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.MarkArticles(c.account.ID, delta.SetOn.Slice(), key, memberFlag); err != nil {
			return err
		}
		return tx.MarkArticles(c.account.ID, delta.SetOff.Slice(), key, !memberFlag)
	})
}

func (c *RemoteCoordinator) refreshArticles(ctx context.Context) error {
	fetchStart := time.Now().UTC()

	since := fetchStart.Add(-c.profile.Lookback)
	if c.account.LastArticleFetch != nil {
		backdated := c.account.LastArticleFetch.Add(-c.profile.Backdate)
		if backdated.After(since) {
			since = backdated
		}
	}

	var serverDate *time.Time
	token := ""
	pages := 0
	for {
		page, err := c.client.Entries(ctx, since, token)
		if err != nil {
			return err
		}
		if page.ServerDate != nil {
			serverDate = page.ServerDate
		}

		if len(page.Items) > 0 {
			err := c.store.Update(ctx, func(tx *store.Tx) error {
				_, err := tx.UpsertArticles(c.account.ID, parser.Articles(c.account.ID, page.Items), true)
				return err
			})
			if err != nil {
				return err
			}
		}

		pages++
		token = page.NextToken
		if token == "" {
			break
		}
	}
	c.logger.Debug("Fetched articles", "since", since, "pages", pages)

	// The next incremental boundary is the provider's clock when available,
	// so provider-side clock skew cannot open a gap.
	boundary := fetchStart
	if serverDate != nil {
		boundary = serverDate.UTC()
	}
	if err := c.accounts.SetLastArticleFetch(ctx, c.account.ID, boundary); err != nil {
		return err
	}
	c.account.LastArticleFetch = &boundary
	return nil
}

// refreshMissingArticles fetches bodies for articles the status sets named
// but the incremental listing never delivered, in provider-sized chunks.
func (c *RemoteCoordinator) refreshMissingArticles(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-c.profile.Lookback)
	missing, err := c.store.MissingArticleIDs(ctx, c.account.ID, cutoff)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	c.logger.Debug("Fetching missing article bodies", "count", len(missing))

	for _, chunk := range model.Chunked(missing, c.profile.MissingChunkSize) {
		items, err := c.client.EntriesForIDs(ctx, chunk)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			continue
		}
		err = c.store.Update(ctx, func(tx *store.Tx) error {
			_, err := tx.UpsertArticles(c.account.ID, parser.Articles(c.account.ID, items), true)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AddFeed subscribes remotely first; only a confirmed creation mutates the
// local tree. AlreadySubscribed, NotFound and MultipleChoice come back as
// results for the caller to act on.
func (c *RemoteCoordinator) AddFeed(ctx context.Context, feedURL, folderName string) (provider.CreateFeedResult, error) {
	result, err := c.client.CreateFeed(ctx, feedURL)
	if err != nil {
		return provider.CreateFeedResult{}, err
	}
	if result.Kind != provider.CreateFeedCreated || result.Feed == nil {
		return result, nil
	}

	remote := *result.Feed
	err = c.store.Update(ctx, func(tx *store.Tx) error {
		feed := model.Feed{
			AccountID:   c.account.ID,
			FeedID:      remote.FeedID,
			ExternalID:  remote.ExternalID,
			URL:         remote.URL,
			HomePageURL: remote.HomePageURL,
			Name:        remote.Name,
		}
		rowID, err := tx.AddFeed(feed)
		if err != nil {
			return err
		}
		if folderName == "" {
			return nil
		}
		folder, err := tx.EnsureFolder(c.account.ID, folderName, "")
		if err != nil {
			return err
		}
		feed.ID = rowID
		return tx.MoveFeed(&feed, &folder.ID)
	})
	if err != nil {
		return provider.CreateFeedResult{}, err
	}

	if folderName != "" {
		if err := c.client.MoveFeed(ctx, provider.MoveFeedRequest{
			FeedID:     remote.FeedID,
			ExternalID: remote.ExternalID,
			ToFolder:   folderName,
		}); err != nil {
			c.logger.Warn("Failed to assign new feed to folder remotely",
				"feed", remote.FeedID, "folder", folderName, "error", err)
		}
	}
	return result, nil
}

func (c *RemoteCoordinator) feedByID(ctx context.Context, feedID string) (*model.Feed, error) {
	feed, err := c.store.FeedByFeedID(ctx, c.account.ID, feedID)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, fmt.Errorf("feed %s not found in account %s", feedID, c.account.Name)
	}
	return feed, nil
}

// DeleteFeed removes the subscription remotely, then locally. A feed the
// provider no longer knows is treated as already deleted.
func (c *RemoteCoordinator) DeleteFeed(ctx context.Context, feedID string) error {
	feed, err := c.feedByID(ctx, feedID)
	if err != nil {
		return err
	}

	if err := c.client.DeleteFeed(ctx, feed.ExternalID); err != nil {
		if provider.KindOf(err) != provider.KindNotFound {
			return err
		}
	}
	return c.store.Update(ctx, func(tx *store.Tx) error {
		return tx.RemoveFeed(*feed)
	})
}

// RenameFeed pushes the new name remotely and records it as the local edited
// name, which wins display priority until the provider itself renames the
// feed.
func (c *RemoteCoordinator) RenameFeed(ctx context.Context, feedID, name string) error {
	feed, err := c.feedByID(ctx, feedID)
	if err != nil {
		return err
	}

	if err := c.client.RenameFeed(ctx, feed.ExternalID, name); err != nil {
		return err
	}
	return c.store.Update(ctx, func(tx *store.Tx) error {
		return tx.SetEditedName(feed, name)
	})
}

// MoveFeed changes folder membership remotely and locally. An empty
// folderName moves the feed to the account top level.
func (c *RemoteCoordinator) MoveFeed(ctx context.Context, feedID, folderName string) error {
	feed, err := c.feedByID(ctx, feedID)
	if err != nil {
		return err
	}

	fromFolder := ""
	relationshipID := ""
	if feed.FolderID != nil {
		folders, err := c.store.Folders(ctx, c.account.ID)
		if err != nil {
			return err
		}
		for _, f := range folders {
			if f.ID == *feed.FolderID {
				fromFolder = f.Name
				relationshipID = feed.FolderRelationship[f.Name]
				break
			}
		}
	}

	if err := c.client.MoveFeed(ctx, provider.MoveFeedRequest{
		FeedID:         feed.FeedID,
		ExternalID:     feed.ExternalID,
		FromFolder:     fromFolder,
		ToFolder:       folderName,
		RelationshipID: relationshipID,
	}); err != nil {
		return err
	}

	return c.store.Update(ctx, func(tx *store.Tx) error {
		if fromFolder != "" {
			if err := tx.ClearFolderRelationship(feed, fromFolder); err != nil {
				return err
			}
		}
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

// SetStatuses marks articles locally and queues the mutation for delivery.
// The local flip is immediate; the provider learns about it on the next
// pass, or sooner if the status task fires.
func (c *RemoteCoordinator) SetStatuses(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error {
	if len(articleIDs) == 0 {
		return nil
	}
	if !key.Valid() {
		return fmt.Errorf("invalid status key %q", key)
	}

	err := c.store.Update(ctx, func(tx *store.Tx) error {
		return tx.MarkArticles(c.account.ID, articleIDs, key, flag)
	})
	if err != nil {
		return err
	}

	for _, id := range articleIDs {
		if err := c.pending.Enqueue(ctx, c.account.ID, id, key, flag); err != nil {
			return err
		}
	}
	return nil
}
