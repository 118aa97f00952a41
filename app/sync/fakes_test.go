package sync

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"feedsync/app/model"
	"feedsync/app/parser"
	"feedsync/app/provider"
)

// In-memory repository fakes. They mirror the sqlite repositories' contract
// closely enough for coordinator behavior: folder deletion reparents member
// feeds, article upserts never clobber existing status rows, and pending
// selection marks entries so a failed send can reset them.

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]model.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]model.Account)}
}

func (m *memAccounts) UpsertAccount(_ context.Context, account model.Account) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.ID == "" {
		account.ID = "acct-" + strconv.Itoa(len(m.accounts)+1)
	}
	m.accounts[account.ID] = account
	return account.ID, nil
}

func (m *memAccounts) GetAccounts(context.Context) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memAccounts) GetAccountByName(_ context.Context, name string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Name == name {
			c := a
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memAccounts) GetAccount(_ context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	c := a
	return &c, nil
}

func (m *memAccounts) SetAccountEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.Enabled = enabled
	m.accounts[id] = a
	return nil
}

func (m *memAccounts) SetLastArticleFetch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.LastArticleFetch = &at
	m.accounts[id] = a
	return nil
}

func (m *memAccounts) DeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

type memFeeds struct {
	mu      sync.Mutex
	nextID  int
	folders map[string]model.Folder
	feeds   map[string]model.Feed
}

func newMemFeeds() *memFeeds {
	return &memFeeds{
		folders: make(map[string]model.Folder),
		feeds:   make(map[string]model.Feed),
	}
}

func (m *memFeeds) id(prefix string) string {
	m.nextID++
	return prefix + "-" + strconv.Itoa(m.nextID)
}

func (m *memFeeds) GetFolders(_ context.Context, accountID string) ([]model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Folder
	for _, f := range m.folders {
		if f.AccountID == accountID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memFeeds) EnsureFolder(_ context.Context, accountID, name, externalID string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.folders {
		if f.AccountID == accountID && f.Name == name {
			if externalID != "" && f.ExternalID != externalID {
				f.ExternalID = externalID
				m.folders[f.ID] = f
			}
			c := f
			return &c, nil
		}
	}
	folder := model.Folder{
		ID:         m.id("folder"),
		AccountID:  accountID,
		Name:       name,
		ExternalID: externalID,
		CreatedAt:  time.Now(),
	}
	m.folders[folder.ID] = folder
	c := folder
	return &c, nil
}

// DeleteFolder reparents member feeds to the top level, matching the
// schema's ON DELETE SET NULL.
func (m *memFeeds) DeleteFolder(_ context.Context, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.feeds {
		if f.FolderID != nil && *f.FolderID == folderID {
			f.FolderID = nil
			m.feeds[id] = f
		}
	}
	delete(m.folders, folderID)
	return nil
}

func (m *memFeeds) GetFeeds(_ context.Context, accountID string) ([]model.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Feed
	for _, f := range m.feeds {
		if f.AccountID == accountID {
			out = append(out, copyFeed(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeedID < out[j].FeedID })
	return out, nil
}

func copyFeed(f model.Feed) model.Feed {
	out := f
	if f.FolderRelationship != nil {
		out.FolderRelationship = make(map[string]string, len(f.FolderRelationship))
		for k, v := range f.FolderRelationship {
			out.FolderRelationship[k] = v
		}
	}
	return out
}

func (m *memFeeds) GetFeedByFeedID(_ context.Context, accountID, feedID string) (*model.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.feeds {
		if f.AccountID == accountID && f.FeedID == feedID {
			c := copyFeed(f)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memFeeds) InsertFeed(_ context.Context, feed model.Feed) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed.ID = m.id("feed")
	m.feeds[feed.ID] = feed
	return feed.ID, nil
}

func (m *memFeeds) ApplyRemoteMetadata(_ context.Context, rowID, name, homePageURL, externalID string, renamed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[rowID]
	if !ok {
		return fmt.Errorf("no feed row %s", rowID)
	}
	f.Name = name
	f.HomePageURL = homePageURL
	f.ExternalID = externalID
	if renamed {
		f.EditedName = ""
	}
	m.feeds[rowID] = f
	return nil
}

func (m *memFeeds) SetEditedName(_ context.Context, rowID, editedName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.feeds[rowID]
	f.EditedName = editedName
	m.feeds[rowID] = f
	return nil
}

func (m *memFeeds) SetFeedFolder(_ context.Context, rowID string, folderID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.feeds[rowID]
	f.FolderID = folderID
	m.feeds[rowID] = f
	return nil
}

func (m *memFeeds) DeleteFeed(_ context.Context, rowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.feeds, rowID)
	return nil
}

func (m *memFeeds) SaveFolderRelationship(_ context.Context, feedRowID, folderName, relationshipID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.feeds[feedRowID]
	if f.FolderRelationship == nil {
		f.FolderRelationship = make(map[string]string)
	}
	f.FolderRelationship[folderName] = relationshipID
	m.feeds[feedRowID] = f
	return nil
}

func (m *memFeeds) ClearFolderRelationship(_ context.Context, feedRowID, folderName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.feeds[feedRowID]
	delete(f.FolderRelationship, folderName)
	m.feeds[feedRowID] = f
	return nil
}

type statusRow struct {
	status      model.ArticleStatus
	dateArrived time.Time
}

type memArticles struct {
	mu       sync.Mutex
	articles map[string]model.Article
	statuses map[string]*statusRow
}

func newMemArticles() *memArticles {
	return &memArticles{
		articles: make(map[string]model.Article),
		statuses: make(map[string]*statusRow),
	}
}

func (m *memArticles) UpsertArticles(_ context.Context, accountID string, articles []model.Article, defaultRead bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, a := range articles {
		if _, exists := m.articles[a.ID]; !exists {
			inserted++
		}
		m.articles[a.ID] = a
		if _, exists := m.statuses[a.ID]; !exists {
			m.statuses[a.ID] = &statusRow{
				status:      model.ArticleStatus{ArticleID: a.ID, Read: defaultRead},
				dateArrived: time.Now(),
			}
		}
	}
	return inserted, nil
}

func (m *memArticles) GetArticles(_ context.Context, accountID, feedID string, limit int) ([]model.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Article
	for _, a := range m.articles {
		if a.AccountID == accountID && (feedID == "" || a.FeedID == feedID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memArticles) GetStatus(_ context.Context, accountID, articleID string) (*model.ArticleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.statuses[articleID]
	if !ok {
		return nil, nil
	}
	c := row.status
	return &c, nil
}

func (m *memArticles) UnreadArticleIDs(_ context.Context, accountID string) (model.IDSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(model.IDSet)
	for id, row := range m.statuses {
		if !row.status.Read {
			ids.Add(id)
		}
	}
	return ids, nil
}

func (m *memArticles) StarredArticleIDs(_ context.Context, accountID string) (model.IDSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(model.IDSet)
	for id, row := range m.statuses {
		if row.status.Starred {
			ids.Add(id)
		}
	}
	return ids, nil
}

func (m *memArticles) MarkArticles(_ context.Context, accountID string, ids []string, key model.StatusKey, flag bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		row, ok := m.statuses[id]
		if !ok {
			row = &statusRow{
				status:      model.ArticleStatus{ArticleID: id, Read: true},
				dateArrived: time.Now(),
			}
			m.statuses[id] = row
		}
		switch key {
		case model.StatusRead:
			row.status.Read = flag
		case model.StatusStarred:
			row.status.Starred = flag
		case model.StatusUserDeleted:
			row.status.UserDeleted = flag
		}
	}
	return nil
}

func (m *memArticles) ArticleIDsMissingBodies(_ context.Context, accountID string, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, row := range m.statuses {
		if _, hasBody := m.articles[id]; !hasBody && row.dateArrived.After(cutoff) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memArticles) DeleteArticlesForFeed(_ context.Context, accountID, feedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.articles {
		if a.AccountID == accountID && a.FeedID == feedID {
			delete(m.articles, id)
			delete(m.statuses, id)
		}
	}
	return nil
}

func (m *memArticles) CountUnread(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.statuses {
		if !row.status.Read {
			count++
		}
	}
	return count, nil
}

type pendingEntry struct {
	articleID string
	key       model.StatusKey
	flag      bool
	selected  bool
	queuedAt  time.Time
}

type memPending struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func newMemPending() *memPending {
	return &memPending{entries: make(map[string]*pendingEntry)}
}

func pendingKey(articleID string, key model.StatusKey) string {
	return articleID + "|" + string(key)
}

func (m *memPending) Enqueue(_ context.Context, accountID, articleID string, key model.StatusKey, flag bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[pendingKey(articleID, key)] = &pendingEntry{
		articleID: articleID,
		key:       key,
		flag:      flag,
		queuedAt:  time.Now(),
	}
	return nil
}

func (m *memPending) SelectPendingIDs(_ context.Context, accountID string, key model.StatusKey) (model.IDSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(model.IDSet)
	for _, e := range m.entries {
		if e.key == key {
			ids.Add(e.articleID)
		}
	}
	return ids, nil
}

func (m *memPending) SelectForProcessing(_ context.Context, accountID string, key model.StatusKey, flag bool, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		if e.key == key && e.flag == flag && !e.selected {
			out = append(out, e.articleID)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for _, id := range out {
		m.entries[pendingKey(id, key)].selected = true
	}
	return out, nil
}

func (m *memPending) DeleteSelected(_ context.Context, accountID string, ids []string, key model.StatusKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if e, ok := m.entries[pendingKey(id, key)]; ok && e.selected {
			delete(m.entries, pendingKey(id, key))
		}
	}
	return nil
}

func (m *memPending) ResetSelected(_ context.Context, accountID string, ids []string, key model.StatusKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if e, ok := m.entries[pendingKey(id, key)]; ok {
			e.selected = false
		}
	}
	return nil
}

func (m *memPending) ResetAllSelected(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.selected = false
	}
	return nil
}

func (m *memPending) PendingCount(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

type memConditional struct {
	mu         sync.Mutex
	validators map[string]model.Validator
}

func newMemConditional() *memConditional {
	return &memConditional{validators: make(map[string]model.Validator)}
}

func (m *memConditional) Validator(_ context.Context, accountID, resourceKey string) (*model.Validator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.validators[accountID+"|"+resourceKey]
	if !ok {
		return nil, nil
	}
	c := v
	return &c, nil
}

func (m *memConditional) Store(_ context.Context, accountID, resourceKey string, v model.Validator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.IsZero() {
		return nil
	}
	m.validators[accountID+"|"+resourceKey] = v
	return nil
}

func (m *memConditional) Expire(_ context.Context, accountID, resourceKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.validators, accountID+"|"+resourceKey)
	return nil
}

// fakeClient is a scripted provider client recording the calls it receives.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	folders  provider.FolderList
	feeds    provider.FeedList
	taggings provider.TaggingList
	unread   provider.IDList
	starred  provider.IDList
	pages    []provider.EntryPage
	byID     map[string]parser.Item

	sendErr    error
	sentIDs    [][]string
	sentAction []provider.StatusAction

	createResult provider.CreateFeedResult

	entered chan struct{}
	release chan struct{}
}

var _ provider.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{byID: make(map[string]parser.Item)}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeClient) ValidateCredentials(context.Context) (bool, error) {
	f.record("validate")
	return true, nil
}

func (f *fakeClient) Folders(context.Context) (provider.FolderList, error) {
	f.record("folders")
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.folders, nil
}

func (f *fakeClient) Feeds(context.Context) (provider.FeedList, error) {
	f.record("feeds")
	return f.feeds, nil
}

func (f *fakeClient) Taggings(context.Context) (provider.TaggingList, error) {
	f.record("taggings")
	return f.taggings, nil
}

func (f *fakeClient) Entries(_ context.Context, since time.Time, token string) (provider.EntryPage, error) {
	f.record("entries")
	page := 0
	if token != "" {
		page, _ = strconv.Atoi(token)
	}
	if page >= len(f.pages) {
		return provider.EntryPage{}, nil
	}
	out := f.pages[page]
	if page+1 < len(f.pages) {
		out.NextToken = strconv.Itoa(page + 1)
	}
	return out, nil
}

func (f *fakeClient) EntriesForIDs(_ context.Context, articleIDs []string) ([]parser.Item, error) {
	f.record(fmt.Sprintf("entries_for_ids:%d", len(articleIDs)))
	var items []parser.Item
	for _, id := range articleIDs {
		if item, ok := f.byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeClient) UnreadIDs(context.Context) (provider.IDList, error) {
	f.record("unread_ids")
	return f.unread, nil
}

func (f *fakeClient) StarredIDs(context.Context) (provider.IDList, error) {
	f.record("starred_ids")
	return f.starred, nil
}

func (f *fakeClient) SendStatus(_ context.Context, articleIDs []string, action provider.StatusAction) error {
	f.record(fmt.Sprintf("send_status:%s:%d", action, len(articleIDs)))
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	ids := make([]string, len(articleIDs))
	copy(ids, articleIDs)
	f.sentIDs = append(f.sentIDs, ids)
	f.sentAction = append(f.sentAction, action)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) CreateFeed(_ context.Context, url string) (provider.CreateFeedResult, error) {
	f.record("create_feed")
	return f.createResult, nil
}

func (f *fakeClient) DeleteFeed(_ context.Context, externalID string) error {
	f.record("delete_feed:" + externalID)
	return nil
}

func (f *fakeClient) RenameFeed(_ context.Context, externalID, name string) error {
	f.record("rename_feed:" + externalID)
	return nil
}

func (f *fakeClient) MoveFeed(_ context.Context, req provider.MoveFeedRequest) error {
	f.record("move_feed:" + req.FeedID)
	return nil
}

func (f *fakeClient) Suspend() { f.record("suspend") }
func (f *fakeClient) Resume()  { f.record("resume") }
