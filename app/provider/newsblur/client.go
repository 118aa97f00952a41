// Package newsblur implements the provider client for the NewsBlur API.
// NewsBlur identifies articles by story hash, ships folders and membership in
// one /reader/feeds payload, and accepts status changes as form posts. Most
// endpoints answer 200 with an embedded result code, so failures are decoded
// from the body rather than the HTTP status.
package newsblur

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedsync/app/parser"
	"feedsync/app/provider"
)

const defaultBaseURL = "https://www.newsblur.com"

type Client struct {
	transport *provider.Transport
	creds     provider.Credentials
	baseURL   string

	sessionID string
}

var _ provider.Client = (*Client)(nil)

type Options struct {
	BaseURL string
}

func NewClient(transport *provider.Transport, creds provider.Credentials, opts Options) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		transport: transport,
		creds:     creds,
		baseURL:   baseURL,
	}
}

func (c *Client) Suspend() { c.transport.Suspend() }
func (c *Client) Resume()  { c.transport.Resume() }

// login establishes a session and caches the session cookie.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	header := make(http.Header)
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.transport.Do(ctx, provider.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/api/login",
		Header: header,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return err
	}

	var result struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		return provider.NewError(provider.KindMalformedResponse, "newsblur", "login", err)
	}
	if !result.Authenticated {
		return provider.NewError(provider.KindAuthenticationRequired, "newsblur", "login", fmt.Errorf("credentials rejected"))
	}

	for _, cookie := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(cookie, "newsblur_sessionid=") {
			c.sessionID = strings.SplitN(strings.TrimPrefix(cookie, "newsblur_sessionid="), ";", 2)[0]
		}
	}
	if c.sessionID == "" {
		return provider.NewError(provider.KindMalformedResponse, "newsblur", "login", fmt.Errorf("no session cookie in login response"))
	}
	return nil
}

func (c *Client) ensureSession(ctx context.Context) error {
	if c.sessionID != "" {
		return nil
	}
	return c.login(ctx)
}

func (c *Client) sessionHeader() http.Header {
	h := make(http.Header)
	h.Set("Cookie", "newsblur_sessionid="+c.sessionID)
	return h
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	rawURL := c.baseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	_, err := c.transport.GetJSON(ctx, provider.Request{
		URL:    rawURL,
		Header: c.sessionHeader(),
	}, out)
	return err
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	header := c.sessionHeader()
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.transport.Do(ctx, provider.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Header: header,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return err
	}
	if out != nil {
		if err := resp.DecodeJSON(out); err != nil {
			return provider.NewError(provider.KindMalformedResponse, "newsblur", "POST "+path, err)
		}
	}
	return nil
}

func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	err := c.login(ctx)
	if provider.IsAuthError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// feedsPayload is the /reader/feeds response. Folders is a heterogeneous
// list: bare feed ids at the top level, one-key objects mapping a folder name
// to its member feed ids.
type feedsPayload struct {
	Feeds   map[string]feedPayload `json:"feeds"`
	Folders []json.RawMessage      `json:"folders"`
}

type feedPayload struct {
	ID      int64  `json:"id"`
	Title   string `json:"feed_title"`
	Address string `json:"feed_address"`
	Link    string `json:"feed_link"`
}

func (c *Client) readerFeeds(ctx context.Context) (*feedsPayload, error) {
	var payload feedsPayload
	query := url.Values{}
	query.Set("flat", "false")
	if err := c.getJSON(ctx, "/reader/feeds", query, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// folderMembers decodes the folder entries, skipping bare top-level feed ids.
func folderMembers(folders []json.RawMessage) map[string][]string {
	members := make(map[string][]string)
	for _, raw := range folders {
		var grouped map[string][]int64
		if err := json.Unmarshal(raw, &grouped); err != nil {
			// Bare feed id at the top level.
			continue
		}
		for name, ids := range grouped {
			if name == "" {
				continue
			}
			for _, id := range ids {
				members[name] = append(members[name], strconv.FormatInt(id, 10))
			}
		}
	}
	return members
}

func (c *Client) Folders(ctx context.Context) (provider.FolderList, error) {
	payload, err := c.readerFeeds(ctx)
	if err != nil {
		return provider.FolderList{}, err
	}
	members := folderMembers(payload.Folders)

	folders := make([]provider.RemoteFolder, 0, len(members))
	for name := range members {
		folders = append(folders, provider.RemoteFolder{Name: name, ExternalID: name})
	}
	return provider.FolderList{Folders: folders}, nil
}

func (c *Client) Feeds(ctx context.Context) (provider.FeedList, error) {
	payload, err := c.readerFeeds(ctx)
	if err != nil {
		return provider.FeedList{}, err
	}

	feeds := make([]provider.RemoteFeed, 0, len(payload.Feeds))
	for _, f := range payload.Feeds {
		id := strconv.FormatInt(f.ID, 10)
		feeds = append(feeds, provider.RemoteFeed{
			FeedID:      id,
			ExternalID:  id,
			Name:        f.Title,
			URL:         f.Address,
			HomePageURL: f.Link,
		})
	}
	return provider.FeedList{Feeds: feeds}, nil
}

// Taggings derives membership from the same /reader/feeds folder structure;
// the relationship id is the folder name, which is what delete_feed and
// move calls want as in_folder.
func (c *Client) Taggings(ctx context.Context) (provider.TaggingList, error) {
	payload, err := c.readerFeeds(ctx)
	if err != nil {
		return provider.TaggingList{}, err
	}
	members := folderMembers(payload.Folders)

	var taggings []provider.RemoteTagging
	for name, feedIDs := range members {
		for _, feedID := range feedIDs {
			taggings = append(taggings, provider.RemoteTagging{
				RelationshipID: name,
				FolderName:     name,
				FeedID:         feedID,
			})
		}
	}
	return provider.TaggingList{Taggings: taggings}, nil
}

type storyPayload struct {
	Hash      string `json:"story_hash"`
	FeedID    int64  `json:"story_feed_id"`
	Title     string `json:"story_title"`
	Permalink string `json:"story_permalink"`
	Content   string `json:"story_content"`
	Authors   string `json:"story_authors"`
	Date      string `json:"story_date"`
}

func (s storyPayload) item() parser.Item {
	item := parser.Item{
		ID:          s.Hash,
		FeedID:      strconv.FormatInt(s.FeedID, 10),
		Title:       s.Title,
		URL:         s.Permalink,
		ContentHTML: s.Content,
	}
	if s.Authors != "" {
		item.Authors = []string{s.Authors}
	}
	if published, err := time.Parse("2006-01-02 15:04:05", s.Date); err == nil {
		item.Published = &published
	}
	return item
}

// Entries pages through the river of stories. The river's page size is fixed
// server-side; the continuation token is the next page number, and an empty
// page or a story older than the lookback cutoff ends the stream.
func (c *Client) Entries(ctx context.Context, since time.Time, continuationToken string) (provider.EntryPage, error) {
	page := 1
	if continuationToken != "" {
		parsed, err := strconv.Atoi(continuationToken)
		if err != nil {
			return provider.EntryPage{}, provider.NewError(provider.KindMalformedResponse, "newsblur", "entries", fmt.Errorf("bad continuation token %q: %w", continuationToken, err))
		}
		page = parsed
	}

	query := url.Values{}
	query.Set("include_hidden", "true")
	query.Set("page", strconv.Itoa(page))
	query.Set("order", "newest")
	query.Set("read_filter", "all")

	var payload struct {
		Stories []storyPayload `json:"stories"`
	}
	if err := c.getJSON(ctx, "/reader/river_stories", query, &payload); err != nil {
		return provider.EntryPage{}, err
	}

	out := provider.EntryPage{}
	cutoff := since.UTC()
	reachedCutoff := false
	for _, s := range payload.Stories {
		item := s.item()
		if item.Published != nil && item.Published.Before(cutoff) {
			reachedCutoff = true
			continue
		}
		out.Items = append(out.Items, item)
	}

	if len(payload.Stories) > 0 && !reachedCutoff {
		out.NextToken = strconv.Itoa(page + 1)
	}
	return out, nil
}

func (c *Client) EntriesForIDs(ctx context.Context, articleIDs []string) ([]parser.Item, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}

	query := url.Values{}
	for _, hash := range articleIDs {
		query.Add("h", hash)
	}

	var payload struct {
		Stories []storyPayload `json:"stories"`
	}
	if err := c.getJSON(ctx, "/reader/river_stories", query, &payload); err != nil {
		return nil, err
	}

	items := make([]parser.Item, 0, len(payload.Stories))
	for _, s := range payload.Stories {
		items = append(items, s.item())
	}
	return items, nil
}

func (c *Client) storyHashes(ctx context.Context, path, field string) (provider.IDList, error) {
	var payload map[string]json.RawMessage
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		return provider.IDList{}, err
	}

	raw, ok := payload[field]
	if !ok {
		return provider.IDList{}, provider.NewError(provider.KindMalformedResponse, "newsblur", "GET "+path, fmt.Errorf("missing %s field", field))
	}

	// Unread hashes arrive grouped by feed; starred hashes as a flat list.
	var grouped map[string][]string
	if err := json.Unmarshal(raw, &grouped); err == nil {
		var ids []string
		for _, hashes := range grouped {
			ids = append(ids, hashes...)
		}
		return provider.IDList{IDs: ids}, nil
	}

	var flat []string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return provider.IDList{}, provider.NewError(provider.KindMalformedResponse, "newsblur", "GET "+path, err)
	}
	return provider.IDList{IDs: flat}, nil
}

func (c *Client) UnreadIDs(ctx context.Context) (provider.IDList, error) {
	return c.storyHashes(ctx, "/reader/unread_story_hashes", "unread_feed_story_hashes")
}

func (c *Client) StarredIDs(ctx context.Context) (provider.IDList, error) {
	return c.storyHashes(ctx, "/reader/starred_story_hashes", "starred_story_hashes")
}

func (c *Client) SendStatus(ctx context.Context, articleIDs []string, action provider.StatusAction) error {
	switch action {
	case provider.ActionMarkRead:
		form := url.Values{}
		for _, hash := range articleIDs {
			form.Add("story_hash", hash)
		}
		return c.postForm(ctx, "/reader/mark_story_hashes_as_read", form, nil)

	case provider.ActionKeepUnread, provider.ActionMarkSaved, provider.ActionMarkUnsaved:
		// These endpoints take one hash per request; the coordinator throttles
		// by sending batches of one.
		path := map[provider.StatusAction]string{
			provider.ActionKeepUnread:  "/reader/mark_story_hash_as_unread",
			provider.ActionMarkSaved:   "/reader/mark_story_hash_as_starred",
			provider.ActionMarkUnsaved: "/reader/mark_story_hash_as_unstarred",
		}[action]
		for _, hash := range articleIDs {
			form := url.Values{}
			form.Set("story_hash", hash)
			if err := c.postForm(ctx, path, form, nil); err != nil {
				return err
			}
		}
		return nil

	default:
		return provider.NewError(provider.KindMalformedResponse, "newsblur", "send status", fmt.Errorf("unsupported action %q", action))
	}
}

func (c *Client) CreateFeed(ctx context.Context, feedURL string) (provider.CreateFeedResult, error) {
	form := url.Values{}
	form.Set("url", feedURL)

	var payload struct {
		Code int          `json:"code"`
		Feed *feedPayload `json:"feed"`
	}
	if err := c.postForm(ctx, "/reader/add_url", form, &payload); err != nil {
		return provider.CreateFeedResult{}, err
	}

	if payload.Code < 0 || payload.Feed == nil {
		return provider.CreateFeedResult{Kind: provider.CreateFeedNotFound}, nil
	}

	id := strconv.FormatInt(payload.Feed.ID, 10)
	feed := provider.RemoteFeed{
		FeedID:      id,
		ExternalID:  id,
		Name:        payload.Feed.Title,
		URL:         payload.Feed.Address,
		HomePageURL: payload.Feed.Link,
	}
	return provider.CreateFeedResult{Kind: provider.CreateFeedCreated, Feed: &feed}, nil
}

func (c *Client) DeleteFeed(ctx context.Context, externalID string) error {
	form := url.Values{}
	form.Set("feed_id", externalID)
	return c.postForm(ctx, "/reader/delete_feed", form, nil)
}

func (c *Client) RenameFeed(ctx context.Context, externalID, name string) error {
	form := url.Values{}
	form.Set("feed_id", externalID)
	form.Set("feed_title", name)
	return c.postForm(ctx, "/reader/rename_feed", form, nil)
}

func (c *Client) MoveFeed(ctx context.Context, req provider.MoveFeedRequest) error {
	form := url.Values{}
	form.Set("feed_id", req.FeedID)
	form.Set("in_folder", req.FromFolder)
	form.Set("to_folder", req.ToFolder)
	return c.postForm(ctx, "/reader/move_feed_to_folder", form, nil)
}
