// Package feedbin implements the provider client for the Feedbin V2 API.
// Folders map onto Feedbin tags, folder membership onto taggings, and the
// read/starred sets onto the unread_entries and starred_entries resources.
package feedbin

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

const defaultBaseURL = "https://api.feedbin.com/v2/"

const (
	resourceSubscriptions = "subscriptions"
	resourceTags          = "tags"
	resourceTaggings      = "taggings"
	resourceUnread        = "unread"
	resourceStarred       = "starred"
)

type Client struct {
	transport *provider.Transport
	creds     provider.Credentials
	baseURL   string
	pageSize  int
}

var _ provider.Client = (*Client)(nil)

type Options struct {
	// BaseURL overrides the production API endpoint, for tests.
	BaseURL string
	// PageSize is the per_page value for entry listings.
	PageSize int
}

func NewClient(transport *provider.Transport, creds provider.Credentials, opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		transport: transport,
		creds:     creds,
		baseURL:   baseURL,
		pageSize:  pageSize,
	}
}

func (c *Client) Suspend() { c.transport.Suspend() }
func (c *Client) Resume()  { c.transport.Resume() }

func (c *Client) get(ctx context.Context, rawURL, resourceKey string, out any) (*provider.Response, error) {
	return c.transport.GetJSON(ctx, provider.Request{
		URL:         rawURL,
		Header:      provider.BasicAuth(c.creds),
		ResourceKey: resourceKey,
	}, out)
}

func (c *Client) send(ctx context.Context, method, rawURL string, payload []byte) (*provider.Response, error) {
	header := provider.BasicAuth(c.creds)
	header.Set("Content-Type", "application/json; charset=utf-8")
	return c.transport.Do(ctx, provider.Request{
		Method: method,
		URL:    rawURL,
		Header: header,
		Body:   payload,
	})
}

// ValidateCredentials probes the authentication endpoint. A rejection is a
// negative answer, not an error.
func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	_, err := c.transport.Do(ctx, provider.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + "authentication.json",
		Header: provider.BasicAuth(c.creds),
	})
	if provider.IsAuthError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type tagPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Folders lists Feedbin tags; each tag is a folder.
func (c *Client) Folders(ctx context.Context) (provider.FolderList, error) {
	var tags []tagPayload
	resp, err := c.get(ctx, c.baseURL+"tags.json", resourceTags, &tags)
	if err != nil {
		return provider.FolderList{}, err
	}
	if resp.NotModified {
		return provider.FolderList{Unchanged: true}, nil
	}

	folders := make([]provider.RemoteFolder, 0, len(tags))
	for _, t := range tags {
		folders = append(folders, provider.RemoteFolder{
			Name:       t.Name,
			ExternalID: strconv.FormatInt(t.ID, 10),
		})
	}
	return provider.FolderList{Folders: folders}, nil
}

type subscriptionPayload struct {
	ID      int64  `json:"id"`
	FeedID  int64  `json:"feed_id"`
	Title   string `json:"title"`
	FeedURL string `json:"feed_url"`
	SiteURL string `json:"site_url"`
}

func (s subscriptionPayload) remoteFeed() provider.RemoteFeed {
	return provider.RemoteFeed{
		FeedID:      strconv.FormatInt(s.FeedID, 10),
		ExternalID:  strconv.FormatInt(s.ID, 10),
		Name:        s.Title,
		URL:         s.FeedURL,
		HomePageURL: s.SiteURL,
	}
}

func (c *Client) Feeds(ctx context.Context) (provider.FeedList, error) {
	var subscriptions []subscriptionPayload
	resp, err := c.get(ctx, c.baseURL+"subscriptions.json", resourceSubscriptions, &subscriptions)
	if err != nil {
		return provider.FeedList{}, err
	}
	if resp.NotModified {
		return provider.FeedList{Unchanged: true}, nil
	}

	feeds := make([]provider.RemoteFeed, 0, len(subscriptions))
	for _, s := range subscriptions {
		feeds = append(feeds, s.remoteFeed())
	}
	return provider.FeedList{Feeds: feeds}, nil
}

type taggingPayload struct {
	ID     int64  `json:"id"`
	FeedID int64  `json:"feed_id"`
	Name   string `json:"name"`
}

func (c *Client) Taggings(ctx context.Context) (provider.TaggingList, error) {
	var taggings []taggingPayload
	resp, err := c.get(ctx, c.baseURL+"taggings.json", resourceTaggings, &taggings)
	if err != nil {
		return provider.TaggingList{}, err
	}
	if resp.NotModified {
		return provider.TaggingList{Unchanged: true}, nil
	}

	out := make([]provider.RemoteTagging, 0, len(taggings))
	for _, t := range taggings {
		out = append(out, provider.RemoteTagging{
			RelationshipID: strconv.FormatInt(t.ID, 10),
			FolderName:     t.Name,
			FeedID:         strconv.FormatInt(t.FeedID, 10),
		})
	}
	return provider.TaggingList{Taggings: out}, nil
}

type entryPayload struct {
	ID        int64   `json:"id"`
	FeedID    int64   `json:"feed_id"`
	Title     *string `json:"title"`
	URL       *string `json:"url"`
	Author    *string `json:"author"`
	Summary   *string `json:"summary"`
	Content   *string `json:"content"`
	Published string  `json:"published"`
}

func (e entryPayload) item() parser.Item {
	item := parser.Item{
		ID:     strconv.FormatInt(e.ID, 10),
		FeedID: strconv.FormatInt(e.FeedID, 10),
	}
	if e.Title != nil {
		item.Title = *e.Title
	}
	if e.URL != nil {
		item.URL = *e.URL
	}
	if e.Summary != nil {
		item.Summary = *e.Summary
	}
	if e.Content != nil {
		item.ContentHTML = *e.Content
	}
	if e.Author != nil && *e.Author != "" {
		item.Authors = []string{*e.Author}
	}
	if published, err := time.Parse(time.RFC3339, e.Published); err == nil {
		item.Published = &published
	}
	return item
}

// Entries fetches one page of entries modified since the given time.
// Pagination rides on the response Link header; continuationToken is the
// rel="next" URL verbatim.
func (c *Client) Entries(ctx context.Context, since time.Time, continuationToken string) (provider.EntryPage, error) {
	pageURL := continuationToken
	if pageURL == "" {
		query := url.Values{}
		query.Set("mode", "extended")
		query.Set("per_page", strconv.Itoa(c.pageSize))
		query.Set("since", since.UTC().Format(time.RFC3339))
		pageURL = c.baseURL + "entries.json?" + query.Encode()
	}

	var entries []entryPayload
	resp, err := c.get(ctx, pageURL, "", &entries)
	if err != nil {
		return provider.EntryPage{}, err
	}

	page := provider.EntryPage{
		NextToken:  provider.NextLink(resp.Header),
		ServerDate: resp.Date,
	}
	page.Items = make([]parser.Item, 0, len(entries))
	for _, e := range entries {
		page.Items = append(page.Items, e.item())
	}
	return page, nil
}

// EntriesForIDs fetches full entry bodies for a batch of article ids. The
// caller chunks ids to the provider limit.
func (c *Client) EntriesForIDs(ctx context.Context, articleIDs []string) ([]parser.Item, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(articleIDs, ","))

	var entries []entryPayload
	if _, err := c.get(ctx, c.baseURL+"entries.json?"+query.Encode(), "", &entries); err != nil {
		return nil, err
	}

	items := make([]parser.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.item())
	}
	return items, nil
}

func (c *Client) idList(ctx context.Context, endpoint, resourceKey string) (provider.IDList, error) {
	var ids []int64
	resp, err := c.get(ctx, c.baseURL+endpoint, resourceKey, &ids)
	if err != nil {
		return provider.IDList{}, err
	}
	if resp.NotModified {
		return provider.IDList{Unchanged: true}, nil
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return provider.IDList{IDs: out}, nil
}

func (c *Client) UnreadIDs(ctx context.Context) (provider.IDList, error) {
	return c.idList(ctx, "unread_entries.json", resourceUnread)
}

func (c *Client) StarredIDs(ctx context.Context) (provider.IDList, error) {
	return c.idList(ctx, "starred_entries.json", resourceStarred)
}

// SendStatus pushes one status action for a batch of article ids. Marking
// read deletes from the unread set; keeping unread re-adds; saved follows the
// same shape against the starred set.
func (c *Client) SendStatus(ctx context.Context, articleIDs []string, action provider.StatusAction) error {
	ids := make([]int64, 0, len(articleIDs))
	for _, raw := range articleIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return provider.NewError(provider.KindMalformedResponse, "feedbin", "send status", fmt.Errorf("bad article id %q: %w", raw, err))
		}
		ids = append(ids, id)
	}

	var endpoint, method string
	var payload any
	switch action {
	case provider.ActionMarkRead:
		endpoint, method = "unread_entries.json", http.MethodDelete
		payload = map[string][]int64{"unread_entries": ids}
	case provider.ActionKeepUnread:
		endpoint, method = "unread_entries.json", http.MethodPost
		payload = map[string][]int64{"unread_entries": ids}
	case provider.ActionMarkSaved:
		endpoint, method = "starred_entries.json", http.MethodPost
		payload = map[string][]int64{"starred_entries": ids}
	case provider.ActionMarkUnsaved:
		endpoint, method = "starred_entries.json", http.MethodDelete
		payload = map[string][]int64{"starred_entries": ids}
	default:
		return provider.NewError(provider.KindMalformedResponse, "feedbin", "send status", fmt.Errorf("unsupported action %q", action))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return provider.NewError(provider.KindMalformedResponse, "feedbin", "send status", err)
	}
	_, err = c.send(ctx, method, c.baseURL+endpoint, body)
	return err
}

// CreateFeed subscribes to a URL. Feedbin answers 201 on success, 302 when
// the subscription already exists, 300 with a choice list for ambiguous
// pages, and 404 when no feed was found. The latter three are results, not
// failures.
func (c *Client) CreateFeed(ctx context.Context, feedURL string) (provider.CreateFeedResult, error) {
	payload := []byte(fmt.Sprintf(`{"feed_url": %q}`, feedURL))
	resp, err := c.send(ctx, http.MethodPost, c.baseURL+"subscriptions.json", payload)
	if err != nil {
		if provider.KindOf(err) == provider.KindNotFound {
			return provider.CreateFeedResult{Kind: provider.CreateFeedNotFound}, nil
		}
		return provider.CreateFeedResult{}, err
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		var sub subscriptionPayload
		if err := resp.DecodeJSON(&sub); err != nil {
			return provider.CreateFeedResult{}, provider.NewError(provider.KindMalformedResponse, "feedbin", "create feed", err)
		}
		feed := sub.remoteFeed()
		return provider.CreateFeedResult{Kind: provider.CreateFeedCreated, Feed: &feed}, nil

	case http.StatusFound:
		return provider.CreateFeedResult{Kind: provider.CreateFeedAlreadySubscribed}, nil

	case http.StatusMultipleChoices:
		var choices []struct {
			Title   string `json:"title"`
			FeedURL string `json:"feed_url"`
		}
		if err := resp.DecodeJSON(&choices); err != nil {
			return provider.CreateFeedResult{}, provider.NewError(provider.KindMalformedResponse, "feedbin", "create feed", err)
		}
		out := make([]provider.FeedChoice, 0, len(choices))
		for _, ch := range choices {
			out = append(out, provider.FeedChoice{Name: ch.Title, URL: ch.FeedURL})
		}
		return provider.CreateFeedResult{Kind: provider.CreateFeedMultipleChoice, Choices: out}, nil

	default:
		return provider.CreateFeedResult{}, provider.NewError(provider.KindMalformedResponse, "feedbin", "create feed", fmt.Errorf("unexpected HTTP %d", resp.StatusCode))
	}
}

func (c *Client) DeleteFeed(ctx context.Context, externalID string) error {
	_, err := c.send(ctx, http.MethodDelete, c.baseURL+"subscriptions/"+externalID+".json", nil)
	return err
}

func (c *Client) RenameFeed(ctx context.Context, externalID, name string) error {
	payload := []byte(fmt.Sprintf(`{"title": %q}`, name))
	_, err := c.send(ctx, http.MethodPatch, c.baseURL+"subscriptions/"+externalID+".json", payload)
	return err
}

// MoveFeed deletes the old tagging and creates a new one. A missing old
// tagging is fine: the membership may already be gone remotely.
func (c *Client) MoveFeed(ctx context.Context, req provider.MoveFeedRequest) error {
	if req.FromFolder != "" && req.RelationshipID != "" {
		_, err := c.send(ctx, http.MethodDelete, c.baseURL+"taggings/"+req.RelationshipID+".json", nil)
		if err != nil && provider.KindOf(err) != provider.KindNotFound {
			return err
		}
	}
	if req.ToFolder == "" {
		return nil
	}

	feedID, err := strconv.ParseInt(req.FeedID, 10, 64)
	if err != nil {
		return provider.NewError(provider.KindMalformedResponse, "feedbin", "move feed", fmt.Errorf("bad feed id %q: %w", req.FeedID, err))
	}
	payload, err := json.Marshal(map[string]any{"feed_id": feedID, "name": req.ToFolder})
	if err != nil {
		return provider.NewError(provider.KindMalformedResponse, "feedbin", "move feed", err)
	}
	_, err = c.send(ctx, http.MethodPost, c.baseURL+"taggings.json", payload)
	return err
}
