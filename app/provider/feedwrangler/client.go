// Package feedwrangler implements the provider client for the Feed Wrangler
// V2 API. The service has no folders, so folder and membership listings are
// empty; every authenticated call carries the access token as a query
// parameter, and most responses embed a result field that signals failure
// inside a 200.
package feedwrangler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedsync/app/parser"
	"feedsync/app/provider"
)

const defaultBaseURL = "https://feedwrangler.net/api/v2/"

// idPageCap bounds unread/starred id collection. Hitting the cap with a full
// page still pending aborts the listing: a truncated id set must not be
// applied as the remote status set.
const idPageCap = 20

type Client struct {
	transport *provider.Transport
	creds     provider.Credentials
	baseURL   string
	pageSize  int
}

var _ provider.Client = (*Client)(nil)

type Options struct {
	BaseURL  string
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

type resultEnvelope struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func (r resultEnvelope) err(op string) error {
	if r.Result == "" || r.Result == "success" {
		return nil
	}
	if strings.Contains(strings.ToLower(r.Error), "token") {
		return provider.NewError(provider.KindAuthenticationRequired, "feedwrangler", op, fmt.Errorf("%s", r.Error))
	}
	return provider.NewError(provider.KindMalformedResponse, "feedwrangler", op, fmt.Errorf("%s", r.Error))
}

func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", c.creds.Token)

	_, err := c.transport.GetJSON(ctx, provider.Request{
		Method: method,
		URL:    c.baseURL + endpoint + "?" + query.Encode(),
	}, out)
	return err
}

func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	var payload resultEnvelope
	if err := c.call(ctx, http.MethodGet, "subscriptions/list", nil, &payload); err != nil {
		if provider.IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	if err := payload.err("validate"); err != nil {
		if provider.IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Folders is empty: the service has no folder concept.
func (c *Client) Folders(ctx context.Context) (provider.FolderList, error) {
	return provider.FolderList{}, nil
}

func (c *Client) Taggings(ctx context.Context) (provider.TaggingList, error) {
	return provider.TaggingList{}, nil
}

type feedPayload struct {
	FeedID  int64  `json:"feed_id"`
	Title   string `json:"title"`
	FeedURL string `json:"feed_url"`
	SiteURL string `json:"site_url"`
}

func (f feedPayload) remoteFeed() provider.RemoteFeed {
	id := strconv.FormatInt(f.FeedID, 10)
	return provider.RemoteFeed{
		FeedID:      id,
		ExternalID:  id,
		Name:        f.Title,
		URL:         f.FeedURL,
		HomePageURL: f.SiteURL,
	}
}

func (c *Client) Feeds(ctx context.Context) (provider.FeedList, error) {
	var payload struct {
		resultEnvelope
		Feeds []feedPayload `json:"feeds"`
	}
	if err := c.call(ctx, http.MethodGet, "subscriptions/list", nil, &payload); err != nil {
		return provider.FeedList{}, err
	}
	if err := payload.err("feeds"); err != nil {
		return provider.FeedList{}, err
	}

	feeds := make([]provider.RemoteFeed, 0, len(payload.Feeds))
	for _, f := range payload.Feeds {
		feeds = append(feeds, f.remoteFeed())
	}
	return provider.FeedList{Feeds: feeds}, nil
}

type itemPayload struct {
	FeedItemID  int64  `json:"feed_item_id"`
	FeedID      int64  `json:"feed_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Body        string `json:"body"`
	Author      string `json:"author"`
	PublishedAt int64  `json:"published_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func (i itemPayload) item() parser.Item {
	item := parser.Item{
		ID:          strconv.FormatInt(i.FeedItemID, 10),
		FeedID:      strconv.FormatInt(i.FeedID, 10),
		Title:       i.Title,
		URL:         i.URL,
		ContentHTML: i.Body,
	}
	if i.Author != "" {
		item.Authors = []string{i.Author}
	}
	if i.PublishedAt > 0 {
		published := time.Unix(i.PublishedAt, 0).UTC()
		item.Published = &published
	}
	if i.UpdatedAt > 0 {
		updated := time.Unix(i.UpdatedAt, 0).UTC()
		item.Modified = &updated
	}
	return item
}

type itemListPayload struct {
	resultEnvelope
	Items []itemPayload `json:"feed_items"`
}

// Entries pages with a numeric offset carried as the continuation token.
func (c *Client) Entries(ctx context.Context, since time.Time, continuationToken string) (provider.EntryPage, error) {
	offset := 0
	if continuationToken != "" {
		parsed, err := strconv.Atoi(continuationToken)
		if err != nil {
			return provider.EntryPage{}, provider.NewError(provider.KindMalformedResponse, "feedwrangler", "entries", fmt.Errorf("bad continuation token %q: %w", continuationToken, err))
		}
		offset = parsed
	}

	query := url.Values{}
	query.Set("updated_since", strconv.FormatInt(since.UTC().Unix(), 10))
	query.Set("limit", strconv.Itoa(c.pageSize))
	query.Set("offset", strconv.Itoa(offset))

	var payload itemListPayload
	if err := c.call(ctx, http.MethodGet, "feed_items/list", query, &payload); err != nil {
		return provider.EntryPage{}, err
	}
	if err := payload.err("entries"); err != nil {
		return provider.EntryPage{}, err
	}

	page := provider.EntryPage{}
	page.Items = make([]parser.Item, 0, len(payload.Items))
	for _, i := range payload.Items {
		page.Items = append(page.Items, i.item())
	}
	if len(payload.Items) == c.pageSize {
		page.NextToken = strconv.Itoa(offset + c.pageSize)
	}
	return page, nil
}

func (c *Client) EntriesForIDs(ctx context.Context, articleIDs []string) ([]parser.Item, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("feed_item_ids", strings.Join(articleIDs, ","))

	var payload itemListPayload
	if err := c.call(ctx, http.MethodGet, "feed_items/get", query, &payload); err != nil {
		return nil, err
	}
	if err := payload.err("entries for ids"); err != nil {
		return nil, err
	}

	items := make([]parser.Item, 0, len(payload.Items))
	for _, i := range payload.Items {
		items = append(items, i.item())
	}
	return items, nil
}

func (c *Client) collectIDs(ctx context.Context, filterKey, filterValue string) (provider.IDList, error) {
	var ids []string
	offset := 0
	for page := 0; ; page++ {
		if page == idPageCap {
			return provider.IDList{}, provider.NewError(provider.KindMalformedResponse, "feedwrangler", "collect ids",
				fmt.Errorf("listing still full after %d pages", idPageCap))
		}

		query := url.Values{}
		query.Set(filterKey, filterValue)
		query.Set("limit", strconv.Itoa(c.pageSize))
		query.Set("offset", strconv.Itoa(offset))

		var payload itemListPayload
		if err := c.call(ctx, http.MethodGet, "feed_items/list", query, &payload); err != nil {
			return provider.IDList{}, err
		}
		if err := payload.err("collect ids"); err != nil {
			return provider.IDList{}, err
		}

		for _, i := range payload.Items {
			ids = append(ids, strconv.FormatInt(i.FeedItemID, 10))
		}
		if len(payload.Items) < c.pageSize {
			break
		}
		offset += c.pageSize
	}
	return provider.IDList{IDs: ids}, nil
}

func (c *Client) UnreadIDs(ctx context.Context) (provider.IDList, error) {
	return c.collectIDs(ctx, "read", "false")
}

func (c *Client) StarredIDs(ctx context.Context) (provider.IDList, error) {
	return c.collectIDs(ctx, "starred", "true")
}

// SendStatus updates items one at a time: the API has no batch endpoint, so
// the coordinator keeps chunks small for this provider.
func (c *Client) SendStatus(ctx context.Context, articleIDs []string, action provider.StatusAction) error {
	var key, value string
	switch action {
	case provider.ActionMarkRead:
		key, value = "read", "true"
	case provider.ActionKeepUnread:
		key, value = "read", "false"
	case provider.ActionMarkSaved:
		key, value = "starred", "true"
	case provider.ActionMarkUnsaved:
		key, value = "starred", "false"
	default:
		return provider.NewError(provider.KindMalformedResponse, "feedwrangler", "send status", fmt.Errorf("unsupported action %q", action))
	}

	for _, id := range articleIDs {
		query := url.Values{}
		query.Set("feed_item_id", id)
		query.Set(key, value)

		var payload resultEnvelope
		if err := c.call(ctx, http.MethodPost, "feed_items/update", query, &payload); err != nil {
			return err
		}
		if err := payload.err("send status"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) CreateFeed(ctx context.Context, feedURL string) (provider.CreateFeedResult, error) {
	query := url.Values{}
	query.Set("feed_url", feedURL)
	query.Set("choose_first", "false")

	var payload struct {
		resultEnvelope
		Feeds []feedPayload `json:"feeds"`
		Feed  *feedPayload  `json:"feed"`
	}
	if err := c.call(ctx, http.MethodPost, "subscriptions/add_feed", query, &payload); err != nil {
		return provider.CreateFeedResult{}, err
	}

	switch {
	case payload.Feed != nil:
		feed := payload.Feed.remoteFeed()
		return provider.CreateFeedResult{Kind: provider.CreateFeedCreated, Feed: &feed}, nil

	case len(payload.Feeds) == 1:
		feed := payload.Feeds[0].remoteFeed()
		return provider.CreateFeedResult{Kind: provider.CreateFeedCreated, Feed: &feed}, nil

	case len(payload.Feeds) > 1:
		choices := make([]provider.FeedChoice, 0, len(payload.Feeds))
		for _, f := range payload.Feeds {
			choices = append(choices, provider.FeedChoice{Name: f.Title, URL: f.FeedURL})
		}
		return provider.CreateFeedResult{Kind: provider.CreateFeedMultipleChoice, Choices: choices}, nil

	default:
		return provider.CreateFeedResult{Kind: provider.CreateFeedNotFound}, nil
	}
}

func (c *Client) DeleteFeed(ctx context.Context, externalID string) error {
	query := url.Values{}
	query.Set("feed_id", externalID)

	var payload resultEnvelope
	if err := c.call(ctx, http.MethodPost, "subscriptions/remove_feed", query, &payload); err != nil {
		return err
	}
	return payload.err("delete feed")
}

func (c *Client) RenameFeed(ctx context.Context, externalID, name string) error {
	query := url.Values{}
	query.Set("feed_id", externalID)
	query.Set("feed_name", name)

	var payload resultEnvelope
	if err := c.call(ctx, http.MethodPost, "subscriptions/rename_feed", query, &payload); err != nil {
		return err
	}
	return payload.err("rename feed")
}

// MoveFeed is a no-op: the service has no folders.
func (c *Client) MoveFeed(ctx context.Context, req provider.MoveFeedRequest) error {
	return nil
}
