// Package feedly implements the provider client for the Feedly Cloud API.
// Authentication is a bearer token, folders map onto collections, and the
// read/starred sets come from the global.all and global.saved stream id
// listings. Stream requests need the Feedly user id, which is resolved from
// the profile once and cached.
package feedly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedsync/app/parser"
	"feedsync/app/provider"
)

const defaultBaseURL = "https://cloud.feedly.com"

// idPageCap bounds the continuation loop when collecting unread/starred ids.
// A stream still holding a continuation at the cap aborts the listing: a
// truncated id set must not be applied as the remote status set.
const idPageCap = 20

type Client struct {
	transport *provider.Transport
	creds     provider.Credentials
	baseURL   string
	pageSize  int

	userID string
}

var _ provider.Client = (*Client)(nil)

type Options struct {
	BaseURL  string
	PageSize int
}

func NewClient(transport *provider.Transport, creds provider.Credentials, opts Options) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 1000
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

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	rawURL := c.baseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	_, err := c.transport.GetJSON(ctx, provider.Request{
		URL:    rawURL,
		Header: provider.BearerAuth(c.creds),
	}, out)
	return err
}

func jsonBody(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

func (c *Client) post(ctx context.Context, method, path string, payload, out any) error {
	body, err := jsonBody(payload)
	if err != nil {
		return provider.NewError(provider.KindMalformedResponse, "feedly", method+" "+path, err)
	}

	header := provider.BearerAuth(c.creds)
	header.Set("Content-Type", "application/json")

	resp, err := c.transport.Do(ctx, provider.Request{
		Method: method,
		URL:    c.baseURL + path,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := resp.DecodeJSON(out); err != nil {
			return provider.NewError(provider.KindMalformedResponse, "feedly", method+" "+path, err)
		}
	}
	return nil
}

func (c *Client) ensureUserID(ctx context.Context) error {
	if c.userID != "" {
		return nil
	}
	var profile struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, "/v3/profile", nil, &profile); err != nil {
		return err
	}
	if profile.ID == "" {
		return provider.NewError(provider.KindMalformedResponse, "feedly", "profile", fmt.Errorf("empty user id"))
	}
	c.userID = profile.ID
	return nil
}

func (c *Client) allStreamID() string {
	return "user/" + c.userID + "/category/global.all"
}

func (c *Client) savedStreamID() string {
	return "user/" + c.userID + "/tag/global.saved"
}

func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	err := c.ensureUserID(ctx)
	if provider.IsAuthError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type collectionPayload struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (c *Client) Folders(ctx context.Context) (provider.FolderList, error) {
	var collections []collectionPayload
	if err := c.get(ctx, "/v3/collections", nil, &collections); err != nil {
		return provider.FolderList{}, err
	}

	folders := make([]provider.RemoteFolder, 0, len(collections))
	for _, col := range collections {
		if strings.HasSuffix(col.ID, "/category/global.must") || strings.HasSuffix(col.ID, "/category/global.uncategorized") {
			continue
		}
		folders = append(folders, provider.RemoteFolder{Name: col.Label, ExternalID: col.ID})
	}
	return provider.FolderList{Folders: folders}, nil
}

type subscriptionPayload struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Website    string `json:"website"`
	Categories []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	} `json:"categories"`
}

// feedURL strips the "feed/" scheme prefix off a Feedly feed id.
func feedURL(feedID string) string {
	return strings.TrimPrefix(feedID, "feed/")
}

func (c *Client) subscriptions(ctx context.Context) ([]subscriptionPayload, error) {
	var subs []subscriptionPayload
	if err := c.get(ctx, "/v3/subscriptions", nil, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *Client) Feeds(ctx context.Context) (provider.FeedList, error) {
	subs, err := c.subscriptions(ctx)
	if err != nil {
		return provider.FeedList{}, err
	}

	feeds := make([]provider.RemoteFeed, 0, len(subs))
	for _, s := range subs {
		feeds = append(feeds, provider.RemoteFeed{
			FeedID:      s.ID,
			ExternalID:  s.ID,
			Name:        s.Title,
			URL:         feedURL(s.ID),
			HomePageURL: s.Website,
		})
	}
	return provider.FeedList{Feeds: feeds}, nil
}

// Taggings derives folder membership from each subscription's category list.
func (c *Client) Taggings(ctx context.Context) (provider.TaggingList, error) {
	subs, err := c.subscriptions(ctx)
	if err != nil {
		return provider.TaggingList{}, err
	}

	var taggings []provider.RemoteTagging
	for _, s := range subs {
		for _, cat := range s.Categories {
			if strings.HasSuffix(cat.ID, "/category/global.must") || strings.HasSuffix(cat.ID, "/category/global.uncategorized") {
				continue
			}
			taggings = append(taggings, provider.RemoteTagging{
				RelationshipID: cat.ID,
				FolderName:     cat.Label,
				FeedID:         s.ID,
			})
		}
	}
	return provider.TaggingList{Taggings: taggings}, nil
}

type entryPayload struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Origin struct {
		StreamID string `json:"streamId"`
	} `json:"origin"`
	Canonical []struct {
		Href string `json:"href"`
	} `json:"canonical"`
	Alternate []struct {
		Href string `json:"href"`
	} `json:"alternate"`
	Summary struct {
		Content string `json:"content"`
	} `json:"summary"`
	Content struct {
		Content string `json:"content"`
	} `json:"content"`
	Published int64 `json:"published"`
	Updated   int64 `json:"updated"`
}

func (e entryPayload) item() parser.Item {
	item := parser.Item{
		ID:          e.ID,
		FeedID:      e.Origin.StreamID,
		Title:       e.Title,
		Summary:     e.Summary.Content,
		ContentHTML: e.Content.Content,
	}
	if len(e.Canonical) > 0 {
		item.URL = e.Canonical[0].Href
	} else if len(e.Alternate) > 0 {
		item.URL = e.Alternate[0].Href
	}
	if e.Author != "" {
		item.Authors = []string{e.Author}
	}
	if e.Published > 0 {
		published := time.UnixMilli(e.Published).UTC()
		item.Published = &published
	}
	if e.Updated > 0 {
		updated := time.UnixMilli(e.Updated).UTC()
		item.Modified = &updated
	}
	return item
}

type streamContents struct {
	Items        []entryPayload `json:"items"`
	Continuation string         `json:"continuation"`
	Updated      int64          `json:"updated"`
}

func (c *Client) Entries(ctx context.Context, since time.Time, continuationToken string) (provider.EntryPage, error) {
	if err := c.ensureUserID(ctx); err != nil {
		return provider.EntryPage{}, err
	}

	query := url.Values{}
	query.Set("streamId", c.allStreamID())
	query.Set("count", fmt.Sprintf("%d", c.pageSize))
	query.Set("newerThan", fmt.Sprintf("%d", since.UTC().UnixMilli()))
	if continuationToken != "" {
		query.Set("continuation", continuationToken)
	}

	var contents streamContents
	if err := c.get(ctx, "/v3/streams/contents", query, &contents); err != nil {
		return provider.EntryPage{}, err
	}

	page := provider.EntryPage{NextToken: contents.Continuation}
	if contents.Updated > 0 {
		serverDate := time.UnixMilli(contents.Updated).UTC()
		page.ServerDate = &serverDate
	}
	page.Items = make([]parser.Item, 0, len(contents.Items))
	for _, e := range contents.Items {
		page.Items = append(page.Items, e.item())
	}
	return page, nil
}

func (c *Client) EntriesForIDs(ctx context.Context, articleIDs []string) ([]parser.Item, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}

	var entries []entryPayload
	if err := c.post(ctx, http.MethodPost, "/v3/entries/.mget", articleIDs, &entries); err != nil {
		return nil, err
	}

	items := make([]parser.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.item())
	}
	return items, nil
}

func (c *Client) streamIDs(ctx context.Context, streamID string, unreadOnly bool) (provider.IDList, error) {
	if err := c.ensureUserID(ctx); err != nil {
		return provider.IDList{}, err
	}

	var all []string
	continuation := ""
	for page := 0; ; page++ {
		if page == idPageCap {
			return provider.IDList{}, provider.NewError(provider.KindMalformedResponse, "feedly", "stream ids",
				fmt.Errorf("stream %s still has a continuation after %d pages", streamID, idPageCap))
		}

		query := url.Values{}
		query.Set("streamId", streamID)
		query.Set("count", fmt.Sprintf("%d", c.pageSize))
		if unreadOnly {
			query.Set("unreadOnly", "true")
		}
		if continuation != "" {
			query.Set("continuation", continuation)
		}

		var payload struct {
			IDs          []string `json:"ids"`
			Continuation string   `json:"continuation"`
		}
		if err := c.get(ctx, "/v3/streams/ids", query, &payload); err != nil {
			return provider.IDList{}, err
		}

		all = append(all, payload.IDs...)
		continuation = payload.Continuation
		if continuation == "" {
			break
		}
	}
	return provider.IDList{IDs: all}, nil
}

func (c *Client) UnreadIDs(ctx context.Context) (provider.IDList, error) {
	return c.streamIDs(ctx, c.allStreamID(), true)
}

func (c *Client) StarredIDs(ctx context.Context) (provider.IDList, error) {
	return c.streamIDs(ctx, c.savedStreamID(), false)
}

func (c *Client) SendStatus(ctx context.Context, articleIDs []string, action provider.StatusAction) error {
	payload := map[string]any{
		"action":   string(action),
		"type":     "entries",
		"entryIds": articleIDs,
	}
	return c.post(ctx, http.MethodPost, "/v3/markers", payload, nil)
}

func (c *Client) CreateFeed(ctx context.Context, rawURL string) (provider.CreateFeedResult, error) {
	payload := map[string]string{"id": "feed/" + rawURL}

	var sub subscriptionPayload
	err := c.post(ctx, http.MethodPost, "/v3/subscriptions", payload, &sub)
	if err != nil {
		if provider.KindOf(err) == provider.KindNotFound {
			return provider.CreateFeedResult{Kind: provider.CreateFeedNotFound}, nil
		}
		return provider.CreateFeedResult{}, err
	}

	feed := provider.RemoteFeed{
		FeedID:      sub.ID,
		ExternalID:  sub.ID,
		Name:        sub.Title,
		URL:         feedURL(sub.ID),
		HomePageURL: sub.Website,
	}
	return provider.CreateFeedResult{Kind: provider.CreateFeedCreated, Feed: &feed}, nil
}

func (c *Client) DeleteFeed(ctx context.Context, externalID string) error {
	return c.post(ctx, http.MethodDelete, "/v3/subscriptions/"+url.PathEscape(externalID), nil, nil)
}

func (c *Client) RenameFeed(ctx context.Context, externalID, name string) error {
	payload := map[string]string{"id": externalID, "title": name}
	return c.post(ctx, http.MethodPost, "/v3/subscriptions", payload, nil)
}

// MoveFeed rewrites the subscription's category list. An empty ToFolder
// leaves the feed uncategorized.
func (c *Client) MoveFeed(ctx context.Context, req provider.MoveFeedRequest) error {
	if err := c.ensureUserID(ctx); err != nil {
		return err
	}

	categories := []map[string]string{}
	if req.ToFolder != "" {
		categories = append(categories, map[string]string{
			"id":    "user/" + c.userID + "/category/" + req.ToFolder,
			"label": req.ToFolder,
		})
	}
	payload := map[string]any{"id": req.ExternalID, "categories": categories}
	return c.post(ctx, http.MethodPost, "/v3/subscriptions", payload, nil)
}
