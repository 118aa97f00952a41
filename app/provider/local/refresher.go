// Package local implements feed refresh for local accounts. There is no
// remote service: each feed document is fetched directly with a conditional
// GET, parsed, and merged into the store by the coordinator. Statuses never
// leave the machine, so local accounts have no pending queue to drain.
package local

import (
	"context"
	"net/http"

	"feedsync/app/model"
	"feedsync/app/parser"
	"feedsync/app/provider"
)

type Refresher struct {
	transport *provider.Transport
	parser    *parser.Parser
	extractor *ContentExtractor
}

func NewRefresher(transport *provider.Transport) *Refresher {
	return &Refresher{
		transport: transport,
		parser:    parser.NewParser(),
		extractor: NewContentExtractor(),
	}
}

func (r *Refresher) Suspend() { r.transport.Suspend() }
func (r *Refresher) Resume()  { r.transport.Resume() }

// RefreshResult is one feed's refresh outcome. Unchanged means the document
// was confirmed not modified and local articles are already current.
type RefreshResult struct {
	Metadata  *parser.FeedMetadata
	Items     []parser.Item
	Unchanged bool
}

// RefreshFeed fetches and parses one feed document. The conditional-fetch
// validator is keyed by the feed URL, so a 304 skips parsing entirely.
func (r *Refresher) RefreshFeed(ctx context.Context, feed model.Feed) (RefreshResult, error) {
	resp, err := r.transport.Do(ctx, provider.Request{
		Method:      http.MethodGet,
		URL:         feed.URL,
		ResourceKey: "feed:" + feed.URL,
	})
	if err != nil {
		return RefreshResult{}, err
	}
	if resp.NotModified {
		return RefreshResult{Unchanged: true}, nil
	}

	metadata, items, err := r.parser.Parse(feed.URL, resp.Body)
	if err != nil {
		return RefreshResult{}, provider.NewError(provider.KindMalformedResponse, "local", "parse "+feed.URL, err)
	}

	for i := range items {
		items[i].FeedID = feed.FeedID
	}
	return RefreshResult{Metadata: metadata, Items: items}, nil
}

// ExtractContent fetches an article's web page and extracts the readable
// body, for items whose feed entry carried only a summary.
func (r *Refresher) ExtractContent(ctx context.Context, pageURL string) (string, error) {
	resp, err := r.transport.Do(ctx, provider.Request{
		Method: http.MethodGet,
		URL:    pageURL,
	})
	if err != nil {
		return "", err
	}
	return r.extractor.Run(resp.Body)
}

// ValidateFeedURL checks that a URL parses as a feed before a local
// subscription is created.
func (r *Refresher) ValidateFeedURL(ctx context.Context, feedURL string) (*parser.FeedMetadata, error) {
	resp, err := r.transport.Do(ctx, provider.Request{
		Method: http.MethodGet,
		URL:    feedURL,
	})
	if err != nil {
		return nil, err
	}

	metadata, _, err := r.parser.Parse(feedURL, resp.Body)
	if err != nil {
		return nil, provider.NewError(provider.KindMalformedResponse, "local", "parse "+feedURL, err)
	}
	return metadata, nil
}
