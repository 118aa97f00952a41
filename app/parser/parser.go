// Package parser turns raw RSS/Atom/JSON Feed documents into normalized
// items and feed metadata. It is the ingestion path for local accounts; the
// provider clients reuse its Item shape for entries that arrive as JSON.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Parse parses a feed document fetched from feedURL and returns its metadata
// and normalized items. Item ids are stable across fetches: the same feed URL
// and entry GUID always hash to the same id, which is what makes article
// upserts idempotent.
func (p *Parser) Parse(feedURL string, data []byte) (*FeedMetadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &FeedMetadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}
	if feed.Image != nil {
		metadata.IconURL = feed.Image.URL
	}
	if feed.UpdatedParsed != nil {
		metadata.Updated = feed.UpdatedParsed
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		items = append(items, p.normalizeItem(feedURL, item))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(feedURL string, item *gofeed.Item) Item {
	guid := coalesce(item.GUID, item.Link, item.Title)

	normalized := Item{
		ID:          ItemID(feedURL, guid),
		FeedID:      feedURL,
		Title:       item.Title,
		URL:         item.Link,
		Summary:     item.Description,
		ContentHTML: item.Content,
		Published:   item.PublishedParsed,
		Modified:    item.UpdatedParsed,
	}

	for _, author := range item.Authors {
		if author == nil || author.Name == "" {
			continue
		}
		normalized.Authors = append(normalized.Authors, author.Name)
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		normalized.Attachments = append(normalized.Attachments, Attachment{
			URL:      enc.URL,
			MimeType: enc.Type,
		})
	}

	return normalized
}

// ItemID derives the stable article id for a locally parsed entry.
func ItemID(feedURL, guid string) string {
	hash := sha256.Sum256([]byte(feedURL + "|" + guid))
	return hex.EncodeToString(hash[:])
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
