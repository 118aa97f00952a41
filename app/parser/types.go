package parser

import (
	"time"

	"feedsync/app/model"
)

// FeedMetadata contains metadata about a parsed feed document.
type FeedMetadata struct {
	Title       string
	Link        string
	Description string
	IconURL     string
	Language    string
	Updated     *time.Time
}

// Item is the normalized article shape shared by the feed parser and the
// provider clients. Provider clients fill ID and FeedID with the provider's
// own identifiers; the local parser derives a stable ID from the feed URL
// and the entry GUID.
type Item struct {
	ID          string
	FeedID      string
	Title       string
	URL         string
	ExternalURL string
	Summary     string
	ContentHTML string
	Authors     []string
	Published   *time.Time
	Modified    *time.Time
	Attachments []Attachment
}

type Attachment struct {
	URL         string
	MimeType    string
	SizeInBytes int64
}

// Article converts the item into the storable article record.
func (it Item) Article(accountID string) model.Article {
	return model.Article{
		ID:          it.ID,
		FeedID:      it.FeedID,
		AccountID:   accountID,
		Title:       it.Title,
		URL:         it.URL,
		ExternalURL: it.ExternalURL,
		Summary:     it.Summary,
		ContentHTML: it.ContentHTML,
		Authors:     it.Authors,
		Published:   it.Published,
		Modified:    it.Modified,
	}
}

// Articles converts a batch of items for one account.
func Articles(accountID string, items []Item) []model.Article {
	out := make([]model.Article, 0, len(items))
	for _, it := range items {
		out = append(out, it.Article(accountID))
	}
	return out
}
