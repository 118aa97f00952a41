package model

import (
	"time"
)

type Provider string

const (
	ProviderLocal        Provider = "local"
	ProviderFeedbin      Provider = "feedbin"
	ProviderFeedly       Provider = "feedly"
	ProviderNewsBlur     Provider = "newsblur"
	ProviderFeedWrangler Provider = "feedwrangler"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderFeedbin, ProviderFeedly, ProviderNewsBlur, ProviderFeedWrangler:
		return true
	}
	return false
}

// Account is one connection to a provider. Exactly one account per provider
// connection; removing it cascades to its folders, feeds, articles and
// pending statuses.
type Account struct {
	ID             string
	Name           string
	Provider       Provider
	CredentialsKey string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// LastArticleFetch is the start time of the last completed article
	// fetch, used as the incremental "since" for the next pass.
	LastArticleFetch *time.Time
}

// Folder is a named container owned by one account. Never nested.
type Folder struct {
	ID         string
	AccountID  string
	Name       string
	ExternalID string
	CreatedAt  time.Time
}

type Feed struct {
	ID        string
	AccountID string
	FolderID  *string // nil when the feed sits at the account top level

	// FeedID is the provider-assigned feed identifier, the foreign key
	// remote entries use to point back at this feed.
	FeedID string
	// ExternalID is the provider's subscription id, used for delete/rename.
	ExternalID string

	URL         string
	HomePageURL string
	Name        string
	// EditedName wins display priority over Name; it is cleared when the
	// provider renames the feed.
	EditedName string

	// FolderRelationship maps folder name to the provider-specific
	// relationship id (Feedbin tagging id and the like). Membership, not
	// ownership.
	FolderRelationship map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the user-edited name when present, the provider name
// otherwise.
func (f *Feed) DisplayName() string {
	if f.EditedName != "" {
		return f.EditedName
	}
	if f.Name != "" {
		return f.Name
	}
	return f.URL
}

type Article struct {
	ID          string
	FeedID      string
	AccountID   string
	Title       string
	URL         string
	ExternalURL string
	Summary     string
	ContentHTML string
	Authors     []string
	Published   *time.Time
	Modified    *time.Time
	CreatedAt   time.Time
}

type StatusKey string

const (
	StatusRead        StatusKey = "read"
	StatusStarred     StatusKey = "starred"
	StatusUserDeleted StatusKey = "userDeleted"
)

func (k StatusKey) Valid() bool {
	switch k {
	case StatusRead, StatusStarred, StatusUserDeleted:
		return true
	}
	return false
}

// ArticleStatus is the only frequently mutated entity; reconciliation
// reduces to keeping this set consistent with the remote service.
type ArticleStatus struct {
	ArticleID   string
	Read        bool
	Starred     bool
	UserDeleted bool
	DateArrived time.Time
}

// PendingStatus is a local status mutation not yet confirmed as delivered to
// the remote service. At most one outstanding entry per (articleID, key);
// a newer mutation overwrites.
type PendingStatus struct {
	ArticleID string
	Key       StatusKey
	Flag      bool
	Selected  bool
	QueuedAt  time.Time
}

// Validator holds the conditional-fetch validator headers stored after a
// successful fetch of a cacheable resource.
type Validator struct {
	ETag         string
	LastModified string
}

func (v Validator) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}
