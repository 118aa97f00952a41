// Package provider defines the contracts a remote feed-reading service
// client must satisfy, the normalized shapes it returns, and the shared HTTP
// transport with conditional-fetch support.
package provider

import (
	"context"
	"time"

	"feedsync/app/parser"
)

type Credentials struct {
	Username string
	Password string
	Token    string
}

func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == "" && c.Token == ""
}

type RemoteFolder struct {
	Name       string
	ExternalID string
}

type RemoteFeed struct {
	// FeedID is the provider feed identifier remote entries reference.
	FeedID string
	// ExternalID is the provider's subscription id used for delete/rename.
	ExternalID  string
	Name        string
	URL         string
	HomePageURL string
}

// RemoteTagging is one provider folder/feed relationship record.
type RemoteTagging struct {
	RelationshipID string
	FolderName     string
	FeedID         string
}

// FolderList is the result of a conditional folder fetch. Unchanged means
// the provider reported the resource as not modified; the caller must treat
// local state as already correct and must not reconcile against an empty
// list.
type FolderList struct {
	Folders   []RemoteFolder
	Unchanged bool
}

type FeedList struct {
	Feeds     []RemoteFeed
	Unchanged bool
}

type TaggingList struct {
	Taggings  []RemoteTagging
	Unchanged bool
}

// IDList is the result of a conditional unread/starred id fetch.
type IDList struct {
	IDs       []string
	Unchanged bool
}

// EntryPage is one page of an article listing. NextToken is the opaque
// continuation cursor; empty means end of stream for providers with a true
// cursor. ServerDate, when present, is the server's clock at response time
// and becomes the next incremental fetch boundary.
type EntryPage struct {
	Items      []parser.Item
	NextToken  string
	ServerDate *time.Time
}

// StatusAction is the provider-facing status mutation verb.
type StatusAction string

const (
	ActionMarkRead    StatusAction = "markAsRead"
	ActionKeepUnread  StatusAction = "keepUnread"
	ActionMarkSaved   StatusAction = "markAsSaved"
	ActionMarkUnsaved StatusAction = "markAsUnsaved"
)

// CreateFeedResult distinguishes the non-error outcomes of a feed creation:
// AlreadySubscribed and MultipleChoice are results, not failures.
type CreateFeedResult struct {
	Kind    CreateFeedKind
	Feed    *RemoteFeed
	Choices []FeedChoice
}

type CreateFeedKind int

const (
	CreateFeedCreated CreateFeedKind = iota
	CreateFeedAlreadySubscribed
	CreateFeedNotFound
	CreateFeedMultipleChoice
)

type FeedChoice struct {
	Name string
	URL  string
}

// MoveFeedRequest carries a folder membership change to the provider.
// FromFolder is empty when the feed sat at the top level, ToFolder when it
// moves there. RelationshipID is the provider relationship record for the
// old membership, when one is known.
type MoveFeedRequest struct {
	FeedID         string
	ExternalID     string
	FromFolder     string
	ToFolder       string
	RelationshipID string
}

// Client is the typed wrapper over one provider's HTTP API. Implementations
// are stateless aside from credentials and the conditional-fetch cache, and
// must normalize provider errors into the package taxonomy.
type Client interface {
	ValidateCredentials(ctx context.Context) (bool, error)

	Folders(ctx context.Context) (FolderList, error)
	Feeds(ctx context.Context) (FeedList, error)
	Taggings(ctx context.Context) (TaggingList, error)

	Entries(ctx context.Context, since time.Time, continuationToken string) (EntryPage, error)
	EntriesForIDs(ctx context.Context, articleIDs []string) ([]parser.Item, error)

	UnreadIDs(ctx context.Context) (IDList, error)
	StarredIDs(ctx context.Context) (IDList, error)
	SendStatus(ctx context.Context, articleIDs []string, action StatusAction) error

	CreateFeed(ctx context.Context, url string) (CreateFeedResult, error)
	DeleteFeed(ctx context.Context, externalID string) error
	RenameFeed(ctx context.Context, externalID, name string) error
	MoveFeed(ctx context.Context, req MoveFeedRequest) error

	// Suspend cancels in-flight requests and rejects new ones until Resume.
	Suspend()
	Resume()
}
