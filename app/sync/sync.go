// Package sync drives account synchronization passes. A pass walks a fixed
// step order: folders, feeds, pending status delivery, remote status sets,
// new articles, missing article bodies. Local accounts run a reduced pass
// that fetches feed documents directly.
package sync

import (
	"context"
	"errors"
	"time"

	"feedsync/app/model"
	"feedsync/app/provider"
)

// ErrPassInProgress rejects a refresh while the account's previous pass is
// still running. At most one pass per account at any time.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Coordinator is one account's synchronization surface. The API layer and
// the scheduler only ever talk to accounts through this.
type Coordinator interface {
	AccountID() string

	// RefreshAll runs one full synchronization pass.
	RefreshAll(ctx context.Context) error

	// ValidateCredentials probes the provider with the stored credentials.
	ValidateCredentials(ctx context.Context) (bool, error)

	AddFeed(ctx context.Context, feedURL, folderName string) (provider.CreateFeedResult, error)
	DeleteFeed(ctx context.Context, feedID string) error
	RenameFeed(ctx context.Context, feedID, name string) error
	MoveFeed(ctx context.Context, feedID, folderName string) error

	// SetStatuses applies a status mutation locally and queues it for
	// delivery to the provider.
	SetStatuses(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error

	// FlushPending delivers queued status mutations and re-pulls the
	// remote status sets without waiting for the next full pass.
	FlushPending(ctx context.Context) error

	Suspend()
	Resume()
}

// Profile captures the per-provider tuning a pass runs with.
type Profile struct {
	// SendBatchSize is the chunk size for pending status delivery.
	SendBatchSize int
	// MissingChunkSize is the id batch size for missing-body fetches.
	MissingChunkSize int
	// Lookback bounds how far back articles are synced.
	Lookback time.Duration
	// Backdate is subtracted from the last fetch boundary to absorb clock
	// skew between us and the provider.
	Backdate time.Duration
	// HasFolders disables the folder step for services without folders.
	HasFolders bool
	// HasTaggings disables the membership step when membership already
	// arrives with the folder listing.
	HasTaggings bool
}

const (
	defaultLookback = 3 * 30 * 24 * time.Hour
	defaultBackdate = 24 * time.Hour
)

// ProfileFor returns the pass tuning for a provider. Batch sizes follow what
// each service tolerates: Feedbin accepts large status batches, NewsBlur
// throttles aggressively, Feed Wrangler updates items one by one.
func ProfileFor(p model.Provider) Profile {
	profile := Profile{
		SendBatchSize:    100,
		MissingChunkSize: 100,
		Lookback:         defaultLookback,
		Backdate:         defaultBackdate,
		HasFolders:       true,
		HasTaggings:      true,
	}

	switch p {
	case model.ProviderFeedbin:
		profile.SendBatchSize = 1000
	case model.ProviderFeedly:
		profile.SendBatchSize = 1000
	case model.ProviderNewsBlur:
		profile.SendBatchSize = 5
	case model.ProviderFeedWrangler:
		profile.SendBatchSize = 100
		profile.HasFolders = false
		profile.HasTaggings = false
	}
	return profile
}
