package sync

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"feedsync/app/database"
	"feedsync/app/model"
	"feedsync/app/provider"
	"feedsync/app/provider/feedbin"
	"feedsync/app/provider/feedly"
	"feedsync/app/provider/feedwrangler"
	"feedsync/app/provider/local"
	"feedsync/app/provider/newsblur"
	"feedsync/app/store"
)

// Deps bundles what every coordinator needs regardless of provider.
type Deps struct {
	Store       *store.Store
	Accounts    database.AccountRepository
	Pending     database.SyncStatusRepository
	Conditional database.ConditionalGetRepository
	HTTPClient  *http.Client
	Progress    *Tracker
	Logger      *slog.Logger
	UserAgent   string
	Timeout     time.Duration
	PageSize    int

	// SendBatchSizes overrides the per-provider status delivery batch size.
	// A missing or zero entry keeps the provider default.
	SendBatchSizes map[model.Provider]int
	// Lookback and Backdate override the article sync window when positive.
	Lookback time.Duration
	Backdate time.Duration
}

// profileFor applies the configured tuning on top of the provider's profile.
func (d Deps) profileFor(p model.Provider) Profile {
	profile := ProfileFor(p)
	if n := d.SendBatchSizes[p]; n > 0 {
		profile.SendBatchSize = n
	}
	if d.Lookback > 0 {
		profile.Lookback = d.Lookback
	}
	if d.Backdate > 0 {
		profile.Backdate = d.Backdate
	}
	return profile
}

// NewCoordinator builds the coordinator for one account. Each account gets
// its own transport so suspension and conditional-fetch state stay scoped to
// the account.
func NewCoordinator(account model.Account, creds provider.Credentials, deps Deps) (Coordinator, error) {
	transport := provider.NewTransport(deps.HTTPClient, deps.Conditional,
		string(account.Provider), account.ID, deps.UserAgent, deps.Timeout)

	if account.Provider == model.ProviderLocal {
		refresher := local.NewRefresher(transport)
		return NewLocalCoordinator(account, refresher, deps.Store, deps.Accounts, deps.Progress, deps.Logger), nil
	}

	var client provider.Client
	switch account.Provider {
	case model.ProviderFeedbin:
		client = feedbin.NewClient(transport, creds, feedbin.Options{PageSize: deps.PageSize})
	case model.ProviderFeedly:
		client = feedly.NewClient(transport, creds, feedly.Options{PageSize: deps.PageSize})
	case model.ProviderNewsBlur:
		client = newsblur.NewClient(transport, creds, newsblur.Options{})
	case model.ProviderFeedWrangler:
		client = feedwrangler.NewClient(transport, creds, feedwrangler.Options{PageSize: deps.PageSize})
	default:
		return nil, fmt.Errorf("unknown provider %q for account %s", account.Provider, account.Name)
	}

	profile := deps.profileFor(account.Provider)
	return NewRemoteCoordinator(account, client, deps.Store, deps.Accounts, deps.Pending, profile, deps.Progress, deps.Logger), nil
}
