package sync

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/app/model"
	"feedsync/app/provider"
	"feedsync/app/provider/local"
	"feedsync/app/store"
)

const localFeedDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Local Feed</title>
    <link>https://example.com/</link>
    <item>
      <guid>entry-1</guid>
      <title>Hello</title>
      <link>https://example.com/1</link>
    </item>
  </channel>
</rss>`

func newLocalEnv(t *testing.T) (*LocalCoordinator, *store.Store, *memFeeds, *memArticles) {
	t.Helper()

	accounts := newMemAccounts()
	feeds := newMemFeeds()
	articles := newMemArticles()
	st := store.New(accounts, feeds, articles)

	account := model.Account{ID: "local-1", Name: "On My Machine", Provider: model.ProviderLocal}
	accounts.accounts[account.ID] = account

	transport := provider.NewTransport(provider.NewHTTPClient(), newMemConditional(),
		"local", account.ID, "feedsync-test", 5*time.Second)
	refresher := local.NewRefresher(transport)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewLocalCoordinator(account, refresher, st, accounts, NewTracker(), logger), st, feeds, articles
}

func TestLocalRefreshFetchesAndParses(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(localFeedDoc))
	}))
	defer server.Close()

	coordinator, st, feeds, _ := newLocalEnv(t)
	ctx := context.Background()

	feed := model.Feed{AccountID: "local-1", FeedID: server.URL, URL: server.URL, Name: "placeholder"}
	if _, err := feeds.InsertFeed(ctx, feed); err != nil {
		t.Fatalf("InsertFeed failed: %v", err)
	}

	if err := coordinator.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}

	articles, _ := st.Articles(ctx, "local-1", server.URL, 0)
	if len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(articles))
	}
	if articles[0].Title != "Hello" {
		t.Errorf("Article title = %q, want Hello", articles[0].Title)
	}

	// Locally fetched articles arrive unread.
	unread, _ := st.UnreadArticleIDs(ctx, "local-1")
	if unread.Len() != 1 {
		t.Errorf("New local article should be unread, unread set = %v", unread.Slice())
	}

	// Feed metadata comes from the document.
	updated, _ := st.Feeds(ctx, "local-1")
	if updated[0].Name != "Local Feed" {
		t.Errorf("Feed name = %q, want 'Local Feed'", updated[0].Name)
	}

	// Second pass: the stored validator turns the fetch into a 304 and the
	// article set is left alone.
	if err := coordinator.RefreshAll(ctx); err != nil {
		t.Fatalf("Second RefreshAll failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("Expected 2 fetches, got %d", hits.Load())
	}
	articles, _ = st.Articles(ctx, "local-1", server.URL, 0)
	if len(articles) != 1 {
		t.Errorf("Unchanged document must not duplicate articles, got %d", len(articles))
	}
}

func TestLocalAddFeedValidatesDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(localFeedDoc))
	}))
	defer server.Close()

	coordinator, st, _, _ := newLocalEnv(t)
	ctx := context.Background()

	result, err := coordinator.AddFeed(ctx, server.URL, "blogs")
	if err != nil {
		t.Fatalf("AddFeed failed: %v", err)
	}
	if result.Kind != provider.CreateFeedCreated {
		t.Fatalf("Result kind = %v, want Created", result.Kind)
	}

	feeds, _ := st.Feeds(ctx, "local-1")
	if len(feeds) != 1 {
		t.Fatalf("Expected 1 feed, got %d", len(feeds))
	}
	if feeds[0].Name != "Local Feed" {
		t.Errorf("Feed name = %q, want 'Local Feed'", feeds[0].Name)
	}
	if feeds[0].FolderID == nil {
		t.Error("Feed should be placed in the requested folder")
	}

	// The initial download runs as part of the subscription.
	articles, _ := st.Articles(ctx, "local-1", server.URL, 0)
	if len(articles) != 1 {
		t.Errorf("Expected initial download to store 1 article, got %d", len(articles))
	}

	// Subscribing again reports the existing subscription.
	result, err = coordinator.AddFeed(ctx, server.URL, "")
	if err != nil {
		t.Fatalf("Second AddFeed failed: %v", err)
	}
	if result.Kind != provider.CreateFeedAlreadySubscribed {
		t.Errorf("Result kind = %v, want AlreadySubscribed", result.Kind)
	}
}

func TestLocalAddFeedRejectsNonFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>not a feed</body></html>"))
	}))
	defer server.Close()

	coordinator, _, _, _ := newLocalEnv(t)

	result, err := coordinator.AddFeed(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("AddFeed failed: %v", err)
	}
	if result.Kind != provider.CreateFeedNotFound {
		t.Errorf("Result kind = %v, want NotFound", result.Kind)
	}
}
