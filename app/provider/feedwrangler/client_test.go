package feedwrangler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedsync/app/model"
	"feedsync/app/provider"
)

type noConditional struct{}

func (noConditional) Validator(context.Context, string, string) (*model.Validator, error) {
	return nil, nil
}
func (noConditional) Store(context.Context, string, string, model.Validator) error { return nil }
func (noConditional) Expire(context.Context, string, string) error                 { return nil }

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	transport := provider.NewTransport(server.Client(), noConditional{}, "feedwrangler", "acct-1", "test", 5*time.Second)
	return NewClient(transport, provider.Credentials{Token: "token"}, Options{BaseURL: server.URL, PageSize: 2})
}

func writeItems(w http.ResponseWriter, ids ...int64) {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{"feed_item_id": id})
	}
	json.NewEncoder(w).Encode(map[string]any{"result": "success", "feed_items": items})
}

func TestCollectIDsStopsOnShortPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed_items/list", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "0" {
			writeItems(w, 1, 2)
			return
		}
		writeItems(w, 3)
	})

	client := newTestClient(t, mux)
	list, err := client.UnreadIDs(context.Background())
	if err != nil {
		t.Fatalf("UnreadIDs failed: %v", err)
	}
	if len(list.IDs) != 3 {
		t.Errorf("Expected 3 ids across pages, got %v", list.IDs)
	}
}

func TestCollectIDsRejectOverflow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed_items/list", func(w http.ResponseWriter, r *http.Request) {
		// Every page comes back full, so the listing never terminates.
		writeItems(w, 1, 2)
	})

	client := newTestClient(t, mux)
	list, err := client.UnreadIDs(context.Background())
	if err == nil {
		t.Fatalf("Expected an error for a listing that never ends, got %d ids", len(list.IDs))
	}
	if len(list.IDs) != 0 {
		t.Errorf("A failed listing must not carry a partial id set, got %v", list.IDs)
	}
}
