package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"feedsync/app/database"
	"feedsync/app/model"
	"feedsync/app/provider"
	"feedsync/app/store"
	"feedsync/app/sync"
	"feedsync/app/tasks"
)

func NewHandler(st *store.Store, accounts database.AccountRepository,
	pending database.SyncStatusRepository, registry *sync.Registry,
	progress *sync.Tracker, scheduler tasks.TaskSchedulerInterface, hub *Hub) *Handler {
	return &Handler{
		store:     st,
		accounts:  accounts,
		pending:   pending,
		registry:  registry,
		progress:  progress,
		scheduler: scheduler,
		hub:       hub,
	}
}

// collator orders folder and feed names the way a user expects, not by byte
// value.
var collator = collate.New(language.Und, collate.IgnoreCase)

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if accounts, err := h.accounts.GetAccounts(c.Request.Context()); err == nil {
		health["accounts"] = len(accounts)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListAccounts(c *gin.Context) {
	ctx := c.Request.Context()

	accounts, err := h.accounts.GetAccounts(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_accounts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]map[string]interface{}, 0, len(accounts))
	for _, account := range accounts {
		info := map[string]interface{}{
			"id":       account.ID,
			"name":     account.Name,
			"provider": account.Provider,
			"enabled":  account.Enabled,
			"state":    h.progress.Snapshot(account.ID).State,
		}
		if account.LastArticleFetch != nil {
			info["last_article_fetch"] = account.LastArticleFetch
		}
		if unread, err := h.store.UnreadCount(ctx, account.ID); err == nil {
			info["unread_count"] = unread
		}
		if queued, err := h.pending.PendingCount(ctx, account.ID); err == nil {
			info["pending_statuses"] = queued
		}
		out = append(out, info)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"accounts": out,
		"total":    len(out),
	})
}

func (h *Handler) APIGetAccount(c *gin.Context) {
	ctx := c.Request.Context()

	account, ok := h.requireAccount(c)
	if !ok {
		return
	}

	snapshot, err := h.store.Snapshot(ctx, account.ID)
	if err != nil {
		slog.Error("Database error", "operation", "snapshot", "account", account.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"id":       account.ID,
		"name":     account.Name,
		"provider": account.Provider,
		"enabled":  account.Enabled,
		"tree":     buildTree(snapshot),
		"progress": h.progress.Snapshot(account.ID),
	})
}

type treeFeed struct {
	FeedID      string `json:"feed_id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	HomePageURL string `json:"home_page_url,omitempty"`
}

type treeFolder struct {
	Name  string     `json:"name"`
	Feeds []treeFeed `json:"feeds"`
}

type tree struct {
	Folders []treeFolder `json:"folders"`
	Feeds   []treeFeed   `json:"feeds"`
}

// buildTree shapes an account snapshot into the folder/feed hierarchy with
// user-facing name ordering.
func buildTree(snapshot *store.Snapshot) tree {
	byFolder := make(map[string][]treeFeed)
	var topLevel []treeFeed

	for i := range snapshot.Feeds {
		feed := &snapshot.Feeds[i]
		entry := treeFeed{
			FeedID:      feed.FeedID,
			Name:        feed.DisplayName(),
			URL:         feed.URL,
			HomePageURL: feed.HomePageURL,
		}
		if feed.FolderID == nil {
			topLevel = append(topLevel, entry)
		} else {
			byFolder[*feed.FolderID] = append(byFolder[*feed.FolderID], entry)
		}
	}

	sortFeeds := func(feeds []treeFeed) {
		sort.SliceStable(feeds, func(i, j int) bool {
			return collator.CompareString(feeds[i].Name, feeds[j].Name) < 0
		})
	}

	folders := make([]treeFolder, 0, len(snapshot.Folders))
	for _, folder := range snapshot.Folders {
		feeds := byFolder[folder.ID]
		if feeds == nil {
			feeds = []treeFeed{}
		}
		sortFeeds(feeds)
		folders = append(folders, treeFolder{Name: folder.Name, Feeds: feeds})
	}
	sort.SliceStable(folders, func(i, j int) bool {
		return collator.CompareString(folders[i].Name, folders[j].Name) < 0
	})

	if topLevel == nil {
		topLevel = []treeFeed{}
	}
	sortFeeds(topLevel)

	return tree{Folders: folders, Feeds: topLevel}
}

func (h *Handler) APIListArticles(c *gin.Context) {
	ctx := c.Request.Context()

	account, ok := h.requireAccount(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	articles, err := h.store.Articles(ctx, account.ID, c.Query("feed_id"), limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_articles", "account", account.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]map[string]interface{}, 0, len(articles))
	for _, article := range articles {
		entry := map[string]interface{}{
			"id":      article.ID,
			"feed_id": article.FeedID,
			"title":   article.Title,
			"url":     article.URL,
			"summary": article.Summary,
		}
		if article.Published != nil {
			entry["published"] = article.Published
		}
		if status, err := h.store.ArticleStatus(ctx, account.ID, article.ID); err == nil && status != nil {
			entry["read"] = status.Read
			entry["starred"] = status.Starred
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"articles": out,
		"total":    len(out),
	})
}

func (h *Handler) APIRefreshAccount(c *gin.Context) {
	account, ok := h.requireAccount(c)
	if !ok {
		return
	}

	coordinator, ok := h.requireCoordinator(c, account)
	if !ok {
		return
	}

	task := tasks.NewRefreshAccountTask(coordinator)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing refresh task", "account", account.Name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue refresh task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

type addFeedRequest struct {
	URL    string `json:"url" binding:"required"`
	Folder string `json:"folder"`
}

func (h *Handler) APIAddFeed(c *gin.Context) {
	account, ok := h.requireAccount(c)
	if !ok {
		return
	}
	coordinator, ok := h.requireCoordinator(c, account)
	if !ok {
		return
	}

	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := coordinator.AddFeed(c.Request.Context(), req.URL, req.Folder)
	if err != nil {
		slog.Error("Failed to add feed", "account", account.Name, "url", req.URL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to add feed", "details": err.Error()})
		return
	}

	switch result.Kind {
	case provider.CreateFeedCreated:
		// Schedule a pass so the new subscription's articles come down
		// right away.
		if err := h.scheduler.EnqueueTask(tasks.NewRefreshAccountTask(coordinator)); err != nil {
			slog.Warn("Failed to enqueue refresh after subscribe", "account", account.Name, "error", err)
		}
		response := gin.H{"success": true, "result": "created"}
		if result.Feed != nil {
			response["feed"] = gin.H{
				"feed_id": result.Feed.FeedID,
				"name":    result.Feed.Name,
				"url":     result.Feed.URL,
			}
		}
		c.JSON(http.StatusCreated, response)
	case provider.CreateFeedAlreadySubscribed:
		c.JSON(http.StatusOK, gin.H{"success": true, "result": "already_subscribed"})
	case provider.CreateFeedNotFound:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "result": "not_found"})
	case provider.CreateFeedMultipleChoice:
		choices := make([]gin.H, 0, len(result.Choices))
		for _, choice := range result.Choices {
			choices = append(choices, gin.H{"name": choice.Name, "url": choice.URL})
		}
		c.JSON(http.StatusMultipleChoices, gin.H{"success": false, "result": "multiple_choice", "choices": choices})
	}
}

type feedRequest struct {
	FeedID string `json:"feed_id" binding:"required"`
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

func (h *Handler) APIDeleteFeed(c *gin.Context) {
	h.feedMutation(c, func(coordinator sync.Coordinator, req feedRequest) error {
		return coordinator.DeleteFeed(c.Request.Context(), req.FeedID)
	})
}

func (h *Handler) APIRenameFeed(c *gin.Context) {
	h.feedMutation(c, func(coordinator sync.Coordinator, req feedRequest) error {
		return coordinator.RenameFeed(c.Request.Context(), req.FeedID, req.Name)
	})
}

func (h *Handler) APIMoveFeed(c *gin.Context) {
	h.feedMutation(c, func(coordinator sync.Coordinator, req feedRequest) error {
		return coordinator.MoveFeed(c.Request.Context(), req.FeedID, req.Folder)
	})
}

func (h *Handler) feedMutation(c *gin.Context, apply func(sync.Coordinator, feedRequest) error) {
	account, ok := h.requireAccount(c)
	if !ok {
		return
	}
	coordinator, ok := h.requireCoordinator(c, account)
	if !ok {
		return
	}

	var req feedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := apply(coordinator, req); err != nil {
		slog.Error("Feed mutation failed", "account", account.Name, "feed_id", req.FeedID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Feed operation failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type statusRequest struct {
	ArticleIDs []string `json:"article_ids" binding:"required"`
	Key        string   `json:"key" binding:"required"`
	Flag       bool     `json:"flag"`
}

func (h *Handler) APISetStatuses(c *gin.Context) {
	account, ok := h.requireAccount(c)
	if !ok {
		return
	}
	coordinator, ok := h.requireCoordinator(c, account)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	key := model.StatusKey(req.Key)
	if !key.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status key"})
		return
	}

	if err := coordinator.SetStatuses(c.Request.Context(), req.ArticleIDs, key, req.Flag); err != nil {
		slog.Error("Failed to set statuses", "account", account.Name, "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set statuses", "details": err.Error()})
		return
	}

	// Kick off delivery right away; the next scheduled flush would get it
	// anyway.
	if err := h.scheduler.EnqueueTask(tasks.NewFlushStatusesTask(coordinator)); err != nil {
		slog.Warn("Failed to enqueue flush task", "account", account.Name, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": len(req.ArticleIDs)})
}

// contentExtractor is the optional coordinator capability behind the extract
// endpoint. Only local accounts fetch article pages themselves.
type contentExtractor interface {
	ExtractContent(ctx context.Context, pageURL string) (string, error)
}

func (h *Handler) APIExtractContent(c *gin.Context) {
	account, ok := h.requireAccount(c)
	if !ok {
		return
	}
	coordinator, ok := h.requireCoordinator(c, account)
	if !ok {
		return
	}

	extractor, ok := coordinator.(contentExtractor)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Content extraction is only available for local accounts"})
		return
	}

	pageURL := c.Query("url")
	if pageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}

	content, err := extractor.ExtractContent(c.Request.Context(), pageURL)
	if err != nil {
		slog.Warn("Content extraction failed", "account", account.Name, "url", pageURL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Content extraction failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": pageURL, "content": content})
}

// APIValidateCredentials probes the provider with the account's stored
// credentials, typically after the secrets file changed.
func (h *Handler) APIValidateCredentials(c *gin.Context) {
	account, ok := h.requireAccount(c)
	if !ok {
		return
	}
	coordinator, ok := h.requireCoordinator(c, account)
	if !ok {
		return
	}

	valid, err := coordinator.ValidateCredentials(c.Request.Context())
	if err != nil {
		slog.Error("Credential validation failed", "account", account.Name, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Credential validation failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

func (h *Handler) APIGetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"accounts": h.progress.Snapshots(),
	})
}

func (h *Handler) requireAccount(c *gin.Context) (*model.Account, bool) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing account id parameter"})
		return nil, false
	}

	account, err := h.accounts.GetAccount(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_account", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return nil, false
	}
	return account, true
}

func (h *Handler) requireCoordinator(c *gin.Context, account *model.Account) (sync.Coordinator, bool) {
	coordinator, ok := h.registry.Get(account.ID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "Account is not active"})
		return nil, false
	}
	return coordinator, true
}
