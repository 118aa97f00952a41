package api

import (
	"feedsync/app/database"
	"feedsync/app/store"
	"feedsync/app/sync"
	"feedsync/app/tasks"
)

type Handler struct {
	store     *store.Store
	accounts  database.AccountRepository
	pending   database.SyncStatusRepository
	registry  *sync.Registry
	progress  *sync.Tracker
	scheduler tasks.TaskSchedulerInterface
	hub       *Hub
}
