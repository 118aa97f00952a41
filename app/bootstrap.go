package main

import (
	"context"
	"log/slog"

	"feedsync/app/accounts"
	"feedsync/app/database"
	"feedsync/app/model"
	"feedsync/app/provider"
	"feedsync/app/secrets"
	"feedsync/app/sync"
)

// rebuildCoordinators brings the database and the coordinator registry in
// line with the accounts file. Accounts removed from the file keep their
// database rows but lose their coordinator: history stays, syncing stops.
func rebuildCoordinators(ctx context.Context, cache *accounts.Cache,
	secretStore *secrets.Store, accountRepo database.AccountRepository,
	registry *sync.Registry, deps sync.Deps) error {

	entries := cache.GetEntries()
	configured := make(map[string]bool, len(entries))

	for _, entry := range entries {
		configured[entry.Name] = true

		account := model.Account{
			Name:           entry.Name,
			Provider:       model.Provider(entry.Provider),
			CredentialsKey: entry.Credentials,
			Enabled:        entry.IsEnabled(),
		}
		id, err := accountRepo.UpsertAccount(ctx, account)
		if err != nil {
			slog.Error("Failed to register account", "account", entry.Name, "error", err)
			continue
		}

		stored, err := accountRepo.GetAccount(ctx, id)
		if err != nil || stored == nil {
			slog.Error("Failed to read back account", "account", entry.Name, "error", err)
			continue
		}

		if !entry.IsEnabled() {
			registry.Remove(id)
			slog.Info("Account disabled", "account", entry.Name)
			continue
		}

		var creds provider.Credentials
		if entry.Credentials != "" {
			creds, err = secretStore.Credentials(entry.Credentials)
			if err != nil {
				slog.Error("Missing credentials for account", "account", entry.Name, "key", entry.Credentials, "error", err)
				registry.Remove(id)
				continue
			}
		}

		coordinator, err := sync.NewCoordinator(*stored, creds, deps)
		if err != nil {
			slog.Error("Failed to build coordinator", "account", entry.Name, "error", err)
			registry.Remove(id)
			continue
		}
		registry.Set(coordinator)
		slog.Debug("Coordinator registered", "account", entry.Name, "provider", entry.Provider)
	}

	// Drop coordinators for accounts no longer in the file.
	stored, err := accountRepo.GetAccounts(ctx)
	if err != nil {
		return err
	}
	for _, account := range stored {
		if !configured[account.Name] {
			registry.Remove(account.ID)
		}
	}

	return nil
}
