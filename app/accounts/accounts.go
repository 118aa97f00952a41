// Package accounts loads and watches the accounts configuration file. The
// file declares which provider connections exist; credentials live in the
// secrets file and are referenced by key.
package accounts

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"feedsync/app/model"
)

// Entry is one configured account. The credentials key names the secret set
// holding the account's username/password or token.
type Entry struct {
	Name        string `yaml:"name"`
	Provider    string `yaml:"provider"`
	Credentials string `yaml:"credentials"`
	Enabled     *bool  `yaml:"enabled"`
}

// IsEnabled defaults to true when the field is omitted.
func (e Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

type fileConfig struct {
	Accounts []Entry `yaml:"accounts"`
}

type Cache struct {
	path    string
	entries map[string]Entry
	mu      sync.RWMutex
}

func NewCache(path string) *Cache {
	return &Cache{
		path:    path,
		entries: make(map[string]Entry),
	}
}

// Run loads the accounts file. A missing file is not an error: the service
// starts empty and picks accounts up once the file appears.
func (c *Cache) Run() error {
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		slog.Debug("Accounts file not found", "path", c.path)
		return nil
	}
	return c.Reload()
}

// Reload re-reads the accounts file and replaces the cached entries. On a
// parse or validation error the previous entries stay in place.
func (c *Cache) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read accounts file: %w", err)
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	entries := make(map[string]Entry, len(config.Accounts))
	for i, entry := range config.Accounts {
		if err := validateEntry(entry); err != nil {
			return fmt.Errorf("invalid account at index %d: %w", i, err)
		}
		if _, ok := entries[entry.Name]; ok {
			return fmt.Errorf("duplicate account name '%s'", entry.Name)
		}
		entries[entry.Name] = entry

		slog.Debug("Account configuration loaded", "account", entry.Name, "provider", entry.Provider, "enabled", entry.IsEnabled())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries

	return nil
}

func (c *Cache) GetEntry(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("account with name '%s' not found", name)
	}
	return &entry, nil
}

// GetEntries returns all configured accounts in stable name order.
func (c *Cache) GetEntries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func (c *Cache) GetEnabledEntries() []Entry {
	var enabled []Entry
	for _, entry := range c.GetEntries() {
		if entry.IsEnabled() {
			enabled = append(enabled, entry)
		}
	}
	return enabled
}

func (c *Cache) GetEntryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func validateEntry(entry Entry) error {
	if entry.Name == "" {
		return fmt.Errorf("account name is required")
	}

	provider := model.Provider(entry.Provider)
	if !provider.Valid() {
		return fmt.Errorf("unknown provider '%s'", entry.Provider)
	}

	if provider != model.ProviderLocal && entry.Credentials == "" {
		return fmt.Errorf("credentials key is required for provider '%s'", entry.Provider)
	}

	return nil
}
