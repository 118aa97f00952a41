// Package secrets resolves account credentials. Credentials never appear in
// the accounts file; they live in an env-format secrets file (or the process
// environment) under names derived from the account's credentials key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"feedsync/app/provider"
)

type Store struct {
	values map[string]string
}

// Load reads the secrets file. A missing file is fine: the process
// environment alone may carry the credentials.
func Load(path string) (*Store, error) {
	values := make(map[string]string)

	if _, err := os.Stat(path); err == nil {
		fileValues, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read secrets file: %w", err)
		}
		values = fileValues
		slog.Debug("Secrets file loaded", "path", path, "entries", len(values))
	}

	return &Store{values: values}, nil
}

// lookup prefers the secrets file, falling back to the process environment.
func (s *Store) lookup(name string) string {
	if v, ok := s.values[name]; ok {
		return v
	}
	return os.Getenv(name)
}

// Credentials resolves the credential set for a key. For key "feedbin_main"
// the names checked are FEEDBIN_MAIN_USERNAME, FEEDBIN_MAIN_PASSWORD and
// FEEDBIN_MAIN_TOKEN.
func (s *Store) Credentials(key string) (provider.Credentials, error) {
	if key == "" {
		return provider.Credentials{}, nil
	}

	prefix := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	creds := provider.Credentials{
		Username: s.lookup(prefix + "_USERNAME"),
		Password: s.lookup(prefix + "_PASSWORD"),
		Token:    s.lookup(prefix + "_TOKEN"),
	}

	if creds.IsZero() {
		return creds, fmt.Errorf("no credentials found for key '%s'", key)
	}
	return creds, nil
}
