package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	content := "FEEDBIN_MAIN_USERNAME=user@example.com\nFEEDBIN_MAIN_PASSWORD=hunter2\nFEEDLY_MAIN_TOKEN=tok-123\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write secrets file: %v", err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	creds, err := store.Credentials("feedbin_main")
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if creds.Username != "user@example.com" || creds.Password != "hunter2" {
		t.Errorf("Unexpected credentials: %+v", creds)
	}

	creds, err = store.Credentials("feedly_main")
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if creds.Token != "tok-123" {
		t.Errorf("Token = %q, want tok-123", creds.Token)
	}
}

func TestCredentialsFallBackToEnvironment(t *testing.T) {
	t.Setenv("NEWSBLUR_MAIN_USERNAME", "blur")
	t.Setenv("NEWSBLUR_MAIN_PASSWORD", "secret")

	store, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	creds, err := store.Credentials("newsblur_main")
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if creds.Username != "blur" || creds.Password != "secret" {
		t.Errorf("Unexpected credentials: %+v", creds)
	}
}

func TestCredentialsMissingKey(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := store.Credentials("nobody_home_at_all"); err == nil {
		t.Error("Expected error for unknown credentials key")
	}
}
