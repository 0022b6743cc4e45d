package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultProfile: "work"}
	cfg.API.BaseURL = "https://backoffice.example.com/api"
	cfg.Identity.UserID = "u-42"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.API.BaseURL != "https://backoffice.example.com/api" {
		t.Errorf("API.BaseURL = %q", loaded.API.BaseURL)
	}
	if loaded.Identity.UserID != "u-42" {
		t.Errorf("Identity.UserID = %q, want u-42", loaded.Identity.UserID)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.TTL() != 30*time.Minute {
		t.Errorf("TTL() = %v, want 30m", cfg.TTL())
	}
	if cfg.FetchTimeout() != 12*time.Second {
		t.Errorf("FetchTimeout() = %v, want 12s", cfg.FetchTimeout())
	}
	if cfg.BaseDelay() != time.Second {
		t.Errorf("BaseDelay() = %v, want 1s", cfg.BaseDelay())
	}
	if cfg.MaxDelay() != 30*time.Second {
		t.Errorf("MaxDelay() = %v, want 30s", cfg.MaxDelay())
	}
	if cfg.Push.MaxAttempts != 10 {
		t.Errorf("Push.MaxAttempts = %d, want 10", cfg.Push.MaxAttempts)
	}
	if cfg.API.PageSize != 50 {
		t.Errorf("API.PageSize = %d, want 50", cfg.API.PageSize)
	}
	if cfg.Listen != "127.0.0.1:8470" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
