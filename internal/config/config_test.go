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

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Server.WebsocketURL = "wss://desk.example.com/cable"
	cfg.Server.AccountID = "acct-1"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Server.WebsocketURL != "wss://desk.example.com/cable" {
		t.Errorf("WebsocketURL = %q", loaded.Server.WebsocketURL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("default_session = \"main\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackoffBase() != time.Second {
		t.Errorf("BackoffBase = %v, want 1s", cfg.BackoffBase())
	}
	if cfg.BackoffCap() != 30*time.Second {
		t.Errorf("BackoffCap = %v, want 30s", cfg.BackoffCap())
	}
	if cfg.Sync.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d, want 10", cfg.Sync.MaxReconnectAttempts)
	}
	if cfg.SendTimeout() != 10*time.Second {
		t.Errorf("SendTimeout = %v, want 10s", cfg.SendTimeout())
	}
	if cfg.TypingTTL() != 10*time.Second {
		t.Errorf("TypingTTL = %v, want 10s", cfg.TypingTTL())
	}
	if cfg.OnlineThreshold() != 2*time.Minute {
		t.Errorf("OnlineThreshold = %v, want 2m", cfg.OnlineThreshold())
	}
	if cfg.RecentThreshold() != 10*time.Minute {
		t.Errorf("RecentThreshold = %v, want 10m", cfg.RecentThreshold())
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
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
