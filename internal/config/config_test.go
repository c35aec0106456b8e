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
	cfg.Request.BaseURL = "https://api.example.com"
	cfg.Realtime.ReconnectDelay = Duration{5 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Request.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q, want %q", loaded.Request.BaseURL, "https://api.example.com")
	}
	if loaded.Realtime.ReconnectDelay.Duration != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", loaded.Realtime.ReconnectDelay.Duration)
	}
}

func TestLoadMissingYieldsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.MaxAge.Duration != 5*time.Minute {
		t.Errorf("MaxAge = %v, want 5m", cfg.Cache.MaxAge.Duration)
	}
	if cfg.Request.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Request.MaxAttempts)
	}
}

func TestPartialFileFilledWithDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	content := "[request]\nbase_url = \"https://api.example.com\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Request.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q, want set value", cfg.Request.BaseURL)
	}
	if cfg.Request.RetryBaseDelay.Duration != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want default 500ms", cfg.Request.RetryBaseDelay.Duration)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", cfg.Log.Level)
	}
	if len(cfg.Request.OfflineMarkers) == 0 {
		t.Error("OfflineMarkers should fall back to defaults")
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
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
