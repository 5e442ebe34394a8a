//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		p := writeConfig(t, "bot:\n  token: abc\n  creator_id: 42\n")

		cfg, err := LoadConfig(p, true)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if !cfg.Runtime.Dev {
			t.Error("expected dev flag to be carried")
		}
		if cfg.Relay.ChunkSize != 1<<20 {
			t.Errorf("expected 1 MiB chunks, got %d", cfg.Relay.ChunkSize)
		}
		if cfg.Relay.JobPause != time.Second {
			t.Errorf("expected 1s pause, got %s", cfg.Relay.JobPause)
		}
		if cfg.Upload.Backend != "hydrax" || cfg.Upload.Attempts != 1 {
			t.Errorf("unexpected upload defaults: %+v", cfg.Upload)
		}
		if cfg.Bot.DefaultLang != "en" {
			t.Errorf("expected default lang en, got %s", cfg.Bot.DefaultLang)
		}
		if cfg.Bot.SessionConfigured() {
			t.Error("expected no session without api_endpoint")
		}
	})

	t.Run("should let environment override file values", func(t *testing.T) {
		p := writeConfig(t, "bot:\n  token: from-file\n  creator_id: 1\nupload:\n  backend: S3\n")
		t.Setenv("BOT_TOKEN", "from-env")
		t.Setenv("CREATOR_ID", "777")
		t.Setenv("HYDRAX_API_ID", "api-123")

		cfg, err := LoadConfig(p, false)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Bot.Token != "from-env" || cfg.Bot.CreatorID != 777 {
			t.Errorf("env overrides not applied: %+v", cfg.Bot)
		}
		if cfg.Upload.DefaultTarget != "api-123" {
			t.Errorf("expected default target from HYDRAX_API_ID, got %q", cfg.Upload.DefaultTarget)
		}
		if cfg.Upload.Backend != "s3" {
			t.Errorf("expected normalized backend s3, got %q", cfg.Upload.Backend)
		}
	})

	t.Run("should accept a missing file when env is complete", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "tok")
		t.Setenv("CREATOR_ID", "5")
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false); err != nil {
			t.Fatalf("expected env-only config to load, got %v", err)
		}
	})

	t.Run("should fail without token", func(t *testing.T) {
		p := writeConfig(t, "bot:\n  creator_id: 42\n")
		t.Setenv("BOT_TOKEN", "")
		if _, err := LoadConfig(p, false); err == nil {
			t.Fatal("expected an error for missing token")
		}
	})

	t.Run("should reject bad creator id", func(t *testing.T) {
		p := writeConfig(t, "bot:\n  token: abc\n")
		t.Setenv("CREATOR_ID", "not-a-number")
		if _, err := LoadConfig(p, false); err == nil {
			t.Fatal("expected an error for malformed CREATOR_ID")
		}
	})

	t.Run("should reject unknown backend", func(t *testing.T) {
		p := writeConfig(t, "bot:\n  token: abc\n  creator_id: 1\nupload:\n  backend: ftp\n")
		if _, err := LoadConfig(p, false); err == nil {
			t.Fatal("expected an error for unsupported backend")
		}
	})

	t.Run("should fail on malformed yaml", func(t *testing.T) {
		p := writeConfig(t, "bot: [unclosed\n")
		if _, err := LoadConfig(p, false); err == nil {
			t.Fatal("expected parse error")
		}
	})
}
