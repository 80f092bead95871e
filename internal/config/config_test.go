package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("FAILURE_POLICY", "")
	t.Setenv("ORIGINALS_POLICY", "")
	t.Setenv("DB_MAX_CONNS", "")
	t.Setenv("DB_ACQUIRE_TIMEOUT", "")
	t.Setenv("MAX_UPLOAD_BYTES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FailurePolicy != Degrade {
		t.Fatalf("expected degrade policy, got %q", cfg.FailurePolicy)
	}
	if cfg.OriginalsPolicy != ReportOriginal {
		t.Fatalf("expected report policy, got %q", cfg.OriginalsPolicy)
	}
	if cfg.DBMaxConns != 10 || cfg.DBAcquireTimeout != 5*time.Second {
		t.Fatalf("unexpected pool defaults: %d %s", cfg.DBMaxConns, cfg.DBAcquireTimeout)
	}
	if cfg.MaxUploadBytes != 200<<20 {
		t.Fatalf("unexpected upload limit %d", cfg.MaxUploadBytes)
	}
	if cfg.Prompts != DefaultPrompts() {
		t.Fatalf("expected default prompts, got %+v", cfg.Prompts)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("FAILURE_POLICY", "ABORT")
	t.Setenv("DB_MAX_CONNS", "3")
	t.Setenv("DB_ACQUIRE_TIMEOUT", "250")
	t.Setenv("EXTERNAL_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FailurePolicy != Abort {
		t.Fatalf("expected abort, got %q", cfg.FailurePolicy)
	}
	if cfg.DBMaxConns != 3 {
		t.Fatalf("expected 3 conns, got %d", cfg.DBMaxConns)
	}
	if cfg.DBAcquireTimeout != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.DBAcquireTimeout)
	}
	if cfg.ExternalTimeout != 45*time.Second {
		t.Fatalf("expected 45s, got %s", cfg.ExternalTimeout)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "failure_policy: abort\noriginals_policy: abort\nprompts:\n  summary: \"TL;DR:\\n\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("FAILURE_POLICY", "degrade")
	t.Setenv("ORIGINALS_POLICY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FailurePolicy != Degrade {
		t.Fatalf("env should win over file, got %q", cfg.FailurePolicy)
	}
	if cfg.OriginalsPolicy != AbortOnOriginal {
		t.Fatalf("expected file originals policy, got %q", cfg.OriginalsPolicy)
	}
	if cfg.Prompts.Summary != "TL;DR:\n" {
		t.Fatalf("unexpected summary prompt %q", cfg.Prompts.Summary)
	}
	if cfg.Prompts.StructuredNote != DefaultPrompts().StructuredNote {
		t.Fatalf("unset prompt should keep default, got %q", cfg.Prompts.StructuredNote)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("FAILURE_POLICY", "retry")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
