package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "app:\n  environment: test\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduler.Interval != 10*time.Minute {
		t.Errorf("Scheduler.Interval = %v, want 10m", cfg.Scheduler.Interval)
	}
	if cfg.Ingest.ReviewWorkers != 4 {
		t.Errorf("Ingest.ReviewWorkers = %d, want 4", cfg.Ingest.ReviewWorkers)
	}
	if cfg.App.Environment != "test" {
		t.Errorf("App.Environment = %q, want test", cfg.App.Environment)
	}
	if cfg.Database.DSN != "" {
		t.Errorf("Database.DSN = %q, want empty", cfg.Database.DSN)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("SEEDINGEST_GITHUB_TOKEN", "secret")
	path := writeTempConfig(t, `
scheduler:
  interval: 30s
github:
  enabled: true
  repository: seeds/seed_demo
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("Scheduler.Interval = %v, want 30s", cfg.Scheduler.Interval)
	}
	if cfg.GitHub.Token != "secret" {
		t.Errorf("GitHub.Token = %q, want value from env", cfg.GitHub.Token)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"interval":      "scheduler:\n  interval: 0s\n",
		"workers":       "ingest:\n  review_workers: 0\n",
		"github repo":   "github:\n  enabled: true\n  token: x\n  repository: nope\n",
		"telegram chat": "telegram:\n  enabled: true\n  bot_token: x\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTempConfig(t, content)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	if got := cfg.ResolveMaxPoints(0); got != 10 {
		t.Errorf("ResolveMaxPoints(0) = %d, want 10", got)
	}
	if got := cfg.ResolveMaxPoints(3); got != 3 {
		t.Errorf("ResolveMaxPoints(3) = %d, want 3", got)
	}
}
