package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(tb testing.TB, content string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("http_addr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DBPath != "emailintel.db" {
		t.Errorf("db_path = %q, want emailintel.db", cfg.DBPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.BatchSize != 2000 || cfg.PollIntervalMS != 500 || cfg.EnumerateWorkers != 4 {
		t.Errorf("scan defaults wrong: %+v", cfg)
	}
	if cfg.JobRetentionDays != 30 {
		t.Errorf("job_retention_days = %d, want 30", cfg.JobRetentionDays)
	}
	if cfg.Schedule != "" || len(cfg.ScanPaths) != 0 {
		t.Errorf("scheduled scans should be off by default: %+v", cfg)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9090"
batch_size: 100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("http_addr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("batch_size = %d, want 100", cfg.BatchSize)
	}
	if cfg.DBPath != "emailintel.db" || cfg.PollIntervalMS != 500 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":7000"
db_path: /var/lib/emailintel/app.db
log_level: debug
ripgrep_path: /usr/local/bin/rg
batch_size: 500
poll_interval_ms: 250
enumerate_workers: 8
scan_paths:
  - /srv/mail
  - /srv/archive
schedule: "0 2 * * *"
job_retention_days: 7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.RipgrepPath != "/usr/local/bin/rg" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.ScanPaths) != 2 || cfg.ScanPaths[0] != "/srv/mail" {
		t.Errorf("scan_paths = %v", cfg.ScanPaths)
	}
	if cfg.Schedule != "0 2 * * *" || cfg.JobRetentionDays != 7 {
		t.Errorf("schedule settings wrong: %+v", cfg)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "not_a_real_key: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown config key")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "http_addr: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}
