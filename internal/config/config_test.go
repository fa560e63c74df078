package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Store.Backend != "local" {
		t.Errorf("store backend = %q, want local", cfg.Store.Backend)
	}
	if cfg.Download.Attempts != 4 {
		t.Errorf("download attempts = %d, want 4", cfg.Download.Attempts)
	}
	if cfg.Download.RequestTimeout != 35*time.Second {
		t.Errorf("request timeout = %v, want 35s", cfg.Download.RequestTimeout)
	}
	if cfg.Download.MinDocumentSize != 10000 {
		t.Errorf("min document size = %d, want 10000", cfg.Download.MinDocumentSize)
	}
	if cfg.Loader.Attempts != 4 {
		t.Errorf("page attempts = %d, want 4", cfg.Loader.Attempts)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
store:
  backend: local
  local_dir: /var/lib/harvest
download:
  attempts: 2
  min_document_size: 5000
harvest:
  max_companies: 10
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.LocalDir != "/var/lib/harvest" {
		t.Errorf("local dir = %q", cfg.Store.LocalDir)
	}
	if cfg.Download.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", cfg.Download.Attempts)
	}
	if cfg.Download.MinDocumentSize != 5000 {
		t.Errorf("min document size = %d, want 5000", cfg.Download.MinDocumentSize)
	}
	if cfg.Harvest.MaxCompanies != 10 {
		t.Errorf("max companies = %d, want 10", cfg.Harvest.MaxCompanies)
	}
	// Untouched sections keep their defaults.
	if cfg.Loader.Attempts != 4 {
		t.Errorf("loader attempts = %d, want default 4", cfg.Loader.Attempts)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("download:\n  attempts: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOWNLOAD_ATTEMPTS", "6")
	t.Setenv("MAX_COMPANIES", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Download.Attempts != 6 {
		t.Errorf("attempts = %d, want env override 6", cfg.Download.Attempts)
	}
	if cfg.Harvest.MaxCompanies != 3 {
		t.Errorf("max companies = %d, want 3", cfg.Harvest.MaxCompanies)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() on missing file succeeded, want error")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "ftp")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() with unknown backend succeeded, want error")
	}
}

func TestValidateBlobRequiresBucket(t *testing.T) {
	t.Setenv("STORE_BACKEND", "blob")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() with blob backend and no bucket succeeded, want error")
	}
	t.Setenv("STORE_BUCKET_URL", "s3://filings-archive?region=ap-south-1")
	if _, err := Load(""); err != nil {
		t.Fatalf("Load() with bucket URL error: %v", err)
	}
}
