package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
crawl:
  seeds:
    - " https://example.com/ "
    - https://example.com/
  sitemaps: [/wp-sitemap.xml]
  max_depth: 3
  ignore_patterns: ['/wp-admin/']
  check_external: false
  run_timeout: 90
worker:
  concurrency: 4
  grace_period: 2s
politeness:
  requests_per_minute: 0
fetch:
  timeout: 1.5
  max_retries: 0
report:
  format: CSV
logging:
  level: DEBUG
  format: json
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Crawl.Seeds) != 1 || cfg.Crawl.Seeds[0] != "https://example.com/" {
		t.Fatalf("expected seeds to be trimmed and de-duplicated, got %q", cfg.Crawl.Seeds)
	}
	if cfg.Crawl.RunTimeout.Duration != 90*time.Second {
		t.Fatalf("expected numeric seconds, got %s", cfg.Crawl.RunTimeout)
	}
	if cfg.Fetch.Timeout.Duration != 1500*time.Millisecond {
		t.Fatalf("expected fractional seconds, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Worker.GracePeriod.Duration != 2*time.Second {
		t.Fatalf("unexpected grace period %s", cfg.Worker.GracePeriod)
	}
	if cfg.Report.Format != FormatCSV || cfg.Logging.Level != "debug" {
		t.Fatalf("expected lower-cased enums, got %q %q", cfg.Report.Format, cfg.Logging.Level)
	}
	if cfg.Fetch.MaxRedirects != 5 || cfg.Politeness.PerHostConcurrency != 2 {
		t.Fatal("expected defaults for unset keys")
	}

	cc := cfg.ToCrawler()
	if cc.MaxRetries >= 0 {
		t.Fatalf("max_retries 0 should disable retries, got %d", cc.MaxRetries)
	}
	if cc.PerHostRequestsPerMinute >= 0 {
		t.Fatalf("requests_per_minute 0 should disable rate limiting, got %d", cc.PerHostRequestsPerMinute)
	}
	if cc.Scope.MaxDepth != 3 || cc.MaxWorkers != 4 || !cc.SkipExternal {
		t.Fatalf("unexpected crawler config %+v", cc)
	}
	if len(cc.Scope.Ignore) != 1 || len(cc.Sitemaps) != 1 {
		t.Fatalf("expected patterns and sitemaps to carry over, got %+v", cc)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown key":   "crawl:\n  seeds: [https://example.com/]\n  follow: true\n",
		"no seeds":      "crawl:\n  max_depth: 2\n",
		"bad pattern":   "crawl:\n  seeds: [https://example.com/]\n  exclude_patterns: ['(']\n",
		"bad format":    "crawl:\n  seeds: [https://example.com/]\nreport:\n  format: xml\n",
		"bad level":     "crawl:\n  seeds: [https://example.com/]\nlogging:\n  level: loud\n",
		"bad duration":  "crawl:\n  seeds: [https://example.com/]\nfetch:\n  timeout: soon\n",
		"zero workers":  "crawl:\n  seeds: [https://example.com/]\nworker:\n  concurrency: 0\n",
		"negative page": "crawl:\n  seeds: [https://example.com/]\n  max_pages: -1\n",
	}
	for name, doc := range cases {
		if _, err := LoadFromReader(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "linkcheck.yaml")
	if err := os.WriteFile(path, []byte("crawl:\n  seeds: [https://example.com/]\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Crawl.MaxDepth != -1 || !cfg.Crawl.CheckExternal {
		t.Fatalf("expected defaults, got %+v", cfg.Crawl)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}

func TestFinishValidatesOverrides(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Finish(); err == nil {
		t.Fatal("default config has no seeds and should not validate")
	}
	cfg.Crawl.Seeds = []string{"example.com"}
	cfg.Report.Format = " JSON "
	if err := cfg.Finish(); err != nil {
		t.Fatalf("expected overrides to validate: %v", err)
	}
	if cfg.Report.Format != FormatJSON {
		t.Fatalf("expected normalised format, got %q", cfg.Report.Format)
	}
}

func TestReadFileDefersValidation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "linkcheck.yaml")
	if err := os.WriteFile(path, []byte("worker:\n  concurrency: 3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if cfg.Worker.Concurrency != 3 {
		t.Fatalf("expected file value, got %d", cfg.Worker.Concurrency)
	}
	if err := cfg.Finish(); err == nil {
		t.Fatal("expected missing seeds to fail once validated")
	}
	cfg.Crawl.Seeds = []string{"https://example.com/"}
	if err := cfg.Finish(); err != nil {
		t.Fatalf("expected seeds from overrides to validate: %v", err)
	}
}
