package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"linkcheck/internal/crawler"
)

// Config is the file form of a link-check run.
type Config struct {
	Crawl      CrawlConfig      `yaml:"crawl"`
	Worker     WorkerConfig     `yaml:"worker"`
	Politeness PolitenessConfig `yaml:"politeness"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Report     ReportConfig     `yaml:"report"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CrawlConfig defines what is crawled and what is only checked.
type CrawlConfig struct {
	Seeds         []string `yaml:"seeds"`
	Sitemaps      []string `yaml:"sitemaps"`
	RootHost      string   `yaml:"root_host"`
	MaxDepth      int      `yaml:"max_depth"`
	MaxPages      int      `yaml:"max_pages"`
	Include       []string `yaml:"include_patterns"`
	Exclude       []string `yaml:"exclude_patterns"`
	Ignore        []string `yaml:"ignore_patterns"`
	CheckExternal bool     `yaml:"check_external"`
	CheckAssets   bool     `yaml:"check_assets"`
	RunTimeout    Duration `yaml:"run_timeout"`
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Concurrency int      `yaml:"concurrency"`
	GracePeriod Duration `yaml:"grace_period"`
}

// PolitenessConfig bounds the load put on every host.
type PolitenessConfig struct {
	PerHostConcurrency int    `yaml:"per_host_concurrency"`
	RequestsPerMinute  int    `yaml:"requests_per_minute"`
	IgnoreRobots       bool   `yaml:"ignore_robots"`
	UserAgent          string `yaml:"user_agent"`
}

// FetchConfig holds the request policy.
type FetchConfig struct {
	Timeout      Duration `yaml:"timeout"`
	MaxRetries   int      `yaml:"max_retries"`
	MaxRedirects int      `yaml:"max_redirects"`
	BackoffBase  Duration `yaml:"backoff_base"`
	BackoffMax   Duration `yaml:"backoff_max"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// ReportConfig selects the report rendering.
type ReportConfig struct {
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	FlagRedirects bool   `yaml:"flag_redirects"`
	MetricsFile   string `yaml:"metrics_file"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Report formats understood by the exporters.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Default returns a Config populated with the engine defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxDepth:      -1,
			CheckExternal: true,
			CheckAssets:   true,
		},
		Worker: WorkerConfig{
			Concurrency: 10,
			GracePeriod: DurationFrom(5 * time.Second),
		},
		Politeness: PolitenessConfig{
			PerHostConcurrency: 2,
			RequestsPerMinute:  120,
			UserAgent:          "linkcheck-bot/1.0",
		},
		Fetch: FetchConfig{
			Timeout:      DurationFrom(10 * time.Second),
			MaxRetries:   2,
			MaxRedirects: 5,
			BackoffBase:  DurationFrom(500 * time.Millisecond),
			BackoffMax:   DurationFrom(10 * time.Second),
			MaxBodyBytes: 5 * 1024 * 1024,
		},
		Report: ReportConfig{
			Format: FormatTable,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader. Unknown keys
// are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := parse(r)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile decodes a YAML file over the defaults without validating it, so
// command line overrides can be applied before Finish.
func ReadFile(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return parse(fh)
}

func parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate checks the settings a run cannot start without.
func (c Config) Validate() error {
	if len(c.Crawl.Seeds) == 0 {
		return errors.New("at least one crawl seed must be configured")
	}
	for i, seed := range c.Crawl.Seeds {
		if seed == "" {
			return fmt.Errorf("crawl.seeds[%d] is empty", i)
		}
		if _, err := url.Parse(seed); err != nil {
			return fmt.Errorf("crawl.seeds[%d]: %w", i, err)
		}
	}
	for name, patterns := range map[string][]string{
		"crawl.include_patterns": c.Crawl.Include,
		"crawl.exclude_patterns": c.Crawl.Exclude,
		"crawl.ignore_patterns":  c.Crawl.Ignore,
	} {
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Politeness.PerHostConcurrency <= 0 {
		return fmt.Errorf("politeness.per_host_concurrency must be > 0 (got %d)", c.Politeness.PerHostConcurrency)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0 (got %d)", c.Fetch.MaxRetries)
	}
	if c.Fetch.MaxRedirects <= 0 {
		return fmt.Errorf("fetch.max_redirects must be > 0 (got %d)", c.Fetch.MaxRedirects)
	}
	if c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0 (got %s)", c.Fetch.Timeout)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0 (got %d)", c.Fetch.MaxBodyBytes)
	}
	if c.Politeness.UserAgent == "" {
		return errors.New("politeness.user_agent must be set")
	}
	switch c.Report.Format {
	case FormatTable, FormatCSV, FormatJSON:
	default:
		return fmt.Errorf("report.format must be one of table, csv, json (got %q)", c.Report.Format)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}
	return nil
}

func (c *Config) normalise() {
	c.Crawl.Seeds = trimAll(c.Crawl.Seeds)
	c.Crawl.Sitemaps = trimAll(c.Crawl.Sitemaps)
	c.Crawl.RootHost = strings.ToLower(strings.TrimSpace(c.Crawl.RootHost))
	if c.Crawl.MaxDepth < 0 {
		c.Crawl.MaxDepth = -1
	}
	c.Politeness.UserAgent = strings.TrimSpace(c.Politeness.UserAgent)
	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	c.Report.Output = strings.TrimSpace(c.Report.Output)
	c.Report.MetricsFile = strings.TrimSpace(c.Report.MetricsFile)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// Finish normalises and validates a Config assembled outside Load, such as
// Default() with command line overrides applied.
func (c *Config) Finish() error {
	c.normalise()
	return c.Validate()
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return values
	}
	cleaned := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	return cleaned
}

// ToCrawler maps the file configuration onto the engine configuration.
// Logger, metrics and client are left for the caller to attach.
func (c Config) ToCrawler() crawler.Config {
	retries := c.Fetch.MaxRetries
	if retries == 0 {
		retries = -1
	}
	return crawler.Config{
		Seeds:    c.Crawl.Seeds,
		Sitemaps: c.Crawl.Sitemaps,
		Scope: crawler.ScopeConfig{
			RootHost: c.Crawl.RootHost,
			MaxDepth: c.Crawl.MaxDepth,
			MaxPages: c.Crawl.MaxPages,
			Include:  c.Crawl.Include,
			Exclude:  c.Crawl.Exclude,
			Ignore:   c.Crawl.Ignore,
		},
		MaxWorkers:               c.Worker.Concurrency,
		PerHostConcurrency:       c.Politeness.PerHostConcurrency,
		PerHostRequestsPerMinute: rateOrDisabled(c.Politeness.RequestsPerMinute),
		Timeout:                  c.Fetch.Timeout.Duration,
		MaxRetries:               retries,
		MaxRedirects:             c.Fetch.MaxRedirects,
		BackoffBase:              c.Fetch.BackoffBase.Duration,
		BackoffMax:               c.Fetch.BackoffMax.Duration,
		MaxBodyBytes:             c.Fetch.MaxBodyBytes,
		RunTimeout:               c.Crawl.RunTimeout.Duration,
		GracePeriod:              c.Worker.GracePeriod.Duration,
		UserAgent:                c.Politeness.UserAgent,
		IgnoreRobots:             c.Politeness.IgnoreRobots,
		SkipExternal:             !c.Crawl.CheckExternal,
		CheckAssets:              c.Crawl.CheckAssets,
		FlagRedirects:            c.Report.FlagRedirects,
	}
}

// rateOrDisabled maps the file convention (0 = unlimited) onto the engine's
// (0 = default, negative = unlimited).
func rateOrDisabled(rpm int) int {
	if rpm <= 0 {
		return -1
	}
	return rpm
}
