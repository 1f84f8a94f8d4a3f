package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"linkcheck/internal/config"
	"linkcheck/internal/crawler"
	"linkcheck/internal/export"
	"linkcheck/internal/logging"
)

const (
	exitOK     = 0
	exitBroken = 1
	exitConfig = 2
)

const wordpressSitemap = "/wp-sitemap.xml"

// CLI holds the command line. Flags left unset keep the config file value.
type CLI struct {
	Seeds  []string `arg:"" optional:"" name:"seed" help:"Start URLs. Replaces crawl.seeds from the config file."`
	Config string   `short:"c" type:"path" help:"YAML configuration file."`

	Workers    int           `default:"10" help:"Number of concurrent fetch workers."`
	PerHost    int           `default:"2" help:"Concurrent requests allowed per host."`
	RPM        int           `name:"rpm" default:"120" help:"Requests per minute per host, 0 for unlimited."`
	Timeout    time.Duration `default:"10s" help:"Per request timeout."`
	Retries    int           `default:"2" help:"Retries for transient failures."`
	MaxDepth   int           `default:"-1" help:"Maximum crawl depth, negative for unlimited."`
	MaxPages   int           `default:"0" help:"Maximum pages to crawl, 0 for unlimited."`
	RunTimeout time.Duration `default:"0s" help:"Stop the run after this long, 0 for no limit."`

	External      bool `default:"true" negatable:"" help:"Check links to other hosts."`
	Assets        bool `default:"true" negatable:"" help:"Check images, scripts and stylesheets."`
	Sitemap       bool `negatable:"" help:"Seed the crawl from the WordPress sitemap of the first seed. --no-sitemap drops configured sitemaps."`
	IgnoreRobots  bool `negatable:"" help:"Crawl pages disallowed by robots.txt."`
	FlagRedirects bool `negatable:"" help:"List redirected links in the report."`

	Format      string `short:"f" default:"table" enum:"table,csv,json" help:"Report format (table, csv, json)."`
	Output      string `short:"o" type:"path" help:"Write the report to a file instead of stdout."`
	MetricsFile string `type:"path" help:"Write Prometheus metrics to this file when the run ends."`
	LogLevel    string `default:"info" help:"Log level."`
	LogFormat   string `default:"text" enum:"text,json" help:"Log format (text, json)."`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run executes the command and returns the process exit code. client may be
// nil to use the default transport.
func run(args []string, stdout, stderr io.Writer, client *http.Client) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("linkcheck"),
		kong.Description("Crawl a site and report broken links."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintf(stderr, "linkcheck: %v\n", err)
		return exitConfig
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "linkcheck: %v\n", err)
		return exitConfig
	}

	cfg, err := cli.resolve(setFlags(kctx))
	if err != nil {
		fmt.Fprintf(stderr, "linkcheck: %v\n", err)
		return exitConfig
	}

	logger, err := logging.NewLoggerTo(stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(stderr, "linkcheck: %v\n", err)
		return exitConfig
	}

	exporter, err := export.New(cfg.Report.Format)
	if err != nil {
		logger.WithError(err).Error("invalid report format")
		return exitConfig
	}

	reg := prometheus.NewRegistry()
	metrics, err := crawler.NewMetrics(reg)
	if err != nil {
		logger.WithError(err).Error("failed to register metrics")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	crawlCfg := cfg.ToCrawler()
	crawlCfg.Logger = logger
	crawlCfg.Metrics = metrics
	crawlCfg.Client = client
	crawlCfg.Progress = progressLogger(logger)

	report, err := crawler.Crawl(ctx, crawlCfg)
	if err != nil {
		logger.WithError(err).Error("crawl could not start")
		return exitConfig
	}

	if err := writeReport(exporter, report, cfg.Report.Output, stdout); err != nil {
		logger.WithError(err).Error("failed to write report")
		return exitConfig
	}
	if cfg.Report.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Report.MetricsFile, reg); err != nil {
			logger.WithError(err).WithField("path", cfg.Report.MetricsFile).Warn("failed to write metrics")
		}
	}

	if report.Summary.Broken > 0 {
		return exitBroken
	}
	return exitOK
}

// resolve builds the run configuration from the config file, or the
// defaults, with every flag the user set applied on top.
func (c *CLI) resolve(set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if c.Config != "" {
		loaded, err := config.ReadFile(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if len(c.Seeds) > 0 {
		cfg.Crawl.Seeds = c.Seeds
	}
	if set["workers"] {
		cfg.Worker.Concurrency = c.Workers
	}
	if set["per-host"] {
		cfg.Politeness.PerHostConcurrency = c.PerHost
	}
	if set["rpm"] {
		cfg.Politeness.RequestsPerMinute = c.RPM
	}
	if set["timeout"] {
		cfg.Fetch.Timeout = config.DurationFrom(c.Timeout)
	}
	if set["retries"] {
		cfg.Fetch.MaxRetries = c.Retries
	}
	if set["max-depth"] {
		cfg.Crawl.MaxDepth = c.MaxDepth
	}
	if set["max-pages"] {
		cfg.Crawl.MaxPages = c.MaxPages
	}
	if set["run-timeout"] {
		cfg.Crawl.RunTimeout = config.DurationFrom(c.RunTimeout)
	}
	if set["external"] {
		cfg.Crawl.CheckExternal = c.External
	}
	if set["assets"] {
		cfg.Crawl.CheckAssets = c.Assets
	}
	if set["sitemap"] {
		if c.Sitemap {
			cfg.Crawl.Sitemaps = append(cfg.Crawl.Sitemaps, wordpressSitemap)
		} else {
			cfg.Crawl.Sitemaps = nil
		}
	}
	if set["ignore-robots"] {
		cfg.Politeness.IgnoreRobots = c.IgnoreRobots
	}
	if set["flag-redirects"] {
		cfg.Report.FlagRedirects = c.FlagRedirects
	}
	if set["format"] {
		cfg.Report.Format = c.Format
	}
	if c.Output != "" {
		cfg.Report.Output = c.Output
	}
	if c.MetricsFile != "" {
		cfg.Report.MetricsFile = c.MetricsFile
	}
	if set["log-level"] {
		cfg.Logging.Level = c.LogLevel
	}
	if set["log-format"] {
		cfg.Logging.Format = c.LogFormat
	}

	if err := cfg.Finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setFlags reports the flags given on the command line. Defaults do not
// count, so they never mask a config file value.
func setFlags(kctx *kong.Context) map[string]bool {
	set := make(map[string]bool)
	for _, p := range kctx.Path {
		if p.Flag != nil {
			set[p.Flag.Name] = true
		}
	}
	return set
}

func writeReport(exporter export.Exporter, report *crawler.Report, path string, stdout io.Writer) (err error) {
	if path == "" {
		return exporter.Export(stdout, report)
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		err = errors.Join(err, fh.Close())
	}()
	return exporter.Export(fh, report)
}

const progressEvery = 100

func progressLogger(logger logging.Logger) func(string) {
	var count atomic.Int64
	return func(target string) {
		if n := count.Add(1); n%progressEvery == 0 {
			logger.WithFields(logging.Fields{"checked": n, "url": target}).Info("progress")
		}
	}
}
