package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailsage/mailsage/analysis"
	"github.com/mailsage/mailsage/config"
	"github.com/mailsage/mailsage/content"
	"github.com/mailsage/mailsage/db"
	"github.com/mailsage/mailsage/delivery"
	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/dedupe"
	"github.com/mailsage/mailsage/processor"
	"github.com/mailsage/mailsage/server/httpapi"
	"github.com/mailsage/mailsage/whitelist"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg := config.NewDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version information and exit")
	configPath := flag.String("config", "config.json", "Path to JSON configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailsage version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if err := config.Load(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "MAILSAGE: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "MAILSAGE: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "MAILSAGE: warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info("Starting mailsage", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durations were validated at startup; errors are impossible here.
	softBudget, _ := cfg.Server.GetSoftBudget()
	shutdownGrace, _ := cfg.Server.GetShutdownGrace()
	debounce, _ := cfg.Whitelist.GetDebounce()
	downloadTimeout, _ := cfg.Content.GetDownloadTimeout()
	rasterizerTimeout, _ := cfg.Content.GetRasterizerTimeout()
	analysisTimeout, _ := cfg.Analysis.GetTimeout()
	deliveryTimeout, _ := cfg.Delivery.GetTimeout()
	retryBackoff, _ := cfg.Delivery.GetRetryBackoff()

	// A missing or invalid allowlist at startup is fatal; later reload
	// failures only log and keep the previous snapshot.
	wlService, err := whitelist.NewService(cfg.Whitelist.Path)
	if err != nil {
		logger.Fatal("Failed to load allowlist", "error", err)
	}
	logger.Info("Allowlist loaded",
		"addresses", wlService.Current().AddressCount(),
		"domains", wlService.Current().DomainCount())

	watcher := whitelist.NewWatcher(wlService, debounce)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Allowlist watcher stopped", "error", err)
		}
	}()

	rasterizer := content.NewCommandRasterizer(
		cfg.Content.GetRasterizerCommand(),
		rasterizerTimeout,
		cfg.Content.GetMaxPagesPerDoc())

	extractor := content.NewExtractor(
		content.NewDownloader(downloadTimeout),
		rasterizer,
		cfg.Content.GetMaxAttachmentSize())

	analyzer := analysis.NewClient(
		cfg.Analysis.Endpoint,
		cfg.Analysis.Model,
		cfg.Analysis.APIKey,
		analysisTimeout,
		cfg.Analysis.GetMaxTokens())

	sender := delivery.NewService(
		cfg.Delivery.Endpoint,
		cfg.Delivery.APIKey,
		cfg.Delivery.FromAddress,
		deliveryTimeout,
		retryBackoff)

	var recorder processor.Recorder
	if cfg.Database != nil && cfg.Database.URL != "" {
		writeTimeout, _ := cfg.Database.GetWriteTimeout()
		store, err := db.New(ctx, cfg.Database.URL, writeTimeout)
		if err != nil {
			logger.Fatal("Failed to connect to analytics database", "error", err)
		}
		defer store.Close()
		recorder = store
		logger.Info("Analytics persistence enabled")
	}

	var dedupeCache *dedupe.Cache
	if cfg.Dedupe.Enabled {
		ttl, _ := cfg.Dedupe.GetTTL()
		sweep, _ := cfg.Dedupe.GetSweepInterval()
		dedupeCache = dedupe.New(ttl, sweep, cfg.Dedupe.GetMaxEntries())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := dedupeCache.Stop(stopCtx); err != nil {
				logger.Warn("Dedupe cache did not stop cleanly", "error", err)
			}
		}()
	}

	proc := processor.New(wlService, extractor, analyzer, sender, recorder, dedupeCache, softBudget)

	server := httpapi.New(proc, httpapi.ServerOptions{
		Addr: cfg.Server.GetAddr(),
		Dependencies: httpapi.Dependencies{
			Analysis:   cfg.Analysis.Endpoint != "",
			Delivery:   cfg.Delivery.Endpoint != "",
			Database:   recorder != nil,
			Rasterizer: cfg.Content.GetRasterizerCommand() != "",
		},
		EnableMetrics: cfg.Server.EnableMetrics,
		ShutdownGrace: shutdownGrace,
	})

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", "error", err)
	}

	logger.Info("Shutdown complete")
}
