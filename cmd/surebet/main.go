package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/surebet/config"
	"github.com/alejandrodnm/surebet/internal/adapters/cache"
	"github.com/alejandrodnm/surebet/internal/adapters/notify"
	"github.com/alejandrodnm/surebet/internal/adapters/ocr"
	"github.com/alejandrodnm/surebet/internal/adapters/storage"
	"github.com/alejandrodnm/surebet/internal/application/settlement"
	"github.com/alejandrodnm/surebet/internal/metrics"
	"github.com/alejandrodnm/surebet/internal/ports"
	"github.com/alejandrodnm/surebet/internal/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty: defaults + env)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print the dashboard and exit")
	list := flag.Bool("list", false, "print the bet sets table and exit")
	days := flag.Int("days", 0, "with -report/-list: only sets of the last N days")
	bookmaker := flag.String("bookmaker", "", "with -report/-list: only sets with a leg at this bookmaker")
	table := flag.Bool("table", true, "with -report: full tables (false: compact 1-line)")
	extract := flag.String("extract", "", "extract bet slip fields from a file (.txt read as text, else OCR) and exit; extra args are more files")
	workers := flag.Int("workers", 4, "with -extract: documents processed in parallel")
	summaryEvery := flag.Duration("summary-every", 0, "while serving, log a compact dashboard every interval (0: off)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "driver", cfg.Storage.Driver)
		os.Exit(1)
	}
	defer store.Close()

	setCache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		slog.Error("failed to open cache", "err", err, "driver", cfg.Cache.Driver)
		os.Exit(1)
	}
	defer closeCache()

	m := metrics.New()
	opts := []settlement.Option{settlement.WithBookmakers(cfg.Extract.Bookmakers)}
	if cfg.OCR.APIKey != "" {
		opts = append(opts, settlement.WithExtractor(ocr.NewClient(ocr.Config{
			BaseURL:    cfg.OCR.BaseURL,
			APIKey:     cfg.OCR.APIKey,
			Language:   cfg.OCR.Language,
			RatePerSec: cfg.OCR.RatePerSec,
			Timeout:    cfg.OCRTimeout(),
		})))
	} else {
		slog.Info("OCR_API_KEY not set: document extraction disabled, text extraction still available")
	}
	svc := settlement.New(store, setCache, m, opts...)

	console := notify.NewConsole(*table)
	filter := reportFilter(*days, *bookmaker, time.Now())

	switch {
	case *extract != "":
		files := append([]string{*extract}, flag.Args()...)
		if err := runExtract(ctx, svc, files, *workers, os.Stdout); err != nil {
			slog.Error("extract failed", "err", err, "file", *extract)
			os.Exit(1)
		}
		return
	case *report:
		if err := runReport(ctx, svc, console, filter); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	case *list:
		sets, _, err := svc.ListSets(ctx, filter)
		if err != nil {
			slog.Error("list failed", "err", err)
			os.Exit(1)
		}
		console.PrintSets(sets)
		return
	}

	slog.Info("surebet starting",
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Driver,
		"cache", cfg.Cache.Driver,
		"ocr", cfg.OCR.APIKey != "",
	)

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}, svc, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if *summaryEvery > 0 {
		g.Go(func() error {
			return logSummaries(gctx, svc, notify.NewConsole(false), *summaryEvery)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("surebet exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("surebet stopped cleanly")
}

func openStore(ctx context.Context, cfg config.StorageConfig) (ports.BetStore, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := storage.NewPostgresStorage(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := storage.NewSQLiteStorage(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (ports.SetCache, func(), error) {
	switch cfg.Cache.Driver {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.CacheTTL(),
		})
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { _ = rc.Close() }, nil
	case "none":
		return cache.Nop{}, func() {}, nil
	default:
		return cache.NewMemoryCache(cfg.CacheTTL()), func() {}, nil
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
