package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/arach/2048ish/config"
	"github.com/arach/2048ish/rules"
	"github.com/arach/2048ish/scraper/discovery"
	"github.com/arach/2048ish/scraper/htmlboard"
	"github.com/arach/2048ish/scraper/store"
	"github.com/arach/2048ish/strategy"
)

func main() {
	indexURLs := flag.String("index", getEnvOrDefault("INDEX_URLS", ""), "Comma-separated index pages linking to board snapshots")
	linkPattern := flag.String("link-pattern", getEnvOrDefault("LINK_PATTERN", discovery.DefaultConfig().LinkPattern), "Regexp selecting snapshot links")
	outDir := flag.String("out-dir", getEnvOrDefault("OUT_DIR", "data/labeled"), "Directory to write batch .parquet files")
	logPath := flag.String("log-path", getEnvOrDefault("WRITTEN_LOG", "scraper-data/labeled.jsonl"), "Append-only log of snapshots already written")
	flushGames := flag.Int("flush-games", getEnvIntOrDefault("FLUSH_GAMES", 500), "Flush when buffered snapshots reaches this count")
	flushEvery := flag.Duration("flush-every", getEnvDurationOrDefault("FLUSH_EVERY", 10*time.Minute), "Flush at this interval regardless of buffered count")
	maxLinks := flag.Int("max-links", getEnvIntOrDefault("MAX_LINKS", 0), "Maximum snapshot links taken per index page (0 = all)")
	requestDelay := flag.Duration("delay", getEnvDurationOrDefault("DELAY", 500*time.Millisecond), "Delay between HTTP requests")
	configPath := flag.String("config", getEnvOrDefault("G2048_CONFIG", ""), "Profile file (yaml/json)")
	strategyName := flag.String("strategy", getEnvOrDefault("STRATEGY", ""), "Override the profile strategy")
	flag.Parse()

	profile, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *strategyName != "" {
		profile.Strategy = *strategyName
		if err := profile.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	logger, err := profile.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	written, err := store.OpenGameLog(*logPath)
	if err != nil {
		logger.Error("open written log", "error", err)
		os.Exit(1)
	}
	defer written.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	discCfg := discovery.DefaultConfig()
	discCfg.IndexURLs = splitList(*indexURLs)
	discCfg.LinkPattern = *linkPattern
	discCfg.MaxLinks = *maxLinks
	discCfg.RequestDelay = *requestDelay

	logger.Info("starting snapshot scraper",
		"out_dir", *outDir,
		"written_log", *logPath,
		"already_written", written.Count(),
		"index_pages", len(discCfg.IndexURLs),
		"strategy", profile.Strategy,
	)

	cfg := scrapeConfig{
		outDir:       *outDir,
		flushGames:   *flushGames,
		flushEvery:   *flushEvery,
		requestDelay: *requestDelay,
		discovery:    discCfg,
		profile:      profile,
	}
	stats, err := runOnce(ctx, written, cfg, logger)
	if err != nil {
		logger.Error("scrape failed", "error", err)
		os.Exit(1)
	}
	logger.Info("scraping complete",
		"attempted", stats.attempted,
		"labeled", stats.labeled,
		"skipped", stats.skipped,
		"failed", stats.failed,
		"batches", stats.batches,
		"rows", stats.rows,
	)
}

type scrapeConfig struct {
	outDir       string
	flushGames   int
	flushEvery   time.Duration
	requestDelay time.Duration
	discovery    discovery.Config
	profile      config.Profile
}

type scrapeStats struct {
	attempted, labeled, skipped, failed int
	batches, rows                       int
}

// runOnce discovers snapshot links, labels each board with the profile's
// strategy and archives one row per snapshot. Snapshots already in the log
// are skipped.
func runOnce(ctx context.Context, written *store.GameLog, cfg scrapeConfig, logger *slog.Logger) (scrapeStats, error) {
	var stats scrapeStats
	if cfg.flushGames <= 0 {
		cfg.flushGames = 500
	}
	if cfg.flushEvery <= 0 {
		cfg.flushEvery = 10 * time.Minute
	}
	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}
	outDir, _ := filepath.Abs(cfg.outDir)

	sc, err := cfg.profile.StrategyConfig(cfg.profile.Seed, logger)
	if err != nil {
		return stats, err
	}
	strat, err := strategy.New(sc)
	if err != nil {
		return stats, err
	}

	discWorker, err := discovery.NewWorker(cfg.discovery, nil, logger)
	if err != nil {
		return stats, err
	}
	links := make(chan string, 1000)
	go func() {
		defer close(links)
		if err := discWorker.Discover(ctx, links); err != nil && ctx.Err() == nil {
			logger.Warn("discovery", "error", err)
		}
	}()

	fetcher := htmlboard.NewFetcher()
	flushTicker := time.NewTicker(cfg.flushEvery)
	defer flushTicker.Stop()

	var (
		bw      *store.BatchWriter
		pending []store.GameRecord
	)
	flush := func(reason string) {
		if bw == nil {
			return
		}
		outPath, rows, games, err := bw.Finalize()
		bw = nil
		if err != nil {
			logger.Error("flush failed", "reason", reason, "error", err)
			pending = pending[:0]
			return
		}
		for i := range pending {
			pending[i].File = outPath
		}
		if err := written.AddMany(pending); err != nil {
			// The parquet file is already in place.
			logger.Error("written log append failed", "reason", reason, "error", err)
		}
		pending = pending[:0]
		stats.batches++
		stats.rows += rows
		logger.Info("flushed batch", "reason", reason, "snapshots", games, "rows", rows, "path", outPath)
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			flush("signal")
			return stats, nil
		case <-flushTicker.C:
			flush("ticker")
		case link, ok := <-links:
			if !ok {
				flush("final")
				return stats, nil
			}
			if written.Has(link) {
				stats.skipped++
				continue
			}
			if !first && cfg.requestDelay > 0 {
				time.Sleep(cfg.requestDelay)
			}
			first = false

			stats.attempted++
			row, err := labelSnapshot(ctx, fetcher, strat, link)
			if err != nil {
				stats.failed++
				logger.Warn("label snapshot", "url", link, "error", err)
				continue
			}
			if bw == nil {
				bw, err = store.NewBatchWriter(outDir)
				if err != nil {
					return stats, err
				}
			}
			if err := bw.WriteGame([]store.TurnRow{row}); err != nil {
				stats.failed++
				logger.Error("write snapshot", "url", link, "error", err)
				continue
			}
			pending = append(pending, store.GameRecord{
				GameID:     link,
				Strategy:   row.Strategy,
				Score:      uint64(row.Score),
				MaxTile:    uint64(row.MaxTile),
				Won:        row.Won,
				FinishedAt: time.Now().UTC(),
			})
			stats.labeled++
			if len(pending) >= cfg.flushGames {
				flush("count")
			}
		}
	}
}

// labelSnapshot reads the board behind link and records the move strat
// picks for it.
func labelSnapshot(ctx context.Context, fetcher *htmlboard.Fetcher, strat strategy.Strategy, link string) (store.TurnRow, error) {
	state, err := fetcher.Fetch(ctx, link)
	if err != nil {
		return store.TurnRow{}, err
	}
	dir := strat.NextMove(ctx, state)

	row := store.NewTurnRow(link, 0, state)
	row.Move = int32(dir)
	row.Strategy = strat.Name()
	row.Explanation = strat.ExplainMove(dir, state)
	if dir.Valid() {
		row.Points = int64(rules.MoveGrid(state.Grid, dir).Points)
	}
	if rep, ok := strat.(strategy.Reporter); ok {
		if diag := rep.LastSearch(); diag != nil {
			if b, err := json.Marshal(diag); err == nil {
				row.SearchJSON = b
			}
		}
	}
	return row, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Environment variable helpers
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
