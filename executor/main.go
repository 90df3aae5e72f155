package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/arach/2048ish/config"
	"github.com/arach/2048ish/executor/selfplay"
	"github.com/arach/2048ish/scraper/store"
)

var (
	totalMoves atomic.Int64
	totalGames atomic.Int64
)

type runOptions struct {
	outDir        string
	workers       int
	gamesPerFlush int
	maxGames      int64
	maxMoves      int
	explain       bool
	profile       config.Profile
}

func main() {
	configPath := flag.String("config", getEnvOrDefault("G2048_CONFIG", ""), "Profile file (yaml/json); empty uses defaults plus G2048_* env")
	strategyName := flag.String("strategy", getEnvOrDefault("STRATEGY", ""), "Override the profile strategy (corner, greedy, snake, random, expectimax, mcts)")
	outDir := flag.String("out-dir", getEnvOrDefault("OUT_DIR", "data/selfplay"), "Output directory for parquet batches and the game log")
	workers := flag.Int("workers", getEnvIntOrDefault("WORKERS", runtime.NumCPU()), "Number of self-play workers")
	gamesPerFlush := flag.Int("games-per-flush", getEnvIntOrDefault("GAMES_PER_FLUSH", 50), "Games per parquet batch file")
	maxGames := flag.Int64("max-games", int64(getEnvIntOrDefault("MAX_GAMES", 0)), "If > 0, stop after this many games")
	maxMoves := flag.Int("max-moves", getEnvIntOrDefault("MAX_MOVES", 0), "If > 0, cut each game after this many moves")
	seed := flag.Int64("seed", 0, "Base seed; game n uses seed+n. 0 uses the profile seed, and fresh entropy if that is 0 too")
	explain := flag.Bool("explain", getEnvBoolOrDefault("EXPLAIN", false), "Store a move explanation on every row")
	useTUI := flag.Bool("tui", getEnvBoolOrDefault("TUI", false), "Show a live terminal dashboard; logs go to <out-dir>/executor.log")
	logFormat := flag.String("log-format", getEnvOrDefault("LOG_FORMAT", ""), "Log format (pretty, json, text); empty uses the profile")
	logLevel := flag.String("log-level", getEnvOrDefault("LOG_LEVEL", ""), "Log level; empty uses the profile")
	flag.Parse()

	profile, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *strategyName != "" {
		profile.Strategy = *strategyName
	}
	if *seed != 0 {
		profile.Seed = *seed
	}
	if *logFormat != "" {
		profile.Log.Format = *logFormat
	}
	if *logLevel != "" {
		profile.Log.Level = *logLevel
	}
	if err := profile.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logOut := os.Stderr
	if *useTUI {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create out dir: %v\n", err)
			os.Exit(1)
		}
		f, err := os.OpenFile(filepath.Join(*outDir, "executor.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := profile.Logger(logOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		outDir:        *outDir,
		workers:       max(*workers, 1),
		gamesPerFlush: *gamesPerFlush,
		maxGames:      *maxGames,
		maxMoves:      *maxMoves,
		explain:       *explain,
		profile:       profile,
	}
	if err := run(sigCtx, opts, logger, *useTUI); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(parent context.Context, opts runOptions, logger *slog.Logger, useTUI bool) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	gameLog, err := store.OpenGameLog(filepath.Join(opts.outDir, "games.jsonl"))
	if err != nil {
		return err
	}
	defer gameLog.Close()

	logger.Info("starting self-play",
		"workers", opts.workers,
		"strategy", opts.profile.Strategy,
		"grid_size", opts.profile.GridSize,
		"seed", opts.profile.Seed,
		"max_games", opts.maxGames,
		"logged_games", gameLog.Count(),
	)

	updates := make(chan GameUpdate, opts.workers)
	writeReqs := make(chan selfplay.PlayGameOutcome, opts.workers*4)
	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(opts.outDir, opts.gamesPerFlush, gameLog, writeReqs, logger)
		close(writerDone)
	}()

	var nextGame atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.workers; i++ {
		workerID := i
		g.Go(func() error {
			return runWorker(gctx, workerID, opts, &nextGame, gameLog, writeReqs, updates, logger)
		})
	}

	workersDone := make(chan error, 1)
	go func() {
		err := g.Wait()
		close(writeReqs)
		<-writerDone
		workersDone <- err
	}()

	if useTUI {
		p := tea.NewProgram(initialModel(updates, opts.profile.Strategy))
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			logger.Error("tui", "error", err)
		}
		// Quitting the dashboard stops the run; workers finish their
		// current move and flush.
		cancel()
		return waitForWorkers(workersDone, logger)
	}

	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-workersDone:
			logShutdown(logger)
			return err
		case <-ctx.Done():
			logger.Info("shutdown requested; waiting for workers to finish current moves")
			return waitForWorkers(workersDone, logger)
		case u := <-updates:
			logger.Info("game finished",
				"worker", u.WorkerID,
				"game", u.Result.GameID,
				"moves", u.Result.Moves,
				"score", u.Result.Score,
				"max_tile", u.Result.MaxTile,
				"won", u.Result.Won,
			)
		case <-ticker.C:
			secs := time.Since(startTime).Seconds()
			logger.Info("stats",
				"games", totalGames.Load(),
				"moves_per_sec", strconv.FormatFloat(float64(totalMoves.Load())/secs, 'f', 2, 64),
			)
		}
	}
}

func waitForWorkers(done <-chan error, logger *slog.Logger) error {
	err := <-done
	logShutdown(logger)
	return err
}

func logShutdown(logger *slog.Logger) {
	logger.Info("shutdown complete", "games", totalGames.Load(), "moves", totalMoves.Load())
}

func runWorker(
	ctx context.Context,
	workerID int,
	opts runOptions,
	nextGame *atomic.Int64,
	gameLog *store.GameLog,
	out chan<- selfplay.PlayGameOutcome,
	updates chan<- GameUpdate,
	logger *slog.Logger,
) error {
	onStep := func() { totalMoves.Add(1) }
	for {
		if ctx.Err() != nil {
			return nil
		}
		n := nextGame.Add(1)
		if opts.maxGames > 0 && n > opts.maxGames {
			return nil
		}

		sc, err := opts.profile.StrategyConfig(0, logger)
		if err != nil {
			return err
		}
		gc := selfplay.GameConfig{
			Size:      opts.profile.GridSize,
			Strategy:  sc,
			WinTarget: opts.profile.WinTarget,
			MaxMoves:  opts.maxMoves,
			Explain:   opts.explain,
			Logger:    logger,
		}
		if base := opts.profile.Seed; base != 0 {
			gc.Seed = base + n - 1
			// Seeded games get a worker-independent id so reruns skip them.
			gc.GameID = fmt.Sprintf("%s_s%d", sc.Kind, gc.Seed)
			if gameLog.Has(gc.GameID) {
				logger.Debug("skipping logged game", "game", gc.GameID)
				continue
			}
		}

		res, err := selfplay.PlayGame(ctx, workerID, gc, onStep)
		if err != nil {
			if errors.Is(err, selfplay.ErrNoOpMove) {
				return err
			}
			logger.Error("game failed", "worker", workerID, "error", err)
			continue
		}
		if !res.Completed {
			logger.Info("game interrupted", "worker", workerID, "game", res.Result.GameID, "moves", res.Result.Moves)
			return nil
		}

		totalGames.Add(1)
		out <- res
		select {
		case updates <- GameUpdate{WorkerID: workerID, Result: res.Result, Rows: len(res.Rows)}:
		default:
		}
	}
}

// parquetWriterLoop streams finished games into batch files and records
// each flushed game in the log.
func parquetWriterLoop(outDir string, gamesPerFlush int, gameLog *store.GameLog, in <-chan selfplay.PlayGameOutcome, logger *slog.Logger) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	var (
		bw      *store.BatchWriter
		pending []store.GameRecord
	)
	flush := func() {
		if bw == nil {
			return
		}
		outPath, rows, games, err := bw.Finalize()
		bw = nil
		if err != nil {
			logger.Error("parquet flush failed", "games", games, "rows", rows, "error", err)
			pending = pending[:0]
			return
		}
		for i := range pending {
			pending[i].File = outPath
		}
		if err := gameLog.AddMany(pending); err != nil {
			logger.Error("game log append failed", "error", err)
		}
		pending = pending[:0]
		logger.Info("parquet flush ok", "path", outPath, "games", games, "rows", rows)
	}

	for res := range in {
		if len(res.Rows) == 0 {
			continue
		}
		if bw == nil {
			w, err := store.NewBatchWriter(outDir)
			if err != nil {
				logger.Error("open batch writer", "error", err)
				continue
			}
			bw = w
		}
		if err := bw.WriteGame(res.Rows); err != nil {
			logger.Error("write game", "game", res.Result.GameID, "error", err)
			continue
		}
		pending = append(pending, gameRecord(res.Result))
		if bw.Games() >= gamesPerFlush {
			flush()
		}
	}
	flush()
}

func gameRecord(r selfplay.GameResult) store.GameRecord {
	return store.GameRecord{
		GameID:     r.GameID,
		Strategy:   r.Strategy,
		Seed:       r.Seed,
		Turns:      r.Moves,
		Score:      r.Score,
		MaxTile:    uint64(r.MaxTile),
		Won:        r.Won,
		FinishedAt: time.Now().UTC(),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
