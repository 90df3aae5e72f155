package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/arach/2048ish/config"
	"github.com/arach/2048ish/executor/selfplay"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/scraper/htmlboard"
	"github.com/arach/2048ish/scraper/store"
	"github.com/arach/2048ish/strategy"
)

func main() {
	configPath := flag.String("config", os.Getenv("G2048_CONFIG"), "Profile file (yaml/json)")
	strategyName := flag.String("strategy", "", "Override the profile strategy")
	seed := flag.Int64("seed", 0, "Game seed; 0 picks one and prints it")
	size := flag.Int("size", 0, "Grid size; 0 uses the profile")
	htmlPath := flag.String("html", "", "Start from a saved page of the web game")
	pageURL := flag.String("url", "", "Start from the board on a live page of the web game")
	gridLiteral := flag.String("grid", "", `Start from a grid literal, e.g. "2 4 . . | . . . . | ..."`)
	score := flag.Uint64("score", 0, "Starting score when -grid is used")
	maxMoves := flag.Int("max-moves", 0, "Stop after this many moves (0 = play to the end)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall time limit")
	outDir := flag.String("out-dir", "debug_games", "Output directory for the parquet file and JSON trace")
	showEvals := flag.Bool("evaluate", false, "Print every direction's evaluation each turn")
	quiet := flag.Bool("quiet", false, "Do not print boards")
	flag.Parse()

	profile, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *strategyName != "" {
		profile.Strategy = *strategyName
	}
	if *size != 0 {
		profile.GridSize = *size
	}
	if *seed != 0 {
		profile.Seed = *seed
	}
	if err := profile.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger, err := profile.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start, err := loadStart(ctx, *htmlPath, *pageURL, *gridLiteral, *score)
	if err != nil {
		logger.Error("load start position", "error", err)
		os.Exit(1)
	}

	sc, err := profile.StrategyConfig(0, logger)
	if err != nil {
		logger.Error("strategy", "error", err)
		os.Exit(1)
	}

	var trace io.Writer = os.Stdout
	if *quiet {
		trace = nil
	}
	cfg := selfplay.GameConfig{
		Size:      profile.GridSize,
		Strategy:  sc,
		WinTarget: profile.WinTarget,
		Seed:      profile.Seed,
		MaxMoves:  *maxMoves,
		Start:     start,
		Trace:     trace,
		Logger:    logger,
	}
	if *showEvals {
		cfg.Inspect = func(turn int, state *game.GameState, dir game.Direction, strat strategy.Strategy) {
			selfplay.PrintEvaluations(os.Stdout, strat.EvaluateAllMoves(state))
		}
	}

	logger.Info("playing debug game", "strategy", profile.Strategy, "seed", profile.Seed, "size", profile.GridSize)
	result, played, err := selfplay.PlayDebugGame(ctx, cfg, nil)
	if err != nil {
		logger.Error("debug game failed", "error", err)
		os.Exit(1)
	}
	r := result.Result
	logger.Info("game complete",
		"game", r.GameID,
		"seed", r.Seed,
		"moves", r.Moves,
		"score", r.Score,
		"max_tile", r.MaxTile,
		"won", r.Won,
		"elapsed", r.Elapsed,
	)

	parquetPath := filepath.Join(*outDir, r.GameID+".parquet")
	if err := store.WriteGameParquet(parquetPath, played.Rows); err != nil {
		logger.Error("write parquet", "error", err)
		os.Exit(1)
	}
	jsonPath := filepath.Join(*outDir, r.GameID+".json")
	if err := result.WriteJSON(jsonPath); err != nil {
		logger.Error("write trace", "error", err)
		os.Exit(1)
	}
	logger.Info("debug game written", "parquet", parquetPath, "trace", jsonPath)
}

// loadStart returns the opening position named by at most one of the
// flags, or nil for a freshly spawned game.
func loadStart(ctx context.Context, htmlPath, pageURL, gridLiteral string, score uint64) (*game.GameState, error) {
	set := 0
	for _, s := range []string{htmlPath, pageURL, gridLiteral} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("use only one of -html, -url and -grid")
	}

	switch {
	case htmlPath != "":
		f, err := os.Open(htmlPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return htmlboard.Parse(f)
	case pageURL != "":
		return htmlboard.NewFetcher().Fetch(ctx, pageURL)
	case gridLiteral != "":
		g, err := game.ParseGrid(gridLiteral)
		if err != nil {
			return nil, err
		}
		return &game.GameState{Grid: g, Score: score}, nil
	}
	return nil, nil
}
