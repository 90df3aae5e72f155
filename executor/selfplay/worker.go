package selfplay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/random"
	"github.com/arach/2048ish/rules"
	"github.com/arach/2048ish/scraper/store"
	"github.com/arach/2048ish/strategy"
)

// GameConfig describes one self-play game.
type GameConfig struct {
	// GameID is generated from the strategy, seed and worker when empty.
	GameID   string
	Size     int
	Strategy strategy.Config
	// WinTarget sets HasWon; 0 means rules.DefaultWinTarget.
	WinTarget game.Cell
	// Seed drives tile spawns and the strategy's own randomness. 0 picks a
	// fresh seed, which is still recorded so the game can be replayed.
	Seed int64
	// MaxMoves stops the game early; 0 plays until no move is left.
	MaxMoves int
	// Start replaces the freshly spawned opening position.
	Start *game.GameState
	// Explain stores ExplainMove output on every row.
	Explain bool
	// Trace, when set, receives a board dump and explanation per turn.
	Trace io.Writer

	// Inspect is called after the strategy picks dir and before the move
	// is applied. It may query strat on state; the search caches make that
	// cheap for the search strategies.
	Inspect func(turn int, state *game.GameState, dir game.Direction, strat strategy.Strategy)

	StopRequested func() bool
	Logger        *slog.Logger
}

type GameResult struct {
	GameID   string        `json:"game_id"`
	Strategy string        `json:"strategy"`
	Seed     int64         `json:"seed"`
	Moves    int           `json:"moves"`
	Score    uint64        `json:"score"`
	MaxTile  game.Cell     `json:"max_tile"`
	Won      bool          `json:"won"`
	Over     bool          `json:"over"`
	Elapsed  time.Duration `json:"elapsed"`
}

// PlayGameOutcome carries the rows of a game. Rows are only complete when
// Completed is set; an interrupted game keeps what was played so far.
type PlayGameOutcome struct {
	Completed bool
	Rows      []store.TurnRow
	Result    GameResult
}

var ErrNoOpMove = errors.New("selfplay: strategy returned a move that does not change the board")

// PlayGame plays a full game and records one row per turn plus a terminal
// row. Cancellation and StopRequested are checked between moves.
func PlayGame(ctx context.Context, workerID int, cfg GameConfig, onStep func()) (PlayGameOutcome, error) {
	start := time.Now()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stopRequested := cfg.StopRequested
	if stopRequested == nil {
		stopRequested = func() bool { return false }
	}
	target := cfg.WinTarget
	if target == 0 {
		target = rules.DefaultWinTarget
	}
	size := cfg.Size
	if size == 0 {
		size = game.DefaultGridSize
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() + int64(workerID)*1000003
	}
	rng := random.NewSeeded(uint64(seed))

	sc := cfg.Strategy
	sc.Seed = int64(rng.Fork().Seed()) | 1
	if sc.Logger == nil {
		sc.Logger = logger
	}
	strat, err := strategy.New(sc)
	if err != nil {
		return PlayGameOutcome{}, err
	}

	gameID := cfg.GameID
	if gameID == "" {
		gameID = fmt.Sprintf("%s_%d_w%d", strat.Name(), seed, workerID)
	}

	var state *game.GameState
	if cfg.Start != nil {
		state = cfg.Start.Clone()
		state.HasWon = state.HasWon || rules.CheckWin(state.Grid, target)
		state.IsGameOver = !rules.CanMove(state.Grid)
	} else {
		state = rules.NewGame(size, rng)
	}

	result := func(moves int) GameResult {
		return GameResult{
			GameID:   gameID,
			Strategy: strat.Name(),
			Seed:     seed,
			Moves:    moves,
			Score:    state.Score,
			MaxTile:  state.Grid.MaxTile(),
			Won:      state.HasWon,
			Over:     state.IsGameOver,
			Elapsed:  time.Since(start),
		}
	}

	rows := make([]store.TurnRow, 0, 256)
	turn := 0
	for ; ; turn++ {
		if ctx.Err() != nil || stopRequested() {
			return PlayGameOutcome{Rows: rows, Result: result(turn)}, nil
		}
		if rules.IsTerminal(state) || (cfg.MaxMoves > 0 && turn >= cfg.MaxMoves) {
			break
		}

		dir := strat.NextMove(ctx, state)
		if ctx.Err() != nil {
			// The search was cut short; its move is not worth recording.
			return PlayGameOutcome{Rows: rows, Result: result(turn)}, nil
		}

		row := store.NewTurnRow(gameID, turn, state)
		row.Move = int32(dir)
		row.Strategy = strat.Name()
		row.Seed = seed
		var explanation string
		if cfg.Explain || cfg.Trace != nil {
			explanation = strat.ExplainMove(dir, state)
		}
		if cfg.Explain {
			row.Explanation = explanation
		}
		if rep, ok := strat.(strategy.Reporter); ok {
			if diag := rep.LastSearch(); diag != nil {
				b, err := json.Marshal(diag)
				if err != nil {
					logger.Warn("encode search diagnostics", "game", gameID, "turn", turn, "error", err)
				} else {
					row.SearchJSON = b
				}
			}
		}

		if cfg.Inspect != nil {
			cfg.Inspect(turn, state, dir, strat)
		}

		next := rules.MakeMoveTarget(state, dir, rng, target)
		if next == state {
			return PlayGameOutcome{Rows: rows, Result: result(turn)},
				fmt.Errorf("%w: %s chose %s on %s", ErrNoOpMove, strat.Name(), dir, state.Grid)
		}
		row.Points = int64(next.Score - state.Score)
		rows = append(rows, row)

		if cfg.Trace != nil {
			PrintBoard(cfg.Trace, turn, state)
			fmt.Fprintf(cfg.Trace, "-> %s (+%d): %s\n", dir, row.Points, explanation)
		}
		if onStep != nil {
			onStep()
		}
		state = next
	}

	rows = append(rows, store.NewTurnRow(gameID, turn, state))
	last := &rows[len(rows)-1]
	last.Strategy = strat.Name()
	last.Seed = seed

	if cfg.Trace != nil {
		PrintBoard(cfg.Trace, turn, state)
	}
	res := result(turn)
	logger.Debug("game finished",
		"worker", workerID,
		"game", gameID,
		"moves", res.Moves,
		"score", res.Score,
		"max_tile", res.MaxTile,
		"won", res.Won,
		"elapsed", res.Elapsed,
	)
	return PlayGameOutcome{Completed: true, Rows: rows, Result: res}, nil
}
