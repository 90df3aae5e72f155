package selfplay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/strategy"
)

// DebugTurnData is everything the strategy knew when it picked Move.
type DebugTurnData struct {
	Turn        int                      `json:"turn"`
	State       *game.GameState          `json:"state"`
	Move        game.Direction           `json:"move"`
	Explanation string                   `json:"explanation"`
	Evaluations strategy.MoveEvaluations `json:"evaluations"`
	// Search holds the raw diagnostics of search strategies.
	Search json.RawMessage `json:"search,omitempty"`
}

type DebugGameResult struct {
	GameID   string          `json:"game_id"`
	Strategy string          `json:"strategy"`
	Result   GameResult      `json:"result"`
	Final    *game.GameState `json:"final"`
	Turns    []DebugTurnData `json:"turns"`
}

// PlayDebugGame plays one game like PlayGame and keeps a full per-turn
// trace. onProgress is called after each recorded turn.
func PlayDebugGame(ctx context.Context, cfg GameConfig, onProgress func(DebugTurnData)) (*DebugGameResult, PlayGameOutcome, error) {
	out := &DebugGameResult{Turns: make([]DebugTurnData, 0, 256)}

	cfg.Explain = true
	prev := cfg.Inspect
	cfg.Inspect = func(turn int, state *game.GameState, dir game.Direction, strat strategy.Strategy) {
		if prev != nil {
			prev(turn, state, dir, strat)
		}
		td := DebugTurnData{
			Turn:        turn,
			State:       state.Clone(),
			Move:        dir,
			Explanation: strat.ExplainMove(dir, state),
			Evaluations: strat.EvaluateAllMoves(state),
		}
		if rep, ok := strat.(strategy.Reporter); ok {
			if diag := rep.LastSearch(); diag != nil {
				if b, err := json.Marshal(diag); err == nil {
					td.Search = b
				}
			}
		}
		out.Turns = append(out.Turns, td)
		if onProgress != nil {
			onProgress(td)
		}
	}

	played, err := PlayGame(ctx, 0, cfg, nil)
	if err != nil {
		return nil, played, err
	}
	if !played.Completed {
		if cause := context.Cause(ctx); cause != nil {
			return nil, played, fmt.Errorf("debug game interrupted: %w", cause)
		}
		return nil, played, errors.New("debug game interrupted")
	}

	out.GameID = played.Result.GameID
	out.Strategy = played.Result.Strategy
	out.Result = played.Result
	if n := len(played.Rows); n > 0 {
		final, err := played.Rows[n-1].State()
		if err != nil {
			return nil, played, err
		}
		out.Final = final
	}
	return out, played, nil
}

// WriteJSON writes the trace as indented JSON through a temp file.
func (r *DebugGameResult) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode debug game: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
