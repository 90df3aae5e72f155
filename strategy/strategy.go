// Package strategy puts every move-choosing algorithm behind one contract.
//
// A Strategy returns game.None exactly when no direction changes the grid
// and never returns a direction that leaves the grid unchanged. Instances
// are cheap to build but not safe for concurrent use; give each worker its
// own.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arach/2048ish/executor/expectimax"
	"github.com/arach/2048ish/executor/mcts"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/heuristic"
	"github.com/arach/2048ish/random"
	"github.com/arach/2048ish/rules"
)

type Strategy interface {
	Name() string
	// NextMove returns the chosen direction, or game.None when the game is
	// over. ctx bounds search strategies; reflex strategies ignore it.
	NextMove(ctx context.Context, state *game.GameState) game.Direction
	ExplainMove(dir game.Direction, state *game.GameState) string
	EvaluateAllMoves(state *game.GameState) MoveEvaluations
}

// Reporter is implemented by strategies that keep diagnostics from their
// most recent NextMove call.
type Reporter interface {
	LastSearch() any
}

// MoveSummary is the per-direction view returned by EvaluateAllMoves.
// Score is strategy specific: a search value, a win rate or a reflex
// priority. Higher is better.
type MoveSummary struct {
	Direction  game.Direction       `json:"direction"`
	Score      float64              `json:"score"`
	Points     uint64               `json:"points"`
	Merges     int                  `json:"merges"`
	EmptyCells int                  `json:"empty_cells"`
	MaxTile    game.Cell            `json:"max_tile"`
	Evaluation heuristic.Evaluation `json:"evaluation"`
}

type MoveEvaluations struct {
	ValidMoves  []game.Direction               `json:"valid_moves"`
	Evaluations map[game.Direction]MoveSummary `json:"evaluations"`
}

// Kind names a strategy variant.
type Kind string

const (
	Corner     Kind = "corner"
	Greedy     Kind = "greedy"
	Snake      Kind = "snake"
	Random     Kind = "random"
	Expectimax Kind = "expectimax"
	MCTS       Kind = "mcts"
)

var Kinds = []Kind{Corner, Greedy, Snake, Random, Expectimax, MCTS}

var ErrUnknownStrategy = errors.New("unknown strategy")

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Config selects and parameterises a strategy.
type Config struct {
	Kind       Kind
	Weights    heuristic.Weights
	Expectimax expectimax.Config
	MCTS       mcts.Config
	// Seed drives MCTS rollouts and the random strategy. 0 means unseeded.
	Seed   int64
	Logger *slog.Logger
}

// DefaultConfig returns a config for kind with default search parameters.
func DefaultConfig(kind Kind) Config {
	return Config{
		Kind:       kind,
		Weights:    heuristic.DefaultWeights(),
		Expectimax: expectimax.DefaultConfig(),
		MCTS:       mcts.DefaultConfig(),
	}
}

// New builds the strategy named by cfg.Kind.
func New(cfg Config) (Strategy, error) {
	switch cfg.Kind {
	case Corner:
		return &cornerStrategy{weights: cfg.Weights}, nil
	case Greedy:
		return &greedyStrategy{weights: cfg.Weights}, nil
	case Snake:
		return &snakeStrategy{weights: cfg.Weights}, nil
	case Random:
		return &randomStrategy{weights: cfg.Weights, rng: random.New(cfg.Seed)}, nil
	case Expectimax:
		ec := cfg.Expectimax
		ec.Weights = cfg.Weights
		if ec.Logger == nil {
			ec.Logger = cfg.Logger
		}
		return &expectimaxStrategy{search: expectimax.New(ec)}, nil
	case MCTS:
		mc := cfg.MCTS
		if mc.Logger == nil {
			mc.Logger = cfg.Logger
		}
		return &mctsStrategy{
			search:  mcts.New(mc, random.New(cfg.Seed)),
			weights: cfg.Weights,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Kind)
}

// simulated is one direction applied to a grid without a spawn.
type simulated struct {
	dir    game.Direction
	res    rules.MoveResult
	merges int
}

// simulateAll applies every legal direction in game.Directions order.
func simulateAll(grid game.Grid) []simulated {
	out := make([]simulated, 0, 4)
	for _, d := range game.Directions {
		res := rules.MoveGrid(grid, d)
		if !res.Changed {
			continue
		}
		merges := 0
		for _, m := range res.Moves {
			if m.Merged {
				merges++
			}
		}
		out = append(out, simulated{dir: d, res: res, merges: merges / 2})
	}
	return out
}

// summarize fills the shared fields of a MoveEvaluations; score supplies
// the strategy-specific Score per direction.
func summarize(state *game.GameState, w heuristic.Weights, score func(simulated) float64) MoveEvaluations {
	ev := MoveEvaluations{
		ValidMoves:  []game.Direction{},
		Evaluations: make(map[game.Direction]MoveSummary, 4),
	}
	for _, s := range simulateAll(state.Grid) {
		e := heuristic.Evaluate(s.res.Grid, state.Score+s.res.Points, w)
		ev.ValidMoves = append(ev.ValidMoves, s.dir)
		ev.Evaluations[s.dir] = MoveSummary{
			Direction:  s.dir,
			Score:      score(s),
			Points:     s.res.Points,
			Merges:     s.merges,
			EmptyCells: e.EmptyCells,
			MaxTile:    e.MaxTile,
			Evaluation: e,
		}
	}
	return ev
}

// describeMove is the shared explanation prefix for reflex strategies.
func describeMove(dir game.Direction, state *game.GameState) (string, bool) {
	if !dir.Valid() {
		return "no legal moves", false
	}
	res := rules.MoveGrid(state.Grid, dir)
	if !res.Changed {
		return fmt.Sprintf("%s does not change the board", dir), false
	}
	merges := 0
	for _, m := range res.Moves {
		if m.Merged {
			merges++
		}
	}
	merges /= 2
	if merges == 0 {
		return fmt.Sprintf("%s slides tiles without merging", dir), true
	}
	return fmt.Sprintf("%s merges %d pair(s) for %d points", dir, merges, res.Points), true
}
