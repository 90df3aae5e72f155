// Package expectimax implements a bounded-depth search that alternates the
// player's move with the tile spawn that follows it.
//
// The spawn layer is adversarial: each sampled empty cell is scored as
// 0.9·V(spawn 2) + 0.1·V(spawn 4), and the layer takes the minimum across
// cells rather than their average.
package expectimax

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/heuristic"
	"github.com/arach/2048ish/rules"
)

const (
	DefaultMaxDepth      = 4
	DefaultMaxSpawnCells = 6
)

// Config holds expectimax configuration.
type Config struct {
	// MaxDepth counts player moves, including the root move. Depth 1 scores
	// the board right after each root move.
	MaxDepth int `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"`
	// MaxSpawnCells caps how many empty cells each spawn layer examines.
	// Cells are taken in row-major order.
	MaxSpawnCells int               `json:"max_spawn_cells" yaml:"max_spawn_cells" mapstructure:"max_spawn_cells"`
	Weights       heuristic.Weights `json:"weights" yaml:"weights" mapstructure:"weights"`
	// Parallel evaluates the root directions concurrently. The chosen move
	// is identical to the sequential path.
	Parallel bool `json:"parallel" yaml:"parallel" mapstructure:"parallel"`

	Logger *slog.Logger `json:"-" yaml:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:      DefaultMaxDepth,
		MaxSpawnCells: DefaultMaxSpawnCells,
		Weights:       heuristic.DefaultWeights(),
	}
}

// Searcher runs expectimax searches. It holds no per-search state and is
// safe for concurrent use.
type Searcher struct {
	cfg Config
}

// New validates cfg and returns a Searcher. Negative or zero depth and a
// negative cell cap are programming errors and panic. A zero MaxSpawnCells
// means DefaultMaxSpawnCells.
func New(cfg Config) *Searcher {
	if cfg.MaxDepth < 1 {
		panic(fmt.Sprintf("expectimax: MaxDepth must be >= 1, got %d", cfg.MaxDepth))
	}
	if cfg.MaxSpawnCells < 0 {
		panic(fmt.Sprintf("expectimax: MaxSpawnCells must be >= 0, got %d", cfg.MaxSpawnCells))
	}
	if cfg.MaxSpawnCells == 0 {
		cfg.MaxSpawnCells = DefaultMaxSpawnCells
	}
	return &Searcher{cfg: cfg}
}

func (s *Searcher) Config() Config { return s.cfg }

// Outcome is the root-level result for one direction.
type Outcome struct {
	Direction game.Direction `json:"direction"`
	Legal     bool           `json:"legal"`
	// Value is the search value; only meaningful when Legal.
	Value  float64 `json:"value"`
	Points uint64  `json:"points"`
	Merges int     `json:"merges"`
	// After is the heuristic evaluation of the board right after the move,
	// before any spawn.
	After heuristic.Evaluation `json:"after"`
	Nodes int64                `json:"nodes"`
}

// Result is the outcome of a search.
type Result struct {
	Best     game.Direction       `json:"best"`
	Value    float64              `json:"value"`
	Before   heuristic.Evaluation `json:"before"`
	Outcomes [4]Outcome           `json:"outcomes"`
	Reasons  []string             `json:"reasons"`
	Nodes    int64                `json:"nodes"`
	Elapsed  time.Duration        `json:"elapsed"`
}

// Search picks the direction with the highest search value. Ties go to the
// first direction in game.Directions order. Best is game.None when no
// direction changes the grid.
//
// ctx is checked between root directions; a cancelled search still returns
// the best direction among those already scored, and the legal fallback
// otherwise.
func (s *Searcher) Search(ctx context.Context, state *game.GameState) Result {
	start := time.Now()
	res := Result{
		Best:   game.None,
		Value:  math.Inf(-1),
		Before: heuristic.Evaluate(state.Grid, state.Score, s.cfg.Weights),
	}

	scored := [4]bool{}
	for i, d := range game.Directions {
		mv := rules.MoveGrid(state.Grid, d)
		res.Outcomes[i] = Outcome{
			Direction: d,
			Legal:     mv.Changed,
			Points:    mv.Points,
			Merges:    countMerges(mv.Moves),
			After:     heuristic.Evaluate(mv.Grid, state.Score+mv.Points, s.cfg.Weights),
		}
	}

	score := func(i int) {
		o := &res.Outcomes[i]
		w := walker{cfg: &s.cfg}
		mv := rules.MoveGrid(state.Grid, o.Direction)
		o.Value = w.chance(mv.Grid, state.Score+mv.Points, s.cfg.MaxDepth-1)
		o.Nodes = w.nodes
		scored[i] = true
	}

	if s.cfg.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range res.Outcomes {
			if !res.Outcomes[i].Legal {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				score(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range res.Outcomes {
			if !res.Outcomes[i].Legal {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			score(i)
		}
	}

	fallback := game.None
	for i, o := range res.Outcomes {
		res.Nodes += o.Nodes
		if !o.Legal {
			continue
		}
		if fallback == game.None {
			fallback = o.Direction
		}
		if scored[i] && o.Value > res.Value {
			res.Value = o.Value
			res.Best = o.Direction
		}
	}
	if res.Best == game.None {
		// Nothing was scored: either no legal move or the search was
		// cancelled first. Value falls back to a static evaluation.
		res.Best = fallback
		res.Value = res.Before.Score
		if fallback != game.None {
			res.Value = res.Outcomes[fallback].After.Score
		}
	}
	if res.Best != game.None {
		res.Reasons = Reasons(res.Before, res.Outcomes[res.Best], s.cfg.Weights)
	}
	res.Elapsed = time.Since(start)

	s.logger().Debug("expectimax search",
		"best", res.Best,
		"value", res.Value,
		"nodes", res.Nodes,
		"depth", s.cfg.MaxDepth,
		"elapsed", res.Elapsed,
	)
	return res
}

func (s *Searcher) logger() *slog.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return slog.Default()
}

// walker carries per-branch counters so parallel root branches never share
// mutable state.
type walker struct {
	cfg   *Config
	nodes int64
}

func (w *walker) eval(g game.Grid, score uint64) float64 {
	w.nodes++
	return heuristic.Evaluate(g, score, w.cfg.Weights).Score
}

// max is the player layer: the best value over every direction that changes
// the grid. remaining is the number of player moves still allowed.
func (w *walker) max(g game.Grid, score uint64, remaining int) float64 {
	if remaining <= 0 {
		return w.eval(g, score)
	}
	best := math.Inf(-1)
	for _, d := range game.Directions {
		mv := rules.MoveGrid(g, d)
		if !mv.Changed {
			continue
		}
		if v := w.chance(mv.Grid, score+mv.Points, remaining-1); v > best {
			best = v
		}
	}
	if math.IsInf(best, -1) {
		return w.eval(g, score)
	}
	return best
}

// chance is the spawn layer, taking the worst case over sampled cells.
func (w *walker) chance(g game.Grid, score uint64, remaining int) float64 {
	if remaining <= 0 {
		return w.eval(g, score)
	}
	cells := g.EmptyCells()
	if len(cells) == 0 {
		return w.max(g, score, remaining)
	}
	if len(cells) > w.cfg.MaxSpawnCells {
		cells = cells[:w.cfg.MaxSpawnCells]
	}
	worst := math.Inf(1)
	for _, p := range cells {
		two := w.max(g.With(p, 2), score, remaining)
		four := w.max(g.With(p, 4), score, remaining)
		v := rules.SpawnTwoProbability*two + (1-rules.SpawnTwoProbability)*four
		if v < worst {
			worst = v
		}
	}
	return worst
}

func countMerges(moves []game.Move) int {
	n := 0
	for _, m := range moves {
		if m.Merged {
			n++
		}
	}
	// Both tiles of a merge are reported.
	return n / 2
}
