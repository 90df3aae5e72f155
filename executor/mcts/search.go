// Package mcts implements Monte-Carlo Tree Search with UCB1 selection and
// uniformly random rollouts.
package mcts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/random"
	"github.com/arach/2048ish/rules"
)

const (
	DefaultMaxIterations = 100
	DefaultMaxDepth      = 20

	// Rollout rewards, by the largest tile reached relative to the win
	// target.
	WinReward     = 10.0
	HalfReward    = 3.0 // reached target/2
	QuarterReward = 1.0 // reached target/4
)

var DefaultExploration = math.Sqrt2

// Config holds MCTS configuration.
type Config struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`
	// MaxDepth bounds the number of random plies per rollout.
	MaxDepth    int       `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"`
	Exploration float64   `json:"exploration" yaml:"exploration" mapstructure:"exploration"`
	WinTarget   game.Cell `json:"win_target" yaml:"win_target" mapstructure:"win_target"`

	Logger *slog.Logger `json:"-" yaml:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		MaxDepth:      DefaultMaxDepth,
		Exploration:   DefaultExploration,
		WinTarget:     rules.DefaultWinTarget,
	}
}

// Searcher holds the search context. The node arena is reused between
// searches, so a Searcher must not be shared between goroutines.
type Searcher struct {
	cfg   Config
	rng   random.Generator
	arena []node
}

// New returns a Searcher drawing spawns and rollouts from rng. Negative
// iteration or depth counts panic; zero values select the defaults.
func New(cfg Config, rng random.Generator) *Searcher {
	if cfg.MaxIterations < 0 {
		panic(fmt.Sprintf("mcts: MaxIterations must be >= 0, got %d", cfg.MaxIterations))
	}
	if cfg.MaxDepth < 0 {
		panic(fmt.Sprintf("mcts: MaxDepth must be >= 0, got %d", cfg.MaxDepth))
	}
	if cfg.Exploration < 0 {
		panic(fmt.Sprintf("mcts: Exploration must be >= 0, got %v", cfg.Exploration))
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.WinTarget == 0 {
		cfg.WinTarget = rules.DefaultWinTarget
	}
	if rng == nil {
		rng = random.NewDefault()
	}
	return &Searcher{cfg: cfg, rng: rng}
}

func (s *Searcher) Config() Config { return s.cfg }

// ChildSummary describes one root child after the search.
type ChildSummary struct {
	Direction game.Direction `json:"direction"`
	Visits    int            `json:"visits"`
	Wins      float64        `json:"wins"`
	WinRate   float64        `json:"win_rate"`
	MeanScore float64        `json:"mean_score"`
	Won       bool           `json:"won,omitempty"`
}

// Result is the outcome of a search.
type Result struct {
	Best       game.Direction `json:"best"`
	Children   []ChildSummary `json:"children"`
	Iterations int            `json:"iterations"`
	Nodes      int            `json:"nodes"`
	Target     game.Cell      `json:"target"`
	Elapsed    time.Duration  `json:"elapsed"`
}

// Search runs up to MaxIterations iterations from state and returns the root
// child with the highest win rate. Ties prefer a child that reaches the
// target itself, then the higher mean score, then more visits, then
// direction order. Best is game.None when no direction changes the grid.
//
// ctx is checked between iterations; a cancelled search returns its choice
// from the iterations already run.
func (s *Searcher) Search(ctx context.Context, state *game.GameState) Result {
	start := time.Now()
	target := s.cfg.WinTarget
	// Once the target tile is on the board, aim for the next one so the
	// rewards still discriminate between moves.
	if maxTile := state.Grid.MaxTile(); maxTile >= target {
		target = maxTile * 2
	}

	s.arena = s.arena[:0]
	s.newNode(state, game.None, -1, target)
	res := Result{Best: game.None, Target: target}

	if len(s.arena[0].untried) == 0 {
		res.Nodes = len(s.arena)
		return res
	}

	for res.Iterations < s.cfg.MaxIterations {
		if ctx.Err() != nil {
			break
		}

		// Selection
		idx := int32(0)
		for {
			n := &s.arena[idx]
			if n.terminal || len(n.untried) > 0 || len(n.children) == 0 {
				break
			}
			idx = s.selectChild(idx)
		}

		// Expansion
		if n := &s.arena[idx]; !n.terminal && len(n.untried) > 0 {
			d := n.untried[0]
			n.untried = n.untried[1:]
			next := rules.MakeMoveTarget(n.state, d, s.rng, target)
			idx = s.newNode(next, d, idx, target)
		}

		// Simulation
		maxTile, won, score := s.rollout(s.arena[idx].state, target)
		reward := Reward(maxTile, won, target)

		// Backpropagation
		for i := idx; i >= 0; i = s.arena[i].parent {
			n := &s.arena[i]
			n.visits++
			n.wins += reward
			n.score += float64(score)
		}
		res.Iterations++
	}

	root := &s.arena[0]
	var best *ChildSummary
	for _, ci := range root.children {
		c := &s.arena[ci]
		sum := ChildSummary{
			Direction: c.move,
			Visits:    c.visits,
			Wins:      c.wins,
			WinRate:   c.winRate(),
			Won:       c.won,
		}
		if c.visits > 0 {
			sum.MeanScore = c.score / float64(c.visits)
		}
		res.Children = append(res.Children, sum)
	}
	for i := range res.Children {
		if best == nil || betterChild(&res.Children[i], best) {
			best = &res.Children[i]
		}
	}
	if best != nil {
		res.Best = best.Direction
	}
	if res.Best == game.None {
		// Cancelled before the first expansion.
		res.Best = root.untried[0]
	}
	res.Nodes = len(s.arena)
	res.Elapsed = time.Since(start)

	s.logger().Debug("mcts search",
		"best", res.Best,
		"iterations", res.Iterations,
		"nodes", res.Nodes,
		"target", target,
		"elapsed", res.Elapsed,
	)
	return res
}

// betterChild reports whether a should be chosen over b at the root.
func betterChild(a, b *ChildSummary) bool {
	if a.WinRate != b.WinRate {
		return a.WinRate > b.WinRate
	}
	if a.Won != b.Won {
		return a.Won
	}
	if a.MeanScore != b.MeanScore {
		return a.MeanScore > b.MeanScore
	}
	return a.Visits > b.Visits
}

// selectChild applies UCB1. Unvisited children win immediately; ties keep
// the earlier child.
func (s *Searcher) selectChild(idx int32) int32 {
	parent := &s.arena[idx]
	logN := math.Log(float64(parent.visits))
	best, bestScore := parent.children[0], math.Inf(-1)
	for _, ci := range parent.children {
		c := &s.arena[ci]
		if c.visits == 0 {
			return ci
		}
		u := c.winRate() + s.cfg.Exploration*math.Sqrt(logN/float64(c.visits))
		if u > bestScore {
			best, bestScore = ci, u
		}
	}
	return best
}

// rollout plays uniformly random legal moves until MaxDepth plies, a win,
// or no move remains. It reports the largest tile seen, whether the target
// was reached and the final score.
func (s *Searcher) rollout(state *game.GameState, target game.Cell) (game.Cell, bool, uint64) {
	maxTile := state.Grid.MaxTile()
	won := maxTile >= target
	for depth := 0; depth < s.cfg.MaxDepth && !won; depth++ {
		legal := rules.LegalMoves(state.Grid)
		if len(legal) == 0 {
			break
		}
		d := legal[random.IntN(s.rng, len(legal))]
		state = rules.MakeMoveTarget(state, d, s.rng, target)
		if m := state.Grid.MaxTile(); m > maxTile {
			maxTile = m
		}
		won = maxTile >= target
	}
	return maxTile, won, state.Score
}

// Reward maps a rollout outcome to the value added to every node on the
// path.
func Reward(maxTile game.Cell, won bool, target game.Cell) float64 {
	switch {
	case won:
		return WinReward
	case maxTile >= target/2:
		return HalfReward
	case maxTile >= target/4:
		return QuarterReward
	}
	return 0
}

func (s *Searcher) logger() *slog.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return slog.Default()
}
