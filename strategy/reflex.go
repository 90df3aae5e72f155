package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/heuristic"
	"github.com/arach/2048ish/random"
)

// argmax returns the first simulated move with the highest score.
func argmax(moves []simulated, score func(simulated) float64) game.Direction {
	best, bestScore := game.None, math.Inf(-1)
	for _, m := range moves {
		if v := score(m); v > bestScore {
			best, bestScore = m.dir, v
		}
	}
	return best
}

// cornerStrategy keeps the largest tile in the bottom-left corner, trying
// directions in the order down, left, right, up.
type cornerStrategy struct {
	weights heuristic.Weights
}

var cornerPriority = [4]game.Direction{game.Down, game.Left, game.Right, game.Up}

func (s *cornerStrategy) Name() string { return string(Corner) }

func anchored(g game.Grid) bool {
	return g[len(g)-1][0] == g.MaxTile()
}

func (s *cornerStrategy) score(m simulated) float64 {
	v := 0.0
	for i, d := range cornerPriority {
		if d == m.dir {
			v = float64(len(cornerPriority) - i)
		}
	}
	if anchored(m.res.Grid) {
		v += 10
	}
	return v
}

func (s *cornerStrategy) NextMove(_ context.Context, state *game.GameState) game.Direction {
	return argmax(simulateAll(state.Grid), s.score)
}

func (s *cornerStrategy) ExplainMove(dir game.Direction, state *game.GameState) string {
	text, ok := describeMove(dir, state)
	if !ok {
		return text
	}
	for _, m := range simulateAll(state.Grid) {
		if m.dir != dir {
			continue
		}
		if anchored(m.res.Grid) {
			return fmt.Sprintf("%s; keeps the %d tile in the bottom-left corner", text, m.res.Grid.MaxTile())
		}
	}
	return text + "; the largest tile leaves the bottom-left corner"
}

func (s *cornerStrategy) EvaluateAllMoves(state *game.GameState) MoveEvaluations {
	return summarize(state, s.weights, s.score)
}

// greedyStrategy takes the move with the most merges, then the most points,
// then the most empty cells.
type greedyStrategy struct {
	weights heuristic.Weights
}

func (s *greedyStrategy) Name() string { return string(Greedy) }

func (s *greedyStrategy) score(m simulated) float64 {
	return float64(m.merges)*1e9 + float64(m.res.Points)*1e2 + float64(len(m.res.Grid.EmptyCells()))
}

func (s *greedyStrategy) NextMove(_ context.Context, state *game.GameState) game.Direction {
	return argmax(simulateAll(state.Grid), s.score)
}

func (s *greedyStrategy) ExplainMove(dir game.Direction, state *game.GameState) string {
	text, ok := describeMove(dir, state)
	if !ok {
		return text
	}
	return text + "; greedy pick for the most merges"
}

func (s *greedyStrategy) EvaluateAllMoves(state *game.GameState) MoveEvaluations {
	return summarize(state, s.weights, s.score)
}

// snakeStrategy scores boards against a serpentine weight matrix that
// starts in the bottom-left corner, runs right along the bottom row, then
// left along the row above, and so on.
type snakeStrategy struct {
	weights heuristic.Weights
}

func (s *snakeStrategy) Name() string { return string(Snake) }

// snakeWeights returns the weight of each cell for an n×n grid. The first
// cell of the path weighs 2^(n*n-1), halving at each step.
func snakeWeights(n int) [][]float64 {
	w := make([][]float64, n)
	for r := range w {
		w[r] = make([]float64, n)
	}
	k := 0
	for i := 0; i < n; i++ {
		r := n - 1 - i
		for j := 0; j < n; j++ {
			c := j
			if i%2 == 1 {
				c = n - 1 - j
			}
			w[r][c] = math.Ldexp(1, n*n-1-k)
			k++
		}
	}
	return w
}

// SnakeScore is the weighted sum of tile ranks along the snake path.
func SnakeScore(g game.Grid) float64 {
	w := snakeWeights(g.Size())
	total := 0.0
	for r, row := range g {
		for c, v := range row {
			total += float64(v.Rank()) * w[r][c]
		}
	}
	return total
}

func (s *snakeStrategy) score(m simulated) float64 {
	return SnakeScore(m.res.Grid)
}

func (s *snakeStrategy) NextMove(_ context.Context, state *game.GameState) game.Direction {
	return argmax(simulateAll(state.Grid), s.score)
}

func (s *snakeStrategy) ExplainMove(dir game.Direction, state *game.GameState) string {
	text, ok := describeMove(dir, state)
	if !ok {
		return text
	}
	before := SnakeScore(state.Grid)
	for _, m := range simulateAll(state.Grid) {
		if m.dir == dir {
			after := s.score(m)
			verb := "tightens"
			if after < before {
				verb = "loosens"
			}
			return fmt.Sprintf("%s; %s the snake order from the bottom-left corner", text, verb)
		}
	}
	return text
}

func (s *snakeStrategy) EvaluateAllMoves(state *game.GameState) MoveEvaluations {
	return summarize(state, s.weights, s.score)
}

// randomStrategy picks uniformly among legal moves. It is the baseline the
// other strategies are measured against.
type randomStrategy struct {
	weights heuristic.Weights
	rng     random.Generator
}

func (s *randomStrategy) Name() string { return string(Random) }

func (s *randomStrategy) NextMove(_ context.Context, state *game.GameState) game.Direction {
	moves := simulateAll(state.Grid)
	if len(moves) == 0 {
		return game.None
	}
	return moves[random.IntN(s.rng, len(moves))].dir
}

func (s *randomStrategy) ExplainMove(dir game.Direction, state *game.GameState) string {
	text, ok := describeMove(dir, state)
	if !ok {
		return text
	}
	return text + "; chosen at random"
}

func (s *randomStrategy) EvaluateAllMoves(state *game.GameState) MoveEvaluations {
	return summarize(state, s.weights, func(simulated) float64 { return 0 })
}
