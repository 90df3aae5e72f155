package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/arach/2048ish/executor/expectimax"
	"github.com/arach/2048ish/executor/mcts"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/heuristic"
)

type expectimaxStrategy struct {
	search *expectimax.Searcher
	last   *expectimax.Result
	lastOn *game.GameState
}

func (s *expectimaxStrategy) Name() string { return string(Expectimax) }

func (s *expectimaxStrategy) NextMove(ctx context.Context, state *game.GameState) game.Direction {
	res := s.search.Search(ctx, state)
	s.last, s.lastOn = &res, state.Clone()
	return res.Best
}

// sameState reports whether a search on a is valid for b. The score feeds
// the heuristic, so a matching grid alone is not enough.
func sameState(a, b *game.GameState) bool {
	return a.Score == b.Score && a.HasWon == b.HasWon && a.Grid.Equal(b.Grid)
}

// result reuses the last search when it ran on the same state.
func (s *expectimaxStrategy) result(state *game.GameState) expectimax.Result {
	if s.last != nil && sameState(s.lastOn, state) {
		return *s.last
	}
	res := s.search.Search(context.Background(), state)
	s.last, s.lastOn = &res, state.Clone()
	return res
}

func (s *expectimaxStrategy) ExplainMove(dir game.Direction, state *game.GameState) string {
	text, ok := describeMove(dir, state)
	if !ok {
		return text
	}
	res := s.result(state)
	reasons := expectimax.Reasons(res.Before, res.Outcomes[dir], s.search.Config().Weights)
	if len(reasons) == 0 {
		return fmt.Sprintf("%s; search value %.2f", text, res.Outcomes[dir].Value)
	}
	return fmt.Sprintf("%s: %s", dir, strings.Join(reasons, ", "))
}

func (s *expectimaxStrategy) EvaluateAllMoves(state *game.GameState) MoveEvaluations {
	res := s.result(state)
	return summarize(state, s.search.Config().Weights, func(m simulated) float64 {
		return res.Outcomes[m.dir].Value
	})
}

func (s *expectimaxStrategy) LastSearch() any {
	if s.last == nil {
		return nil
	}
	return *s.last
}

type mctsStrategy struct {
	search  *mcts.Searcher
	weights heuristic.Weights
	last    *mcts.Result
	lastOn  *game.GameState
}

func (s *mctsStrategy) Name() string { return string(MCTS) }

func (s *mctsStrategy) NextMove(ctx context.Context, state *game.GameState) game.Direction {
	res := s.search.Search(ctx, state)
	s.last, s.lastOn = &res, state.Clone()
	return res.Best
}

func (s *mctsStrategy) result(state *game.GameState) mcts.Result {
	if s.last != nil && sameState(s.lastOn, state) {
		return *s.last
	}
	res := s.search.Search(context.Background(), state)
	s.last, s.lastOn = &res, state.Clone()
	return res
}

func child(res mcts.Result, dir game.Direction) (mcts.ChildSummary, bool) {
	for _, c := range res.Children {
		if c.Direction == dir {
			return c, true
		}
	}
	return mcts.ChildSummary{}, false
}

func (s *mctsStrategy) ExplainMove(dir game.Direction, state *game.GameState) string {
	text, ok := describeMove(dir, state)
	if !ok {
		return text
	}
	res := s.result(state)
	c, found := child(res, dir)
	if !found {
		return text + "; not explored by the search"
	}
	return fmt.Sprintf("%s; win rate %.2f over %d of %d rollouts, mean score %.0f",
		text, c.WinRate, c.Visits, res.Iterations, c.MeanScore)
}

func (s *mctsStrategy) EvaluateAllMoves(state *game.GameState) MoveEvaluations {
	res := s.result(state)
	return summarize(state, s.weights, func(m simulated) float64 {
		c, _ := child(res, m.dir)
		return c.WinRate
	})
}

func (s *mctsStrategy) LastSearch() any {
	if s.last == nil {
		return nil
	}
	return *s.last
}
