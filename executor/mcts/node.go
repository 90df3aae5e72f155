package mcts

import (
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/rules"
)

// node is one state in the search tree. Nodes live in the Searcher's arena
// and refer to each other by index; the root is always index 0.
type node struct {
	state    *game.GameState
	move     game.Direction
	parent   int32
	children []int32
	untried  []game.Direction

	visits int
	wins   float64
	score  float64

	terminal bool
	won      bool
}

func (n *node) winRate() float64 {
	if n.visits == 0 {
		return 0
	}
	return n.wins / float64(n.visits)
}

// newNode appends a node to the arena and returns its index.
func (s *Searcher) newNode(state *game.GameState, move game.Direction, parent int32, target game.Cell) int32 {
	won := rules.CheckWin(state.Grid, target)
	var untried []game.Direction
	if !won {
		untried = rules.LegalMoves(state.Grid)
	}
	s.arena = append(s.arena, node{
		state:    state,
		move:     move,
		parent:   parent,
		untried:  untried,
		terminal: won || len(untried) == 0,
		won:      won,
	})
	idx := int32(len(s.arena) - 1)
	if parent >= 0 {
		s.arena[parent].children = append(s.arena[parent].children, idx)
	}
	return idx
}
