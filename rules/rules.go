package rules

import (
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/random"
)

// DefaultWinTarget is the tile value that wins a standard game.
const DefaultWinTarget game.Cell = 2048

// LineMove is a tile displacement within a single line. Indices are offsets
// in slide order: index 0 is the edge tiles slide toward.
type LineMove struct {
	From   int
	To     int
	Value  game.Cell
	Merged bool
}

// SlideLine compacts line toward index 0 and merges equal neighbours.
//
// A tile produced by a merge never merges again in the same call, so
// [2 2 2 2] becomes [4 4 . .] rather than [8 . . .]. Points are the sum of
// the merged results. Tiles that stay in place and don't merge produce no
// LineMove; both tiles of a merge are reported with Merged set.
func SlideLine(line []game.Cell) ([]game.Cell, uint64, []LineMove) {
	out := make([]game.Cell, len(line))
	var (
		points   uint64
		moves    []LineMove
		w        int
		open     = -1 // out index still allowed to absorb a merge
		openMove = -1
	)
	for i, v := range line {
		if v == game.Empty {
			continue
		}
		if open >= 0 && out[open] == v {
			out[open] = v * 2
			points += uint64(v * 2)
			moves[openMove].Merged = true
			moves = append(moves, LineMove{From: i, To: open, Value: v, Merged: true})
			open, openMove = -1, -1
			continue
		}
		out[w] = v
		moves = append(moves, LineMove{From: i, To: w, Value: v})
		open, openMove = w, len(moves)-1
		w++
	}

	// Drop tiles that neither moved nor merged.
	kept := moves[:0]
	for _, m := range moves {
		if m.From != m.To || m.Merged {
			kept = append(kept, m)
		}
	}
	return out, points, kept
}

// MoveResult is the outcome of sliding a whole grid.
type MoveResult struct {
	Grid    game.Grid
	Points  uint64
	Moves   []game.Move
	Changed bool
}

// linePositions returns the cells of line k in slide order for dir.
func linePositions(n, k int, dir game.Direction) []game.Position {
	ps := make([]game.Position, n)
	for i := 0; i < n; i++ {
		switch dir {
		case game.Left:
			ps[i] = game.Position{Row: k, Col: i}
		case game.Right:
			ps[i] = game.Position{Row: k, Col: n - 1 - i}
		case game.Up:
			ps[i] = game.Position{Row: i, Col: k}
		case game.Down:
			ps[i] = game.Position{Row: n - 1 - i, Col: k}
		}
	}
	return ps
}

// MoveGrid slides every row (Left/Right) or column (Up/Down) of grid.
// Changed, not len(Moves), is the authoritative legality signal.
// The input grid is never modified.
func MoveGrid(grid game.Grid, dir game.Direction) MoveResult {
	if !dir.Valid() {
		panic("rules: MoveGrid called with invalid direction " + dir.String())
	}
	n := grid.Size()
	next := game.NewGrid(n)
	res := MoveResult{Grid: next}

	line := make([]game.Cell, n)
	for k := 0; k < n; k++ {
		ps := linePositions(n, k, dir)
		for i, p := range ps {
			line[i] = grid[p.Row][p.Col]
		}
		slid, pts, lm := SlideLine(line)
		for i, p := range ps {
			next[p.Row][p.Col] = slid[i]
		}
		res.Points += pts
		for _, m := range lm {
			res.Moves = append(res.Moves, game.Move{
				From:   ps[m.From],
				To:     ps[m.To],
				Value:  m.Value,
				Merged: m.Merged,
			})
		}
	}
	res.Changed = !next.Equal(grid)
	return res
}

// CanMove reports whether any direction changes the grid: some cell is empty
// or two orthogonal neighbours are equal.
func CanMove(grid game.Grid) bool {
	n := grid.Size()
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			v := grid[r][c]
			if v == game.Empty {
				return true
			}
			if c+1 < n && grid[r][c+1] == v {
				return true
			}
			if r+1 < n && grid[r+1][c] == v {
				return true
			}
		}
	}
	return false
}

// LegalMoves returns the directions that change the grid, in Directions order.
func LegalMoves(grid game.Grid) []game.Direction {
	moves := make([]game.Direction, 0, 4)
	for _, d := range game.Directions {
		if MoveGrid(grid, d).Changed {
			moves = append(moves, d)
		}
	}
	return moves
}

// CheckWin reports whether any cell equals target.
func CheckWin(grid game.Grid, target game.Cell) bool {
	for _, row := range grid {
		for _, v := range row {
			if v == target {
				return true
			}
		}
	}
	return false
}

// MakeMove applies dir, spawns a tile and recomputes the win and game-over
// flags against DefaultWinTarget.
func MakeMove(state *game.GameState, dir game.Direction, rng random.Generator) *game.GameState {
	return MakeMoveTarget(state, dir, rng, DefaultWinTarget)
}

// MakeMoveTarget is MakeMove with an explicit win target.
//
// When dir does not change the grid the same pointer is returned, so callers
// detect a no-op with next == state. HasWon is sticky across the sequence.
func MakeMoveTarget(state *game.GameState, dir game.Direction, rng random.Generator, target game.Cell) *game.GameState {
	res := MoveGrid(state.Grid, dir)
	if !res.Changed {
		return state
	}
	grid, _ := AddRandomTile(res.Grid, rng)
	return &game.GameState{
		Grid:       grid,
		Score:      state.Score + res.Points,
		HasWon:     state.HasWon || CheckWin(grid, target),
		IsGameOver: !CanMove(grid),
	}
}

// ApplyMoves plays dirs in order and returns the final state together with
// the points earned. No-op directions are skipped without spawning.
func ApplyMoves(state *game.GameState, dirs []game.Direction, rng random.Generator) (*game.GameState, uint64) {
	var points uint64
	for _, d := range dirs {
		next := MakeMove(state, d, rng)
		if next == state {
			continue
		}
		points += next.Score - state.Score
		state = next
	}
	return state, points
}

// IsTerminal reports whether no direction changes the state's grid.
func IsTerminal(state *game.GameState) bool {
	return state == nil || !CanMove(state.Grid)
}
