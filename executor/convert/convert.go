// Package convert turns boards into the flat encodings used for training
// data and generates their symmetric variants.
package convert

import (
	"fmt"

	"github.com/arach/2048ish/game"
)

// Symmetries is the size of the dihedral group of the square: four
// rotations, each optionally mirrored.
const Symmetries = 8

// Ranks encodes g row-major as one byte per cell holding log2 of the tile,
// 0 for empty.
func Ranks(g game.Grid) []byte {
	n := g.Size()
	out := make([]byte, 0, n*n)
	for _, row := range g {
		for _, v := range row {
			out = append(out, byte(v.Rank()))
		}
	}
	return out
}

// FromRanks is the inverse of Ranks.
func FromRanks(b []byte, size int) (game.Grid, error) {
	if size < game.MinGridSize || size > game.MaxGridSize {
		return nil, fmt.Errorf("convert: bad size %d", size)
	}
	if len(b) != size*size {
		return nil, fmt.Errorf("convert: %d ranks for size %d", len(b), size)
	}
	g := game.NewGrid(size)
	for i, r := range b {
		if r == 0 {
			continue
		}
		if r > 63 {
			return nil, fmt.Errorf("convert: rank %d out of range", r)
		}
		g[i/size][i%size] = game.Cell(1) << r
	}
	return g, nil
}

// RotateDirection maps a move on a board to the same move on the board
// rotated 90° clockwise by Grid.Rotate.
func RotateDirection(d game.Direction) game.Direction {
	switch d {
	case game.Up:
		return game.Right
	case game.Right:
		return game.Down
	case game.Down:
		return game.Left
	case game.Left:
		return game.Up
	}
	return d
}

// Mirror flips g left to right.
func Mirror(g game.Grid) game.Grid {
	n := g.Size()
	out := game.NewGrid(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out[r][n-1-c] = g[r][c]
		}
	}
	return out
}

func MirrorDirection(d game.Direction) game.Direction {
	switch d {
	case game.Left:
		return game.Right
	case game.Right:
		return game.Left
	}
	return d
}

// Sample is one board with the move played on it.
type Sample struct {
	Grid game.Grid
	Move game.Direction
}

// Augment returns the Symmetries variants of (g, move), identity first.
// Sliding rules commute with every symmetry, so each variant is a position
// where the mapped move has the same effect.
func Augment(g game.Grid, move game.Direction) []Sample {
	out := make([]Sample, 0, Symmetries)
	cur, dir := g.Clone(), move
	for i := 0; i < 4; i++ {
		out = append(out, Sample{Grid: cur, Move: dir})
		out = append(out, Sample{Grid: Mirror(cur), Move: MirrorDirection(dir)})
		cur, dir = cur.Rotate(), RotateDirection(dir)
	}
	return out
}
