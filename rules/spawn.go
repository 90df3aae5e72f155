package rules

import (
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/random"
)

// SpawnTwoProbability is the chance a spawned tile is a 2 rather than a 4.
const SpawnTwoProbability = 0.9

// SpawnValue draws the value of a new tile from rng.
func SpawnValue(rng random.Generator) game.Cell {
	if rng.Float64() < SpawnTwoProbability {
		return 2
	}
	return 4
}

// AddRandomTile places a 2 (90%) or 4 (10%) on a uniformly chosen empty cell.
// The cell is drawn before the value, one Float64 each, so a seeded rng
// replays the same sequence. A full grid is returned unchanged with a nil
// position.
func AddRandomTile(grid game.Grid, rng random.Generator) (game.Grid, *game.Position) {
	empty := grid.EmptyCells()
	if len(empty) == 0 {
		return grid, nil
	}
	p := empty[random.IntN(rng, len(empty))]
	return grid.With(p, SpawnValue(rng)), &p
}

// NewGame returns a fresh size×size game with two spawned tiles.
func NewGame(size int, rng random.Generator) *game.GameState {
	g := game.NewGrid(size)
	g, _ = AddRandomTile(g, rng)
	g, _ = AddRandomTile(g, rng)
	return &game.GameState{Grid: g}
}
