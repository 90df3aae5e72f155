// Package heuristic scores boards for the search players.
//
// Evaluate is pure: the weights travel with every call, so two strategies can
// run different weight sets side by side without sharing state.
package heuristic

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arach/2048ish/game"
)

// Weights is the linear combination applied to the board features.
type Weights struct {
	Empty        float64 `json:"empty" yaml:"empty" mapstructure:"empty"`
	Corner       float64 `json:"corner" yaml:"corner" mapstructure:"corner"`
	Smoothness   float64 `json:"smoothness" yaml:"smoothness" mapstructure:"smoothness"`
	Monotonicity float64 `json:"monotonicity" yaml:"monotonicity" mapstructure:"monotonicity"`
	Mergeability float64 `json:"mergeability" yaml:"mergeability" mapstructure:"mergeability"`
	Score        float64 `json:"score" yaml:"score" mapstructure:"score"`
}

func DefaultWeights() Weights {
	return Weights{
		Empty:        2.7,
		Corner:       1.0,
		Smoothness:   0.1,
		Monotonicity: 1.0,
		Mergeability: 0.7,
		Score:        0.0001,
	}
}

// CornerWeights leans on keeping the big tile anchored and rows sorted.
func CornerWeights() Weights {
	w := DefaultWeights()
	w.Corner = 3.0
	w.Monotonicity = 1.5
	return w
}

// SurvivalWeights favours open space over structure.
func SurvivalWeights() Weights {
	w := DefaultWeights()
	w.Empty = 4.0
	w.Mergeability = 1.0
	w.Corner = 0.5
	return w
}

var ErrUnknownPreset = errors.New("unknown weight preset")

var presets = map[string]func() Weights{
	"default":  DefaultWeights,
	"corner":   CornerWeights,
	"survival": SurvivalWeights,
}

// Preset returns the named weight set. The empty name selects the default.
func Preset(name string) (Weights, error) {
	if name == "" {
		return DefaultWeights(), nil
	}
	fn, ok := presets[name]
	if !ok {
		return Weights{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return fn(), nil
}

// PresetNames lists the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Evaluation is the feature vector behind a heuristic score.
type Evaluation struct {
	Score        float64   `json:"score"`
	EmptyCells   int       `json:"empty_cells"`
	MaxTile      game.Cell `json:"max_tile"`
	CornerBonus  float64   `json:"corner_bonus"`
	Smoothness   float64   `json:"smoothness"`
	Mergeability float64   `json:"mergeability"`
	Monotonicity float64   `json:"monotonicity"`
}

// Evaluate computes the features of grid and combines them with w.
// score is the running game score, added with a small weight.
func Evaluate(grid game.Grid, score uint64, w Weights) Evaluation {
	n := grid.Size()
	var e Evaluation

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			v := grid[r][c]
			if v == game.Empty {
				e.EmptyCells++
				continue
			}
			if v > e.MaxTile {
				e.MaxTile = v
			}
			rank := v.Rank()
			mergeable := false
			if c+1 < n {
				if right := grid[r][c+1]; right != game.Empty {
					e.Smoothness -= absInt(rank - right.Rank())
					mergeable = mergeable || right == v
				}
			}
			if r+1 < n {
				if below := grid[r+1][c]; below != game.Empty {
					e.Smoothness -= absInt(rank - below.Rank())
					mergeable = mergeable || below == v
				}
			}
			if c > 0 && grid[r][c-1] == v {
				mergeable = true
			}
			if r > 0 && grid[r-1][c] == v {
				mergeable = true
			}
			if mergeable {
				e.Mergeability += float64(rank)
			}
		}
	}

	if e.MaxTile != game.Empty {
		for _, p := range grid.Corners() {
			if grid[p.Row][p.Col] == e.MaxTile {
				e.CornerBonus = float64(e.MaxTile.Rank())
				break
			}
		}
	}

	e.Monotonicity = monotonicity(grid)

	e.Score = w.Empty*float64(e.EmptyCells) +
		w.Corner*e.CornerBonus +
		w.Smoothness*e.Smoothness +
		w.Monotonicity*e.Monotonicity +
		w.Mergeability*e.Mergeability +
		w.Score*float64(score)
	return e
}

// monotonicity sums, over every row and column, the smaller penalty of the
// two sort orders: a perfectly sorted line scores 0, a zig-zag line scores
// negative. Empty cells count as rank 0.
func monotonicity(grid game.Grid) float64 {
	n := len(grid)
	var total float64
	for k := 0; k < n; k++ {
		var rowInc, rowDec, colInc, colDec float64
		for i := 0; i+1 < n; i++ {
			a, b := grid[k][i].Rank(), grid[k][i+1].Rank()
			if a < b {
				rowInc += float64(b - a)
			} else {
				rowDec += float64(a - b)
			}
			a, b = grid[i][k].Rank(), grid[i+1][k].Rank()
			if a < b {
				colInc += float64(b - a)
			} else {
				colDec += float64(a - b)
			}
		}
		total -= min(rowInc, rowDec)
		total -= min(colInc, colDec)
	}
	return total
}

func absInt(x int) float64 {
	if x < 0 {
		return float64(-x)
	}
	return float64(x)
}
