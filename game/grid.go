package game

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Cell is a tile value: 0 for empty, otherwise a power of two.
// Values are kept as-is rather than as exponents; uint64 holds every tile
// reachable on a supported grid exactly.
type Cell uint64

const Empty Cell = 0

const (
	MinGridSize     = 2
	MaxGridSize     = 8
	DefaultGridSize = 4
)

// Rank returns log2 of the cell value, or 0 for an empty cell.
func (c Cell) Rank() int {
	if c == Empty {
		return 0
	}
	return bits.Len64(uint64(c)) - 1
}

// IsTile reports whether c is a legal non-empty value (2, 4, 8, ...).
func (c Cell) IsTile() bool {
	return c >= 2 && c&(c-1) == 0
}

// Grid is an N×N row-major matrix of cells.
type Grid [][]Cell

// NewGrid returns an empty size×size grid. It panics on sizes outside
// [MinGridSize, MaxGridSize].
func NewGrid(size int) Grid {
	if size < MinGridSize || size > MaxGridSize {
		panic(fmt.Sprintf("game: grid size %d out of range [%d, %d]", size, MinGridSize, MaxGridSize))
	}
	cells := make([]Cell, size*size)
	g := make(Grid, size)
	for r := range g {
		g[r] = cells[r*size : (r+1)*size : (r+1)*size]
	}
	return g
}

// Size returns N. A non-square grid is a programming error and panics.
func (g Grid) Size() int {
	n := len(g)
	for r, row := range g {
		if len(row) != n {
			panic(fmt.Sprintf("game: grid is not square: row %d has %d cells, want %d", r, len(row), n))
		}
	}
	return n
}

// Validate reports why g is not a usable board: wrong size, not square, or
// a cell that is neither empty nor a power of two. Input from outside the
// process should pass through it before reaching Size or the rules.
func (g Grid) Validate() error {
	n := len(g)
	if n < MinGridSize || n > MaxGridSize {
		return fmt.Errorf("grid has %d rows, want between %d and %d", n, MinGridSize, MaxGridSize)
	}
	for r, row := range g {
		if len(row) != n {
			return fmt.Errorf("grid row %d has %d cells, want %d", r, len(row), n)
		}
		for c, v := range row {
			if v != Empty && !v.IsTile() {
				return fmt.Errorf("grid cell (%d,%d) holds %d, not a power of two", r, c, v)
			}
		}
	}
	return nil
}

// Clone performs a deep copy of the grid.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := NewGrid(g.Size())
	for r := range g {
		copy(out[r], g[r])
	}
	return out
}

// With returns a copy of g with the cell at p set to v.
func (g Grid) With(p Position, v Cell) Grid {
	out := g.Clone()
	out[p.Row][p.Col] = v
	return out
}

func (g Grid) Equal(o Grid) bool {
	if len(g) != len(o) {
		return false
	}
	for r := range g {
		if len(g[r]) != len(o[r]) {
			return false
		}
		for c := range g[r] {
			if g[r][c] != o[r][c] {
				return false
			}
		}
	}
	return true
}

// Rotate returns g rotated 90° clockwise.
func (g Grid) Rotate() Grid {
	n := g.Size()
	out := NewGrid(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out[c][n-1-r] = g[r][c]
		}
	}
	return out
}

// EmptyCells lists the empty positions in row-major order.
func (g Grid) EmptyCells() []Position {
	var empty []Position
	for r, row := range g {
		for c, v := range row {
			if v == Empty {
				empty = append(empty, Position{Row: r, Col: c})
			}
		}
	}
	return empty
}

func (g Grid) MaxTile() Cell {
	var best Cell
	for _, row := range g {
		for _, v := range row {
			if v > best {
				best = v
			}
		}
	}
	return best
}

// Corners returns the four corner positions, clockwise from top-left.
func (g Grid) Corners() [4]Position {
	n := g.Size() - 1
	return [4]Position{{Row: 0, Col: 0}, {Row: 0, Col: n}, {Row: n, Col: n}, {Row: n, Col: 0}}
}

// String renders the grid literal form accepted by ParseGrid:
// rows separated by '|', cells by spaces, '.' for empty.
func (g Grid) String() string {
	var sb strings.Builder
	for r, row := range g {
		if r > 0 {
			sb.WriteString(" | ")
		}
		for c, v := range row {
			if c > 0 {
				sb.WriteByte(' ')
			}
			if v == Empty {
				sb.WriteByte('.')
			} else {
				sb.WriteString(strconv.FormatUint(uint64(v), 10))
			}
		}
	}
	return sb.String()
}

// Pretty renders the grid as right-aligned columns, one row per line.
func (g Grid) Pretty() string {
	width := 1
	for _, row := range g {
		for _, v := range row {
			if l := len(strconv.FormatUint(uint64(v), 10)); l > width {
				width = l
			}
		}
	}
	var sb strings.Builder
	for _, row := range g {
		for _, v := range row {
			s := "."
			if v != Empty {
				s = strconv.FormatUint(uint64(v), 10)
			}
			sb.WriteString(strings.Repeat(" ", width+1-len(s)))
			sb.WriteString(s)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseGrid parses the literal form produced by String. Rows may also be
// separated by newlines or '/', and "0" or "_" count as empty.
func ParseGrid(s string) (Grid, error) {
	s = strings.NewReplacer("/", "|", "\n", "|", ",", " ").Replace(s)
	var rows [][]Cell
	for _, line := range strings.Split(s, "|") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		row := make([]Cell, len(fields))
		for i, f := range fields {
			switch f {
			case ".", "_", "0":
				continue
			}
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse grid: cell %q: %w", f, err)
			}
			if !Cell(v).IsTile() {
				return nil, fmt.Errorf("parse grid: cell %d is not a power of two", v)
			}
			row[i] = Cell(v)
		}
		rows = append(rows, row)
	}
	n := len(rows)
	if n < MinGridSize || n > MaxGridSize {
		return nil, fmt.Errorf("parse grid: %d rows, want between %d and %d", n, MinGridSize, MaxGridSize)
	}
	g := NewGrid(n)
	for r, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("parse grid: row %d has %d cells, want %d", r, len(row), n)
		}
		copy(g[r], row)
	}
	return g, nil
}

// MustParseGrid is ParseGrid for literals known to be valid.
func MustParseGrid(s string) Grid {
	g, err := ParseGrid(s)
	if err != nil {
		panic(err)
	}
	return g
}
