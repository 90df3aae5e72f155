package game

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"
)

// dumpGrid is a test helper to visualize a grid.
func dumpGrid(g Grid) string {
	if g == nil {
		return "<nil grid>\n"
	}
	return g.Pretty()
}

func TestParseGrid_RoundTripsString(t *testing.T) {
	lit := "2 4 . . | . . 8 . | . . . . | 2048 . . 2"
	g, err := ParseGrid(lit)
	if err != nil {
		t.Fatalf("ParseGrid: %v", err)
	}
	if g.Size() != 4 {
		t.Fatalf("size=%d want 4", g.Size())
	}
	if g[3][0] != 2048 || g[0][1] != 4 || g[1][2] != 8 {
		t.Fatalf("unexpected cells:\n%s", dumpGrid(g))
	}
	if got := g.String(); got != lit {
		t.Fatalf("String()=%q want %q", got, lit)
	}
}

func TestParseGrid_AcceptsNewlinesAndZeros(t *testing.T) {
	g, err := ParseGrid("2 0\n_ 4\n")
	if err != nil {
		t.Fatalf("ParseGrid: %v", err)
	}
	want := Grid{{2, 0}, {0, 4}}
	if !g.Equal(want) {
		t.Fatalf("got\n%swant\n%s", dumpGrid(g), dumpGrid(want))
	}
}

func TestParseGrid_Errors(t *testing.T) {
	cases := map[string]string{
		"not square":   "2 . . | . . | . . .",
		"not power":    "3 . | . .",
		"one":          "1 . | . .",
		"garbage":      "x . | . .",
		"too small":    "2",
		"too large":    strings.Repeat(". . . . . . . . . |", 9),
		"empty string": "",
	}
	for name, lit := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseGrid(lit); err == nil {
				t.Fatalf("expected error for %q", lit)
			}
		})
	}
}

func TestNewGrid_PanicsOutOfRange(t *testing.T) {
	for _, n := range []int{0, 1, 9} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("NewGrid(%d) did not panic", n)
				}
			}()
			NewGrid(n)
		}()
	}
}

func TestSize_PanicsOnRaggedGrid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-square grid")
		}
	}()
	Grid{{2, 2}, {2}}.Size()
}

func TestClone_IsDeep(t *testing.T) {
	g := MustParseGrid("2 . | . 4")
	c := g.Clone()
	c[0][0] = 8
	if g[0][0] != 2 {
		t.Fatalf("clone aliases original:\n%s", dumpGrid(g))
	}

	s := &GameState{Grid: g, Score: 12}
	sc := s.Clone()
	sc.Grid[1][1] = 16
	if s.Grid[1][1] != 4 {
		t.Fatal("GameState.Clone aliases grid")
	}
}

func TestRotate_Clockwise(t *testing.T) {
	g := MustParseGrid("2 4 | 8 16")
	got := g.Rotate()
	want := MustParseGrid("8 2 | 16 4")
	if !got.Equal(want) {
		t.Fatalf("rotate got\n%swant\n%s", dumpGrid(got), dumpGrid(want))
	}
	r := g
	for i := 0; i < 4; i++ {
		r = r.Rotate()
	}
	if !r.Equal(g) {
		t.Fatal("four rotations should be identity")
	}
}

func TestRotate_FourTurnsOnRandomGrids(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for n := MinGridSize; n <= MaxGridSize; n++ {
		for trial := 0; trial < 25; trial++ {
			g := NewGrid(n)
			for row := range g {
				for col := range g[row] {
					if rank := r.IntN(18); rank > 0 {
						g[row][col] = Cell(1) << rank
					}
				}
			}
			got := g
			for i := 0; i < 4; i++ {
				got = got.Rotate()
				if got.Size() != n {
					t.Fatalf("n=%d: rotation changed size to %d", n, got.Size())
				}
			}
			if !got.Equal(g) {
				t.Fatalf("n=%d trial %d: four rotations of\n%sgave\n%s", n, trial, dumpGrid(g), dumpGrid(got))
			}
		}
	}
}

func TestEmptyCells_RowMajor(t *testing.T) {
	g := MustParseGrid(". 2 . | 4 . 8 | 2 2 .")
	got := g.EmptyCells()
	want := []Position{{Row: 0, Col: 0}, {Row: 0, Col: 2}, {Row: 1, Col: 1}, {Row: 2, Col: 2}}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestMaxTileAndRank(t *testing.T) {
	g := MustParseGrid("2 . | 512 4")
	if g.MaxTile() != 512 {
		t.Fatalf("max=%d", g.MaxTile())
	}
	if Cell(512).Rank() != 9 || Empty.Rank() != 0 || Cell(2).Rank() != 1 {
		t.Fatal("rank mismatch")
	}
}

func TestDirection_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Direction `json:"a"`
		B Direction `json:"b"`
	}{Left, None})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":"left","b":null}` {
		t.Fatalf("got %s", b)
	}

	var d Direction
	if err := json.Unmarshal([]byte(`"ArrowDown"`), &d); err != nil || d != Down {
		t.Fatalf("unmarshal: d=%v err=%v", d, err)
	}
	if err := json.Unmarshal([]byte(`"sideways"`), &d); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestParseDirection_WASD(t *testing.T) {
	for in, want := range map[string]Direction{"w": Up, "a": Left, "s": Down, "d": Right, " Up ": Up} {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Fatalf("ParseDirection(%q)=%v,%v want %v", in, got, err, want)
		}
	}
}

func TestGrid_Validate(t *testing.T) {
	cases := []struct {
		name string
		grid Grid
		ok   bool
	}{
		{"valid", MustParseGrid("2 . | . 4"), true},
		{"too small", Grid{{2}}, false},
		{"ragged", Grid{{2, 4}, {2}}, false},
		{"not power of two", Grid{{2, 3}, {0, 0}}, false},
		{"one", Grid{{1, 0}, {0, 0}}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		err := tc.grid.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: err=%v want ok=%v", tc.name, err, tc.ok)
		}
	}
}
