package convert

import (
	"testing"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/rules"
)

func TestRanks_RoundTrip(t *testing.T) {
	g := game.MustParseGrid("2 . 4 8 | . 16 . . | 1024 . . 2 | . . . 65536")
	b := Ranks(g)
	want := []byte{1, 0, 2, 3, 0, 4, 0, 0, 10, 0, 0, 1, 0, 0, 0, 16}
	if string(b) != string(want) {
		t.Fatalf("Ranks = %v, want %v", b, want)
	}
	back, err := FromRanks(b, 4)
	if err != nil {
		t.Fatalf("FromRanks: %v", err)
	}
	if !back.Equal(g) {
		t.Fatalf("FromRanks = %s, want %s", back, g)
	}
}

func TestFromRanks_Errors(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		size int
	}{
		{"size too small", []byte{0}, 1},
		{"length mismatch", []byte{1, 2, 3}, 2},
		{"rank overflow", []byte{64, 0, 0, 0}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromRanks(tc.b, tc.size); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRotateDirection_FourTurnsIsIdentity(t *testing.T) {
	for _, d := range game.Directions {
		got := d
		for i := 0; i < 4; i++ {
			got = RotateDirection(got)
		}
		if got != d {
			t.Fatalf("four rotations of %v = %v", d, got)
		}
	}
	if RotateDirection(game.None) != game.None {
		t.Fatalf("None must map to None")
	}
}

func TestAugment_MovesCommuteWithSymmetry(t *testing.T) {
	g := game.MustParseGrid("2 2 . 4 | . 8 8 . | 16 . 2 . | . . 4 4")
	for _, dir := range game.Directions {
		base := rules.MoveGrid(g, dir)
		samples := Augment(g, dir)
		if len(samples) != Symmetries {
			t.Fatalf("Augment returned %d samples, want %d", len(samples), Symmetries)
		}
		if !samples[0].Grid.Equal(g) || samples[0].Move != dir {
			t.Fatalf("first sample must be the identity")
		}
		for i, s := range samples {
			got := rules.MoveGrid(s.Grid, s.Move)
			if got.Points != base.Points {
				t.Errorf("%v sample %d: points %d, want %d", dir, i, got.Points, base.Points)
			}
			if got.Changed != base.Changed {
				t.Errorf("%v sample %d: changed %v, want %v", dir, i, got.Changed, base.Changed)
			}
			if got.Grid.MaxTile() != base.Grid.MaxTile() || len(got.Grid.EmptyCells()) != len(base.Grid.EmptyCells()) {
				t.Errorf("%v sample %d: result %s does not match %s", dir, i, got.Grid, base.Grid)
			}
		}
	}
}

func TestAugment_DistinctBoards(t *testing.T) {
	g := game.MustParseGrid("2 4 | 8 16")
	seen := map[string]bool{}
	for _, s := range Augment(g, game.Up) {
		seen[s.Grid.String()] = true
	}
	if len(seen) != Symmetries {
		t.Fatalf("asymmetric board produced %d distinct variants, want %d", len(seen), Symmetries)
	}
}
