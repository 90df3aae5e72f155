package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/arach/2048ish/executor/expectimax"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/random"
	"github.com/arach/2048ish/rules"
)

func testConfig(kind Kind) Config {
	cfg := DefaultConfig(kind)
	cfg.Expectimax.MaxDepth = 2
	cfg.MCTS.MaxIterations = 30
	cfg.MCTS.MaxDepth = 5
	cfg.Seed = 42
	return cfg
}

func mustNew(t *testing.T, kind Kind) Strategy {
	t.Helper()
	s, err := New(testConfig(kind))
	if err != nil {
		t.Fatalf("New(%s): %v", kind, err)
	}
	return s
}

// positions plays a seeded random game and returns every state along the
// way, ending with a terminal one.
func positions(t *testing.T, seed uint64) []*game.GameState {
	t.Helper()
	rng := random.NewSeeded(seed)
	s := rules.NewGame(4, rng)
	out := []*game.GameState{s}
	for !rules.IsTerminal(s) {
		legal := rules.LegalMoves(s.Grid)
		s = rules.MakeMove(s, legal[random.IntN(rng, len(legal))], rng)
		out = append(out, s)
	}
	return out
}

func TestStrategies_ContractOnPlayedPositions(t *testing.T) {
	states := positions(t, 5)
	// Sample to keep the search strategies fast; always include the
	// terminal position.
	var sample []*game.GameState
	for i := 0; i < len(states); i += 9 {
		sample = append(sample, states[i])
	}
	sample = append(sample, states[len(states)-1])

	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			s := mustNew(t, kind)
			if s.Name() != string(kind) {
				t.Fatalf("name=%q", s.Name())
			}
			for _, st := range sample {
				d := s.NextMove(context.Background(), st)
				can := rules.CanMove(st.Grid)
				if (d == game.None) == can {
					t.Fatalf("move=%s canMove=%v:\n%s", d, can, st.Grid.Pretty())
				}
				if d != game.None && !rules.MoveGrid(st.Grid, d).Changed {
					t.Fatalf("illegal move %s:\n%s", d, st.Grid.Pretty())
				}
				if d == game.None && s.ExplainMove(d, st) != "no legal moves" {
					t.Fatalf("explain=%q", s.ExplainMove(d, st))
				}
			}
		})
	}
}

func TestEvaluateAllMoves_MatchesLegalMoves(t *testing.T) {
	st := &game.GameState{Grid: game.MustParseGrid("2 2 . . | 4 . . . | 4 . . . | . . . .")}
	for _, kind := range Kinds {
		ev := mustNew(t, kind).EvaluateAllMoves(st)
		legal := rules.LegalMoves(st.Grid)
		if len(ev.ValidMoves) != len(legal) || len(ev.Evaluations) != len(legal) {
			t.Fatalf("%s: valid=%v evaluations=%d legal=%v", kind, ev.ValidMoves, len(ev.Evaluations), legal)
		}
		for i, d := range legal {
			if ev.ValidMoves[i] != d {
				t.Fatalf("%s: valid=%v legal=%v", kind, ev.ValidMoves, legal)
			}
			if ev.Evaluations[d].Direction != d {
				t.Fatalf("%s: summary for %s has direction %s", kind, d, ev.Evaluations[d].Direction)
			}
		}
	}
}

func TestEvaluateAllMoves_JSONKeys(t *testing.T) {
	st := &game.GameState{Grid: game.MustParseGrid("2 . | . .")}
	b, err := json.Marshal(mustNew(t, Greedy).EvaluateAllMoves(st))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"down":{`) || !strings.Contains(string(b), `"valid_moves":["down","right"]`) {
		t.Fatalf("json=%s", b)
	}
}

func TestReflexChoices(t *testing.T) {
	cases := []struct {
		kind Kind
		grid string
		want game.Direction
	}{
		{Corner, "2 . | . .", game.Down},
		{Greedy, "2 2 . . | 4 . . . | 4 . . . | . . . .", game.Up},
		{Greedy, "2 . . 2 | . . . . | . . . . | . . . .", game.Left},
		{Snake, "2 . | . .", game.Down},
		{Snake, ". . . | . . . | . 8 2", game.Left},
	}
	for _, tc := range cases {
		st := &game.GameState{Grid: game.MustParseGrid(tc.grid)}
		legal := rules.LegalMoves(st.Grid)
		if len(legal) == 0 {
			t.Fatalf("%s %q: test grid has no moves", tc.kind, tc.grid)
		}
		got := mustNew(t, tc.kind).NextMove(context.Background(), st)
		if got != tc.want {
			t.Errorf("%s %q: got %s want %s", tc.kind, tc.grid, got, tc.want)
		}
	}
}

func TestCorner_PrefersAnchoringOverPriority(t *testing.T) {
	// Down is legal but leaves the corner empty; Left slides the 8 into it.
	st := &game.GameState{Grid: game.MustParseGrid(". . 2 | . . . | . 8 .")}
	s := mustNew(t, Corner)
	if got := s.NextMove(context.Background(), st); got != game.Left {
		t.Fatalf("got %s want left", got)
	}
	if !strings.Contains(s.ExplainMove(game.Left, st), "keeps the 8 tile") {
		t.Fatalf("explain=%q", s.ExplainMove(game.Left, st))
	}
	if strings.Contains(s.ExplainMove(game.Down, st), "keeps") {
		t.Fatalf("explain=%q", s.ExplainMove(game.Down, st))
	}
}

func TestRandom_SeededDeterminism(t *testing.T) {
	st := &game.GameState{Grid: game.MustParseGrid("2 . . | . 4 . | . . 2")}
	a, _ := New(testConfig(Random))
	b, _ := New(testConfig(Random))
	for i := 0; i < 20; i++ {
		if da, db := a.NextMove(context.Background(), st), b.NextMove(context.Background(), st); da != db {
			t.Fatalf("draw %d: %s vs %s", i, da, db)
		}
	}
}

func TestExpectimax_ExplainAndReport(t *testing.T) {
	st := &game.GameState{Grid: game.MustParseGrid("8 8 | 2 4")}
	s := mustNew(t, Expectimax)
	d := s.NextMove(context.Background(), st)
	if d != game.Left && d != game.Right {
		t.Fatalf("got %s", d)
	}
	if text := s.ExplainMove(d, st); !strings.Contains(text, "1 merge worth 16 points") {
		t.Fatalf("explain=%q", text)
	}
	rep, ok := s.(Reporter)
	if !ok {
		t.Fatal("expectimax strategy should report its last search")
	}
	res, ok := rep.LastSearch().(expectimax.Result)
	if !ok || res.Best != d {
		t.Fatalf("last search=%+v", rep.LastSearch())
	}
}

func TestExpectimax_ReusedSearchTracksScore(t *testing.T) {
	low := &game.GameState{Grid: game.MustParseGrid("8 8 | 2 4")}
	high := &game.GameState{Grid: low.Grid.Clone(), Score: 500000}

	s := mustNew(t, Expectimax)
	s.NextMove(context.Background(), low)
	before := s.EvaluateAllMoves(low)
	after := s.EvaluateAllMoves(high)
	want := mustNew(t, Expectimax).EvaluateAllMoves(high)

	for _, d := range want.ValidMoves {
		if after.Evaluations[d].Score != want.Evaluations[d].Score {
			t.Fatalf("%s: score %v after score change, want %v", d, after.Evaluations[d].Score, want.Evaluations[d].Score)
		}
		if after.Evaluations[d].Score == before.Evaluations[d].Score {
			t.Fatalf("%s: value %v did not move with the game score", d, after.Evaluations[d].Score)
		}
	}
}

func TestMCTS_ExplainMentionsWinRate(t *testing.T) {
	st := &game.GameState{Grid: game.MustParseGrid("2 2 . . | . . . . | . . . . | . . . .")}
	s := mustNew(t, MCTS)
	d := s.NextMove(context.Background(), st)
	if text := s.ExplainMove(d, st); !strings.Contains(text, "win rate") {
		t.Fatalf("explain=%q", text)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "minimax"}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("err=%v", err)
	}
	if _, err := ParseKind("Snake"); err != nil {
		t.Fatalf("ParseKind: %v", err)
	}
	if _, err := ParseKind("zigzag"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("err=%v", err)
	}
}

func TestSnakeWeights_Serpentine(t *testing.T) {
	w := snakeWeights(3)
	// Bottom row left to right, middle row right to left, top row left to
	// right; each step halves the weight.
	order := []game.Position{
		{Row: 2, Col: 0}, {Row: 2, Col: 1}, {Row: 2, Col: 2},
		{Row: 1, Col: 2}, {Row: 1, Col: 1}, {Row: 1, Col: 0},
		{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2},
	}
	for i := 1; i < len(order); i++ {
		prev, cur := order[i-1], order[i]
		if w[prev.Row][prev.Col] != 2*w[cur.Row][cur.Col] {
			t.Fatalf("step %d: %v -> %v weights %v", i, prev, cur, w)
		}
	}
}
