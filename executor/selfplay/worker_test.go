package selfplay

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/strategy"
)

func checkRows(t *testing.T, out PlayGameOutcome) {
	t.Helper()
	rows := out.Rows
	if len(rows) == 0 {
		t.Fatal("no rows")
	}
	for i, r := range rows {
		if int(r.Turn) != i {
			t.Fatalf("row %d has turn %d", i, r.Turn)
		}
		if r.GameID != out.Result.GameID {
			t.Fatalf("row %d game id %q want %q", i, r.GameID, out.Result.GameID)
		}
		if i == len(rows)-1 {
			break
		}
		if !game.Direction(r.Move).Valid() {
			t.Fatalf("row %d move %d", i, r.Move)
		}
		if got, want := r.Score+r.Points, rows[i+1].Score; got != want {
			t.Fatalf("row %d: score %d + points %d != next score %d", i, r.Score, r.Points, want)
		}
	}
	if last := rows[len(rows)-1]; last.Move != int32(game.None) {
		t.Fatalf("terminal row move=%d", last.Move)
	}
}

func TestPlayGame_CompletesAndRecords(t *testing.T) {
	cfg := GameConfig{
		Size:     4,
		Seed:     42,
		Strategy: strategy.DefaultConfig(strategy.Greedy),
	}
	steps := 0
	out, err := PlayGame(context.Background(), 0, cfg, func() { steps++ })
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !out.Completed {
		t.Fatal("game not completed")
	}
	checkRows(t, out)

	res := out.Result
	if res.GameID != "greedy_42_w0" || res.Seed != 42 || res.Strategy != "greedy" {
		t.Fatalf("result=%+v", res)
	}
	if !res.Over || res.Moves != steps || len(out.Rows) != steps+1 {
		t.Fatalf("over=%v moves=%d steps=%d rows=%d", res.Over, res.Moves, steps, len(out.Rows))
	}
	last, err := out.Rows[len(out.Rows)-1].State()
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsGameOver || last.Score != res.Score || last.Grid.MaxTile() != res.MaxTile {
		t.Fatalf("terminal state %+v vs result %+v", last, res)
	}
}

func TestPlayGame_SeededDeterminism(t *testing.T) {
	play := func() PlayGameOutcome {
		out, err := PlayGame(context.Background(), 3, GameConfig{
			Seed:     7,
			Strategy: strategy.DefaultConfig(strategy.Random),
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	a, b := play(), play()
	if len(a.Rows) != len(b.Rows) {
		t.Fatalf("rows %d vs %d", len(a.Rows), len(b.Rows))
	}
	for i := range a.Rows {
		if !reflect.DeepEqual(a.Rows[i].Cells, b.Rows[i].Cells) || a.Rows[i].Move != b.Rows[i].Move {
			t.Fatalf("turn %d differs", i)
		}
	}
}

func TestPlayGame_SearchDiagnosticsAndMaxMoves(t *testing.T) {
	sc := strategy.DefaultConfig(strategy.Expectimax)
	sc.Expectimax.MaxDepth = 1
	out, err := PlayGame(context.Background(), 1, GameConfig{
		Seed:     5,
		MaxMoves: 4,
		Explain:  true,
		Strategy: sc,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Completed || len(out.Rows) != 5 {
		t.Fatalf("completed=%v rows=%d", out.Completed, len(out.Rows))
	}
	checkRows(t, out)
	for _, r := range out.Rows[:4] {
		if r.Explanation == "" {
			t.Fatalf("turn %d has no explanation", r.Turn)
		}
		var diag struct {
			Best     game.Direction `json:"best"`
			Outcomes []struct {
				Legal bool `json:"legal"`
			} `json:"outcomes"`
		}
		if err := json.Unmarshal(r.SearchJSON, &diag); err != nil {
			t.Fatalf("turn %d search json: %v", r.Turn, err)
		}
		if int32(diag.Best) != r.Move || len(diag.Outcomes) != 4 {
			t.Fatalf("turn %d diag best=%s move=%d", r.Turn, diag.Best, r.Move)
		}
	}
}

func TestPlayGame_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := PlayGame(ctx, 0, GameConfig{Seed: 1, Strategy: strategy.DefaultConfig(strategy.Corner)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Completed || len(out.Rows) != 0 {
		t.Fatalf("completed=%v rows=%d", out.Completed, len(out.Rows))
	}
}

func TestPlayGame_StopRequested(t *testing.T) {
	steps := 0
	out, err := PlayGame(context.Background(), 0, GameConfig{
		Seed:          9,
		Strategy:      strategy.DefaultConfig(strategy.Snake),
		StopRequested: func() bool { return steps >= 3 },
	}, func() { steps++ })
	if err != nil {
		t.Fatal(err)
	}
	if out.Completed || len(out.Rows) != 3 || out.Result.Moves != 3 {
		t.Fatalf("completed=%v rows=%d moves=%d", out.Completed, len(out.Rows), out.Result.Moves)
	}
}

func TestPlayGame_StartState(t *testing.T) {
	start := &game.GameState{Grid: game.MustParseGrid("2 2 | 4 8"), Score: 100}
	var trace bytes.Buffer
	out, err := PlayGame(context.Background(), 0, GameConfig{
		Seed:     11,
		Start:    start,
		Strategy: strategy.DefaultConfig(strategy.Greedy),
		Trace:    &trace,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	first, err := out.Rows[0].State()
	if err != nil {
		t.Fatal(err)
	}
	if !first.Grid.Equal(start.Grid) || first.Score != 100 {
		t.Fatalf("first row %s score=%d", first.Grid, first.Score)
	}
	if out.Rows[0].Move != int32(game.Left) {
		t.Fatalf("greedy should merge left first, got %s", game.Direction(out.Rows[0].Move))
	}
	if !strings.Contains(trace.String(), "=== Turn 0 score=100 max=8") {
		t.Fatalf("trace:\n%s", trace.String())
	}
	if start.Grid[0][0] != 2 {
		t.Fatal("start state was mutated")
	}
}

func TestPlayGame_UnknownStrategy(t *testing.T) {
	_, err := PlayGame(context.Background(), 0, GameConfig{Strategy: strategy.Config{Kind: "minimax"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPlayDebugGame(t *testing.T) {
	var progress int
	dbg, played, err := PlayDebugGame(context.Background(), GameConfig{
		Size:     3,
		Seed:     21,
		Strategy: strategy.DefaultConfig(strategy.Corner),
	}, func(DebugTurnData) { progress++ })
	if err != nil {
		t.Fatal(err)
	}
	if len(dbg.Turns) != len(played.Rows)-1 || progress != len(dbg.Turns) {
		t.Fatalf("turns=%d rows=%d progress=%d", len(dbg.Turns), len(played.Rows), progress)
	}
	for _, td := range dbg.Turns {
		if _, ok := td.Evaluations.Evaluations[td.Move]; !ok {
			t.Fatalf("turn %d: chosen move %s not evaluated", td.Turn, td.Move)
		}
	}
	if dbg.Final == nil || !dbg.Final.IsGameOver {
		t.Fatalf("final=%+v", dbg.Final)
	}

	path := filepath.Join(t.TempDir(), "debug", "game.json")
	if err := dbg.WriteJSON(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back DebugGameResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.GameID != dbg.GameID || len(back.Turns) != len(dbg.Turns) || back.Turns[0].Move != dbg.Turns[0].Move {
		t.Fatalf("round trip mismatch: %s %d", back.GameID, len(back.Turns))
	}
}

func TestPrintEvaluations(t *testing.T) {
	s, err := strategy.New(strategy.DefaultConfig(strategy.Greedy))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	PrintEvaluations(&buf, s.EvaluateAllMoves(&game.GameState{Grid: game.MustParseGrid("8 8 | 2 4")}))
	out := buf.String()
	if !strings.Contains(out, "left") || !strings.Contains(out, "right") || strings.Contains(out, "up ") {
		t.Fatalf("output:\n%s", out)
	}

	buf.Reset()
	PrintEvaluations(&buf, s.EvaluateAllMoves(&game.GameState{Grid: game.MustParseGrid("2 4 | 4 2")}))
	if !strings.Contains(buf.String(), "no legal moves") {
		t.Fatalf("output: %s", buf.String())
	}
}
