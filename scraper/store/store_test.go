package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arach/2048ish/game"
)

func sampleRows(gameID string, n int) []TurnRow {
	rows := make([]TurnRow, 0, n)
	for i := 0; i < n; i++ {
		st := &game.GameState{
			Grid:  game.MustParseGrid("2 . . 4 | . 8 . . | . . 16 . | 2048 . . 2"),
			Score: uint64(100 * i),
		}
		r := NewTurnRow(gameID, i, st)
		r.Move = int32(game.Directions[i%4])
		r.Strategy = "expectimax"
		r.SearchJSON, _ = json.Marshal(map[string]int{"turn": i})
		rows = append(rows, r)
	}
	return rows
}

func TestTurnRow_StateRoundTrip(t *testing.T) {
	st := &game.GameState{
		Grid:   game.MustParseGrid("2 . | 4 2048"),
		Score:  20,
		HasWon: true,
	}
	r := NewTurnRow("g1", 3, st)
	if r.Size != 2 || len(r.Cells) != 4 || r.MaxTile != 2048 || r.Move != -1 {
		t.Fatalf("row=%+v", r)
	}
	back, err := r.State()
	if err != nil {
		t.Fatal(err)
	}
	if !back.Grid.Equal(st.Grid) || back.Score != 20 || !back.HasWon {
		t.Fatalf("state=%+v", back)
	}

	r.Cells[1] = 3
	if _, err := r.State(); err == nil {
		t.Fatal("expected error for non power of two")
	}
	r.Cells = r.Cells[:3]
	if _, err := r.State(); err == nil {
		t.Fatal("expected error for short cells")
	}
}

func TestWriteGameParquet_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games", "g1.parquet")
	rows := sampleRows("g1", 5)
	if err := WriteGameParquet(path, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind: %v", err)
	}
	got, err := ReadTurnRows(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("rows=%d want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i].GameID != "g1" || got[i].Turn != int32(i) || got[i].Move != rows[i].Move || got[i].Score != rows[i].Score {
			t.Fatalf("row %d=%+v", i, got[i])
		}
		if string(got[i].SearchJSON) != string(rows[i].SearchJSON) {
			t.Fatalf("row %d search json=%s", i, got[i].SearchJSON)
		}
	}
}

func TestWriteBatchParquetAtomic(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteBatchParquetAtomic(dir, sampleRows("g2", 3))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path=%s not in %s", path, dir)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "tmp"))
	if len(entries) != 0 {
		t.Fatalf("tmp not empty: %v", entries)
	}
	got, err := ReadTurnRows(path)
	if err != nil || len(got) != 3 {
		t.Fatalf("rows=%d err=%v", len(got), err)
	}
}

func TestBatchWriter(t *testing.T) {
	dir := t.TempDir()
	bw, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := bw.WriteGame(sampleRows("a", 2)); err != nil {
		t.Fatal(err)
	}
	if err := bw.WriteGame(sampleRows("b", 3)); err != nil {
		t.Fatal(err)
	}
	if err := bw.WriteGame(nil); err != nil {
		t.Fatal(err)
	}
	out, rows, games, err := bw.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if rows != 5 || games != 2 || out == "" {
		t.Fatalf("out=%q rows=%d games=%d", out, rows, games)
	}
	got, err := ReadTurnRows(out)
	if err != nil || len(got) != 5 {
		t.Fatalf("read %d rows err=%v", len(got), err)
	}
	if err := bw.WriteGame(sampleRows("c", 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after finalize: %v", err)
	}
}

func TestBatchWriter_EmptyBatchRemoved(t *testing.T) {
	dir := t.TempDir()
	bw, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	out, _, _, err := bw.Finalize()
	if err != nil || out != "" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "tmp"))
	if len(entries) != 0 {
		t.Fatalf("tmp not cleaned: %v", entries)
	}
}

func TestGameLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "games.jsonl")
	l, err := OpenGameLog(path)
	if err != nil {
		t.Fatal(err)
	}
	recs := []GameRecord{
		{GameID: "a", Strategy: "corner", Score: 100},
		{GameID: "b", Strategy: "mcts", Score: 2000, Won: true},
		{GameID: "a", Strategy: "corner", Score: 999},
	}
	if err := l.AddMany(recs); err != nil {
		t.Fatal(err)
	}
	if l.Count() != 2 {
		t.Fatalf("count=%d", l.Count())
	}
	if err := l.Add(GameRecord{}); err == nil {
		t.Fatal("expected error for empty ID")
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(GameRecord{GameID: "c"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("add after close: %v", err)
	}

	// Garbage lines are skipped on reopen.
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()

	l2, err := OpenGameLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if !l2.Has("a") || !l2.Has("b") || l2.Count() != 2 {
		t.Fatalf("reloaded count=%d", l2.Count())
	}
	if rec, _ := l2.Get("a"); rec.Score != 100 {
		t.Fatalf("first write should win: %+v", rec)
	}
}
