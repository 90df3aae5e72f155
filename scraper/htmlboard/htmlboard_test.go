package htmlboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arach/2048ish/game"
)

const snapshot = `<!DOCTYPE html>
<html><body>
<div class="heading">
  <div class="scores-container">
    <div class="score-container">1284<div class="score-addition">+16</div></div>
    <div class="best-container">9000</div>
  </div>
</div>
<div class="game-container">
  <div class="game-message"><p></p></div>
  <div class="grid-container">
    <div class="grid-row"><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div></div>
    <div class="grid-row"><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div></div>
    <div class="grid-row"><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div></div>
    <div class="grid-row"><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div><div class="grid-cell"></div></div>
  </div>
  <div class="tile-container">
    <div class="tile tile-2 tile-position-1-1"><div class="tile-inner">2</div></div>
    <div class="tile tile-8 tile-position-4-1"><div class="tile-inner">8</div></div>
    <div class="tile tile-8 tile-position-1-4"><div class="tile-inner">8</div></div>
    <div class="tile tile-8 tile-position-1-4"><div class="tile-inner">8</div></div>
    <div class="tile tile-16 tile-position-1-4 tile-merged"><div class="tile-inner">16</div></div>
    <div class="tile tile-128 tile-position-2-3 tile-new"><div class="tile-inner">128</div></div>
  </div>
</div>
</body></html>`

func TestParse_Snapshot(t *testing.T) {
	st, err := ParseString(snapshot)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := game.MustParseGrid("2 . . 8 | . . . . | . 128 . . | 16 . . .")
	if !st.Grid.Equal(want) {
		t.Fatalf("grid\n%swant\n%s", st.Grid.Pretty(), want.Pretty())
	}
	if st.Score != 1284 {
		t.Fatalf("score=%d want 1284", st.Score)
	}
	if st.IsGameOver || st.HasWon {
		t.Fatalf("flags over=%v won=%v", st.IsGameOver, st.HasWon)
	}
}

func TestParse_GameOverOverlay(t *testing.T) {
	html := `<div class="game-message game-over"></div>
<div class="tile-container"><div class="tile tile-2 tile-position-1-1"><div class="tile-inner">2</div></div></div>`
	st, err := ParseString(html)
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsGameOver || st.Grid.Size() != game.DefaultGridSize {
		t.Fatalf("over=%v size=%d", st.IsGameOver, st.Grid.Size())
	}
}

func TestParse_ValueFromClassWhenTextMissing(t *testing.T) {
	html := `<div class="tile-container"><div class="tile tile-64 tile-position-3-2"></div></div>`
	st, err := ParseString(html)
	if err != nil {
		t.Fatal(err)
	}
	if st.Grid[1][2] != 64 {
		t.Fatalf("grid=%s", st.Grid)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := ParseString(`<html><body><p>hello</p></body></html>`); !errors.Is(err, ErrNoBoard) {
		t.Fatalf("err=%v want ErrNoBoard", err)
	}
	cases := map[string]string{
		"no position":  `<div class="tile-container"><div class="tile tile-2"></div></div>`,
		"out of range": `<div class="tile-container"><div class="tile tile-2 tile-position-5-1"></div></div>`,
		"bad value":    `<div class="tile-container"><div class="tile tile-position-1-1"><div class="tile-inner">3</div></div></div>`,
		"text":         `<div class="tile-container"><div class="tile tile-position-1-1"><div class="tile-inner">x</div></div></div>`,
	}
	for name, html := range cases {
		if _, err := ParseString(html); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/game" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, snapshot)
	}))
	defer srv.Close()

	f := NewFetcher()
	st, err := f.Fetch(context.Background(), srv.URL+"/game")
	if err != nil {
		t.Fatal(err)
	}
	if st.Grid[2][1] != 128 {
		t.Fatalf("grid=%s", st.Grid)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected status error")
	}
}
