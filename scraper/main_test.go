package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/arach/2048ish/config"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/scraper/discovery"
	"github.com/arach/2048ish/scraper/store"
)

func snapshotPage(tiles string, score int) string {
	return fmt.Sprintf(`<div class="score-container">%d</div>
<div class="grid-container"><div class="grid-row"></div><div class="grid-row"></div><div class="grid-row"></div><div class="grid-row"></div></div>
<div class="tile-container">%s</div>`, score, tiles)
}

func newSite() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/s/a.html">a</a> <a href="/s/b.html">b</a> <a href="/s/empty.html">empty</a>`)
	})
	mux.HandleFunc("/s/a.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, snapshotPage(`<div class="tile tile-8 tile-position-1-1"><div class="tile-inner">8</div></div><div class="tile tile-8 tile-position-2-1"><div class="tile-inner">8</div></div>`, 40))
	})
	mux.HandleFunc("/s/b.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, snapshotPage(`<div class="tile tile-2 tile-position-4-4"><div class="tile-inner">2</div></div>`, 0))
	})
	mux.HandleFunc("/s/empty.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>nothing here</p>`)
	})
	return httptest.NewServer(mux)
}

func TestRunOnce_LabelsAndSkipsWritten(t *testing.T) {
	site := newSite()
	defer site.Close()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	written, err := store.OpenGameLog(filepath.Join(dir, "labeled.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer written.Close()

	profile := config.Default()
	profile.Strategy = "greedy"
	disc := discovery.DefaultConfig()
	disc.IndexURLs = []string{site.URL + "/index"}
	disc.RequestDelay = 0
	cfg := scrapeConfig{outDir: filepath.Join(dir, "out"), flushGames: 10, discovery: disc, profile: profile}

	stats, err := runOnce(context.Background(), written, cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	if stats.attempted != 3 || stats.labeled != 2 || stats.failed != 1 || stats.batches != 1 || stats.rows != 2 {
		t.Fatalf("stats=%+v", stats)
	}

	recA, ok := written.Get(site.URL + "/s/a.html")
	if !ok || recA.File == "" || recA.Score != 40 {
		t.Fatalf("record a=%+v ok=%v", recA, ok)
	}
	rows, err := store.ReadTurnRows(recA.File)
	if err != nil {
		t.Fatal(err)
	}
	var rowA *store.TurnRow
	for i := range rows {
		if rows[i].GameID == site.URL+"/s/a.html" {
			rowA = &rows[i]
		}
	}
	if rowA == nil {
		t.Fatalf("row for a missing: %+v", rows)
	}
	if game.Direction(rowA.Move) != game.Left || rowA.Points != 16 || rowA.Strategy != "greedy" || rowA.Explanation == "" {
		t.Fatalf("row a=%+v", *rowA)
	}

	again, err := runOnce(context.Background(), written, cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	if again.skipped != 2 || again.labeled != 0 || again.batches != 0 {
		t.Fatalf("second run stats=%+v", again)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
	if splitList("") != nil {
		t.Fatal("empty input should give nil")
	}
}
