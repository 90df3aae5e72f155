// Package htmlboard reads a game board out of the web front end's DOM.
//
// The page marks every tile with classes such as
// "tile tile-8 tile-position-2-3 tile-merged", where the position is
// 1-based column then row. Parse accepts a saved snapshot of that page;
// Fetcher downloads one.
package htmlboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/rules"
)

// ErrNoBoard is returned when the document holds no grid or tiles.
var ErrNoBoard = errors.New("htmlboard: no board found in document")

var (
	positionRe = regexp.MustCompile(`^tile-position-(\d+)-(\d+)$`)
	valueRe    = regexp.MustCompile(`^tile-(\d+)$`)
	digitsRe   = regexp.MustCompile(`\d+`)
)

// Parse reads the board, score and end-of-game overlay from r.
func Parse(r io.Reader) (*game.GameState, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return FromDocument(doc)
}

func ParseString(s string) (*game.GameState, error) {
	return Parse(strings.NewReader(s))
}

// FromDocument extracts the state from an already parsed document.
func FromDocument(doc *goquery.Document) (*game.GameState, error) {
	gridRows := doc.Find(".grid-container .grid-row")
	tiles := doc.Find(".tile-container .tile")
	if gridRows.Length() == 0 && tiles.Length() == 0 {
		return nil, ErrNoBoard
	}

	size := gridRows.Length()
	if size == 0 {
		size = game.DefaultGridSize
	}
	if size < game.MinGridSize || size > game.MaxGridSize {
		return nil, fmt.Errorf("htmlboard: %d grid rows", size)
	}

	grid := game.NewGrid(size)
	var parseErr error
	tiles.EachWithBreak(func(i int, s *goquery.Selection) bool {
		pos, value, err := parseTile(s)
		if err != nil {
			parseErr = fmt.Errorf("tile %d: %w", i, err)
			return false
		}
		if pos.Row >= size || pos.Col >= size {
			parseErr = fmt.Errorf("tile %d: position %d,%d outside %dx%d grid", i, pos.Col+1, pos.Row+1, size, size)
			return false
		}
		// During a merge animation the page holds both source tiles and
		// the merged result at the same position; the largest one is the
		// settled value.
		if value > grid[pos.Row][pos.Col] {
			grid[pos.Row][pos.Col] = value
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	score, err := parseScore(doc.Find(".score-container").First())
	if err != nil {
		return nil, err
	}

	msg := doc.Find(".game-message")
	return &game.GameState{
		Grid:       grid,
		Score:      score,
		IsGameOver: msg.HasClass("game-over") || !rules.CanMove(grid),
		HasWon:     msg.HasClass("game-won") || rules.CheckWin(grid, rules.DefaultWinTarget),
	}, nil
}

func parseTile(s *goquery.Selection) (game.Position, game.Cell, error) {
	class, _ := s.Attr("class")
	var (
		pos      game.Position
		havePos  bool
		fromName game.Cell
	)
	for _, c := range strings.Fields(class) {
		if m := positionRe.FindStringSubmatch(c); m != nil {
			col, _ := strconv.Atoi(m[1])
			row, _ := strconv.Atoi(m[2])
			if col < 1 || row < 1 {
				return pos, 0, fmt.Errorf("bad position class %q", c)
			}
			pos = game.Position{Row: row - 1, Col: col - 1}
			havePos = true
			continue
		}
		if m := valueRe.FindStringSubmatch(c); m != nil {
			v, _ := strconv.ParseUint(m[1], 10, 64)
			fromName = game.Cell(v)
		}
	}
	if !havePos {
		return pos, 0, fmt.Errorf("missing tile-position class in %q", class)
	}

	value := fromName
	if text := strings.TrimSpace(s.Find(".tile-inner").Text()); text != "" {
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return pos, 0, fmt.Errorf("tile text %q: %w", text, err)
		}
		value = game.Cell(v)
	}
	if !value.IsTile() {
		return pos, 0, fmt.Errorf("tile value %d is not a power of two", value)
	}
	return pos, value, nil
}

// parseScore reads the container's own text, skipping the animated "+N"
// child the page adds after each merge.
func parseScore(s *goquery.Selection) (uint64, error) {
	if s.Length() == 0 {
		return 0, nil
	}
	own := s.Clone()
	own.Children().Remove()
	text := digitsRe.FindString(own.Text())
	if text == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("score %q: %w", text, err)
	}
	return v, nil
}

// Fetcher downloads a page and parses its board.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "2048ish-board-reader/1.0",
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (*game.GameState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return Parse(resp.Body)
}
