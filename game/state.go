// Package game defines the core value types for the tile-merging puzzle.
//
// These types are the minimal state needed by the rules engine and the
// search players. Grids are treated as immutable values: every transition in
// the rules package returns a fresh grid, and Clone is cheap enough to call
// once per search node.
package game

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Direction is one of the four slide directions.
// None is the "no move available" result returned by strategies.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right

	None Direction = -1
)

// Directions lists every direction in tie-break order.
var Directions = [4]Direction{Up, Down, Left, Right}

var directionNames = [4]string{"up", "down", "left", "right"}

func (d Direction) String() string {
	if d.Valid() {
		return directionNames[d]
	}
	return "none"
}

// Valid reports whether d is one of Up, Down, Left or Right.
func (d Direction) Valid() bool {
	return d >= Up && d <= Right
}

// ParseDirection accepts the lowercase names plus the arrow-key aliases
// used by the web front end ("ArrowUp", "w", ...).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "arrowup", "w":
		return Up, nil
	case "down", "arrowdown", "s":
		return Down, nil
	case "left", "arrowleft", "a":
		return Left, nil
	case "right", "arrowright", "d":
		return Right, nil
	case "", "none", "null":
		return None, nil
	}
	return None, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON encodes None as null so callers see the same "no move" value
// the web layer expects.
func (d Direction) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = None
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Position is a grid coordinate. (0,0) is the top-left cell.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Move is one unit of tile displacement produced by a single slide.
// Value is the value of the tile that moved; Merged is set on both tiles
// that combined into the destination.
type Move struct {
	From   Position `json:"from"`
	To     Position `json:"to"`
	Value  Cell     `json:"value"`
	Merged bool     `json:"merged"`
}

// GameState is a snapshot owned by the session layer. The engine never
// mutates a state it was handed.
type GameState struct {
	Grid       Grid   `json:"grid"`
	Score      uint64 `json:"score"`
	IsGameOver bool   `json:"is_game_over"`
	HasWon     bool   `json:"has_won"`
}

// Clone performs a deep copy of the game state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	return &GameState{
		Grid:       s.Grid.Clone(),
		Score:      s.Score,
		IsGameOver: s.IsGameOver,
		HasWon:     s.HasWon,
	}
}
