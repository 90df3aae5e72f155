package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/arach/2048ish/game"
)

const schemaName = "turn_row_v1"

var ErrClosed = errors.New("store: writer is closed")

// TurnRow is a single (game, turn) snapshot for long-term storage.
//
// Cells holds the grid row-major with 0 for empty cells. Move is the
// direction chosen on this turn (0=Up, 1=Down, 2=Left, 3=Right) and -1 on
// the terminal row. Points is what that move scored.
type TurnRow struct {
	GameID string `parquet:"game_id,dict"`
	Turn   int32  `parquet:"turn"`
	Size   int32  `parquet:"size"`

	Cells   []int64 `parquet:"cells"`
	Score   int64   `parquet:"score"`
	MaxTile int64   `parquet:"max_tile"`
	Won     bool    `parquet:"won"`
	Over    bool    `parquet:"over"`

	Move   int32 `parquet:"move"`
	Points int64 `parquet:"points"`

	Strategy    string `parquet:"strategy,dict"`
	Seed        int64  `parquet:"seed"`
	Explanation string `parquet:"explanation,optional"`

	// SearchJSON is the JSON-encoded diagnostics of the search that chose
	// Move, when the strategy reports one.
	SearchJSON []byte `parquet:"search_json,optional,zstd"`
}

// NewTurnRow fills the board columns of a row from state.
func NewTurnRow(gameID string, turn int, state *game.GameState) TurnRow {
	n := state.Grid.Size()
	cells := make([]int64, 0, n*n)
	for _, row := range state.Grid {
		for _, v := range row {
			cells = append(cells, int64(v))
		}
	}
	return TurnRow{
		GameID:  gameID,
		Turn:    int32(turn),
		Size:    int32(n),
		Cells:   cells,
		Score:   int64(state.Score),
		MaxTile: int64(state.Grid.MaxTile()),
		Won:     state.HasWon,
		Over:    state.IsGameOver,
		Move:    int32(game.None),
	}
}

// State rebuilds the game state stored in the row.
func (r TurnRow) State() (*game.GameState, error) {
	n := int(r.Size)
	if n < game.MinGridSize || n > game.MaxGridSize {
		return nil, fmt.Errorf("turn %d of %s: bad size %d", r.Turn, r.GameID, n)
	}
	if len(r.Cells) != n*n {
		return nil, fmt.Errorf("turn %d of %s: %d cells for size %d", r.Turn, r.GameID, len(r.Cells), n)
	}
	g := game.NewGrid(n)
	for i, v := range r.Cells {
		c := game.Cell(v)
		if c != game.Empty && !c.IsTile() {
			return nil, fmt.Errorf("turn %d of %s: cell %d holds %d", r.Turn, r.GameID, i, v)
		}
		g[i/n][i%n] = c
	}
	return &game.GameState{
		Grid:       g,
		Score:      uint64(r.Score),
		HasWon:     r.Won,
		IsGameOver: r.Over,
	}, nil
}

func writeOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("search_json"),
		parquet.KeyValueMetadata("schema", schemaName),
	}
}

// WriteGameParquet writes rows to outPath through a temp file and rename.
func WriteGameParquet(outPath string, rows []TurnRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// WriteBatchParquetAtomic writes a batch file into outDir/tmp and then moves
// it into outDir, so readers globbing outDir never see a partial file.
func WriteBatchParquetAtomic(outDir string, rows []TurnRow) (string, error) {
	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadTurnRows loads every row of a file written by this package.
func ReadTurnRows(path string) ([]TurnRow, error) {
	rows, err := parquet.ReadFile[TurnRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
