package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/arach/2048ish/executor/convert"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/scraper/store"
)

// TrainingRow is one (board, move) sample. X holds Ranks of the board,
// Value is the points the game went on to score after this position.
type TrainingRow struct {
	GameID   string `parquet:"game_id,dict"`
	Turn     int32  `parquet:"turn"`
	Symmetry int32  `parquet:"symmetry"`

	X    []byte `parquet:"x"`
	Size int32  `parquet:"size"`

	Policy int32   `parquet:"policy"`
	Points int64   `parquet:"points"`
	Value  float32 `parquet:"value"`

	FinalScore   int64 `parquet:"final_score"`
	FinalMaxTile int64 `parquet:"final_max_tile"`

	Strategy string `parquet:"strategy,dict"`
}

func main() {
	inDir := flag.String("in-dir", "", "Directory containing turn parquet shards")
	outDir := flag.String("out-dir", "", "Output directory for training parquet shards")
	augment := flag.Bool("augment", true, "Emit all 8 board symmetries per sample")
	flag.Parse()

	if *inDir == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "-in-dir and -out-dir are required")
		os.Exit(2)
	}

	absIn, _ := filepath.Abs(*inDir)
	absOut, _ := filepath.Abs(*outDir)
	if absIn == absOut {
		fmt.Fprintln(os.Stderr, "out-dir must be different from in-dir")
		os.Exit(2)
	}

	convertedFiles, err := run(absIn, absOut, *augment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if convertedFiles == 0 {
		fmt.Fprintln(os.Stderr, "no output written (no convertible rows)")
		os.Exit(1)
	}
}

// run converts every shard under inDir and returns how many produced output.
// Failures on individual shards are reported and skipped.
func run(inDir, outDir string, augment bool) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("create out-dir: %w", err)
	}

	// Clean old outputs to avoid unbounded growth.
	_ = filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			_ = os.Remove(path)
		}
		return nil
	})

	inputs := findInputs(inDir)
	if len(inputs) == 0 {
		return 0, errors.New("no parquet inputs found")
	}

	convertedFiles := 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := convertOne(inPath, outPath, augment)
		if err != nil {
			fmt.Fprintf(os.Stderr, "convert %s: %v\n", inPath, err)
			continue
		}
		if n > 0 {
			convertedFiles++
		}
	}
	return convertedFiles, nil
}

func findInputs(inDir string) []string {
	inputs := make([]string, 0, 64)
	_ = filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	return inputs
}

// samplesForGame turns the rows of one game into training rows. The final
// score is taken from the last row, which is the terminal row for games that
// ran to completion.
func samplesForGame(rows []store.TurnRow, augment bool) ([]TrainingRow, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	last := rows[len(rows)-1]
	var out []TrainingRow
	for _, row := range rows {
		move := game.Direction(row.Move)
		if !move.Valid() {
			continue
		}
		st, err := row.State()
		if err != nil {
			return nil, err
		}
		samples := []convert.Sample{{Grid: st.Grid, Move: move}}
		if augment {
			samples = convert.Augment(st.Grid, move)
		}
		for i, s := range samples {
			out = append(out, TrainingRow{
				GameID:       row.GameID,
				Turn:         row.Turn,
				Symmetry:     int32(i),
				X:            convert.Ranks(s.Grid),
				Size:         row.Size,
				Policy:       int32(s.Move),
				Points:       row.Points,
				Value:        float32(last.Score - row.Score),
				FinalScore:   last.Score,
				FinalMaxTile: last.MaxTile,
				Strategy:     row.Strategy,
			})
		}
	}
	return out, nil
}

func convertOne(inPath string, outPath string, augment bool) (int, error) {
	inF, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[store.TurnRow](inF)
	defer reader.Close()

	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	outF, err := os.OpenFile(outTmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}

	writer := parquet.NewGenericWriter[TrainingRow](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	writer.SetKeyValueMetadata("schema", "training_row_v1")

	closed := false
	defer func() {
		if closed {
			return
		}
		_ = writer.Close()
		_ = outF.Close()
		_ = os.Remove(outTmp)
	}()

	rowsWritten := 0
	write := func(rows []TrainingRow) error {
		if len(rows) == 0 {
			return nil
		}
		if _, err := writer.Write(rows); err != nil {
			return err
		}
		rowsWritten += len(rows)
		return nil
	}

	// Rows of a game are stored contiguously, so one game is buffered at a time.
	var pending []store.TurnRow
	flushGame := func() error {
		samples, err := samplesForGame(pending, augment)
		pending = pending[:0]
		if err != nil {
			return err
		}
		return write(samples)
	}

	buf := make([]store.TurnRow, 256)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			row := buf[i]
			// The reader may reuse slice storage between calls.
			row.Cells = append([]int64(nil), row.Cells...)
			row.SearchJSON = nil
			if len(pending) > 0 && pending[0].GameID != row.GameID {
				if err := flushGame(); err != nil {
					return 0, err
				}
			}
			pending = append(pending, row)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
	}
	if err := flushGame(); err != nil {
		return 0, err
	}

	closed = true
	if err := writer.Close(); err != nil {
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := outF.Sync(); err != nil {
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := outF.Close(); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}

	if rowsWritten == 0 {
		_ = os.Remove(outTmp)
		return 0, nil
	}

	if err := os.Rename(outTmp, outPath); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}
	return rowsWritten, nil
}
