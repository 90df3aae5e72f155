package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GameRecord is one finished game in the GameLog.
type GameRecord struct {
	GameID     string    `json:"game_id"`
	Strategy   string    `json:"strategy"`
	Seed       int64     `json:"seed"`
	Turns      int       `json:"turns"`
	Score      uint64    `json:"score"`
	MaxTile    uint64    `json:"max_tile"`
	Won        bool      `json:"won"`
	FinishedAt time.Time `json:"finished_at"`
	// File is the parquet file the game's rows were written to.
	File string `json:"file,omitempty"`
}

// GameLog is an append-only JSON-lines log of finished games, one record
// per line. It is loaded into memory on open so callers can skip games that
// were already written.
//
// Lines that fail to parse are ignored; a crash mid-append leaves at most
// one partial trailing line.
type GameLog struct {
	mu      sync.RWMutex
	file    *os.File
	records map[string]GameRecord
}

func OpenGameLog(path string) (*GameLog, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	records := make(map[string]GameRecord)

	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var rec GameRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || rec.GameID == "" {
				continue
			}
			records[rec.GameID] = rec
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &GameLog{file: file, records: records}, nil
}

func (l *GameLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *GameLog) Has(gameID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[gameID]
	return ok
}

func (l *GameLog) Get(gameID string) (GameRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[gameID]
	return rec, ok
}

func (l *GameLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// AddMany appends the records not already present and syncs once.
func (l *GameLog) AddMany(recs []GameRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}

	added := 0
	for _, rec := range recs {
		if rec.GameID == "" {
			continue
		}
		if _, ok := l.records[rec.GameID]; ok {
			continue
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.GameID, err)
		}
		if _, err := l.file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		l.records[rec.GameID] = rec
		added++
	}

	if added == 0 {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}
	return nil
}

func (l *GameLog) Add(rec GameRecord) error {
	if rec.GameID == "" {
		return fmt.Errorf("game ID is empty")
	}
	return l.AddMany([]GameRecord{rec})
}
