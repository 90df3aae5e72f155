package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/arach/2048ish/executor/selfplay"
	"github.com/arach/2048ish/game"
)

const recentGames = 10

type GameUpdate struct {
	WorkerID int
	Result   selfplay.GameResult
	Rows     int
}

type model struct {
	strategy    string
	gamesPlayed int
	wins        int
	rows        int
	bestScore   uint64
	bestTile    game.Cell
	tileCounts  map[game.Cell]int
	moves       int64
	startTime   time.Time
	recentGames []string
	updates     <-chan GameUpdate
}

func initialModel(updates <-chan GameUpdate, strategy string) model {
	return model{
		strategy:   strategy,
		startTime:  time.Now(),
		tileCounts: make(map[game.Cell]int),
		updates:    updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates <-chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return u
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		return m, tickCmd()
	case GameUpdate:
		r := msg.Result
		m.gamesPlayed++
		m.rows += msg.Rows
		if r.Won {
			m.wins++
		}
		if r.Score > m.bestScore {
			m.bestScore = r.Score
		}
		if r.MaxTile > m.bestTile {
			m.bestTile = r.MaxTile
		}
		m.tileCounts[r.MaxTile]++
		line := fmt.Sprintf("Worker %d: %s score %d, max %d, %d moves", msg.WorkerID, r.GameID, r.Score, r.MaxTile, r.Moves)
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > recentGames {
			m.recentGames = m.recentGames[:recentGames]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec := float64(m.gamesPlayed) / duration.Seconds()
	movesPerSec := float64(m.moves) / duration.Seconds()
	if duration.Seconds() < 1 {
		gamesPerSec = 0
		movesPerSec = 0
	}
	winRate := 0.0
	if m.gamesPlayed > 0 {
		winRate = float64(m.wins) / float64(m.gamesPlayed)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Strategy:       %s\n", m.strategy)
	fmt.Fprintf(&sb, "Games Played:   %d\n", m.gamesPlayed)
	fmt.Fprintf(&sb, "Rows Recorded:  %d\n", m.rows)
	fmt.Fprintf(&sb, "Total Moves:    %d\n", m.moves)
	fmt.Fprintf(&sb, "Duration:       %s\n", duration.Round(time.Second))
	fmt.Fprintf(&sb, "Games/Sec:      %.2f\n", gamesPerSec)
	fmt.Fprintf(&sb, "Moves/Sec:      %.2f\n", movesPerSec)
	fmt.Fprintf(&sb, "Win Rate:       %.1f%%\n", winRate*100)
	fmt.Fprintf(&sb, "Best Score:     %d\n", m.bestScore)
	fmt.Fprintf(&sb, "Best Tile:      %d\n\n", m.bestTile)

	if len(m.tileCounts) > 0 {
		sb.WriteString("Max Tile Reached:\n")
		for v := m.bestTile; v >= 2; v /= 2 {
			if n := m.tileCounts[v]; n > 0 {
				fmt.Fprintf(&sb, "  %6d  %d\n", v, n)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Recent Games:\n")
	for _, g := range m.recentGames {
		sb.WriteString(g + "\n")
	}

	sb.WriteString("\nPress q to quit.\n")
	return sb.String()
}
