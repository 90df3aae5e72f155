// visualize.go - Console output for debugging self-play games.
package selfplay

import (
	"fmt"
	"io"
	"strings"

	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/strategy"
)

// PrintBoard writes a header line and the right-aligned grid.
func PrintBoard(w io.Writer, turn int, state *game.GameState) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n=== Turn %d score=%d max=%d", turn, state.Score, state.Grid.MaxTile())
	if state.HasWon {
		sb.WriteString(" won")
	}
	if state.IsGameOver {
		sb.WriteString(" over")
	}
	sb.WriteString(" ===\n")
	sb.WriteString(state.Grid.Pretty())
	io.WriteString(w, sb.String())
}

// PrintEvaluations writes one line per legal direction, in direction order.
func PrintEvaluations(w io.Writer, ev strategy.MoveEvaluations) {
	if len(ev.ValidMoves) == 0 {
		fmt.Fprintln(w, "  no legal moves")
		return
	}
	for _, d := range ev.ValidMoves {
		e := ev.Evaluations[d]
		fmt.Fprintf(w, "  %-5s score=%10.3f points=%-5d merges=%d empty=%-2d max=%d\n",
			d, e.Score, e.Points, e.Merges, e.EmptyCells, e.MaxTile)
	}
}
