package expectimax

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/arach/2048ish/heuristic"
)

// MaxReasons bounds the explanation list.
const MaxReasons = 4

type reason struct {
	text   string
	weight float64
}

// Reasons ranks what a move changes about the board. It only looks at the
// evaluation before the move and the outcome right after it, so it is cheap
// and independent of the search itself.
func Reasons(before heuristic.Evaluation, o Outcome, w heuristic.Weights) []string {
	after := o.After
	var rs []reason

	if o.Merges > 0 {
		noun := "merge"
		if o.Merges > 1 {
			noun = "merges"
		}
		// Merges lead the list.
		rs = append(rs, reason{
			text:   fmt.Sprintf("%d %s worth %d points", o.Merges, noun, o.Points),
			weight: math.Inf(1),
		})
	}

	switch {
	case before.CornerBonus > 0 && after.CornerBonus > 0:
		rs = append(rs, reason{
			text:   fmt.Sprintf("keeps the %d tile in a corner", after.MaxTile),
			weight: w.Corner,
		})
	case before.CornerBonus == 0 && after.CornerBonus > 0:
		rs = append(rs, reason{
			text:   fmt.Sprintf("moves the %d tile into a corner", after.MaxTile),
			weight: w.Corner * after.CornerBonus,
		})
	case before.CornerBonus > 0 && after.CornerBonus == 0:
		rs = append(rs, reason{
			text:   fmt.Sprintf("pulls the %d tile out of its corner", before.MaxTile),
			weight: w.Corner * before.CornerBonus,
		})
	}

	if d := after.EmptyCells - before.EmptyCells; d != 0 {
		rs = append(rs, reason{
			text:   fmt.Sprintf("%+d empty cells", d),
			weight: math.Abs(w.Empty * float64(d)),
		})
	}
	if d := after.Monotonicity - before.Monotonicity; d != 0 {
		rs = append(rs, reason{
			text:   deltaText("monotonicity", d),
			weight: math.Abs(w.Monotonicity * d),
		})
	}
	if d := after.Smoothness - before.Smoothness; d != 0 {
		rs = append(rs, reason{
			text:   deltaText("smoothness", d),
			weight: math.Abs(w.Smoothness * d),
		})
	}

	sort.SliceStable(rs, func(i, j int) bool { return rs[i].weight > rs[j].weight })
	if len(rs) > MaxReasons {
		rs = rs[:MaxReasons]
	}
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.text
	}
	return out
}

func deltaText(feature string, d float64) string {
	verb := "improves"
	if d < 0 {
		verb = "worsens"
	}
	return fmt.Sprintf("%s %s by %.1f", verb, feature, math.Abs(d))
}

// Explain renders a one-line explanation of the chosen move.
func (r Result) Explain() string {
	if !r.Best.Valid() {
		return "no legal moves"
	}
	if len(r.Reasons) == 0 {
		return fmt.Sprintf("%s: best value %.2f", r.Best, r.Value)
	}
	return fmt.Sprintf("%s: %s", r.Best, strings.Join(r.Reasons, ", "))
}
