package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/heritagescan/heritage/internal/domain"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Renders level and achievement progress as: [████████░░░░░░░░░░░░] 42%

const barWidth = 20 // Characters for the progress bar

// bar renders pct (0-100) as a fixed-width bar.
func bar(pct float64) string {
	pct = max(0, min(100, pct))
	filled := int(pct / 100 * barWidth)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

// printLevel prints a user's level line with its band progress.
func printLevel(w io.Writer, lp domain.LevelProgress) {
	fmt.Fprintf(w, "Level %d  %s %3.0f%%  (%d / %d pts to level %d)\n",
		lp.Level, bar(lp.Progress), lp.Progress, lp.Points-lp.Current, lp.Next-lp.Current, lp.Level+1)
}

// printUnlocks lists achievements unlocked by a single action.
func printUnlocks(w io.Writer, list []domain.Achievement) {
	for _, a := range list {
		fmt.Fprintf(w, "  %s Unlocked %q (%s, +%d pts)\n", a.Icon, a.Title, a.Rarity, a.Points)
	}
}
