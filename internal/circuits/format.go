package circuits

import (
	"strings"
	"time"

	"onionctl/internal/tunnel"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

// Format renders circuits as an aligned text table for display as a log snapshot.
func Format(circuits []tunnel.CircuitDescriptor, now time.Time) string {
	if len(circuits) == 0 {
		return "No open circuits.\n"
	}

	rows := [][]string{{"ID", "STATUS", "AGE", "PURPOSE", "PATH"}}
	for _, c := range circuits {
		age := "-"
		if !c.CreatedAt.IsZero() {
			age = humanize.RelTime(c.CreatedAt, now, "ago", "from now")
		}
		purpose := c.Purpose
		if purpose == "" {
			purpose = "-"
		}
		rows = append(rows, []string{c.ID, c.Status, age, purpose, c.PathString()})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}
