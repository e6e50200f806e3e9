package stats

import (
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ginjaninja78/claims-consolidator/internal/numeric"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
)

// FormatTable renders the top limit statistics as an aligned pipe table.
// A limit <= 0 renders all of them. Widths are display widths, so accented
// and wide names line up.
func FormatTable(w io.Writer, stats []records.Statistic, limit int) error {
	if limit <= 0 || limit > len(stats) {
		limit = len(stats)
	}

	rows := make([][]string, 0, limit+1)
	rows = append(rows, OutputHeader)
	for _, s := range stats[:limit] {
		rows = append(rows, []string{
			s.DisplayName,
			s.Region,
			numeric.FormatAmount(s.Total),
			numeric.FormatAmount(s.Mean),
			numeric.FormatAmount(s.StdDev),
			strconv.Itoa(s.QuarterCount),
		})
	}

	widths := make([]int, len(OutputHeader))
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	var sb strings.Builder
	for r, row := range rows {
		writeRow(&sb, row, widths)
		if r == 0 {
			sep := make([]string, len(widths))
			for i, cw := range widths {
				sep[i] = strings.Repeat("-", cw)
			}
			writeRow(&sb, sep, widths)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeRow(sb *strings.Builder, row []string, widths []int) {
	sb.WriteString("|")
	for i, cell := range row {
		sb.WriteString(" ")
		sb.WriteString(runewidth.FillRight(cell, widths[i]))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}
