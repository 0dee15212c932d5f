package report

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("240")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	evenStyle   = cellStyle.Background(lipgloss.Color("236"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// SummaryTable renders the feature status grid as a terminal table.
func SummaryTable(tl *app.Timeline) string {
	rows := make([][]string, 0, len(tl.Features()))
	for _, s := range tl.Summaries() {
		rows = append(rows, SummaryRow(s))
	}
	return styledTable(summaryHeader, rows)
}

// GridTable renders one feature's developer by iteration hours grid.
func GridTable(grid app.IterationGrid) string {
	return styledTable(gridCells(grid))
}

// styledTable renders banded rows under a highlighted header.
func styledTable(header []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenStyle
			default:
				return cellStyle
			}
		}).
		Headers(header...).
		Rows(rows...)
	return t.String()
}
