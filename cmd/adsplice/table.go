package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableColumn describes one rendered column. Numeric marks columns
// holding IDs or counts so their values right-align.
type tableColumn struct {
	Title   string
	Numeric bool
}

func queueStatusTable(rows [][]string) string {
	return renderTable([]tableColumn{
		{Title: "Status"},
		{Title: "Count", Numeric: true},
	}, rows)
}

func queueListTable(rows [][]string) string {
	return renderTable([]tableColumn{
		{Title: "ID", Numeric: true},
		{Title: "Title"},
		{Title: "Status"},
		{Title: "Progress"},
		{Title: "Created"},
	}, rows)
}

func renderTable(columns []tableColumn, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.Title
		align := text.AlignLeft
		if col.Numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i := range columns {
			cells[i] = ""
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		tw.AppendRow(cells)
	}

	return tw.Render()
}
