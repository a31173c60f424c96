package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/law-makers/cartelera/internal/engine"
	"github.com/law-makers/cartelera/pkg/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// outcomeRows turns outcomes into table rows: index, title, status, detail.
// Success detail is the record file name; failure detail is the error code
// when there is one, else the reason.
func outcomeRows(outcomes []models.Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for i, o := range outcomes {
		title := o.Item.Title
		if o.Record != nil && title == "" {
			title = o.Record.Title
		}
		if title == "" {
			title = o.Item.URL
		}
		status, detail := "ok", filepath.Base(o.RecordPath)
		if !o.Succeeded() {
			status = "failed"
			detail = o.Reason
			if code := engine.CodeOf(o.Err); code != "" {
				detail = string(code)
			}
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), title, status, detail})
	}
	return rows
}

// countOutcomes returns how many outcomes succeeded and failed
func countOutcomes(outcomes []models.Outcome) (ok, failed int) {
	for _, o := range outcomes {
		if o.Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

func summaryTable(outcomes []models.Outcome) string {
	return renderTable(
		[]string{"#", "Title", "Status", "Detail"},
		outcomeRows(outcomes),
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
}

func summaryLine(outcomes []models.Outcome) string {
	ok, failed := countOutcomes(outcomes)
	return fmt.Sprintf("%d items: %d succeeded, %d failed", len(outcomes), ok, failed)
}
