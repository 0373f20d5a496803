package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/forPelevin/automv/internal/ledger"
	"github.com/forPelevin/automv/internal/types"
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
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
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
			Number:           i + 1,
			Align:            align,
			AlignHeader:      text.AlignLeft,
			WidthMax:         60,
			WidthMaxEnforcer: text.WrapSoft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func renderBatchResults(results []types.JobResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status, detail := "ok", filepath.Base(r.OutputPath)
		if !r.OK() {
			status = "failed (" + string(types.StageOf(r.Err)) + ")"
			detail = errorText(r.Err)
		}
		rows = append(rows, []string{
			filepath.Base(r.VideoPath),
			filepath.Base(r.AudioPath),
			status,
			fmt.Sprintf("%d/%d", r.Segments, r.SegmentsPlanned),
			formatSeconds(r.Finished.Sub(r.Started).Seconds()),
			detail,
		})
	}
	return renderTable(
		[]string{"Video", "Audio", "Status", "Segments", "Took", "Output / Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func renderHistory(entries []ledger.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		took := "-"
		if e.FinishedAt != nil {
			took = formatSeconds(e.FinishedAt.Sub(e.StartedAt).Seconds())
		}
		status := e.Status
		if e.FailedStage != "" {
			status += " (" + e.FailedStage + ")"
		}
		rows = append(rows, []string{
			e.ID,
			e.StartedAt.Local().Format(time.DateTime),
			status,
			filepath.Base(e.VideoPath),
			fmt.Sprintf("%d/%d", e.Segments, e.SegmentsPlanned),
			took,
			e.Error,
		})
	}
	return renderTable(
		[]string{"Job", "Started", "Status", "Video", "Segments", "Took", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func formatSeconds(s float64) string {
	if s <= 0 {
		return "-"
	}
	return (time.Duration(s * float64(time.Second))).Round(100 * time.Millisecond).String()
}

// errorText drops the "job <id>: <stage>: " prefix a JobError carries, since
// the table already shows both.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var je *types.JobError
	if errors.As(err, &je) {
		return je.Err.Error()
	}
	return err.Error()
}
