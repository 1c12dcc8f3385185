package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"backhaul/internal/ipc"
	"backhaul/internal/queue"
)

var statusTitler = cases.Title(language.English)

// tableColumn names a rendered column. Numeric columns are right-aligned so
// counts line up under their header.
type tableColumn struct {
	title   string
	numeric bool
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
		header[i] = col.title
		align := text.AlignLeft
		if col.numeric {
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

// queueStatusColumns and queueListColumns are shared by the queue subcommands
// and the daemon status view.
var (
	queueStatusColumns = []tableColumn{{title: "Status"}, {title: "Count", numeric: true}}
	queueListColumns   = []tableColumn{
		{title: "ID"},
		{title: "Type"},
		{title: "Priority"},
		{title: "Status"},
		{title: "Attempts", numeric: true},
		{title: "Created"},
	}
)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildQueueListRows(ops []ipc.Operation) [][]string {
	if len(ops) == 0 {
		return nil
	}
	sorted := make([]ipc.Operation, len(ops))
	copy(sorted, ops)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseQueueTime(sorted[i].CreatedAt)
		tj := parseQueueTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID < sorted[j].ID
		}
		return ti.Before(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, op := range sorted {
		rows = append(rows, []string{
			shortID(op.ID),
			op.Type,
			formatStatusLabel(op.Priority),
			formatStatusLabel(op.Status),
			fmt.Sprintf("%d/%d", op.Attempts, op.MaxAttempts),
			formatDisplayTime(op.CreatedAt),
		})
	}
	return rows
}

func convertStoredOperation(op queue.Operation) ipc.Operation {
	wire := ipc.Operation{
		ID:          op.ID,
		Type:        op.Type,
		Payload:     string(op.Payload),
		Priority:    op.Priority.String(),
		Status:      string(op.Status),
		Attempts:    op.Attempts,
		MaxAttempts: op.MaxAttempts,
		CreatedAt:   op.CreatedAt.UTC().Format(time.RFC3339),
		Error:       op.Error,
	}
	if op.LastAttempt != nil {
		wire.LastAttempt = op.LastAttempt.UTC().Format(time.RFC3339)
	}
	return wire
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return statusTitler.String(strings.ReplaceAll(status, "_", " "))
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseQueueTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func shortID(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 8 {
		return value[:8]
	}
	return value
}

func formatPayloadSnippet(payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "-"
	}
	if len(payload) > 60 {
		return payload[:57] + "..."
	}
	return payload
}
