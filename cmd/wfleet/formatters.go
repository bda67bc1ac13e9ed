package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pevans/wfleet/discovery"
	"github.com/pevans/wfleet/runs"
)

// Number of tokens listed before the rest is summarized
const maxListedTokens = 10

// printSummary prints the result of a scrape run
func printSummary(w io.Writer, s *discovery.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Run summary")

	if s.RunID != uuid.Nil {
		t.AppendRow(table.Row{"Run ID", s.RunID.String()})
	}
	t.AppendRow(table.Row{"Source", s.Source})
	if s.DryRun {
		t.AppendRow(table.Row{"Mode", "dry run"})
	}
	if s.RequestLimit > 0 {
		t.AppendRow(table.Row{"Request limit", s.RequestLimit})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Queries", fmt.Sprintf("%d of %d", s.TokensIssued, s.TokensGenerated)})
	t.AppendRow(table.Row{"Succeeded", s.Succeeded})
	t.AppendRow(table.Row{"Empty", s.Empty})
	t.AppendRow(table.Row{"Too broad", s.TooBroad})
	t.AppendRow(table.Row{"Failed", s.Failed})
	if s.Degraded > 0 {
		t.AppendRow(table.Row{"HTTP errors (as empty)", s.Degraded})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Unique records", s.Records})
	t.AppendRow(table.Row{"Duplicates", s.Duplicates})
	t.AppendRow(table.Row{"Elapsed", formatDuration(s.Duration)})
	t.AppendRow(table.Row{"Output", s.Output})

	if len(s.TooBroadTokens) > 0 {
		t.AppendRow(table.Row{"Too broad tokens", listTokens(s.TooBroadTokens)})
	}
	if len(s.FailedTokens) > 0 {
		t.AppendRow(table.Row{"Failed tokens", listTokens(s.FailedTokens)})
	}
	if len(s.DegradedTokens) > 0 {
		t.AppendRow(table.Row{"HTTP error tokens", listTokens(s.DegradedTokens)})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()

	if !s.DryRun && !s.Complete() {
		fmt.Fprintln(w, "Warning: some queries returned no usable result, the output may be incomplete.")
	}
}

// printRunsTable prints recorded runs, one per row
func printRunsTable(w io.Writer, list []runs.Run) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run ID", "Source", "Started", "Status", "Queries", "Failed", "Too broad", "Records"})

	for _, r := range list {
		t.AppendRow(table.Row{
			r.RunID.String(),
			r.Source,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runStatus(&r),
			r.TokensIssued,
			r.Failed,
			r.TooBroad,
			r.Records,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// printRunDetails prints every recorded field of a run
func printRunDetails(w io.Writer, r *runs.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	t.AppendRow(table.Row{"Run ID", r.RunID.String()})
	t.AppendRow(table.Row{"Source", r.Source})
	t.AppendRow(table.Row{"Dry run", r.DryRun})
	t.AppendRow(table.Row{"Request limit", r.RequestLimit})
	t.AppendRow(table.Row{"Started", r.StartedAt.Local().Format(time.RFC3339)})
	if r.FinishedAt != nil {
		t.AppendRow(table.Row{"Finished", r.FinishedAt.Local().Format(time.RFC3339)})
		t.AppendRow(table.Row{"Took", formatDuration(r.FinishedAt.Sub(r.StartedAt))})
	}
	t.AppendRow(table.Row{"Status", runStatus(r)})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Queries", r.TokensIssued})
	t.AppendRow(table.Row{"Succeeded", r.Succeeded})
	t.AppendRow(table.Row{"Empty", r.Empty})
	t.AppendRow(table.Row{"Too broad", r.TooBroad})
	t.AppendRow(table.Row{"Failed", r.Failed})
	t.AppendRow(table.Row{"HTTP errors (as empty)", r.Degraded})
	t.AppendRow(table.Row{"Records", r.Records})
	t.AppendRow(table.Row{"Duplicates", r.Duplicates})
	if r.Output != nil {
		t.AppendRow(table.Row{"Output", *r.Output})
	}
	if r.LastError != nil {
		t.AppendRow(table.Row{"Error", wrapText(*r.LastError, 60)})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// printJSON prints v as indented JSON
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func runStatus(r *runs.Run) string {
	switch {
	case !r.IsFinished():
		return "running"
	case r.LastError != nil:
		return "error"
	case r.Failed > 0 || r.TooBroad > 0 || r.Degraded > 0:
		return "partial"
	default:
		return "ok"
	}
}

// listTokens joins tokens, summarizing the tail of long lists
func listTokens(tokens []string) string {
	if len(tokens) <= maxListedTokens {
		return strings.Join(tokens, " ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(tokens[:maxListedTokens], " "), len(tokens)-maxListedTokens)
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

// wrapText wraps text to a maximum line width
func wrapText(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}
