package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/progress"
	"github.com/Ning0612/foldersync/internal/state"
)

func validOutput(format string) bool {
	return format == "text" || format == "json" || format == "yaml"
}

type failureView struct {
	Path  string `json:"path" yaml:"path"`
	Op    string `json:"op" yaml:"op"`
	Error string `json:"error" yaml:"error"`
}

func failureViews(failures []*domain.PathError) []failureView {
	views := make([]failureView, 0, len(failures))
	for _, f := range failures {
		views = append(views, failureView{Path: f.Path, Op: f.Op, Error: f.Message()})
	}
	return views
}

type planView struct {
	RunID         string              `json:"run_id" yaml:"run_id"`
	Source        string              `json:"source" yaml:"source"`
	Target        string              `json:"target" yaml:"target"`
	Changes       domain.ChangeStats  `json:"changes" yaml:"changes"`
	Actions       map[string][]string `json:"actions" yaml:"actions"`
	InvalidSource []string            `json:"invalid_source,omitempty" yaml:"invalid_source,omitempty"`
	InvalidTarget []string            `json:"invalid_target,omitempty" yaml:"invalid_target,omitempty"`
	Failures      []failureView       `json:"failures,omitempty" yaml:"failures,omitempty"`
}

type reportView struct {
	RunID          string             `json:"run_id" yaml:"run_id"`
	Source         string             `json:"source" yaml:"source"`
	Target         string             `json:"target" yaml:"target"`
	Executed       bool               `json:"executed" yaml:"executed"`
	Changes        domain.ChangeStats `json:"changes" yaml:"changes"`
	Planned        domain.ActionStats `json:"planned" yaml:"planned"`
	Applied        domain.ActionStats `json:"applied" yaml:"applied"`
	BytesCopied    int64              `json:"bytes_copied" yaml:"bytes_copied"`
	InvalidSource  []string           `json:"invalid_source,omitempty" yaml:"invalid_source,omitempty"`
	InvalidTarget  []string           `json:"invalid_target,omitempty" yaml:"invalid_target,omitempty"`
	InvalidRemoved int                `json:"invalid_removed" yaml:"invalid_removed"`
	Skipped        int                `json:"skipped" yaml:"skipped"`
	Failures       []failureView      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Elapsed        string             `json:"elapsed" yaml:"elapsed"`
}

func (a *app) encode(v any) error {
	switch a.output {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("invalid output format: %q", a.output)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Row = text.Colors{text.Reset}
	return t
}

// renderPlan prints the plan; text output lists at most maxPaths paths per action kind
func (a *app) renderPlan(plan *domain.Plan, maxPaths int) error {
	if a.output != "text" {
		actions := make(map[string][]string)
		for _, kind := range domain.ActionKinds {
			if paths := plan.ActionsOf(kind); len(paths) > 0 {
				actions[kind.String()] = paths
			}
		}
		return a.encode(planView{
			RunID:         plan.RunID,
			Source:        plan.Source,
			Target:        plan.Target,
			Changes:       plan.ChangeStats(),
			Actions:       actions,
			InvalidSource: plan.InvalidSource,
			InvalidTarget: plan.InvalidTarget,
			Failures:      failureViews(plan.Failures),
		})
	}

	writePreview(a.out, plan, maxPaths)
	return nil
}

// writePreview prints the action summary of plan, listing up to maxPaths
// paths per action kind
func writePreview(w io.Writer, plan *domain.Plan, maxPaths int) {
	fmt.Fprintf(w, "Source: %s\nTarget: %s\n", plan.Source, plan.Target)

	if !plan.HasWork() {
		fmt.Fprintln(w, "Target is up to date.")
	} else {
		t := newTable(w)
		t.AppendHeader(table.Row{"Action", "Count", "Paths"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		for _, kind := range domain.ActionKinds {
			paths := plan.ActionsOf(kind)
			if len(paths) == 0 {
				continue
			}
			t.AppendRow(table.Row{kind.String(), len(paths), listPaths(paths, maxPaths)})
		}
		if len(plan.InvalidTarget) > 0 {
			t.AppendRow(table.Row{"remove_invalid", len(plan.InvalidTarget), listPaths(plan.InvalidTarget, maxPaths)})
		}
		t.Render()
	}

	if len(plan.InvalidSource) > 0 {
		fmt.Fprintf(w, "Ignoring %d invalid source entries: %s\n", len(plan.InvalidSource), listPaths(plan.InvalidSource, maxPaths))
	}
	writeFailures(w, plan.Failures)
}

func listPaths(paths []string, maxPaths int) string {
	shown := paths
	if len(shown) > maxPaths {
		shown = shown[:maxPaths]
	}
	lines := append([]string(nil), shown...)
	if rest := len(paths) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more", rest))
	}
	return strings.Join(lines, "\n")
}

func writeFailures(w io.Writer, failures []*domain.PathError) {
	if len(failures) == 0 {
		return
	}
	t := newTable(w)
	t.SetTitle("Failures")
	t.AppendHeader(table.Row{"Operation", "Path", "Error"})
	for _, f := range failures {
		t.AppendRow(table.Row{f.Op, f.Path, f.Message()})
	}
	t.Render()
}

func (a *app) renderReport(report *domain.SyncReport) error {
	if a.output != "text" {
		return a.encode(reportView{
			RunID:          report.RunID,
			Source:         report.Source,
			Target:         report.Target,
			Executed:       report.Executed,
			Changes:        report.Changes,
			Planned:        report.Planned,
			Applied:        report.Applied,
			BytesCopied:    report.BytesCopied,
			InvalidSource:  report.InvalidSource,
			InvalidTarget:  report.InvalidTarget,
			InvalidRemoved: report.InvalidRemoved,
			Skipped:        report.Skipped,
			Failures:       failureViews(report.Failures),
			Elapsed:        report.Elapsed.Round(time.Millisecond).String(),
		})
	}

	w := a.out
	changes := newTable(w)
	changes.SetTitle("Changes")
	changes.AppendHeader(table.Row{"Kind", "Count"})
	changes.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	for _, kind := range domain.ChangeKinds {
		if n := report.Changes[kind]; n > 0 {
			changes.AppendRow(table.Row{kind.String(), n})
		}
	}
	changes.Render()

	actions := newTable(w)
	actions.SetTitle("Actions")
	actions.AppendHeader(table.Row{"Action", "Planned", "Applied"})
	actions.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	for _, kind := range domain.ActionKinds {
		if report.Planned[kind] == 0 && report.Applied[kind] == 0 {
			continue
		}
		actions.AppendRow(table.Row{kind.String(), report.Planned[kind], report.Applied[kind]})
	}
	actions.AppendFooter(table.Row{"total", report.Planned.Total(), report.Applied.Total()})
	actions.Render()

	status := "completed"
	if !report.Executed {
		status = "not executed"
	}
	fmt.Fprintf(w, "Sync %s: %s copied in %s", status, progress.FormatBytes(report.BytesCopied), report.Elapsed.Round(time.Millisecond))
	if report.InvalidRemoved > 0 {
		fmt.Fprintf(w, ", %d invalid entries removed", report.InvalidRemoved)
	}
	if report.Skipped > 0 {
		fmt.Fprintf(w, ", %d actions skipped", report.Skipped)
	}
	fmt.Fprintln(w)

	writeFailures(w, report.Failures)
	return nil
}

// renderHistory lists records. last, when set, is the most recent successful
// run of the filtered target; structured output ignores it.
func (a *app) renderHistory(records []state.ExecutionRecord, last *state.ExecutionRecord) error {
	if a.output != "text" {
		if records == nil {
			records = []state.ExecutionRecord{}
		}
		return a.encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(a.out, "No runs recorded.")
		return nil
	}

	t := newTable(a.out)
	t.AppendHeader(table.Row{"Started", "Status", "Target", "Copied", "Deleted", "Created", "Bytes", "Failures", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			r.Target,
			r.Copied,
			r.Deleted,
			r.Created,
			progress.FormatBytes(r.BytesCopied),
			r.Failures,
			r.EndTime.Sub(r.StartTime).Round(time.Millisecond),
		})
	}
	t.Render()

	if last != nil {
		fmt.Fprintf(a.out, "Last successful run: %s (run %s)\n",
			last.StartTime.Local().Format("2006-01-02 15:04:05"), last.RunID)
	}
	return nil
}
