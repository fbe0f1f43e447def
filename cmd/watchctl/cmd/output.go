package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printMonitors(w io.Writer, format string, monitors []*models.Monitor) error {
	if format == "json" {
		return printJSON(w, monitors)
	}
	if len(monitors) == 0 {
		fmt.Fprintln(w, "No monitors found.")
		return nil
	}

	sort.Slice(monitors, func(i, j int) bool { return monitors[i].Name < monitors[j].Name })

	fmt.Fprintf(w, "%-36s  %-28s  %-8s  %-7s  %-8s  %s\n",
		"ID", "NAME", "TYPE", "ENABLED", "SCHEDULE", "TRIGGERS")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	for _, m := range monitors {
		typ := "query"
		if m.MonitorType == models.MonitorTypeBucketLevel {
			typ = "bucket"
		}
		sched := "-"
		if p := m.Schedule.Period; p != nil {
			sched = fmt.Sprintf("%d %s", p.Interval, strings.ToLower(string(p.Unit)))
		}
		fmt.Fprintf(w, "%-36s  %-28s  %-8s  %-7t  %-8s  %d\n",
			m.ID, truncate(m.Name, 28), typ, m.Enabled, sched, len(m.Triggers))
	}
	fmt.Fprintf(w, "\nTotal: %d monitor(s)\n", len(monitors))
	return nil
}

// runSummary is the subset of a run result shown in table output.
type runSummary struct {
	MonitorName  string    `json:"monitor_name"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Error        *string   `json:"error"`
	InputResults struct {
		Error *string `json:"error"`
	} `json:"input_results"`
	TriggerResults map[string]struct {
		Name          string                     `json:"name"`
		Error         *string                    `json:"error"`
		Triggered     bool                       `json:"triggered"`
		ActionResults map[string]json.RawMessage `json:"action_results"`
	} `json:"trigger_results"`
}

func printRunResult(w io.Writer, format string, raw json.RawMessage) error {
	if format == "json" {
		return printJSON(w, raw)
	}
	var run runSummary
	if err := json.Unmarshal(raw, &run); err != nil {
		return fmt.Errorf("decode run result: %w", err)
	}

	fmt.Fprintf(w, "Monitor: %s\n", run.MonitorName)
	fmt.Fprintf(w, "Period:  %s - %s\n",
		run.PeriodStart.Format(time.RFC3339), run.PeriodEnd.Format(time.RFC3339))
	if run.Error != nil {
		fmt.Fprintf(w, "Error:   %s\n", *run.Error)
	}
	if run.InputResults.Error != nil {
		fmt.Fprintf(w, "Input:   %s\n", *run.InputResults.Error)
	}

	ids := make([]string, 0, len(run.TriggerResults))
	for id := range run.TriggerResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "\n%-28s  %-9s  %-7s  %s\n", "TRIGGER", "TRIGGERED", "ACTIONS", "ERROR")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, id := range ids {
		tr := run.TriggerResults[id]
		errText := ""
		if tr.Error != nil {
			errText = firstLine(*tr.Error)
		}
		fmt.Fprintf(w, "%-28s  %-9t  %-7d  %s\n", truncate(tr.Name, 28), tr.Triggered, len(tr.ActionResults), errText)
	}
	return nil
}

func printAlerts(w io.Writer, format string, page *AlertPage) error {
	if format == "json" {
		return printJSON(w, page)
	}
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No alerts found.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-24s  %-20s  %-12s  %-3s  %s\n",
		"ID", "MONITOR", "TRIGGER", "STATE", "SEV", "STARTED")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, a := range page.Items {
		fmt.Fprintf(w, "%-36s  %-24s  %-20s  %-12s  %-3s  %s\n",
			a.ID, truncate(a.MonitorName, 24), truncate(a.TriggerName, 20), a.State, a.Severity,
			a.StartTime.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\nPage %d of %d, %d alert(s)\n", page.Page, page.TotalPages, page.Total)
	return nil
}

func printAcknowledgeResult(w io.Writer, format string, result *alerting.AcknowledgeResult) error {
	if format == "json" {
		return printJSON(w, result)
	}
	for _, a := range result.Acknowledged {
		fmt.Fprintf(w, "acknowledged  %s\n", a.ID)
	}
	for _, f := range result.Failed {
		fmt.Fprintf(w, "failed        %s (%s): %s\n", f.ID, f.State, f.Reason)
	}
	for _, id := range result.Missing {
		fmt.Fprintf(w, "missing       %s\n", id)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
