package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func TestPrintMonitors(t *testing.T) {
	monitors := []*models.Monitor{
		{ID: "m2", Name: "slow checkout", MonitorType: models.MonitorTypeBucketLevel},
		{ID: "m1", Name: "api errors", MonitorType: models.MonitorTypeQueryLevel, Enabled: true,
			Schedule: models.Schedule{Period: &models.PeriodSchedule{Interval: 1, Unit: "HOURS"}}},
	}

	var buf bytes.Buffer
	if err := printMonitors(&buf, "table", monitors); err != nil {
		t.Fatalf("printMonitors() error = %v", err)
	}
	out := buf.String()
	if strings.Index(out, "api errors") > strings.Index(out, "slow checkout") {
		t.Errorf("monitors not sorted by name:\n%s", out)
	}
	for _, want := range []string{"bucket", "query", "1 hours", "Total: 2 monitor(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := printMonitors(&buf, "table", nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No monitors found.") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestPrintRunResult(t *testing.T) {
	raw := json.RawMessage(`{
		"monitor_name": "checkout errors",
		"period_start": "2024-05-01T08:55:00Z",
		"period_end": "2024-05-01T09:00:00Z",
		"error": null,
		"input_results": {"results": [], "error": null},
		"trigger_results": {
			"t2": {"name": "broken", "error": "Failed evaluating trigger:\nunknown name foo", "triggered": false, "action_results": {}},
			"t1": {"name": "many errors", "error": null, "triggered": true, "action_results": {"a1": {}}}
		}
	}`)

	var buf bytes.Buffer
	if err := printRunResult(&buf, "table", raw); err != nil {
		t.Fatalf("printRunResult() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Monitor: checkout errors", "2024-05-01T08:55:00Z", "many errors", "Failed evaluating trigger:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "unknown name foo") {
		t.Errorf("multi-line error not shortened:\n%s", out)
	}
	if strings.Index(out, "many errors") > strings.Index(out, "broken") {
		t.Errorf("triggers not sorted by id:\n%s", out)
	}

	buf.Reset()
	if err := printRunResult(&buf, "json", raw); err != nil {
		t.Fatal(err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("json output invalid: %s", buf.String())
	}
}

func TestPrintAlerts(t *testing.T) {
	page := &AlertPage{
		Items: []*models.Alert{{
			ID: "a1", MonitorName: "checkout errors", TriggerName: "many errors",
			State: models.AlertStateActive, Severity: "1",
			StartTime: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}},
		Total: 51, Page: 1, PerPage: 50, TotalPages: 2,
	}

	var buf bytes.Buffer
	if err := printAlerts(&buf, "table", page); err != nil {
		t.Fatalf("printAlerts() error = %v", err)
	}
	for _, want := range []string{"a1", "ACTIVE", "2024-05-01 09:00", "Page 1 of 2, 51 alert(s)"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestPrintAcknowledgeResult(t *testing.T) {
	result := &alerting.AcknowledgeResult{
		Acknowledged: []*models.Alert{{ID: "a1"}},
		Failed:       []alerting.AcknowledgeFailure{{ID: "a2", State: models.AlertStateCompleted, Reason: "alert is not active"}},
		Missing:      []string{"a3"},
	}

	var buf bytes.Buffer
	if err := printAcknowledgeResult(&buf, "table", result); err != nil {
		t.Fatal(err)
	}
	want := "acknowledged  a1\nfailed        a2 (COMPLETED): alert is not active\nmissing       a3\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestOutputFormat(t *testing.T) {
	old := output
	defer func() { output = old }()

	output = "auto"
	if got := outputFormat(&bytes.Buffer{}); got != "json" {
		t.Errorf("auto on a buffer = %q, want json", got)
	}
	output = "table"
	if got := outputFormat(&bytes.Buffer{}); got != "table" {
		t.Errorf("explicit table = %q", got)
	}
}
