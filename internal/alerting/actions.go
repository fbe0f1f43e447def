package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/notifier"
)

// Action output keys.
const (
	OutputSubject   = "subject"
	OutputMessage   = "message"
	OutputMessageID = "message_id"
)

// Sender publishes a rendered notification to a destination and returns its message id.
type Sender interface {
	Send(ctx context.Context, destinationID string, msg notifier.Message) (string, error)
}

// ActionExecutor renders action templates and publishes them through a Sender.
type ActionExecutor struct {
	sender Sender
	now    func() time.Time
}

// NewActionExecutor creates an action executor. sender may be nil when only dry runs are made.
func NewActionExecutor(sender Sender, now func() time.Time) *ActionExecutor {
	if now == nil {
		now = time.Now
	}
	return &ActionExecutor{sender: sender, now: now}
}

// Run executes action for alert with the given template context. Throttled actions are
// reported without rendering. With dryrun set templates are rendered but nothing is sent.
func (x *ActionExecutor) Run(ctx context.Context, action *models.Action, alert *models.Alert, tctx map[string]any, dryrun bool) *models.ActionRunResult {
	now := x.now()
	return x.run(ctx, action, IsActionThrottled(action, alert, now), now, tctx, dryrun)
}

// RunOnce executes a per-execution action on behalf of alerts. It is throttled only
// when every alert is inside the action's throttle window.
func (x *ActionExecutor) RunOnce(ctx context.Context, action *models.Action, alerts []*models.Alert, tctx map[string]any, dryrun bool) *models.ActionRunResult {
	now := x.now()
	return x.run(ctx, action, IsPerExecutionThrottled(action, alerts, now), now, tctx, dryrun)
}

func (x *ActionExecutor) run(ctx context.Context, action *models.Action, throttled bool, now time.Time, tctx map[string]any, dryrun bool) *models.ActionRunResult {
	result := &models.ActionRunResult{
		ActionID:   action.ID,
		ActionName: action.Name,
		Output:     map[string]string{},
	}

	if throttled {
		result.Throttled = true
		metrics.ActionsTotal.WithLabelValues("throttled").Inc()
		return result
	}

	t := now
	result.ExecutionTime = &t

	output, err := x.render(action, tctx)
	if err != nil {
		result.Error = err
		metrics.ActionsTotal.WithLabelValues("failed").Inc()
		return result
	}

	if dryrun {
		result.Output = output
		metrics.ActionsTotal.WithLabelValues("dryrun").Inc()
		return result
	}

	if x.sender == nil {
		result.Error = &ActionDeliveryError{DestinationID: action.DestinationID, Err: fmt.Errorf("no notification sender configured")}
		metrics.ActionsTotal.WithLabelValues("failed").Inc()
		return result
	}

	id, err := x.sender.Send(ctx, action.DestinationID, notifier.Message{
		Subject: output[OutputSubject],
		Body:    output[OutputMessage],
	})
	if err != nil {
		result.Error = &ActionDeliveryError{DestinationID: action.DestinationID, Err: err}
		metrics.ActionsTotal.WithLabelValues("failed").Inc()
		return result
	}
	output[OutputMessageID] = id
	result.Output = output
	metrics.ActionsTotal.WithLabelValues("executed").Inc()
	return result
}

func (x *ActionExecutor) render(action *models.Action, tctx map[string]any) (map[string]string, error) {
	output := map[string]string{OutputSubject: ""}
	if action.SubjectTemplate != nil {
		subject, err := RenderTemplate(*action.SubjectTemplate, tctx)
		if err != nil {
			return nil, &ActionRenderError{ActionID: action.ID, Err: fmt.Errorf("render subject: %w", err)}
		}
		output[OutputSubject] = subject
	}
	message, err := RenderTemplate(action.MessageTemplate, tctx)
	if err != nil {
		return nil, &ActionRenderError{ActionID: action.ID, Err: fmt.Errorf("render message: %w", err)}
	}
	if strings.TrimSpace(message) == "" {
		return nil, &ActionRenderError{ActionID: action.ID, Err: errMessageMissing(action.DestinationID)}
	}
	output[OutputMessage] = message
	return output, nil
}

// RenderTemplate executes a text/template script. The template data holds ctx and the
// script params, e.g. {{.ctx.monitor.name}} or {{.threshold}}.
func RenderTemplate(script models.Script, tctx map[string]any) (string, error) {
	tmpl, err := template.New("action").Funcs(templateFuncs).Parse(script.Source)
	if err != nil {
		return "", err
	}
	data := make(map[string]any, len(script.Params)+1)
	for k, v := range script.Params {
		data[k] = v
	}
	data["ctx"] = tctx

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// asTemplateArg converts v to generic JSON maps so templates and scripts address fields
// by their wire names.
func asTemplateArg(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func alertsArg(alerts []*models.Alert) []any {
	out := make([]any, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, asTemplateArg(a))
	}
	return out
}

func errorArg(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

// queryTriggerContext is the ctx seen by query-level conditions and action templates.
func queryTriggerContext(monitor *models.Monitor, trigger *models.QueryLevelTrigger, mr *models.MonitorRunResult, alert *models.Alert, err error) map[string]any {
	results := make([]any, 0, len(mr.InputResults.Results))
	for _, r := range mr.InputResults.Results {
		results = append(results, r)
	}
	var alertArg any
	if alert != nil {
		alertArg = asTemplateArg(alert)
	}
	return map[string]any{
		"monitor":     asTemplateArg(monitor),
		"trigger":     asTemplateArg(trigger),
		"results":     results,
		"periodStart": mr.PeriodStart.UTC().Format(time.RFC3339),
		"periodEnd":   mr.PeriodEnd.UTC().Format(time.RFC3339),
		"alert":       alertArg,
		"error":       errorArg(err),
	}
}

// bucketTriggerContext is the ctx seen by bucket-level action templates. Per-alert actions
// get the single alert in its category list and as alert.
func bucketTriggerContext(monitor *models.Monitor, trigger *models.BucketLevelTrigger, mr *models.MonitorRunResult, deduped, created, completed []*models.Alert, alert *models.Alert, err error) map[string]any {
	results := make([]any, 0, len(mr.InputResults.Results))
	for _, r := range mr.InputResults.Results {
		results = append(results, r)
	}
	var alertArg any
	if alert != nil {
		alertArg = asTemplateArg(alert)
	}
	return map[string]any{
		"monitor":         asTemplateArg(monitor),
		"trigger":         asTemplateArg(trigger),
		"results":         results,
		"periodStart":     mr.PeriodStart.UTC().Format(time.RFC3339),
		"periodEnd":       mr.PeriodEnd.UTC().Format(time.RFC3339),
		"dedupedAlerts":   alertsArg(deduped),
		"newAlerts":       alertsArg(created),
		"completedAlerts": alertsArg(completed),
		"alert":           alertArg,
		"error":           errorArg(err),
	}
}
