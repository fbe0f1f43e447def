package models

import (
	"fmt"
	"strings"
	"time"
)

// AlertState is the lifecycle state of an alert.
type AlertState string

const (
	AlertStateActive       AlertState = "ACTIVE"
	AlertStateAcknowledged AlertState = "ACKNOWLEDGED"
	AlertStateCompleted    AlertState = "COMPLETED"
	AlertStateError        AlertState = "ERROR"
	AlertStateDeleted      AlertState = "DELETED"
)

// ParseAlertState converts a string to AlertState. Unknown values return "".
func ParseAlertState(s string) AlertState {
	switch st := AlertState(strings.ToUpper(s)); st {
	case AlertStateActive, AlertStateAcknowledged, AlertStateCompleted, AlertStateError, AlertStateDeleted:
		return st
	}
	return ""
}

// Trigger severities, "1" is the highest.
const (
	SeverityCritical = "1"
	SeverityHigh     = "2"
	SeverityMedium   = "3"
	SeverityLow      = "4"
	SeverityInfo     = "5"
)

// ParseSeverity converts a severity name or number to its canonical number.
func ParseSeverity(s string) string {
	switch strings.ToLower(s) {
	case "1", "critical":
		return SeverityCritical
	case "2", "high":
		return SeverityHigh
	case "3", "medium":
		return SeverityMedium
	case "4", "low":
		return SeverityLow
	case "5", "info":
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

// MaxErrorHistory is the capacity of an alert's error history.
const MaxErrorHistory = 10

// NoID marks an alert that has not been persisted yet.
const NoID = ""

// AlertError is one entry of an alert's error history.
type AlertError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// NewAlertError builds an AlertError with a subject line prefix.
func NewAlertError(now time.Time, prefix string, err error) *AlertError {
	if err == nil {
		return nil
	}
	return &AlertError{Timestamp: now, Message: fmt.Sprintf("%s:\n%s", prefix, err.Error())}
}

// AppendErrorHistory returns history with e appended, keeping the newest MaxErrorHistory
// entries in order. The input slice is not modified.
func AppendErrorHistory(history []AlertError, e *AlertError) []AlertError {
	if e == nil {
		out := make([]AlertError, len(history))
		copy(out, history)
		return out
	}
	out := make([]AlertError, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, *e)
	if len(out) > MaxErrorHistory {
		out = out[len(out)-MaxErrorHistory:]
	}
	return out
}

// ActionExecutionResult tracks throttle bookkeeping for one action of an alert.
type ActionExecutionResult struct {
	ActionID          string     `json:"action_id"`
	LastExecutionTime *time.Time `json:"last_execution_time"`
	ThrottledCount    int        `json:"throttled_count"`
}

// BucketKeysSeparator joins bucket key dimensions into the bucket identity.
// Dimension values containing it can collide with other key tuples.
const BucketKeysSeparator = "#"

// AggregationResultBucket is a snapshot of one aggregation bucket that fired.
type AggregationResultBucket struct {
	ParentBucketPath string         `json:"parent_bucket_path"`
	BucketKeys       []string       `json:"bucket_keys"`
	Bucket           map[string]any `json:"bucket"`
}

// BucketKeysHash is the identity used to correlate a bucket alert across runs.
func (b *AggregationResultBucket) BucketKeysHash() string {
	return strings.Join(b.BucketKeys, BucketKeysSeparator)
}

// Alert is a persisted record of one firing instance of a trigger.
type Alert struct {
	ID                      string                   `json:"id"`
	Version                 int64                    `json:"version"`
	SchemaVersion           int                      `json:"schema_version"`
	MonitorID               string                   `json:"monitor_id"`
	MonitorName             string                   `json:"monitor_name"`
	MonitorVersion          int64                    `json:"monitor_version"`
	TriggerID               string                   `json:"trigger_id"`
	TriggerName             string                   `json:"trigger_name"`
	Severity                string                   `json:"severity"`
	State                   AlertState               `json:"state"`
	StartTime               time.Time                `json:"start_time"`
	EndTime                 *time.Time               `json:"end_time"`
	LastNotificationTime    *time.Time               `json:"last_notification_time"`
	AcknowledgedTime        *time.Time               `json:"acknowledged_time"`
	ErrorMessage            string                   `json:"error_message,omitempty"`
	ErrorHistory            []AlertError             `json:"alert_history"`
	ActionExecutionResults  []ActionExecutionResult  `json:"action_execution_results"`
	AggregationResultBucket *AggregationResultBucket `json:"agg_alert_content,omitempty"`
}

// NewAlert creates an unsaved alert for trigger on monitor, starting at now.
// A non-nil alertErr creates the alert in ERROR state.
func NewAlert(monitor *Monitor, trigger *TriggerBase, now time.Time, alertErr *AlertError, bucket *AggregationResultBucket) *Alert {
	t := now
	a := &Alert{
		ID:                      NoID,
		SchemaVersion:           CurrentSchemaVersion,
		MonitorID:               monitor.ID,
		MonitorName:             monitor.Name,
		MonitorVersion:          monitor.Version,
		TriggerID:               trigger.ID,
		TriggerName:             trigger.Name,
		Severity:                trigger.Severity,
		State:                   AlertStateActive,
		StartTime:               now,
		LastNotificationTime:    &t,
		ErrorHistory:            []AlertError{},
		ActionExecutionResults:  []ActionExecutionResult{},
		AggregationResultBucket: bucket,
	}
	if alertErr != nil {
		a.Fail(alertErr)
	}
	return a
}

// Clone returns a deep copy of the alert's mutable collections.
func (a *Alert) Clone() *Alert {
	c := *a
	if a.ErrorHistory != nil {
		c.ErrorHistory = make([]AlertError, len(a.ErrorHistory))
		copy(c.ErrorHistory, a.ErrorHistory)
	}
	if a.ActionExecutionResults != nil {
		c.ActionExecutionResults = make([]ActionExecutionResult, len(a.ActionExecutionResults))
		copy(c.ActionExecutionResults, a.ActionExecutionResults)
	}
	if a.AggregationResultBucket != nil {
		b := *a.AggregationResultBucket
		if b.BucketKeys != nil {
			b.BucketKeys = make([]string, len(a.AggregationResultBucket.BucketKeys))
			copy(b.BucketKeys, a.AggregationResultBucket.BucketKeys)
		}
		c.AggregationResultBucket = &b
	}
	return &c
}

// IsAcknowledged reports whether the alert is acknowledged.
func (a *Alert) IsAcknowledged() bool {
	return a.State == AlertStateAcknowledged
}

// BucketKeysHash returns the bucket identity, or "" for alerts without a bucket.
func (a *Alert) BucketKeysHash() string {
	if a.AggregationResultBucket == nil {
		return ""
	}
	return a.AggregationResultBucket.BucketKeysHash()
}

// Activate moves the alert to ACTIVE and clears the error message.
func (a *Alert) Activate() {
	a.State = AlertStateActive
	a.ErrorMessage = ""
}

// Fail moves the alert to ERROR and records e in the history.
func (a *Alert) Fail(e *AlertError) {
	a.State = AlertStateError
	a.ErrorMessage = e.Message
	a.ErrorHistory = AppendErrorHistory(a.ErrorHistory, e)
}

// Complete moves the alert to COMPLETED at now. The error history is kept.
func (a *Alert) Complete(now time.Time) {
	t := now
	a.State = AlertStateCompleted
	a.EndTime = &t
	a.ErrorMessage = ""
}

// Acknowledge moves an ACTIVE alert to ACKNOWLEDGED at now.
func (a *Alert) Acknowledge(now time.Time) error {
	if a.State != AlertStateActive {
		return fmt.Errorf("alert %s is in state %s", a.ID, a.State)
	}
	t := now
	a.State = AlertStateAcknowledged
	a.AcknowledgedTime = &t
	a.ErrorMessage = ""
	return nil
}

// MarkDeleted moves the alert to DELETED at now with the given reason.
func (a *Alert) MarkDeleted(now time.Time, reason string) {
	t := now
	a.State = AlertStateDeleted
	a.EndTime = &t
	a.ErrorMessage = reason
	if reason != "" {
		a.ErrorHistory = AppendErrorHistory(a.ErrorHistory, &AlertError{Timestamp: now, Message: reason})
	}
}

// RecordError appends e to the history without changing state.
func (a *Alert) RecordError(e *AlertError) {
	a.ErrorHistory = AppendErrorHistory(a.ErrorHistory, e)
}

// CheckInvariants returns an error if the alert's state and error fields disagree.
func (a *Alert) CheckInvariants() error {
	if a.ErrorMessage != "" && a.State != AlertStateError && a.State != AlertStateDeleted {
		return fmt.Errorf("alert %s: error message set in state %s", a.ID, a.State)
	}
	if len(a.ErrorHistory) > MaxErrorHistory {
		return fmt.Errorf("alert %s: error history has %d entries, max %d", a.ID, len(a.ErrorHistory), MaxErrorHistory)
	}
	return nil
}

// ActionResult returns the execution result recorded for actionID.
func (a *Alert) ActionResult(actionID string) (ActionExecutionResult, bool) {
	for _, r := range a.ActionExecutionResults {
		if r.ActionID == actionID {
			return r, true
		}
	}
	return ActionExecutionResult{}, false
}
