package models

import (
	"encoding/json"
	"time"
)

// Alert error prefixes for each failing layer.
const (
	ErrPrefixInput   = "Failed fetching inputs"
	ErrPrefixMonitor = "Failed running monitor"
	ErrPrefixTrigger = "Failed evaluating trigger"
	ErrPrefixAction  = "Failed running action"
)

// MonitorRunResult is the outcome of one monitor run. It is returned to callers of
// execute and never persisted as is.
type MonitorRunResult struct {
	MonitorName    string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Error          error
	InputResults   InputRunResults
	TriggerResults map[string]*TriggerRunResult
}

// InputRunResults holds one result document per monitor input.
type InputRunResults struct {
	Results []map[string]any
	Error   error
}

// AlertError returns the alert error for a failed input or monitor run, or nil.
func (r *MonitorRunResult) AlertError(now time.Time) *AlertError {
	if r.InputResults.Error != nil {
		return NewAlertError(now, ErrPrefixInput, r.InputResults.Error)
	}
	if r.Error != nil {
		return NewAlertError(now, ErrPrefixMonitor, r.Error)
	}
	return nil
}

// TriggerRunResult is the outcome of evaluating one trigger.
type TriggerRunResult struct {
	TriggerName string
	Kind        TriggerKind
	Triggered   bool
	Error       error

	// ActionResults is keyed by action id. Used by query-level triggers.
	ActionResults map[string]*ActionRunResult

	// Bucket-level triggers key buckets and action results by bucket keys hash.
	AggregationResultBuckets map[string]*AggregationResultBucket
	BucketActionResults      map[string]map[string]*ActionRunResult
}

// AlertError returns the alert error for a failed trigger, or nil.
func (r *TriggerRunResult) AlertError(now time.Time) *AlertError {
	return NewAlertError(now, ErrPrefixTrigger, r.Error)
}

// ActionRunResult is the outcome of one action for one alert.
type ActionRunResult struct {
	ActionID      string
	ActionName    string
	Output        map[string]string
	Throttled     bool
	ExecutionTime *time.Time
	Error         error
}

// AlertError returns the alert error for a failed action, or nil. Throttled runs
// never fail.
func (r *ActionRunResult) AlertError(now time.Time) *AlertError {
	if r.Throttled {
		return nil
	}
	return NewAlertError(now, ErrPrefixAction, r.Error)
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

func (r *MonitorRunResult) MarshalJSON() ([]byte, error) {
	triggers := r.TriggerResults
	if triggers == nil {
		triggers = map[string]*TriggerRunResult{}
	}
	return json.Marshal(struct {
		MonitorName    string                       `json:"monitor_name"`
		PeriodStart    time.Time                    `json:"period_start"`
		PeriodEnd      time.Time                    `json:"period_end"`
		Error          *string                      `json:"error"`
		InputResults   *InputRunResults             `json:"input_results"`
		TriggerResults map[string]*TriggerRunResult `json:"trigger_results"`
	}{
		MonitorName:    r.MonitorName,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		Error:          errString(r.Error),
		InputResults:   &r.InputResults,
		TriggerResults: triggers,
	})
}

func (r *InputRunResults) MarshalJSON() ([]byte, error) {
	results := r.Results
	if results == nil {
		results = []map[string]any{}
	}
	return json.Marshal(struct {
		Results []map[string]any `json:"results"`
		Error   *string          `json:"error"`
	}{results, errString(r.Error)})
}

func (r *TriggerRunResult) MarshalJSON() ([]byte, error) {
	if r.Kind == TriggerKindBucketLevel {
		buckets := r.AggregationResultBuckets
		if buckets == nil {
			buckets = map[string]*AggregationResultBucket{}
		}
		actions := r.BucketActionResults
		if actions == nil {
			actions = map[string]map[string]*ActionRunResult{}
		}
		return json.Marshal(struct {
			Name             string                                 `json:"name"`
			Error            *string                                `json:"error"`
			Triggered        bool                                   `json:"triggered"`
			AggResultBuckets map[string]*AggregationResultBucket    `json:"agg_result_buckets"`
			ActionResults    map[string]map[string]*ActionRunResult `json:"action_results"`
		}{r.TriggerName, errString(r.Error), r.Triggered, buckets, actions})
	}

	actions := r.ActionResults
	if actions == nil {
		actions = map[string]*ActionRunResult{}
	}
	return json.Marshal(struct {
		Name          string                      `json:"name"`
		Error         *string                     `json:"error"`
		Triggered     bool                        `json:"triggered"`
		ActionResults map[string]*ActionRunResult `json:"action_results"`
	}{r.TriggerName, errString(r.Error), r.Triggered, actions})
}

func (r *ActionRunResult) MarshalJSON() ([]byte, error) {
	output := r.Output
	if output == nil {
		output = map[string]string{}
	}
	return json.Marshal(struct {
		ID            string            `json:"id"`
		Name          string            `json:"name"`
		Output        map[string]string `json:"output"`
		Throttled     bool              `json:"throttled"`
		ExecutionTime *time.Time        `json:"executionTime"`
		Error         *string           `json:"error"`
	}{r.ActionID, r.ActionName, output, r.Throttled, r.ExecutionTime, errString(r.Error)})
}
