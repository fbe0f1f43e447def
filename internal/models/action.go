package models

import (
	"fmt"
	"time"
)

// ThrottleUnit is the unit of a throttle value. Only minutes are supported.
type ThrottleUnit string

const ThrottleUnitMinutes ThrottleUnit = "MINUTES"

// Throttle is the minimum interval between notifications of one action for one alert.
type Throttle struct {
	Value int          `json:"value" yaml:"value"`
	Unit  ThrottleUnit `json:"unit" yaml:"unit"`
}

// Validate checks the throttle value and unit.
func (t *Throttle) Validate() error {
	if t.Unit != "" && t.Unit != ThrottleUnitMinutes {
		return fmt.Errorf("only %s throttle unit is supported, got %q", ThrottleUnitMinutes, t.Unit)
	}
	if t.Value <= 0 {
		return fmt.Errorf("throttle value must be greater than 0")
	}
	return nil
}

// Duration converts the throttle to a time.Duration.
func (t *Throttle) Duration() time.Duration {
	return time.Duration(t.Value) * time.Minute
}

// AlertCategory is the reconciliation outcome of an alert in one run.
type AlertCategory string

const (
	AlertCategoryNew       AlertCategory = "NEW"
	AlertCategoryDeduped   AlertCategory = "DEDUPED"
	AlertCategoryCompleted AlertCategory = "COMPLETED"
)

// ActionExecutionPolicy controls how often a bucket-level action runs.
type ActionExecutionPolicy struct {
	ActionExecutionScope ActionExecutionScope `json:"action_execution_scope" yaml:"action_execution_scope"`
}

// ActionExecutionScope is a union: exactly one of PerAlert or PerExecution.
type ActionExecutionScope struct {
	PerAlert     *PerAlertScope     `json:"per_alert,omitempty" yaml:"per_alert,omitempty"`
	PerExecution *PerExecutionScope `json:"per_execution,omitempty" yaml:"per_execution,omitempty"`
}

// PerAlertScope runs the action once for each alert in one of ActionableAlerts.
type PerAlertScope struct {
	ActionableAlerts []AlertCategory `json:"actionable_alerts" yaml:"actionable_alerts"`
}

// PerExecutionScope runs the action once per trigger execution.
type PerExecutionScope struct{}

// DefaultActionExecutionPolicy notifies new and still-firing alerts individually.
func DefaultActionExecutionPolicy() *ActionExecutionPolicy {
	return &ActionExecutionPolicy{
		ActionExecutionScope: ActionExecutionScope{
			PerAlert: &PerAlertScope{
				ActionableAlerts: []AlertCategory{AlertCategoryDeduped, AlertCategoryNew},
			},
		},
	}
}

// Action is a notification sent when a trigger fires.
type Action struct {
	ID                    string                 `json:"id" yaml:"id,omitempty"`
	Name                  string                 `json:"name" yaml:"name"`
	DestinationID         string                 `json:"destination_id" yaml:"destination_id"`
	MessageTemplate       Script                 `json:"message_template" yaml:"message_template"`
	SubjectTemplate       *Script                `json:"subject_template,omitempty" yaml:"subject_template,omitempty"`
	ThrottleEnabled       bool                   `json:"throttle_enabled" yaml:"throttle_enabled"`
	Throttle              *Throttle              `json:"throttle,omitempty" yaml:"throttle,omitempty"`
	ActionExecutionPolicy *ActionExecutionPolicy `json:"action_execution_policy,omitempty" yaml:"action_execution_policy,omitempty"`
}

// IsThrottled reports whether a throttle applies to the action.
func (a *Action) IsThrottled() bool {
	return a.ThrottleEnabled && a.Throttle != nil
}

// ExecutionPolicy returns the configured policy or the default.
func (a *Action) ExecutionPolicy() *ActionExecutionPolicy {
	if a.ActionExecutionPolicy == nil {
		return DefaultActionExecutionPolicy()
	}
	return a.ActionExecutionPolicy
}

// Validate checks required fields and the throttle configuration.
func (a *Action) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("action name is required for action %s", a.ID)
	}
	if a.DestinationID == "" {
		return fmt.Errorf("destination_id is required for action %q", a.Name)
	}
	if a.ThrottleEnabled && a.Throttle == nil {
		return fmt.Errorf("throttle is required when throttle_enabled is set for action %q", a.Name)
	}
	if a.Throttle != nil {
		if err := a.Throttle.Validate(); err != nil {
			return fmt.Errorf("action %q: %w", a.Name, err)
		}
	}
	if p := a.ActionExecutionPolicy; p != nil {
		scope := p.ActionExecutionScope
		if (scope.PerAlert == nil) == (scope.PerExecution == nil) {
			return fmt.Errorf("action %q: execution scope must be exactly one of per_alert or per_execution", a.Name)
		}
		if scope.PerAlert != nil {
			for _, c := range scope.PerAlert.ActionableAlerts {
				switch c {
				case AlertCategoryNew, AlertCategoryDeduped, AlertCategoryCompleted:
				default:
					return fmt.Errorf("action %q: invalid actionable alert category %q", a.Name, c)
				}
			}
		}
	}
	return nil
}
