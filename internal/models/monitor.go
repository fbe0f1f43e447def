// Package models defines domain models for BlazeWatch.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MonitorType selects which trigger kinds a monitor accepts.
type MonitorType string

const (
	MonitorTypeQueryLevel  MonitorType = "query_level_monitor"
	MonitorTypeBucketLevel MonitorType = "bucket_level_monitor"
)

// CurrentSchemaVersion is stamped on monitors and alerts written by this build.
const CurrentSchemaVersion = 3

// Default monitor bounds, overridable through configuration.
const (
	DefaultMaxInputs   = 1
	DefaultMaxTriggers = 10
)

// Monitor is a named, scheduled unit that runs input queries and evaluates triggers.
type Monitor struct {
	ID             string         `json:"id,omitempty" yaml:"id,omitempty"`
	Version        int64          `json:"version,omitempty" yaml:"-"`
	SchemaVersion  int            `json:"schema_version" yaml:"schema_version,omitempty"`
	Name           string         `json:"name" yaml:"name"`
	MonitorType    MonitorType    `json:"monitor_type" yaml:"monitor_type,omitempty"`
	Enabled        bool           `json:"enabled" yaml:"enabled"`
	EnabledTime    *time.Time     `json:"enabled_time,omitempty" yaml:"enabled_time,omitempty"`
	Schedule       Schedule       `json:"schedule" yaml:"schedule"`
	Inputs         []Input        `json:"inputs" yaml:"inputs"`
	Triggers       []Trigger      `json:"triggers" yaml:"triggers"`
	UIMetadata     map[string]any `json:"ui_metadata,omitempty" yaml:"ui_metadata,omitempty"`
	LastUpdateTime time.Time      `json:"last_update_time" yaml:"-"`
}

// Schedule describes how often a monitor runs. Only fixed periods are supported.
type Schedule struct {
	Period *PeriodSchedule `json:"period,omitempty" yaml:"period,omitempty"`
}

// PeriodSchedule runs a monitor every Interval Units.
type PeriodSchedule struct {
	Interval int    `json:"interval" yaml:"interval"`
	Unit     string `json:"unit" yaml:"unit"`
}

// Duration returns the schedule period, or zero if unset or invalid.
func (s Schedule) Duration() time.Duration {
	if s.Period == nil || s.Period.Interval <= 0 {
		return 0
	}
	var unit time.Duration
	switch strings.ToUpper(s.Period.Unit) {
	case "MINUTES":
		unit = time.Minute
	case "HOURS":
		unit = time.Hour
	case "DAYS":
		unit = 24 * time.Hour
	default:
		return 0
	}
	return time.Duration(s.Period.Interval) * unit
}

// PeriodEndingAt returns the [start, end) window of the period that ends at end.
func (s Schedule) PeriodEndingAt(end time.Time) (time.Time, time.Time) {
	return end.Add(-s.Duration()), end
}

// Input is a monitor input. Search is the only variant.
type Input struct {
	Search *SearchInput `json:"search,omitempty" yaml:"search,omitempty"`
}

// SearchInput is a search query run against a set of indices.
type SearchInput struct {
	Indices []string       `json:"indices" yaml:"indices"`
	Query   map[string]any `json:"query" yaml:"query"`
}

// Aggregations returns the top-level aggregation definitions of the query, if any.
func (s *SearchInput) Aggregations() map[string]any {
	if s == nil || s.Query == nil {
		return nil
	}
	for _, key := range []string{"aggregations", "aggs"} {
		if aggs, ok := s.Query[key].(map[string]any); ok && len(aggs) > 0 {
			return aggs
		}
	}
	return nil
}

// IsBucketLevel reports whether the monitor produces per-bucket alerts.
func (m *Monitor) IsBucketLevel() bool {
	return m.MonitorType == MonitorTypeBucketLevel
}

// TriggerByID returns the trigger with the given id.
func (m *Monitor) TriggerByID(id string) (*Trigger, bool) {
	for i := range m.Triggers {
		if base := m.Triggers[i].Base(); base != nil && base.ID == id {
			return &m.Triggers[i], true
		}
	}
	return nil, false
}

// Normalize fills in generated ids and defaults before validation.
func (m *Monitor) Normalize(now time.Time) {
	if m.MonitorType == "" {
		m.MonitorType = MonitorTypeQueryLevel
	}
	if m.SchemaVersion == 0 {
		m.SchemaVersion = CurrentSchemaVersion
	}
	if m.Enabled && m.EnabledTime == nil {
		t := now
		m.EnabledTime = &t
	}
	if !m.Enabled {
		m.EnabledTime = nil
	}
	for i := range m.Triggers {
		base := m.Triggers[i].Base()
		if base == nil {
			continue
		}
		if base.ID == "" {
			base.ID = uuid.New().String()
		}
		for j := range base.Actions {
			if base.Actions[j].ID == "" {
				base.Actions[j].ID = uuid.New().String()
			}
		}
	}
	m.LastUpdateTime = now
}

// Validate checks structural invariants of the monitor.
func (m *Monitor) Validate(maxInputs, maxTriggers int) error {
	if maxInputs <= 0 {
		maxInputs = DefaultMaxInputs
	}
	if maxTriggers <= 0 {
		maxTriggers = DefaultMaxTriggers
	}

	if strings.TrimSpace(m.Name) == "" {
		return configErrorf("monitor name is required")
	}
	switch m.MonitorType {
	case MonitorTypeQueryLevel, MonitorTypeBucketLevel:
	default:
		return configErrorf("invalid monitor type %q", m.MonitorType)
	}
	if m.Enabled && m.EnabledTime == nil {
		return configErrorf("enabled_time must be set when monitor %q is enabled", m.Name)
	}
	if !m.Enabled && m.EnabledTime != nil {
		return configErrorf("enabled_time must be empty when monitor %q is disabled", m.Name)
	}
	if m.Schedule.Duration() <= 0 {
		return configErrorf("monitor %q requires a positive period schedule", m.Name)
	}
	if len(m.Inputs) > maxInputs {
		return configErrorf("monitors can only have %d search input(s)", maxInputs)
	}
	if len(m.Triggers) > maxTriggers {
		return configErrorf("monitors can only support up to %d triggers", maxTriggers)
	}

	for i, in := range m.Inputs {
		if in.Search == nil {
			return configErrorf("unsupported input at index %d", i)
		}
		if m.IsBucketLevel() && in.Search.Aggregations() == nil {
			return configErrorf("at least one aggregation is required for input at index %d", i)
		}
	}

	seen := make(map[string]struct{}, len(m.Triggers))
	for i := range m.Triggers {
		t := &m.Triggers[i]
		if err := t.Validate(); err != nil {
			return err
		}
		base := t.Base()
		if _, dup := seen[base.ID]; dup {
			return configErrorf("duplicate trigger id: %s. Trigger ids must be unique", base.ID)
		}
		seen[base.ID] = struct{}{}

		switch m.MonitorType {
		case MonitorTypeQueryLevel:
			if t.Kind() != TriggerKindQueryLevel {
				return configErrorf("incompatible trigger [%s] for monitor type [%s]", base.ID, m.MonitorType)
			}
		case MonitorTypeBucketLevel:
			if t.Kind() != TriggerKindBucketLevel {
				return configErrorf("incompatible trigger [%s] for monitor type [%s]", base.ID, m.MonitorType)
			}
		}
	}
	return nil
}

// ValidateThrottles rejects action throttles outside [min, max].
func (m *Monitor) ValidateThrottles(min, max time.Duration) error {
	for i := range m.Triggers {
		base := m.Triggers[i].Base()
		if base == nil {
			continue
		}
		for _, a := range base.Actions {
			if a.Throttle == nil {
				continue
			}
			if err := a.Throttle.Validate(); err != nil {
				return configErrorf("action %q: %v", a.Name, err)
			}
			d := a.Throttle.Duration()
			if min > 0 && d < min {
				return configErrorf("action %q: throttle %s is below the minimum of %s", a.Name, d, min)
			}
			if max > 0 && d > max {
				return configErrorf("action %q: throttle %s exceeds the maximum of %s", a.Name, d, max)
			}
		}
	}
	return nil
}

// String implements fmt.Stringer for log lines.
func (m *Monitor) String() string {
	id := m.ID
	if id == "" {
		id = "_na_"
	}
	return fmt.Sprintf("%s[%s]", m.Name, id)
}
