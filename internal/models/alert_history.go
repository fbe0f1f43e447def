package models

import "time"

// AlertFilter selects alerts from the live store or the history archive.
type AlertFilter struct {
	MonitorID string
	State     AlertState
	Severity  string
	Since     time.Time
	Limit     int
	Offset    int
}

// Matches reports whether a satisfies the filter's field predicates.
// Paging fields are ignored.
func (f *AlertFilter) Matches(a *Alert) bool {
	if f.MonitorID != "" && a.MonitorID != f.MonitorID {
		return false
	}
	if f.State != "" && a.State != f.State {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if !f.Since.IsZero() && a.StartTime.Before(f.Since) {
		return false
	}
	return true
}
