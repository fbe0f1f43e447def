package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func queryTrigger(id string) Trigger {
	return Trigger{QueryLevel: &QueryLevelTrigger{
		TriggerBase: TriggerBase{ID: id, Name: "trigger-" + id, Severity: "1"},
		Condition:   QueryCondition{Script: Script{Source: "ctx.results[0].hits.total.value > 0"}},
	}}
}

func bucketTrigger(id string) Trigger {
	return Trigger{BucketLevel: &BucketLevelTrigger{
		TriggerBase: TriggerBase{ID: id, Name: "trigger-" + id, Severity: "2"},
		Condition: BucketSelector{
			ParentBucketPath: "composite_agg",
			BucketsPath:      map[string]string{"count": "_count"},
			Script:           Script{Source: "params.count > 5"},
		},
	}}
}

func validMonitor() *Monitor {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Monitor{
		Name:        "errors",
		MonitorType: MonitorTypeQueryLevel,
		Enabled:     true,
		EnabledTime: &now,
		Schedule:    Schedule{Period: &PeriodSchedule{Interval: 5, Unit: "MINUTES"}},
		Inputs:      []Input{{Search: &SearchInput{Indices: []string{"logs-*"}, Query: map[string]any{"size": 0}}}},
		Triggers:    []Trigger{queryTrigger("t1")},
	}
}

func TestMonitorValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(m *Monitor)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid",
			modify: func(m *Monitor) {},
		},
		{
			name:    "missing name",
			modify:  func(m *Monitor) { m.Name = " " },
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "enabled without enabled time",
			modify:  func(m *Monitor) { m.EnabledTime = nil },
			wantErr: true,
			errMsg:  "enabled_time must be set",
		},
		{
			name:    "disabled with enabled time",
			modify:  func(m *Monitor) { m.Enabled = false },
			wantErr: true,
			errMsg:  "enabled_time must be empty",
		},
		{
			name:    "duplicate trigger ids",
			modify:  func(m *Monitor) { m.Triggers = []Trigger{queryTrigger("t1"), queryTrigger("t1")} },
			wantErr: true,
			errMsg:  "duplicate trigger id: t1",
		},
		{
			name: "too many inputs",
			modify: func(m *Monitor) {
				m.Inputs = append(m.Inputs, m.Inputs[0])
			},
			wantErr: true,
			errMsg:  "only have 1 search input",
		},
		{
			name: "too many triggers",
			modify: func(m *Monitor) {
				m.Triggers = nil
				for i := 0; i < 11; i++ {
					m.Triggers = append(m.Triggers, queryTrigger(string(rune('a'+i))))
				}
			},
			wantErr: true,
			errMsg:  "up to 10 triggers",
		},
		{
			name:    "zero interval",
			modify:  func(m *Monitor) { m.Schedule.Period.Interval = 0 },
			wantErr: true,
			errMsg:  "positive period schedule",
		},
		{
			name:    "unknown unit",
			modify:  func(m *Monitor) { m.Schedule.Period.Unit = "WEEKS" },
			wantErr: true,
			errMsg:  "positive period schedule",
		},
		{
			name:    "bucket trigger on query monitor",
			modify:  func(m *Monitor) { m.Triggers = []Trigger{bucketTrigger("b1")} },
			wantErr: true,
			errMsg:  "incompatible trigger [b1]",
		},
		{
			name: "bucket monitor without aggregations",
			modify: func(m *Monitor) {
				m.MonitorType = MonitorTypeBucketLevel
				m.Triggers = []Trigger{bucketTrigger("b1")}
			},
			wantErr: true,
			errMsg:  "at least one aggregation",
		},
		{
			name: "valid bucket monitor",
			modify: func(m *Monitor) {
				m.MonitorType = MonitorTypeBucketLevel
				m.Inputs[0].Search.Query["aggs"] = map[string]any{"composite_agg": map[string]any{}}
				m.Triggers = []Trigger{bucketTrigger("b1")}
			},
		},
		{
			name: "trigger with two variants",
			modify: func(m *Monitor) {
				tr := queryTrigger("t1")
				tr.BucketLevel = bucketTrigger("t1").BucketLevel
				m.Triggers = []Trigger{tr}
			},
			wantErr: true,
			errMsg:  "exactly one of",
		},
		{
			name: "throttle enabled without throttle",
			modify: func(m *Monitor) {
				m.Triggers[0].QueryLevel.Actions = []Action{{ID: "a1", Name: "notify", DestinationID: "d1", ThrottleEnabled: true}}
			},
			wantErr: true,
			errMsg:  "throttle is required",
		},
		{
			name: "duplicate action ids",
			modify: func(m *Monitor) {
				a := Action{ID: "a1", Name: "notify", DestinationID: "d1"}
				m.Triggers[0].QueryLevel.Actions = []Action{a, a}
			},
			wantErr: true,
			errMsg:  "duplicate action id a1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMonitor()
			tt.modify(m)
			err := m.Validate(DefaultMaxInputs, DefaultMaxTriggers)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected *ConfigurationError, got %T", err)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMonitorValidateThrottles(t *testing.T) {
	tests := []struct {
		name     string
		throttle *Throttle
		wantErr  bool
		errMsg   string
	}{
		{name: "no throttle"},
		{name: "within bounds", throttle: &Throttle{Value: 10, Unit: ThrottleUnitMinutes}},
		{name: "below minimum", throttle: &Throttle{Value: 0, Unit: ThrottleUnitMinutes}, wantErr: true, errMsg: "greater than 0"},
		{name: "above maximum", throttle: &Throttle{Value: 24*60 + 1, Unit: ThrottleUnitMinutes}, wantErr: true, errMsg: "exceeds the maximum"},
		{name: "bad unit", throttle: &Throttle{Value: 5, Unit: "HOURS"}, wantErr: true, errMsg: "throttle unit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMonitor()
			m.Triggers[0].QueryLevel.Actions = []Action{{ID: "a1", Name: "notify", DestinationID: "d1", ThrottleEnabled: tt.throttle != nil, Throttle: tt.throttle}}
			err := m.ValidateThrottles(time.Minute, 24*time.Hour)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.errMsg, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMonitorNormalize(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &Monitor{
		Name:    "m",
		Enabled: true,
		Triggers: []Trigger{{QueryLevel: &QueryLevelTrigger{
			TriggerBase: TriggerBase{Name: "t", Severity: "1", Actions: []Action{{Name: "a"}}},
		}}},
	}
	m.Normalize(now)

	if m.MonitorType != MonitorTypeQueryLevel {
		t.Errorf("expected default type %s, got %s", MonitorTypeQueryLevel, m.MonitorType)
	}
	if m.EnabledTime == nil || !m.EnabledTime.Equal(now) {
		t.Errorf("expected enabled time %v, got %v", now, m.EnabledTime)
	}
	base := m.Triggers[0].Base()
	if base.ID == "" {
		t.Error("expected generated trigger id")
	}
	if base.Actions[0].ID == "" {
		t.Error("expected generated action id")
	}
	if m.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", CurrentSchemaVersion, m.SchemaVersion)
	}
}

func TestSchedulePeriodEndingAt(t *testing.T) {
	end := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Schedule{Period: &PeriodSchedule{Interval: 2, Unit: "hours"}}
	start, gotEnd := s.PeriodEndingAt(end)
	if !gotEnd.Equal(end) {
		t.Errorf("expected end %v, got %v", end, gotEnd)
	}
	if want := end.Add(-2 * time.Hour); !start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, start)
	}
}

func TestTriggerKind(t *testing.T) {
	q := queryTrigger("q")
	if q.Kind() != TriggerKindQueryLevel {
		t.Errorf("expected %s, got %s", TriggerKindQueryLevel, q.Kind())
	}
	b := bucketTrigger("b")
	if b.Kind() != TriggerKindBucketLevel {
		t.Errorf("expected %s, got %s", TriggerKindBucketLevel, b.Kind())
	}
	var empty Trigger
	if empty.Kind() != "" || empty.Base() != nil {
		t.Error("empty trigger should have no kind and no base")
	}
}

func TestActionExecutionPolicyDefault(t *testing.T) {
	a := Action{ID: "a"}
	p := a.ExecutionPolicy()
	if p.ActionExecutionScope.PerAlert == nil {
		t.Fatal("expected per_alert default scope")
	}
	got := p.ActionExecutionScope.PerAlert.ActionableAlerts
	if len(got) != 2 || got[0] != AlertCategoryDeduped || got[1] != AlertCategoryNew {
		t.Errorf("unexpected default categories: %v", got)
	}
}
