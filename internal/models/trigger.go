package models

// TriggerKind identifies which variant a Trigger holds.
type TriggerKind string

const (
	TriggerKindQueryLevel  TriggerKind = "query_level_trigger"
	TriggerKindBucketLevel TriggerKind = "bucket_level_trigger"
	TriggerKindAggregation TriggerKind = "aggregation_trigger"
)

// Script is a source snippet evaluated by a script engine.
type Script struct {
	Source string         `json:"source" yaml:"source"`
	Lang   string         `json:"lang,omitempty" yaml:"lang,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// TriggerBase holds the fields shared by all trigger variants.
type TriggerBase struct {
	ID       string   `json:"id" yaml:"id,omitempty"`
	Name     string   `json:"name" yaml:"name"`
	Severity string   `json:"severity" yaml:"severity"`
	Actions  []Action `json:"actions" yaml:"actions,omitempty"`
}

// QueryLevelTrigger fires when its scripted condition evaluates to true.
type QueryLevelTrigger struct {
	TriggerBase `yaml:",inline"`
	Condition   QueryCondition `json:"condition" yaml:"condition"`
}

// QueryCondition wraps the boolean script of a query-level trigger.
type QueryCondition struct {
	Script Script `json:"script" yaml:"script"`
}

// BucketLevelTrigger selects aggregation buckets and raises one alert per bucket.
type BucketLevelTrigger struct {
	TriggerBase `yaml:",inline"`
	Condition   BucketSelector `json:"condition" yaml:"condition"`
}

// BucketSelector picks buckets under ParentBucketPath for which Script holds.
// BucketsPath maps script variable names to bucket paths such as "_count" or "avg_cpu".
type BucketSelector struct {
	ParentBucketPath string            `json:"parent_bucket_path" yaml:"parent_bucket_path"`
	BucketsPath      map[string]string `json:"buckets_path" yaml:"buckets_path"`
	Script           Script            `json:"script" yaml:"script"`
}

// AggregationTrigger is reserved; its payload is not defined yet.
type AggregationTrigger struct {
	TriggerBase `yaml:",inline"`
}

// Trigger is a tagged union of the trigger variants. Exactly one field is set.
type Trigger struct {
	QueryLevel  *QueryLevelTrigger  `json:"query_level_trigger,omitempty" yaml:"query_level_trigger,omitempty"`
	BucketLevel *BucketLevelTrigger `json:"bucket_level_trigger,omitempty" yaml:"bucket_level_trigger,omitempty"`
	Aggregation *AggregationTrigger `json:"aggregation_trigger,omitempty" yaml:"aggregation_trigger,omitempty"`
}

// Kind returns the variant held by t, or "" when zero or several are set.
func (t *Trigger) Kind() TriggerKind {
	var kind TriggerKind
	n := 0
	if t.QueryLevel != nil {
		kind = TriggerKindQueryLevel
		n++
	}
	if t.BucketLevel != nil {
		kind = TriggerKindBucketLevel
		n++
	}
	if t.Aggregation != nil {
		kind = TriggerKindAggregation
		n++
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Base returns the shared fields of the held variant.
func (t *Trigger) Base() *TriggerBase {
	switch t.Kind() {
	case TriggerKindQueryLevel:
		return &t.QueryLevel.TriggerBase
	case TriggerKindBucketLevel:
		return &t.BucketLevel.TriggerBase
	case TriggerKindAggregation:
		return &t.Aggregation.TriggerBase
	}
	return nil
}

// Validate checks the trigger and its actions.
func (t *Trigger) Validate() error {
	base := t.Base()
	if base == nil {
		return configErrorf("trigger must hold exactly one of query_level_trigger, bucket_level_trigger, aggregation_trigger")
	}
	if base.ID == "" {
		return configErrorf("trigger id is required")
	}
	if base.Name == "" {
		return configErrorf("trigger name is required for trigger %s", base.ID)
	}
	if base.Severity == "" {
		return configErrorf("severity is required for trigger %q", base.Name)
	}

	switch t.Kind() {
	case TriggerKindQueryLevel:
		if t.QueryLevel.Condition.Script.Source == "" {
			return configErrorf("condition script is required for trigger %q", base.Name)
		}
	case TriggerKindBucketLevel:
		sel := t.BucketLevel.Condition
		if sel.ParentBucketPath == "" {
			return configErrorf("parent_bucket_path is required for trigger %q", base.Name)
		}
		if sel.Script.Source == "" {
			return configErrorf("condition script is required for trigger %q", base.Name)
		}
	}

	actionIDs := make(map[string]struct{}, len(base.Actions))
	for i := range base.Actions {
		a := &base.Actions[i]
		if err := a.Validate(); err != nil {
			return configErrorf("trigger %q: %v", base.Name, err)
		}
		if _, dup := actionIDs[a.ID]; dup {
			return configErrorf("trigger %q: duplicate action id %s", base.Name, a.ID)
		}
		actionIDs[a.ID] = struct{}{}
	}
	return nil
}
