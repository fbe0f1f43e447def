package alerting

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func compositeResponse(extra map[string]any) []map[string]any {
	aggs := map[string]any{
		"composite_agg": map[string]any{
			"buckets": []any{
				map[string]any{"key": map[string]any{"host": "web-1", "status": "500"}, "doc_count": 12.0},
				map[string]any{"key": map[string]any{"host": "web-2", "status": "503"}, "doc_count": 2.0},
				map[string]any{"key": map[string]any{"host": "web-3", "status": "500"}, "doc_count": 7.0},
			},
		},
	}
	for k, v := range extra {
		aggs[k] = v
	}
	return []map[string]any{{"aggregations": aggs}}
}

func compositeQuery() map[string]any {
	return map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"composite_agg": map[string]any{
				"composite": map[string]any{
					"sources": []any{
						map[string]any{"status": map[string]any{"terms": map[string]any{"field": "status"}}},
						map[string]any{"host": map[string]any{"terms": map[string]any{"field": "host"}}},
					},
				},
			},
		},
	}
}

func bucketTrigger(script string) *models.BucketLevelTrigger {
	return &models.BucketLevelTrigger{
		TriggerBase: models.TriggerBase{ID: "t1", Name: "errors", Severity: "1"},
		Condition: models.BucketSelector{
			ParentBucketPath: "composite_agg",
			BucketsPath:      map[string]string{"count": "_count"},
			Script:           models.Script{Source: script},
		},
	}
}

func bucketHashes(buckets []*models.AggregationResultBucket) []string {
	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.BucketKeysHash())
	}
	return out
}

func TestBucketSelector_ClientSide(t *testing.T) {
	sel := NewBucketSelector(NewScriptEngine())

	buckets, err := sel.Select(context.Background(), bucketTrigger("params.count > 5"), compositeResponse(nil), compositeQuery())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	// Keys follow the declared composite source order: status, then host.
	want := []string{"500#web-1", "500#web-3"}
	if diff := cmp.Diff(want, bucketHashes(buckets)); diff != "" {
		t.Errorf("bucket hashes mismatch (-want +got):\n%s", diff)
	}
	if buckets[0].ParentBucketPath != "composite_agg" {
		t.Errorf("unexpected parent path %q", buckets[0].ParentBucketPath)
	}
}

func TestBucketSelector_BucketIndices(t *testing.T) {
	sel := NewBucketSelector(NewScriptEngine())
	results := compositeResponse(map[string]any{
		"t1": map[string]any{
			"parent_bucket_path": "composite_agg",
			"bucket_indices":     []any{1.0},
		},
	})

	// The script would select nothing; stored indices win.
	buckets, err := sel.Select(context.Background(), bucketTrigger("false"), results, nil)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	// Without the query the composite keys are sorted by name: host, status.
	if diff := cmp.Diff([]string{"web-2#503"}, bucketHashes(buckets)); diff != "" {
		t.Errorf("bucket hashes mismatch (-want +got):\n%s", diff)
	}
}

func TestBucketSelector_Errors(t *testing.T) {
	sel := NewBucketSelector(NewScriptEngine())

	tests := []struct {
		name    string
		trigger *models.BucketLevelTrigger
		results []map[string]any
	}{
		{
			name:    "no aggregations",
			trigger: bucketTrigger("true"),
			results: []map[string]any{{"hits": map[string]any{}}},
		},
		{
			name: "unknown parent path",
			trigger: func() *models.BucketLevelTrigger {
				tr := bucketTrigger("true")
				tr.Condition.ParentBucketPath = "missing"
				return tr
			}(),
			results: compositeResponse(nil),
		},
		{
			name:    "index out of range",
			trigger: bucketTrigger("true"),
			results: compositeResponse(map[string]any{
				"t1": map[string]any{"bucket_indices": []any{9.0}},
			}),
		},
		{
			name:    "script error",
			trigger: bucketTrigger("params.count >"),
			results: compositeResponse(nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sel.Select(context.Background(), tt.trigger, tt.results, nil); err == nil {
				t.Error("Select() expected error")
			}
		})
	}
}

func TestBucketSelector_EmptyResults(t *testing.T) {
	sel := NewBucketSelector(NewScriptEngine())
	buckets, err := sel.Select(context.Background(), bucketTrigger("true"), nil, nil)
	if err != nil || len(buckets) != 0 {
		t.Errorf("Select() = %v, %v; want no buckets", buckets, err)
	}
}

func TestBucketKeys(t *testing.T) {
	tests := []struct {
		name    string
		bucket  map[string]any
		order   []string
		want    []string
		wantErr bool
	}{
		{name: "string key", bucket: map[string]any{"key": "a"}, want: []string{"a"}},
		{name: "integral number key", bucket: map[string]any{"key": 200.0}, want: []string{"200"}},
		{name: "fractional number key", bucket: map[string]any{"key": 1.5}, want: []string{"1.5"}},
		{name: "bool key", bucket: map[string]any{"key": true}, want: []string{"true"}},
		{
			name:   "composite in source order",
			bucket: map[string]any{"key": map[string]any{"b": "2", "a": "1"}},
			order:  []string{"b", "a"},
			want:   []string{"2", "1"},
		},
		{
			name:   "composite sorted without order",
			bucket: map[string]any{"key": map[string]any{"b": "2", "a": "1"}},
			want:   []string{"1", "2"},
		},
		{name: "missing key", bucket: map[string]any{"doc_count": 1.0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bucketKeys(tt.bucket, tt.order)
			if (err != nil) != tt.wantErr {
				t.Fatalf("bucketKeys() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); !tt.wantErr && diff != "" {
				t.Errorf("bucketKeys() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBucketValue(t *testing.T) {
	bucket := map[string]any{
		"key":       "web-1",
		"doc_count": 4.0,
		"avg_cpu":   map[string]any{"value": 0.93},
		"nested":    map[string]any{"inner": map[string]any{"value": 2.0}},
	}

	tests := []struct {
		path string
		want any
	}{
		{"_count", 4.0},
		{"_key", "web-1"},
		{"avg_cpu", 0.93},
		{"nested>inner", 2.0},
		{"nested.inner", 2.0},
		{"missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := bucketValue(bucket, tt.path); got != tt.want {
				t.Errorf("bucketValue(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestBucketsAt_KeyedBuckets(t *testing.T) {
	aggs := map[string]any{
		"by_filter": map[string]any{
			"buckets": map[string]any{
				"errors":   map[string]any{"doc_count": 3.0},
				"warnings": map[string]any{"doc_count": 1.0},
			},
		},
	}
	buckets, err := bucketsAt(aggs, "by_filter")
	if err != nil {
		t.Fatalf("bucketsAt() error = %v", err)
	}
	if len(buckets) != 2 || buckets[0]["key"] != "errors" || buckets[1]["key"] != "warnings" {
		t.Errorf("unexpected keyed buckets: %v", buckets)
	}
}
