package alerting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// BucketSelector picks the buckets of a bucket-level trigger that fired.
type BucketSelector struct {
	evaluator ConditionEvaluator
}

// NewBucketSelector creates a bucket selector that evaluates client-side scripts with evaluator.
func NewBucketSelector(evaluator ConditionEvaluator) *BucketSelector {
	return &BucketSelector{evaluator: evaluator}
}

// Select returns the fired buckets for trigger. When the search response already carries
// aggregations[<trigger id>].bucket_indices those buckets are used as is; otherwise the
// trigger's buckets_path and script are evaluated against every bucket under
// parent_bucket_path. query is the monitor's search query, used to order composite keys.
func (s *BucketSelector) Select(ctx context.Context, trigger *models.BucketLevelTrigger, results []map[string]any, query map[string]any) ([]*models.AggregationResultBucket, error) {
	if len(results) == 0 {
		return nil, nil
	}
	aggs, _ := results[0]["aggregations"].(map[string]any)
	if aggs == nil {
		return nil, fmt.Errorf("search response has no aggregations")
	}

	sel := trigger.Condition
	parentPath := sel.ParentBucketPath
	var indices []int
	useIndices := false
	if selected, ok := aggs[trigger.ID].(map[string]any); ok {
		if raw, ok := selected["bucket_indices"].([]any); ok {
			useIndices = true
			for _, v := range raw {
				n, ok := toInt(v)
				if !ok {
					return nil, fmt.Errorf("invalid bucket index %v", v)
				}
				indices = append(indices, n)
			}
			if p, ok := selected["parent_bucket_path"].(string); ok && p != "" {
				parentPath = p
			}
		}
	}

	buckets, err := bucketsAt(aggs, parentPath)
	if err != nil {
		return nil, err
	}
	order := compositeSourceOrder(query, parentPath)

	var fired []map[string]any
	if useIndices {
		for _, i := range indices {
			if i < 0 || i >= len(buckets) {
				return nil, fmt.Errorf("bucket index %d out of range for %s (%d buckets)", i, parentPath, len(buckets))
			}
			fired = append(fired, buckets[i])
		}
	} else {
		for _, b := range buckets {
			params := make(map[string]any, len(sel.BucketsPath))
			for name, path := range sel.BucketsPath {
				params[name] = bucketValue(b, path)
			}
			ok, err := s.evaluator.Evaluate(ctx, sel.Script, map[string]any{"params": params})
			if err != nil {
				return nil, err
			}
			if ok {
				fired = append(fired, b)
			}
		}
	}

	out := make([]*models.AggregationResultBucket, 0, len(fired))
	for _, b := range fired {
		keys, err := bucketKeys(b, order)
		if err != nil {
			return nil, fmt.Errorf("bucket under %s: %w", parentPath, err)
		}
		out = append(out, &models.AggregationResultBucket{
			ParentBucketPath: parentPath,
			BucketKeys:       keys,
			Bucket:           b,
		})
	}
	return out, nil
}

// bucketsAt walks a ">" separated aggregation path and returns its buckets. Keyed buckets
// (filters aggregations) are returned sorted by key with the key stored in each bucket.
func bucketsAt(aggs map[string]any, path string) ([]map[string]any, error) {
	var node any = aggs
	for _, part := range strings.Split(path, ">") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("aggregation path %q not found", path)
		}
		node, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("aggregation path %q not found", path)
		}
	}
	agg, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("aggregation %q is not an object", path)
	}

	switch raw := agg["buckets"].(type) {
	case []any:
		out := make([]map[string]any, 0, len(raw))
		for _, b := range raw {
			if bm, ok := b.(map[string]any); ok {
				out = append(out, bm)
			}
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			bm, ok := raw[k].(map[string]any)
			if !ok {
				continue
			}
			keyed := make(map[string]any, len(bm)+1)
			for f, v := range bm {
				keyed[f] = v
			}
			keyed["key"] = k
			out = append(out, keyed)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("aggregation %q has no buckets", path)
	}
}

// bucketValue resolves a buckets_path entry: _count, _key, or a sub-aggregation path
// whose single-value metrics resolve to their "value".
func bucketValue(bucket map[string]any, path string) any {
	switch path {
	case "_count":
		return bucket["doc_count"]
	case "_key":
		return bucket["key"]
	}
	var node any = bucket
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '.' || r == '>' }) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[part]
	}
	if m, ok := node.(map[string]any); ok {
		if v, ok := m["value"]; ok {
			return v
		}
	}
	return node
}

// compositeSourceOrder returns the source names of a composite aggregation in declared order.
func compositeSourceOrder(query map[string]any, path string) []string {
	node := query
	for _, part := range strings.Split(path, ">") {
		var aggs map[string]any
		for _, key := range []string{"aggregations", "aggs"} {
			if a, ok := node[key].(map[string]any); ok {
				aggs = a
				break
			}
		}
		next, ok := aggs[part].(map[string]any)
		if !ok {
			return nil
		}
		node = next
	}
	composite, ok := node["composite"].(map[string]any)
	if !ok {
		return nil
	}
	sources, _ := composite["sources"].([]any)
	var order []string
	for _, src := range sources {
		if m, ok := src.(map[string]any); ok {
			for name := range m {
				order = append(order, name)
			}
		}
	}
	return order
}

// bucketKeys returns the ordered key dimensions of a bucket.
func bucketKeys(bucket map[string]any, order []string) ([]string, error) {
	switch key := bucket["key"].(type) {
	case nil:
		return nil, fmt.Errorf("bucket has no key")
	case map[string]any:
		names := order
		if len(names) != len(key) {
			names = make([]string, 0, len(key))
			for k := range key {
				names = append(names, k)
			}
			sort.Strings(names)
		}
		keys := make([]string, 0, len(names))
		for _, n := range names {
			v, ok := key[n]
			if !ok {
				return nil, fmt.Errorf("composite key missing source %q", n)
			}
			keys = append(keys, keyString(v))
		}
		return keys, nil
	default:
		return []string{keyString(key)}, nil
	}
}

func keyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), n == math.Trunc(n)
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
