package alerting

import (
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Reconcile classifies the alerts of a bucket-level trigger for one run.
//
// current holds the trigger's live alerts keyed by bucket keys hash and buckets the
// buckets that fired in this run. Every fired bucket ends up NEW or DEDUPED and every
// current alert DEDUPED or COMPLETED. A deduped alert in ERROR becomes ACTIVE again on a
// healthy run. Leftover alerts are completed at now, or moved to ERROR when runErr is set. Returned alerts are copies; current and buckets are not
// modified.
func Reconcile(monitor *models.Monitor, trigger *models.TriggerBase, current map[string]*models.Alert, buckets []*models.AggregationResultBucket, now time.Time, runErr *models.AlertError) map[models.AlertCategory][]*models.Alert {
	remaining := make(map[string]*models.Alert, len(current))
	for hash, a := range current {
		remaining[hash] = a
	}

	deduped := []*models.Alert{}
	created := []*models.Alert{}
	seen := make(map[string]struct{}, len(buckets))

	for _, b := range buckets {
		hash := b.BucketKeysHash()
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		snapshot := cloneBucket(b)
		if existing, ok := remaining[hash]; ok {
			delete(remaining, hash)
			a := existing.Clone()
			t := now
			a.LastNotificationTime = &t
			a.AggregationResultBucket = snapshot
			if runErr == nil && a.State == models.AlertStateError {
				a.Activate()
			}
			deduped = append(deduped, a)
			continue
		}
		created = append(created, models.NewAlert(monitor, trigger, now, nil, snapshot))
	}

	completed := []*models.Alert{}
	for _, hash := range sortedKeys(remaining) {
		a := remaining[hash].Clone()
		if runErr != nil {
			a.Fail(runErr)
		} else {
			a.Complete(now)
		}
		completed = append(completed, a)
	}

	return map[models.AlertCategory][]*models.Alert{
		models.AlertCategoryDeduped:   deduped,
		models.AlertCategoryNew:       created,
		models.AlertCategoryCompleted: completed,
	}
}

func cloneBucket(b *models.AggregationResultBucket) *models.AggregationResultBucket {
	c := &models.AggregationResultBucket{
		ParentBucketPath: b.ParentBucketPath,
		BucketKeys:       append([]string(nil), b.BucketKeys...),
		Bucket:           make(map[string]any, len(b.Bucket)),
	}
	for k, v := range b.Bucket {
		c.Bucket[k] = v
	}
	return c
}
