package alerting

import (
	"sort"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// IsActionThrottled reports whether action must be suppressed for alert at now.
// Alerts without a prior execution of the action are never throttled.
func IsActionThrottled(action *models.Action, alert *models.Alert, now time.Time) bool {
	if !action.IsThrottled() || alert == nil {
		return false
	}
	prior, ok := alert.ActionResult(action.ID)
	if !ok || prior.LastExecutionTime == nil {
		return false
	}
	return now.Sub(*prior.LastExecutionTime) < action.Throttle.Duration()
}

// IsPerExecutionThrottled reports whether a per-execution action must be suppressed
// for a run notifying alerts. It is suppressed only when the action is throttled for
// every one of them; alerts that never ran it, or an empty set, let it execute.
func IsPerExecutionThrottled(action *models.Action, alerts []*models.Alert, now time.Time) bool {
	if !action.IsThrottled() || len(alerts) == 0 {
		return false
	}
	for _, a := range alerts {
		if !IsActionThrottled(action, a, now) {
			return false
		}
	}
	return true
}

// ApplyActionResults merges this run's action results into the alert's throttle
// bookkeeping. Executed actions record their execution time and reset the throttled
// count, suppressed ones increment it, and actions that did not run keep their prior result.
func ApplyActionResults(alert *models.Alert, results map[string]*models.ActionRunResult) {
	if len(results) == 0 {
		return
	}
	merged := make([]models.ActionExecutionResult, 0, len(alert.ActionExecutionResults)+len(results))
	known := make(map[string]struct{}, len(alert.ActionExecutionResults))

	for _, prior := range alert.ActionExecutionResults {
		known[prior.ActionID] = struct{}{}
		run, ok := results[prior.ActionID]
		switch {
		case !ok:
			merged = append(merged, prior)
		case run.Throttled:
			prior.ThrottledCount++
			merged = append(merged, prior)
		default:
			merged = append(merged, models.ActionExecutionResult{
				ActionID:          prior.ActionID,
				LastExecutionTime: run.ExecutionTime,
				ThrottledCount:    0,
			})
		}
	}

	for _, id := range sortedKeys(results) {
		if _, ok := known[id]; ok {
			continue
		}
		run := results[id]
		count := 0
		if run.Throttled {
			count = 1
		}
		merged = append(merged, models.ActionExecutionResult{
			ActionID:          id,
			LastExecutionTime: run.ExecutionTime,
			ThrottledCount:    count,
		})
	}
	alert.ActionExecutionResults = merged
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
