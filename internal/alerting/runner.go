// Package alerting runs monitors, evaluates their triggers and maintains alert state.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/storage"
)

// InputResolver runs a monitor's inputs for the period [periodStart, periodEnd).
type InputResolver interface {
	Resolve(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time) ([]map[string]any, error)
}

// AlertStore persists live alerts with compare-and-swap on version.
// storage.AlertRepository satisfies it.
type AlertStore interface {
	Get(ctx context.Context, id string) (*models.Alert, error)
	ListByMonitor(ctx context.Context, monitorID string, size int) ([]*models.Alert, error)
	Save(ctx context.Context, alert *models.Alert) error
	Delete(ctx context.Context, id string, version int64) error
}

// HistoryArchiver receives alerts that completed, failed or were deleted.
type HistoryArchiver interface {
	Archive(ctx context.Context, alert *models.Alert) error
}

// RunnerOptions configures the monitor runner.
type RunnerOptions struct {
	// ActionConcurrency bounds how many bucket alerts run their actions at once.
	ActionConcurrency int

	// BucketAlertLoadSize is the number of live alerts loaded for a bucket-level monitor.
	BucketAlertLoadSize int

	// HistoryBackend labels archive metrics.
	HistoryBackend string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultRunnerOptions returns default runner options.
func DefaultRunnerOptions() *RunnerOptions {
	return &RunnerOptions{
		ActionConcurrency:   4,
		BucketAlertLoadSize: 500,
		HistoryBackend:      "sqlite",
	}
}

// RunnerStats tracks runner statistics.
type RunnerStats struct {
	MonitorRuns    atomic.Int64
	TriggerErrors  atomic.Int64
	AlertsSaved    atomic.Int64
	AlertsArchived atomic.Int64
	WriteConflicts atomic.Int64
}

// Runner executes monitors and writes the resulting alert mutations.
type Runner struct {
	inputs     InputResolver
	conditions ConditionEvaluator
	buckets    *BucketSelector
	actions    *ActionExecutor
	alerts     AlertStore
	history    HistoryArchiver
	opts       RunnerOptions
	stats      *RunnerStats
}

// NewRunner creates a monitor runner. alerts and history may be nil for runners that
// only serve dry runs.
func NewRunner(inputs InputResolver, conditions ConditionEvaluator, sender Sender, alerts AlertStore, history HistoryArchiver, opts *RunnerOptions) *Runner {
	if opts == nil {
		opts = DefaultRunnerOptions()
	}
	o := *opts
	if o.ActionConcurrency <= 0 {
		o.ActionConcurrency = 4
	}
	if o.BucketAlertLoadSize <= 0 {
		o.BucketAlertLoadSize = 500
	}
	if o.HistoryBackend == "" {
		o.HistoryBackend = "sqlite"
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	return &Runner{
		inputs:     inputs,
		conditions: conditions,
		buckets:    NewBucketSelector(conditions),
		actions:    NewActionExecutor(sender, o.Now),
		alerts:     alerts,
		history:    history,
		opts:       o,
		stats:      &RunnerStats{},
	}
}

// Stats returns the runner statistics.
func (r *Runner) Stats() *RunnerStats {
	return r.stats
}

// alertWrite is a pending alert mutation together with the state it had when loaded.
// prior is empty for alerts created in this run.
type alertWrite struct {
	alert *models.Alert
	prior models.AlertState
}

// RunMonitor runs monitor for the period [periodStart, periodEnd). Layer failures are
// reported inside the result. With dryrun set, or for monitors that were never saved,
// no alert is written and no notification is sent.
func (r *Runner) RunMonitor(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time, dryrun bool) *models.MonitorRunResult {
	started := time.Now()
	if periodStart.Equal(periodEnd) {
		log.Printf("monitor %s: period start and end are both %s", monitor, periodStart.Format(time.RFC3339))
	}

	result := &models.MonitorRunResult{
		MonitorName:    monitor.Name,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TriggerResults: make(map[string]*models.TriggerRunResult),
	}
	persist := !dryrun && monitor.ID != models.NoID && r.alerts != nil

	if monitor.IsBucketLevel() {
		r.runBucketLevelMonitor(ctx, monitor, result, persist)
	} else {
		r.runQueryLevelMonitor(ctx, monitor, result, persist)
	}

	r.stats.MonitorRuns.Add(1)
	outcome := "ok"
	switch {
	case result.Error != nil || result.InputResults.Error != nil:
		outcome = "error"
	case !persist:
		outcome = "dryrun"
	}
	metrics.MonitorRunsTotal.WithLabelValues(string(monitor.MonitorType), outcome).Inc()
	metrics.MonitorRunDuration.WithLabelValues(string(monitor.MonitorType)).Observe(time.Since(started).Seconds())
	return result
}

func (r *Runner) collectInputs(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time) models.InputRunResults {
	if r.inputs == nil || len(monitor.Inputs) == 0 {
		return models.InputRunResults{Results: []map[string]any{}}
	}
	started := time.Now()
	results, err := r.inputs.Resolve(ctx, monitor, periodStart, periodEnd)
	metrics.InputDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		log.Printf("monitor %s: error collecting inputs: %v", monitor, err)
		return models.InputRunResults{Results: []map[string]any{}, Error: &InputError{Err: err}}
	}
	if results == nil {
		results = []map[string]any{}
	}
	return models.InputRunResults{Results: results}
}

func (r *Runner) runQueryLevelMonitor(ctx context.Context, monitor *models.Monitor, result *models.MonitorRunResult, persist bool) {
	current, err := r.loadQueryLevelAlerts(ctx, monitor)
	if err != nil {
		// Without the live alerts an ERROR alert could duplicate an ACTIVE one.
		log.Printf("monitor %s: error loading alerts: %v", monitor, err)
		result.Error = fmt.Errorf("load alerts: %w", err)
		return
	}

	result.InputResults = r.collectInputs(ctx, monitor, result.PeriodStart, result.PeriodEnd)

	var writes []alertWrite
	for i := range monitor.Triggers {
		t := &monitor.Triggers[i]
		base := t.Base()
		if base == nil {
			continue
		}
		if t.Kind() != models.TriggerKindQueryLevel {
			result.TriggerResults[base.ID] = unsupportedTriggerResult(t)
			continue
		}

		prior := current[base.ID]
		tr, updated := r.runQueryLevelTrigger(ctx, monitor, t.QueryLevel, result, prior, persist)
		result.TriggerResults[base.ID] = tr
		if updated != nil {
			w := alertWrite{alert: updated}
			if prior != nil {
				w.prior = prior.State
			}
			writes = append(writes, w)
		}
	}

	if persist {
		if err := r.saveAlerts(ctx, writes); err != nil {
			log.Printf("monitor %s: error saving alerts: %v", monitor, err)
			result.Error = fmt.Errorf("save alerts: %w", err)
		}
	}
}

func (r *Runner) runQueryLevelTrigger(ctx context.Context, monitor *models.Monitor, trigger *models.QueryLevelTrigger, mr *models.MonitorRunResult, current *models.Alert, persist bool) (*models.TriggerRunResult, *models.Alert) {
	now := r.opts.Now()
	tr := &models.TriggerRunResult{
		TriggerName:   trigger.Name,
		Kind:          models.TriggerKindQueryLevel,
		ActionResults: make(map[string]*models.ActionRunResult),
	}

	alertErr := mr.AlertError(now)
	if alertErr == nil {
		tctx := queryTriggerContext(monitor, trigger, mr, current, nil)
		triggered, err := r.conditions.Evaluate(ctx, trigger.Condition.Script, map[string]any{"ctx": tctx})
		if err != nil {
			log.Printf("monitor %s: trigger %s: error running condition: %v", monitor, trigger.ID, err)
			tr.Error = &ConditionEvaluationError{TriggerID: trigger.ID, Err: err}
			alertErr = tr.AlertError(now)
		} else {
			tr.Triggered = triggered
		}
	}
	r.countTrigger(tr)

	suppress := current != nil && current.IsAcknowledged() && alertErr == nil
	if (tr.Triggered || alertErr != nil) && !suppress {
		actx := queryTriggerContext(monitor, trigger, mr, current, runError(mr, tr))
		for i := range trigger.Actions {
			action := &trigger.Actions[i]
			tr.ActionResults[action.ID] = r.actions.Run(ctx, action, current, actx, !persist)
		}
	}

	return tr, composeQueryLevelAlert(monitor, &trigger.TriggerBase, current, tr, alertErr, now)
}

// composeQueryLevelAlert returns the new state of the trigger's alert, or nil when the
// alert is not changed by this run.
func composeQueryLevelAlert(monitor *models.Monitor, trigger *models.TriggerBase, current *models.Alert, tr *models.TriggerRunResult, alertErr *models.AlertError, now time.Time) *models.Alert {
	switch {
	case alertErr == nil && !tr.Triggered:
		if current == nil {
			return nil
		}
		a := current.Clone()
		ApplyActionResults(a, tr.ActionResults)
		a.SchemaVersion = models.CurrentSchemaVersion
		a.Complete(now)
		return a

	case alertErr == nil && current != nil && current.IsAcknowledged():
		return nil

	case current != nil:
		a := current.Clone()
		ApplyActionResults(a, tr.ActionResults)
		if !failAlert(a, tr.ActionResults, alertErr, now) {
			a.Activate()
		}
		t := now
		a.LastNotificationTime = &t
		a.SchemaVersion = models.CurrentSchemaVersion
		return a

	default:
		a := models.NewAlert(monitor, trigger, now, nil, nil)
		ApplyActionResults(a, tr.ActionResults)
		failAlert(a, tr.ActionResults, alertErr, now)
		return a
	}
}

func (r *Runner) runBucketLevelMonitor(ctx context.Context, monitor *models.Monitor, result *models.MonitorRunResult, persist bool) {
	current, err := r.loadBucketLevelAlerts(ctx, monitor)
	if err != nil {
		log.Printf("monitor %s: error loading alerts: %v", monitor, err)
		result.Error = fmt.Errorf("load alerts: %w", err)
		return
	}

	result.InputResults = r.collectInputs(ctx, monitor, result.PeriodStart, result.PeriodEnd)

	var query map[string]any
	if len(monitor.Inputs) > 0 && monitor.Inputs[0].Search != nil {
		query = monitor.Inputs[0].Search.Query
	}

	var writes []alertWrite
	for i := range monitor.Triggers {
		t := &monitor.Triggers[i]
		base := t.Base()
		if base == nil {
			continue
		}
		if t.Kind() != models.TriggerKindBucketLevel {
			result.TriggerResults[base.ID] = unsupportedTriggerResult(t)
			continue
		}

		tr, w := r.runBucketLevelTrigger(ctx, monitor, t.BucketLevel, result, query, current[base.ID], persist)
		result.TriggerResults[base.ID] = tr
		writes = append(writes, w...)
	}

	if persist {
		if err := r.saveAlerts(ctx, writes); err != nil {
			log.Printf("monitor %s: error saving alerts: %v", monitor, err)
			result.Error = fmt.Errorf("save alerts: %w", err)
		}
	}
}

// bucketAlertWork is one alert and the actions it runs; actions of one alert run serially
// so its throttle bookkeeping has a single writer.
type bucketAlertWork struct {
	alert    *models.Alert
	category models.AlertCategory
	results  map[string]*models.ActionRunResult
}

func (r *Runner) runBucketLevelTrigger(ctx context.Context, monitor *models.Monitor, trigger *models.BucketLevelTrigger, mr *models.MonitorRunResult, query map[string]any, current map[string]*models.Alert, persist bool) (*models.TriggerRunResult, []alertWrite) {
	now := r.opts.Now()
	tr := &models.TriggerRunResult{
		TriggerName:              trigger.Name,
		Kind:                     models.TriggerKindBucketLevel,
		ActionResults:            make(map[string]*models.ActionRunResult),
		AggregationResultBuckets: make(map[string]*models.AggregationResultBucket),
		BucketActionResults:      make(map[string]map[string]*models.ActionRunResult),
	}

	runErr := mr.AlertError(now)
	var buckets []*models.AggregationResultBucket
	if runErr == nil {
		selected, err := r.buckets.Select(ctx, trigger, mr.InputResults.Results, query)
		if err != nil {
			log.Printf("monitor %s: trigger %s: error selecting buckets: %v", monitor, trigger.ID, err)
			tr.Error = &ConditionEvaluationError{TriggerID: trigger.ID, Err: err}
			runErr = tr.AlertError(now)
		} else {
			buckets = selected
		}
	}
	for _, b := range buckets {
		tr.AggregationResultBuckets[b.BucketKeysHash()] = b
	}
	tr.Triggered = len(tr.AggregationResultBuckets) > 0
	r.countTrigger(tr)

	categorized := Reconcile(monitor, &trigger.TriggerBase, current, buckets, now, runErr)
	if runErr != nil && len(current) == 0 {
		categorized[models.AlertCategoryNew] = append(categorized[models.AlertCategoryNew],
			models.NewAlert(monitor, &trigger.TriggerBase, now, runErr, nil))
	}
	for category, alerts := range categorized {
		metrics.AlertsReconciledTotal.WithLabelValues(string(category)).Add(float64(len(alerts)))
	}

	deduped := categorized[models.AlertCategoryDeduped]
	created := categorized[models.AlertCategoryNew]
	completed := categorized[models.AlertCategoryCompleted]

	// New alerts get their ids before actions run so templates can reference them.
	// A failed insert leaves the id empty; saveAlerts inserts the alert again after the
	// actions ran.
	if persist {
		for _, a := range created {
			if err := r.alerts.Save(ctx, a); err != nil {
				log.Printf("monitor %s: trigger %s: error saving new alert: %v", monitor, trigger.ID, err)
			}
		}
	}

	failed := runErr != nil
	errForCtx := runError(mr, tr)
	work := r.planBucketActions(trigger, categorized, failed)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ActionConcurrency)
	for _, w := range work {
		g.Go(func() error {
			for i := range trigger.Actions {
				action := &trigger.Actions[i]
				if !actionableFor(action, w.category) {
					continue
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				var d, n, c []*models.Alert
				switch w.category {
				case models.AlertCategoryDeduped:
					d = []*models.Alert{w.alert}
				case models.AlertCategoryNew:
					n = []*models.Alert{w.alert}
				case models.AlertCategoryCompleted:
					c = []*models.Alert{w.alert}
				}
				actx := bucketTriggerContext(monitor, trigger, mr, d, n, c, w.alert, errForCtx)
				w.results[action.ID] = r.actions.Run(gctx, action, w.alert, actx, !persist)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("monitor %s: trigger %s: per-alert actions interrupted: %v", monitor, trigger.ID, err)
	}

	// Per-execution actions run once for the alerts that are not acknowledged and are
	// recorded on every one of them still firing.
	liveDeduped := actionable(deduped, failed)
	liveCreated := actionable(created, failed)
	liveCompleted := actionable(completed, failed)
	firing := append(append([]*models.Alert{}, liveDeduped...), liveCreated...)
	var perExecution map[string]*models.ActionRunResult
	if len(firing)+len(liveCompleted) > 0 {
		actx := bucketTriggerContext(monitor, trigger, mr, liveDeduped, liveCreated, liveCompleted, nil, errForCtx)
		for i := range trigger.Actions {
			action := &trigger.Actions[i]
			if action.ExecutionPolicy().ActionExecutionScope.PerExecution == nil {
				continue
			}
			if perExecution == nil {
				perExecution = make(map[string]*models.ActionRunResult)
			}
			perExecution[action.ID] = r.actions.RunOnce(ctx, action, firing, actx, !persist)
		}
	}
	for id, res := range perExecution {
		tr.ActionResults[id] = res
	}

	results := make(map[*models.Alert]map[string]*models.ActionRunResult)
	for _, w := range work {
		if len(w.results) > 0 {
			results[w.alert] = w.results
		}
	}
	if len(perExecution) > 0 {
		for _, a := range firing {
			merged := results[a]
			if merged == nil {
				merged = make(map[string]*models.ActionRunResult, len(perExecution))
				results[a] = merged
			}
			for id, res := range perExecution {
				merged[id] = res
			}
		}
	}
	for category, alerts := range categorized {
		for _, a := range alerts {
			if res, ok := results[a]; ok {
				applyBucketResults(a, category, res, now)
				tr.BucketActionResults[a.BucketKeysHash()] = res
			}
		}
	}

	writes := make([]alertWrite, 0, len(deduped)+len(created)+len(completed))
	for _, a := range deduped {
		writes = append(writes, alertWrite{alert: a, prior: priorState(current, a)})
	}
	for _, a := range created {
		writes = append(writes, alertWrite{alert: a})
	}
	for _, a := range completed {
		writes = append(writes, alertWrite{alert: a, prior: priorState(current, a)})
	}
	return tr, writes
}

// applyBucketResults records action results on a. Failed actions move firing alerts to
// ERROR; completed alerts only keep the errors in their history.
func applyBucketResults(a *models.Alert, category models.AlertCategory, results map[string]*models.ActionRunResult, now time.Time) {
	ApplyActionResults(a, results)
	if category != models.AlertCategoryCompleted {
		failAlert(a, results, nil, now)
		return
	}
	for _, e := range actionErrors(results, now) {
		a.RecordError(e)
	}
}

// actionable drops acknowledged alerts unless the run failed.
func actionable(alerts []*models.Alert, failed bool) []*models.Alert {
	if failed {
		return alerts
	}
	out := make([]*models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if !a.IsAcknowledged() {
			out = append(out, a)
		}
	}
	return out
}

// planBucketActions returns the alerts that run at least one per-alert action.
// Acknowledged alerts only run actions when the run failed.
func (r *Runner) planBucketActions(trigger *models.BucketLevelTrigger, categorized map[models.AlertCategory][]*models.Alert, failed bool) []*bucketAlertWork {
	var work []*bucketAlertWork
	for _, category := range []models.AlertCategory{models.AlertCategoryDeduped, models.AlertCategoryNew, models.AlertCategoryCompleted} {
		for _, a := range categorized[category] {
			if a.IsAcknowledged() && !failed {
				continue
			}
			for i := range trigger.Actions {
				if actionableFor(&trigger.Actions[i], category) {
					work = append(work, &bucketAlertWork{
						alert:    a,
						category: category,
						results:  make(map[string]*models.ActionRunResult),
					})
					break
				}
			}
		}
	}
	return work
}

func actionableFor(action *models.Action, category models.AlertCategory) bool {
	scope := action.ExecutionPolicy().ActionExecutionScope
	if scope.PerAlert == nil {
		return false
	}
	for _, c := range scope.PerAlert.ActionableAlerts {
		if c == category {
			return true
		}
	}
	return false
}

func priorState(current map[string]*models.Alert, a *models.Alert) models.AlertState {
	if prior, ok := current[a.BucketKeysHash()]; ok {
		return prior.State
	}
	return ""
}

func unsupportedTriggerResult(t *models.Trigger) *models.TriggerRunResult {
	return &models.TriggerRunResult{
		TriggerName:   t.Base().Name,
		Kind:          t.Kind(),
		Error:         errUnsupportedTrigger(string(t.Kind())),
		ActionResults: map[string]*models.ActionRunResult{},
	}
}

func (r *Runner) countTrigger(tr *models.TriggerRunResult) {
	outcome := "not_triggered"
	switch {
	case tr.Error != nil:
		outcome = "error"
		r.stats.TriggerErrors.Add(1)
	case tr.Triggered:
		outcome = "triggered"
	}
	metrics.TriggerEvaluationsTotal.WithLabelValues(string(tr.Kind), outcome).Inc()
}

// runError is the error exposed to action templates as ctx.error.
func runError(mr *models.MonitorRunResult, tr *models.TriggerRunResult) error {
	switch {
	case mr.Error != nil:
		return mr.Error
	case mr.InputResults.Error != nil:
		return mr.InputResults.Error
	default:
		return tr.Error
	}
}

// actionErrors returns the alert errors of failed actions ordered by action id.
func actionErrors(results map[string]*models.ActionRunResult, now time.Time) []*models.AlertError {
	var errs []*models.AlertError
	for _, id := range sortedKeys(results) {
		if e := results[id].AlertError(now); e != nil {
			errs = append(errs, e)
		}
	}
	return errs
}

// failAlert moves a to ERROR with alertErr, or with the first failed action when
// alertErr is nil. Other action errors go to the history first, so the error message
// is always the newest history entry. It reports whether a failed.
func failAlert(a *models.Alert, results map[string]*models.ActionRunResult, alertErr *models.AlertError, now time.Time) bool {
	errs := actionErrors(results, now)
	if alertErr == nil && len(errs) > 0 {
		alertErr, errs = errs[0], errs[1:]
	}
	for _, e := range errs {
		a.RecordError(e)
	}
	if alertErr == nil {
		return false
	}
	a.Fail(alertErr)
	return true
}

func (r *Runner) loadQueryLevelAlerts(ctx context.Context, monitor *models.Monitor) (map[string]*models.Alert, error) {
	current := make(map[string]*models.Alert)
	if r.alerts == nil || monitor.ID == models.NoID {
		return current, nil
	}
	// One live alert per trigger is expected; fetch two per trigger to notice duplicates.
	alerts, err := r.alerts.ListByMonitor(ctx, monitor.ID, len(monitor.Triggers)*2)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if _, dup := current[a.TriggerID]; dup {
			log.Printf("monitor %s: found multiple alerts for trigger %s", monitor, a.TriggerID)
			continue
		}
		current[a.TriggerID] = a
	}
	return current, nil
}

func (r *Runner) loadBucketLevelAlerts(ctx context.Context, monitor *models.Monitor) (map[string]map[string]*models.Alert, error) {
	current := make(map[string]map[string]*models.Alert)
	if r.alerts == nil || monitor.ID == models.NoID {
		return current, nil
	}
	alerts, err := r.alerts.ListByMonitor(ctx, monitor.ID, r.opts.BucketAlertLoadSize)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		byHash := current[a.TriggerID]
		if byHash == nil {
			byHash = make(map[string]*models.Alert)
			current[a.TriggerID] = byHash
		}
		hash := a.BucketKeysHash()
		if _, dup := byHash[hash]; dup {
			log.Printf("monitor %s: found multiple alerts for trigger %s bucket %q", monitor, a.TriggerID, hash)
			continue
		}
		byHash[hash] = a
	}
	return current, nil
}

// saveAlerts writes every mutation and returns the joined errors of those that failed.
func (r *Runner) saveAlerts(ctx context.Context, writes []alertWrite) error {
	var errs []error
	for _, w := range writes {
		if err := r.saveAlert(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// saveAlert writes one mutation. A version conflict is retried once against the latest
// stored alert; a second conflict is returned.
func (r *Runner) saveAlert(ctx context.Context, w alertWrite) error {
	err := r.writeAlert(ctx, w)
	if !errors.Is(err, storage.ErrVersionConflict) {
		return err
	}
	r.stats.WriteConflicts.Add(1)
	metrics.AlertWriteConflictsTotal.Inc()

	latest, gerr := r.alerts.Get(ctx, w.alert.ID)
	if gerr != nil {
		return fmt.Errorf("reload alert %s: %w", w.alert.ID, gerr)
	}
	if latest == nil {
		log.Printf("alert %s was removed concurrently, dropping update", w.alert.ID)
		return nil
	}
	rebased := rebase(w.alert, latest)
	if err := r.writeAlert(ctx, alertWrite{alert: rebased, prior: latest.State}); err != nil {
		return fmt.Errorf("save alert %s after conflict: %w", w.alert.ID, err)
	}
	*w.alert = *rebased
	return nil
}

// rebase applies ours onto the latest stored version. A concurrent acknowledgement wins
// over an alert this run kept active.
func rebase(ours, latest *models.Alert) *models.Alert {
	out := ours.Clone()
	out.Version = latest.Version
	if latest.IsAcknowledged() && ours.State == models.AlertStateActive {
		out.State = models.AlertStateAcknowledged
		out.AcknowledgedTime = latest.AcknowledgedTime
	}
	return out
}

func (r *Runner) writeAlert(ctx context.Context, w alertWrite) error {
	a := w.alert
	switch a.State {
	case models.AlertStateActive, models.AlertStateAcknowledged, models.AlertStateError:
		if err := r.alerts.Save(ctx, a); err != nil {
			return err
		}
		r.stats.AlertsSaved.Add(1)
		if a.State == models.AlertStateError && w.prior != models.AlertStateError {
			return r.archive(ctx, a)
		}
		return nil

	case models.AlertStateCompleted, models.AlertStateDeleted:
		if err := r.archive(ctx, a); err != nil {
			return err
		}
		if a.ID == models.NoID {
			return nil
		}
		return r.alerts.Delete(ctx, a.ID, a.Version)

	default:
		return fmt.Errorf("unexpected alert state %q for alert %s", a.State, a.ID)
	}
}

func (r *Runner) archive(ctx context.Context, a *models.Alert) error {
	if r.history == nil {
		return nil
	}
	if err := r.history.Archive(ctx, a); err != nil {
		metrics.StorageErrors.WithLabelValues("archive", r.opts.HistoryBackend).Inc()
		return fmt.Errorf("archive alert %s: %w", a.ID, err)
	}
	r.stats.AlertsArchived.Add(1)
	metrics.HistoryArchivedTotal.WithLabelValues(r.opts.HistoryBackend).Inc()
	return nil
}
