package alerting

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// moveLoadSize bounds the live alerts loaded per move.
const moveLoadSize = 10000

// MoveAlerts moves live alerts of a monitor to history as DELETED. With a nil monitor
// (the monitor was deleted) every alert is moved; otherwise only alerts whose trigger is
// no longer part of monitor. It returns the number of alerts moved.
func (r *Runner) MoveAlerts(ctx context.Context, monitorID string, monitor *models.Monitor) (int, error) {
	if r.alerts == nil {
		return 0, nil
	}
	alerts, err := r.alerts.ListByMonitor(ctx, monitorID, moveLoadSize)
	if err != nil {
		return 0, fmt.Errorf("load alerts of monitor %s: %w", monitorID, err)
	}

	now := r.opts.Now()
	moved := 0
	var errs []error
	for _, a := range alerts {
		reason := "Monitor deleted"
		if monitor != nil {
			if _, ok := monitor.TriggerByID(a.TriggerID); ok {
				continue
			}
			reason = fmt.Sprintf("Trigger %s removed from monitor", a.TriggerID)
		}

		prior := a.State
		deleted := a.Clone()
		deleted.MarkDeleted(now, reason)
		if err := r.saveAlert(ctx, alertWrite{alert: deleted, prior: prior}); err != nil {
			errs = append(errs, err)
			continue
		}
		moved++
	}
	if moved > 0 {
		log.Printf("monitor %s: moved %d alerts to history", monitorID, moved)
	}
	return moved, errors.Join(errs...)
}
