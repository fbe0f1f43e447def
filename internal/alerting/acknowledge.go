package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/storage"
)

// AcknowledgeFailure describes an alert that could not be acknowledged.
type AcknowledgeFailure struct {
	ID     string            `json:"id"`
	State  models.AlertState `json:"state"`
	Reason string            `json:"reason"`
}

// AcknowledgeResult is the outcome of an acknowledge request.
type AcknowledgeResult struct {
	Acknowledged []*models.Alert      `json:"acknowledged"`
	Failed       []AcknowledgeFailure `json:"failed"`
	Missing      []string             `json:"missing"`
}

// Acknowledge moves the given ACTIVE alerts of a monitor to ACKNOWLEDGED. Alerts in other
// states are reported as failed; unknown ids, and alerts of other monitors, as missing.
func (r *Runner) Acknowledge(ctx context.Context, monitorID string, alertIDs []string) (*AcknowledgeResult, error) {
	if r.alerts == nil {
		return nil, fmt.Errorf("no alert store configured")
	}
	result := &AcknowledgeResult{
		Acknowledged: []*models.Alert{},
		Failed:       []AcknowledgeFailure{},
		Missing:      []string{},
	}

	seen := make(map[string]struct{}, len(alertIDs))
	for _, id := range alertIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		alert, err := r.alerts.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get alert %s: %w", id, err)
		}
		if alert == nil || alert.MonitorID != monitorID {
			result.Missing = append(result.Missing, id)
			continue
		}
		if alert.State != models.AlertStateActive {
			result.Failed = append(result.Failed, AcknowledgeFailure{
				ID:     id,
				State:  alert.State,
				Reason: acknowledgeRefusal(alert.State),
			})
			continue
		}

		state := alert.State
		if err := alert.Acknowledge(r.opts.Now()); err != nil {
			result.Failed = append(result.Failed, AcknowledgeFailure{ID: id, State: state, Reason: err.Error()})
			continue
		}
		if err := r.alerts.Save(ctx, alert); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				result.Failed = append(result.Failed, AcknowledgeFailure{
					ID:     id,
					State:  state,
					Reason: "alert was modified concurrently, retry the request",
				})
				continue
			}
			return nil, fmt.Errorf("save alert %s: %w", id, err)
		}
		result.Acknowledged = append(result.Acknowledged, alert)
	}
	return result, nil
}

func acknowledgeRefusal(state models.AlertState) string {
	switch state {
	case models.AlertStateAcknowledged:
		return "alert is already acknowledged"
	case models.AlertStateCompleted:
		return "alert has completed"
	case models.AlertStateError:
		return "alert is in error state"
	case models.AlertStateDeleted:
		return "alert has been deleted"
	default:
		return fmt.Sprintf("alert in state %s cannot be acknowledged", state)
	}
}
