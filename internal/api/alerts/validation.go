package alerts

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// ValidateState parses a state filter. Empty input means no filter.
func ValidateState(s string) (models.AlertState, error) {
	if s == "" {
		return "", nil
	}
	state := models.ParseAlertState(s)
	if state == "" {
		return "", errors.New("state must be one of ACTIVE, ACKNOWLEDGED, COMPLETED, ERROR, DELETED")
	}
	return state, nil
}

// ValidateSeverity parses a severity filter given as a number or a name.
func ValidateSeverity(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "1", "2", "3", "4", "5", "critical", "high", "medium", "low", "info":
		return models.ParseSeverity(s), nil
	default:
		return "", errors.New("severity must be 1-5 or one of critical, high, medium, low, info")
	}
}

// ParsePaging reads ?page= and ?per_page=. page starts at 1.
func ParsePaging(q url.Values) (page, perPage int, err error) {
	page, perPage = 1, defaultPerPage
	if v := q.Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
	}
	if v := q.Get("per_page"); v != "" {
		perPage, err = strconv.Atoi(v)
		if err != nil || perPage < 1 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if perPage > maxPerPage {
			perPage = maxPerPage
		}
	}
	return page, perPage, nil
}

// ParseFilter builds an alert filter from query parameters.
func ParseFilter(q url.Values) (*models.AlertFilter, int, int, error) {
	state, err := ValidateState(q.Get("state"))
	if err != nil {
		return nil, 0, 0, err
	}
	severity, err := ValidateSeverity(q.Get("severity"))
	if err != nil {
		return nil, 0, 0, err
	}
	page, perPage, err := ParsePaging(q)
	if err != nil {
		return nil, 0, 0, err
	}

	filter := &models.AlertFilter{
		MonitorID: strings.TrimSpace(q.Get("monitor_id")),
		State:     state,
		Severity:  severity,
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, 0, 0, errors.New("since must be an RFC3339 timestamp")
		}
		filter.Since = since
	}
	return filter, page, perPage, nil
}
