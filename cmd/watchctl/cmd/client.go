package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client talks to the BlazeWatch HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client for baseURL authenticating with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// AlertPage is one page of alerts.
type AlertPage struct {
	Items      []*models.Alert `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

// AlertQuery filters an alert listing.
type AlertQuery struct {
	MonitorID string
	State     string
	Severity  string
	Page      int
	PerPage   int
	History   bool
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	if q.MonitorID != "" {
		v.Set("monitor_id", q.MonitorID)
	}
	if q.State != "" {
		v.Set("state", q.State)
	}
	if q.Severity != "" {
		v.Set("severity", q.Severity)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

// ListMonitors returns all monitors.
func (c *Client) ListMonitors(ctx context.Context) ([]*models.Monitor, error) {
	var monitors []*models.Monitor
	if err := c.do(ctx, http.MethodGet, "/api/v1/monitors", nil, nil, &monitors); err != nil {
		return nil, err
	}
	return monitors, nil
}

// ExecuteMonitor runs a stored monitor and returns the raw run result.
func (c *Client) ExecuteMonitor(ctx context.Context, id string, dryrun bool, periodEnd time.Time) (json.RawMessage, error) {
	q := url.Values{}
	if dryrun {
		q.Set("dryrun", "true")
	}
	if !periodEnd.IsZero() {
		q.Set("period_end", periodEnd.UTC().Format(time.RFC3339))
	}
	var result json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/v1/monitors/"+url.PathEscape(id)+"/_execute", q, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListAlerts returns live alerts, or archived alerts when q.History is set.
func (c *Client) ListAlerts(ctx context.Context, q AlertQuery) (*AlertPage, error) {
	path := "/api/v1/alerts"
	if q.History {
		path += "/history"
	}
	var page AlertPage
	if err := c.do(ctx, http.MethodGet, path, q.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Acknowledge acknowledges alerts of a monitor.
func (c *Client) Acknowledge(ctx context.Context, monitorID string, alertIDs []string) (*alerting.AcknowledgeResult, error) {
	body := map[string][]string{"alerts": alertIDs}
	var result alerting.AcknowledgeResult
	path := "/api/v1/monitors/" + url.PathEscape(monitorID) + "/_acknowledge/alerts"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do sends a request and decodes the data field of the response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", config.UserAgent("watchctl"))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	PrintVerbose("%s %s", method, u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
