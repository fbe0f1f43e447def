package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Searcher runs a search request body against indices.
type Searcher interface {
	Search(ctx context.Context, indices []string, body []byte) (map[string]any, error)
}

// Resolver resolves monitor inputs by running their search queries.
type Resolver struct {
	searcher Searcher
	timeout  time.Duration
}

// NewResolver creates a resolver. A non-positive timeout uses DefaultInputTimeout.
func NewResolver(searcher Searcher, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultInputTimeout
	}
	return &Resolver{searcher: searcher, timeout: timeout}
}

// Resolve runs every input of monitor for [periodStart, periodEnd) and returns one
// response per input. Queries may reference the period as {{period_start}} and
// {{period_end}}, both in epoch milliseconds.
func (r *Resolver) Resolve(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]map[string]any, 0, len(monitor.Inputs))
	for i, in := range monitor.Inputs {
		if in.Search == nil {
			return nil, fmt.Errorf("unsupported input at index %d", i)
		}
		body, err := RenderQuery(in.Search.Query, periodStart, periodEnd)
		if err != nil {
			return nil, fmt.Errorf("render query of input %d: %w", i, err)
		}
		res, err := r.searcher.Search(ctx, in.Search.Indices, body)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("input %d timed out after %s: %w", i, r.timeout, err)
			}
			return nil, fmt.Errorf("search input %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// RenderQuery encodes query as JSON and expands the period placeholders.
func RenderQuery(query map[string]any, periodStart, periodEnd time.Time) ([]byte, error) {
	if query == nil {
		query = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(query); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	raw := buf.String()
	if !strings.Contains(raw, "{{") {
		return bytes.TrimSpace(buf.Bytes()), nil
	}

	start, end := periodStart.UnixMilli(), periodEnd.UnixMilli()
	tmpl, err := template.New("query").Funcs(template.FuncMap{
		"period_start": func() int64 { return start },
		"period_end":   func() int64 { return end },
	}).Parse(raw)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, map[string]any{"period_start": start, "period_end": end}); err != nil {
		return nil, err
	}
	if !json.Valid(out.Bytes()) {
		return nil, fmt.Errorf("rendered query is not valid JSON")
	}
	return bytes.TrimSpace(out.Bytes()), nil
}
