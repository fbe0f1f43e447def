// Package search runs monitor inputs against OpenSearch.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go"
	"github.com/opensearch-project/opensearch-go/opensearchapi"
)

// DefaultInputTimeout bounds one monitor's input resolution.
const DefaultInputTimeout = 30 * time.Second

// Config holds OpenSearch connection settings.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// Client wraps the OpenSearch client.
type Client struct {
	client *opensearch.Client
}

// NewClient creates an OpenSearch client. No request is made until the first search.
func NewClient(cfg *Config) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("at least one opensearch address is required")
	}
	osCfg := opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.InsecureSkipVerify {
		osCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for self-signed clusters
		}
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return &Client{client: client}, nil
}

// Search runs body against indices and returns the decoded response.
func (c *Client) Search(ctx context.Context, indices []string, body []byte) (map[string]any, error) {
	req := opensearchapi.SearchRequest{
		Index:             indices,
		Body:              bytes.NewReader(body),
		IgnoreUnavailable: opensearchapi.BoolPtr(true),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("search request failed with status %s: %s", res.Status(), bytes.TrimSpace(msg))
	}

	var response map[string]any
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return response, nil
}

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("ping opensearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping opensearch: status %s", res.Status())
	}
	return nil
}
