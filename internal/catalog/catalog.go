// Package catalog queries the university's course API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"common-grounds-backend/internal/config"
)

// Section is one course section returned by the external catalog
type Section struct {
	ExternalID    string `json:"id"`
	Subject       string `json:"subject"`
	CatalogNumber string `json:"catalog_nbr"`
	Term          string `json:"term"`
	Title         string `json:"descr"`
	Instructor    string `json:"instructor"`
	MeetingTimes  string `json:"meeting_times"`
}

// Client calls the external course catalog with a bounded timeout
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a catalog client
func NewClient(cfg config.CatalogConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

// Search queries the catalog for sections. Term is optional.
func (c *Client) Search(ctx context.Context, subject, catalogNumber, term string) ([]Section, error) {
	q := url.Values{}
	q.Set("subject", subject)
	q.Set("catalog_nbr", catalogNumber)
	if term != "" {
		q.Set("term", term)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var sections []Section
	if err := json.NewDecoder(resp.Body).Decode(&sections); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return sections, nil
}
