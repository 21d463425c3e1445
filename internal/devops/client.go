// Package devops is a thin client for the remote work item tracker's REST API.
// The tracker is consumed as a black box: this package only knows the three
// calls the engine needs and how to classify their failures.
package devops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

const apiVersion = "7.0"

// Client is an authenticated work item tracker client.
type Client struct {
	baseURL    string
	project    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client for the tracker at baseURL (org URL) and project.
// token is sent as a bearer token on every request.
func NewClient(ctx context.Context, baseURL, project, token string, timeout time.Duration) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		project:    project,
		httpClient: oauth2.NewClient(ctx, ts),
		timeout:    timeout,
	}
}

// workItemResponse is the tracker's work item payload.
type workItemResponse struct {
	ID     int `json:"id"`
	Fields struct {
		Title         string  `json:"System.Title"`
		WorkItemType  string  `json:"System.WorkItemType"`
		CompletedWork float64 `json:"Microsoft.VSTS.Scheduling.CompletedWork"`
		RemainingWork float64 `json:"Microsoft.VSTS.Scheduling.RemainingWork"`
	} `json:"fields"`
}

// searchResponse is the tracker's paged search payload.
type searchResponse struct {
	Count   int `json:"count"`
	Results []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"results"`
}

// GetWorkItem fetches the current remote snapshot of a work item.
func (c *Client) GetWorkItem(ctx context.Context, id int) (*entry.WorkItem, error) {
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/%d?api-version=%s",
		c.baseURL, url.PathEscape(c.project), id, apiVersion)

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}

	var wi workItemResponse
	if err := json.Unmarshal(body, &wi); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decoding work item response: %w", err))
	}

	return &entry.WorkItem{
		ID:            wi.ID,
		Title:         wi.Fields.Title,
		Type:          entry.ParseWorkItemType(wi.Fields.WorkItemType),
		CompletedWork: wi.Fields.CompletedWork,
		RemainingWork: wi.Fields.RemainingWork,
		LastSyncedAt:  time.Now().Unix(),
	}, nil
}

// SearchWorkItems queries the tracker for work items matching query by id or
// title substring. page is 1-based. Type filtering happens in the caller; the
// tracker returns whatever matches.
func (c *Client) SearchWorkItems(ctx context.Context, query string, page, pageSize int) ([]entry.WorkItemSummary, bool, error) {
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * pageSize

	payload, err := json.Marshal(map[string]any{
		"searchText": query,
		"$skip":      skip,
		"$top":       pageSize,
	})
	if err != nil {
		return nil, false, errors.NewInternal(err)
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/search/workitemsearchresults?api-version=%s",
		c.baseURL, url.PathEscape(c.project), apiVersion)

	body, err := c.do(ctx, http.MethodPost, endpoint, payload, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, false, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, false, errors.NewInternal(fmt.Errorf("decoding search response: %w", err))
	}

	items := make([]entry.WorkItemSummary, 0, len(sr.Results))
	for _, r := range sr.Results {
		items = append(items, entry.WorkItemSummary{
			ID:    r.ID,
			Title: r.Title,
			Type:  entry.ParseWorkItemType(r.Type),
		})
	}
	hasMore := skip+len(sr.Results) < sr.Count
	return items, hasMore, nil
}

// UpdateWork pushes new completed/remaining work values for a work item.
// idempotencyToken lets the tracker drop a duplicate delivery of the same
// update after a lost response.
func (c *Client) UpdateWork(ctx context.Context, id int, completedWork, remainingWork float64, idempotencyToken string) error {
	patch := []map[string]any{
		{"op": "add", "path": "/fields/Microsoft.VSTS.Scheduling.CompletedWork", "value": completedWork},
		{"op": "add", "path": "/fields/Microsoft.VSTS.Scheduling.RemainingWork", "value": remainingWork},
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return errors.NewInternal(err)
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/%d?api-version=%s",
		c.baseURL, url.PathEscape(c.project), id, apiVersion)

	_, err = c.do(ctx, http.MethodPatch, endpoint, payload, map[string]string{
		"Content-Type":      "application/json-patch+json",
		"X-Idempotency-Key": idempotencyToken,
	})
	return err
}

// do performs one bounded HTTP request and classifies failures:
// network errors and timeouts are transient, 5xx is transient, 404 is
// not-found, any other non-2xx is permanent.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransient(fmt.Errorf("tracker request failed: %w", err))
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, errors.NewTransient(fmt.Errorf("reading tracker response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewNotFound(endpoint)
	case resp.StatusCode >= 500:
		return nil, errors.NewTransient(fmt.Errorf("tracker error %d: %s", resp.StatusCode, string(body)))
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("tracker rejected request (%d): %s", resp.StatusCode, string(body)))
	}
}
