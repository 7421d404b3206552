// Package workdesksdk is a minimal Workdesk HTTP API client.
package workdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Workdesk server.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// WorkItem represents the API work item model.
type WorkItem struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	ClientName    string  `json:"client_name"`
	Status        string  `json:"status"`
	BackendStatus *string `json:"backend_status,omitempty"`
	Justification *string `json:"justification,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// Progress summarizes chair fill across a work item.
type Progress struct {
	TotalChairs   int    `json:"total_chairs"`
	FilledChairs  int    `json:"filled_chairs"`
	PrimaryTotal  int    `json:"primary_total"`
	PrimaryFilled int    `json:"primary_filled"`
	State         string `json:"state"`
}

// Assignment is a filled chair.
type Assignment struct {
	TeamName           string `json:"team_name"`
	RoleID             string `json:"role_id"`
	RoleName           string `json:"role_name"`
	ChairIndex         int    `json:"chair_index"`
	ChairType          string `json:"chair_type"`
	Notes              string `json:"notes,omitempty"`
	WorkloadPercentage int    `json:"workload_percentage"`
	Person             Person `json:"person"`
}

// Person is a roster entry.
type Person struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Location         string   `json:"location,omitempty"`
	Expertise        []string `json:"expertise,omitempty"`
	BaseCapacityUsed int      `json:"base_capacity_used"`
}

// Candidate is a person annotated with capacity.
type Candidate struct {
	Person            Person `json:"person"`
	CurrentWorkload   int    `json:"current_workload"`
	AvailableCapacity int    `json:"available_capacity"`
	Tier              string `json:"tier"`
}

// Event is a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	WorkItemID string `json:"work_item_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateWorkItem opens a work item for assignment.
func (c *Client) CreateWorkItem(ctx context.Context, kind, clientName string) (WorkItem, error) {
	body := map[string]any{
		"kind":        kind,
		"client_name": clientName,
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, "v0/work-items", body, &resp)
	return resp, err
}

// GetWorkItem fetches a work item by id.
func (c *Client) GetWorkItem(ctx context.Context, id string) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodGet, "v0/work-items/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Assign fills a chair.
func (c *Client) Assign(ctx context.Context, workItemID, roleID string, chairIndex int, personID string, workload int) (Assignment, Progress, error) {
	body := map[string]any{
		"role_id":             roleID,
		"chair_index":         chairIndex,
		"person_id":           personID,
		"workload_percentage": workload,
	}
	var resp struct {
		Assignment Assignment `json:"assignment"`
		Progress   Progress   `json:"progress"`
	}
	endpoint := fmt.Sprintf("v0/work-items/%s/assignments", url.PathEscape(workItemID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Assignment, resp.Progress, err
}

// Unassign clears a chair.
func (c *Client) Unassign(ctx context.Context, workItemID, roleID string, chairIndex int) (Progress, error) {
	var resp struct {
		Progress Progress `json:"progress"`
	}
	endpoint := fmt.Sprintf("v0/work-items/%s/assignments/%s/%d", url.PathEscape(workItemID), url.PathEscape(roleID), chairIndex)
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp.Progress, err
}

// Complete completes a work item; pass a justification when chairs remain open.
func (c *Client) Complete(ctx context.Context, workItemID, justification string) (WorkItem, error) {
	body := map[string]any{"justification": justification}
	var resp WorkItem
	endpoint := fmt.Sprintf("v0/work-items/%s/complete", url.PathEscape(workItemID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Cancel cancels a work item.
func (c *Client) Cancel(ctx context.Context, workItemID, notes string) (WorkItem, error) {
	body := map[string]any{"notes": notes}
	var resp WorkItem
	endpoint := fmt.Sprintf("v0/work-items/%s/cancel", url.PathEscape(workItemID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Candidates searches assignable people for a work item.
func (c *Client) Candidates(ctx context.Context, workItemID, q string, limit int) ([]Candidate, error) {
	endpoint := fmt.Sprintf("v0/work-items/%s/candidates", url.PathEscape(workItemID))
	params := url.Values{}
	if q != "" {
		params.Set("q", q)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Candidate
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
