package flowlinesdk

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

// Client is a minimal Flowline HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Issue represents the API issue model.
type Issue struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	StatusID    string  `json:"status_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Transition is one edge of a project workflow.
type Transition struct {
	ID           int64  `json:"id"`
	ProjectID    string `json:"project_id"`
	FromStatusID string `json:"from_status_id"`
	ToStatusID   string `json:"to_status_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// WorkflowReport is the validator's verdict on a workflow graph.
type WorkflowReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Grant describes the caller's standing on the client's project.
type Grant struct {
	UserID      string   `json:"user_id"`
	GlobalRole  string   `json:"global_role"`
	ProjectRole string   `json:"project_role,omitempty"`
	Permissions []string `json:"permissions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateIssue creates an issue at the project's default status.
func (c *Client) CreateIssue(ctx context.Context, title, description string) (Issue, error) {
	body := map[string]any{
		"title": title,
	}
	if description != "" {
		body["description"] = description
	}
	var resp Issue
	err := c.do(ctx, http.MethodPost, c.projectPath("issues"), body, &resp)
	return resp, err
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, id string) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodGet, c.projectPath("issues/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Issues lists issues, optionally filtered by status.
func (c *Client) Issues(ctx context.Context, statusID string, limit int) ([]Issue, error) {
	endpoint := c.projectPath("issues")
	q := url.Values{}
	if statusID != "" {
		q.Set("status_id", statusID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Issue
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AvailableTransitions returns the edges leaving the issue's current status.
func (c *Client) AvailableTransitions(ctx context.Context, issueID string) ([]Transition, error) {
	var resp []Transition
	endpoint := c.projectPath(fmt.Sprintf("issues/%s/transitions", url.PathEscape(issueID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PerformTransition moves an issue along one workflow edge.
func (c *Client) PerformTransition(ctx context.Context, issueID string, transitionID int64) (Issue, error) {
	body := map[string]any{"transition_id": transitionID}
	var resp Issue
	endpoint := c.projectPath(fmt.Sprintf("issues/%s/transitions", url.PathEscape(issueID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Transitions lists the project's whole workflow graph.
func (c *Client) Transitions(ctx context.Context) ([]Transition, error) {
	var resp []Transition
	err := c.do(ctx, http.MethodGet, c.projectPath("workflow/transitions"), nil, &resp)
	return resp, err
}

// CreateTransition adds one workflow edge.
func (c *Client) CreateTransition(ctx context.Context, from, to, name string) (Transition, error) {
	body := map[string]any{
		"from_status_id": from,
		"to_status_id":   to,
		"name":           name,
	}
	var resp Transition
	err := c.do(ctx, http.MethodPost, c.projectPath("workflow/transitions"), body, &resp)
	return resp, err
}

// DeleteTransition removes a workflow edge.
func (c *Client) DeleteTransition(ctx context.Context, transitionID int64) error {
	endpoint := c.projectPath(fmt.Sprintf("workflow/transitions/%d", transitionID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ValidateWorkflow lints the project's workflow graph.
func (c *Client) ValidateWorkflow(ctx context.Context) (WorkflowReport, error) {
	var resp WorkflowReport
	err := c.do(ctx, http.MethodGet, c.projectPath("workflow/validate"), nil, &resp)
	return resp, err
}

// ApplyDefaultWorkflow writes the configured default transition set to the
// project. The server does not deduplicate; check the graph first.
func (c *Client) ApplyDefaultWorkflow(ctx context.Context) ([]Transition, error) {
	var resp []Transition
	err := c.do(ctx, http.MethodPost, c.projectPath("workflow/defaults"), nil, &resp)
	return resp, err
}

// Events returns recent project events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MyPermissions returns the caller's effective role and permissions on the
// client's project.
func (c *Client) MyPermissions(ctx context.Context) (Grant, error) {
	var resp Grant
	err := c.do(ctx, http.MethodGet, c.projectPath("me/permissions"), nil, &resp)
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
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

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
