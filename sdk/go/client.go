package epicrisksdk

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

// Client is a minimal epicrisk HTTP API client.
type Client struct {
	BaseURL     string
	WorkspaceID string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, workspaceID, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		WorkspaceID: workspaceID,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Evaluation is the scored part of a snapshot (partial).
type Evaluation struct {
	RiskLevel      string   `json:"risk_level"`
	Probability    int      `json:"probability"`
	Band           string   `json:"band"`
	ForecastWindow string   `json:"forecast_window"`
	Reasons        []string `json:"reasons"`
	Confidence     float64  `json:"confidence"`
	Completed      bool     `json:"completed"`
}

// RecoveryAction is one suggested step of a recovery plan.
type RecoveryAction struct {
	ID        string `json:"id"`
	OwnerRole string `json:"owner_role"`
	Priority  int    `json:"priority"`
	Label     string `json:"label"`
}

// RecoveryPlan is the suggested recovery for an epic (partial).
type RecoveryPlan struct {
	SlipType string           `json:"slip_type"`
	Severity string           `json:"severity"`
	Actions  []RecoveryAction `json:"actions"`
}

// Snapshot is one recorded evaluation of an epic.
type Snapshot struct {
	ID               string       `json:"id"`
	WorkspaceID      string       `json:"workspace_id"`
	EpicID           string       `json:"epic_id"`
	EvaluatedAt      time.Time    `json:"evaluated_at"`
	Evaluation       Evaluation   `json:"evaluation"`
	Recovery         RecoveryPlan `json:"recovery"`
	ProbabilityDelta *int         `json:"probability_delta"`
}

// Epic is the API epic model (partial).
type Epic struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	Title          string `json:"title"`
	State          string `json:"state"`
	StatusCategory string `json:"status_category"`
	IsActive       bool   `json:"is_active"`
}

// EpicRisk pairs an epic with its newest snapshot.
type EpicRisk struct {
	Epic   Epic      `json:"epic"`
	Latest *Snapshot `json:"latest"`
}

// Summary aggregates the newest snapshot of each epic.
type Summary struct {
	WorkspaceID        string         `json:"workspace_id"`
	EpicCount          int            `json:"epic_count"`
	ByRiskLevel        map[string]int `json:"by_risk_level"`
	AverageProbability float64        `json:"average_probability"`
}

// Checkin is a weekly owner check-in.
type Checkin struct {
	EpicID      string    `json:"epic_id"`
	WeekStart   time.Time `json:"week_start"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason"`
	SubmittedBy string    `json:"submitted_by"`
}

// CycleReport is the outcome of a rollup and evaluation run (partial).
type CycleReport struct {
	WorkspaceID string `json:"workspace_id"`
	Evaluation  struct {
		Snapshots []Snapshot `json:"snapshots"`
		Failures  []struct {
			EpicID string `json:"epic_id"`
			Error  string `json:"error"`
		} `json:"failures"`
	} `json:"evaluation"`
	Error string `json:"error"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspace_id"`
	EntityID    string         `json:"entity_id"`
	EntityKind  string         `json:"entity_kind"`
	Payload     map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Summary returns the workspace risk summary.
func (c *Client) Summary(ctx context.Context) (Summary, error) {
	var resp Summary
	err := c.do(ctx, http.MethodGet, c.workspacePath("summary"), nil, &resp)
	return resp, err
}

// Epics lists epics with their latest snapshot. riskLevel may be empty.
func (c *Client) Epics(ctx context.Context, riskLevel string) ([]EpicRisk, error) {
	endpoint := c.workspacePath("epics")
	if riskLevel != "" {
		endpoint += "?risk_level=" + url.QueryEscape(riskLevel)
	}
	var resp []EpicRisk
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Risk returns the latest snapshot of an epic.
func (c *Client) Risk(ctx context.Context, epicID string) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodGet, epicPath(epicID, "risk"), nil, &resp)
	return resp, err
}

// Preview evaluates an epic now without recording anything.
func (c *Client) Preview(ctx context.Context, epicID string) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodGet, epicPath(epicID, "preview"), nil, &resp)
	return resp, err
}

// SubmitCheckin records this week's check-in for an epic.
func (c *Client) SubmitCheckin(ctx context.Context, epicID, status, reason string) (Checkin, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Checkin
	err := c.do(ctx, http.MethodPost, epicPath(epicID, "checkins"), body, &resp)
	return resp, err
}

// SyncImport uploads a tracker sync document (JSON or YAML).
func (c *Client) SyncImport(ctx context.Context, doc []byte) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, c.workspacePath("sync"), doc, &resp)
	return resp, err
}

// RunCycle runs the rollup and evaluation for the client's workspace.
func (c *Client) RunCycle(ctx context.Context) (CycleReport, error) {
	var resp CycleReport
	err := c.do(ctx, http.MethodPost, c.workspacePath("cycles"), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.workspacePath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
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

func (c *Client) workspacePath(p string) string {
	return fmt.Sprintf("v0/workspaces/%s/%s", url.PathEscape(c.WorkspaceID), strings.TrimLeft(p, "/"))
}

func epicPath(epicID, p string) string {
	return fmt.Sprintf("v0/epics/%s/%s", url.PathEscape(epicID), p)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
