package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrInconsistentHistory marks a status history with more than one open segment.
var ErrInconsistentHistory = errors.New("status history has more than one open segment")

type StatusCategory string

const (
	CategoryTodo       StatusCategory = "todo"
	CategoryInProgress StatusCategory = "in_progress"
	CategoryReview     StatusCategory = "review"
	CategoryDone       StatusCategory = "done"
)

// NormalizeCategory maps loosely formatted category names onto the four buckets.
// Unknown values normalize to the empty category.
func NormalizeCategory(v string) StatusCategory {
	switch strings.ToLower(strings.TrimSpace(strings.NewReplacer("-", "_", " ", "_").Replace(v))) {
	case "todo", "to_do", "new", "backlog", "open":
		return CategoryTodo
	case "in_progress", "inprogress", "indeterminate", "doing":
		return CategoryInProgress
	case "review", "in_review":
		return CategoryReview
	case "done", "complete", "completed":
		return CategoryDone
	}
	return ""
}

type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type StatusSegment struct {
	Status   string         `json:"status" yaml:"status"`
	Category StatusCategory `json:"category" yaml:"category"`
	From     time.Time      `json:"from" yaml:"from"`
	To       *time.Time     `json:"to,omitempty" yaml:"to,omitempty"`
}

type Epic struct {
	ID             string         `json:"id" yaml:"id"`
	WorkspaceID    string         `json:"workspace_id" yaml:"workspace_id"`
	Key            string         `json:"key,omitempty" yaml:"key"`
	Title          string         `json:"title" yaml:"title"`
	State          string         `json:"state" yaml:"state"`
	StatusCategory StatusCategory `json:"status_category" yaml:"status_category" enum:"todo,in_progress,review,done"`
	IsActive       bool           `json:"is_active" yaml:"is_active"`
	Assignees      []string       `json:"assignees,omitempty" yaml:"assignees"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at" format:"date-time"`
	StartedAt      time.Time      `json:"started_at" yaml:"started_at" format:"date-time"`
	TargetDelivery *time.Time     `json:"target_delivery,omitempty" yaml:"target_delivery" format:"date-time"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty" yaml:"closed_at" format:"date-time"`
	StatusHistory  StatusHistory  `json:"status_history,omitempty" yaml:"status_history"`
}

// Owner is the first assignee, or "" when the epic is unowned.
func (e Epic) Owner() string {
	if len(e.Assignees) == 0 {
		return ""
	}
	return strings.TrimSpace(e.Assignees[0])
}

type Issue struct {
	ID             string         `json:"id" yaml:"id"`
	EpicID         string         `json:"epic_id" yaml:"epic_id"`
	Key            string         `json:"key,omitempty" yaml:"key"`
	Status         string         `json:"status" yaml:"status"`
	StatusCategory StatusCategory `json:"status_category,omitempty" yaml:"status_category"`
	Type           string         `json:"type" yaml:"type"`
	Priority       string         `json:"priority,omitempty" yaml:"priority"`
	Assignee       string         `json:"assignee,omitempty" yaml:"assignee"`
	StoryPoints    *float64       `json:"story_points,omitempty" yaml:"story_points"`
	Fields         map[string]any `json:"fields,omitempty" yaml:"fields"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at" format:"date-time"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"updated_at" format:"date-time"`
	StatusHistory  StatusHistory  `json:"status_history,omitempty" yaml:"status_history"`
}

func (i Issue) IsBug() bool {
	return strings.EqualFold(strings.TrimSpace(i.Type), "bug")
}

// DailyEpicSignal is the per-epic, per-day rollup. (EpicID, Day) is unique.
type DailyEpicSignal struct {
	EpicID            string    `json:"epic_id"`
	WorkspaceID       string    `json:"workspace_id"`
	Day               time.Time `json:"day" format:"date-time"`
	TotalIssues       int       `json:"total_issues"`
	DoneIssues        int       `json:"done_issues"`
	InReviewIssues    int       `json:"in_review_issues"`
	OtherIssues       int       `json:"other_issues"`
	TotalPoints       float64   `json:"total_points"`
	CompletedPoints   float64   `json:"completed_points"`
	StaleReviewCount  int       `json:"stale_review_count"`
	NewIssuesToday    int       `json:"new_issues_today"`
	NewBugsToday      int       `json:"new_bugs_today"`
	DaysSinceLastDone int       `json:"days_since_last_done"`
	ComputedAt        time.Time `json:"computed_at" format:"date-time"`
}

type CheckinStatus string

const (
	CheckinOnTrack   CheckinStatus = "on_track"
	CheckinSlip1To3  CheckinStatus = "slip_1_3"
	CheckinSlip3Plus CheckinStatus = "slip_3_plus"
)

func (s CheckinStatus) Valid() bool {
	switch s {
	case CheckinOnTrack, CheckinSlip1To3, CheckinSlip3Plus:
		return true
	}
	return false
}

// WeeklyCheckin is a human status report. (EpicID, WeekStart) is unique.
type WeeklyCheckin struct {
	EpicID      string        `json:"epic_id"`
	WorkspaceID string        `json:"workspace_id"`
	WeekStart   time.Time     `json:"week_start" format:"date-time"`
	Status      CheckinStatus `json:"status" enum:"on_track,slip_1_3,slip_3_plus"`
	Reason      string        `json:"reason,omitempty"`
	SubmittedBy string        `json:"submitted_by,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at" format:"date-time"`
}

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type OwnerWindow struct {
	StoriesCompleted int `json:"stories_completed"`
	ReopenedCount    int `json:"reopened_count"`
	EpicsOwned       int `json:"epics_owned"`
	EpicsOnTime      int `json:"epics_on_time"`
}

type OwnerMetrics struct {
	Owner          string      `json:"owner"`
	Window30d      OwnerWindow `json:"window_30d"`
	LastActivityAt *time.Time  `json:"last_activity_at,omitempty"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}
