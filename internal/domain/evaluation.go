package domain

import "time"

type RiskLevel string

const (
	RiskOnTrack  RiskLevel = "on_track"
	RiskAtRisk   RiskLevel = "at_risk"
	RiskOffTrack RiskLevel = "off_track"
)

// Rank orders levels from healthiest to worst.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskAtRisk:
		return 1
	case RiskOffTrack:
		return 2
	}
	return 0
}

type Genome struct {
	Workload Workload `json:"workload"`
	Scope    Scope    `json:"scope"`
	Movement Movement `json:"movement"`
	Hygiene  Hygiene  `json:"hygiene"`
}

type Workload struct {
	TotalIssues int `json:"total_issues"`
	Todo        int `json:"todo"`
	InProgress  int `json:"in_progress"`
	InReview    int `json:"in_review"`
	Done        int `json:"done"`
}

type Scope struct {
	TotalPoints     float64  `json:"total_points"`
	CompletedPoints float64  `json:"completed_points"`
	AddedLast7Days  int      `json:"added_last_7_days"`
	NewIssuesToday  int      `json:"new_issues_today"`
	CompletionRatio float64  `json:"completion_ratio"`
	DaysToTarget    *float64 `json:"days_to_target,omitempty"`
}

type Movement struct {
	DaysSinceMovement *float64 `json:"days_since_movement,omitempty"`
	DaysSinceLastDone *int     `json:"days_since_last_done,omitempty"`
	DaysSinceCheckin  *float64 `json:"days_since_checkin,omitempty"`
}

type Hygiene struct {
	Unestimated      int `json:"unestimated"`
	Unassigned       int `json:"unassigned"`
	Bugs             int `json:"bugs"`
	OpenBugs         int `json:"open_bugs"`
	StaleReviewCount int `json:"stale_review_count"`
	LongRunning      int `json:"long_running"`
}

// Evaluation is the engine output for one epic at one instant.
// Band follows the post-override score; RiskLevel follows the past-due rule.
type Evaluation struct {
	EpicID         string    `json:"epic_id"`
	RiskLevel      RiskLevel `json:"risk_level" enum:"on_track,at_risk,off_track"`
	Probability    int       `json:"probability" minimum:"0" maximum:"100"`
	Band           RiskLevel `json:"band" enum:"on_track,at_risk,off_track"`
	ForecastWindow string    `json:"forecast_window"`
	Reasons        []string  `json:"reasons"`
	Confidence     float64   `json:"confidence"`
	StrongSignals  []string  `json:"strong_signals"`
	WeakSignals    []string  `json:"weak_signals"`
	MissingSignals []string  `json:"missing_signals"`
	Signals        []string  `json:"signals"`
	Genome         Genome    `json:"genome"`
	Completed      bool      `json:"completed"`
	EvaluatedAt    time.Time `json:"evaluated_at" format:"date-time"`
}

type SlipType string

const (
	SlipNone              SlipType = "none"
	SlipLeadUncertainty   SlipType = "lead_uncertainty"
	SlipLeadMisalignment  SlipType = "lead_misalignment"
	SlipScopeCreep        SlipType = "scope_creep"
	SlipDependencyBlocked SlipType = "dependency_blocked"
	SlipStagnantWork      SlipType = "stagnant_work"
	SlipNoPlan            SlipType = "no_plan"
	SlipGenericHighRisk   SlipType = "generic_high_risk"
	SlipUnknown           SlipType = "unknown"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type RecoveryAction struct {
	ID          string `json:"id"`
	OwnerRole   string `json:"owner_role"`
	Priority    int    `json:"priority"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type RecoveryETA struct {
	Days  int    `json:"days"`
	Label string `json:"label"`
}

type RecoveryPlan struct {
	SlipType SlipType         `json:"slip_type"`
	Severity Severity         `json:"severity" enum:"none,low,moderate,high,critical"`
	Actions  []RecoveryAction `json:"actions"`
	ETA      RecoveryETA      `json:"recovery_eta"`
}

// Snapshot is one append-only evaluation record.
type Snapshot struct {
	ID               string       `json:"id"`
	WorkspaceID      string       `json:"workspace_id"`
	EpicID           string       `json:"epic_id"`
	EvaluatedAt      time.Time    `json:"evaluated_at" format:"date-time"`
	RecordedAt       time.Time    `json:"recorded_at" format:"date-time"`
	Evaluation       Evaluation   `json:"evaluation"`
	Recovery         RecoveryPlan `json:"recovery"`
	ProbabilityDelta *int         `json:"probability_delta,omitempty"`
}

type WorkspaceSummary struct {
	WorkspaceID        string            `json:"workspace_id"`
	EpicCount          int               `json:"epic_count"`
	ByRiskLevel        map[RiskLevel]int `json:"by_risk_level"`
	AverageProbability float64           `json:"average_probability"`
	GeneratedAt        time.Time         `json:"generated_at" format:"date-time"`
}
