package risk

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicrisk/internal/domain"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func ago(d float64) time.Time { return now.Add(-time.Duration(d * 24 * float64(time.Hour))) }

func ahead(d float64) *time.Time {
	t := now.Add(time.Duration(d * 24 * float64(time.Hour)))
	return &t
}

func at(t time.Time) *time.Time { return &t }

func pts(v float64) *float64 { return &v }

func activeEpic() domain.Epic {
	return domain.Epic{
		ID:             "epic-1",
		WorkspaceID:    "ws",
		Title:          "Checkout revamp",
		State:          "In Progress",
		StatusCategory: domain.CategoryInProgress,
		IsActive:       true,
		Assignees:      []string{"ana"},
		CreatedAt:      ago(40),
		StartedAt:      ago(30),
	}
}

func doneIssue(id string) domain.Issue {
	return domain.Issue{
		ID:             id,
		EpicID:         "epic-1",
		Status:         "Done",
		StatusCategory: domain.CategoryDone,
		Type:           "story",
		Assignee:       "ana",
		StoryPoints:    pts(3),
		CreatedAt:      ago(30),
		UpdatedAt:      ago(2),
		StatusHistory: domain.StatusHistory{
			{Status: "In Progress", Category: domain.CategoryInProgress, From: ago(20), To: at(ago(2))},
			{Status: "Done", Category: domain.CategoryDone, From: ago(2)},
		},
	}
}

func openIssue(id string) domain.Issue {
	return domain.Issue{
		ID:             id,
		EpicID:         "epic-1",
		Status:         "In Progress",
		StatusCategory: domain.CategoryInProgress,
		Type:           "story",
		Assignee:       "ana",
		StoryPoints:    pts(2),
		CreatedAt:      ago(5),
		UpdatedAt:      ago(1),
		StatusHistory: domain.StatusHistory{
			{Status: "In Progress", Category: domain.CategoryInProgress, From: ago(4)},
		},
	}
}

func checkin(status domain.CheckinStatus, submitted time.Time) domain.WeeklyCheckin {
	return domain.WeeklyCheckin{
		EpicID:      "epic-1",
		WorkspaceID: "ws",
		WeekStart:   domain.WeekStart(submitted),
		Status:      status,
		SubmittedAt: submitted,
	}
}

// healthyInput has 8 of 10 issues done, a target three weeks out and a fresh
// on_track check-in.
func healthyInput() Input {
	epic := activeEpic()
	epic.TargetDelivery = ahead(21)
	var issues []domain.Issue
	for i := 0; i < 8; i++ {
		issues = append(issues, doneIssue("done-"+itoa(i)))
	}
	issues = append(issues, openIssue("open-1"), openIssue("open-2"))
	return Input{
		Epic:     epic,
		Issues:   issues,
		Checkins: []domain.WeeklyCheckin{checkin(domain.CheckinOnTrack, ago(2))},
		Now:      now,
	}
}

func pastDueNoDataInput() Input {
	epic := activeEpic()
	epic.Assignees = nil
	epic.StartedAt = time.Time{}
	epic.CreatedAt = ago(60)
	epic.TargetDelivery = ahead(-5)
	return Input{Epic: epic, Now: now}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	for name, in := range map[string]Input{
		"healthy":  healthyInput(),
		"past due": pastDueNoDataInput(),
	} {
		t.Run(name, func(t *testing.T) {
			first, err := Evaluate(in)
			require.NoError(t, err)
			a, err := json.Marshal(first)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				again, err := Evaluate(in)
				require.NoError(t, err)
				b, err := json.Marshal(again)
				require.NoError(t, err)
				assert.Equal(t, string(a), string(b))
			}
		})
	}
}

func TestCompletedOnTime(t *testing.T) {
	epic := activeEpic()
	epic.State = "Done"
	epic.StatusCategory = domain.CategoryDone
	epic.TargetDelivery = ahead(-2)
	epic.ClosedAt = at(ago(5))

	ev, plan, err := Assess(Input{Epic: epic, Now: now})
	require.NoError(t, err)
	assert.True(t, ev.Completed)
	assert.Equal(t, domain.RiskOnTrack, ev.RiskLevel)
	assert.Equal(t, 10, ev.Probability)
	assert.Equal(t, ForecastCompleted, ev.ForecastWindow)
	assert.Equal(t, 0.9, ev.Confidence)
	assert.Equal(t, domain.SlipNone, plan.SlipType)
	assert.Equal(t, domain.SeverityNone, plan.Severity)
	assert.Empty(t, plan.Actions)
}

func TestCompletedLate(t *testing.T) {
	cases := []struct {
		name     string
		lateDays float64
		want     int
	}{
		{"within a week", 5, 20},
		{"ten days", 10, 30},
		{"a quarter", 90, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			epic := activeEpic()
			epic.IsActive = false
			epic.ClosedAt = at(ago(1))
			epic.TargetDelivery = at(ago(1 + tc.lateDays))

			ev, err := Evaluate(Input{Epic: epic, Now: now})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev.Probability)
			assert.Equal(t, domain.RiskAtRisk, ev.Band)
			assert.NotEqual(t, domain.RiskOffTrack, ev.RiskLevel)
			assert.Equal(t, ForecastCompleted, ev.ForecastWindow)
		})
	}
}

func TestPastDueWithNoData(t *testing.T) {
	ev, err := Evaluate(pastDueNoDataInput())
	require.NoError(t, err)
	assert.Equal(t, domain.RiskOffTrack, ev.RiskLevel)
	assert.GreaterOrEqual(t, ev.Probability, 70)
	assert.LessOrEqual(t, ev.Probability, 100)
	assert.NotEmpty(t, ev.Reasons)
	assert.Equal(t, Forecast0To2Weeks, ev.ForecastWindow)
	assert.Contains(t, ev.Signals, string(SignalPastDue))
	assert.Contains(t, ev.MissingSignals, missingRollup)
	assert.Contains(t, ev.MissingSignals, missingCheckins)
}

func TestHealthyExecution(t *testing.T) {
	ev, err := Evaluate(healthyInput())
	require.NoError(t, err)
	assert.Contains(t, []domain.RiskLevel{domain.RiskOnTrack, domain.RiskAtRisk}, ev.RiskLevel)
	assert.Less(t, ev.Probability, 70)

	found := false
	for _, r := range ev.Reasons {
		if strings.HasPrefix(r, "Steady progress") {
			found = true
		}
	}
	assert.True(t, found, "reasons %v", ev.Reasons)
	assert.Equal(t, 10, ev.Genome.Workload.TotalIssues)
	assert.Equal(t, 8, ev.Genome.Workload.Done)
	assert.InDelta(t, 0.8, ev.Genome.Scope.CompletionRatio, 1e-9)
}

func TestHardRedFloorSurvivesOnTrackSelfReport(t *testing.T) {
	in := healthyInput()
	in.Epic.TargetDelivery = ahead(-1)

	ev, err := Evaluate(in)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Probability, 80)
	assert.Equal(t, domain.RiskOffTrack, ev.Band)
	assert.Equal(t, domain.RiskAtRisk, ev.RiskLevel)

	in.Checkins = nil
	ev, err = Evaluate(in)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Probability, 80)
	assert.Equal(t, domain.RiskOffTrack, ev.Band)
	assert.Equal(t, domain.RiskOffTrack, ev.RiskLevel)
}

func TestStaleCheckinDoesNotOverride(t *testing.T) {
	in := healthyInput()
	in.Epic.TargetDelivery = ahead(-1)
	in.Checkins = []domain.WeeklyCheckin{checkin(domain.CheckinOnTrack, ago(9))}

	ev, err := Evaluate(in)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskOffTrack, ev.RiskLevel)
}

func TestConfidenceBounds(t *testing.T) {
	inputs := []Input{healthyInput(), pastDueNoDataInput()}
	busy := healthyInput()
	busy.Issues = append(busy.Issues, domain.Issue{ID: "bug", EpicID: "epic-1", Type: "Bug", Priority: "Blocker", Status: "Open", CreatedAt: ago(20)})
	busy.Owner = &domain.OwnerMetrics{Owner: "ana", Window30d: domain.OwnerWindow{StoriesCompleted: 12, EpicsOwned: 4, EpicsOnTime: 4}}
	inputs = append(inputs, busy)

	for _, in := range inputs {
		ev, err := Evaluate(in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ev.Confidence, 0.35)
		assert.LessOrEqual(t, ev.Confidence, 0.95)
	}

	c := EstimateConfidence(nil, Input{Now: now})
	assert.Equal(t, 0.35, c.Value)
	assert.Equal(t, []string{missingIssues, missingRollup, missingCheckins}, c.Missing)
	assert.Empty(t, c.Strong)
	assert.Empty(t, c.Weak)
}

func TestInconsistentHistoryIsAnError(t *testing.T) {
	in := healthyInput()
	bad := openIssue("broken")
	bad.StatusHistory = append(bad.StatusHistory, domain.StatusSegment{Status: "Review", Category: domain.CategoryReview, From: ago(1)})
	in.Issues = append(in.Issues, bad)

	_, err := Evaluate(in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInconsistentHistory))
	assert.Contains(t, err.Error(), "broken")
}

func TestEvaluateWithoutOptionalInputs(t *testing.T) {
	in := healthyInput()
	in.Checkins = nil
	in.Rollup = nil
	in.Owner = nil

	ev, err := Evaluate(in)
	require.NoError(t, err)
	assert.NotNil(t, ev.StrongSignals)
	assert.NotNil(t, ev.WeakSignals)
	assert.Contains(t, ev.MissingSignals, missingCheckins)
}

func TestAssessRecommendsPlaybook(t *testing.T) {
	ev, plan, err := Assess(pastDueNoDataInput())
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, plan.Severity)
	assert.Equal(t, SeverityFor(ev.Probability, ev.Band), plan.Severity)
	assert.Equal(t, domain.SlipLeadUncertainty, plan.SlipType)
	assert.Equal(t, 14, plan.ETA.Days)
	require.NotEmpty(t, plan.Actions)
	assert.Equal(t, 1, plan.Actions[0].Priority)
	assert.Contains(t, plan.Actions[0].Description, "today")
}
