package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicrisk/internal/domain"
	"epicrisk/internal/metrics"
	"epicrisk/internal/risk"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func ago(d time.Duration) time.Time { return now.Add(-d) }

func at(t time.Time) *time.Time { return &t }

func pts(v float64) *float64 { return &v }

type fakeStore struct {
	epics     []domain.Epic
	issues    []domain.Issue
	rollups   []domain.DailyEpicSignal
	checkins  []domain.WeeklyCheckin
	snapshots []domain.Snapshot
	calls     map[string]int
	fail      error
}

func (f *fakeStore) hit(name string) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
	return f.fail
}

func (f *fakeStore) ListEpics(_ context.Context, _ string) ([]domain.Epic, error) {
	return f.epics, f.hit("epics")
}

func (f *fakeStore) ListWorkspaceIssues(_ context.Context, _ string) ([]domain.Issue, error) {
	return f.issues, f.hit("issues")
}

func (f *fakeStore) LatestDailySignals(_ context.Context, _ string) ([]domain.DailyEpicSignal, error) {
	return f.rollups, f.hit("rollups")
}

func (f *fakeStore) ListCheckins(_ context.Context, _ string) ([]domain.WeeklyCheckin, error) {
	return f.checkins, f.hit("checkins")
}

func (f *fakeStore) LatestSnapshots(_ context.Context, _ string) ([]domain.Snapshot, error) {
	return f.snapshots, f.hit("snapshots")
}

type fakeWriter struct {
	batches [][]domain.Snapshot
	fail    error
}

func (w *fakeWriter) AppendSnapshots(_ context.Context, _ string, snaps []domain.Snapshot) error {
	if w.fail != nil {
		return w.fail
	}
	w.batches = append(w.batches, snaps)
	return nil
}

func epic(id string) domain.Epic {
	return domain.Epic{
		ID:             id,
		WorkspaceID:    "ws",
		Title:          "Epic " + id,
		State:          "In Progress",
		StatusCategory: domain.CategoryInProgress,
		IsActive:       true,
		Assignees:      []string{"Ana"},
		CreatedAt:      ago(40 * day),
		StartedAt:      ago(30 * day),
		TargetDelivery: at(now.Add(21 * day)),
	}
}

func issue(id, epicID string, cat domain.StatusCategory) domain.Issue {
	is := domain.Issue{
		ID:             id,
		EpicID:         epicID,
		Status:         string(cat),
		StatusCategory: cat,
		Type:           "story",
		Assignee:       "ana",
		StoryPoints:    pts(2),
		CreatedAt:      ago(20 * day),
		UpdatedAt:      ago(1 * day),
	}
	if cat == domain.CategoryDone {
		is.StatusHistory = domain.StatusHistory{
			{Status: "In Progress", Category: domain.CategoryInProgress, From: ago(10 * day), To: at(ago(2 * day))},
			{Status: "Done", Category: domain.CategoryDone, From: ago(2 * day)},
		}
	}
	return is
}

func seq() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("snap-%d", n)
	}
}

func newOrchestrator(s *fakeStore, w *fakeWriter) Orchestrator {
	return Orchestrator{Store: s, Writer: w, Now: func() time.Time { return now }, NewID: seq()}
}

func TestRunLoadsWorkspaceOnce(t *testing.T) {
	s := &fakeStore{
		epics: []domain.Epic{epic("e1"), epic("e2"), epic("e3")},
		issues: []domain.Issue{
			issue("i1", "e1", domain.CategoryDone),
			issue("i2", "e2", domain.CategoryInProgress),
			issue("i3", "e3", domain.CategoryTodo),
		},
	}
	w := &fakeWriter{}
	rep, err := newOrchestrator(s, w).Run(context.Background(), "ws")
	require.NoError(t, err)

	for _, q := range []string{"epics", "issues", "rollups", "checkins", "snapshots"} {
		assert.Equal(t, 1, s.calls[q], q)
	}
	require.Len(t, w.batches, 1)
	assert.Len(t, w.batches[0], 3)
	assert.Len(t, rep.Snapshots, 3)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, 3, rep.Summary.EpicCount)
	for _, snap := range rep.Snapshots {
		assert.Equal(t, now, snap.EvaluatedAt)
		assert.Equal(t, snap.EpicID, snap.Evaluation.EpicID)
		assert.Nil(t, snap.ProbabilityDelta)
	}
}

func TestRunIsolatesBadRecord(t *testing.T) {
	bad := epic("bad")
	bad.StatusHistory = domain.StatusHistory{
		{Status: "To Do", Category: domain.CategoryTodo, From: ago(20 * day)},
		{Status: "In Progress", Category: domain.CategoryInProgress, From: ago(10 * day)},
	}
	s := &fakeStore{epics: []domain.Epic{epic("e1"), bad, epic("e2")}}
	w := &fakeWriter{}
	rep, err := newOrchestrator(s, w).Run(context.Background(), "ws")
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "bad", rep.Failures[0].EpicID)
	assert.Contains(t, rep.Failures[0].Error, "bad")
	require.Len(t, rep.Snapshots, 2)
	assert.Equal(t, "e1", rep.Snapshots[0].EpicID)
	assert.Equal(t, "e2", rep.Snapshots[1].EpicID)
}

func TestRunRecoversFromPanic(t *testing.T) {
	s := &fakeStore{epics: []domain.Epic{epic("e1"), epic("boom")}}
	w := &fakeWriter{}
	o := newOrchestrator(s, w)
	o.Assess = func(in risk.Input) (domain.Evaluation, domain.RecoveryPlan, error) {
		if in.Epic.ID == "boom" {
			panic("nil map")
		}
		return risk.Assess(in)
	}
	reg := metrics.New()
	o.Metrics = reg

	rep, err := o.Run(context.Background(), "ws")
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Contains(t, rep.Failures[0].Error, "panic")
	assert.Len(t, rep.Snapshots, 1)
}

func TestRunComputesDeltaAgainstPriorSnapshot(t *testing.T) {
	prior := domain.Snapshot{
		ID: "old", WorkspaceID: "ws", EpicID: "e1",
		EvaluatedAt: ago(1 * day), RecordedAt: ago(1 * day),
		Evaluation: domain.Evaluation{EpicID: "e1", Probability: 10, RiskLevel: domain.RiskOnTrack},
	}
	older := prior
	older.ID = "older"
	older.EvaluatedAt = ago(2 * day)
	older.Evaluation.Probability = 99
	s := &fakeStore{epics: []domain.Epic{epic("e1")}, snapshots: []domain.Snapshot{older, prior}}
	rep, err := newOrchestrator(s, &fakeWriter{}).Run(context.Background(), "ws")
	require.NoError(t, err)
	require.Len(t, rep.Snapshots, 1)
	snap := rep.Snapshots[0]
	require.NotNil(t, snap.ProbabilityDelta)
	assert.Equal(t, snap.Evaluation.Probability-10, *snap.ProbabilityDelta)
}

func TestRunUsesNewestRollupAndCheckins(t *testing.T) {
	e := epic("e1")
	s := &fakeStore{
		epics: []domain.Epic{e},
		rollups: []domain.DailyEpicSignal{
			{EpicID: "e1", Day: ago(3 * day), DaysSinceLastDone: 40, ComputedAt: ago(3 * day)},
			{EpicID: "e1", Day: ago(0), DaysSinceLastDone: 1, ComputedAt: ago(0)},
		},
		checkins: []domain.WeeklyCheckin{
			{EpicID: "e1", WeekStart: domain.WeekStart(ago(14 * day)), Status: domain.CheckinSlip3Plus, SubmittedAt: ago(14 * day)},
			{EpicID: "e1", WeekStart: domain.WeekStart(ago(1 * day)), Status: domain.CheckinOnTrack, SubmittedAt: ago(1 * day)},
		},
	}
	var seen risk.Input
	o := newOrchestrator(s, &fakeWriter{})
	o.Assess = func(in risk.Input) (domain.Evaluation, domain.RecoveryPlan, error) {
		seen = in
		return risk.Assess(in)
	}
	_, err := o.Run(context.Background(), "ws")
	require.NoError(t, err)
	require.NotNil(t, seen.Rollup)
	assert.Equal(t, 1, seen.Rollup.DaysSinceLastDone)
	require.Len(t, seen.Checkins, 2)
	assert.Equal(t, domain.CheckinOnTrack, seen.Checkins[0].Status)
}

func TestRunLoadFailureAborts(t *testing.T) {
	s := &fakeStore{fail: errors.New("disk gone")}
	w := &fakeWriter{}
	_, err := newOrchestrator(s, w).Run(context.Background(), "ws")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list epics")
	assert.Empty(t, w.batches)
}

func TestRunWriteFailureIsReturned(t *testing.T) {
	s := &fakeStore{epics: []domain.Epic{epic("e1")}}
	w := &fakeWriter{fail: errors.New("locked")}
	_, err := newOrchestrator(s, w).Run(context.Background(), "ws")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append snapshots")
}

func TestSummarizeUsesNewestPerEpic(t *testing.T) {
	snap := func(epicID string, evaluated time.Time, level domain.RiskLevel, p int) domain.Snapshot {
		return domain.Snapshot{
			EpicID: epicID, EvaluatedAt: evaluated, RecordedAt: evaluated,
			Evaluation: domain.Evaluation{RiskLevel: level, Probability: p},
		}
	}
	sum := Summarize("ws", []domain.Snapshot{
		snap("e1", ago(2*day), domain.RiskOffTrack, 90),
		snap("e1", ago(1*day), domain.RiskOnTrack, 20),
		snap("e2", ago(1*day), domain.RiskAtRisk, 55),
	}, now)
	assert.Equal(t, 2, sum.EpicCount)
	assert.Equal(t, 1, sum.ByRiskLevel[domain.RiskOnTrack])
	assert.Equal(t, 1, sum.ByRiskLevel[domain.RiskAtRisk])
	assert.Equal(t, 0, sum.ByRiskLevel[domain.RiskOffTrack])
	assert.InDelta(t, 37.5, sum.AverageProbability, 0.001)
}

func TestSummarizeEmptyWorkspace(t *testing.T) {
	sum := Summarize("ws", nil, now)
	assert.Equal(t, 0, sum.EpicCount)
	assert.Zero(t, sum.AverageProbability)
	assert.Len(t, sum.ByRiskLevel, 3)
}

func TestDeriveOwnerMetrics(t *testing.T) {
	closed := epic("closed")
	closed.StatusCategory = domain.CategoryDone
	closed.IsActive = false
	closed.TargetDelivery = at(ago(10 * day))
	closed.ClosedAt = at(ago(12 * day))
	closed.StatusHistory = domain.StatusHistory{
		{Status: "In Progress", Category: domain.CategoryInProgress, From: ago(30 * day), To: at(ago(12 * day))},
		{Status: "Done", Category: domain.CategoryDone, From: ago(12 * day)},
	}
	reopened := issue("r1", "e1", domain.CategoryInProgress)
	reopened.StatusHistory = domain.StatusHistory{
		{Status: "Done", Category: domain.CategoryDone, From: ago(8 * day), To: at(ago(5 * day))},
		{Status: "In Progress", Category: domain.CategoryInProgress, From: ago(5 * day)},
	}
	stranger := issue("x1", "e1", domain.CategoryDone)
	stranger.Assignee = "bob"

	got := DeriveOwnerMetrics(
		[]domain.Epic{epic("e1"), closed},
		[]domain.Issue{issue("d1", "e1", domain.CategoryDone), reopened, stranger},
		now,
	)
	require.Contains(t, got, "ana")
	assert.NotContains(t, got, "bob")
	m := got["ana"]
	assert.Equal(t, 1, m.Window30d.StoriesCompleted)
	assert.Equal(t, 1, m.Window30d.ReopenedCount)
	assert.Equal(t, 1, m.Window30d.EpicsOwned)
	assert.Equal(t, 1, m.Window30d.EpicsOnTime)
	require.NotNil(t, m.LastActivityAt)
	assert.Equal(t, ago(2*day), *m.LastActivityAt)
}

func TestPreviewDoesNotWrite(t *testing.T) {
	s := &fakeStore{epics: []domain.Epic{epic("e1"), epic("e2")}}
	w := &fakeWriter{}
	o := newOrchestrator(s, w)

	snap, err := o.Preview(context.Background(), "ws", "e2")
	require.NoError(t, err)
	assert.Equal(t, "e2", snap.EpicID)
	assert.Empty(t, snap.ID)
	assert.Empty(t, w.batches)

	_, err = o.Preview(context.Background(), "ws", "missing")
	require.ErrorIs(t, err, ErrUnknownEpic)
}
