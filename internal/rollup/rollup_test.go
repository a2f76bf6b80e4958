package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicrisk/internal/domain"
)

var now = time.Date(2024, 5, 8, 15, 30, 0, 0, time.UTC)

func ago(d time.Duration) time.Time { return now.Add(-d) }

const day = 24 * time.Hour

type memStore struct {
	epics     []domain.Epic
	issues    []domain.Issue
	rows      map[string]domain.DailyEpicSignal
	bulkCalls int
	failList  error
}

func key(r domain.DailyEpicSignal) string { return r.EpicID + "|" + r.Day.Format("2006-01-02") }

func (m *memStore) ListActiveEpics(_ context.Context, ws string) ([]domain.Epic, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	var out []domain.Epic
	for _, e := range m.epics {
		if e.WorkspaceID == ws && e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListIssuesForEpics(_ context.Context, ids []string) ([]domain.Issue, error) {
	m.bulkCalls++
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Issue
	for _, is := range m.issues {
		if want[is.EpicID] {
			out = append(out, is)
		}
	}
	return out, nil
}

func (m *memStore) UpsertDailySignals(_ context.Context, _ string, rows []domain.DailyEpicSignal) error {
	if m.rows == nil {
		m.rows = map[string]domain.DailyEpicSignal{}
	}
	for _, r := range rows {
		m.rows[key(r)] = r
	}
	return nil
}

func pts(v float64) *float64 { return &v }

func fixture() *memStore {
	return &memStore{
		epics: []domain.Epic{
			{ID: "e1", WorkspaceID: "ws", IsActive: true, CreatedAt: ago(40 * day)},
			{ID: "e2", WorkspaceID: "ws", IsActive: true, CreatedAt: ago(12 * day)},
			{ID: "e3", WorkspaceID: "ws", IsActive: false, CreatedAt: ago(12 * day)},
		},
		issues: []domain.Issue{
			{ID: "i1", EpicID: "e1", Status: "Done", StatusCategory: domain.CategoryDone, StoryPoints: pts(3),
				CreatedAt: ago(30 * day), UpdatedAt: ago(1 * day),
				StatusHistory: domain.StatusHistory{{Category: domain.CategoryDone, From: ago(5 * day)}}},
			{ID: "i2", EpicID: "e1", Status: "Closed", Fields: map[string]any{"storyPoints": "2"},
				CreatedAt: ago(30 * day), UpdatedAt: ago(2 * day)},
			{ID: "i3", EpicID: "e1", Status: "Code Review", Fields: map[string]any{"points": "n/a", "estimate": 5},
				CreatedAt: ago(10 * day), UpdatedAt: ago(4 * day)},
			{ID: "i4", EpicID: "e1", Status: "In Review", CreatedAt: ago(10 * day), UpdatedAt: ago(1 * day)},
			{ID: "i5", EpicID: "e1", Status: "To Do", Type: "Bug", CreatedAt: ago(2 * time.Hour)},
			{ID: "i6", EpicID: "e1", Status: "In Progress", StatusCategory: domain.CategoryInProgress, Type: "story", CreatedAt: ago(5 * time.Hour)},
		},
	}
}

func TestComputeBucketsAndPoints(t *testing.T) {
	s := fixture()
	row := Compute(s.epics[0], GroupByEpic(s.issues)["e1"], now)

	assert.Equal(t, Day(now), row.Day)
	assert.Equal(t, 6, row.TotalIssues)
	assert.Equal(t, 2, row.DoneIssues)
	assert.Equal(t, 2, row.InReviewIssues)
	assert.Equal(t, 2, row.OtherIssues)
	assert.InDelta(t, 10.0, row.TotalPoints, 1e-9)
	assert.InDelta(t, 5.0, row.CompletedPoints, 1e-9)
	assert.Equal(t, 1, row.StaleReviewCount)
	assert.Equal(t, 2, row.NewIssuesToday)
	assert.Equal(t, 1, row.NewBugsToday)
	// i2 has no history, so its update two days ago is the latest done.
	assert.Equal(t, 2, row.DaysSinceLastDone)
}

func TestComputeWithoutDoneUsesEpicAge(t *testing.T) {
	row := Compute(domain.Epic{ID: "e2", CreatedAt: ago(12*day + time.Hour)}, nil, now)
	assert.Equal(t, 12, row.DaysSinceLastDone)
	assert.Zero(t, row.TotalIssues)
}

func TestPipelineRunIsIdempotent(t *testing.T) {
	s := fixture()
	p := Pipeline{Store: s, Now: func() time.Time { return now }}

	first, err := p.Run(context.Background(), "ws")
	require.NoError(t, err)
	require.Len(t, first.Rows, 2)
	require.Len(t, s.rows, 2)
	assert.Equal(t, 1, s.bulkCalls)

	// an issue lands between runs on the same day
	s.issues = append(s.issues, domain.Issue{ID: "i7", EpicID: "e1", Status: "To Do", CreatedAt: ago(time.Hour)})
	later := now.Add(2 * time.Hour)
	p.Now = func() time.Time { return later }
	second, err := p.Run(context.Background(), "ws")
	require.NoError(t, err)

	require.Len(t, s.rows, 2, "same day must overwrite, not duplicate")
	got := s.rows["e1|"+now.Format("2006-01-02")]
	assert.Equal(t, 7, got.TotalIssues)
	assert.Equal(t, later, got.ComputedAt)
	assert.Equal(t, second.Rows[0], got)
}

func TestPipelineSkipsInactiveEpics(t *testing.T) {
	s := fixture()
	res, err := Pipeline{Store: s, Now: func() time.Time { return now }}.Run(context.Background(), "ws")
	require.NoError(t, err)
	for _, r := range res.Rows {
		assert.NotEqual(t, "e3", r.EpicID)
	}
}

func TestPipelineLoadFailureIsReturned(t *testing.T) {
	boom := errors.New("db down")
	s := fixture()
	s.failList = boom
	_, err := Pipeline{Store: s}.Run(context.Background(), "ws")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
