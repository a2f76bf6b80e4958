package risk

import (
	"time"

	"epicrisk/internal/domain"
)

const staleReviewAge = 3 * 24 * time.Hour

// buildGenome records the metrics kept for trend comparison. They do not
// feed the score.
func buildGenome(in Input, f facts) domain.Genome {
	g := domain.Genome{
		Workload: domain.Workload{
			TotalIssues: f.total,
			Todo:        f.todo,
			InProgress:  f.inProgress,
			InReview:    f.review,
			Done:        f.done,
		},
		Scope: domain.Scope{
			TotalPoints:     f.totalPoints,
			CompletedPoints: f.completedPoints,
			AddedLast7Days:  f.addedLast7,
			NewIssuesToday:  f.newToday,
			CompletionRatio: f.ratio,
			DaysToTarget:    f.daysToTarget,
		},
		Movement: domain.Movement{
			DaysSinceMovement: f.daysSinceMovement,
			DaysSinceCheckin:  f.daysSinceCheckin,
		},
		Hygiene: domain.Hygiene{
			Unestimated: f.total - f.estimated,
			Unassigned:  f.unassigned,
			Bugs:        f.bugs,
			OpenBugs:    f.openBugs,
			LongRunning: f.longRunning,
		},
	}
	if in.Rollup != nil {
		d := in.Rollup.DaysSinceLastDone
		g.Movement.DaysSinceLastDone = &d
		g.Hygiene.StaleReviewCount = in.Rollup.StaleReviewCount
		return g
	}
	for _, is := range in.Issues {
		if is.Category() == domain.CategoryReview && !is.UpdatedAt.IsZero() && in.Now.Sub(is.UpdatedAt) > staleReviewAge {
			g.Hygiene.StaleReviewCount++
		}
	}
	return g
}
