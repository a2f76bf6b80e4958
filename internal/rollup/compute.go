package rollup

import (
	"math"
	"time"

	"epicrisk/internal/domain"
)

const staleReviewAfter = 3 * 24 * time.Hour

// Day truncates t to its UTC calendar day, the rollup key.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Compute aggregates one epic's issues into today's rollup row.
func Compute(epic domain.Epic, issues []domain.Issue, now time.Time) domain.DailyEpicSignal {
	row := domain.DailyEpicSignal{
		EpicID:      epic.ID,
		WorkspaceID: epic.WorkspaceID,
		Day:         Day(now),
		TotalIssues: len(issues),
		ComputedAt:  now,
	}
	var lastDone time.Time
	for _, is := range issues {
		cat := is.Category()
		switch cat {
		case domain.CategoryDone:
			row.DoneIssues++
			if at := doneAt(is); at.After(lastDone) {
				lastDone = at
			}
		case domain.CategoryReview:
			row.InReviewIssues++
			if touched := lastTouched(is); !touched.IsZero() && now.Sub(touched) > staleReviewAfter {
				row.StaleReviewCount++
			}
		default:
			row.OtherIssues++
		}
		if p, ok := is.Points(); ok {
			row.TotalPoints += p
			if cat == domain.CategoryDone {
				row.CompletedPoints += p
			}
		}
		if age := now.Sub(is.CreatedAt); !is.CreatedAt.IsZero() && age >= 0 && age < 24*time.Hour {
			row.NewIssuesToday++
			if is.IsBug() {
				row.NewBugsToday++
			}
		}
	}

	switch {
	case !lastDone.IsZero():
		row.DaysSinceLastDone = wholeDays(now.Sub(lastDone))
	case !epic.CreatedAt.IsZero():
		row.DaysSinceLastDone = wholeDays(now.Sub(epic.CreatedAt))
	case !epic.StartedAt.IsZero():
		row.DaysSinceLastDone = wholeDays(now.Sub(epic.StartedAt))
	}
	return row
}

// doneAt is when the issue last entered done, falling back to its last update.
func doneAt(is domain.Issue) time.Time {
	if at, ok := is.StatusHistory.DoneSince(); ok {
		return at
	}
	return lastTouched(is)
}

func lastTouched(is domain.Issue) time.Time {
	if !is.UpdatedAt.IsZero() {
		return is.UpdatedAt
	}
	return is.CreatedAt
}

func wholeDays(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(math.Floor(d.Hours() / 24))
}
