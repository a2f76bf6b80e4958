package domain

import (
	"slices"
	"time"
)

// Recency orders records by a primary date and, on ties, by insertion time.
type Recency[T any] struct {
	Primary  func(T) time.Time
	Inserted func(T) time.Time
}

func (r Recency[T]) compare(a, b T) int {
	if c := r.Primary(a).Compare(r.Primary(b)); c != 0 {
		return c
	}
	if r.Inserted == nil {
		return 0
	}
	return r.Inserted(a).Compare(r.Inserted(b))
}

// Newest picks the most recent item. Full ties keep the earliest position.
func (r Recency[T]) Newest(items []T) (T, bool) {
	var best T
	if len(items) == 0 {
		return best, false
	}
	best = items[0]
	for _, it := range items[1:] {
		if r.compare(it, best) > 0 {
			best = it
		}
	}
	return best, true
}

// SortNewestFirst returns a sorted copy, newest first, stable on full ties.
func (r Recency[T]) SortNewestFirst(items []T) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int { return r.compare(b, a) })
	return out
}

var (
	CheckinRecency = Recency[WeeklyCheckin]{
		Primary:  func(c WeeklyCheckin) time.Time { return c.WeekStart },
		Inserted: func(c WeeklyCheckin) time.Time { return c.SubmittedAt },
	}
	RollupRecency = Recency[DailyEpicSignal]{
		Primary:  func(d DailyEpicSignal) time.Time { return d.Day },
		Inserted: func(d DailyEpicSignal) time.Time { return d.ComputedAt },
	}
	SnapshotRecency = Recency[Snapshot]{
		Primary:  func(s Snapshot) time.Time { return s.EvaluatedAt },
		Inserted: func(s Snapshot) time.Time { return s.RecordedAt },
	}
)
