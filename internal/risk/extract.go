package risk

import (
	"math"
	"strconv"
	"strings"
	"time"

	"epicrisk/internal/domain"
)

// Input is everything the engine sees for one epic. Checkins are expected
// newest-first, but the newest is always re-derived with domain.CheckinRecency.
type Input struct {
	Epic     domain.Epic
	Issues   []domain.Issue
	Rollup   *domain.DailyEpicSignal
	Owner    *domain.OwnerMetrics
	Checkins []domain.WeeklyCheckin
	Now      time.Time
}

const (
	staleMovementDays    = 14.0
	idleMovementDays     = 7.0
	recentMovementDays   = 3.0
	dueSoonDays          = 7.0
	dueSoonMaxRatio      = 0.6
	highWIPCount         = 6
	longRunningDays      = 14.0
	highBugCount         = 5
	staleCheckinDays     = 14.0
	checkinWindowDays    = 28.0
	minActiveDays        = 7.0
	freshCheckinDays     = 7.0
	highCompletionRatio  = 0.7
	onPaceMinRatio       = 0.5
	ownerLowThroughput   = 3
	ownerHighThroughput  = 10
	ownerHighReopenRate  = 0.2
	ownerReliableRatio   = 0.7
	ownerReliableMinOwns = 3
	ownerIdleDays        = 7.0
	scopeGrowthMin       = 3
	scopeGrowthShare     = 0.25
)

var closedStates = map[string]bool{
	"done": true, "closed": true, "resolved": true, "completed": true, "complete": true,
	"cancelled": true, "canceled": true, "released": true, "shipped": true,
}

// IsCompleted reports whether the epic bypasses signal extraction.
func IsCompleted(e domain.Epic) bool {
	if domain.NormalizeCategory(string(e.StatusCategory)) == domain.CategoryDone {
		return true
	}
	if closedStates[strings.ToLower(strings.TrimSpace(e.State))] {
		return true
	}
	if !e.IsActive {
		return true
	}
	return e.StatusHistory.EndsInDone()
}

// facts are the derived quantities every stage of one evaluation shares.
type facts struct {
	now time.Time

	total, done, inProgress, review, todo int
	ratio                                 float64
	estimated, unassigned                 int
	totalPoints, completedPoints          float64

	owner             string
	ownerLastActivity *time.Time

	daysToTarget      *float64
	pastDue           bool
	daysSinceMovement *float64
	activeDays        float64

	latestCheckin    *domain.WeeklyCheckin
	daysSinceCheckin *float64
	selfReport       *domain.WeeklyCheckin

	bugs, openBugs, openCritical int
	longRunning, addedLast7      int
	newToday                     int
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

func gather(in Input) facts {
	f := facts{now: in.Now, owner: in.Epic.Owner(), total: len(in.Issues)}
	var lastMove, lastOpen time.Time
	haveMove, haveOpen := false, false
	note := func(h domain.StatusHistory) {
		if t, ok := h.LastTransition(); ok && (!haveMove || t.After(lastMove)) {
			lastMove, haveMove = t, true
		}
		if cur, ok := h.Current(); ok && (!haveOpen || cur.From.After(lastOpen)) {
			lastOpen, haveOpen = cur.From, true
		}
	}
	note(in.Epic.StatusHistory)

	for _, is := range in.Issues {
		note(is.StatusHistory)
		cat := is.Category()
		switch cat {
		case domain.CategoryDone:
			f.done++
		case domain.CategoryInProgress:
			f.inProgress++
		case domain.CategoryReview:
			f.review++
		default:
			f.todo++
		}
		if pts, ok := is.Points(); ok {
			f.estimated++
			f.totalPoints += pts
			if cat == domain.CategoryDone {
				f.completedPoints += pts
			}
		}
		if strings.TrimSpace(is.Assignee) == "" {
			f.unassigned++
		}
		if is.IsBug() {
			f.bugs++
			if cat != domain.CategoryDone {
				f.openBugs++
				if isCriticalPriority(is.Priority) {
					f.openCritical++
				}
			}
		}
		if cat != domain.CategoryDone && !is.CreatedAt.IsZero() && days(in.Now.Sub(is.CreatedAt)) >= longRunningDays {
			f.longRunning++
		}
		if !is.CreatedAt.IsZero() {
			age := in.Now.Sub(is.CreatedAt)
			if age >= 0 && days(age) <= 7 {
				f.addedLast7++
			}
			if age >= 0 && age < 24*time.Hour {
				f.newToday++
			}
		}
		if f.owner != "" && strings.EqualFold(strings.TrimSpace(is.Assignee), f.owner) {
			for _, seg := range is.StatusHistory {
				f.ownerLastActivity = latest(f.ownerLastActivity, seg.From)
				if seg.To != nil {
					f.ownerLastActivity = latest(f.ownerLastActivity, *seg.To)
				}
			}
		}
	}
	if f.total > 0 {
		f.ratio = float64(f.done) / float64(f.total)
	}
	if in.Owner != nil && in.Owner.LastActivityAt != nil {
		f.ownerLastActivity = latest(f.ownerLastActivity, *in.Owner.LastActivityAt)
	}

	switch {
	case haveMove:
	case haveOpen:
		lastMove, haveMove = lastOpen, true
	case !in.Epic.StartedAt.IsZero():
		lastMove, haveMove = in.Epic.StartedAt, true
	case !in.Epic.CreatedAt.IsZero():
		lastMove, haveMove = in.Epic.CreatedAt, true
	}
	if haveMove {
		d := days(in.Now.Sub(lastMove))
		f.daysSinceMovement = &d
	}

	start := in.Epic.StartedAt
	if start.IsZero() {
		start = in.Epic.CreatedAt
	}
	if !start.IsZero() {
		f.activeDays = days(in.Now.Sub(start))
	}

	if in.Epic.TargetDelivery != nil {
		d := days(in.Epic.TargetDelivery.Sub(in.Now))
		f.daysToTarget = &d
		f.pastDue = in.Now.After(*in.Epic.TargetDelivery) && !IsCompleted(in.Epic)
	}

	if c, ok := domain.CheckinRecency.Newest(in.Checkins); ok {
		f.latestCheckin = &c
		d := days(in.Now.Sub(c.SubmittedAt))
		f.daysSinceCheckin = &d
		if d <= freshCheckinDays {
			f.selfReport = &c
		}
	}
	return f
}

func latest(cur *time.Time, t time.Time) *time.Time {
	if t.IsZero() {
		return cur
	}
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}

func isCriticalPriority(p string) bool {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "critical", "blocker":
		return true
	}
	return false
}

func itoa(n int) string { return strconv.Itoa(n) }

func wholeDays(d float64) string { return strconv.Itoa(int(math.Floor(math.Abs(d)))) }

func percent(r float64) string { return strconv.Itoa(int(math.Round(r * 100))) }

// Extract returns the catalog signals that currently apply to the epic.
// Completed epics produce none.
func Extract(in Input) []TriggeredSignal {
	if IsCompleted(in.Epic) {
		return nil
	}
	return extract(gather(in), in.Owner)
}

func extract(f facts, owner *domain.OwnerMetrics) []TriggeredSignal {
	var out []TriggeredSignal
	fire := func(id SignalID, params map[string]string) {
		out = append(out, trigger(id, params))
	}

	// planning
	if f.total == 0 {
		fire(SignalNoIssues, nil)
	} else if f.estimated == 0 {
		fire(SignalNoEstimates, map[string]string{"count": itoa(f.total)})
	}
	if f.daysToTarget == nil {
		fire(SignalNoTargetDate, nil)
	}
	if f.owner == "" {
		fire(SignalNoOwner, nil)
	}
	if f.addedLast7 >= scopeGrowthMin && float64(f.addedLast7) >= scopeGrowthShare*float64(f.total) {
		fire(SignalScopeGrowth, map[string]string{"count": itoa(f.addedLast7)})
	}

	// execution
	if f.daysSinceMovement != nil {
		switch d := *f.daysSinceMovement; {
		case d >= staleMovementDays:
			fire(SignalNoMovement14d, map[string]string{"days": wholeDays(d)})
		case d >= idleMovementDays:
			fire(SignalNoMovement7d, map[string]string{"days": wholeDays(d)})
		}
	}
	if f.pastDue && f.ratio < 1 {
		fire(SignalPastDue, map[string]string{"days": wholeDays(*f.daysToTarget), "pct": percent(f.ratio)})
	}
	if f.daysToTarget != nil && *f.daysToTarget >= 0 && *f.daysToTarget <= dueSoonDays && f.ratio < dueSoonMaxRatio {
		fire(SignalDueSoonLowCompletion, map[string]string{"days": wholeDays(*f.daysToTarget), "pct": percent(f.ratio)})
	}
	if f.inProgress >= highWIPCount {
		fire(SignalHighWIP, map[string]string{"count": itoa(f.inProgress)})
	}
	if f.longRunning > 0 {
		fire(SignalLongRunningIssues, map[string]string{"count": itoa(f.longRunning)})
	}

	// bugs
	if f.bugs >= highBugCount {
		fire(SignalHighBugCount, map[string]string{"count": itoa(f.bugs)})
	}
	if f.openCritical > 0 {
		fire(SignalCriticalBugOpen, map[string]string{"count": itoa(f.openCritical)})
	}

	// owner
	if owner != nil {
		w := owner.Window30d
		switch {
		case w.StoriesCompleted < ownerLowThroughput:
			fire(SignalOwnerLowThroughput, map[string]string{"count": itoa(w.StoriesCompleted)})
		case w.StoriesCompleted >= ownerHighThroughput:
			fire(SignalOwnerHighThroughput, map[string]string{"count": itoa(w.StoriesCompleted)})
		}
		if w.StoriesCompleted > 0 {
			if rate := float64(w.ReopenedCount) / float64(w.StoriesCompleted); rate >= ownerHighReopenRate {
				fire(SignalOwnerHighReopen, map[string]string{"pct": percent(rate)})
			}
		}
		if w.EpicsOwned >= ownerReliableMinOwns && float64(w.EpicsOnTime)/float64(w.EpicsOwned) >= ownerReliableRatio {
			fire(SignalOwnerReliable, map[string]string{"ontime": itoa(w.EpicsOnTime), "owned": itoa(w.EpicsOwned)})
		}
	}
	if f.owner != "" && f.daysSinceMovement != nil && *f.daysSinceMovement >= ownerIdleDays {
		if f.ownerLastActivity == nil || days(f.now.Sub(*f.ownerLastActivity)) >= ownerIdleDays {
			fire(SignalOwnerInactive, map[string]string{"days": wholeDays(*f.daysSinceMovement)})
		}
	}

	// checkin
	inWindow := f.daysToTarget == nil || *f.daysToTarget <= checkinWindowDays
	if f.latestCheckin != nil {
		if *f.daysSinceCheckin >= staleCheckinDays && inWindow {
			fire(SignalStaleCheckin, map[string]string{"days": wholeDays(*f.daysSinceCheckin)})
		}
	} else if f.activeDays >= minActiveDays && inWindow {
		fire(SignalStaleCheckin, map[string]string{"days": wholeDays(f.activeDays)})
	}

	// positive
	if f.total >= 1 && f.ratio >= highCompletionRatio {
		fire(SignalHighCompletion, map[string]string{"pct": percent(f.ratio)})
	}
	if f.daysSinceMovement != nil && *f.daysSinceMovement <= recentMovementDays {
		fire(SignalRecentMovement, nil)
	}
	if f.daysToTarget != nil && f.ratio >= onPaceMinRatio && f.ratio < 1 && *f.daysToTarget > dueSoonDays {
		fire(SignalOnPace, map[string]string{"pct": percent(f.ratio), "days": wholeDays(*f.daysToTarget)})
	}
	return out
}
