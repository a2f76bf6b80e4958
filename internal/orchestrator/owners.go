package orchestrator

import (
	"strings"
	"time"

	"epicrisk/internal/domain"
	"epicrisk/internal/risk"
)

const ownerWindow = 30 * 24 * time.Hour

func ownerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DeriveOwnerMetrics computes the 30-day owner window from data already loaded
// for the batch. Owners with no assigned issues and no closed epics get no
// entry, so owner signals stay silent for them.
func DeriveOwnerMetrics(epics []domain.Epic, issues []domain.Issue, now time.Time) map[string]domain.OwnerMetrics {
	since := now.Add(-ownerWindow)
	out := map[string]domain.OwnerMetrics{}
	touch := func(name string) domain.OwnerMetrics {
		k := ownerKey(name)
		m, ok := out[k]
		if !ok {
			m = domain.OwnerMetrics{Owner: strings.TrimSpace(name)}
		}
		return m
	}

	owners := map[string]bool{}
	for _, e := range epics {
		if o := e.Owner(); o != "" {
			owners[ownerKey(o)] = true
		}
	}

	for _, is := range issues {
		k := ownerKey(is.Assignee)
		if k == "" || !owners[k] {
			continue
		}
		m := touch(is.Assignee)
		if is.Category() == domain.CategoryDone {
			at, ok := is.StatusHistory.DoneSince()
			if !ok {
				at = is.UpdatedAt
			}
			if !at.Before(since) && !at.After(now) {
				m.Window30d.StoriesCompleted++
			}
		}
		m.Window30d.ReopenedCount += is.StatusHistory.Reopens(since)
		for _, seg := range is.StatusHistory {
			m.LastActivityAt = later(m.LastActivityAt, seg.From)
			if seg.To != nil {
				m.LastActivityAt = later(m.LastActivityAt, *seg.To)
			}
		}
		out[k] = m
	}

	for _, e := range epics {
		o := e.Owner()
		if o == "" || !risk.IsCompleted(e) || e.TargetDelivery == nil || e.ClosedAt == nil {
			continue
		}
		m := touch(o)
		m.Window30d.EpicsOwned++
		if !e.ClosedAt.After(*e.TargetDelivery) {
			m.Window30d.EpicsOnTime++
		}
		out[ownerKey(o)] = m
	}
	return out
}

func later(cur *time.Time, t time.Time) *time.Time {
	if t.IsZero() {
		return cur
	}
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}
