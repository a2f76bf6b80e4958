package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type StatusHistory []StatusSegment

// Validate enforces the at-most-one-open-segment invariant.
func (h StatusHistory) Validate() error {
	open := 0
	for _, seg := range h {
		if seg.To == nil {
			open++
		}
	}
	if open > 1 {
		return fmt.Errorf("%w (%d open)", ErrInconsistentHistory, open)
	}
	return nil
}

// LastTransition returns the latest closed-segment end.
func (h StatusHistory) LastTransition() (time.Time, bool) {
	var last time.Time
	found := false
	for _, seg := range h {
		if seg.To == nil {
			continue
		}
		if !found || seg.To.After(last) {
			last = *seg.To
			found = true
		}
	}
	return last, found
}

// Current returns the open segment, if any.
func (h StatusHistory) Current() (StatusSegment, bool) {
	for _, seg := range h {
		if seg.To == nil {
			return seg, true
		}
	}
	return StatusSegment{}, false
}

// EndsInDone reports whether the most recent segment is a done one. A done
// segment followed by a reopen does not count.
func (h StatusHistory) EndsInDone() bool {
	var last StatusSegment
	found := false
	for _, seg := range h {
		if !found || seg.From.After(last.From) {
			last, found = seg, true
		}
	}
	return found && NormalizeCategory(string(last.Category)) == CategoryDone
}

// DoneSince returns when the latest done segment started.
func (h StatusHistory) DoneSince() (time.Time, bool) {
	var at time.Time
	found := false
	for _, seg := range h {
		if NormalizeCategory(string(seg.Category)) != CategoryDone {
			continue
		}
		if !found || seg.From.After(at) {
			at = seg.From
			found = true
		}
	}
	return at, found
}

// Reopens counts done segments followed by a non-done segment, entered within [since, now].
func (h StatusHistory) Reopens(since time.Time) int {
	n := 0
	for i := 0; i+1 < len(h); i++ {
		if NormalizeCategory(string(h[i].Category)) != CategoryDone {
			continue
		}
		next := h[i+1]
		if NormalizeCategory(string(next.Category)) != CategoryDone && !next.From.Before(since) {
			n++
		}
	}
	return n
}

var (
	doneVocabulary = map[string]bool{
		"done": true, "closed": true, "resolved": true, "complete": true, "completed": true,
		"shipped": true, "released": true, "fixed": true, "merged": true,
	}
	reviewVocabulary = map[string]bool{
		"review": true, "in review": true, "code review": true, "peer review": true,
		"ready for review": true, "qa": true, "in qa": true, "testing": true, "verification": true,
	}
	progressVocabulary = map[string]bool{
		"in progress": true, "in development": true, "doing": true, "started": true,
		"active": true, "wip": true, "development": true,
	}
)

// Category resolves the issue bucket, falling back to its textual status
// when the normalized category is absent.
func (i Issue) Category() StatusCategory {
	if c := NormalizeCategory(string(i.StatusCategory)); c != "" {
		return c
	}
	return CategoryFromStatus(i.Status)
}

func CategoryFromStatus(status string) StatusCategory {
	s := strings.ToLower(strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(status)))
	switch {
	case doneVocabulary[s]:
		return CategoryDone
	case reviewVocabulary[s], strings.Contains(s, "review"):
		return CategoryReview
	case progressVocabulary[s]:
		return CategoryInProgress
	}
	return CategoryTodo
}

// LegacyPointFields are consulted in order when StoryPoints is empty.
var LegacyPointFields = []string{"story_points", "storyPoints", "points", "estimate", "customfield_10016"}

// Points returns the story-point estimate. Malformed values count as absent.
func (i Issue) Points() (float64, bool) {
	if i.StoryPoints != nil && *i.StoryPoints >= 0 {
		return *i.StoryPoints, true
	}
	for _, name := range LegacyPointFields {
		if v, ok := coercePoints(i.Fields[name]); ok {
			return v, true
		}
	}
	return 0, false
}

func coercePoints(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case interface{ Float64() (float64, error) }:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
