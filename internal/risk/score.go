package risk

import (
	"sort"
	"time"

	"epicrisk/internal/domain"
)

const (
	baseScore          = 45
	maxSignalSwing     = 50
	hardRedFloor       = 80
	offTrackThreshold  = 65
	atRiskThreshold    = 50
	selfReportRelief   = 15
	selfReportPenalty  = 10
	completedBase      = 10
	completedLate      = 20
	completedVeryLate  = 30
	completedGraceDays = 7.0
	maxReasonsNegative = 5
	maxReasonsPositive = 3
)

// ScoreResult carries both the band (post-override score bucket) and the
// independently derived risk level.
type ScoreResult struct {
	Score     int
	Band      domain.RiskLevel
	RiskLevel domain.RiskLevel
	HardRed   bool
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BandFor buckets a score: >= 65 off_track, >= 50 at_risk, else on_track.
func BandFor(score int) domain.RiskLevel {
	switch {
	case score >= offTrackThreshold:
		return domain.RiskOffTrack
	case score >= atRiskThreshold:
		return domain.RiskAtRisk
	}
	return domain.RiskOnTrack
}

// ScoreCompleted scores a completed epic by how late it closed.
// Lateness never escalates past at_risk.
func ScoreCompleted(e domain.Epic) ScoreResult {
	res := ScoreResult{Score: completedBase, Band: domain.RiskOnTrack, RiskLevel: domain.RiskOnTrack}
	if e.TargetDelivery == nil || e.ClosedAt == nil || !e.ClosedAt.After(*e.TargetDelivery) {
		return res
	}
	late := days(e.ClosedAt.Sub(*e.TargetDelivery))
	res.Score = completedVeryLate
	if late <= completedGraceDays {
		res.Score = completedLate
	}
	res.Band = domain.RiskAtRisk
	res.RiskLevel = domain.RiskAtRisk
	return res
}

// ScoreSignals combines triggered signals into a score, applies the hard-red
// floor and a fresh self-report override, then derives the risk level.
// selfReport must be nil unless the latest check-in is at most 7 days old.
func ScoreSignals(signals []TriggeredSignal, selfReport *domain.WeeklyCheckin, pastDue bool) ScoreResult {
	sum := 0
	hardRed := false
	for _, s := range signals {
		sum += s.Weight
		if s.HardRed {
			hardRed = true
		}
	}
	score := clamp(baseScore+clamp(sum, -maxSignalSwing, maxSignalSwing), 0, 100)
	if hardRed && score < hardRedFloor {
		score = hardRedFloor
	}
	band := BandFor(score)
	if hardRed {
		band = domain.RiskOffTrack
	}

	if selfReport != nil {
		switch selfReport.Status {
		case domain.CheckinOnTrack:
			score = clamp(score-selfReportRelief, 0, 100)
			switch {
			case band == domain.RiskOffTrack && score < hardRedFloor:
				band = domain.RiskAtRisk
			case band == domain.RiskAtRisk && score <= offTrackThreshold:
				band = domain.RiskOnTrack
			}
			if hardRed {
				if score < hardRedFloor {
					score = hardRedFloor
				}
				band = domain.RiskOffTrack
			}
		case domain.CheckinSlip1To3:
			score = clamp(score+selfReportPenalty, 0, 100)
			if band == domain.RiskOnTrack {
				band = domain.RiskAtRisk
			}
		case domain.CheckinSlip3Plus:
			if score < hardRedFloor {
				score = hardRedFloor
			}
			band = domain.RiskOffTrack
		}
	}

	level := BandFor(score)
	if pastDue {
		level = domain.RiskOffTrack
		if selfReport != nil && selfReport.Status == domain.CheckinOnTrack {
			level = domain.RiskAtRisk
		}
	}
	return ScoreResult{Score: score, Band: band, RiskLevel: level, HardRed: hardRed}
}

// Reasons ranks the five strongest negative signals, then the three strongest
// positive ones. Equal magnitudes keep catalog order.
func Reasons(signals []TriggeredSignal) []string {
	var neg, pos []TriggeredSignal
	for _, s := range signals {
		if s.Polarity == Positive {
			pos = append(pos, s)
		} else {
			neg = append(neg, s)
		}
	}
	out := make([]string, 0, maxReasonsNegative+maxReasonsPositive)
	for _, s := range topByMagnitude(neg, maxReasonsNegative) {
		out = append(out, s.Message)
	}
	for _, s := range topByMagnitude(pos, maxReasonsPositive) {
		out = append(out, s.Message)
	}
	return out
}

func topByMagnitude(signals []TriggeredSignal, n int) []TriggeredSignal {
	sorted := make([]TriggeredSignal, len(signals))
	copy(sorted, signals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Magnitude() != sorted[j].Magnitude() {
			return sorted[i].Magnitude() > sorted[j].Magnitude()
		}
		return sorted[i].ID.order() < sorted[j].ID.order()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func completedReason(e domain.Epic) string {
	if e.TargetDelivery != nil && e.ClosedAt != nil && e.ClosedAt.After(*e.TargetDelivery) {
		late := e.ClosedAt.Sub(*e.TargetDelivery)
		return "Completed " + wholeDays(days(late.Round(time.Hour))) + " days after the target date"
	}
	return "Completed"
}
