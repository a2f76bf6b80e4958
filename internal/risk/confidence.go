package risk

const (
	noSignalConfidence  = 0.35
	minConfidence       = 0.4
	maxConfidence       = 0.95
	completedConfidence = 0.9
	maxSignalWeight     = 20.0
	strongMagnitude     = 8
	maxStrongSignals    = 5
	maxWeakSignals      = 10
)

const (
	missingIssues   = "No linked issues to measure progress against"
	missingRollup   = "No daily rollup available for this epic"
	missingCheckins = "No weekly check-ins have been submitted"
)

type Confidence struct {
	Value   float64
	Strong  []string
	Weak    []string
	Missing []string
}

// EstimateConfidence measures how much of the theoretical per-signal weight
// the triggered signals realize. Missing-data caveats are reported whether or
// not any signal fired.
func EstimateConfidence(signals []TriggeredSignal, in Input) Confidence {
	c := Confidence{Strong: []string{}, Weak: []string{}, Missing: []string{}}
	if len(signals) == 0 {
		c.Value = noSignalConfidence
		if len(in.Issues) == 0 {
			c.Missing = append(c.Missing, missingIssues)
		}
	} else {
		sum := 0
		var strong, weak []TriggeredSignal
		for _, s := range signals {
			sum += s.Magnitude()
			if s.Magnitude() >= strongMagnitude {
				strong = append(strong, s)
			} else {
				weak = append(weak, s)
			}
		}
		v := float64(sum) / (maxSignalWeight * float64(len(signals)))
		c.Value = min(max(v, minConfidence), maxConfidence)
		for _, s := range topByMagnitude(strong, maxStrongSignals) {
			c.Strong = append(c.Strong, string(s.ID))
		}
		for _, s := range topByMagnitude(weak, maxWeakSignals) {
			c.Weak = append(c.Weak, string(s.ID))
		}
	}
	if in.Rollup == nil {
		c.Missing = append(c.Missing, missingRollup)
	}
	if len(in.Checkins) == 0 {
		c.Missing = append(c.Missing, missingCheckins)
	}
	return c
}
