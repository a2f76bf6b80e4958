package risk

import (
	"fmt"

	"epicrisk/internal/domain"
)

// Evaluate runs the full engine for one epic. It is pure: the same input,
// including Now, always yields the same evaluation. Absent optional inputs
// lower confidence instead of failing; only inconsistent status histories
// return an error.
func Evaluate(in Input) (domain.Evaluation, error) {
	ev, _, err := evaluate(in)
	return ev, err
}

// Assess evaluates the epic and derives its recovery plan.
func Assess(in Input) (domain.Evaluation, domain.RecoveryPlan, error) {
	ev, f, err := evaluate(in)
	if err != nil {
		return domain.Evaluation{}, domain.RecoveryPlan{}, err
	}
	return ev, Advise(ev, f.selfReport), nil
}

func validate(in Input) error {
	if err := in.Epic.StatusHistory.Validate(); err != nil {
		return fmt.Errorf("epic %s: %w", in.Epic.ID, err)
	}
	for _, is := range in.Issues {
		if err := is.StatusHistory.Validate(); err != nil {
			return fmt.Errorf("epic %s issue %s: %w", in.Epic.ID, is.ID, err)
		}
	}
	return nil
}

func evaluate(in Input) (domain.Evaluation, facts, error) {
	if err := validate(in); err != nil {
		return domain.Evaluation{}, facts{}, err
	}
	f := gather(in)
	ev := domain.Evaluation{
		EpicID:      in.Epic.ID,
		Genome:      buildGenome(in, f),
		EvaluatedAt: in.Now,
	}

	if IsCompleted(in.Epic) {
		res := ScoreCompleted(in.Epic)
		ev.Completed = true
		ev.Probability = res.Score
		ev.Band = res.Band
		ev.RiskLevel = res.RiskLevel
		ev.ForecastWindow = ForecastCompleted
		ev.Reasons = []string{completedReason(in.Epic)}
		ev.Confidence = completedConfidence
		ev.StrongSignals = []string{}
		ev.WeakSignals = []string{}
		ev.MissingSignals = []string{}
		ev.Signals = []string{}
		return ev, f, nil
	}

	signals := extract(f, in.Owner)
	res := ScoreSignals(signals, f.selfReport, f.pastDue)
	conf := EstimateConfidence(signals, in)

	ev.Probability = res.Score
	ev.Band = res.Band
	ev.RiskLevel = res.RiskLevel
	ev.ForecastWindow = ForecastWindow(f.daysToTarget, res.Band, f.selfReport)
	ev.Reasons = Reasons(signals)
	ev.Confidence = conf.Value
	ev.StrongSignals = conf.Strong
	ev.WeakSignals = conf.Weak
	ev.MissingSignals = conf.Missing
	ev.Signals = make([]string, 0, len(signals))
	for _, s := range signals {
		ev.Signals = append(ev.Signals, string(s.ID))
	}
	return ev, f, nil
}
