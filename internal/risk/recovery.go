package risk

import (
	"strings"

	"epicrisk/internal/domain"
)

const (
	criticalScore    = 85
	highScore        = 70
	moderateScore    = 55
	uncertaintyScore = 70
	genericRiskScore = 70
)

const (
	roleEpicOwner      = "epic_owner"
	roleEngManager     = "engineering_manager"
	roleProductManager = "product_manager"
	roleTechLead       = "tech_lead"
)

// SeverityFor maps a score and band to a severity.
func SeverityFor(score int, band domain.RiskLevel) domain.Severity {
	switch band {
	case domain.RiskOffTrack:
		switch {
		case score >= criticalScore:
			return domain.SeverityCritical
		case score >= highScore:
			return domain.SeverityHigh
		}
		return domain.SeverityModerate
	case domain.RiskAtRisk:
		switch {
		case score >= highScore:
			return domain.SeverityHigh
		case score >= moderateScore:
			return domain.SeverityModerate
		}
		return domain.SeverityLow
	}
	if score >= moderateScore {
		return domain.SeverityLow
	}
	return domain.SeverityNone
}

var slipPatterns = []struct {
	slip     domain.SlipType
	keywords []string
}{
	{domain.SlipScopeCreep, []string{"scope", "added stories", "stories added", "points increased"}},
	{domain.SlipDependencyBlocked, []string{"blocked", "dependency", "depends on", "waiting"}},
	{domain.SlipStagnantWork, []string{"no movement", "stuck"}},
	{domain.SlipNoPlan, []string{"no linked stories"}},
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// ClassifySlip picks the dominant failure pattern. The first matching rule
// wins. selfReport is the fresh check-in, if any; its reason text is matched
// along with the evaluation reasons.
func ClassifySlip(score int, band domain.RiskLevel, reasons []string, selfReport *domain.WeeklyCheckin) domain.SlipType {
	if band == domain.RiskOnTrack {
		return domain.SlipNone
	}
	if selfReport == nil && score >= uncertaintyScore {
		return domain.SlipLeadUncertainty
	}
	parts := append([]string(nil), reasons...)
	if selfReport != nil && selfReport.Reason != "" {
		parts = append(parts, selfReport.Reason)
	}
	text := strings.ToLower(strings.Join(parts, " "))

	if selfReport != nil && selfReport.Status == domain.CheckinOnTrack && containsAny(text, "overdue", "past due", "past-due") {
		return domain.SlipLeadMisalignment
	}
	for _, p := range slipPatterns {
		if containsAny(text, p.keywords...) {
			return p.slip
		}
	}
	if score >= genericRiskScore {
		return domain.SlipGenericHighRisk
	}
	return domain.SlipUnknown
}

var urgency = map[domain.Severity]string{
	domain.SeverityCritical: "today",
	domain.SeverityHigh:     "within 48 hours",
	domain.SeverityModerate: "this week",
	domain.SeverityLow:      "before the next check-in",
	domain.SeverityNone:     "when convenient",
}

var recoveryETA = map[domain.Severity]domain.RecoveryETA{
	domain.SeverityCritical: {Days: 14, Label: "about 2 weeks"},
	domain.SeverityHigh:     {Days: 9, Label: "1–2 weeks"},
	domain.SeverityModerate: {Days: 7, Label: "about 1 week"},
	domain.SeverityLow:      {Days: 5, Label: "under a week"},
	domain.SeverityNone:     {Days: 3, Label: "a few days"},
}

// step is a playbook entry; {when} in the text is replaced by the urgency.
type step struct {
	id, role, label, text string
}

var playbooks = map[domain.SlipType][]step{
	domain.SlipLeadUncertainty: {
		{"request-checkin", roleEpicOwner, "Submit a weekly check-in",
			"Signals point to serious risk and there is no recent self-report. The owner should record a status {when}."},
		{"review-with-lead", roleEngManager, "Review status with the lead",
			"Walk through open work and the target date with the epic owner {when}."},
		{"confirm-target", roleProductManager, "Confirm the target date",
			"Decide whether the current target still holds and communicate it {when}."},
	},
	domain.SlipLeadMisalignment: {
		{"reconcile-status", roleEngManager, "Reconcile reported and observed status",
			"The owner reports on track while the epic is overdue. Align on the real state {when}."},
		{"reset-target", roleProductManager, "Reset the target date",
			"Agree on a realistic delivery date and notify stakeholders {when}."},
		{"update-checkin", roleEpicOwner, "Update the weekly check-in",
			"Record a slip status that matches the new plan {when}."},
	},
	domain.SlipScopeCreep: {
		{"freeze-scope", roleProductManager, "Freeze scope",
			"Stop adding stories to the epic and triage recent additions {when}."},
		{"split-epic", roleProductManager, "Split out new work",
			"Move late-arriving stories into a follow-up epic {when}."},
		{"re-estimate", roleTechLead, "Re-estimate remaining work",
			"Estimate the grown backlog so the forecast reflects it {when}."},
	},
	domain.SlipDependencyBlocked: {
		{"escalate-dependency", roleEngManager, "Escalate the blocking dependency",
			"Contact the owning team and agree on a resolution date {when}."},
		{"unblock-plan", roleTechLead, "Plan around the blocker",
			"Identify work that can proceed without the dependency and start it {when}."},
		{"update-checkin", roleEpicOwner, "Update the weekly check-in",
			"Capture the dependency and its expected resolution {when}."},
	},
	domain.SlipStagnantWork: {
		{"triage-stalled", roleTechLead, "Triage stalled issues",
			"Review every open issue without recent movement and pick next steps {when}."},
		{"rebalance", roleEngManager, "Rebalance ownership",
			"Reassign or pair on stuck work so it moves again {when}."},
		{"update-checkin", roleEpicOwner, "Update the weekly check-in",
			"Explain why work stalled and what changes next {when}."},
	},
	domain.SlipNoPlan: {
		{"break-down", roleEpicOwner, "Break the epic into stories",
			"Create and link the stories needed to deliver the epic {when}."},
		{"estimate", roleTechLead, "Estimate the new stories",
			"Add story-point estimates so progress can be tracked {when}."},
		{"confirm-target", roleProductManager, "Confirm the target date",
			"Set or confirm a target date once the plan exists {when}."},
	},
	domain.SlipGenericHighRisk: {
		{"risk-review", roleEngManager, "Hold a risk review",
			"Review the top risk reasons with the owner and agree on mitigations {when}."},
		{"update-checkin", roleEpicOwner, "Update the weekly check-in",
			"Record the current status and the mitigation plan {when}."},
	},
	domain.SlipUnknown: {
		{"investigate", roleEpicOwner, "Investigate the risk drivers",
			"Look at the reasons listed for this epic and confirm whether they reflect reality {when}."},
		{"update-checkin", roleEpicOwner, "Update the weekly check-in",
			"Share what you find in the next check-in {when}."},
	},
}

// Playbook returns the ordered actions for a slip type at a severity.
func Playbook(slip domain.SlipType, sev domain.Severity) []domain.RecoveryAction {
	steps := playbooks[slip]
	actions := make([]domain.RecoveryAction, 0, len(steps))
	when := urgency[sev]
	for i, s := range steps {
		actions = append(actions, domain.RecoveryAction{
			ID:          s.id,
			OwnerRole:   s.role,
			Priority:    i + 1,
			Label:       s.label,
			Description: strings.ReplaceAll(s.text, "{when}", when),
		})
	}
	return actions
}

// Advise builds the recovery plan for an evaluation. Completed epics need no
// recovery.
func Advise(ev domain.Evaluation, selfReport *domain.WeeklyCheckin) domain.RecoveryPlan {
	if ev.Completed {
		return domain.RecoveryPlan{
			SlipType: domain.SlipNone,
			Severity: domain.SeverityNone,
			Actions:  []domain.RecoveryAction{},
			ETA:      recoveryETA[domain.SeverityNone],
		}
	}
	sev := SeverityFor(ev.Probability, ev.Band)
	slip := ClassifySlip(ev.Probability, ev.Band, ev.Reasons, selfReport)
	return domain.RecoveryPlan{
		SlipType: slip,
		Severity: sev,
		Actions:  Playbook(slip, sev),
		ETA:      recoveryETA[sev],
	}
}
