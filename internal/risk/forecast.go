package risk

import "epicrisk/internal/domain"

const (
	Forecast3PlusWeeks = "3+ weeks"
	Forecast1To3Weeks  = "1–3 weeks"
	Forecast0To2Weeks  = "0–2 weeks"
	Forecast2To4Weeks  = "2–4 weeks"
	Forecast4To6Weeks  = "4–6 weeks"
	Forecast6PlusWeeks = "6+ weeks"
	Forecast2To6Weeks  = "2–6 weeks"
	ForecastCompleted  = "completed"
)

const (
	forecastTwoWeeks  = 14.0
	forecastFourWeeks = 28.0
	forecastSixWeeks  = 42.0
)

// ForecastWindow buckets the expected time to resolution. A fresh
// self-reported slip wins over the target date.
func ForecastWindow(daysToTarget *float64, band domain.RiskLevel, selfReport *domain.WeeklyCheckin) string {
	if selfReport != nil {
		switch selfReport.Status {
		case domain.CheckinSlip3Plus:
			return Forecast3PlusWeeks
		case domain.CheckinSlip1To3:
			return Forecast1To3Weeks
		}
	}
	if daysToTarget != nil {
		switch d := *daysToTarget; {
		case d <= forecastTwoWeeks:
			return Forecast0To2Weeks
		case d <= forecastFourWeeks:
			return Forecast2To4Weeks
		case d <= forecastSixWeeks:
			return Forecast4To6Weeks
		}
		return Forecast6PlusWeeks
	}
	if band == domain.RiskOffTrack || band == domain.RiskAtRisk {
		return Forecast2To6Weeks
	}
	return Forecast0To2Weeks
}
