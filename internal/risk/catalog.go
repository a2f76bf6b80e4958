package risk

import "strings"

type SignalID string

const (
	SignalNoIssues             SignalID = "no_issues"
	SignalNoEstimates          SignalID = "no_estimates"
	SignalNoTargetDate         SignalID = "no_target_date"
	SignalNoOwner              SignalID = "no_owner"
	SignalScopeGrowth          SignalID = "scope_growth"
	SignalNoMovement14d        SignalID = "no_movement_14d"
	SignalNoMovement7d         SignalID = "no_movement_7d"
	SignalPastDue              SignalID = "past_due"
	SignalDueSoonLowCompletion SignalID = "due_soon_low_completion"
	SignalHighWIP              SignalID = "high_wip"
	SignalLongRunningIssues    SignalID = "long_running_issues"
	SignalHighBugCount         SignalID = "high_bug_count"
	SignalCriticalBugOpen      SignalID = "critical_bug_open"
	SignalOwnerLowThroughput   SignalID = "owner_low_throughput"
	SignalOwnerHighThroughput  SignalID = "owner_high_throughput"
	SignalOwnerHighReopen      SignalID = "owner_high_reopen"
	SignalOwnerReliable        SignalID = "owner_reliable"
	SignalOwnerInactive        SignalID = "owner_inactive"
	SignalStaleCheckin         SignalID = "stale_checkin"
	SignalHighCompletion       SignalID = "high_completion"
	SignalRecentMovement       SignalID = "recent_movement"
	SignalOnPace               SignalID = "on_pace"
)

type Category string

const (
	CategoryPlanning  Category = "planning"
	CategoryExecution Category = "execution"
	CategoryBugs      Category = "bugs"
	CategoryOwner     Category = "owner"
	CategoryCheckin   Category = "checkin"
)

type Polarity string

const (
	// Negative signals increase risk.
	Negative Polarity = "negative"
	Positive Polarity = "positive"
)

// Definition is one catalog entry. Template placeholders are written {name}.
type Definition struct {
	ID       SignalID
	Category Category
	Polarity Polarity
	Weight   int
	Template string
	HardRed  bool
}

// Magnitude is |Weight|.
func (d Definition) Magnitude() int {
	if d.Weight < 0 {
		return -d.Weight
	}
	return d.Weight
}

var catalog = []Definition{
	{ID: SignalNoIssues, Category: CategoryPlanning, Polarity: Negative, Weight: 12,
		Template: "No linked stories: the epic has no issues attached"},
	{ID: SignalNoEstimates, Category: CategoryPlanning, Polarity: Negative, Weight: 6,
		Template: "None of the {count} issues carry story-point estimates"},
	{ID: SignalNoTargetDate, Category: CategoryPlanning, Polarity: Negative, Weight: 8,
		Template: "No target delivery date is set"},
	{ID: SignalNoOwner, Category: CategoryPlanning, Polarity: Negative, Weight: 6,
		Template: "No owner is assigned to the epic"},
	{ID: SignalScopeGrowth, Category: CategoryPlanning, Polarity: Negative, Weight: 7,
		Template: "Scope creep: {count} stories added in the last 7 days"},
	{ID: SignalNoMovement14d, Category: CategoryExecution, Polarity: Negative, Weight: 14,
		Template: "No movement in {days} days; work looks stuck"},
	{ID: SignalNoMovement7d, Category: CategoryExecution, Polarity: Negative, Weight: 7,
		Template: "No movement in {days} days"},
	{ID: SignalPastDue, Category: CategoryExecution, Polarity: Negative, Weight: 20, HardRed: true,
		Template: "Past due: target date passed {days} days ago with {pct}% of issues done"},
	{ID: SignalDueSoonLowCompletion, Category: CategoryExecution, Polarity: Negative, Weight: 12,
		Template: "Target date is {days} days away with only {pct}% of issues done"},
	{ID: SignalHighWIP, Category: CategoryExecution, Polarity: Negative, Weight: 6,
		Template: "{count} issues in progress at once (high WIP)"},
	{ID: SignalLongRunningIssues, Category: CategoryExecution, Polarity: Negative, Weight: 5,
		Template: "{count} open issues were created more than 14 days ago"},
	{ID: SignalHighBugCount, Category: CategoryBugs, Polarity: Negative, Weight: 6,
		Template: "{count} bugs are linked to the epic"},
	{ID: SignalCriticalBugOpen, Category: CategoryBugs, Polarity: Negative, Weight: 10,
		Template: "{count} open critical or blocker bugs"},
	{ID: SignalOwnerLowThroughput, Category: CategoryOwner, Polarity: Negative, Weight: 5,
		Template: "Owner completed only {count} stories in the last 30 days"},
	{ID: SignalOwnerHighThroughput, Category: CategoryOwner, Polarity: Positive, Weight: -4,
		Template: "Owner completed {count} stories in the last 30 days"},
	{ID: SignalOwnerHighReopen, Category: CategoryOwner, Polarity: Negative, Weight: 5,
		Template: "Owner reopen rate is {pct}% over the last 30 days"},
	{ID: SignalOwnerReliable, Category: CategoryOwner, Polarity: Positive, Weight: -6,
		Template: "Owner delivered {ontime} of {owned} epics on time"},
	{ID: SignalOwnerInactive, Category: CategoryOwner, Polarity: Negative, Weight: 8,
		Template: "No owner activity while the epic has been idle for {days} days"},
	{ID: SignalStaleCheckin, Category: CategoryCheckin, Polarity: Negative, Weight: 6,
		Template: "No weekly check-in in the last {days} days"},
	{ID: SignalHighCompletion, Category: CategoryExecution, Polarity: Positive, Weight: -10,
		Template: "Steady progress: {pct}% of issues done"},
	{ID: SignalRecentMovement, Category: CategoryExecution, Polarity: Positive, Weight: -6,
		Template: "Recent movement within the last 3 days"},
	{ID: SignalOnPace, Category: CategoryExecution, Polarity: Positive, Weight: -8,
		Template: "On pace: {pct}% done with {days} days to target"},
}

var catalogIndex = func() map[SignalID]int {
	idx := make(map[SignalID]int, len(catalog))
	for i, d := range catalog {
		idx[d.ID] = i
	}
	return idx
}()

// Definitions returns the catalog in its canonical order.
func Definitions() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a catalog entry.
func Lookup(id SignalID) (Definition, bool) {
	i, ok := catalogIndex[id]
	if !ok {
		return Definition{}, false
	}
	return catalog[i], true
}

// order is the catalog position, used to break weight ties.
func (id SignalID) order() int {
	if i, ok := catalogIndex[id]; ok {
		return i
	}
	return len(catalog)
}

// TriggeredSignal is a catalog entry instantiated for one epic.
type TriggeredSignal struct {
	Definition
	Message string
}

func trigger(id SignalID, params map[string]string) TriggeredSignal {
	def, ok := Lookup(id)
	if !ok {
		panic("risk: signal " + string(id) + " missing from catalog")
	}
	msg := def.Template
	if len(params) > 0 {
		pairs := make([]string, 0, len(params)*2)
		for k, v := range params {
			pairs = append(pairs, "{"+k+"}", v)
		}
		msg = strings.NewReplacer(pairs...).Replace(msg)
	}
	return TriggeredSignal{Definition: def, Message: msg}
}
