package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"epicrisk/internal/domain"
	"epicrisk/internal/metrics"
	"epicrisk/internal/risk"
	"epicrisk/internal/rollup"
)

// Store loads one workspace in a fixed number of queries regardless of the
// number of epics.
type Store interface {
	ListEpics(ctx context.Context, workspaceID string) ([]domain.Epic, error)
	ListWorkspaceIssues(ctx context.Context, workspaceID string) ([]domain.Issue, error)
	LatestDailySignals(ctx context.Context, workspaceID string) ([]domain.DailyEpicSignal, error)
	ListCheckins(ctx context.Context, workspaceID string) ([]domain.WeeklyCheckin, error)
	LatestSnapshots(ctx context.Context, workspaceID string) ([]domain.Snapshot, error)
}

// SnapshotWriter appends a batch of snapshots atomically.
type SnapshotWriter interface {
	AppendSnapshots(ctx context.Context, workspaceID string, snaps []domain.Snapshot) error
}

// AssessFunc evaluates one epic. risk.Assess is the default.
type AssessFunc func(risk.Input) (domain.Evaluation, domain.RecoveryPlan, error)

type Orchestrator struct {
	Store   Store
	Writer  SnapshotWriter
	Assess  AssessFunc
	Now     func() time.Time
	NewID   func() string
	Log     zerolog.Logger
	Metrics *metrics.Registry
}

type Failure struct {
	EpicID string `json:"epic_id"`
	Error  string `json:"error"`
}

// Report is the outcome of one workspace run.
type Report struct {
	WorkspaceID string                  `json:"workspace_id"`
	EvaluatedAt time.Time               `json:"evaluated_at" format:"date-time"`
	Snapshots   []domain.Snapshot       `json:"snapshots"`
	Failures    []Failure               `json:"failures"`
	Summary     domain.WorkspaceSummary `json:"summary"`
}

func (o Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Orchestrator) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

// batch is the workspace state indexed once per run.
type batch struct {
	epics    []domain.Epic
	issues   map[string][]domain.Issue
	rollups  map[string]domain.DailyEpicSignal
	checkins map[string][]domain.WeeklyCheckin
	prior    map[string]domain.Snapshot
	owners   map[string]domain.OwnerMetrics
}

func (o Orchestrator) load(ctx context.Context, workspaceID string, now time.Time) (batch, error) {
	var b batch
	epics, err := o.Store.ListEpics(ctx, workspaceID)
	if err != nil {
		return b, fmt.Errorf("list epics: %w", err)
	}
	issues, err := o.Store.ListWorkspaceIssues(ctx, workspaceID)
	if err != nil {
		return b, fmt.Errorf("list issues: %w", err)
	}
	rollups, err := o.Store.LatestDailySignals(ctx, workspaceID)
	if err != nil {
		return b, fmt.Errorf("list rollups: %w", err)
	}
	checkins, err := o.Store.ListCheckins(ctx, workspaceID)
	if err != nil {
		return b, fmt.Errorf("list checkins: %w", err)
	}
	prior, err := o.Store.LatestSnapshots(ctx, workspaceID)
	if err != nil {
		return b, fmt.Errorf("list snapshots: %w", err)
	}

	b.epics = epics
	b.issues = rollup.GroupByEpic(issues)
	b.rollups = newestPerEpic(rollups, domain.RollupRecency, func(d domain.DailyEpicSignal) string { return d.EpicID })
	b.prior = newestPerEpic(prior, domain.SnapshotRecency, func(s domain.Snapshot) string { return s.EpicID })
	b.checkins = map[string][]domain.WeeklyCheckin{}
	for _, c := range checkins {
		b.checkins[c.EpicID] = append(b.checkins[c.EpicID], c)
	}
	for id, cs := range b.checkins {
		b.checkins[id] = domain.CheckinRecency.SortNewestFirst(cs)
	}
	b.owners = DeriveOwnerMetrics(epics, issues, now)
	return b, nil
}

func newestPerEpic[T any](items []T, rec domain.Recency[T], epicOf func(T) string) map[string]T {
	grouped := map[string][]T{}
	for _, it := range items {
		grouped[epicOf(it)] = append(grouped[epicOf(it)], it)
	}
	out := make(map[string]T, len(grouped))
	for id, group := range grouped {
		if n, ok := rec.Newest(group); ok {
			out[id] = n
		}
	}
	return out
}

func (b batch) input(e domain.Epic, now time.Time) risk.Input {
	in := risk.Input{
		Epic:     e,
		Issues:   b.issues[e.ID],
		Checkins: b.checkins[e.ID],
		Now:      now,
	}
	if r, ok := b.rollups[e.ID]; ok {
		in.Rollup = &r
	}
	if m, ok := b.owners[ownerKey(e.Owner())]; ok && e.Owner() != "" {
		in.Owner = &m
	}
	return in
}

// Run evaluates every epic of the workspace and appends one snapshot per
// successful evaluation. A failing epic is logged and skipped; only load and
// write failures abort the run.
func (o Orchestrator) Run(ctx context.Context, workspaceID string) (rep Report, err error) {
	start := time.Now()
	defer func() { o.Metrics.ObserveStage("evaluate", time.Since(start), err) }()

	now := o.now().UTC()
	rep = Report{WorkspaceID: workspaceID, EvaluatedAt: now, Snapshots: []domain.Snapshot{}, Failures: []Failure{}}
	log := o.Log.With().Str("workspace_id", workspaceID).Logger()

	b, err := o.load(ctx, workspaceID, now)
	if err != nil {
		return rep, err
	}

	assess := o.Assess
	if assess == nil {
		assess = risk.Assess
	}
	for _, e := range b.epics {
		ev, plan, err := assessGuarded(assess, b.input(e, now))
		if err != nil {
			log.Error().Err(err).Str("epic_id", e.ID).Msg("evaluation skipped epic")
			o.Metrics.IncFailure(workspaceID, "evaluate")
			rep.Failures = append(rep.Failures, Failure{EpicID: e.ID, Error: err.Error()})
			continue
		}
		snap := domain.Snapshot{
			ID:          o.newID(),
			WorkspaceID: workspaceID,
			EpicID:      e.ID,
			EvaluatedAt: now,
			Evaluation:  ev,
			Recovery:    plan,
		}
		if prev, ok := b.prior[e.ID]; ok {
			d := ev.Probability - prev.Evaluation.Probability
			snap.ProbabilityDelta = &d
		}
		rep.Snapshots = append(rep.Snapshots, snap)
	}

	recordedAt := o.now().UTC()
	for i := range rep.Snapshots {
		rep.Snapshots[i].RecordedAt = recordedAt
	}
	if len(rep.Snapshots) > 0 {
		if err := o.Writer.AppendSnapshots(ctx, workspaceID, rep.Snapshots); err != nil {
			return rep, fmt.Errorf("append snapshots: %w", err)
		}
	}
	for _, s := range rep.Snapshots {
		o.Metrics.IncEvaluation(workspaceID, string(s.Evaluation.RiskLevel))
	}

	latest := make([]domain.Snapshot, 0, len(b.prior)+len(rep.Snapshots))
	for _, s := range b.prior {
		latest = append(latest, s)
	}
	latest = append(latest, rep.Snapshots...)
	rep.Summary = Summarize(workspaceID, latest, now)
	o.Metrics.SetRiskLevels(workspaceID, levelCounts(rep.Summary))

	log.Info().Int("count", len(rep.Snapshots)).Int("failed", len(rep.Failures)).
		Float64("average_probability", rep.Summary.AverageProbability).Msg("workspace evaluated")
	return rep, nil
}

func assessGuarded(assess AssessFunc, in risk.Input) (ev domain.Evaluation, plan domain.RecoveryPlan, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("epic %s: evaluation panic: %v", in.Epic.ID, r)
		}
	}()
	return assess(in)
}

// Summarize rolls the newest snapshot of each epic up into workspace counts.
// Older snapshots for the same epic are ignored.
func Summarize(workspaceID string, snaps []domain.Snapshot, now time.Time) domain.WorkspaceSummary {
	latest := newestPerEpic(snaps, domain.SnapshotRecency, func(s domain.Snapshot) string { return s.EpicID })
	sum := domain.WorkspaceSummary{
		WorkspaceID: workspaceID,
		EpicCount:   len(latest),
		ByRiskLevel: map[domain.RiskLevel]int{
			domain.RiskOnTrack:  0,
			domain.RiskAtRisk:   0,
			domain.RiskOffTrack: 0,
		},
		GeneratedAt: now,
	}
	if len(latest) == 0 {
		return sum
	}
	total := 0
	for _, s := range latest {
		sum.ByRiskLevel[s.Evaluation.RiskLevel]++
		total += s.Evaluation.Probability
	}
	sum.AverageProbability = math.Round(float64(total)/float64(len(latest))*100) / 100
	return sum
}

func levelCounts(s domain.WorkspaceSummary) map[string]int {
	out := make(map[string]int, len(s.ByRiskLevel))
	for k, v := range s.ByRiskLevel {
		out[string(k)] = v
	}
	return out
}

// ErrUnknownEpic is returned by Preview for an epic outside the workspace.
var ErrUnknownEpic = errors.New("epic not in workspace")

// Preview evaluates a single epic against the current workspace state
// without recording a snapshot.
func (o Orchestrator) Preview(ctx context.Context, workspaceID, epicID string) (domain.Snapshot, error) {
	now := o.now().UTC()
	b, err := o.load(ctx, workspaceID, now)
	if err != nil {
		return domain.Snapshot{}, err
	}
	assess := o.Assess
	if assess == nil {
		assess = risk.Assess
	}
	for _, e := range b.epics {
		if e.ID != epicID {
			continue
		}
		ev, plan, err := assessGuarded(assess, b.input(e, now))
		if err != nil {
			return domain.Snapshot{}, err
		}
		snap := domain.Snapshot{WorkspaceID: workspaceID, EpicID: e.ID, EvaluatedAt: now, RecordedAt: now, Evaluation: ev, Recovery: plan}
		if prev, ok := b.prior[e.ID]; ok {
			d := ev.Probability - prev.Evaluation.Probability
			snap.ProbabilityDelta = &d
		}
		return snap, nil
	}
	return domain.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownEpic, epicID)
}
