package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"epicrisk/internal/domain"
	"epicrisk/internal/metrics"
)

// Store is what the pipeline needs from persistence. Issues are loaded for
// all epics in one call.
type Store interface {
	ListActiveEpics(ctx context.Context, workspaceID string) ([]domain.Epic, error)
	ListIssuesForEpics(ctx context.Context, epicIDs []string) ([]domain.Issue, error)
	UpsertDailySignals(ctx context.Context, workspaceID string, rows []domain.DailyEpicSignal) error
}

type Pipeline struct {
	Store   Store
	Now     func() time.Time
	Log     zerolog.Logger
	Metrics *metrics.Registry
}

// Result describes one workspace run.
type Result struct {
	WorkspaceID string                   `json:"workspace_id"`
	Day         time.Time                `json:"day" format:"date-time"`
	Rows        []domain.DailyEpicSignal `json:"rows"`
	Skipped     []string                 `json:"skipped,omitempty"`
}

func (p Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run rolls up every active epic of the workspace for today. Re-running on
// the same day overwrites the day's rows. A single epic that cannot be
// computed is logged and skipped.
func (p Pipeline) Run(ctx context.Context, workspaceID string) (res Result, err error) {
	start := time.Now()
	defer func() { p.Metrics.ObserveStage("rollup", time.Since(start), err) }()

	now := p.now().UTC()
	res = Result{WorkspaceID: workspaceID, Day: Day(now)}
	log := p.Log.With().Str("workspace_id", workspaceID).Logger()

	epics, err := p.Store.ListActiveEpics(ctx, workspaceID)
	if err != nil {
		return res, fmt.Errorf("list active epics: %w", err)
	}
	if len(epics) == 0 {
		log.Debug().Msg("no active epics to roll up")
		return res, nil
	}
	ids := make([]string, len(epics))
	for i, e := range epics {
		ids[i] = e.ID
	}
	issues, err := p.Store.ListIssuesForEpics(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("list issues: %w", err)
	}
	byEpic := GroupByEpic(issues)

	for _, epic := range epics {
		row, err := computeGuarded(epic, byEpic[epic.ID], now)
		if err != nil {
			log.Error().Err(err).Str("epic_id", epic.ID).Msg("rollup skipped epic")
			p.Metrics.IncFailure(workspaceID, "rollup")
			res.Skipped = append(res.Skipped, epic.ID)
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	if err := p.Store.UpsertDailySignals(ctx, workspaceID, res.Rows); err != nil {
		return res, fmt.Errorf("upsert daily signals: %w", err)
	}
	p.Metrics.AddRollupRows(workspaceID, len(res.Rows))
	log.Info().Int("count", len(res.Rows)).Int("skipped", len(res.Skipped)).Msg("daily rollup complete")
	return res, nil
}

// GroupByEpic indexes issues by epic id, keeping input order within an epic.
func GroupByEpic(issues []domain.Issue) map[string][]domain.Issue {
	out := make(map[string][]domain.Issue)
	for _, is := range issues {
		out[is.EpicID] = append(out[is.EpicID], is)
	}
	return out
}

func computeGuarded(epic domain.Epic, issues []domain.Issue, now time.Time) (row domain.DailyEpicSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("epic %s: rollup panic: %v", epic.ID, r)
		}
	}()
	return Compute(epic, issues, now), nil
}
