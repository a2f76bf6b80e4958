package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"epicrisk/internal/domain"
	"epicrisk/internal/metrics"
	"epicrisk/internal/orchestrator"
	"epicrisk/internal/rollup"
)

// Cycle is one unit of scheduled work.
type Cycle interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

type WorkspaceLister interface {
	ListWorkspaces(ctx context.Context) ([]domain.Workspace, error)
}

type RollupStage interface {
	Run(ctx context.Context, workspaceID string) (rollup.Result, error)
}

type EvaluateStage interface {
	Run(ctx context.Context, workspaceID string) (orchestrator.Report, error)
}

// WorkspaceReport is the outcome of both stages for one workspace.
type WorkspaceReport struct {
	WorkspaceID string              `json:"workspace_id"`
	Rollup      rollup.Result       `json:"rollup"`
	Evaluation  orchestrator.Report `json:"evaluation"`
	Error       string              `json:"error,omitempty"`
}

type CycleReport struct {
	StartedAt  time.Time         `json:"started_at" format:"date-time"`
	FinishedAt time.Time         `json:"finished_at" format:"date-time"`
	Workspaces []WorkspaceReport `json:"workspaces"`
}

// Runner runs the daily rollup and then the evaluation for every workspace.
// Workspaces run in parallel up to Parallelism; within a workspace the
// rollup always completes before evaluation starts.
type Runner struct {
	Workspaces  WorkspaceLister
	Rollup      RollupStage
	Evaluate    EvaluateStage
	Parallelism int
	Now         func() time.Time
	Log         zerolog.Logger
	Metrics     *metrics.Registry
}

func (r Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RunWorkspace runs both stages for a single workspace.
func (r Runner) RunWorkspace(ctx context.Context, workspaceID string) (WorkspaceReport, error) {
	rep := WorkspaceReport{WorkspaceID: workspaceID}
	res, err := r.Rollup.Run(ctx, workspaceID)
	rep.Rollup = res
	if err != nil {
		return rep, fmt.Errorf("workspace %s rollup: %w", workspaceID, err)
	}
	ev, err := r.Evaluate.Run(ctx, workspaceID)
	rep.Evaluation = ev
	if err != nil {
		return rep, fmt.Errorf("workspace %s evaluate: %w", workspaceID, err)
	}
	return rep, nil
}

// RunCycle processes every workspace. A failing workspace does not stop the
// others; all failures are joined into the returned error.
func (r Runner) RunCycle(ctx context.Context) (rep CycleReport, err error) {
	defer func() { r.Metrics.IncCycle(err) }()
	rep.StartedAt = r.now().UTC()

	workspaces, err := r.Workspaces.ListWorkspaces(ctx)
	if err != nil {
		return rep, fmt.Errorf("list workspaces: %w", err)
	}

	limit := r.Parallelism
	if limit <= 0 {
		limit = 1
	}
	rep.Workspaces = make([]WorkspaceReport, len(workspaces))
	errs := make([]error, len(workspaces))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, ws := range workspaces {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				rep.Workspaces[i] = WorkspaceReport{WorkspaceID: ws.ID, Error: err.Error()}
				errs[i] = err
				return nil
			}
			wr, err := r.RunWorkspace(ctx, ws.ID)
			if err != nil {
				r.Log.Error().Err(err).Str("workspace_id", ws.ID).Msg("workspace cycle failed")
				wr.Error = err.Error()
				errs[i] = err
			}
			rep.Workspaces[i] = wr
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = r.now().UTC()
	err = errors.Join(errs...)
	r.Log.Info().Int("count", len(workspaces)).Dur("elapsed", rep.FinishedAt.Sub(rep.StartedAt)).
		Bool("ok", err == nil).Msg("cycle finished")
	return rep, err
}
