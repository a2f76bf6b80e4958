package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"epicrisk/internal/config"
	"epicrisk/internal/domain"
	"epicrisk/internal/events"
	"epicrisk/internal/metrics"
	"epicrisk/internal/orchestrator"
	"epicrisk/internal/repo"
	"epicrisk/internal/rollup"
	"epicrisk/internal/scheduler"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Log     zerolog.Logger
	Metrics *metrics.Registry
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) writer() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// CreateWorkspace registers a new workspace.
func (e Engine) CreateWorkspace(ctx context.Context, id, name, actorID string) (domain.Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Workspace{}, errors.New("workspace id is required")
	}
	if name == "" {
		name = id
	}
	ws := domain.Workspace{ID: id, Name: name, CreatedAt: e.now().UTC()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertWorkspaceTx(ctx, tx, ws); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.TypeWorkspaceCreated, ws.ID, "workspace", ws.ID, actorID, events.Payload{"name": ws.Name}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return ws, nil
}

// UpsertDailySignals writes one day's rollup rows atomically.
func (e Engine) UpsertDailySignals(ctx context.Context, workspaceID string, rows []domain.DailyEpicSignal) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, row := range rows {
		row.WorkspaceID = workspaceID
		if err := e.Repo.UpsertDailySignalTx(ctx, tx, row); err != nil {
			return fmt.Errorf("upsert rollup %s: %w", row.EpicID, err)
		}
	}
	if err := e.writer().Append(ctx, tx, events.TypeRollupUpserted, workspaceID, "workspace", workspaceID, events.ActorSystem, events.Payload{
		"day":   rows[0].Day.UTC().Format("2006-01-02"),
		"count": len(rows),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendSnapshots records a batch of evaluations atomically.
func (e Engine) AppendSnapshots(ctx context.Context, workspaceID string, snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range snaps {
		if err := e.Repo.InsertSnapshotTx(ctx, tx, s); err != nil {
			return fmt.Errorf("insert snapshot for epic %s: %w", s.EpicID, err)
		}
		payload := events.Payload{
			"risk_level":  s.Evaluation.RiskLevel,
			"probability": s.Evaluation.Probability,
			"snapshot_id": s.ID,
		}
		if s.ProbabilityDelta != nil {
			payload["probability_delta"] = *s.ProbabilityDelta
		}
		if err := e.writer().Append(ctx, tx, events.TypeSnapshotRecorded, workspaceID, "epic", s.EpicID, events.ActorSystem, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CheckinInput is a weekly self-report as submitted by a person.
type CheckinInput struct {
	WorkspaceID string
	EpicID      string
	Status      domain.CheckinStatus
	Reason      string
	SubmittedBy string
}

// SubmitCheckin stores the check-in for the current ISO week, replacing an
// earlier submission in the same week.
func (e Engine) SubmitCheckin(ctx context.Context, in CheckinInput) (domain.WeeklyCheckin, error) {
	if !in.Status.Valid() {
		return domain.WeeklyCheckin{}, fmt.Errorf("invalid check-in status %q (want on_track, slip_1_3 or slip_3_plus)", in.Status)
	}
	epic, err := e.Repo.GetEpic(ctx, in.EpicID)
	if err != nil {
		return domain.WeeklyCheckin{}, fmt.Errorf("epic %s: %w", in.EpicID, err)
	}
	if in.WorkspaceID != "" && epic.WorkspaceID != in.WorkspaceID {
		return domain.WeeklyCheckin{}, fmt.Errorf("epic %s: %w", in.EpicID, repo.ErrNotFound)
	}
	now := e.now().UTC()
	c := domain.WeeklyCheckin{
		EpicID:      epic.ID,
		WorkspaceID: epic.WorkspaceID,
		WeekStart:   domain.WeekStart(now),
		Status:      in.Status,
		Reason:      strings.TrimSpace(in.Reason),
		SubmittedBy: in.SubmittedBy,
		SubmittedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WeeklyCheckin{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertCheckinTx(ctx, tx, c); err != nil {
		return domain.WeeklyCheckin{}, fmt.Errorf("upsert checkin: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.TypeCheckinSubmitted, c.WorkspaceID, "epic", c.EpicID, in.SubmittedBy, events.Payload{
		"status":     c.Status,
		"week_start": c.WeekStart.Format("2006-01-02"),
	}); err != nil {
		return domain.WeeklyCheckin{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WeeklyCheckin{}, err
	}
	return c, nil
}

// store wires the repository and the engine's transactional writes into the
// interfaces the pipeline and orchestrator consume.
type store struct {
	repo.Repo
	eng Engine
}

func (s store) UpsertDailySignals(ctx context.Context, workspaceID string, rows []domain.DailyEpicSignal) error {
	return s.eng.UpsertDailySignals(ctx, workspaceID, rows)
}

func (s store) AppendSnapshots(ctx context.Context, workspaceID string, snaps []domain.Snapshot) error {
	return s.eng.AppendSnapshots(ctx, workspaceID, snaps)
}

func (e Engine) Pipeline() rollup.Pipeline {
	return rollup.Pipeline{Store: store{Repo: e.Repo, eng: e}, Now: e.now, Log: e.Log, Metrics: e.Metrics}
}

func (e Engine) Orchestrator() orchestrator.Orchestrator {
	s := store{Repo: e.Repo, eng: e}
	return orchestrator.Orchestrator{Store: s, Writer: s, Now: e.now, Log: e.Log, Metrics: e.Metrics}
}

func (e Engine) Runner() scheduler.Runner {
	parallelism := 1
	if e.Config != nil {
		parallelism = e.Config.Schedule.Parallelism
	}
	return scheduler.Runner{
		Workspaces:  e.Repo,
		Rollup:      e.Pipeline(),
		Evaluate:    e.Orchestrator(),
		Parallelism: parallelism,
		Now:         e.now,
		Log:         e.Log,
		Metrics:     e.Metrics,
	}
}

// RunCycle runs rollup then evaluation for every workspace and records the
// outcome in the event log.
func (e Engine) RunCycle(ctx context.Context) (scheduler.CycleReport, error) {
	rep, cycleErr := e.Runner().RunCycle(ctx)
	failed := 0
	for _, ws := range rep.Workspaces {
		if ws.Error != "" {
			failed++
		}
	}
	if err := e.recordCycle(ctx, "", len(rep.Workspaces), failed); err != nil {
		return rep, errors.Join(cycleErr, err)
	}
	return rep, cycleErr
}

// RunWorkspace runs one cycle for a single workspace.
func (e Engine) RunWorkspace(ctx context.Context, workspaceID string) (scheduler.WorkspaceReport, error) {
	if _, err := e.Repo.GetWorkspace(ctx, workspaceID); err != nil {
		return scheduler.WorkspaceReport{}, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	rep, runErr := e.Runner().RunWorkspace(ctx, workspaceID)
	failed := 0
	if runErr != nil {
		failed = 1
	}
	if err := e.recordCycle(ctx, workspaceID, 1, failed); err != nil {
		return rep, errors.Join(runErr, err)
	}
	return rep, runErr
}

func (e Engine) recordCycle(ctx context.Context, workspaceID string, workspaces, failed int) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.writer().Append(ctx, tx, events.TypeCycleCompleted, workspaceID, "cycle", "", events.ActorSystem, events.Payload{
		"workspaces": workspaces,
		"failed":     failed,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Summary aggregates the newest snapshot of every epic in the workspace.
func (e Engine) Summary(ctx context.Context, workspaceID string) (domain.WorkspaceSummary, error) {
	snaps, err := e.Repo.LatestSnapshots(ctx, workspaceID)
	if err != nil {
		return domain.WorkspaceSummary{}, err
	}
	return orchestrator.Summarize(workspaceID, snaps, e.now().UTC()), nil
}

// Preview evaluates one epic without recording a snapshot.
func (e Engine) Preview(ctx context.Context, epicID string) (domain.Snapshot, error) {
	epic, err := e.Repo.GetEpic(ctx, epicID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("epic %s: %w", epicID, err)
	}
	return e.Orchestrator().Preview(ctx, epic.WorkspaceID, epic.ID)
}
