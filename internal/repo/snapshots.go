package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"epicrisk/internal/domain"
)

const snapshotColumns = `id,workspace_id,epic_id,evaluated_at,recorded_at,probability_delta,evaluation_json,recovery_json`

func scanSnapshot(s rowScanner) (domain.Snapshot, error) {
	var (
		snap                 domain.Snapshot
		evaluated, recorded  string
		delta                sql.NullInt64
		evaluation, recovery string
	)
	if err := s.Scan(&snap.ID, &snap.WorkspaceID, &snap.EpicID, &evaluated, &recorded, &delta, &evaluation, &recovery); err != nil {
		return snap, err
	}
	var err error
	if snap.EvaluatedAt, err = parseTime(evaluated); err != nil {
		return snap, err
	}
	if snap.RecordedAt, err = parseTime(recorded); err != nil {
		return snap, err
	}
	if delta.Valid {
		d := int(delta.Int64)
		snap.ProbabilityDelta = &d
	}
	if err := json.Unmarshal([]byte(evaluation), &snap.Evaluation); err != nil {
		return snap, fmt.Errorf("snapshot %s evaluation: %w", snap.ID, err)
	}
	if err := json.Unmarshal([]byte(recovery), &snap.Recovery); err != nil {
		return snap, fmt.Errorf("snapshot %s recovery: %w", snap.ID, err)
	}
	return snap, nil
}

// InsertSnapshotTx appends a snapshot. Snapshots are never updated.
func (r Repo) InsertSnapshotTx(ctx context.Context, tx *sql.Tx, s domain.Snapshot) error {
	evaluation, err := marshalJSON(s.Evaluation)
	if err != nil {
		return err
	}
	recovery, err := marshalJSON(s.Recovery)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO snapshots(id,workspace_id,epic_id,evaluated_at,recorded_at,risk_level,band,probability,probability_delta,evaluation_json,recovery_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.WorkspaceID, s.EpicID, formatTime(s.EvaluatedAt), formatTime(s.RecordedAt),
		string(s.Evaluation.RiskLevel), string(s.Evaluation.Band), s.Evaluation.Probability, nullableIntPtr(s.ProbabilityDelta),
		evaluation, recovery)
	return err
}

// LatestSnapshots returns the newest snapshot of every epic in the workspace,
// ordered by evaluation time then insertion time.
func (r Repo) LatestSnapshots(ctx context.Context, workspaceID string) ([]domain.Snapshot, error) {
	return r.listSnapshots(ctx, `SELECT `+snapshotColumns+` FROM snapshots s
WHERE s.workspace_id=? AND s.id=(
  SELECT x.id FROM snapshots x WHERE x.epic_id=s.epic_id
  ORDER BY x.evaluated_at DESC, x.recorded_at DESC, x.rowid DESC LIMIT 1)
ORDER BY s.epic_id`, workspaceID)
}

// ListSnapshots returns an epic's snapshot history, newest first.
func (r Repo) ListSnapshots(ctx context.Context, epicID string, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.listSnapshots(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE epic_id=?
ORDER BY evaluated_at DESC, recorded_at DESC, rowid DESC LIMIT ?`, epicID, limit)
}

func (r Repo) LatestSnapshot(ctx context.Context, epicID string) (domain.Snapshot, error) {
	res, err := r.ListSnapshots(ctx, epicID, 1)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(res) == 0 {
		return domain.Snapshot{}, ErrNotFound
	}
	return res[0], nil
}

func (r Repo) listSnapshots(ctx context.Context, query string, args ...any) ([]domain.Snapshot, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
