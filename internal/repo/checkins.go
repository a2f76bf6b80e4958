package repo

import (
	"context"
	"database/sql"

	"epicrisk/internal/domain"
)

const checkinColumns = `epic_id,workspace_id,week_start,status,COALESCE(reason,''),COALESCE(submitted_by,''),submitted_at`

func scanCheckin(s rowScanner) (domain.WeeklyCheckin, error) {
	var c domain.WeeklyCheckin
	var week, submitted, status string
	if err := s.Scan(&c.EpicID, &c.WorkspaceID, &week, &status, &c.Reason, &c.SubmittedBy, &submitted); err != nil {
		return c, err
	}
	c.Status = domain.CheckinStatus(status)
	var err error
	if c.WeekStart, err = parseTime(week); err != nil {
		return c, err
	}
	c.SubmittedAt, err = parseTime(submitted)
	return c, err
}

// UpsertCheckinTx keeps one check-in per (epic, ISO week); a resubmission
// in the same week replaces the earlier one.
func (r Repo) UpsertCheckinTx(ctx context.Context, tx *sql.Tx, c domain.WeeklyCheckin) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO weekly_checkins(epic_id,workspace_id,week_start,status,reason,submitted_by,submitted_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(epic_id, week_start) DO UPDATE SET status=excluded.status, reason=excluded.reason,
  submitted_by=excluded.submitted_by, submitted_at=excluded.submitted_at`,
		c.EpicID, c.WorkspaceID, formatTime(domain.WeekStart(c.WeekStart)), string(c.Status), nullable(c.Reason),
		nullable(c.SubmittedBy), formatTime(c.SubmittedAt))
	return err
}

// ListCheckins returns every check-in in the workspace, newest first.
func (r Repo) ListCheckins(ctx context.Context, workspaceID string) ([]domain.WeeklyCheckin, error) {
	return r.listCheckins(ctx, `SELECT `+checkinColumns+` FROM weekly_checkins WHERE workspace_id=? ORDER BY week_start DESC, submitted_at DESC`, workspaceID)
}

func (r Repo) ListEpicCheckins(ctx context.Context, epicID string, limit int) ([]domain.WeeklyCheckin, error) {
	if limit <= 0 {
		limit = 12
	}
	return r.listCheckins(ctx, `SELECT `+checkinColumns+` FROM weekly_checkins WHERE epic_id=? ORDER BY week_start DESC, submitted_at DESC LIMIT ?`, epicID, limit)
}

func (r Repo) listCheckins(ctx context.Context, query string, args ...any) ([]domain.WeeklyCheckin, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WeeklyCheckin
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
