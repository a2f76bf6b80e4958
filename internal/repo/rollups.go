package repo

import (
	"context"
	"database/sql"
	"time"

	"epicrisk/internal/domain"
)

const signalColumns = `epic_id,workspace_id,day,total_issues,done_issues,in_review_issues,other_issues,total_points,completed_points,stale_review_count,new_issues_today,new_bugs_today,days_since_last_done,computed_at`

func scanDailySignal(s rowScanner) (domain.DailyEpicSignal, error) {
	var d domain.DailyEpicSignal
	var day, computed string
	if err := s.Scan(&d.EpicID, &d.WorkspaceID, &day, &d.TotalIssues, &d.DoneIssues, &d.InReviewIssues, &d.OtherIssues,
		&d.TotalPoints, &d.CompletedPoints, &d.StaleReviewCount, &d.NewIssuesToday, &d.NewBugsToday, &d.DaysSinceLastDone, &computed); err != nil {
		return d, err
	}
	var err error
	if d.Day, err = time.Parse(dayLayout, day); err != nil {
		return d, err
	}
	d.ComputedAt, err = parseTime(computed)
	return d, err
}

// UpsertDailySignalTx writes the (epic, day) row, replacing any earlier run
// of the same day.
func (r Repo) UpsertDailySignalTx(ctx context.Context, tx *sql.Tx, d domain.DailyEpicSignal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO daily_epic_signals(`+signalColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(epic_id, day) DO UPDATE SET workspace_id=excluded.workspace_id, total_issues=excluded.total_issues,
  done_issues=excluded.done_issues, in_review_issues=excluded.in_review_issues, other_issues=excluded.other_issues,
  total_points=excluded.total_points, completed_points=excluded.completed_points,
  stale_review_count=excluded.stale_review_count, new_issues_today=excluded.new_issues_today,
  new_bugs_today=excluded.new_bugs_today, days_since_last_done=excluded.days_since_last_done,
  computed_at=excluded.computed_at`,
		d.EpicID, d.WorkspaceID, d.Day.UTC().Format(dayLayout), d.TotalIssues, d.DoneIssues, d.InReviewIssues, d.OtherIssues,
		d.TotalPoints, d.CompletedPoints, d.StaleReviewCount, d.NewIssuesToday, d.NewBugsToday, d.DaysSinceLastDone,
		formatTime(d.ComputedAt))
	return err
}

// LatestDailySignals returns the most recent rollup day of every epic in the
// workspace, in one query.
func (r Repo) LatestDailySignals(ctx context.Context, workspaceID string) ([]domain.DailyEpicSignal, error) {
	return r.listDailySignals(ctx, `SELECT `+signalColumns+` FROM daily_epic_signals d
WHERE d.workspace_id=? AND d.day=(SELECT MAX(day) FROM daily_epic_signals x WHERE x.epic_id=d.epic_id)
ORDER BY d.epic_id`, workspaceID)
}

// ListDailySignals returns an epic's rollups newest first.
func (r Repo) ListDailySignals(ctx context.Context, epicID string, limit int) ([]domain.DailyEpicSignal, error) {
	if limit <= 0 {
		limit = 30
	}
	return r.listDailySignals(ctx, `SELECT `+signalColumns+` FROM daily_epic_signals WHERE epic_id=? ORDER BY day DESC, computed_at DESC LIMIT ?`, epicID, limit)
}

func (r Repo) listDailySignals(ctx context.Context, query string, args ...any) ([]domain.DailyEpicSignal, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DailyEpicSignal
	for rows.Next() {
		d, err := scanDailySignal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
