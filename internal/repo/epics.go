package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"epicrisk/internal/domain"
)

const epicColumns = `id,workspace_id,COALESCE(key,''),title,state,status_category,is_active,assignees_json,created_at,started_at,target_delivery,closed_at,history_json`

const issueColumns = `id,epic_id,COALESCE(key,''),status,status_category,type,COALESCE(priority,''),COALESCE(assignee,''),story_points,fields_json,created_at,updated_at,history_json`

// issueBatch bounds the IN list of a bulk issue query.
const issueBatch = 500

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpic(s rowScanner) (domain.Epic, error) {
	var (
		e                       domain.Epic
		category                string
		active                  int
		assignees, history      string
		created                 string
		started, target, closed sql.NullString
	)
	if err := s.Scan(&e.ID, &e.WorkspaceID, &e.Key, &e.Title, &e.State, &category, &active, &assignees,
		&created, &started, &target, &closed, &history); err != nil {
		return e, err
	}
	e.StatusCategory = domain.StatusCategory(category)
	e.IsActive = active != 0
	if err := json.Unmarshal([]byte(assignees), &e.Assignees); err != nil {
		return e, fmt.Errorf("epic %s assignees: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(history), &e.StatusHistory); err != nil {
		return e, fmt.Errorf("epic %s history: %w", e.ID, err)
	}
	var err error
	if e.CreatedAt, err = parseTime(created); err != nil {
		return e, err
	}
	if started.Valid {
		if e.StartedAt, err = parseTime(started.String); err != nil {
			return e, err
		}
	}
	if e.TargetDelivery, err = parseNullTime(target); err != nil {
		return e, err
	}
	if e.ClosedAt, err = parseNullTime(closed); err != nil {
		return e, err
	}
	return e, nil
}

func scanIssue(s rowScanner) (domain.Issue, error) {
	var (
		is              domain.Issue
		category        string
		points          sql.NullFloat64
		fields, history sql.NullString
		created         string
		updated         sql.NullString
	)
	if err := s.Scan(&is.ID, &is.EpicID, &is.Key, &is.Status, &category, &is.Type, &is.Priority, &is.Assignee,
		&points, &fields, &created, &updated, &history); err != nil {
		return is, err
	}
	is.StatusCategory = domain.StatusCategory(category)
	if points.Valid {
		v := points.Float64
		is.StoryPoints = &v
	}
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &is.Fields); err != nil {
			return is, fmt.Errorf("issue %s fields: %w", is.ID, err)
		}
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &is.StatusHistory); err != nil {
			return is, fmt.Errorf("issue %s history: %w", is.ID, err)
		}
	}
	var err error
	if is.CreatedAt, err = parseTime(created); err != nil {
		return is, err
	}
	if updated.Valid {
		if is.UpdatedAt, err = parseTime(updated.String); err != nil {
			return is, err
		}
	}
	return is, nil
}

// UpsertEpicTx writes an epic as last seen by the sync process.
func (r Repo) UpsertEpicTx(ctx context.Context, tx *sql.Tx, e domain.Epic, syncedAt time.Time) error {
	assignees := e.Assignees
	if assignees == nil {
		assignees = []string{}
	}
	assigneesJSON, err := marshalJSON(assignees)
	if err != nil {
		return err
	}
	history := e.StatusHistory
	if history == nil {
		history = domain.StatusHistory{}
	}
	historyJSON, err := marshalJSON(history)
	if err != nil {
		return err
	}
	active := 0
	if e.IsActive {
		active = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO epics(id,workspace_id,key,title,state,status_category,is_active,assignees_json,created_at,started_at,target_delivery,closed_at,history_json,synced_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET key=excluded.key, title=excluded.title, state=excluded.state,
  status_category=excluded.status_category, is_active=excluded.is_active, assignees_json=excluded.assignees_json,
  created_at=excluded.created_at, started_at=excluded.started_at, target_delivery=excluded.target_delivery,
  closed_at=excluded.closed_at, history_json=excluded.history_json, synced_at=excluded.synced_at`,
		e.ID, e.WorkspaceID, nullable(e.Key), e.Title, e.State, string(e.StatusCategory), active, assigneesJSON,
		formatTime(e.CreatedAt), formatTimeOrNull(e.StartedAt), formatTimePtr(e.TargetDelivery), formatTimePtr(e.ClosedAt),
		historyJSON, formatTime(syncedAt))
	return err
}

func (r Repo) UpsertIssueTx(ctx context.Context, tx *sql.Tx, workspaceID string, is domain.Issue) error {
	history := is.StatusHistory
	if history == nil {
		history = domain.StatusHistory{}
	}
	historyJSON, err := marshalJSON(history)
	if err != nil {
		return err
	}
	var fieldsJSON any
	if len(is.Fields) > 0 {
		s, err := marshalJSON(is.Fields)
		if err != nil {
			return fmt.Errorf("issue %s fields: %w", is.ID, err)
		}
		fieldsJSON = s
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO issues(id,epic_id,workspace_id,key,status,status_category,type,priority,assignee,story_points,fields_json,created_at,updated_at,history_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET epic_id=excluded.epic_id, key=excluded.key, status=excluded.status,
  status_category=excluded.status_category, type=excluded.type, priority=excluded.priority, assignee=excluded.assignee,
  story_points=excluded.story_points, fields_json=excluded.fields_json, created_at=excluded.created_at,
  updated_at=excluded.updated_at, history_json=excluded.history_json`,
		is.ID, is.EpicID, workspaceID, nullable(is.Key), is.Status, string(is.StatusCategory), is.Type,
		nullable(is.Priority), nullable(is.Assignee), nullableFloatPtr(is.StoryPoints), fieldsJSON,
		formatTime(is.CreatedAt), formatTimeOrNull(is.UpdatedAt), historyJSON)
	return err
}

func (r Repo) GetEpic(ctx context.Context, id string) (domain.Epic, error) {
	e, err := scanEpic(r.DB.QueryRowContext(ctx, `SELECT `+epicColumns+` FROM epics WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// ListEpics returns the workspace's epics ordered by id.
func (r Repo) ListEpics(ctx context.Context, workspaceID string) ([]domain.Epic, error) {
	return r.listEpics(ctx, `SELECT `+epicColumns+` FROM epics WHERE workspace_id=? ORDER BY id`, workspaceID)
}

func (r Repo) ListActiveEpics(ctx context.Context, workspaceID string) ([]domain.Epic, error) {
	return r.listEpics(ctx, `SELECT `+epicColumns+` FROM epics WHERE workspace_id=? AND is_active=1 ORDER BY id`, workspaceID)
}

func (r Repo) listEpics(ctx context.Context, query string, args ...any) ([]domain.Epic, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListIssuesForEpics bulk-loads issues for a set of epics. The IN list is
// chunked, never one query per epic.
func (r Repo) ListIssuesForEpics(ctx context.Context, epicIDs []string) ([]domain.Issue, error) {
	var res []domain.Issue
	for start := 0; start < len(epicIDs); start += issueBatch {
		end := min(start+issueBatch, len(epicIDs))
		chunk := epicIDs[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		issues, err := r.listIssues(ctx, `SELECT `+issueColumns+` FROM issues WHERE epic_id IN (`+placeholders(len(chunk))+`) ORDER BY epic_id, id`, args...)
		if err != nil {
			return nil, err
		}
		res = append(res, issues...)
	}
	return res, nil
}

// ListWorkspaceIssues loads every issue in the workspace in one query.
func (r Repo) ListWorkspaceIssues(ctx context.Context, workspaceID string) ([]domain.Issue, error) {
	return r.listIssues(ctx, `SELECT `+issueColumns+` FROM issues WHERE workspace_id=? ORDER BY epic_id, id`, workspaceID)
}

func (r Repo) listIssues(ctx context.Context, query string, args ...any) ([]domain.Issue, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, is)
	}
	return res, rows.Err()
}
