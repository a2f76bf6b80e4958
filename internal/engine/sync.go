package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"epicrisk/internal/domain"
	"epicrisk/internal/events"
	"epicrisk/internal/repo"
)

// SyncDocument is the hand-off format of the external tracker sync: the
// epics and issues of one workspace as last seen upstream.
type SyncDocument struct {
	Epics  []SyncEpic     `json:"epics" yaml:"epics"`
	Issues []domain.Issue `json:"issues" yaml:"issues"`
}

// SyncEpic is an epic as delivered by the sync. An absent is_active means
// the epic is active.
type SyncEpic struct {
	ID             string               `json:"id" yaml:"id"`
	Key            string               `json:"key" yaml:"key"`
	Title          string               `json:"title" yaml:"title"`
	State          string               `json:"state" yaml:"state"`
	StatusCategory string               `json:"status_category" yaml:"status_category"`
	IsActive       *bool                `json:"is_active" yaml:"is_active"`
	Assignees      []string             `json:"assignees" yaml:"assignees"`
	CreatedAt      time.Time            `json:"created_at" yaml:"created_at"`
	StartedAt      time.Time            `json:"started_at" yaml:"started_at"`
	TargetDelivery *time.Time           `json:"target_delivery" yaml:"target_delivery"`
	ClosedAt       *time.Time           `json:"closed_at" yaml:"closed_at"`
	StatusHistory  domain.StatusHistory `json:"status_history" yaml:"status_history"`
}

func (s SyncEpic) epic(workspaceID string) domain.Epic {
	return domain.Epic{
		ID:             s.ID,
		WorkspaceID:    workspaceID,
		Key:            s.Key,
		Title:          s.Title,
		State:          s.State,
		StatusCategory: domain.StatusCategory(s.StatusCategory),
		IsActive:       s.IsActive == nil || *s.IsActive,
		Assignees:      s.Assignees,
		CreatedAt:      s.CreatedAt,
		StartedAt:      s.StartedAt,
		TargetDelivery: s.TargetDelivery,
		ClosedAt:       s.ClosedAt,
		StatusHistory:  s.StatusHistory,
	}
}

// Rejection names a record that was not imported.
type Rejection struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	WorkspaceID string      `json:"workspace_id"`
	Epics       int         `json:"epics"`
	Issues      int         `json:"issues"`
	Rejected    []Rejection `json:"rejected"`
}

// ParseSyncDocument accepts JSON or YAML.
func ParseSyncDocument(data []byte) (SyncDocument, error) {
	var doc SyncDocument
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return doc, fmt.Errorf("invalid sync json: %w", err)
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("invalid sync yaml: %w", err)
	}
	return doc, nil
}

func ReadSyncFile(path string) (SyncDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SyncDocument{}, err
	}
	return ParseSyncDocument(data)
}

// recordID derives a stable id from the upstream key when the sync omitted one.
func recordID(workspaceID, kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(workspaceID+"|"+kind+"|"+key)).String()
}

func normalizeEpic(workspaceID string, raw SyncEpic) (domain.Epic, error) {
	ep := raw.epic(workspaceID)
	if ep.ID == "" {
		if ep.Key == "" {
			return ep, errors.New("epic needs an id or key")
		}
		ep.ID = recordID(workspaceID, "epic", ep.Key)
	}
	if strings.TrimSpace(ep.Title) == "" {
		return ep, errors.New("title is required")
	}
	if ep.CreatedAt.IsZero() {
		return ep, errors.New("created_at is required")
	}
	if err := ep.StatusHistory.Validate(); err != nil {
		return ep, err
	}
	ep.StatusCategory = domain.NormalizeCategory(string(ep.StatusCategory))
	if ep.StatusCategory == "" {
		ep.StatusCategory = domain.CategoryFromStatus(ep.State)
	}
	fillCategories(ep.StatusHistory)
	return ep, nil
}

// fillCategories derives a missing segment category from its status name.
func fillCategories(h domain.StatusHistory) {
	for i := range h {
		seg := &h[i]
		if c := domain.NormalizeCategory(string(seg.Category)); c != "" {
			seg.Category = c
		} else {
			seg.Category = domain.CategoryFromStatus(seg.Status)
		}
	}
}

func normalizeIssue(workspaceID string, is domain.Issue, epicKeys map[string]string) (domain.Issue, error) {
	if is.ID == "" {
		if is.Key == "" {
			return is, errors.New("issue needs an id or key")
		}
		is.ID = recordID(workspaceID, "issue", is.Key)
	}
	if id, ok := epicKeys[is.EpicID]; ok {
		is.EpicID = id
	}
	if is.EpicID == "" {
		return is, errors.New("epic_id is required")
	}
	if is.CreatedAt.IsZero() {
		return is, errors.New("created_at is required")
	}
	if err := is.StatusHistory.Validate(); err != nil {
		return is, err
	}
	is.StatusCategory = domain.NormalizeCategory(string(is.StatusCategory))
	fillCategories(is.StatusHistory)
	return is, nil
}

// ImportSync upserts the document into the workspace in one transaction.
// Malformed records are rejected individually; the rest are written. Issues
// may reference their epic by id or by key.
func (e Engine) ImportSync(ctx context.Context, workspaceID string, doc SyncDocument, actorID string) (ImportResult, error) {
	res := ImportResult{WorkspaceID: workspaceID, Rejected: []Rejection{}}
	if _, err := e.Repo.GetWorkspace(ctx, workspaceID); err != nil {
		return res, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	log := e.Log.With().Str("workspace_id", workspaceID).Logger()
	reject := func(kind, id string, err error) {
		log.Warn().Err(err).Str("kind", kind).Str("id", id).Msg("sync record rejected")
		res.Rejected = append(res.Rejected, Rejection{Kind: kind, ID: id, Reason: err.Error()})
	}

	syncedAt := e.now().UTC()
	epicKeys := map[string]string{}
	known := map[string]bool{}
	var epics []domain.Epic
	for _, raw := range doc.Epics {
		ep, err := normalizeEpic(workspaceID, raw)
		if err != nil {
			reject("epic", firstNonEmpty(raw.ID, raw.Key), err)
			continue
		}
		if ep.Key != "" {
			epicKeys[ep.Key] = ep.ID
		}
		known[ep.ID] = true
		epics = append(epics, ep)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, ep := range epics {
		if err := e.Repo.UpsertEpicTx(ctx, tx, ep, syncedAt); err != nil {
			return res, fmt.Errorf("upsert epic %s: %w", ep.ID, err)
		}
		if err := e.writer().Append(ctx, tx, events.TypeEpicSynced, workspaceID, "epic", ep.ID, actorID, events.Payload{
			"key":   ep.Key,
			"state": ep.State,
		}); err != nil {
			return res, err
		}
		res.Epics++
	}
	for _, raw := range doc.Issues {
		is, err := normalizeIssue(workspaceID, raw, epicKeys)
		if err != nil {
			reject("issue", firstNonEmpty(raw.ID, raw.Key), err)
			continue
		}
		if !known[is.EpicID] {
			existing, err := e.Repo.GetEpic(ctx, is.EpicID)
			switch {
			case errors.Is(err, repo.ErrNotFound), err == nil && existing.WorkspaceID != workspaceID:
				reject("issue", is.ID, fmt.Errorf("unknown epic %s", is.EpicID))
				continue
			case err != nil:
				return res, err
			}
			known[is.EpicID] = true
		}
		if err := e.Repo.UpsertIssueTx(ctx, tx, workspaceID, is); err != nil {
			return res, fmt.Errorf("upsert issue %s: %w", is.ID, err)
		}
		res.Issues++
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	log.Info().Int("epics", res.Epics).Int("issues", res.Issues).Int("rejected", len(res.Rejected)).Msg("sync imported")
	return res, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
