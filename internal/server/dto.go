package server

import (
	"encoding/json"

	"epicrisk/internal/domain"
)

// Request payloads

type CreateWorkspaceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CheckinRequest struct {
	Status domain.CheckinStatus `json:"status" enum:"on_track,slip_1_3,slip_3_plus"`
	Reason string               `json:"reason,omitempty"`
}

// Response payloads

// EpicRisk pairs an epic with its newest snapshot, if it has been evaluated.
type EpicRisk struct {
	Epic   domain.Epic      `json:"epic"`
	Latest *domain.Snapshot `json:"latest,omitempty"`
}

type EventResponse struct {
	ID          int64           `json:"id"`
	TS          string          `json:"ts" format:"date-time"`
	Type        string          `json:"type"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	Payload     json.RawMessage `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:          evt.ID,
		TS:          evt.TS,
		Type:        evt.Type,
		WorkspaceID: evt.WorkspaceID,
		EntityKind:  evt.EntityKind,
		EntityID:    evt.EntityID,
		ActorID:     evt.ActorID,
		Payload:     payload,
	}
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
