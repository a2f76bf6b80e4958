package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"epicrisk/internal/config"
	"epicrisk/internal/domain"
	"epicrisk/internal/engine"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookDispatcher forwards recorded events to the configured webhooks.
// Each hook keeps its own cursor, starting at the newest event when the
// dispatcher starts; a failed delivery is retried on the next tick.
type WebhookDispatcher struct {
	Engine   engine.Engine
	Hooks    []config.Webhook
	Interval time.Duration
	Client   *http.Client
	Log      zerolog.Logger

	cursors map[int]int64
}

func NewWebhookDispatcher(e engine.Engine) *WebhookDispatcher {
	var hooks []config.Webhook
	if e.Config != nil {
		hooks = e.Config.Webhooks
	}
	return &WebhookDispatcher{
		Engine:   e,
		Hooks:    hooks,
		Interval: defaultWebhookInterval,
		Client:   &http.Client{Timeout: defaultWebhookTimeout},
		Log:      e.Log,
	}
}

// Run polls until ctx is done. It returns immediately when no hook is active.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	active := false
	for _, h := range d.Hooks {
		active = active || h.Active()
	}
	if !active {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers the pending events of every active hook.
func (d *WebhookDispatcher) DispatchOnce(ctx context.Context) {
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	for i, hook := range d.Hooks {
		if !hook.Active() {
			continue
		}
		d.dispatch(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatch(ctx context.Context, idx int, hook config.Webhook) {
	cursor, ok := d.cursors[idx]
	if !ok {
		latest, err := d.Engine.Repo.LatestEventID(ctx, "")
		if err != nil {
			d.Log.Warn().Err(err).Str("url", hook.URL).Msg("webhook cursor init failed")
			return
		}
		d.cursors[idx] = latest
		return
	}
	events, err := d.Engine.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor, "")
	if err != nil {
		d.Log.Warn().Err(err).Msg("webhook fetch events failed")
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if filter.match(evt.Type) {
			if err := d.post(ctx, hook, evt); err != nil {
				d.Log.Warn().Err(err).Str("url", hook.URL).Int64("event_id", evt.ID).Msg("webhook delivery failed")
				return
			}
		}
		d.cursors[idx] = evt.ID
	}
}

type webhookEvent struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	TS          string          `json:"ts"`
	Payload     json.RawMessage `json:"payload"`
}

func (d *WebhookDispatcher) post(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	resp := eventResponse(evt)
	data, err := json.Marshal(webhookEvent{
		ID:          resp.ID,
		Type:        resp.Type,
		WorkspaceID: resp.WorkspaceID,
		EntityKind:  resp.EntityKind,
		EntityID:    resp.EntityID,
		ActorID:     resp.ActorID,
		TS:          resp.TS,
		Payload:     resp.Payload,
	})
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		c := *client
		c.Timeout = time.Duration(hook.TimeoutSeconds) * time.Second
		client = &c
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Epicrisk-Event", evt.Type)
	req.Header.Set("X-Epicrisk-Delivery", fmt.Sprintf("%d", evt.ID))
	if evt.WorkspaceID != "" {
		req.Header.Set("X-Epicrisk-Workspace", evt.WorkspaceID)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Epicrisk-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
