package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"epicrisk/internal/domain"
	"epicrisk/internal/engine"
	"epicrisk/internal/metrics"
	"epicrisk/internal/migrate"
	"epicrisk/internal/orchestrator"
	"epicrisk/internal/repo"
	"epicrisk/internal/scheduler"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Metrics  *metrics.Registry
	Log      zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"epic e-1: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the epicrisk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Log))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.Handle("/metrics", cfg.Metrics.Handler())

	hcfg := huma.DefaultConfig("epicrisk API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	e := cfg.Engine
	if e.Metrics == nil {
		e.Metrics = cfg.Metrics
	}
	registerDocs(router, basePath)
	registerHealth(group, e)
	registerWorkspaces(group, e)
	registerEpics(group, e)
	registerCheckins(group, e)
	registerCycles(group, e)
	registerEvents(group, e)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", ww.Status()).Msg("http request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, orchestrator.ErrUnknownEpic):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, domain.ErrInconsistentHistory):
		return newAPIError(http.StatusUnprocessableEntity, "inconsistent_history", msg, nil)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return newAPIError(http.StatusConflict, "conflict", "already exists", nil)
	}
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>epicrisk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => { SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' }); };
    </script>
  </body>
</html>`, specURL)
}

type healthBody struct {
	Status        string `json:"status" enum:"ok,migration_pending"`
	SchemaVersion int    `json:"schema_version"`
	LatestSchema  int    `json:"latest_schema"`
}

type healthOutput struct {
	Body healthBody
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		latest, err := migrate.Latest()
		if err != nil {
			return nil, handleError(err)
		}
		current, err := migrate.Version(ctx, e.DB)
		if err != nil {
			return nil, handleError(err)
		}
		body := healthBody{Status: "ok", SchemaVersion: current, LatestSchema: latest}
		if current < latest {
			body.Status = "migration_pending"
		}
		return &healthOutput{Body: body}, nil
	})
}

type workspacePath struct {
	WorkspaceID string `path:"workspace_id"`
}

type epicPath struct {
	EpicID string `path:"epic_id"`
}

func registerWorkspaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleAdmin)
		if authErr != nil {
			return nil, authErr
		}
		ws, err := e.CreateWorkspace(ctx, input.Body.ID, input.Body.Name, p.Subject)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List workspaces",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Workspace `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkspaces(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Workspace `json:"body"`
		}{Body: emptyIfNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-summary",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/summary",
		Summary:     "Risk summary from the latest snapshot of each epic",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *workspacePath) (*struct {
		Body domain.WorkspaceSummary `json:"body"`
	}, error) {
		if _, err := e.Repo.GetWorkspace(ctx, input.WorkspaceID); err != nil {
			return nil, handleError(fmt.Errorf("workspace %s: %w", input.WorkspaceID, err))
		}
		sum, err := e.Summary(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkspaceSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-import",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/sync",
		Summary:     "Import epics and issues from the tracker sync (JSON or YAML)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		RawBody     []byte
	}) (*struct {
		Body engine.ImportResult `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleWriter)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		doc, err := engine.ParseSyncDocument(input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.ImportSync(ctx, input.WorkspaceID, doc, p.Subject)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ImportResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerEpics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-epics",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/epics",
		Summary:     "List epics with their latest risk snapshot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		RiskLevel   string `query:"risk_level" enum:"on_track,at_risk,off_track"`
	}) (*struct {
		Body []EpicRisk `json:"body"`
	}, error) {
		if _, err := e.Repo.GetWorkspace(ctx, input.WorkspaceID); err != nil {
			return nil, handleError(fmt.Errorf("workspace %s: %w", input.WorkspaceID, err))
		}
		epics, err := e.Repo.ListEpics(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		snaps, err := e.Repo.LatestSnapshots(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		latest := make(map[string]domain.Snapshot, len(snaps))
		for _, s := range snaps {
			latest[s.EpicID] = s
		}
		out := []EpicRisk{}
		for _, ep := range epics {
			item := EpicRisk{Epic: ep}
			if s, ok := latest[ep.ID]; ok {
				item.Latest = &s
			}
			if input.RiskLevel != "" && (item.Latest == nil || string(item.Latest.Evaluation.RiskLevel) != input.RiskLevel) {
				continue
			}
			out = append(out, item)
		}
		return &struct {
			Body []EpicRisk `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-epic-risk",
		Method:      http.MethodGet,
		Path:        "/epics/{epic_id}/risk",
		Summary:     "Latest risk snapshot of an epic",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *epicPath) (*struct {
		Body domain.Snapshot `json:"body"`
	}, error) {
		s, err := e.Repo.LatestSnapshot(ctx, input.EpicID)
		if err != nil {
			return nil, handleError(fmt.Errorf("snapshot for epic %s: %w", input.EpicID, err))
		}
		return &struct {
			Body domain.Snapshot `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-epic-snapshots",
		Method:      http.MethodGet,
		Path:        "/epics/{epic_id}/snapshots",
		Summary:     "Snapshot history of an epic, newest first",
	}, func(ctx context.Context, input *struct {
		EpicID string `path:"epic_id"`
		Limit  int    `query:"limit" default:"20"`
	}) (*struct {
		Body []domain.Snapshot `json:"body"`
	}, error) {
		items, err := e.Repo.ListSnapshots(ctx, input.EpicID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Snapshot `json:"body"`
		}{Body: emptyIfNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-epic-risk",
		Method:      http.MethodGet,
		Path:        "/epics/{epic_id}/preview",
		Summary:     "Evaluate an epic now without recording a snapshot",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *epicPath) (*struct {
		Body domain.Snapshot `json:"body"`
	}, error) {
		s, err := e.Preview(ctx, input.EpicID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Snapshot `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-epic-rollups",
		Method:      http.MethodGet,
		Path:        "/epics/{epic_id}/rollups",
		Summary:     "Daily rollups of an epic, newest first",
	}, func(ctx context.Context, input *struct {
		EpicID string `path:"epic_id"`
		Limit  int    `query:"limit" default:"30"`
	}) (*struct {
		Body []domain.DailyEpicSignal `json:"body"`
	}, error) {
		items, err := e.Repo.ListDailySignals(ctx, input.EpicID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DailyEpicSignal `json:"body"`
		}{Body: emptyIfNil(items)}, nil
	})
}

func registerCheckins(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-checkin",
		Method:      http.MethodPost,
		Path:        "/epics/{epic_id}/checkins",
		Summary:     "Submit this week's check-in; resubmitting in the same week replaces it",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EpicID string         `path:"epic_id"`
		Body   CheckinRequest `json:"body"`
	}) (*struct {
		Body domain.WeeklyCheckin `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleWriter)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SubmitCheckin(ctx, engine.CheckinInput{
			EpicID:      input.EpicID,
			Status:      input.Body.Status,
			Reason:      input.Body.Reason,
			SubmittedBy: p.Subject,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WeeklyCheckin `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checkins",
		Method:      http.MethodGet,
		Path:        "/epics/{epic_id}/checkins",
		Summary:     "Check-ins of an epic, newest first",
	}, func(ctx context.Context, input *struct {
		EpicID string `path:"epic_id"`
		Limit  int    `query:"limit" default:"12"`
	}) (*struct {
		Body []domain.WeeklyCheckin `json:"body"`
	}, error) {
		items, err := e.Repo.ListEpicCheckins(ctx, input.EpicID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WeeklyCheckin `json:"body"`
		}{Body: emptyIfNil(items)}, nil
	})
}

func registerCycles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-workspace-cycle",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/cycles",
		Summary:     "Run the daily rollup and evaluation for one workspace now",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *workspacePath) (*struct {
		Body scheduler.WorkspaceReport `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, RoleWriter); authErr != nil {
			return nil, authErr
		}
		rep, err := e.RunWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body scheduler.WorkspaceReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Type        string `query:"type"`
		EntityKind  string `query:"entity_kind" enum:"workspace,epic,cycle"`
		EntityID    string `query:"entity_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.WorkspaceID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
