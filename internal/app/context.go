package app

import (
	"context"
	"errors"
	"fmt"

	"epicrisk/internal/config"
	"epicrisk/internal/repo"
)

// ResolveWorkspace picks the workspace a command acts on. It prefers the
// explicit override, then the configured default, then the only workspace
// in the database.
func ResolveWorkspace(ctx context.Context, override string, cfg *config.Config, r repo.Repo) (string, error) {
	id := override
	if id == "" && cfg != nil {
		id = cfg.Workspaces.Default
	}
	if id == "" {
		ws, err := r.SingleWorkspace(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", fmt.Errorf("no workspace yet; create one with epicrisk workspace create <id>")
			}
			return "", err
		}
		return ws.ID, nil
	}
	if _, err := r.GetWorkspace(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("workspace %s: %w", id, err)
		}
		return "", err
	}
	return id, nil
}
