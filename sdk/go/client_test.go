package epicrisksdk_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicrisk/internal/config"
	"epicrisk/internal/db"
	"epicrisk/internal/engine"
	"epicrisk/internal/migrate"
	"epicrisk/internal/server"
	epicrisksdk "epicrisk/sdk/go"
)

const secret = "sdk-secret"

func startServer(t *testing.T) string {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC) }
	_, err = e.CreateWorkspace(context.Background(), "acme", "Acme", "tester")
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return "http://" + ln.Addr().String()
}

func TestClientRoundTrip(t *testing.T) {
	base := startServer(t)
	tok, err := server.SignToken(secret, "sdk", []string{server.RoleWriter}, time.Hour, time.Now())
	require.NoError(t, err)
	c := epicrisksdk.New(base, "acme", tok)
	ctx := context.Background()

	res, err := c.SyncImport(ctx, []byte(`{"epics":[{"id":"e-1","title":"Search","state":"In Progress","created_at":"2024-02-01T00:00:00Z"}]}`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res["epics"])

	checkin, err := c.SubmitCheckin(ctx, "e-1", "slip_3_plus", "blocked on infra")
	require.NoError(t, err)
	assert.Equal(t, "sdk", checkin.SubmittedBy)

	rep, err := c.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Evaluation.Snapshots, 1)

	snap, err := c.Risk(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "e-1", snap.EpicID)
	assert.NotEmpty(t, snap.Evaluation.RiskLevel)
	assert.NotEmpty(t, snap.Recovery.SlipType)

	epics, err := c.Epics(ctx, "")
	require.NoError(t, err)
	require.Len(t, epics, 1)
	require.NotNil(t, epics[0].Latest)

	sum, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.EpicCount)

	page, err := c.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	base := startServer(t)
	c := epicrisksdk.New(base, "acme", "")
	_, err := c.Summary(context.Background())
	var apiErr *epicrisksdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
