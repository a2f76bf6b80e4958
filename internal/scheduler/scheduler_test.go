package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epicrisk/internal/domain"
	"epicrisk/internal/metrics"
	"epicrisk/internal/orchestrator"
	"epicrisk/internal/rollup"
)

type lister []string

func (l lister) ListWorkspaces(context.Context) ([]domain.Workspace, error) {
	out := make([]domain.Workspace, len(l))
	for i, id := range l {
		out[i] = domain.Workspace{ID: id}
	}
	return out, nil
}

// trace records stage order per workspace.
type trace struct {
	mu       sync.Mutex
	steps    map[string][]string
	inFlight atomic.Int32
	peak     atomic.Int32
	fail     map[string]error
}

func (tr *trace) add(ws, step string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.steps == nil {
		tr.steps = map[string][]string{}
	}
	tr.steps[ws] = append(tr.steps[ws], step)
}

type rollupStage struct{ tr *trace }

func (s rollupStage) Run(_ context.Context, ws string) (rollup.Result, error) {
	n := s.tr.inFlight.Add(1)
	defer s.tr.inFlight.Add(-1)
	for {
		p := s.tr.peak.Load()
		if n <= p || s.tr.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.tr.add(ws, "rollup")
	return rollup.Result{WorkspaceID: ws}, s.tr.fail[ws]
}

type evaluateStage struct{ tr *trace }

func (s evaluateStage) Run(_ context.Context, ws string) (orchestrator.Report, error) {
	s.tr.add(ws, "evaluate")
	return orchestrator.Report{WorkspaceID: ws}, nil
}

func TestRunCycleOrdersStagesPerWorkspace(t *testing.T) {
	tr := &trace{}
	r := Runner{
		Workspaces:  lister{"a", "b", "c", "d"},
		Rollup:      rollupStage{tr},
		Evaluate:    evaluateStage{tr},
		Parallelism: 2,
	}
	rep, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Workspaces, 4)
	for i, ws := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, ws, rep.Workspaces[i].WorkspaceID)
		assert.Equal(t, []string{"rollup", "evaluate"}, tr.steps[ws])
	}
	assert.LessOrEqual(t, tr.peak.Load(), int32(2))
}

func TestRunCycleContinuesPastFailingWorkspace(t *testing.T) {
	tr := &trace{fail: map[string]error{"b": errors.New("db locked")}}
	reg := metrics.New()
	r := Runner{
		Workspaces: lister{"a", "b", "c"},
		Rollup:     rollupStage{tr},
		Evaluate:   evaluateStage{tr},
		Log:        zerolog.Nop(),
		Metrics:    reg,
	}
	rep, err := r.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace b rollup")
	assert.Equal(t, []string{"rollup"}, tr.steps["b"])
	assert.Equal(t, []string{"rollup", "evaluate"}, tr.steps["c"])
	assert.NotEmpty(t, rep.Workspaces[1].Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Cycles.WithLabelValues("error")))
}

type countingCycle struct{ runs atomic.Int32 }

func (c *countingCycle) RunCycle(context.Context) (CycleReport, error) {
	c.runs.Add(1)
	return CycleReport{}, nil
}

func TestNewCronValidates(t *testing.T) {
	_, err := NewCron(context.Background(), "not a spec", "UTC", &countingCycle{}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewCron(context.Background(), DefaultSpec, "Mars/Olympus", &countingCycle{}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewCron(context.Background(), DefaultSpec, "UTC", nil, zerolog.Nop())
	require.Error(t, err)

	c, err := NewCron(context.Background(), "", "UTC", &countingCycle{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "UTC", c.Location().String())
}

func TestCronSchedulesNextRun(t *testing.T) {
	c, err := NewCron(context.Background(), "@every 1h", "UTC", &countingCycle{}, zerolog.Nop())
	require.NoError(t, err)
	c.Start()
	defer c.Stop()
	next := c.Next()
	assert.False(t, next.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), next, 5*time.Second)
}
