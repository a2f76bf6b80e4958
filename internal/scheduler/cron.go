package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const DefaultSpec = "0 6 * * *"

// Cron fires a Cycle on a cron schedule. Overlapping ticks are skipped, so at
// most one cycle runs at a time.
type Cron struct {
	cron     *cron.Cron
	entry    cron.EntryID
	location *time.Location
	log      zerolog.Logger
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewCron validates spec and timezone and registers the cycle. ctx is passed
// to every run.
func NewCron(ctx context.Context, spec, timezone string, c Cycle, log zerolog.Logger) (*Cron, error) {
	if c == nil {
		return nil, errors.New("cycle must not be nil")
	}
	if spec == "" {
		spec = DefaultSpec
	}
	loc := time.UTC
	if timezone != "" {
		var err error
		if loc, err = time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
	}
	cl := cronLogger{log: log}
	cr := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := cr.AddFunc(spec, func() {
		if _, err := c.RunCycle(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled cycle failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add cron %q: %w", spec, err)
	}
	return &Cron{cron: cr, entry: id, location: loc, log: log}, nil
}

func (c *Cron) Location() *time.Location {
	return c.location
}

// Next reports when the cycle fires next. Zero before Start.
func (c *Cron) Next() time.Time {
	return c.cron.Entry(c.entry).Next
}

func (c *Cron) Start() {
	c.cron.Start()
	c.log.Info().Time("next", c.Next()).Str("timezone", c.location.String()).Msg("scheduler started")
}

// Stop stops the schedule and waits for a running cycle to return.
func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
}

// Run starts the schedule and blocks until ctx is done.
func (c *Cron) Run(ctx context.Context) error {
	c.Start()
	<-ctx.Done()
	c.Stop()
	return nil
}
