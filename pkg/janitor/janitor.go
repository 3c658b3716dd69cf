// Package janitor runs periodic housekeeping: orphaned tool call sweeps
// across live runners and session gauge refreshes.
package janitor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/averin/conduit/pkg/orchestrator"
	"github.com/averin/conduit/pkg/runner"
	"github.com/averin/conduit/pkg/toolcall"
)

// DefaultSchedule sweeps once a minute.
const DefaultSchedule = "* * * * *"

// Janitor owns the cron schedule.
type Janitor struct {
	cron      *cron.Cron
	orch      *orchestrator.Orchestrator
	orphanAge time.Duration
	logger    zerolog.Logger
}

// Config parameterizes the janitor.
type Config struct {
	// Schedule is a five-field cron expression.
	Schedule string
	// OrphanAge is how long a tool call may stay open before a sweep
	// removes it.
	OrphanAge time.Duration
}

// New builds a janitor over the orchestrator's runners.
func New(cfg Config, orch *orchestrator.Orchestrator, logger zerolog.Logger) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = toolcall.DefaultOrphanAge
	}

	j := &Janitor{
		cron:      cron.New(),
		orch:      orch,
		orphanAge: cfg.OrphanAge,
		logger:    logger.With().Str("component", "janitor").Logger(),
	}
	if _, err := j.cron.AddFunc(cfg.Schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info().Dur("orphan_age", j.orphanAge).Msg("Janitor started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info().Msg("Janitor stopped")
}

// Sweep runs one housekeeping pass. Also callable directly.
func (j *Janitor) Sweep() {
	total := 0
	j.orch.Runners().ForEach(func(sessionID string, r *runner.Runner) {
		if swept := r.SweepOrphans(j.orphanAge); swept > 0 {
			j.logger.Warn().Str("session_id", sessionID).Int("swept", swept).Msg("Swept orphaned tool calls")
			total += swept
		}
	})
	j.orch.RefreshGauges()
	if total > 0 {
		j.logger.Info().Int("total", total).Msg("Housekeeping pass complete")
	}
}
