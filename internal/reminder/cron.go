package reminder

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Jobs runs the scheduled housekeeping: nightly archive pruning and the
// evening spoken daily summary.
type Jobs struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewJobs registers the cron entries. summarize is invoked at the summary
// spec and is expected to speak the daily report; a nil summarize disables
// that entry.
func NewJobs(sched *Scheduler, pruneSpec, summarySpec string, summarize func(), logger zerolog.Logger) (*Jobs, error) {
	j := &Jobs{
		cron:   cron.New(),
		logger: logger.With().Str("component", "cron").Logger(),
	}

	if _, err := j.cron.AddFunc(pruneSpec, func() {
		removed, err := sched.PruneArchive(time.Now())
		if err != nil {
			j.logger.Error().Err(err).Msg("Nightly prune failed to persist")
			return
		}
		j.logger.Info().Int("removed", removed).Msg("Nightly archive prune complete")
	}); err != nil {
		return nil, fmt.Errorf("invalid prune spec %q: %w", pruneSpec, err)
	}

	if summarize != nil {
		if _, err := j.cron.AddFunc(summarySpec, summarize); err != nil {
			return nil, fmt.Errorf("invalid summary spec %q: %w", summarySpec, err)
		}
	}

	return j, nil
}

// Start starts the cron runner.
func (j *Jobs) Start() {
	j.cron.Start()
}

// Stop stops the cron runner and waits for running jobs to finish.
func (j *Jobs) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
