package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/patch/internal/bus"
)

// Speaker announces reminder firings to the user. It must not block for long;
// the scheduler's lock is never held across an announcement.
type Speaker interface {
	Say(text string)
}

// Poller runs the background due-check loop, independent of the foreground
// conversation loop.
type Poller struct {
	sched    *Scheduler
	speaker  Speaker
	events   *bus.EventBus
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a Poller ticking at interval (1s when zero).
func NewPoller(sched *Scheduler, speaker Speaker, events *bus.EventBus, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		sched:    sched,
		speaker:  speaker,
		events:   events,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// RecoverMissed reconciles the ledger once, announcing each missed item.
// Runs before the loop starts.
func (p *Poller) RecoverMissed(now time.Time) {
	missed, err := p.sched.RecoverMissed(now)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to persist recovery")
	}
	for _, r := range missed {
		p.speaker.Say(fmt.Sprintf("Friend! You missed a reminder: %s.", r.Task))
		p.events.Publish(bus.Event{
			Type: bus.EventTypeReminderMissed,
			Data: map[string]any{"id": r.ID, "task": r.Task},
		})
	}
}

// Run ticks until ctx is cancelled, firing due reminders each tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug().Dur("interval", p.interval).Msg("Polling loop started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Polling loop stopped")
			return
		case now := <-ticker.C:
			fired, err := p.sched.CheckDue(now)
			if err != nil {
				p.logger.Error().Err(err).Msg("Failed to persist due check")
			}
			for _, r := range fired {
				p.speaker.Say(fmt.Sprintf("Friend! Reminder alert: %s", r.Task))
				p.events.Publish(bus.Event{
					Type: bus.EventTypeReminderFired,
					Data: map[string]any{"id": r.ID, "task": r.Task, "recurring": r.Recurring},
				})
			}
		}
	}
}
