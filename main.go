// Patch - a pocket-sized robot companion with reminders, chat and web senses
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/patch/internal/bus"
	"github.com/normanking/patch/internal/chat"
	"github.com/normanking/patch/internal/command"
	"github.com/normanking/patch/internal/config"
	"github.com/normanking/patch/internal/dashboard"
	"github.com/normanking/patch/internal/logging"
	"github.com/normanking/patch/internal/reminder"
	"github.com/normanking/patch/internal/search"
	"github.com/normanking/patch/internal/session"
	"github.com/normanking/patch/internal/speech"
	"github.com/normanking/patch/internal/store"
	"github.com/normanking/patch/internal/sysmaint"
	"github.com/normanking/patch/internal/weather"
)

// Global logger instance
var syslog *logging.Logger

func main() {
	var err error
	syslog, err = logging.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer syslog.Close()

	cfg, err := config.Load()
	if err != nil {
		syslog.Warn("main", "Config load failed, using defaults", map[string]interface{}{"error": err.Error()})
	}
	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		syslog.Error("main", "Failed to create data directory", err, nil)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		syslog.Error("main", "Patch exited with error", err, nil)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	zlog := syslog.Zerolog()
	events := bus.NewEventBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl-C behaves like the exit trigger
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		syslog.Info("main", "Interrupt received, shutting down", nil)
		cancel()
	}()

	speaker := speech.NewConsoleOutput(nil, events, zlog)
	// Both modes read the console for now; microphone capture slots in behind
	// speech.InputSource when the hardware exists.
	input := speech.NewConsoleInput(nil)
	syslog.Info("main", "Speech collaborators ready", map[string]interface{}{
		"input":  input.Name(),
		"output": speaker.Name(),
		"log":    syslog.GetLogPath(),
	})

	// Boot maintenance runs before anything touches the data files.
	cleaner := sysmaint.New(cfg.Maintenance.ScratchDir, cfg.Maintenance.CachePaths, cfg.Maintenance.MinFreeGB, zlog)
	if freed := cleaner.DeepClean(); freed > 0 {
		syslog.Info("main", "Boot cleanup complete", map[string]interface{}{"freed_mb": freed})
	}
	diskWarning := cleaner.CheckDisk(cfg.Data.Dir)

	st := store.New(zlog)
	sched := reminder.NewScheduler(st, reminder.Config{
		Path:          cfg.RemindersPath(),
		MaxActive:     cfg.Reminder.MaxActive,
		RetentionDays: cfg.Reminder.RetentionDays,
		SnoozeMinutes: cfg.Reminder.SnoozeMinutes,
	}, zlog)
	memory := chat.NewMemory(st, cfg.MemoryPath(), cfg.Session.MaxHistory, zlog)

	chatter := chat.NewClient(&chat.ClientConfig{
		ServerURL: cfg.Chat.ServerURL,
		Model:     cfg.Chat.Model,
		Timeout:   cfg.Chat.Timeout,
	}, zlog)
	searcher := search.New(&search.Config{
		BaseURL:    cfg.Search.BaseURL,
		Timeout:    cfg.Search.Timeout,
		MaxResults: cfg.Search.MaxResults,
	}, zlog)
	scanner := weather.New(&weather.Config{
		BaseURL: cfg.Weather.BaseURL,
		Timeout: cfg.Weather.Timeout,
	}, zlog)

	sess := session.NewSession(session.Mode(cfg.Session.Mode), events)

	confirm := func(ctx context.Context) string {
		line, err := input.Listen(ctx)
		if err != nil {
			return ""
		}
		return line
	}
	router := session.NewRouter(sess, sched, memory, chatter, searcher, scanner, cleaner, speaker, confirm, zlog)

	// Anything that fired while Patch was off is announced once, up front.
	poller := reminder.NewPoller(sched, speaker, events, cfg.Reminder.TickInterval, zlog)
	poller.RecoverMissed(time.Now())
	go poller.Run(ctx)

	jobs, err := reminder.NewJobs(sched, cfg.Reminder.PruneSpec, cfg.Reminder.SummarySpec, func() {
		router.SpeakDailySummary(context.Background())
	}, zlog)
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance jobs: %w", err)
	}
	jobs.Start()
	defer jobs.Stop()

	if cfg.Dashboard.Enabled {
		dash := dashboard.New(cfg.Dashboard.Addr, sess, sched, memory, syslog, events, cfg.CommandPath())
		dash.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutdownCancel()
			dash.Shutdown(shutdownCtx)
		}()
	}

	watcher, err := command.NewWatcher(cfg.CommandPath(), func(cmd command.Command) {
		applyCommand(cmd, sess, sched, speaker)
	}, zlog)
	if err != nil {
		syslog.Warn("main", "Command queue watcher unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		go watcher.Run(ctx)
	}

	speaker.PlayCue("boot")
	speaker.Say("Patch online! All systems green, Friend!")
	if diskWarning != "" {
		speaker.Say(diskWarning)
	}
	if err := chatter.Health(ctx); err != nil {
		speaker.Say("Heads up, Friend: my thinking circuits aren't responding yet. I'll keep trying.")
	}

	// Foreground loop: one line in, one routed turn out.
	for {
		line, err := input.Listen(ctx)
		switch {
		case errors.Is(err, speech.ErrNoInput):
			continue
		case errors.Is(err, speech.ErrClosed), errors.Is(err, context.Canceled):
			syslog.Info("main", "Input closed, shutting down", nil)
			return nil
		case err != nil:
			return fmt.Errorf("input failed: %w", err)
		}

		terminal, err := router.Route(ctx, line)
		if err != nil {
			speaker.Say("Friend, my brain backend is completely offline. I have to power down.")
			return err
		}
		if terminal {
			// Synchronous so subscribers finish before teardown
			events.PublishSync(bus.Event{Type: bus.EventTypeShutdown})
			return nil
		}
	}
}

// applyCommand executes one dashboard command against the live session and
// scheduler state.
func applyCommand(cmd command.Command, sess *session.Session, sched *reminder.Scheduler, speaker speech.OutputSink) {
	switch cmd.Action {
	case "sleep":
		sess.Sleep()
	case "wake":
		sess.Wake()
	case "mode_voice":
		sess.SetMode(session.ModeVoice)
	case "mode_chat":
		sess.SetMode(session.ModeChat)
	case "add_reminder":
		if cmd.Task == "" {
			syslog.Warn("command", "add_reminder without a task, ignoring", nil)
			return
		}
		outcome, err := sched.Add(cmd.Task, cmd.Time, false)
		if err != nil {
			syslog.Error("command", "Dashboard reminder add failed", err, nil)
			return
		}
		if outcome.LimitReached {
			syslog.Warn("command", "Dashboard reminder rejected, log is full", map[string]interface{}{"active": outcome.ActiveCount})
			return
		}
		speaker.Say(fmt.Sprintf("Friend, I logged a reminder from the dashboard: %s at %s.", cmd.Task, outcome.FireTime))
	case "delete_reminder":
		found, err := sched.DeleteByID(cmd.ReminderID)
		if err != nil {
			syslog.Error("command", "Dashboard reminder delete failed", err, nil)
		}
		if !found {
			syslog.Warn("command", "delete_reminder for unknown id", map[string]interface{}{"id": cmd.ReminderID})
		}
	case "snooze_reminder":
		found, err := sched.Snooze(cmd.ReminderID, cmd.Minutes)
		if err != nil {
			syslog.Error("command", "Dashboard reminder snooze failed", err, nil)
		}
		if !found {
			syslog.Warn("command", "snooze_reminder for unknown id", map[string]interface{}{"id": cmd.ReminderID})
		}
	default:
		syslog.Warn("command", "Unknown command action, ignoring", map[string]interface{}{"action": cmd.Action})
	}
}
