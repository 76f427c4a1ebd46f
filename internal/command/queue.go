// Package command consumes the dashboard's command-queue file. The dashboard
// never writes the memory or ledger documents directly; control actions
// travel through this one file and are applied by the core.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Command is one queued control action.
type Command struct {
	Action     string `json:"action"` // sleep, wake, add_reminder, delete_reminder, snooze_reminder
	Task       string `json:"task,omitempty"`
	Time       string `json:"time,omitempty"`
	ReminderID string `json:"reminder_id,omitempty"`
	Minutes    int    `json:"minutes,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Watcher tails the command-queue file and applies each command once.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	apply  func(Command)
	logger zerolog.Logger
}

// NewWatcher watches the directory containing path for writes to the
// command-queue file.
func NewWatcher(path string, apply func(Command), logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to create command directory: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		fsw:    fsw,
		path:   path,
		apply:  apply,
		logger: logger.With().Str("component", "command").Logger(),
	}, nil
}

// Run consumes queued commands until ctx is cancelled. A command left in the
// file from before startup is applied immediately.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	w.consume()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.consume()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// consume reads, deletes and applies the queued command, if any.
func (w *Watcher) consume() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return
	}

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		w.logger.Warn().Err(err).Msg("Malformed command, discarding")
		os.Remove(w.path)
		return
	}

	// Remove before applying so a slow handler cannot double-consume
	if err := os.Remove(w.path); err != nil {
		w.logger.Warn().Err(err).Msg("Could not clear command queue")
	}

	w.logger.Info().Str("action", cmd.Action).Msg("Dashboard command received")
	w.apply(cmd)
}
