// Package session implements the foreground interaction loop: the sleep/wake
// and input-mode state machine, and the phrase-triggered intent router.
package session

import (
	"sync"

	"github.com/normanking/patch/internal/bus"
)

// Mode selects which input collaborator the loop uses next turn.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeChat  Mode = "chat"
)

// Session holds the process-wide interaction state. It is mutated only
// through the transition methods, in response to explicit trigger phrases.
type Session struct {
	mu       sync.RWMutex
	mode     Mode
	sleeping bool
	events   *bus.EventBus
}

// NewSession creates a Session in the given mode, awake.
func NewSession(mode Mode, events *bus.EventBus) *Session {
	if mode != ModeVoice && mode != ModeChat {
		mode = ModeChat
	}
	return &Session{mode: mode, events: events}
}

// Mode returns the current input mode.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Sleeping reports whether input is currently being discarded.
func (s *Session) Sleeping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sleeping
}

// SetMode switches the input mode. Independent of sleep state.
func (s *Session) SetMode(mode Mode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(bus.Event{Type: bus.EventTypeModeChanged, Data: map[string]any{"mode": string(mode)}})
	}
}

// Sleep transitions AWAKE -> SLEEPING.
func (s *Session) Sleep() {
	s.mu.Lock()
	s.sleeping = true
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(bus.Event{Type: bus.EventTypeSessionSleeping})
	}
}

// Wake transitions SLEEPING -> AWAKE.
func (s *Session) Wake() {
	s.mu.Lock()
	s.sleeping = false
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(bus.Event{Type: bus.EventTypeSessionAwake})
	}
}

// Status reports the state for the dashboard.
func (s *Session) Status() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := "idle"
	if s.sleeping {
		state = "sleeping"
	}
	return map[string]any{
		"mode":          string(s.mode),
		"current_state": state,
		"online":        true,
	}
}
