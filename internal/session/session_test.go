package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/patch/internal/bus"
)

func TestSession_SleepWakeCycle(t *testing.T) {
	s := NewSession(ModeChat, bus.NewEventBus())

	assert.False(t, s.Sleeping())

	s.Sleep()
	assert.True(t, s.Sleeping())
	assert.Equal(t, "sleeping", s.Status()["current_state"])

	// Sleeping again is a no-op, not an error.
	s.Sleep()
	assert.True(t, s.Sleeping())

	s.Wake()
	assert.False(t, s.Sleeping())
	assert.Equal(t, "idle", s.Status()["current_state"])
}

func TestSession_ModeSurvivesSleep(t *testing.T) {
	s := NewSession(ModeVoice, bus.NewEventBus())

	s.Sleep()
	s.SetMode(ModeChat)
	s.Wake()

	assert.Equal(t, ModeChat, s.Mode())
}

func TestSession_InvalidModeDefaultsToChat(t *testing.T) {
	s := NewSession(Mode("telepathy"), nil)
	assert.Equal(t, ModeChat, s.Mode())
}

func TestSession_StatusFields(t *testing.T) {
	s := NewSession(ModeVoice, nil)

	status := s.Status()
	assert.Equal(t, "voice", status["mode"])
	assert.Equal(t, "idle", status["current_state"])
	assert.Equal(t, true, status["online"])
}
