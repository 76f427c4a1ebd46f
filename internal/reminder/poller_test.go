package reminder

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/patch/internal/bus"
)

type recordingSpeaker struct {
	mu   sync.Mutex
	said []string
}

func (r *recordingSpeaker) Say(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.said = append(r.said, text)
}

func (r *recordingSpeaker) announced(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.said {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestPoller_AnnouncesFiredReminders(t *testing.T) {
	sched := newTestScheduler(t, Config{})
	_, err := sched.Add("water plants", "in 1 minute", false)
	require.NoError(t, err)
	// Already past its fire time: the first tick must announce it.
	sched.SetClock(fixedClock(time.Now().Add(-2 * time.Minute)))
	_, err = sched.Add("already due", "in 1 minute", false)
	require.NoError(t, err)

	speaker := &recordingSpeaker{}
	poller := NewPoller(sched, speaker, bus.NewEventBus(), 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	assert.Eventually(t, func() bool {
		return speaker.announced("Reminder alert: already due")
	}, 2*time.Second, 20*time.Millisecond)

	assert.False(t, speaker.announced("water plants"), "future reminder must not fire")
}

func TestPoller_RecoverMissedAnnouncesOnce(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	sched := newTestScheduler(t, Config{})
	sched.SetClock(fixedClock(base))
	_, err := sched.Add("water plants", "in 10 minutes", false)
	require.NoError(t, err)

	speaker := &recordingSpeaker{}
	poller := NewPoller(sched, speaker, bus.NewEventBus(), time.Second, zerolog.Nop())

	poller.RecoverMissed(base.Add(24 * time.Hour))
	assert.True(t, speaker.announced("You missed a reminder: water plants"))

	// Recovery is idempotent; the archive already holds the entry.
	before := len(speaker.said)
	poller.RecoverMissed(base.Add(25 * time.Hour))
	assert.Len(t, speaker.said, before)
}
