package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/patch/internal/bus"
	"github.com/normanking/patch/internal/chat"
	"github.com/normanking/patch/internal/reminder"
	"github.com/normanking/patch/internal/store"
)

type fakeSpeaker struct {
	said []string
	cues []string
}

func (f *fakeSpeaker) Name() string       { return "fake" }
func (f *fakeSpeaker) Say(text string)    { f.said = append(f.said, text) }
func (f *fakeSpeaker) PlayCue(cue string) { f.cues = append(f.cues, cue) }

func (f *fakeSpeaker) saidContaining(substr string) bool {
	for _, s := range f.said {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

type fakeChatter struct {
	reply string
	err   error
	calls [][]chat.Message
}

func (f *fakeChatter) Chat(_ context.Context, messages []chat.Message) (chat.Message, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return chat.Message{}, f.err
	}
	return chat.Message{Role: chat.RoleAssistant, Content: f.reply}, nil
}

type fakeSearcher struct {
	queries []string
	results string
}

func (f *fakeSearcher) Search(_ context.Context, query string) string {
	f.queries = append(f.queries, query)
	return f.results
}

type fakeWeather struct {
	cities []string
	report string
}

func (f *fakeWeather) Scan(_ context.Context, city string) string {
	f.cities = append(f.cities, city)
	return f.report
}

type fakeMaint struct {
	cleaned bool
	reset   bool
}

func (f *fakeMaint) DeepClean() float64 { f.cleaned = true; return 12.5 }
func (f *fakeMaint) HardReset() int64   { f.reset = true; return 1024 }

type routerFixture struct {
	router  *Router
	session *Session
	sched   *reminder.Scheduler
	memory  *chat.Memory
	speaker *fakeSpeaker
	chatter *fakeChatter
	search  *fakeSearcher
	weather *fakeWeather
	maint   *fakeMaint
	confirm string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	st := store.New(zerolog.Nop())
	dir := t.TempDir()

	f := &routerFixture{
		session: NewSession(ModeChat, bus.NewEventBus()),
		sched: reminder.NewScheduler(st, reminder.Config{
			Path: filepath.Join(dir, "reminders.json"),
		}, zerolog.Nop()),
		memory:  chat.NewMemory(st, filepath.Join(dir, "memory.json"), 12, zerolog.Nop()),
		speaker: &fakeSpeaker{},
		chatter: &fakeChatter{reply: "Exciting, Friend!"},
		search:  &fakeSearcher{results: "some facts"},
		weather: &fakeWeather{report: "Atmospheric scan complete, Friend! tokyo: Sunny +15C"},
		maint:   &fakeMaint{},
	}
	f.router = NewRouter(
		f.session, f.sched, f.memory,
		f.chatter, f.search, f.weather, f.maint,
		f.speaker,
		func(context.Context) string { return f.confirm },
		zerolog.Nop(),
	)
	return f
}

func (f *routerFixture) route(t *testing.T, input string) bool {
	t.Helper()
	terminal, err := f.router.Route(context.Background(), input)
	require.NoError(t, err)
	return terminal
}

func TestRouter_AddBeatsListOnOverlappingPhrases(t *testing.T) {
	f := newRouterFixture(t)

	// Contains both an add trigger ("remind me") and a list trigger
	// ("mission log"); add sits higher in the table and must win.
	f.route(t, "remind me to check the mission log at 5pm")

	assert.Equal(t, 1, f.sched.ActiveCount())
	assert.True(t, f.speaker.saidContaining("Reminder logged"))
	assert.False(t, f.speaker.saidContaining("active reminder"))
}

func TestRouter_SleepGateDiscardsEverythingButWake(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "patch sleep")
	require.True(t, f.session.Sleeping())
	saidBefore := len(f.speaker.said)

	// Discarded without a response, without side effects.
	f.route(t, "remind me to water plants in 10 minutes")
	assert.Equal(t, 0, f.sched.ActiveCount())
	assert.Len(t, f.speaker.said, saidBefore)

	f.route(t, "hey patch wake up please")
	assert.False(t, f.session.Sleeping())
	assert.True(t, f.speaker.saidContaining("I'm awake"))
}

func TestRouter_ModeSwitch(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "switch to voice mode")
	assert.Equal(t, ModeVoice, f.session.Mode())

	f.route(t, "switch to chat mode")
	assert.Equal(t, ModeChat, f.session.Mode())
}

func TestRouter_ExitIsTerminal(t *testing.T) {
	f := newRouterFixture(t)

	terminal := f.route(t, "ok patch, shut down")
	assert.True(t, terminal)
	assert.Contains(t, f.speaker.cues, "poweroff")
}

func TestRouter_UnmatchedInputFallsThroughToChat(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "how was your day?")

	require.Len(t, f.chatter.calls, 1)
	sent := f.chatter.calls[0]
	assert.Equal(t, chat.RoleSystem, sent[0].Role)
	assert.Equal(t, "how was your day?", sent[len(sent)-1].Content)
	assert.True(t, f.speaker.saidContaining("Exciting, Friend!"))

	// Both turns landed in memory.
	messages := f.memory.Messages()
	assert.Equal(t, "Exciting, Friend!", messages[len(messages)-1].Content)
}

func TestRouter_BackendUnavailableIsTerminal(t *testing.T) {
	f := newRouterFixture(t)
	f.chatter.err = fmt.Errorf("%w: connection refused", chat.ErrBackendUnavailable)

	terminal, err := f.router.Route(context.Background(), "hello there")
	assert.True(t, terminal)
	assert.ErrorIs(t, err, chat.ErrBackendUnavailable)
}

func TestRouter_TransientChatErrorContinues(t *testing.T) {
	f := newRouterFixture(t)
	f.chatter.err = errors.New("model busy")

	terminal, err := f.router.Route(context.Background(), "hello there")
	assert.False(t, terminal)
	assert.NoError(t, err)
	assert.True(t, f.speaker.saidContaining("thinking circuits glitched"))
}

func TestRouter_ListReminders(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "list reminders")
	assert.True(t, f.speaker.saidContaining("Your log is empty"))

	f.route(t, "remind me to water plants in 10 minutes")
	f.route(t, "list reminders")
	assert.True(t, f.speaker.saidContaining("1 active reminder"))
	assert.True(t, f.speaker.saidContaining("water plants"))
}

func TestRouter_DeleteReminderByKeyword(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "remind me to water plants in 10 minutes")
	require.Equal(t, 1, f.sched.ActiveCount())

	f.route(t, "cancel reminder plants")
	assert.Equal(t, 0, f.sched.ActiveCount())
	assert.True(t, f.speaker.saidContaining("Task aborted"))

	f.route(t, "cancel reminder plants")
	assert.True(t, f.speaker.saidContaining("Couldn't find a matching reminder"))
}

func TestRouter_WipeAllRequiresConfirmation(t *testing.T) {
	f := newRouterFixture(t)
	f.route(t, "remind me to water plants in 10 minutes")

	f.confirm = "no way"
	f.route(t, "wipe all reminders")
	assert.Equal(t, 1, f.sched.ActiveCount())
	assert.True(t, f.speaker.saidContaining("Wipe cancelled"))

	f.confirm = "Confirm"
	f.route(t, "wipe all reminders")
	assert.Equal(t, 0, f.sched.ActiveCount())
}

func TestRouter_WipeActiveSkipsConfirmation(t *testing.T) {
	f := newRouterFixture(t)
	f.route(t, "remind me to water plants in 10 minutes")

	// confirm stays empty: active-only wipes never ask.
	f.route(t, "wipe active reminders")
	assert.Equal(t, 0, f.sched.ActiveCount())
	assert.True(t, f.speaker.saidContaining("Active reminders wiped"))
}

func TestRouter_RecurringDetection(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "remind me to exercise every day at 7am")

	views := f.sched.List()
	require.Len(t, views, 1)
	assert.True(t, views[0].Recurring)
}

func TestRouter_WeatherPromptsWithoutCity(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "run a weather scan")

	assert.True(t, f.speaker.saidContaining("Which city"))
	assert.Empty(t, f.weather.cities)
	assert.Empty(t, f.chatter.calls)
}

func TestRouter_WeatherFoldsReportIntoChat(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "what's the weather in tokyo")

	require.Equal(t, []string{"tokyo"}, f.weather.cities)
	require.Len(t, f.chatter.calls, 1)
	assert.True(t, f.speaker.saidContaining("Exciting, Friend!"))

	sent := f.chatter.calls[0]
	assert.Contains(t, sent[len(sent)-1].Content, "Atmospheric scan results")
}

func TestRouter_SearchFoldsResultsIntoChat(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "search for gundam model kits")

	require.Equal(t, []string{"gundam model kits"}, f.search.queries)
	require.Len(t, f.chatter.calls, 1)
	sent := f.chatter.calls[0]
	assert.Contains(t, sent[len(sent)-1].Content, "some facts")
}

func TestRouter_ResetMemory(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "what a lovely morning")
	require.Greater(t, f.memory.Len(), 1)

	f.route(t, "please forget everything")
	assert.Equal(t, 1, f.memory.Len())
}

func TestRouter_CleanSystem(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "clean your system")
	assert.True(t, f.maint.cleaned)
	assert.True(t, f.speaker.saidContaining("12.50 megabytes"))
}

func TestRouter_TotalResetClearsCachesAndMemory(t *testing.T) {
	f := newRouterFixture(t)
	f.route(t, "good morning patch")
	require.Greater(t, f.memory.Len(), 1)

	f.route(t, "total reset")
	assert.True(t, f.maint.reset)
	assert.Equal(t, 1, f.memory.Len())
}

func TestRouter_DailySummaryCleanSlate(t *testing.T) {
	f := newRouterFixture(t)

	f.route(t, "give me the daily summary")

	assert.True(t, f.speaker.saidContaining("Clean slate"))
	assert.Empty(t, f.chatter.calls)
}
