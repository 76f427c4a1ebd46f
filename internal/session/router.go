package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/patch/internal/chat"
	"github.com/normanking/patch/internal/reminder"
	"github.com/normanking/patch/internal/speech"
)

// WakePhrase is the only input honored while sleeping.
const WakePhrase = "patch wake up"

// Chatter is the chat backend seam.
type Chatter interface {
	Chat(ctx context.Context, messages []chat.Message) (chat.Message, error)
}

// Searcher is the web search seam.
type Searcher interface {
	Search(ctx context.Context, query string) string
}

// WeatherScanner is the weather seam.
type WeatherScanner interface {
	Scan(ctx context.Context, city string) string
}

// Maintainer is the system maintenance seam.
type Maintainer interface {
	DeepClean() float64
	HardReset() int64
}

// route is one trigger group: the first phrase found as a substring of the
// input selects the handler, and the whole table is scanned in declared
// order. Priority between overlapping phrases is exactly this order.
type route struct {
	name    string
	phrases []string
	handler func(ctx context.Context, input, low, trigger string) (terminal bool, err error)
}

// Router classifies each input line against the ordered trigger table and
// dispatches to exactly one handler per turn.
type Router struct {
	session *Session
	sched   *reminder.Scheduler
	memory  *chat.Memory
	chatter Chatter
	search  Searcher
	weather WeatherScanner
	maint   Maintainer
	speaker speech.OutputSink
	confirm func(ctx context.Context) string
	logger  zerolog.Logger
	routes  []route
}

// NewRouter wires the trigger table. confirm acquires one extra input line
// for destructive confirmations; a nil confirm declines them.
func NewRouter(
	session *Session,
	sched *reminder.Scheduler,
	memory *chat.Memory,
	chatter Chatter,
	search Searcher,
	weather WeatherScanner,
	maint Maintainer,
	speaker speech.OutputSink,
	confirm func(ctx context.Context) string,
	logger zerolog.Logger,
) *Router {
	r := &Router{
		session: session,
		sched:   sched,
		memory:  memory,
		chatter: chatter,
		search:  search,
		weather: weather,
		maint:   maint,
		speaker: speaker,
		confirm: confirm,
		logger:  logger.With().Str("component", "router").Logger(),
	}

	// The table order is user-visible behavior: overlapping phrases resolve
	// to whichever group sits higher. Do not reorder.
	r.routes = []route{
		{"mode-switch", []string{"switch to"}, r.handleModeSwitch},
		{"exit", []string{"exit", "shut down", "power down"}, r.handleExit},
		{"clean-system", []string{"clean your system"}, r.handleCleanSystem},
		{"total-reset", []string{"total reset"}, r.handleTotalReset},
		{"reset-memory", []string{"reset memory", "forget everything", "clear history"}, r.handleResetMemory},
		{"sleep", []string{"temporarily sleep", "patch sleep", "pause system"}, r.handleSleep},
		{"reminder-add", []string{"log reminder", "schedule task", "set alarm", "remind me", "create reminder"}, r.handleReminderAdd},
		{"reminder-list", []string{"reminder status", "what's on my agenda", "mission log", "list reminders", "show reminders", "what's on my schedule"}, r.handleReminderList},
		{"reminder-delete", []string{"cancel reminder", "delete task", "abort mission", "remove reminder"}, r.handleReminderDelete},
		{"reminder-wipe", []string{"wipe all reminders", "wipe active reminders", "wipe reminder archive"}, r.handleReminderWipe},
		{"reminder-summary", []string{"daily summary", "status report", "mission summary", "how did i do today", "today's summary"}, r.handleReminderSummary},
		{"weather", []string{"weather scan", "environmental report", "atmospheric conditions", "weather in", "weather for"}, r.handleWeather},
		{"search", []string{"search engine active", "searching enable", "search for", "look up", "open google"}, r.handleSearch},
	}

	return r
}

// Route consumes one turn of input. It returns terminal=true when the exit
// trigger fired; err is non-nil only for an unrecoverable backend failure.
func (r *Router) Route(ctx context.Context, input string) (terminal bool, err error) {
	low := strings.ToLower(input)

	// Sleep gate: everything but the wake phrase is discarded.
	if r.session.Sleeping() {
		if strings.Contains(low, WakePhrase) {
			r.session.Wake()
			r.speaker.Say("I'm awake! Systems at one hundred percent. What's the plan, Friend?")
		}
		return false, nil
	}

	for _, rt := range r.routes {
		for _, phrase := range rt.phrases {
			if strings.Contains(low, phrase) {
				r.logger.Debug().Str("route", rt.name).Str("trigger", phrase).Msg("Dispatching")
				return rt.handler(ctx, input, low, phrase)
			}
		}
	}

	return r.handleChat(ctx, input)
}

func (r *Router) handleModeSwitch(_ context.Context, _, low, _ string) (bool, error) {
	if strings.Contains(low, "chat") {
		r.session.SetMode(ModeChat)
		r.speaker.Say("Chat mode active! Type away, Friend.")
	} else {
		r.session.SetMode(ModeVoice)
		r.speaker.Say("Voice mode active! I'm listening, Friend.")
	}
	return false, nil
}

func (r *Router) handleExit(context.Context, string, string, string) (bool, error) {
	r.speaker.Say("Powering down. See you later, Friend!")
	r.speaker.PlayCue("poweroff")
	return true, nil
}

func (r *Router) handleCleanSystem(context.Context, string, string, string) (bool, error) {
	r.speaker.Say("Of course, Friend! Tidying up my digital workspace now.")
	saved := r.maint.DeepClean()
	if saved > 0 {
		r.speaker.Say(fmt.Sprintf("All done! I successfully cleared %.2f megabytes of junk data. I feel much lighter!", saved))
	} else {
		r.speaker.Say("All done! My room was already quite tidy, but I double-checked everything anyway!")
	}
	return false, nil
}

func (r *Router) handleTotalReset(context.Context, string, string, string) (bool, error) {
	r.speaker.Say("Understood, Friend. Initiating a full storage reset. This will delete my caches.")
	r.maint.HardReset()
	if err := r.memory.Reset(); err != nil {
		r.logger.Error().Err(err).Msg("Memory reset failed")
	}
	r.speaker.Say("Reset complete. Starting fresh from here, Friend.")
	return false, nil
}

func (r *Router) handleResetMemory(context.Context, string, string, string) (bool, error) {
	r.speaker.Say("Understood, Friend. Deleting my memory banks now. Who are you again?")
	if err := r.memory.Reset(); err != nil {
		r.logger.Error().Err(err).Msg("Memory reset failed")
	}
	return false, nil
}

func (r *Router) handleSleep(context.Context, string, string, string) (bool, error) {
	r.speaker.Say("Powering down sensors for a bit. Just say wake up if you need me!")
	r.session.Sleep()
	return false, nil
}

func (r *Router) handleReminderAdd(_ context.Context, input, low, trigger string) (bool, error) {
	task := reminder.ExtractTask(input, trigger)
	recurring := strings.Contains(low, "every day") || strings.Contains(low, "daily")

	outcome, err := r.sched.Add(task, input, recurring)
	if err != nil {
		r.speaker.Say("Friend, something went wrong saving that reminder. Please try again.")
		return false, nil
	}
	if outcome.LimitReached {
		r.speaker.Say(fmt.Sprintf("Friend, my reminder log is full at %d entries! Delete some to make room.", outcome.ActiveCount))
		return false, nil
	}
	r.speaker.Say(fmt.Sprintf("Reminder logged, Friend! I'll alert you about %s at %s.", task, outcome.FireTime))
	return false, nil
}

func (r *Router) handleReminderList(context.Context, string, string, string) (bool, error) {
	views := r.sched.List()
	if len(views) == 0 {
		r.speaker.Say("Your log is empty, Friend! No reminders scheduled.")
		return false, nil
	}

	r.speaker.Say(fmt.Sprintf("You have %d active %s, Friend!", len(views), plural("reminder", len(views))))
	for i, v := range views {
		if i >= 5 {
			break
		}
		msg := fmt.Sprintf("%s at %s", v.Task, v.Time)
		if v.Recurring {
			msg += " (recurring daily)"
		}
		r.speaker.Say(msg)
	}
	return false, nil
}

func (r *Router) handleReminderDelete(_ context.Context, _, low, trigger string) (bool, error) {
	keyword := strings.TrimSpace(strings.ReplaceAll(low, trigger, ""))
	if keyword == "" {
		r.speaker.Say("Couldn't find a matching reminder, Friend!")
		return false, nil
	}

	deleted, err := r.sched.Delete(keyword)
	if err != nil {
		r.logger.Error().Err(err).Msg("Delete failed to persist")
	}
	if deleted > 0 {
		r.speaker.Say(fmt.Sprintf("Task aborted! Deleted %d %s.", deleted, plural("reminder", deleted)))
	} else {
		r.speaker.Say("Couldn't find a matching reminder, Friend!")
	}
	return false, nil
}

func (r *Router) handleReminderWipe(ctx context.Context, _, _, trigger string) (bool, error) {
	scope := map[string]string{
		"wipe all reminders":    "all",
		"wipe active reminders": "active",
		"wipe reminder archive": "archive",
	}[trigger]

	if scope == "all" {
		r.speaker.Say("Friend, this will erase all reminders and history. Say confirm to proceed.")
		if r.confirm == nil || strings.ToLower(strings.TrimSpace(r.confirm(ctx))) != "confirm" {
			r.speaker.Say("Wipe cancelled.")
			return false, nil
		}
	}

	counts, err := r.sched.Wipe(scope)
	if err != nil {
		r.logger.Error().Err(err).Msg("Wipe failed to persist")
	}
	switch scope {
	case "active":
		r.speaker.Say(fmt.Sprintf("Active reminders wiped. %d %s removed.", counts.Active, plural("task", counts.Active)))
	case "archive":
		r.speaker.Say(fmt.Sprintf("Archive cleared. %d historical entries removed.", counts.Archive))
	case "all":
		r.speaker.Say(fmt.Sprintf("All reminder data erased. %d total entries removed.", counts.Total()))
	}
	return false, nil
}

func (r *Router) handleReminderSummary(ctx context.Context, _, _, _ string) (bool, error) {
	summary := r.sched.DailySummary("")
	r.speaker.Say(r.narrateSummary(ctx, summary))
	return false, nil
}

// SpeakDailySummary announces today's summary unprompted. The nightly
// scheduled job calls this.
func (r *Router) SpeakDailySummary(ctx context.Context) {
	r.speaker.Say(r.narrateSummary(ctx, r.sched.DailySummary("")))
}

// narrateSummary asks the chat backend to phrase the factual payload with
// personality, under a prompt that forbids inventing facts. On backend
// failure it falls back to the plain factual report.
func (r *Router) narrateSummary(ctx context.Context, summary reminder.Summary) string {
	if len(summary.Completed) == 0 && len(summary.Missed) == 0 {
		return "Daily report: No completed or missed reminders today. Clean slate, Friend."
	}

	tone := "balanced and motivating"
	switch {
	case len(summary.Missed) > 0 && len(summary.Completed) == 0:
		tone = "gentle encouragement"
	case len(summary.Completed) > 0 && len(summary.Missed) == 0:
		tone = "celebratory"
	}

	systemPrompt := "You are Patch, a friendly robot companion. " +
		"You will receive a factual daily summary in JSON. " +
		"Your job is to respond with personality and encouragement only. " +
		"Rules:\n" +
		"- Do NOT invent tasks\n" +
		"- Do NOT change counts\n" +
		"- Do NOT mention JSON\n" +
		"- 1 to 3 short sentences\n" +
		"- No emojis\n" +
		fmt.Sprintf("- Tone: %s\n", tone)

	payload, _ := json.MarshalIndent(summary, "", "  ")
	reply, err := r.chatter.Chat(ctx, []chat.Message{
		{Role: chat.RoleSystem, Content: systemPrompt},
		{Role: chat.RoleUser, Content: string(payload)},
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Summary narration failed, using plain report")
		return fmt.Sprintf("Daily report: %d completed, %d missed.", len(summary.Completed), len(summary.Missed))
	}
	return reply.Content
}

func (r *Router) handleWeather(ctx context.Context, _, low, trigger string) (bool, error) {
	city := strings.TrimSpace(low[strings.Index(low, trigger)+len(trigger):])
	for _, word := range []string{"for ", "in ", "of ", "at "} {
		city = strings.TrimPrefix(city, word)
	}
	city = strings.TrimSpace(city)
	if city == "" {
		r.speaker.Say("Which city should I scan, Friend?")
		return false, nil
	}

	report := r.weather.Scan(ctx, city)
	r.memory.Append(chat.RoleUser, fmt.Sprintf(
		"Atmospheric scan results: %s\n\nReact to this weather data with your excited personality! "+
			"Comment on if it's hot, cold, rainy, or perfect conditions. Keep it 1-2 sentences max and NO emojis!", report))

	return r.completeChatTurn(ctx)
}

func (r *Router) handleSearch(ctx context.Context, _, low, trigger string) (bool, error) {
	query := strings.TrimSpace(strings.ReplaceAll(low, trigger, ""))
	results := r.search.Search(ctx, query)

	r.memory.Append(chat.RoleUser, fmt.Sprintf(
		"I found this on the web for '%s':\n%s\n\nPatch, use those facts to give me a very short, around 1 or 3 sentence answer!",
		query, results))

	return r.completeChatTurn(ctx)
}

func (r *Router) handleChat(ctx context.Context, input string) (bool, error) {
	r.memory.Append(chat.RoleUser, input)
	return r.completeChatTurn(ctx)
}

// completeChatTurn runs the chat backend over the pending history, speaks
// the reply and persists both turns. An unavailable backend (even after its
// CPU retry) is the one collaborator failure that ends the loop.
func (r *Router) completeChatTurn(ctx context.Context) (bool, error) {
	reply, err := r.chatter.Chat(ctx, r.memory.Messages())
	if err != nil {
		if errors.Is(err, chat.ErrBackendUnavailable) {
			return true, err
		}
		r.logger.Error().Err(err).Msg("Chat backend failed")
		r.speaker.Say("Sorry, Friend, my thinking circuits glitched. Could you say that again?")
		return false, nil
	}

	r.speaker.Say(reply.Content)
	r.memory.Append(chat.RoleAssistant, reply.Content)
	if err := r.memory.Save(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist conversation memory")
	}
	return false, nil
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
