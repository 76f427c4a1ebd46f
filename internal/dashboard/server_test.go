package dashboard

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/patch/internal/bus"
	"github.com/normanking/patch/internal/chat"
	"github.com/normanking/patch/internal/command"
	"github.com/normanking/patch/internal/logging"
	"github.com/normanking/patch/internal/reminder"
	"github.com/normanking/patch/internal/session"
	"github.com/normanking/patch/internal/store"
)

type fixture struct {
	server      *httptest.Server
	raw         *Server
	sess        *session.Session
	sched       *reminder.Scheduler
	memory      *chat.Memory
	events      *bus.EventBus
	commandPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	syslog, err := logging.New(&logging.Config{
		LogDir:     filepath.Join(dir, "logs"),
		Level:      logging.LevelDebug,
		MaxHistory: 100,
		Console:    false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { syslog.Close() })

	st := store.New(zerolog.Nop())
	events := bus.NewEventBus()
	f := &fixture{
		events: events,
		sess:   session.NewSession(session.ModeChat, events),
		sched: reminder.NewScheduler(st, reminder.Config{
			Path: filepath.Join(dir, "reminders.json"),
		}, zerolog.Nop()),
		memory:      chat.NewMemory(st, filepath.Join(dir, "memory.json"), 12, zerolog.Nop()),
		commandPath: filepath.Join(dir, "command.json"),
	}

	f.raw = New(":0", f.sess, f.sched, f.memory, syslog, events, f.commandPath)
	f.server = httptest.NewServer(f.raw.httpServer.Handler)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (f *fixture) queuedCommand(t *testing.T) command.Command {
	t.Helper()
	data, err := os.ReadFile(f.commandPath)
	require.NoError(t, err)
	var cmd command.Command
	require.NoError(t, json.Unmarshal(data, &cmd))
	return cmd
}

func TestServer_Status(t *testing.T) {
	f := newFixture(t)

	var status map[string]any
	f.getJSON(t, "/api/status", &status)

	assert.Equal(t, "chat", status["mode"])
	assert.Equal(t, "idle", status["current_state"])
	assert.NotNil(t, status["uptime"])
	assert.NotEmpty(t, status["log_path"])
}

func TestServer_LogStreamCarriesBusEvents(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/logs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the server side to register the stream.
	require.Eventually(t, func() bool {
		f.raw.mu.Lock()
		defer f.raw.mu.Unlock()
		return len(f.raw.wsClients) == 1
	}, time.Second, 10*time.Millisecond)

	f.events.PublishSync(bus.Event{
		Type: bus.EventTypeReminderFired,
		Data: map[string]any{"id": "rem_001", "task": "water plants"},
	})

	// Log entries may interleave on the same stream; scan for the event frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["event"] == string(bus.EventTypeReminderFired) {
			data, ok := frame["data"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "water plants", data["task"])
			return
		}
	}
}

func TestServer_RemindersSortedByFireTime(t *testing.T) {
	f := newFixture(t)

	_, err := f.sched.Add("later", "in 3 hours", false)
	require.NoError(t, err)
	_, err = f.sched.Add("sooner", "in 1 hour", false)
	require.NoError(t, err)

	var views []reminder.View
	f.getJSON(t, "/api/reminders", &views)

	require.Len(t, views, 2)
	assert.Equal(t, "sooner", views[0].Task)
	assert.Equal(t, "later", views[1].Task)
}

func TestServer_ConversationHidesSystemPrompt(t *testing.T) {
	f := newFixture(t)

	f.memory.Append(chat.RoleUser, "hello")
	f.memory.Append(chat.RoleAssistant, "Hello, Friend!")

	var messages []chat.Message
	f.getJSON(t, "/api/conversation", &messages)

	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello, Friend!", messages[1].Content)
}

func TestServer_Logs(t *testing.T) {
	f := newFixture(t)

	var entries []logging.LogEntry
	f.getJSON(t, "/api/logs", &entries)

	// At minimum the logger init line is present.
	assert.NotEmpty(t, entries)
}

func TestServer_ControlEnqueuesCommand(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/api/control/sleep", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cmd := f.queuedCommand(t)
	assert.Equal(t, "sleep", cmd.Action)
	assert.NotEmpty(t, cmd.Timestamp)
}

func TestServer_ControlRejectsUnknownAction(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/api/control/self_destruct", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, statErr := os.Stat(f.commandPath)
	assert.True(t, os.IsNotExist(statErr), "no command should be queued")
}

func TestServer_ReminderAddEnqueuesCommand(t *testing.T) {
	f := newFixture(t)

	body := bytes.NewBufferString(`{"task": "water plants", "time": "in 10 minutes"}`)
	resp, err := http.Post(f.server.URL+"/api/reminder/add", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cmd := f.queuedCommand(t)
	assert.Equal(t, "add_reminder", cmd.Action)
	assert.Equal(t, "water plants", cmd.Task)
	assert.Equal(t, "in 10 minutes", cmd.Time)

	// The dashboard only queues; ledger state is untouched until the core
	// consumes the command.
	assert.Equal(t, 0, f.sched.ActiveCount())
}

func TestServer_ReminderAddRequiresTask(t *testing.T) {
	f := newFixture(t)

	body := bytes.NewBufferString(`{"task": "  "}`)
	resp, err := http.Post(f.server.URL+"/api/reminder/add", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ReminderDeleteEnqueuesCommand(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodDelete, f.server.URL+"/api/reminder/delete/rem_001", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cmd := f.queuedCommand(t)
	assert.Equal(t, "delete_reminder", cmd.Action)
	assert.Equal(t, "rem_001", cmd.ReminderID)
}
