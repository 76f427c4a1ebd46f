// Package dashboard serves the read-mostly web mirror of Patch's on-disk
// state. It reads the same documents the core owns and writes nothing except
// the command-queue file.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/patch/internal/bus"
	"github.com/normanking/patch/internal/chat"
	"github.com/normanking/patch/internal/command"
	"github.com/normanking/patch/internal/logging"
	"github.com/normanking/patch/internal/reminder"
	"github.com/normanking/patch/internal/session"
)

// Server is the dashboard HTTP server.
type Server struct {
	addr        string
	session     *session.Session
	sched       *reminder.Scheduler
	memory      *chat.Memory
	syslog      *logging.Logger
	commandPath string
	logger      zerolog.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
	started    time.Time

	mu        sync.Mutex
	wsClients map[*websocket.Conn]bool
}

// New creates the dashboard server, hooks the logger's streaming callback
// for the live log tail and subscribes to the core's event bus so reminder
// and session events reach the same stream.
func New(
	addr string,
	sess *session.Session,
	sched *reminder.Scheduler,
	memory *chat.Memory,
	syslog *logging.Logger,
	events *bus.EventBus,
	commandPath string,
) *Server {
	s := &Server{
		addr:        addr,
		session:     sess,
		sched:       sched,
		memory:      memory,
		syslog:      syslog,
		commandPath: commandPath,
		logger:      syslog.Component("dashboard"),
		upgrader: websocket.Upgrader{
			// Single-user LAN tool; the dashboard has no auth either
			CheckOrigin: func(*http.Request) bool { return true },
		},
		started:   time.Now(),
		wsClients: make(map[*websocket.Conn]bool),
	}

	syslog.SetOnLog(s.broadcastLog)
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeReminderFired,
		bus.EventTypeReminderMissed,
		bus.EventTypeReminderAdded,
		bus.EventTypeSessionSleeping,
		bus.EventTypeSessionAwake,
		bus.EventTypeModeChanged,
		bus.EventTypeShutdown,
	}, s.broadcastEvent)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/conversation", s.handleConversation)
	mux.HandleFunc("GET /api/reminders", s.handleReminders)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /ws/logs", s.handleLogStream)
	mux.HandleFunc("POST /api/control/{action}", s.handleControl)
	mux.HandleFunc("POST /api/reminder/add", s.handleReminderAdd)
	mux.HandleFunc("DELETE /api/reminder/delete/{id}", s.handleReminderDelete)
	mux.HandleFunc("POST /api/reminder/snooze/{id}", s.handleReminderSnooze)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Dashboard listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Dashboard server failed")
		}
	}()
}

// Shutdown stops the server and closes live log streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.wsClients {
		conn.Close()
	}
	s.wsClients = make(map[*websocket.Conn]bool)
	s.mu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.session.Status()
	status["uptime"] = int(time.Since(s.started).Seconds())
	status["log_path"] = s.syslog.GetLogPath()
	writeJSON(w, status)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, map[string]any{
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": float64(mem.HeapAlloc) / (1024 * 1024),
		"num_gc":        mem.NumGC,
		"uptime":        int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, _ *http.Request) {
	messages := s.memory.Messages()

	// System prompt stays private; mirror the last ten visible turns
	visible := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == chat.RoleUser || m.Role == chat.RoleAssistant {
			visible = append(visible, m)
		}
	}
	if len(visible) > 10 {
		visible = visible[len(visible)-10:]
	}
	writeJSON(w, visible)
}

func (s *Server) handleReminders(w http.ResponseWriter, _ *http.Request) {
	views := s.sched.List()
	sort.Slice(views, func(i, j int) bool { return views[i].Time < views[j].Time })
	if len(views) > 10 {
		views = views[:10]
	}
	writeJSON(w, views)
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.syslog.GetHistory(200))
}

func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.wsClients[conn] = true
	s.mu.Unlock()

	// Reader loop only to detect disconnect
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.wsClients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcastLog pushes one entry to every live log stream.
func (s *Server) broadcastLog(entry logging.LogEntry) {
	s.broadcast(entry)
}

// broadcastEvent mirrors a core event to the stream. Event frames carry an
// "event" key so clients can tell them from log entries.
func (s *Server) broadcastEvent(e bus.Event) {
	s.broadcast(map[string]any{"event": string(e.Type), "data": e.Data})
}

func (s *Server) broadcast(frame any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteJSON(frame); err != nil {
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	switch action {
	case "sleep", "wake", "mode_voice", "mode_chat":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
		return
	}

	if err := s.enqueue(command.Command{Action: action}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true, "action": action})
}

func (s *Server) handleReminderAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task string `json:"task"`
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Task) == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	if err := s.enqueue(command.Command{Action: "add_reminder", Task: body.Task, Time: body.Time}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleReminderDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.enqueue(command.Command{Action: "delete_reminder", ReminderID: id}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleReminderSnooze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.enqueue(command.Command{Action: "snooze_reminder", ReminderID: id}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

// enqueue writes one command to the queue file atomically so the watcher
// never reads a torn document.
func (s *Server) enqueue(cmd command.Command) error {
	cmd.Timestamp = time.Now().Format(time.RFC3339)

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.commandPath)
	tmp, err := os.CreateTemp(dir, "cmd-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.commandPath)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
