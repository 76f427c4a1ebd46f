package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// Roles for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PersonaPrompt is the fixed identity installed as the first system message.
const PersonaPrompt = "NAME: Patch. IDENTITY: A physical robot project built by Natt in his bedroom. " +
	"PERSONALITY: Polite, high-energy. Use 'Friend!' and 'Exciting!' or similar words. Don't overuse. " +
	"CURRENT STATE: Physical body under construction; currently just a program. " +
	"LIMITATIONS: No visual sensors yet. " +
	"You also have the ability to search the web and scan atmospheric conditions (weather). " +
	"STRICT RULES: Keep responses to 1-2 sentences. NEVER use emojis or emoticons. " +
	"Reason: Emojis will break my voice synthesis system. Use words only! " +
	"SEARCH RULE: Summarize web data simply and ignore technical gibberish."

// Persister is the serialization boundary for the memory document.
type Persister interface {
	Load(path string, v any) bool
	Save(path string, v any) error
	Remove(path string) error
}

// Memory is the persisted conversation history: persona prompt first, capped
// to the most recent maxHistory entries on every save.
type Memory struct {
	mu       sync.Mutex
	messages []Message

	store      Persister
	path       string
	maxHistory int
	logger     zerolog.Logger
}

// NewMemory loads the memory document, installing the persona prompt when the
// document is missing or corrupt.
func NewMemory(store Persister, path string, maxHistory int, logger zerolog.Logger) *Memory {
	if maxHistory <= 0 {
		maxHistory = 12
	}

	m := &Memory{
		store:      store,
		path:       path,
		maxHistory: maxHistory,
		logger:     logger.With().Str("component", "memory").Logger(),
	}

	if !store.Load(path, &m.messages) || len(m.messages) == 0 {
		m.messages = []Message{{Role: RoleSystem, Content: PersonaPrompt}}
	}
	return m
}

// Messages returns a copy of the history for a chat call.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Append records one message without persisting.
func (m *Memory) Append(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Role: role, Content: content})
}

// Save persists the history, truncated to the most recent maxHistory entries.
func (m *Memory) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) > m.maxHistory {
		m.messages = m.messages[len(m.messages)-m.maxHistory:]
	}
	return m.store.Save(m.path, m.messages)
}

// Reset deletes the memory document and reinstalls the persona prompt.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Remove(m.path); err != nil {
		m.logger.Error().Err(err).Msg("Failed to delete memory document")
		return err
	}
	m.messages = []Message{{Role: RoleSystem, Content: PersonaPrompt}}
	return m.store.Save(m.path, m.messages)
}

// Len returns the number of stored messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
