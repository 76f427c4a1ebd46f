package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/patch/internal/store"
)

func newTestMemory(t *testing.T, maxHistory int) *Memory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.json")
	return NewMemory(store.New(zerolog.Nop()), path, maxHistory, zerolog.Nop())
}

func TestMemory_StartsWithPersona(t *testing.T) {
	m := newTestMemory(t, 12)

	messages := m.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, PersonaPrompt, messages[0].Content)
}

func TestMemory_SaveTruncatesToMostRecent(t *testing.T) {
	m := newTestMemory(t, 6)

	for i := 0; i < 10; i++ {
		m.Append(RoleUser, fmt.Sprintf("question %d", i))
		m.Append(RoleAssistant, fmt.Sprintf("answer %d", i))
	}
	require.NoError(t, m.Save())

	messages := m.Messages()
	require.Len(t, messages, 6)
	assert.Equal(t, "question 7", messages[0].Content)
	assert.Equal(t, "answer 9", messages[5].Content)
}

func TestMemory_PersistsAcrossRestarts(t *testing.T) {
	st := store.New(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "memory.json")

	first := NewMemory(st, path, 12, zerolog.Nop())
	first.Append(RoleUser, "remember the milk")
	first.Append(RoleAssistant, "Logged, Friend!")
	require.NoError(t, first.Save())

	second := NewMemory(st, path, 12, zerolog.Nop())
	messages := second.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "remember the milk", messages[1].Content)
	assert.Equal(t, "Logged, Friend!", messages[2].Content)
}

func TestMemory_ResetReinstallsPersona(t *testing.T) {
	m := newTestMemory(t, 12)

	m.Append(RoleUser, "my name is Natt")
	m.Append(RoleAssistant, "Nice to meet you, Friend!")
	require.NoError(t, m.Save())
	require.Equal(t, 3, m.Len())

	require.NoError(t, m.Reset())

	messages := m.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, PersonaPrompt, messages[0].Content)
}

func TestMemory_CorruptDocumentFallsBackToPersona(t *testing.T) {
	st := store.New(zerolog.Nop())
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.json")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	m := NewMemory(st, path, 12, zerolog.Nop())
	messages := m.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, RoleSystem, messages[0].Role)
}
