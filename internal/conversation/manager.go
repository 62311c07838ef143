package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/DarriEy/delta-agent/pkg/logger"
)

// Backend is the slice of the orchestrator API the manager depends on.
type Backend interface {
	CreateConversation(ctx context.Context, mode string, userID int) (string, error)
	StreamReply(ctx context.Context, conversationID, userInput string, onChunk func(string)) (string, error)
}

// Manager owns the conversation identity and message history and performs the
// send/stream/update cycle for one user turn. The identity is created lazily
// on the first send and is immutable for the rest of the session; only
// CreateConversation replaces it (and resets the history with it).
type Manager struct {
	backend Backend
	userID  int

	mu   sync.Mutex
	id   string
	mode string

	history *History
}

func NewManager(backend Backend, mode string, userID int) *Manager {
	return &Manager{
		backend: backend,
		userID:  userID,
		mode:    mode,
		history: NewHistory(),
	}
}

// CreateConversation asks the backend for a fresh conversation identifier
// tagged with mode and resets the history. On failure the previous identity
// is kept and the error returned; callers check the identifier, not panics.
func (m *Manager) CreateConversation(ctx context.Context, mode string) (string, error) {
	id, err := m.backend.CreateConversation(ctx, mode, m.userID)
	if err != nil {
		logger.Errorf("failed to create conversation: %v", err)
		return "", err
	}
	m.mu.Lock()
	m.id = id
	m.mode = mode
	m.mu.Unlock()
	m.history.Reset()
	return id, nil
}

// SendMessage performs one user turn: it appends the user message, opens an
// assistant placeholder, streams the reply while rewriting the placeholder
// content (incremental "typing"), forwards raw chunks to onChunkReceived, and
// returns the assembled reply. Stream errors propagate to the caller so it can
// distinguish a failed reply from an empty one.
func (m *Manager) SendMessage(ctx context.Context, text string, onChunkReceived func(chunk string)) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty message")
	}

	id, err := m.ensureConversation(ctx)
	if err != nil {
		return "", fmt.Errorf("no conversation available: %w", err)
	}

	m.history.Add(RoleUser, text)
	m.history.StartAssistantMessage()

	var full strings.Builder
	reply, err := m.backend.StreamReply(ctx, id, text, func(chunk string) {
		full.WriteString(chunk)
		m.history.UpdateLastAssistant(full.String())
		if onChunkReceived != nil {
			onChunkReceived(chunk)
		}
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// ensureConversation lazily creates the conversation on first use.
func (m *Manager) ensureConversation(ctx context.Context) (string, error) {
	m.mu.Lock()
	id, mode := m.id, m.mode
	m.mu.Unlock()
	if id != "" {
		return id, nil
	}
	return m.CreateConversation(ctx, mode)
}

// ConversationID returns the current identifier, or "" before first use.
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Mode returns the active conversation mode.
func (m *Manager) Mode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// History exposes the transcript for read-only consumers (UI state pushes).
func (m *Manager) History() []Message {
	return m.history.Messages()
}
