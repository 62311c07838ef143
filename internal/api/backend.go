package api

import (
	"context"
	"fmt"

	"github.com/DarriEy/delta-agent/pkg/logger"
)

// Backend wraps Client with the typed Delta orchestrator endpoints.
type Backend struct {
	client *Client
}

func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

type createConversationResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

// CreateConversation requests a new conversation identifier tagged with an
// initial mode. The backend reports the identifier as either "id" or
// "conversation_id" depending on version.
func (b *Backend) CreateConversation(ctx context.Context, mode string, userID int) (string, error) {
	var out createConversationResponse
	err := b.client.Post(ctx, "/conversations/", map[string]interface{}{
		"active_mode": mode,
		"user_id":     userID,
	}, &out)
	if err != nil {
		return "", err
	}
	id := out.ConversationID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return "", fmt.Errorf("backend returned no conversation id")
	}
	return id, nil
}

// StreamReply opens the reply token stream for one user turn and forwards each
// decoded chunk. The assembled reply text is returned once the stream ends.
func (b *Backend) StreamReply(ctx context.Context, conversationID, userInput string, onChunk func(string)) (string, error) {
	return b.client.Stream(ctx, "/process_stream", map[string]interface{}{
		"user_input":      userInput,
		"conversation_id": conversationID,
	}, onChunk)
}

type ttsResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize converts text to speech via the backend and returns the
// base64-encoded audio content.
func (b *Backend) Synthesize(ctx context.Context, text string) (string, error) {
	var out ttsResponse
	if err := b.client.Post(ctx, "/tts", map[string]string{"text": text}, &out); err != nil {
		return "", err
	}
	return out.AudioContent, nil
}

type generateImageResponse struct {
	ImageURL string `json:"image_url"`
}

// GenerateImage requests a background image for the given prompt and returns
// its URL, or "" when the backend could not produce one.
func (b *Backend) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var out generateImageResponse
	if err := b.client.Post(ctx, "/generate_image/", map[string]string{"prompt": prompt}, &out); err != nil {
		logger.Errorf("generate image failed: %v", err)
		return "", err
	}
	return out.ImageURL, nil
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// Summary fetches the conversation summary for the given id.
func (b *Backend) Summary(ctx context.Context, conversationID string) (string, error) {
	var out summaryResponse
	if err := b.client.Get(ctx, "/summary/"+conversationID, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}
