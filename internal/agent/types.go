package agent

import "context"

// Conversation performs the send/stream/history-update cycle for one user
// turn. Reply chunks are forwarded to onChunk as they arrive.
type Conversation interface {
	SendMessage(ctx context.Context, text string, onChunk func(chunk string)) (string, error)
}

// Speech is the capture/playback surface the session drives. StartListening
// begins a single-shot capture session (a no-op while one is active or audio
// is playing); Speak blocks until playback of text completes and never fails.
type Speech interface {
	StartListening(ctx context.Context, onResult func(text string), onError func(err error))
	Speak(ctx context.Context, text string)
	IsListening() bool
	IsTalking() bool
}

// State is the session's position in the voice turn cycle.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

// Events carries UI cues out of the session. All callbacks are optional and
// must not block.
type Events struct {
	// OnStateChange fires whenever the turn-cycle state moves.
	OnStateChange func(state State)
	// OnShake fires on a recoverable failure (capture or send error) so the
	// widget can flash its error cue.
	OnShake func()
}
