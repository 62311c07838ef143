package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/DarriEy/delta-agent/pkg/logger"
)

// ErrRecognizerUnavailable is reported when no capture device is wired.
var ErrRecognizerUnavailable = errors.New("speech recognition unavailable")

// Result is one outcome of a capture session.
type Result struct {
	Text string
	Err  error
}

// Recognizer is a single-shot voice capture source. Listen begins one capture
// session and returns a channel yielding at most one result; the channel is
// closed when the session ends, whether or not a result was produced.
type Recognizer interface {
	Listen(ctx context.Context) (<-chan Result, error)
}

// Synthesizer converts text into base64-encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Player delivers base64-encoded audio and blocks until playback finishes.
type Player interface {
	Play(ctx context.Context, audioB64 string) error
}

// Coordinator bridges capture and playback and enforces their mutual
// exclusion: capture never runs while the avatar is talking (self-capture
// feedback), and at most one capture session and one playback are active.
type Coordinator struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	player      Player

	mu        sync.Mutex
	listening bool
	talking   bool
}

func NewCoordinator(r Recognizer, s Synthesizer, p Player) *Coordinator {
	return &Coordinator{recognizer: r, synthesizer: s, player: p}
}

// StartListening begins a single-shot capture session. A call while a session
// is already active, or while the avatar is talking, is a no-op. onResult is
// invoked at most once with the recognized utterance; onError receives capture
// failures. The listening flag resets exactly once when the session ends.
func (c *Coordinator) StartListening(ctx context.Context, onResult func(text string), onError func(err error)) {
	c.mu.Lock()
	if c.listening || c.talking {
		c.mu.Unlock()
		return
	}
	if c.recognizer == nil {
		c.mu.Unlock()
		if onError != nil {
			onError(ErrRecognizerUnavailable)
		}
		return
	}
	results, err := c.recognizer.Listen(ctx)
	if err != nil {
		c.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return
	}
	c.listening = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.listening = false
			c.mu.Unlock()
		}()
		for r := range results {
			if r.Err != nil {
				logger.Warnf("speech recognition error: %v", r.Err)
				if onError != nil {
					onError(r.Err)
				}
				continue
			}
			if r.Text != "" && onResult != nil {
				onResult(r.Text)
			}
		}
	}()
}

// Speak synthesizes text and plays it to completion. It returns only after
// playback ends and never surfaces an error: synthesis and playback failures
// are logged and swallowed so a single bad segment cannot stall the queue.
// Empty or whitespace-only input resolves immediately without a network call.
func (c *Coordinator) Speak(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	c.talking = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.talking = false
		c.mu.Unlock()
	}()

	audio, err := c.synthesizer.Synthesize(ctx, text)
	if err != nil {
		logger.Errorf("speech synthesis error: %v", err)
		return
	}
	if audio == "" {
		return
	}
	if err := c.player.Play(ctx, audio); err != nil {
		logger.Errorf("audio playback error: %v", err)
	}
}

// IsListening reports whether a capture session is active.
func (c *Coordinator) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// IsTalking reports whether audio playback is in progress.
func (c *Coordinator) IsTalking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.talking
}
