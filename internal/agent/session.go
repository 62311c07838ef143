package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/DarriEy/delta-agent/internal/speech"
	"github.com/DarriEy/delta-agent/pkg/logger"
)

// IntroLine is spoken once, on the first avatar activation.
const IntroLine = "Hi I'm Delta, your personal hydrological research assistant. How should we save the world today?"

const defaultPollInterval = 200 * time.Millisecond

// Session is the turn-taking state machine gluing the conversation manager to
// the speech coordinator. One session serves one widget connection.
//
// The cycle: activation speaks the introduction (first time only) and starts
// listening; a capture result clears any stale queued speech (barge-in) and
// opens the reply stream; streamed chunks are segmented into the speech queue
// while a pump plays them one at a time; once the queue drains and playback
// is quiet the session listens again, hands-free.
type Session struct {
	conv   Conversation
	speech Speech
	queue  *speech.SegmentQueue
	events Events

	// pollInterval paces the queue pump and the drain checks; playback is
	// asynchronous and sequential, so draining must be re-checked, not assumed.
	pollInterval time.Duration

	mu            sync.Mutex
	state         State
	introduced    bool
	processing    bool
	speakingChunk bool
}

// NewSession constructs a Session over the given conversation and speech
// surfaces.
func NewSession(conv Conversation, sp Speech, events Events) *Session {
	return &Session{
		conv:         conv,
		speech:       sp,
		queue:        speech.NewSegmentQueue(),
		events:       events,
		pollInterval: defaultPollInterval,
		state:        StateIdle,
	}
}

// Start launches the speech queue pump. It returns a stop function.
func (s *Session) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	go s.pump(ctx)
	return cancel
}

// Activate handles an avatar activation (click/tap). The first activation
// speaks the introduction before listening. Activations while the session is
// processing, listening or talking are ignored. Blocks while the introduction
// plays; run it from its own goroutine.
func (s *Session) Activate(ctx context.Context) {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if s.speech.IsListening() || s.speech.IsTalking() {
		return
	}

	s.mu.Lock()
	first := !s.introduced
	s.introduced = true
	s.mu.Unlock()

	if first {
		s.setState(StateSpeaking)
		s.speech.Speak(ctx, IntroLine)
	}
	s.listen(ctx)
}

// pump drains the segment queue, playing one segment at a time.
func (s *Session) pump(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				s.setSpeakingChunk(true)
				segment, ok := s.queue.Pop()
				if !ok {
					s.setSpeakingChunk(false)
					break
				}
				s.speech.Speak(ctx, segment)
				s.setSpeakingChunk(false)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

func (s *Session) listen(ctx context.Context) {
	s.setState(StateListening)
	s.speech.StartListening(ctx,
		func(text string) { go s.handleUtterance(ctx, text) },
		func(err error) {
			logger.Warnf("speech capture error: %v", err)
			s.shake()
			s.setState(StateIdle)
		},
	)
}

// handleUtterance runs one full turn for a recognized utterance.
func (s *Session) handleUtterance(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return
	}
	s.processing = true
	s.mu.Unlock()
	s.setState(StateProcessing)

	// Barge-in: nothing further from the previous turn is spoken. A segment
	// already playing is allowed to finish.
	s.queue.Clear()

	_, err := s.conv.SendMessage(ctx, text, s.queue.ProcessChunk)
	if err != nil {
		logger.Errorf("send message failed: %v", err)
		s.setProcessing(false)
		s.shake()
		s.setState(StateIdle)
		return
	}

	// The reply may end without terminal punctuation.
	s.queue.Flush()
	s.setProcessing(false)
	s.setState(StateSpeaking)
	s.awaitDrainThenListen(ctx)
}

// awaitDrainThenListen polls until queued speech has fully played out, then
// resumes capture. This is the hands-free conversational loop.
func (s *Session) awaitDrainThenListen(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.queue.Len() == 0 && !s.isSpeakingChunk() && !s.speech.IsTalking() && !s.speech.IsListening() {
				s.listen(ctx)
				return
			}
		}
	}
}

// State returns the current turn-cycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsProcessing reports whether a user turn is between acceptance and the full
// reply having been enqueued.
func (s *Session) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()
	if changed && s.events.OnStateChange != nil {
		s.events.OnStateChange(next)
	}
}

func (s *Session) setProcessing(on bool) {
	s.mu.Lock()
	s.processing = on
	s.mu.Unlock()
}

func (s *Session) setSpeakingChunk(on bool) {
	s.mu.Lock()
	s.speakingChunk = on
	s.mu.Unlock()
}

func (s *Session) isSpeakingChunk() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speakingChunk
}

func (s *Session) shake() {
	if s.events.OnShake != nil {
		s.events.OnShake()
	}
}
