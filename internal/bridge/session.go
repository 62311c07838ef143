package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/DarriEy/delta-agent/internal/speech"
	"github.com/DarriEy/delta-agent/pkg/logger"
)

// message is the wire frame between the gateway and the widget.
//
// Widget -> gateway types: "activate", "result", "recognition_error",
// "recognition_end", "playback_done", "playback_error".
// Gateway -> widget types: "listen", "play", "state", "shake", "error".
type message struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	Audio string `json:"audio,omitempty"`
	MIME  string `json:"mime,omitempty"`
	State string `json:"state,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Widget is served cross-origin during development; restrict in production.
		return true
	},
}

// Session adapts one widget WebSocket connection into the speech boundary
// interfaces: the browser performs the actual capture and playback, this side
// drives it with listen/play commands and consumes its lifecycle events.
type Session struct {
	ID   string
	conn *websocket.Conn
	mime string

	// OnActivate fires when the user taps the avatar.
	OnActivate func()

	writeMu sync.Mutex

	mu       sync.Mutex
	capture  chan speech.Result
	playback chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// Upgrade turns an HTTP request into a widget bridge session. mime is the
// content type announced with play commands (the backend TTS emits MP3, the
// direct Deepgram path WAV).
func Upgrade(w http.ResponseWriter, r *http.Request, mime string) (*Session, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:     uuid.NewString(),
		conn:   conn,
		mime:   mime,
		closed: make(chan struct{}),
	}, nil
}

// Run reads widget events until the connection drops, then fails any pending
// capture or playback so the session's consumers unblock.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()
	for {
		var m message
		if err := s.conn.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("[%s] ws read ended: %v", s.ID, err)
			}
			return
		}
		switch m.Type {
		case "activate":
			if s.OnActivate != nil {
				go s.OnActivate()
			}
		case "result":
			s.endCapture(&speech.Result{Text: m.Text})
		case "recognition_error":
			s.endCapture(&speech.Result{Err: fmt.Errorf("recognition error: %s", m.Error)})
		case "recognition_end":
			// Session ended without a result (e.g. silence timeout).
			s.endCapture(nil)
		case "playback_done":
			s.endPlayback(nil)
		case "playback_error":
			s.endPlayback(fmt.Errorf("playback error: %s", m.Error))
		default:
			logger.Debugf("[%s] unknown widget message type %q", s.ID, m.Type)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Listen implements speech.Recognizer: it commands the widget to start one
// capture session and returns the channel its outcome arrives on.
func (s *Session) Listen(ctx context.Context) (<-chan speech.Result, error) {
	ch := make(chan speech.Result, 1)
	s.mu.Lock()
	if s.capture != nil {
		s.mu.Unlock()
		return nil, errors.New("capture session already active")
	}
	s.capture = ch
	s.mu.Unlock()

	if err := s.write(message{Type: "listen"}); err != nil {
		s.mu.Lock()
		s.capture = nil
		s.mu.Unlock()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			s.endCapture(nil)
		case <-s.closed:
		}
	}()
	return ch, nil
}

// Play implements speech.Player: it ships base64 audio to the widget and
// blocks until the widget reports playback finished.
func (s *Session) Play(ctx context.Context, audioB64 string) error {
	done := make(chan error, 1)
	s.mu.Lock()
	if s.playback != nil {
		s.mu.Unlock()
		return errors.New("playback already active")
	}
	s.playback = done
	s.mu.Unlock()

	if err := s.write(message{Type: "play", Audio: audioB64, MIME: s.mime}); err != nil {
		s.endPlayback(nil)
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.clearPlayback()
		return ctx.Err()
	case <-s.closed:
		return errors.New("connection closed during playback")
	}
}

// PushState forwards a turn-cycle state change to the widget.
func (s *Session) PushState(state string) {
	if err := s.write(message{Type: "state", State: state}); err != nil {
		logger.Debugf("[%s] state push failed: %v", s.ID, err)
	}
}

// Shake flashes the widget's error cue.
func (s *Session) Shake() {
	if err := s.write(message{Type: "shake"}); err != nil {
		logger.Debugf("[%s] shake push failed: %v", s.ID, err)
	}
}

func (s *Session) write(m message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(m)
}

// endCapture finishes the active capture session, delivering result when one
// was produced. The channel closes exactly once per session.
func (s *Session) endCapture(result *speech.Result) {
	s.mu.Lock()
	ch := s.capture
	s.capture = nil
	s.mu.Unlock()
	if ch == nil {
		return
	}
	if result != nil {
		ch <- *result
	}
	close(ch)
}

func (s *Session) endPlayback(err error) {
	s.mu.Lock()
	ch := s.playback
	s.playback = nil
	s.mu.Unlock()
	if ch != nil {
		ch <- err
	}
}

func (s *Session) clearPlayback() {
	s.mu.Lock()
	s.playback = nil
	s.mu.Unlock()
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.endCapture(nil)
		s.endPlayback(errors.New("connection closed"))
		_ = s.conn.Close()
	})
}
