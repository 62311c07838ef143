package speech

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRecognizer struct {
	sessions int32
	results  chan Result
	startErr error
}

func (f *fakeRecognizer) Listen(ctx context.Context) (<-chan Result, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	atomic.AddInt32(&f.sessions, 1)
	return f.results, nil
}

type fakeSynthesizer struct {
	audio string
	err   error
	calls int32
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.audio, f.err
}

type fakePlayer struct {
	err     error
	delay   time.Duration
	playing int32
	overlap int32
}

func (f *fakePlayer) Play(ctx context.Context, audioB64 string) error {
	if atomic.AddInt32(&f.playing, 1) > 1 {
		atomic.AddInt32(&f.overlap, 1)
	}
	defer atomic.AddInt32(&f.playing, -1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.err
}

func TestSpeak_SkipsEmptyInput(t *testing.T) {
	synth := &fakeSynthesizer{audio: "aGk="}
	c := NewCoordinator(nil, synth, &fakePlayer{})
	c.Speak(context.Background(), "   ")
	if atomic.LoadInt32(&synth.calls) != 0 {
		t.Fatalf("expected no synthesis call for whitespace input")
	}
}

func TestSpeak_ResetsTalkingOnEveryExitPath(t *testing.T) {
	cases := []struct {
		name  string
		synth *fakeSynthesizer
		play  *fakePlayer
	}{
		{"success", &fakeSynthesizer{audio: "aGk="}, &fakePlayer{}},
		{"synthesis_error", &fakeSynthesizer{err: errors.New("tts down")}, &fakePlayer{}},
		{"empty_audio", &fakeSynthesizer{audio: ""}, &fakePlayer{}},
		{"playback_error", &fakeSynthesizer{audio: "aGk="}, &fakePlayer{err: errors.New("autoplay blocked")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCoordinator(nil, tc.synth, tc.play)
			// Speak never panics or returns an error; it must always resolve.
			c.Speak(context.Background(), "hello")
			if c.IsTalking() {
				t.Fatalf("talking flag not reset")
			}
		})
	}
}

func TestSpeak_SetsTalkingDuringPlayback(t *testing.T) {
	synth := &fakeSynthesizer{audio: "aGk="}
	player := &fakePlayer{delay: 50 * time.Millisecond}
	c := NewCoordinator(nil, synth, player)

	done := make(chan struct{})
	go func() {
		c.Speak(context.Background(), "hello")
		close(done)
	}()

	deadline := time.Now().Add(300 * time.Millisecond)
	for !c.IsTalking() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !c.IsTalking() {
		t.Fatalf("expected talking flag during playback")
	}
	<-done
	if c.IsTalking() {
		t.Fatalf("expected talking flag cleared after playback")
	}
}

func TestStartListening_SingleSessionInvariant(t *testing.T) {
	rec := &fakeRecognizer{results: make(chan Result)}
	c := NewCoordinator(rec, &fakeSynthesizer{}, &fakePlayer{})

	c.StartListening(context.Background(), nil, nil)
	c.StartListening(context.Background(), nil, nil) // second call is a no-op

	if got := atomic.LoadInt32(&rec.sessions); got != 1 {
		t.Fatalf("expected 1 capture session, got %d", got)
	}
	if !c.IsListening() {
		t.Fatalf("expected listening flag set")
	}
	close(rec.results)
	deadline := time.Now().Add(300 * time.Millisecond)
	for c.IsListening() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.IsListening() {
		t.Fatalf("expected listening flag reset after session end")
	}
}

func TestStartListening_NoCaptureWhileTalking(t *testing.T) {
	rec := &fakeRecognizer{results: make(chan Result)}
	synth := &fakeSynthesizer{audio: "aGk="}
	player := &fakePlayer{delay: 60 * time.Millisecond}
	c := NewCoordinator(rec, synth, player)

	go c.Speak(context.Background(), "talking now")
	deadline := time.Now().Add(300 * time.Millisecond)
	for !c.IsTalking() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	c.StartListening(context.Background(), nil, nil)
	if got := atomic.LoadInt32(&rec.sessions); got != 0 {
		t.Fatalf("capture started while talking")
	}
}

func TestStartListening_ErrorsSurfaceWithoutResult(t *testing.T) {
	rec := &fakeRecognizer{results: make(chan Result, 1)}
	c := NewCoordinator(rec, &fakeSynthesizer{}, &fakePlayer{})

	var gotErr atomic.Value
	var results int32
	c.StartListening(context.Background(),
		func(string) { atomic.AddInt32(&results, 1) },
		func(err error) { gotErr.Store(err) },
	)
	rec.results <- Result{Err: errors.New("no-speech")}
	close(rec.results)

	deadline := time.Now().Add(300 * time.Millisecond)
	for c.IsListening() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if gotErr.Load() == nil {
		t.Fatalf("expected capture error surfaced")
	}
	if atomic.LoadInt32(&results) != 0 {
		t.Fatalf("expected no result on error-only session")
	}
}

func TestStartListening_UnavailableRecognizer(t *testing.T) {
	c := NewCoordinator(nil, &fakeSynthesizer{}, &fakePlayer{})
	var gotErr error
	c.StartListening(context.Background(), nil, func(err error) { gotErr = err })
	if !errors.Is(gotErr, ErrRecognizerUnavailable) {
		t.Fatalf("expected ErrRecognizerUnavailable, got %v", gotErr)
	}
	if c.IsListening() {
		t.Fatalf("listening flag must stay false when recognizer unavailable")
	}
}
