package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStream_DecodesFramesInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: \"Hello \"\n\n")
		fmt.Fprint(w, "data: \"world.\"\n\n")
	}))
	defer srv.Close()

	c := newTestClient(srv)
	var chunks []string
	result, err := c.Stream(context.Background(), "/process_stream", map[string]string{"user_input": "hi"}, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if result != "Hello world." {
		t.Fatalf("expected assembled reply, got %q", result)
	}
	if len(chunks) != 2 || chunks[0] != "Hello " || chunks[1] != "world." {
		t.Fatalf("expected ordered chunks, got %v", chunks)
	}
}

func TestStream_BuffersPartialFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatalf("response writer is not a flusher")
		}
		// Split one frame across two network writes.
		fmt.Fprint(w, "data: \"Hel")
		f.Flush()
		time.Sleep(10 * time.Millisecond)
		fmt.Fprint(w, "lo\"\n\ndata: \"!\"\n\n")
		f.Flush()
	}))
	defer srv.Close()

	c := newTestClient(srv)
	result, err := c.Stream(context.Background(), "/process_stream", nil, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if result != "Hello!" {
		t.Fatalf("expected reassembled frames, got %q", result)
	}
}

func TestStream_MalformedPayloadFallsBackToRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: not-json-{\n\n")
	}))
	defer srv.Close()

	c := newTestClient(srv)
	result, err := c.Stream(context.Background(), "/process_stream", nil, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if result != "not-json-{" {
		t.Fatalf("expected raw payload, got %q", result)
	}
}

func TestStream_FlushesUnterminatedTail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: \"one. \"\n\ndata: \"two\"")
	}))
	defer srv.Close()

	c := newTestClient(srv)
	result, err := c.Stream(context.Background(), "/process_stream", nil, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if result != "one. two" {
		t.Fatalf("expected tail frame included, got %q", result)
	}
}

func TestStream_ErrorStatusBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bad input"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Stream(context.Background(), "/process_stream", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", apiErr.Status)
	}
}

func TestStream_RetriesInitialConnectionOnly(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "data: \"ok\"\n\n")
	}))
	defer srv.Close()

	c := newTestClient(srv)
	result, err := c.Stream(context.Background(), "/process_stream", nil, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected reply after connection retry, got %q", result)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 connection attempts, got %d", got)
	}
}

func TestStream_MidStreamFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		f := w.(http.Flusher)
		fmt.Fprint(w, "data: \"partial\"\n\n")
		f.Flush()
		// Kill the connection mid-stream.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatalf("response writer is not a hijacker")
		}
		conn, _, _ := hj.Hijack()
		_ = conn.Close()
	}))
	defer srv.Close()

	c := newTestClient(srv)
	var delivered []string
	result, err := c.Stream(context.Background(), "/process_stream", nil, func(chunk string) {
		delivered = append(delivered, chunk)
	})
	if err == nil {
		t.Fatalf("expected mid-stream error to propagate")
	}
	if result != "partial" {
		t.Fatalf("expected delivered prefix preserved, got %q", result)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected already-delivered chunk to not replay, got %v", delivered)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected no reconnect after mid-stream failure, got %d attempts", got)
	}
}
