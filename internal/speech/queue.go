package speech

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// sentence terminators recognized by the segmenter, Latin and CJK.
const sentenceEndings = ".!?。？！"

// SegmentQueue converts a stream of arbitrarily-sized text fragments into an
// ordered FIFO of speakable sentences. Fragments accumulate in a carry-over
// buffer; every time the buffer contains a terminator, the prefix up to and
// including it is emitted as one segment. Flush drains whatever remains after
// the stream ends so an unterminated trailing sentence is not lost.
type SegmentQueue struct {
	mu       sync.Mutex
	buffer   strings.Builder
	segments []string
}

func NewSegmentQueue() *SegmentQueue {
	return &SegmentQueue{}
}

// ProcessChunk appends the fragment to the buffer and enqueues every complete
// sentence it now holds, in order.
func (q *SegmentQueue) ProcessChunk(fragment string) {
	if fragment == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.buffer.WriteString(fragment)
	text := q.buffer.String()
	for {
		idx := strings.IndexAny(text, sentenceEndings)
		if idx < 0 {
			break
		}
		// The terminator may be multi-byte; include it whole.
		_, size := utf8.DecodeRuneInString(text[idx:])
		end := idx + size
		if segment := strings.TrimSpace(text[:end]); segment != "" {
			q.segments = append(q.segments, segment)
		}
		text = text[end:]
	}
	q.buffer.Reset()
	q.buffer.WriteString(text)
}

// Flush enqueues any non-empty remaining buffer as a final segment. Call once
// after the reply stream ends.
func (q *SegmentQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if segment := strings.TrimSpace(q.buffer.String()); segment != "" {
		q.segments = append(q.segments, segment)
	}
	q.buffer.Reset()
}

// Clear discards the buffer and all queued segments. Used on barge-in.
func (q *SegmentQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.segments = nil
	q.buffer.Reset()
}

// Pop removes and returns the oldest pending segment.
func (q *SegmentQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.segments) == 0 {
		return "", false
	}
	segment := q.segments[0]
	q.segments = q.segments[1:]
	return segment, true
}

// Len reports the number of pending segments.
func (q *SegmentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.segments)
}
