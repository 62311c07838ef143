package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const dataPrefix = "data: "

// Stream POSTs body to path and reads the response as server-sent-event frames
// ("data: <payload>" lines separated by blank lines). Each decoded payload is
// appended to the returned result and passed to onChunk as it arrives.
//
// Only the initial connection is retried; once the stream has started
// delivering data, a read failure propagates up so that already-forwarded
// output is never replayed.
func (c *Client) Stream(ctx context.Context, path string, body interface{}, onChunk func(chunk string)) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newAPIError(resp)
	}

	var result strings.Builder
	emit := func(payload string) {
		content := decodePayload(payload)
		result.WriteString(content)
		if onChunk != nil {
			onChunk(content)
		}
	}

	var pending []byte
	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			for {
				idx := bytes.Index(pending, []byte("\n\n"))
				if idx < 0 {
					break
				}
				frame := pending[:idx]
				pending = pending[idx+2:]
				for _, line := range strings.Split(string(frame), "\n") {
					if strings.HasPrefix(line, dataPrefix) {
						emit(line[len(dataPrefix):])
					}
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return result.String(), rerr
		}
	}

	// A final frame may arrive without its terminating blank line.
	if tail := string(pending); strings.HasPrefix(tail, dataPrefix) {
		emit(strings.TrimRight(tail[len(dataPrefix):], "\n"))
	}

	return result.String(), nil
}

// decodePayload treats the payload as a JSON-encoded string, falling back to
// the raw text for malformed frames.
func decodePayload(payload string) string {
	var content string
	if err := json.Unmarshal([]byte(payload), &content); err == nil {
		return content
	}
	return payload
}
