package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSE writes events to an HTTP response as "data: <json>\n\n" frames and
// flushes after each one.
type SSE struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSE sends the event-stream headers. The request context is checked
// before every write so a disconnected client stops the stream.
func NewSSE(w http.ResponseWriter, r *http.Request) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSE{ctx: r.Context(), w: w, flusher: flusher}, nil
}

func (s *SSE) Emit(ev Event) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Raw is an event read back from a stream, payload undecoded.
type Raw struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Read parses an event stream and calls fn for every data frame. It stops
// at EOF or at the first error from fn.
func Read(r io.Reader, fn func(Raw) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var ev Raw
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return sc.Err()
}
