package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// Sink receives events in order. A Send error means the consumer is gone.
type Sink interface {
	Send(Event) error
}

// SSE writes events as server-sent events, flushing after each one.
type SSE struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSE prepares w for event streaming.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, goerr.New("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSE{w: w, flusher: f}, nil
}

func (s *SSE) Send(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return goerr.Wrap(err, "failed to encode event")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return goerr.Wrap(err, "failed to write event")
	}
	s.flusher.Flush()
	return nil
}

// NDJSON writes one JSON object per line.
type NDJSON struct {
	w   io.Writer
	enc *json.Encoder
}

func NewNDJSON(w io.Writer) *NDJSON {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSON{w: w, enc: enc}
}

func (s *NDJSON) Send(e Event) error {
	if err := s.enc.Encode(e); err != nil {
		return goerr.Wrap(err, "failed to write event")
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Channel forwards events to an in-process consumer such as the console.
type Channel struct {
	ctx  context.Context
	ch   chan Event
	once sync.Once
}

// NewChannel returns a sink whose Send fails once ctx is done.
func NewChannel(ctx context.Context, buffer int) *Channel {
	return &Channel{ctx: ctx, ch: make(chan Event, buffer)}
}

func (c *Channel) Send(e Event) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}
	select {
	case c.ch <- e:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Events is closed by Close.
func (c *Channel) Events() <-chan Event { return c.ch }

// Close must be called by the producer after the stream has finished.
func (c *Channel) Close() { c.once.Do(func() { close(c.ch) }) }

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
