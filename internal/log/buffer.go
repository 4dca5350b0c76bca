package log

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

const defaultBufferLines = 500

// RingBuffer keeps the most recent formatted log lines.
type RingBuffer struct {
	mu    sync.RWMutex
	lines []string
	next  int // slot the next line is written to
	count int
}

// NewRingBuffer creates a ring buffer holding up to capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultBufferLines
	}
	return &RingBuffer{lines: make([]string, capacity)}
}

// Add stores line, overwriting the oldest entry when full.
func (rb *RingBuffer) Add(line string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.lines[rb.next] = line
	rb.next = (rb.next + 1) % len(rb.lines)
	if rb.count < len(rb.lines) {
		rb.count++
	}
}

// Lines returns up to the last n lines, oldest first.
func (rb *RingBuffer) Lines(n int) []string {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return []string{}
	}

	out := make([]string, n)
	first := rb.next - n
	if first < 0 {
		first += len(rb.lines)
	}
	for i := range out {
		out[i] = rb.lines[(first+i)%len(rb.lines)]
	}
	return out
}

// Len returns the number of buffered lines.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Capacity returns the maximum number of buffered lines.
func (rb *RingBuffer) Capacity() int {
	return len(rb.lines)
}

// BufferHandler copies every record into a RingBuffer before forwarding it.
type BufferHandler struct {
	next   slog.Handler
	buffer *RingBuffer
	attrs  []slog.Attr
}

// NewBufferHandler wraps next; next may be nil.
func NewBufferHandler(next slog.Handler, buffer *RingBuffer) *BufferHandler {
	return &BufferHandler{next: next, buffer: buffer}
}

// Enabled always reports true so debug records still reach the buffer.
func (h *BufferHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle buffers r as a text line and forwards it if next accepts the level.
func (h *BufferHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer
	var text slog.Handler = slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	if len(h.attrs) > 0 {
		text = text.WithAttrs(h.attrs)
	}
	if err := text.Handle(ctx, r); err == nil {
		h.buffer.Add(buf.String())
	}

	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs returns a handler carrying attrs on both paths.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := &BufferHandler{
		buffer: h.buffer,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return clone
}

// WithGroup returns a handler with the given group on the forwarded path.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	clone := &BufferHandler{buffer: h.buffer, attrs: h.attrs}
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return clone
}
