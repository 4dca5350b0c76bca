package log

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestBufferHandler_StoresLines(t *testing.T) {
	buf := NewRingBuffer(10)
	logger := slog.New(NewBufferHandler(nil, buf))
	logger.Info("test message", "key", "value")

	lines := buf.Lines(10)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0] == "" {
		t.Error("expected non-empty line")
	}
}

func TestBufferHandler_KeepsAttrs(t *testing.T) {
	buf := NewRingBuffer(10)
	logger := slog.New(NewBufferHandler(nil, buf)).With("component", "chat")
	logger.Info("hello")

	lines := buf.Lines(1)
	if len(lines) != 1 || !bytes.Contains([]byte(lines[0]), []byte("component=chat")) {
		t.Errorf("expected component attr in buffered line, got %q", lines)
	}
}

func TestRingBuffer_Capacity(t *testing.T) {
	buf := NewRingBuffer(3)

	buf.Add("line1")
	buf.Add("line2")
	buf.Add("line3")
	buf.Add("line4") // evicts line1

	lines := buf.Lines(10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "line2" {
		t.Errorf("expected oldest line to be 'line2', got %q", lines[0])
	}
	if lines[2] != "line4" {
		t.Errorf("expected newest line to be 'line4', got %q", lines[2])
	}
}

func TestRingBuffer_LinesLimit(t *testing.T) {
	buf := NewRingBuffer(10)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		buf.Add(l)
	}

	lines := buf.Lines(3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "c" || lines[2] != "e" {
		t.Errorf("expected [c d e], got %v", lines)
	}
}

func TestRingBuffer_Len(t *testing.T) {
	buf := NewRingBuffer(3)
	buf.Add("line1")
	buf.Add("line2")

	if buf.Len() != 2 {
		t.Errorf("expected len 2, got %d", buf.Len())
	}
	if buf.Capacity() != 3 {
		t.Errorf("expected capacity 3, got %d", buf.Capacity())
	}
}

func TestBufferHandler_ForwardsToWrapped(t *testing.T) {
	buf := NewRingBuffer(10)
	var output bytes.Buffer
	logger := slog.New(NewBufferHandler(slog.NewTextHandler(&output, nil), buf))
	logger.Info("forwarded message")

	if len(buf.Lines(10)) != 1 {
		t.Fatalf("expected 1 line in buffer")
	}
	if output.Len() == 0 {
		t.Error("expected wrapped handler to receive log")
	}
}

func TestRingBuffer_Empty(t *testing.T) {
	buf := NewRingBuffer(10)
	if lines := buf.Lines(10); len(lines) != 0 {
		t.Fatalf("expected 0 lines from empty buffer, got %d", len(lines))
	}
}

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	if c := NewRingBuffer(0).Capacity(); c != 500 {
		t.Errorf("expected default capacity 500, got %d", c)
	}
	if c := NewRingBuffer(-1).Capacity(); c != 500 {
		t.Errorf("expected default capacity 500, got %d", c)
	}
}
