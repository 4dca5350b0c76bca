// internal/realtime/helpers_test.go
package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/urza/Yap/internal/chat"
)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	engine := chat.New(chat.DefaultConfig())
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "test-secret"
	}
	svc, err := NewService(engine, cfg, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

// newTestConn returns a connection without a socket, registered with the hub.
func newTestConn(t *testing.T, svc *Service, sessionID string) *Conn {
	t.Helper()
	c := svc.newConn(nil, sessionID)
	svc.adopt(c)
	t.Cleanup(c.Close)
	return c
}

// request handles one frame and returns the reply to it.
func request(t *testing.T, c *Conn, event string, payload any) ReplyPayload {
	t.Helper()
	f, err := NewFrame(event, "r1", payload)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	c.handleFrame(f)
	return nextReply(t, c)
}

// nextReply drains queued frames until a reply arrives.
func nextReply(t *testing.T, c *Conn) ReplyPayload {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case data := <-c.send:
			f, err := DecodeFrame(data)
			if err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			if f.Event != EventReply {
				continue
			}
			var p ReplyPayload
			if err := f.Decode(&p); err != nil {
				t.Fatalf("bad reply: %v", err)
			}
			return p
		case <-deadline:
			t.Fatal("no reply")
			return ReplyPayload{}
		}
	}
}

func expectOK(t *testing.T, p ReplyPayload) {
	t.Helper()
	if p.Status != "ok" {
		t.Fatalf("expected ok, got %s %s: %s", p.Status, p.Code, p.Message)
	}
}

func expectCode(t *testing.T, p ReplyPayload, code string) {
	t.Helper()
	if p.Status != "error" || p.Code != code {
		t.Fatalf("expected error %s, got %s %s: %s", code, p.Status, p.Code, p.Message)
	}
}

func joinAs(t *testing.T, c *Conn, username string) {
	t.Helper()
	expectOK(t, request(t, c, EventJoin, JoinPayload{Username: username}))
}

func lobbyID(t *testing.T, svc *Service) string {
	t.Helper()
	def, ok := svc.chat.Directory().Default()
	if !ok {
		t.Fatal("no default room")
	}
	return def.ID
}

// decodeResponse converts a reply's response into v.
func decodeResponse(t *testing.T, p ReplyPayload, v any) {
	t.Helper()
	data, err := json.Marshal(p.Response)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
}
