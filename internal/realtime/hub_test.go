// internal/realtime/hub_test.go
package realtime

import (
	"testing"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.connections == nil || hub.sessions == nil {
		t.Fatal("maps should be initialized")
	}
	if stats := hub.Stats(); stats.Connections != 0 || stats.Sessions != 0 {
		t.Errorf("expected empty hub, got %+v", stats)
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := &Conn{id: "c1", sessionID: "s1"}

	if prev := hub.registerConn(c); prev != nil {
		t.Error("first connection should have no predecessor")
	}
	if hub.ownerOf("s1") != c {
		t.Error("connection should own its session")
	}
	if stats := hub.Stats(); stats.Connections != 1 || stats.Sessions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if !hub.unregisterConn(c) {
		t.Error("owner should report ownership on unregister")
	}
	if stats := hub.Stats(); stats.Connections != 0 || stats.Sessions != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHubTakeover(t *testing.T) {
	hub := NewHub()
	old := &Conn{id: "c1", sessionID: "s1"}
	next := &Conn{id: "c2", sessionID: "s1"}

	hub.registerConn(old)
	if prev := hub.registerConn(next); prev != old {
		t.Error("takeover should return the previous owner")
	}
	if hub.unregisterConn(old) {
		t.Error("replaced connection should not own the session")
	}
	if hub.ownerOf("s1") != next {
		t.Error("new connection should keep the session")
	}
	if stats := hub.Stats(); stats.Connections != 1 || stats.Sessions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHubRegisterTwice(t *testing.T) {
	hub := NewHub()
	c := &Conn{id: "c1", sessionID: "s1"}
	hub.registerConn(c)
	if prev := hub.registerConn(c); prev != nil {
		t.Error("re-registering should not report itself as predecessor")
	}
}
