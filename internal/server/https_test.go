// internal/server/https_test.go
package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		domain  string
		wantErr string
	}{
		{"chat.example.com", ""},
		{"my-chat.example.com", ""},
		{"", "domain required"},
		{"localhost", "public domain"},
		{"LOCALHOST", "public domain"},
		{"127.0.0.1", "not an IP"},
		{"::1", "not an IP"},
		{"[2001:db8::1]", "not an IP"},
		{"example..com", "invalid domain"},
		{".example.com", "invalid domain"},
		{"example.com.", "invalid domain"},
		{"-example.com", "invalid domain"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateDomain(%q) unexpected error: %v", tt.domain, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateDomain(%q) error = %v, want containing %q", tt.domain, err, tt.wantErr)
			}
		})
	}
}

func TestHTTPRedirectHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/rooms?x=1", nil)
	w := httptest.NewRecorder()
	HTTPRedirectHandler("chat.example.com").ServeHTTP(w, req)

	if w.Code != http.StatusMovedPermanently {
		t.Errorf("expected 301, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://chat.example.com/api/v1/rooms?x=1" {
		t.Errorf("unexpected location %q", loc)
	}
}

func TestNewTLSConfig(t *testing.T) {
	cfg := NewTLSConfig(NewAutocertManager("chat.example.com", t.TempDir()))
	if cfg.GetCertificate == nil {
		t.Error("GetCertificate should come from the autocert manager")
	}
}
