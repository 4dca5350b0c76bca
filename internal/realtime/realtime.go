// internal/realtime/realtime.go
package realtime

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/log"
)

// ConnRecorder receives connection count changes.
type ConnRecorder interface {
	ConnectionsChanged(delta int64)
}

// Config holds realtime configuration
type Config struct {
	// SessionSecret signs session tokens. Empty means a per-process random secret.
	SessionSecret string
	// SessionTTL bounds how long a session token can be used to resume. Zero means no expiry.
	SessionTTL time.Duration
	// RateLimit is the sustained number of inbound frames per second per connection.
	RateLimit float64
	// RateBurst is the number of frames allowed in a burst.
	RateBurst int
	// HistoryPageSize is the default page size for history requests.
	HistoryPageSize int
}

// DefaultConfig returns the default realtime configuration.
func DefaultConfig() Config {
	return Config{
		SessionTTL:      24 * time.Hour,
		RateLimit:       20,
		RateBurst:       40,
		HistoryPageSize: 50,
	}
}

// Service serves the chat engine to WebSocket clients.
type Service struct {
	chat   *chat.Service
	hub    *Hub
	tokens *Tokens
	cfg    Config
	rec    ConnRecorder
	logger *slog.Logger
}

// NewService creates a new realtime service. rec may be nil.
func NewService(svc *chat.Service, cfg Config, rec ConnRecorder) (*Service, error) {
	def := DefaultConfig()
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = def.HistoryPageSize
	}

	tokens, err := NewTokens(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session tokens: %w", err)
	}

	logger := log.Component("realtime")
	if cfg.SessionSecret == "" {
		logger.Warn("no session secret configured, session tokens will not survive a restart")
	}

	return &Service{
		chat:   svc,
		hub:    NewHub(),
		tokens: tokens,
		cfg:    cfg,
		rec:    rec,
		logger: logger,
	}, nil
}

// Hub returns the connection hub
func (s *Service) Hub() *Hub {
	return s.hub
}

// Tokens returns the session token issuer.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// Stats returns realtime statistics
func (s *Service) Stats() HubStats {
	return s.hub.Stats()
}

func (s *Service) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
}

func (s *Service) connectionsChanged(delta int64) {
	if s.rec != nil {
		s.rec.ConnectionsChanged(delta)
	}
}
