// cmd/config.go
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/log"
	"github.com/urza/Yap/internal/observability"
	"github.com/urza/Yap/internal/realtime"
	"github.com/urza/Yap/internal/server"
)

// serveConfig is everything `yap serve` needs, resolved from
// CLI flags > environment variables > config file > defaults.
type serveConfig struct {
	DBPath         string
	Host           string
	Port           int
	AllowedOrigins []string
	HTTPS          server.HTTPSConfig
	// SearchTokenizer is the FTS5 tokenizer for message search. "off" disables search.
	SearchTokenizer string
	// DebugToken unlocks the debug endpoints. Empty leaves them unrouted.
	DebugToken string

	Chat      chat.Config
	Realtime  realtime.Config
	Log       *log.Config
	Telemetry *observability.Config
}

// fileConfig is the YAML layout accepted by --config.
type fileConfig struct {
	Server struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		DB             string   `yaml:"db"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		DebugToken     string   `yaml:"debug_token"`
		HTTPS          struct {
			Domain   string `yaml:"domain"`
			CertDir  string `yaml:"cert_dir"`
			HTTPAddr string `yaml:"http_addr"`
		} `yaml:"https"`
	} `yaml:"server"`
	Chat struct {
		MaxMessages         int           `yaml:"max_messages"`
		TypingWindow        time.Duration `yaml:"typing_window"`
		TypingSweepInterval time.Duration `yaml:"typing_sweep_interval"`
		DMPolicy            string        `yaml:"dm_policy"`
		DefaultRoom         string        `yaml:"default_room"`
		MirrorQueueSize     int           `yaml:"mirror_queue_size"`
	} `yaml:"chat"`
	Realtime struct {
		SessionTTL      time.Duration `yaml:"session_ttl"`
		RateLimit       float64       `yaml:"rate_limit"`
		RateBurst       int           `yaml:"rate_burst"`
		HistoryPageSize int           `yaml:"history_page_size"`
	} `yaml:"realtime"`
	Search struct {
		Tokenizer string `yaml:"tokenizer"`
	} `yaml:"search"`
	Logging struct {
		Level       string `yaml:"level"`
		Format      string `yaml:"format"`
		Output      string `yaml:"output"`
		BufferLines *int   `yaml:"buffer_lines"`
	} `yaml:"logging"`
	Metrics struct {
		Exporter   string   `yaml:"exporter"`
		Endpoint   string   `yaml:"endpoint"`
		SampleRate *float64 `yaml:"sample_rate"`
		Traces     *bool    `yaml:"traces"`
	} `yaml:"metrics"`
}

func defaultServeConfig() *serveConfig {
	return &serveConfig{
		DBPath:          "yap.db",
		Host:            "0.0.0.0",
		Port:            8080,
		SearchTokenizer: "unicode61",
		HTTPS: server.HTTPSConfig{
			CertDir:  "certs",
			HTTPAddr: ":80",
		},
		Chat:      chat.DefaultConfig(),
		Realtime:  realtime.DefaultConfig(),
		Log:       log.DefaultConfig(),
		Telemetry: observability.NewConfig(),
	}
}

// loadFileConfig reads a YAML config file.
func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func (cfg *serveConfig) applyFile(fc *fileConfig) error {
	setString(&cfg.Host, fc.Server.Host)
	setInt(&cfg.Port, fc.Server.Port)
	setString(&cfg.DBPath, fc.Server.DB)
	if len(fc.Server.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.Server.AllowedOrigins
	}
	setString(&cfg.DebugToken, fc.Server.DebugToken)
	setString(&cfg.HTTPS.Domain, fc.Server.HTTPS.Domain)
	setString(&cfg.HTTPS.CertDir, fc.Server.HTTPS.CertDir)
	setString(&cfg.HTTPS.HTTPAddr, fc.Server.HTTPS.HTTPAddr)

	setInt(&cfg.Chat.MaxMessagesPerChannel, fc.Chat.MaxMessages)
	setDuration(&cfg.Chat.TypingWindow, fc.Chat.TypingWindow)
	setDuration(&cfg.Chat.TypingSweepInterval, fc.Chat.TypingSweepInterval)
	setString(&cfg.Chat.DefaultRoom, fc.Chat.DefaultRoom)
	setInt(&cfg.Chat.MirrorQueueSize, fc.Chat.MirrorQueueSize)
	if fc.Chat.DMPolicy != "" {
		policy, err := chat.ParseDMPolicy(fc.Chat.DMPolicy)
		if err != nil {
			return err
		}
		cfg.Chat.DMPolicy = policy
	}

	setDuration(&cfg.Realtime.SessionTTL, fc.Realtime.SessionTTL)
	if fc.Realtime.RateLimit > 0 {
		cfg.Realtime.RateLimit = fc.Realtime.RateLimit
	}
	setInt(&cfg.Realtime.RateBurst, fc.Realtime.RateBurst)
	setInt(&cfg.Realtime.HistoryPageSize, fc.Realtime.HistoryPageSize)
	setString(&cfg.SearchTokenizer, fc.Search.Tokenizer)

	setString(&cfg.Log.Level, fc.Logging.Level)
	setString(&cfg.Log.Format, fc.Logging.Format)
	setString(&cfg.Log.Output, fc.Logging.Output)
	if fc.Logging.BufferLines != nil {
		cfg.Log.BufferLines = *fc.Logging.BufferLines
	}

	setString(&cfg.Telemetry.Exporter, fc.Metrics.Exporter)
	setString(&cfg.Telemetry.Endpoint, fc.Metrics.Endpoint)
	if fc.Metrics.SampleRate != nil {
		cfg.Telemetry.SampleRate = *fc.Metrics.SampleRate
	}
	if fc.Metrics.Traces != nil {
		cfg.Telemetry.TracesEnabled = *fc.Metrics.Traces
	}
	return nil
}

func (cfg *serveConfig) applyEnv() error {
	setString(&cfg.DBPath, os.Getenv("YAP_DB"))
	setString(&cfg.Host, os.Getenv("YAP_HOST"))
	if v := os.Getenv("YAP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid YAP_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("YAP_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	setString(&cfg.HTTPS.Domain, os.Getenv("YAP_HTTPS_DOMAIN"))
	setString(&cfg.DebugToken, os.Getenv("YAP_DEBUG_TOKEN"))

	if v := os.Getenv("YAP_MAX_MESSAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid YAP_MAX_MESSAGES %q: %w", v, err)
		}
		cfg.Chat.MaxMessagesPerChannel = n
	}
	if v := os.Getenv("YAP_TYPING_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid YAP_TYPING_WINDOW %q: %w", v, err)
		}
		cfg.Chat.TypingWindow = d
	}
	if v := os.Getenv("YAP_DM_POLICY"); v != "" {
		policy, err := chat.ParseDMPolicy(v)
		if err != nil {
			return err
		}
		cfg.Chat.DMPolicy = policy
	}
	setString(&cfg.Chat.DefaultRoom, os.Getenv("YAP_DEFAULT_ROOM"))

	setString(&cfg.Realtime.SessionSecret, os.Getenv("YAP_SESSION_SECRET"))
	setString(&cfg.SearchTokenizer, os.Getenv("YAP_SEARCH_TOKENIZER"))

	setString(&cfg.Log.Level, os.Getenv("YAP_LOG_LEVEL"))
	setString(&cfg.Log.Format, os.Getenv("YAP_LOG_FORMAT"))

	setString(&cfg.Telemetry.Exporter, os.Getenv("YAP_METRICS"))
	setString(&cfg.Telemetry.Endpoint, os.Getenv("YAP_OTLP_ENDPOINT"))
	if v := os.Getenv("YAP_TRACES"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid YAP_TRACES %q: %w", v, err)
		}
		cfg.Telemetry.TracesEnabled = enabled
	}
	return nil
}

// applyFlags copies flags the user set explicitly.
func (cfg *serveConfig) applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("https") {
		cfg.HTTPS.Domain, _ = flags.GetString("https")
	}
	if flags.Changed("max-messages") {
		cfg.Chat.MaxMessagesPerChannel, _ = flags.GetInt("max-messages")
	}
	if flags.Changed("typing-window") {
		cfg.Chat.TypingWindow, _ = flags.GetDuration("typing-window")
	}
	if flags.Changed("dm-policy") {
		v, _ := flags.GetString("dm-policy")
		policy, err := chat.ParseDMPolicy(v)
		if err != nil {
			return err
		}
		cfg.Chat.DMPolicy = policy
	}
	if flags.Changed("default-room") {
		cfg.Chat.DefaultRoom, _ = flags.GetString("default-room")
	}
	if flags.Changed("debug-token") {
		cfg.DebugToken, _ = flags.GetString("debug-token")
	}
	if flags.Changed("search-tokenizer") {
		cfg.SearchTokenizer, _ = flags.GetString("search-tokenizer")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("metrics") {
		cfg.Telemetry.Exporter, _ = flags.GetString("metrics")
	}
	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.Endpoint, _ = flags.GetString("otlp-endpoint")
	}
	if flags.Changed("traces") {
		cfg.Telemetry.TracesEnabled, _ = flags.GetBool("traces")
	}
	return nil
}

// buildServeConfig resolves the serve configuration.
// Priority: CLI flags > environment variables > config file > defaults
func buildServeConfig(cmd *cobra.Command) (*serveConfig, error) {
	cfg := defaultServeConfig()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("YAP_CONFIG")
	}
	if path != "" {
		fc, err := loadFileConfig(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyFile(fc); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyFlags(cmd); err != nil {
		return nil, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	cfg.HTTPS.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
