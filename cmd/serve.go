// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/db"
	"github.com/urza/Yap/internal/fts"
	"github.com/urza/Yap/internal/log"
	"github.com/urza/Yap/internal/observability"
	"github.com/urza/Yap/internal/realtime"
	"github.com/urza/Yap/internal/server"
	"github.com/urza/Yap/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	Long:  `Starts the HTTP server with the WebSocket chat endpoint and the read-only REST API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildServeConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

// runServe wires storage, the chat engine and the HTTP host, and blocks
// until ctx is cancelled or the listener fails.
func runServe(ctx context.Context, cfg *serveConfig) error {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	tel, cleanup, err := observability.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	// Run migrations in case schema is outdated
	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var search *fts.Index
	if cfg.SearchTokenizer != "off" {
		search, err = fts.New(database, cfg.SearchTokenizer)
		if err != nil {
			return err
		}
		if err := search.Ensure(ctx); err != nil {
			return fmt.Errorf("failed to prepare search index: %w", err)
		}
	}

	engine := chat.New(cfg.Chat,
		chat.WithGateway(store.New(database)),
		chat.WithRecorder(tel.Recorder()),
	)
	defer engine.Close()
	if err := engine.Load(ctx); err != nil {
		// The engine still serves an empty chat; persistence keeps mirroring.
		log.Error("failed to load persisted chat state", "error", err.Error())
	}

	engineCtx, cancelEngine := context.WithCancel(ctx)
	defer cancelEngine()
	go engine.Run(engineCtx)

	rt, err := realtime.NewService(engine, cfg.Realtime, tel.Recorder())
	if err != nil {
		return err
	}

	srv := server.New(engine, rt, server.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		Telemetry:      tel,
		AllowedOrigins: cfg.AllowedOrigins,
		Search:         search,
		DebugToken:     cfg.DebugToken,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	stats := engine.Stats()
	log.Info("starting yap",
		"addr", addr,
		"db", cfg.DBPath,
		"rooms", stats.Rooms,
		"messages", stats.Messages,
		"dm_policy", string(cfg.Chat.DMPolicy),
		"search", cfg.SearchTokenizer,
		"metrics", cfg.Telemetry.Exporter,
	)

	errCh := make(chan error, 1)
	go func() {
		if cfg.HTTPS.Domain != "" {
			errCh <- srv.ListenAndServeTLS(cfg.HTTPS)
			return
		}
		errCh <- srv.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().String("db", "yap.db", "Path to database file")
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	cmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	cmd.Flags().String("https", "", "Serve HTTPS with a Let's Encrypt certificate for this domain")
	cmd.Flags().Int("max-messages", 100, "Messages kept per channel")
	cmd.Flags().Duration("typing-window", 3*time.Second, "How long a typing signal stays valid")
	cmd.Flags().String("dm-policy", "persistent", "Direct message lifetime: persistent or ephemeral")
	cmd.Flags().String("default-room", "lobby", "Name of the undeletable default room")
	cmd.Flags().String("search-tokenizer", "unicode61", "FTS5 tokenizer for message search (unicode61, porter, ascii, trigram) or off")
	cmd.Flags().String("debug-token", "", "Token required by /api/v1/debug/logs; the route is off when empty")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().String("log-format", "text", "Log format: text or json")
	cmd.Flags().String("metrics", "none", "Metrics exporter: none, stdout or otlp")
	cmd.Flags().String("otlp-endpoint", "localhost:4317", "OTLP gRPC collector endpoint")
	cmd.Flags().Bool("traces", false, "Export HTTP traces as well as metrics")
}
