// Command relay reads messages as JSON lines on stdin, runs each through the
// translation memory pipeline, and writes the published result as a JSON line
// on stdout. Processing failures are logged and skip the message; the relay
// keeps going.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zoomrelay/relay/internal/config"
	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/observability"
)

// Oversized inbound lines are a config problem, not a reason to crash.
const maxLineBytes = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	app, err := NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("relay started",
		"store", cfg.MemoryStore,
		"embedding_provider", cfg.EmbeddingProvider,
		"generation_model", cfg.GenerationModel,
	)

	if err := run(ctx, app, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("relay shut down")
}

// run processes stdin line by line until EOF or ctx cancellation.
func run(ctx context.Context, app *App, in *os.File, out *os.File) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg models.InboundMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			slog.Error("skipping malformed input line", "error", err)

			continue
		}

		result, err := app.Process(ctx, msg)
		if err != nil {
			slog.ErrorContext(observability.WithMessageID(ctx, msg.MessageID),
				"message failed", "error", err)

			continue
		}

		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	return nil
}

// setupLogging configures slog with the specified log level. Output is JSON
// with trace ids injected from the context when present.
func setupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	// Results go to stdout, so logs go to stderr.
	handler := observability.NewTraceContextHandler(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(slog.New(handler))
}
