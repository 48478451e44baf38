// playbackd is the audiobook playback engine daemon. It connects to a
// Tomeshelf backend, owns the single live audio stream for the device it runs
// on and exposes a local HTTP control surface for app shells.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomeshelf/playback/internal/api/content"
	"github.com/tomeshelf/playback/internal/api/library"
	"github.com/tomeshelf/playback/internal/api/progress"
	"github.com/tomeshelf/playback/internal/config"
	"github.com/tomeshelf/playback/internal/journal"
	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/platform"
	"github.com/tomeshelf/playback/internal/playback"
	"github.com/tomeshelf/playback/internal/server"
	"github.com/tomeshelf/playback/internal/util"
)

// Environment Variables:
//   TOMESHELF_URL            URL of the Tomeshelf backend
//   TOMESHELF_TOKEN          API token for the backend
//   TOMESHELF_GRAPHQL_URL    (optional) Explicit manifest GraphQL endpoint
//   PORT                     (optional) Control server port (default: 7575)
//   LOG_LEVEL                (optional) Log level (debug, info, warn, error)
//   LOG_FORMAT               (optional) Log format (json, console)
//   PROGRESS_WRITE_INTERVAL  (optional) Steady-state progress write cadence (>= 15s)
//   PROGRESS_DEBOUNCE_WINDOW (optional) Position write debounce window
//   PRELOAD_COUNT            (optional) Number of upcoming files to keep warm
//   JOURNAL_FILE             (optional) Path of the offline progress journal
//   SHUTDOWN_TIMEOUT         (optional) Graceful shutdown timeout
//
// Endpoints:
//   GET  /healthz            # Health check
//   GET  /state              # Observable playback state
//   POST /intent/*           # Playback intents (open, play, pause, seek, ...)
//   POST /visibility         # Foreground/background transitions

var (
	version = "dev" // Set during build
)

func main() {
	flags := parseFlags()

	if flags.help {
		showHelp()
		return
	}
	if flags.version {
		showVersion()
		return
	}

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     os.Stdout,
		TimeFormat: time.RFC3339,
	})
	log := logger.Get()

	log.Info("Starting playbackd", map[string]interface{}{
		"version":    version,
		"log_level":  cfg.Logging.Level,
		"log_format": cfg.Logging.Format,
		"backend":    cfg.Backend.URL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Probe what this runtime can actually do before wiring anything
	caps := platform.Detect()
	log.Info("Platform capabilities", map[string]interface{}{
		"runtime":       string(caps.Runtime),
		"audio_output":  caps.AudioOutput,
		"media_session": caps.MediaSession,
		"autoplay":      caps.Autoplay,
	})

	// Backend clients
	libraryClient := library.NewClient(cfg.GraphQLEndpoint(), cfg.Backend.Token)
	contentClient := content.NewClient(cfg.Backend.URL, cfg.Backend.Token)
	progressClient := progress.NewClient(cfg.Backend.URL, cfg.Backend.Token)

	// Offline progress journal
	jrnl, err := journal.Open(cfg.Paths.JournalFile, log)
	if err != nil {
		log.Error("Failed to open progress journal, continuing without", map[string]interface{}{
			"path":  cfg.Paths.JournalFile,
			"error": err.Error(),
		})
		jrnl = nil
	}

	persister := playback.NewPersister(progressClient, jrnl,
		cfg.Playback.DebounceWindow, cfg.Playback.ProgressWriteInterval)
	persister.ReplayJournal(ctx)

	limiter := util.NewRateLimiter(util.DefaultRate, util.DefaultBurst)
	preloader := playback.NewPreloader(contentClient, limiter,
		cfg.Playback.PreloadCount, cfg.Playback.PreloadDelay)

	owner := playback.NewOwner(elementFactory(caps))

	policy := &playback.Policy{
		UserRetryLimit:        cfg.Playback.UserRetryLimit,
		AutoAdvanceRetryLimit: cfg.Playback.AutoAdvanceRetryLimit,
		Backoff:               cfg.Playback.RetryBackoff,
		Offline:               offlineProbe(cfg.Backend.URL),
	}

	var bridge platform.SessionBridge = platform.NoopBridge{}
	if caps.MediaSession {
		bridge = platform.NewChannelBridge()
	}

	engine := playback.New(playback.Config{
		HeartbeatInterval:      cfg.Playback.HeartbeatInterval,
		BackgroundPollInterval: cfg.Playback.BackgroundPollInterval,
		EndTolerance:           cfg.Playback.EndTolerance,
		BackgroundEndTolerance: cfg.Playback.BackgroundEndTolerance,
		PreloadCount:           cfg.Playback.PreloadCount,
		PreloadDelay:           cfg.Playback.PreloadDelay,
	}, caps, owner, persister, preloader, libraryClient, contentClient, policy, bridge)
	engine.Start()

	srv := server.New(fmt.Sprintf(":%s", cfg.Server.Port), engine, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("failed to start control server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received", nil)
	case err := <-errCh:
		log.Error("Fatal error occurred", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Initiating graceful shutdown...", map[string]interface{}{
		"timeout": cfg.Server.ShutdownTimeout.String(),
	})
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Flushes the pending position write and silences every element before
	// the process exits
	engine.Close()
	bridge.Close()
	if jrnl != nil {
		if err := jrnl.Close(); err != nil {
			log.Error("Error closing progress journal", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	log.Info("Shutdown completed", nil)
}

// offlineProbe reports whether the backend is unreachable right now, so the
// retry policy can skip retries that cannot succeed.
func offlineProbe(baseURL string) func() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	return func() bool {
		req, err := http.NewRequest(http.MethodHead, baseURL, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return true
		}
		resp.Body.Close()
		return false
	}
}

// elementFactory picks the element implementation the probe says this runtime
// can drive. Headless runtimes get a clock-driven element so the engine still
// tracks and persists positions.
func elementFactory(caps platform.Capabilities) playback.ElementFactory {
	if caps.AudioOutput {
		return func() (platform.Element, error) {
			return platform.NewDeviceElement()
		}
	}
	return func() (platform.Element, error) {
		return platform.NewStubElement(), nil
	}
}
