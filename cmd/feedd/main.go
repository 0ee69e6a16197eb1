// Command feedd launches the tradefeed streaming daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coachpo/tradefeed/config"
	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/session"
	"github.com/coachpo/tradefeed/internal/transport"
	"github.com/coachpo/tradefeed/lib/telemetry"
)

const (
	defaultConfigPath        = "config/feedd.yaml"
	feeddLoggerPrefix        = "feedd "
	shutdownTimeout          = 30 * time.Second
	sessionShutdownTimeout   = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	meterName                = "github.com/coachpo/tradefeed"
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newFeeddLogger()

	configPath := resolveConfigPath(cfgPathFlag)
	cfg, loadedFromFile, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	logger.Printf("configuration initialised: env=%s, stream=%s", cfg.Environment, cfg.Stream.URL)

	observability.SetLogger(observability.NewStdLogger(logger, cfg.Log.Debug))

	telemetryShutdown, err := initTelemetry(ctx, logger, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	sess := session.New(cfg)
	unsubscribe := sess.SubscribeStatus(func(event transport.StatusEvent) {
		switch event.Status {
		case transport.StatusReconnecting:
			logger.Printf("stream reconnecting: attempt=%d next=%s", event.Attempt, event.NextRetryAt.Format(time.RFC3339))
		case transport.StatusGaveUp:
			logger.Printf("stream gave up after %d attempts", event.Attempt)
		default:
			logger.Printf("stream status: %s", event.Status)
		}
	})
	defer unsubscribe()

	sess.Start(cfg.Stream.Token)

	logger.Print("feedd started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, sess, telemetryShutdown)
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newFeeddLogger() *log.Logger {
	return log.New(os.Stdout, feeddLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func initTelemetry(ctx context.Context, logger *log.Logger, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	providers, shutdown, err := telemetry.Init(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	observability.SetMetrics(observability.NewOtelMetrics(providers.MeterProvider.Meter(meterName)))

	if cfg.OTLPEndpoint != "" {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", cfg.OTLPEndpoint, cfg.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}
	return shutdown, nil
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, sess *session.Session, telemetryShutdown func(context.Context) error) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	shutdownStep("stopping session", sessionShutdownTimeout, func(stepCtx context.Context) error {
		done := make(chan struct{})
		go func() {
			sess.Stop()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stepCtx.Done():
			return stepCtx.Err()
		}
	})

	if telemetryShutdown != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return telemetryShutdown(stepCtx)
		})
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}
