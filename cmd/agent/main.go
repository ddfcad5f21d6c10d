// Package main provides the entrypoint for the PresenceGuard scan agent.
// The agent runs on a device near the classroom: it scans for session
// beacons through the gateway during the warm window, folds the ring
// buffer into one scan event at session start, and submits it to the
// attendance API.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/agent"
	"github.com/presenceguard/presenceguard/internal/proximity"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	var (
		sessionID    = flag.String("session", "", "session identifier (required)")
		sessionToken = flag.Uint("token", 0, "rotating session token (required)")
		classID      = flag.Uint("class", 0, "class identifier broadcast by the session beacons (required)")
		fingerprint  = flag.String("fingerprint", "", "device fingerprint (required)")
		startsAt     = flag.String("starts-at", "", "session start time, RFC3339 (required)")
	)
	flag.Parse()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "presenceguard-agent").
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting PresenceGuard agent")

	if *sessionID == "" || *sessionToken == 0 || *classID == 0 || *fingerprint == "" || *startsAt == "" {
		log.Fatal().Msg("missing required flags: -session, -token, -class, -fingerprint, -starts-at")
	}
	sessionStart, err := time.Parse(time.RFC3339, *startsAt)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -starts-at, expected RFC3339")
	}

	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "http://localhost:9090"
	}
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	apiToken := os.Getenv("API_TOKEN")
	if apiToken == "" {
		log.Fatal().Msg("API_TOKEN is required")
	}

	driver := agent.NewGatewayDriver(agent.GatewayConfig{
		BaseURL: gatewayURL,
		APIKey:  os.Getenv("GATEWAY_API_KEY"),
		Logger:  log,
	})

	// Location and network sources come from the same gateway host; both
	// degrade to "signal unavailable" when absent.
	sourceCfg := agent.SourceConfig{BaseURL: gatewayURL, Logger: log}
	scheduler := proximity.NewScheduler(proximity.SchedulerConfig{
		Driver:       driver,
		Location:     agent.NewLocationClient(sourceCfg),
		Network:      agent.NewNetworkClient(sourceCfg),
		Logger:       log,
		SessionStart: sessionStart,
		ClassID:      uint16(*classID),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop cleanly on interrupt.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("interrupt received, stopping")
		scheduler.Stop()
		cancel()
	}()

	// Scan until the warm window closes at session start.
	if err := scheduler.Run(ctx); err != nil {
		if errors.Is(err, proximity.ErrWindowClosed) {
			log.Fatal().Msg("session already started, nothing to scan")
		}
		log.Fatal().Err(err).Msg("scan schedule failed")
	}

	samples := scheduler.Samples().Snapshot()
	if len(samples) == 0 {
		log.Warn().Msg("no samples collected, submitting an empty scan")
	}

	submission := agent.BuildSubmission(*sessionID, uint32(*sessionToken), *fingerprint, time.Now(), samples)

	client := agent.NewAPIClient(agent.APIConfig{
		BaseURL: apiURL,
		Token:   apiToken,
		Logger:  log,
	})

	submitCtx, submitCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer submitCancel()

	outcome, err := client.SubmitScan(submitCtx, submission)
	if err != nil {
		log.Fatal().Err(err).Msg("scan submission failed")
	}

	log.Info().
		Bool("accepted", outcome.Accepted).
		Int("score", outcome.Score).
		Str("reason", outcome.Reason).
		Bool("duplicate", outcome.Duplicate).
		Msg("scan decision received")

	if !outcome.Accepted {
		os.Exit(1)
	}
}
