// homewatch runs the client sync controller headless against a homed
// instance: initial load, coarse polling, feed merge, and a periodic log of
// the derived views. Useful for watching a home's state from a terminal and
// for exercising the sync path end to end.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bs-app/home-core/internal/config"
	"bs-app/home-core/internal/feed"
	"bs-app/home-core/internal/httpapi"
	"bs-app/home-core/internal/syncctl"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.LoadWatch(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := httpapi.NewLogger(cfg.LogLevel).With().Str("service", "homewatch").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var subscriber feed.Subscriber
	if feedClient, err := feed.Connect(logger, feed.Options{
		Broker:   cfg.Feed.Broker,
		ClientID: cfg.Feed.ClientID,
		Username: cfg.Feed.Username,
		Password: cfg.Feed.Password,
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect device feed")
	} else if feedClient != nil {
		subscriber = feedClient
	}

	api := syncctl.NewClient(cfg.ServerURL, cfg.Token)
	ctl := syncctl.New(logger, api, subscriber, syncctl.Config{
		PollInterval:   time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		BypassInternal: cfg.BypassInternal,
	})

	go ctl.Run(ctx)

	report := time.NewTicker(10 * time.Second)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown complete")
			return
		case <-report.C:
			state := ctl.Snapshot()
			if state == nil {
				continue
			}
			status := ctl.OverallStatus()
			consumption := ctl.Consumption()
			event := logger.Info().
				Str("home_id", state.Home.ID).
				Int("rooms", len(state.Rooms)).
				Int("devices", len(state.Devices)).
				Bool("lights_on", status.LightsOn).
				Bool("ac_on", status.ACOn).
				Float64("instant_w", consumption.InstantW)
			if advisory := ctl.Advisory(); advisory != "" {
				event = event.Str("advisory", advisory)
			}
			event.Msg("home_state")
		}
	}
}
