package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bs-app/home-core/internal/auth"
	"bs-app/home-core/internal/config"
	"bs-app/home-core/internal/feed"
	"bs-app/home-core/internal/httpapi"
	"bs-app/home-core/internal/metrics"
	"bs-app/home-core/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := httpapi.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *store.Pool
	if cfg.DatabaseURL != "" {
		p, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
	}

	var publisher feed.Publisher = feed.NopPublisher{}
	if feedClient, err := feed.Connect(logger, feed.Options{
		Broker:   cfg.Feed.Broker,
		ClientID: cfg.Feed.ClientID,
		Username: cfg.Feed.Username,
		Password: cfg.Feed.Password,
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect device feed")
	} else if feedClient != nil {
		publisher = feedClient
	}

	sessions := auth.StaticTokens{}
	for _, s := range cfg.Sessions {
		sessions[s.Token] = auth.User{ID: s.UserID, Email: s.Email, Role: s.Role}
	}
	internal := auth.NewInternalChecker(cfg.InternalEmails)

	h := httpapi.NewHandler(logger, pool, sessions, internal, metrics.New(), publisher)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("homed listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
