package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handler "github.com/hdboard/signaling/internal/adapter/driving/http"
	"github.com/hdboard/signaling/internal/adapter/gateway/ws"
	"github.com/hdboard/signaling/internal/core/service"
	"github.com/rs/zerolog"
)

const (
	defaultPort            = "8080"
	defaultShutdownTimeout = 5 * time.Second
	defaultRoomGCGrace     = time.Minute
)

type config struct {
	addr            string
	shutdownTimeout time.Duration
	roomGCGrace     time.Duration
}

// loadConfig reads configuration from the environment with defaults.
func loadConfig() config {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	cfg := config{
		addr:            ":" + port,
		shutdownTimeout: defaultShutdownTimeout,
		roomGCGrace:     defaultRoomGCGrace,
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.shutdownTimeout = d
		}
	}
	if v := os.Getenv("ROOM_GC_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.roomGCGrace = d
		}
	}
	return cfg
}

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()

	cfg := loadConfig()

	registry := service.NewRegistry(cfg.roomGCGrace)
	hub := ws.NewHub()
	relay := service.NewRelay(registry, hub)
	fanout := service.NewFanout(registry, relay)

	h := handler.NewHandler(registry, relay, fanout, hub)
	r := h.NewRouter()

	srv := &http.Server{
		Addr:    cfg.addr,
		Handler: r,
	}

	go func() {
		l.Info().Str("addr", cfg.addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("Server exited")
}
