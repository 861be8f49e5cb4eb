package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/tkoca/huddle/internal/adapters/http"
	"github.com/tkoca/huddle/internal/adapters/rtc"
	"github.com/tkoca/huddle/internal/adapters/ws"
	"github.com/tkoca/huddle/internal/app"
	"github.com/tkoca/huddle/internal/config"
	"github.com/tkoca/huddle/internal/core"
	"github.com/tkoca/huddle/internal/gateway"
	"github.com/tkoca/huddle/internal/hub"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	gwCfg := gateway.Config{
		URL:               cfg.Gateway.URL,
		AdminSecret:       cfg.Gateway.AdminSecret,
		ConnectTimeout:    cfg.Gateway.ConnectTimeout,
		RequestTimeout:    cfg.Gateway.RequestTimeout,
		EventTimeout:      cfg.Gateway.EventTimeout,
		KeepaliveInterval: cfg.Gateway.KeepaliveInterval,
	}
	session := gateway.NewSession(gwCfg, ws.NewDialer(), core.SystemClock(), gateway.UUIDTxIDs())
	media := rtc.NewFactory(rtc.DefaultWebRTCConfig())
	video := app.NewVideoOrchestrator(session, media, app.NewLoggingObserver())
	defer video.Close()

	if err := video.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("gateway connect failed, room operations will error until restart")
	}

	bus := hub.NewBus()
	hubCtl := hub.NewWSController(bus)

	r := router.SetupRouter(ctx, cfg, video, hubCtl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
