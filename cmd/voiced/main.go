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

	router "github.com/dkeye/voicesync/internal/adapters/http"
	"github.com/dkeye/voicesync/internal/adapters/local"
	sig "github.com/dkeye/voicesync/internal/adapters/signal"
	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/app/orch"
	"github.com/dkeye/voicesync/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := config.Flags("voiced")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	reg := app.NewRegistry(cfg.WatcherBuffer, app.SimplePolicy{})
	o := orch.New(app.NewRoomManager(), reg)
	ctl := sig.NewSignalWSController(
		local.New(o, reg),
		sig.NewJoinLimiter(cfg.JoinLimit, cfg.JoinInterval),
		sig.Options{ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod},
	)

	r := router.SetupRouter(ctx, cfg, o, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("directory server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := reg.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("watchers did not drain")
	}
	log.Info().Msg("Server exited gracefully")
}
