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

	"github.com/voxden/voxd/internal/api"
	"github.com/voxden/voxd/internal/auth"
	"github.com/voxden/voxd/internal/cache"
	"github.com/voxden/voxd/internal/config"
	"github.com/voxden/voxd/internal/hub"
	"github.com/voxden/voxd/internal/inference"
	"github.com/voxden/voxd/internal/store"
	"github.com/voxden/voxd/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("secret must be configured")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	cch := cache.New(cfg.RedisURL, cfg.CacheTTL)
	if err := cch.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("running without cache")
	}
	defer cch.Disconnect()

	tokens, err := auth.NewManager(cfg.Secret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init token manager")
	}

	var voice inference.Voice = inference.NewCachingVoice(inference.NewMockVoice(), cch, cfg.CacheTTL)
	var vision inference.Vision = inference.NewMockVision()
	var brain inference.Brain = inference.NewOpenAIBrain(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	registry := hub.NewRegistry(cfg.SendQueueSize, cfg.PingPeriod)
	wsController := ws.NewController(cfg, registry, tokens, st, voice, vision, brain)

	server := api.NewServer(cfg, st, cch, tokens, registry, voice, vision, brain, wsController)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: server.SetupRouter(),
	}

	// Empty rooms are garbage-collected off the hot path.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.PruneRooms(); n > 0 {
					log.Debug().Int("pruned", n).Msg("pruned empty rooms")
				}
			}
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("voxd server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	registry.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
