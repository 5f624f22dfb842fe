package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hanlinwu/studypal/backend/internal/config"
	"github.com/hanlinwu/studypal/backend/internal/handler"
	"github.com/hanlinwu/studypal/backend/internal/model/material"
	"github.com/hanlinwu/studypal/backend/internal/service/fallback"
	"github.com/hanlinwu/studypal/backend/internal/service/relay"
	"github.com/hanlinwu/studypal/backend/internal/service/transcribe"
	"github.com/hanlinwu/studypal/backend/internal/service/upstream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	materials, closeMaterials, err := openMaterialStore(cfg.Materials, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open material store")
	}
	defer closeMaterials()

	registry := relay.NewRegistry()
	defer registry.CloseAll()

	creds := upstream.NewCredentialService(cfg.Realtime)
	responder := fallback.NewResponder(ctx, cfg.Fallback, log)
	transcriber := transcribe.New(cfg.Transcribe)

	if cfg.Realtime.Enabled() {
		log.Info().Str("model", cfg.Realtime.Model).Msg("realtime upstream configured")
	} else {
		log.Warn().Msg("no realtime credential configured, sessions will run in fallback mode")
	}

	router := handler.NewRouter(cfg, registry, creds, responder, transcriber, materials, log)

	startServer(ctx, cfg.Server, router, log)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// openMaterialStore selects the SQLite store when a database path is
// configured, otherwise the seeded in-memory store. A fresh SQLite database
// is seeded with the same defaults.
func openMaterialStore(cfg config.MaterialsConfig, log zerolog.Logger) (material.Store, func(), error) {
	if cfg.DBPath == "" {
		return material.NewMemoryStore(material.Seed()), func() {}, nil
	}

	store, err := material.OpenSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	existing, err := store.List()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if len(existing) == 0 {
		for _, m := range material.Seed() {
			if err := store.Insert(m); err != nil {
				log.Warn().Err(err).Str("material_id", m.ID).Msg("material seed failed")
			}
		}
	}

	log.Info().Str("path", cfg.DBPath).Msg("material store opened")
	return store, func() { store.Close() }, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("studypal relay listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
