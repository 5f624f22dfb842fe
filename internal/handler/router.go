package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/hanlinwu/studypal/backend/internal/config"
	materialHandler "github.com/hanlinwu/studypal/backend/internal/handler/material"
	"github.com/hanlinwu/studypal/backend/internal/handler/realtime"
	materialModel "github.com/hanlinwu/studypal/backend/internal/model/material"
	"github.com/hanlinwu/studypal/backend/internal/service/fallback"
	"github.com/hanlinwu/studypal/backend/internal/service/relay"
	"github.com/hanlinwu/studypal/backend/internal/service/transcribe"
	"github.com/hanlinwu/studypal/backend/internal/service/upstream"
	"github.com/hanlinwu/studypal/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(
	cfg *config.Config,
	registry *relay.Registry,
	creds *upstream.CredentialService,
	responder *fallback.Responder,
	transcriber *transcribe.Client,
	materials materialModel.Store,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	realtimeHandler := realtime.NewHandler(cfg.Realtime, registry, creds, responder, transcriber, materials, log)
	matHandler := materialHandler.New(materials, log)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"sessions": registry.Len(),
			})
		})

		realtimeHandler.RegisterRoutes(api)
		matHandler.RegisterRoutes(api)
	})

	return r
}
