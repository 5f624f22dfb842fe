package material

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hanlinwu/studypal/backend/internal/model/material"
	"github.com/hanlinwu/studypal/backend/pkg/utils"
)

// Handler serves the study-material catalog.
type Handler struct {
	materials material.Store
	log       zerolog.Logger
}

// New creates a material handler.
func New(materials material.Store, log zerolog.Logger) *Handler {
	return &Handler{
		materials: materials,
		log:       log.With().Str("component", "materials").Logger(),
	}
}

// RegisterRoutes registers the material routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/materials", h.handleList)
	r.Get("/materials/{materialID}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	materials, err := h.materials.List()
	if err != nil {
		h.log.Error().Err(err).Msg("material list failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to list materials")
		return
	}
	utils.RespondJSON(w, http.StatusOK, materials)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "materialID")

	mat, ok, err := h.materials.FindByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("material_id", id).Msg("material lookup failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load material")
		return
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "material not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, mat)
}
