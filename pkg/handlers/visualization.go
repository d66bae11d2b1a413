package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/services"
)

// PutVisualizationRequest for PUT /api/projects/{pid}/visualization/{format}
type PutVisualizationRequest struct {
	Content string `json:"content" validate:"required"`
}

// VisualizationHandler serves the legacy mermaid and dot blobs.
type VisualizationHandler struct {
	visualizationService services.VisualizationService
	logger               *zap.Logger
}

// NewVisualizationHandler creates a new visualization handler.
func NewVisualizationHandler(visualizationService services.VisualizationService, logger *zap.Logger) *VisualizationHandler {
	return &VisualizationHandler{
		visualizationService: visualizationService,
		logger:               logger,
	}
}

// RegisterRoutes registers the visualization handler's routes on the given mux.
func (h *VisualizationHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/projects/{pid}/visualization/{format}"

	mux.HandleFunc("GET "+base, h.Get)
	mux.HandleFunc("PUT "+base, h.Put)
}

// Get handles GET /api/projects/{pid}/visualization/{format}
func (h *VisualizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	asset, err := h.visualizationService.Get(r.Context(), projectID, models.VisualizationFormat(r.PathValue("format")))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, asset, h.logger)
}

// Put handles PUT /api/projects/{pid}/visualization/{format}
func (h *VisualizationHandler) Put(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req PutVisualizationRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	asset, err := h.visualizationService.Put(r.Context(), projectID, models.VisualizationFormat(r.PathValue("format")), req.Content)
	if err != nil {
		h.logger.Error("Failed to store visualization",
			zap.String("project_id", projectID.String()),
			zap.String("format", r.PathValue("format")),
			zap.Error(err))
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, asset, h.logger)
}
