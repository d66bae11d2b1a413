package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/services"
)

// GenerateDiagramRequest for POST /api/projects/{pid}/diagrams/generate.
// A missing or unknown diagram_type generates an hld diagram.
type GenerateDiagramRequest struct {
	DiagramType string `json:"diagram_type"`
}

// FeatureListResponse for the features endpoints.
type FeatureListResponse struct {
	Features []*models.Feature `json:"features"`
	Total    int               `json:"total"`
}

// StoryListResponse for GET /api/projects/{pid}/stories
type StoryListResponse struct {
	Stories []*models.Story `json:"stories"`
	Total   int             `json:"total"`
}

// GenerationHandler exposes the feature, story and diagram agents.
type GenerationHandler struct {
	generationService services.GenerationService
	logger            *zap.Logger
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(generationService services.GenerationService, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		logger:            logger,
	}
}

// RegisterRoutes registers the generation handler's routes on the given mux.
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/projects/{pid}"

	mux.HandleFunc("POST "+base+"/features/generate", h.GenerateFeatures)
	mux.HandleFunc("GET "+base+"/features", h.ListFeatures)
	mux.HandleFunc("POST "+base+"/stories/generate", h.GenerateStories)
	mux.HandleFunc("GET "+base+"/stories", h.ListStories)
	mux.HandleFunc("POST "+base+"/diagrams/generate", h.GenerateDiagram)
	mux.HandleFunc("GET "+base+"/diagrams/{type}", h.GetDiagram)
}

// GenerateFeatures handles POST /api/projects/{pid}/features/generate
func (h *GenerationHandler) GenerateFeatures(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	features, err := h.generationService.GenerateFeatures(r.Context(), projectID)
	if err != nil {
		h.logger.Error("Feature generation failed",
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, FeatureListResponse{Features: features, Total: len(features)}, h.logger)
}

// ListFeatures handles GET /api/projects/{pid}/features
func (h *GenerationHandler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	features, err := h.generationService.ListFeatures(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	if features == nil {
		features = []*models.Feature{}
	}

	writeData(w, http.StatusOK, FeatureListResponse{Features: features, Total: len(features)}, h.logger)
}

// GenerateStories handles POST /api/projects/{pid}/stories/generate
func (h *GenerationHandler) GenerateStories(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.generationService.GenerateStories(r.Context(), projectID)
	if err != nil {
		h.logger.Error("Story generation failed",
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, result, h.logger)
}

// ListStories handles GET /api/projects/{pid}/stories
func (h *GenerationHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	stories, err := h.generationService.ListStories(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	if stories == nil {
		stories = []*models.Story{}
	}

	writeData(w, http.StatusOK, StoryListResponse{Stories: stories, Total: len(stories)}, h.logger)
}

// GenerateDiagram handles POST /api/projects/{pid}/diagrams/generate
// An empty body is accepted.
func (h *GenerationHandler) GenerateDiagram(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req GenerateDiagramRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}

	diagram, err := h.generationService.GenerateDiagram(r.Context(), projectID, req.DiagramType)
	if err != nil {
		h.logger.Error("Diagram generation failed",
			zap.String("project_id", projectID.String()),
			zap.String("diagram_type", req.DiagramType),
			zap.Error(err))
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, diagram, h.logger)
}

// GetDiagram handles GET /api/projects/{pid}/diagrams/{type}
func (h *GenerationHandler) GetDiagram(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	raw := r.PathValue("type")
	diagramType := models.ParseDiagramType(raw)
	if string(diagramType) != raw && raw != "dbd" {
		writeError(w, http.StatusBadRequest, "invalid_diagram_type",
			"diagram type must be one of hld, lld, database", h.logger)
		return
	}

	diagram, err := h.generationService.GetDiagram(r.Context(), projectID, diagramType)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, diagram, h.logger)
}
