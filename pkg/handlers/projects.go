package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/config"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/services"
)

// CreateProjectRequest for POST /api/projects
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
}

// ProjectResponse is the standard response for project endpoints.
type ProjectResponse struct {
	*models.Project
	ProjectURL string `json:"projectUrl,omitempty"`
}

// ProjectListResponse for GET /api/projects
type ProjectListResponse struct {
	Projects []ProjectResponse `json:"projects"`
	Total    int               `json:"total"`
}

// ProjectsHandler handles project-related HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	cfg            *config.Config
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, cfg *config.Config, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		cfg:            cfg,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects", h.Create)
	mux.HandleFunc("GET /api/projects", h.List)
	mux.HandleFunc("GET /api/projects/{pid}", h.Get)
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	project, err := h.projectService.Create(r.Context(), services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusCreated, h.buildProjectResponse(project), h.logger)
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.GetByID(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, h.buildProjectResponse(project), h.logger)
}

// List handles GET /api/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.List(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := ProjectListResponse{Projects: make([]ProjectResponse, 0, len(projects))}
	for _, p := range projects {
		response.Projects = append(response.Projects, h.buildProjectResponse(p))
	}
	response.Total = len(response.Projects)

	writeData(w, http.StatusOK, response, h.logger)
}

func (h *ProjectsHandler) buildProjectResponse(project *models.Project) ProjectResponse {
	resp := ProjectResponse{Project: project}
	if h.cfg != nil && h.cfg.BaseURL != "" {
		resp.ProjectURL = h.cfg.BaseURL + "/api/projects/" + project.ID.String()
	}
	return resp
}
