package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/services"
)

// LLMCallListResponse wraps recorded completion calls.
type LLMCallListResponse struct {
	Calls []*models.LLMCall `json:"calls"`
	Total int               `json:"total"`
}

// LLMCallsHandler exposes the completion call log.
type LLMCallsHandler struct {
	llmCallService services.LLMCallService
	logger         *zap.Logger
}

// NewLLMCallsHandler creates a new LLM call log handler.
func NewLLMCallsHandler(llmCallService services.LLMCallService, logger *zap.Logger) *LLMCallsHandler {
	return &LLMCallsHandler{
		llmCallService: llmCallService,
		logger:         logger,
	}
}

// RegisterRoutes registers the LLM call log routes on the given mux.
func (h *LLMCallsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects/{pid}/llm-calls", h.ListByProject)
	mux.HandleFunc("GET /api/feedback/llm-calls/{item_id}", h.ListByItem)
}

// ListByProject handles GET /api/projects/{pid}/llm-calls?limit=N
func (h *LLMCallsHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	calls, err := h.llmCallService.ListByProject(r.Context(), projectID, parseLimit(r))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeCalls(w, calls)
}

// ListByItem handles GET /api/feedback/llm-calls/{item_id}?limit=N
func (h *LLMCallsHandler) ListByItem(w http.ResponseWriter, r *http.Request) {
	calls, err := h.llmCallService.ListByItem(r.Context(), r.PathValue("item_id"), parseLimit(r))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	h.writeCalls(w, calls)
}

func (h *LLMCallsHandler) writeCalls(w http.ResponseWriter, calls []*models.LLMCall) {
	if calls == nil {
		calls = []*models.LLMCall{}
	}
	writeData(w, http.StatusOK, LLMCallListResponse{Calls: calls, Total: len(calls)}, h.logger)
}
