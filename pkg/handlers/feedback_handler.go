package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// SubmitFeedbackRequest for POST /api/feedback/submit
type SubmitFeedbackRequest struct {
	ItemID          string         `json:"itemId" validate:"required"`
	ItemType        string         `json:"itemType" validate:"required,oneof=feature story visualization"`
	ProjectID       string         `json:"projectId" validate:"required"`
	Feedback        string         `json:"feedback" validate:"required"`
	OriginalContent map[string]any `json:"originalContent,omitempty"`
	ProjectContext  string         `json:"projectContext,omitempty"`
}

// SubmitFeedbackResponse for POST /api/feedback/submit
type SubmitFeedbackResponse struct {
	FeedbackID        string `json:"feedbackId"`
	RegenerationCount int    `json:"regenerationCount"`
	AutoRegenerate    bool   `json:"autoRegenerate"`
	Message           string `json:"message"`
}

// RegenerateRequest for POST /api/feedback/regenerate
type RegenerateRequest struct {
	ItemID   string `json:"itemId" validate:"required"`
	ItemType string `json:"itemType" validate:"required,oneof=feature story visualization"`
	Feedback string `json:"feedback,omitempty"`
}

// RegenerateResponse for POST /api/feedback/regenerate
type RegenerateResponse struct {
	FeedbackID         string         `json:"feedbackId"`
	RegenerationCount  int            `json:"regenerationCount"`
	RegeneratedContent map[string]any `json:"regeneratedContent"`
	Version            int            `json:"version"`
	Message            string         `json:"message"`
}

// RegenerationCountResponse for GET /api/feedback/regeneration-count/{item_id}
type RegenerationCountResponse struct {
	Count int `json:"count"`
}

// ============================================================================
// Handler
// ============================================================================

// FeedbackHandler handles feedback submission and regeneration requests.
type FeedbackHandler struct {
	feedbackService services.FeedbackService
	logger          *zap.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(feedbackService services.FeedbackService, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		feedbackService: feedbackService,
		logger:          logger,
	}
}

// RegisterRoutes registers the feedback handler's routes on the given mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/feedback"

	mux.HandleFunc("POST "+base+"/submit", h.Submit)
	mux.HandleFunc("POST "+base+"/regenerate", h.Regenerate)
	mux.HandleFunc("GET "+base+"/history/{item_id}", h.History)
	mux.HandleFunc("GET "+base+"/regeneration-count/{item_id}", h.RegenerationCount)
	mux.HandleFunc("GET "+base+"/versions/{fid}", h.Versions)
}

// Submit handles POST /api/feedback/submit
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitFeedbackRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	entry, count, err := h.feedbackService.Submit(r.Context(), services.SubmitFeedbackInput{
		ItemID:          req.ItemID,
		ItemType:        req.ItemType,
		ProjectID:       req.ProjectID,
		Feedback:        req.Feedback,
		OriginalContent: req.OriginalContent,
		ProjectContext:  req.ProjectContext,
	})
	if err != nil {
		h.logger.Error("Failed to submit feedback",
			zap.String("item_id", req.ItemID),
			zap.String("item_type", req.ItemType),
			zap.Error(err))
		writeServiceError(w, err, h.logger)
		return
	}

	response := SubmitFeedbackResponse{
		FeedbackID:        entry.ID.String(),
		RegenerationCount: count,
		AutoRegenerate:    false,
		Message:           "Feedback submitted successfully",
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Regenerate handles POST /api/feedback/regenerate
func (h *FeedbackHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	result, err := h.feedbackService.Regenerate(r.Context(), services.RegenerateInput{
		ItemID:   req.ItemID,
		ItemType: req.ItemType,
		Feedback: req.Feedback,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := RegenerateResponse{
		FeedbackID:         result.Entry.ID.String(),
		RegenerationCount:  result.RegenerationCount,
		RegeneratedContent: result.Content,
		Version:            result.Version,
		Message:            "Content regenerated successfully",
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// History handles GET /api/feedback/history/{item_id}?itemType=&limit=
func (h *FeedbackHandler) History(w http.ResponseWriter, r *http.Request) {
	itemID, itemType, ok := ParseItemKey(w, r, h.logger)
	if !ok {
		return
	}

	entries, err := h.feedbackService.History(r.Context(), itemID, itemType, parseLimit(r))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	if entries == nil {
		entries = []*models.FeedbackEntry{}
	}

	writeData(w, http.StatusOK, entries, h.logger)
}

// RegenerationCount handles GET /api/feedback/regeneration-count/{item_id}?itemType=
func (h *FeedbackHandler) RegenerationCount(w http.ResponseWriter, r *http.Request) {
	itemID, itemType, ok := ParseItemKey(w, r, h.logger)
	if !ok {
		return
	}

	count, err := h.feedbackService.CountRegenerations(r.Context(), itemID, itemType)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, RegenerationCountResponse{Count: count}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Versions handles GET /api/feedback/versions/{fid}
func (h *FeedbackHandler) Versions(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := ParseFeedbackID(w, r, h.logger)
	if !ok {
		return
	}

	versions, err := h.feedbackService.Versions(r.Context(), feedbackID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	if versions == nil {
		versions = []*models.FeedbackVersion{}
	}

	writeData(w, http.StatusOK, versions, h.logger)
}
