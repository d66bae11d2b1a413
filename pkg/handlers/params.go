package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/models"
)

// ParseProjectID extracts and validates the project ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: pid
func ParseProjectID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "pid", "invalid_project_id", "Invalid project ID format", logger)
}

// ParseFeedbackID extracts and validates the feedback ID from the request path.
// Expects path parameter: fid
func ParseFeedbackID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "fid", "invalid_feedback_id", "Invalid feedback ID format", logger)
}

// ParseItemKey reads the {item_id} path parameter and the itemType query
// parameter used by the feedback read endpoints.
func ParseItemKey(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, models.ItemType, bool) {
	itemID := r.PathValue("item_id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "item id is required", logger)
		return "", "", false
	}
	itemType, err := models.ParseItemType(r.URL.Query().Get("itemType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), logger)
		return "", "", false
	}
	return itemID, itemType, true
}

// parseLimit reads an optional positive integer query parameter. Absent or
// malformed values yield 0.
func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}
