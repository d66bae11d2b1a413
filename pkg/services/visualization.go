package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/storage"
)

var visualizationContentTypes = map[models.VisualizationFormat]string{
	models.VisualizationMermaid: "text/vnd.mermaid; charset=utf-8",
	models.VisualizationDOT:     "text/vnd.graphviz; charset=utf-8",
}

// VisualizationService reads and writes the legacy per-project visualization
// blobs. The mermaid and dot blobs are stored and versioned independently.
type VisualizationService interface {
	Get(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat) (*models.VisualizationAsset, error)
	Put(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat, content string) (*models.VisualizationAsset, error)
}

type visualizationService struct {
	store  storage.BlobStore
	logger *zap.Logger
}

// NewVisualizationService creates a visualization service backed by store.
func NewVisualizationService(store storage.BlobStore, logger *zap.Logger) VisualizationService {
	return &visualizationService{
		store:  store,
		logger: logger.Named("visualization"),
	}
}

var _ VisualizationService = (*visualizationService)(nil)

func visualizationKey(projectID uuid.UUID, format models.VisualizationFormat) string {
	return projectID.String() + "/" + string(format)
}

func (s *visualizationService) Get(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat) (*models.VisualizationAsset, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unknown visualization format %q", apperrors.ErrInvalidInput, format)
	}

	blob, err := s.store.Get(ctx, visualizationKey(projectID, format))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s visualization: %w", format, err)
	}

	return &models.VisualizationAsset{
		ProjectID:  projectID,
		Format:     format,
		Content:    string(blob.Content),
		ModifiedAt: blob.ModifiedAt,
	}, nil
}

func (s *visualizationService) Put(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat, content string) (*models.VisualizationAsset, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unknown visualization format %q", apperrors.ErrInvalidInput, format)
	}

	modifiedAt, err := s.store.Put(ctx, visualizationKey(projectID, format), []byte(content), visualizationContentTypes[format])
	if err != nil {
		return nil, fmt.Errorf("failed to write %s visualization: %w", format, err)
	}

	s.logger.Debug("Visualization stored",
		zap.String("project_id", projectID.String()),
		zap.String("format", string(format)),
		zap.Int("bytes", len(content)))

	return &models.VisualizationAsset{
		ProjectID:  projectID,
		Format:     format,
		Content:    content,
		ModifiedAt: modifiedAt,
	}, nil
}
