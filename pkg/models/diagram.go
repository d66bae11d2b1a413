package models

import (
	"time"

	"github.com/google/uuid"
)

// DiagramType is a persisted diagram kind.
type DiagramType string

const (
	DiagramTypeHLD      DiagramType = "hld"
	DiagramTypeLLD      DiagramType = "lld"
	DiagramTypeDatabase DiagramType = "database"
)

// ParseDiagramType maps s onto a persisted diagram type. Unknown or empty values
// become hld.
func ParseDiagramType(s string) DiagramType {
	switch DiagramType(s) {
	case DiagramTypeLLD:
		return DiagramTypeLLD
	case DiagramTypeDatabase, "dbd":
		return DiagramTypeDatabase
	default:
		return DiagramTypeHLD
	}
}

// Diagram is a generated Mermaid diagram. At most one row exists per
// (project, type); regeneration replaces it.
type Diagram struct {
	ID            uuid.UUID   `json:"id"`
	ProjectID     uuid.UUID   `json:"projectId"`
	DiagramType   DiagramType `json:"diagramType"`
	MermaidSource string      `json:"mermaidSource"`
	Attempts      int         `json:"attempts"`
	Model         string      `json:"model"`
	Valid         bool        `json:"valid"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// VisualizationFormat names one of the legacy visualization blobs.
type VisualizationFormat string

const (
	VisualizationMermaid VisualizationFormat = "mermaid"
	VisualizationDOT     VisualizationFormat = "dot"
)

// Valid reports whether f is a known format.
func (f VisualizationFormat) Valid() bool {
	return f == VisualizationMermaid || f == VisualizationDOT
}

// VisualizationAsset is a legacy visualization blob. ModifiedAt is the object's
// last-modified time and doubles as its version.
type VisualizationAsset struct {
	ProjectID  uuid.UUID           `json:"projectId"`
	Format     VisualizationFormat `json:"format"`
	Content    string              `json:"content"`
	ModifiedAt time.Time           `json:"modifiedAt"`
}
