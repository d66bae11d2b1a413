package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/diagram"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/prompts"
	"github.com/protoforge/protoforge/pkg/retry"
)

// DiagramRequest describes one diagram generation call.
type DiagramRequest struct {
	Type           models.DiagramType
	ProjectContext string
	Features       []models.FeatureRecord
	Stories        []models.StorySpec
	// Feedback, when set, is appended to the project context.
	Feedback string
}

// DiagramResult is a generated diagram. Degraded is set when the diagram
// still failed validation after every attempt and is returned as best effort.
type DiagramResult struct {
	Mermaid  string
	Model    string
	Attempts int
	Degraded bool
}

// DiagramGenerator produces validated Mermaid diagrams.
type DiagramGenerator interface {
	Generate(ctx context.Context, req DiagramRequest) (*DiagramResult, error)
}

// DiagramGeneratorConfig holds model and repair loop settings.
type DiagramGeneratorConfig struct {
	Model         string
	FallbackModel string
	MaxAttempts   int
	EscalateAt    int
	MaxTokens     int
	Temperature   float64
	Backoff       *retry.Config
}

type diagramGenerator struct {
	client llm.CompletionClient
	cfg    DiagramGeneratorConfig
	logger *zap.Logger
}

// NewDiagramGenerator creates a diagram generator.
func NewDiagramGenerator(client llm.CompletionClient, cfg DiagramGeneratorConfig, logger *zap.Logger) DiagramGenerator {
	return &diagramGenerator{
		client: client,
		cfg:    cfg,
		logger: logger.Named("diagram-generator"),
	}
}

var _ DiagramGenerator = (*diagramGenerator)(nil)

func (g *diagramGenerator) Generate(ctx context.Context, req DiagramRequest) (*DiagramResult, error) {
	diagramType := req.Type
	if diagramType == "" {
		diagramType = models.DiagramTypeHLD
	}

	features := make([]prompts.StoryFeature, len(req.Features))
	for i, f := range req.Features {
		features[i] = prompts.StoryFeature{ID: f.ID, Title: f.Title, Description: f.Description}
	}
	stories := make([]prompts.DiagramStory, len(req.Stories))
	for i, s := range req.Stories {
		stories[i] = prompts.DiagramStory{FeatureTitle: s.FeatureTitle, UserStory: s.UserStory}
	}

	projectContext := req.ProjectContext
	if req.Feedback != "" {
		projectContext = prompts.WithFeedback(projectContext, req.Feedback, "")
	}

	attempt := 0
	spec := retry.RepairSpec{
		Name:   "diagram:" + string(diagramType),
		Prompt: prompts.BuildDiagramPrompt(string(diagramType), projectContext, features, stories),
		Generate: func(ctx context.Context, model, prompt string) (string, error) {
			ctx = llm.WithAttempt(ctx, "diagram:"+string(diagramType), attempt)
			attempt++
			return g.client.Complete(ctx, llm.CompletionRequest{
				Model:        model,
				SystemPrompt: prompts.DiagramSystemPrompt,
				UserPrompt:   prompt,
				MaxTokens:    g.cfg.MaxTokens,
				Temperature:  g.cfg.Temperature,
			})
		},
		Normalize: llm.StripFences,
		Validate: func(output string) *retry.Failure {
			if d := diagram.Validate(output, string(diagramType)); d != nil {
				return &retry.Failure{Code: string(d.Code), Message: d.Message}
			}
			return nil
		},
		Augment: func(original, lastOutput string, f *retry.Failure) string {
			return prompts.BuildDiagramRepairPrompt(original, lastOutput, f.Message,
				diagram.AcceptedPrefixes(diagram.ParseType(string(diagramType))))
		},
		OnExhaustion: diagramExhaustion,
		IsFatal:      llm.IsAuth,
	}

	result, err := retry.Repair(ctx, retry.RepairConfig{
		MaxAttempts:   g.cfg.MaxAttempts,
		PrimaryModel:  g.cfg.Model,
		FallbackModel: g.cfg.FallbackModel,
		EscalateAt:    g.cfg.EscalateAt,
		Backoff:       g.cfg.Backoff,
		Logger:        g.logger,
	}, spec)
	if err != nil {
		return nil, fmt.Errorf("diagram generation failed: %w", err)
	}

	if result.Degraded {
		g.logger.Warn("Returning diagram that failed validation",
			zap.String("diagram_type", string(diagramType)),
			zap.Int("attempts", result.Attempts))
	}

	return &DiagramResult{
		Mermaid:  result.Output,
		Model:    result.Model,
		Attempts: result.Attempts,
		Degraded: result.Degraded,
	}, nil
}

// diagramExhaustion fails outright when the last diagnostic is one no consumer
// can use and degrades otherwise.
func diagramExhaustion(f *retry.Failure) retry.Exhaustion {
	d := diagram.Diagnostic{Code: diagram.Code(f.Code), Message: f.Message}
	if d.Recoverable() {
		return retry.ExhaustionDegrade
	}
	return retry.ExhaustionFail
}
