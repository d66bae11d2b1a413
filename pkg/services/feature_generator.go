package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/jsonutil"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/prompts"
)

// FeatureRequest describes one feature generation call.
type FeatureRequest struct {
	ProjectContext string
	// Count is the exact number of features to request. 0 asks for at least 8.
	Count int
}

// FeatureGenerator turns a project description into features.
type FeatureGenerator interface {
	// Generate returns features as "Title: description" strings.
	Generate(ctx context.Context, req FeatureRequest) ([]string, error)
	// GenerateSpecs returns the structured features behind Generate.
	GenerateSpecs(ctx context.Context, req FeatureRequest) ([]models.FeatureSpec, error)
}

// FeatureGeneratorConfig holds model settings for feature generation.
type FeatureGeneratorConfig struct {
	Model          string
	KnownGoodModel string
	MaxTokens      int
	Temperature    float64
}

type featureGenerator struct {
	repairer *JSONRepairer
	cfg      FeatureGeneratorConfig
	logger   *zap.Logger
}

// NewFeatureGenerator creates a feature generator that decodes output through repairer.
func NewFeatureGenerator(repairer *JSONRepairer, cfg FeatureGeneratorConfig, logger *zap.Logger) FeatureGenerator {
	return &featureGenerator{
		repairer: repairer,
		cfg:      cfg,
		logger:   logger.Named("feature-generator"),
	}
}

var _ FeatureGenerator = (*featureGenerator)(nil)

const featureShape = `{"features": [{"title": "...", "description": "...", "acceptanceCriteria": ["..."]}]}`

// featureResponse accepts {"features": [...]} or a bare array, where each
// item is either an object or a "Title: description" string.
type featureResponse struct {
	Features []models.FeatureSpec
}

func (r *featureResponse) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := jsonutil.FirstValue(v, "features", "items", "data")
		if !ok {
			return errors.New(`missing "features" array`)
		}
		arr, ok := list.([]any)
		if !ok {
			return errors.New(`"features" is not an array`)
		}
		items = arr
	default:
		return fmt.Errorf("expected object or array, got %T", raw)
	}

	r.Features = make([]models.FeatureSpec, 0, len(items))
	for _, item := range items {
		if spec, ok := featureSpecFromAny(item); ok {
			r.Features = append(r.Features, spec)
		}
	}
	return nil
}

func featureSpecFromAny(v any) (models.FeatureSpec, bool) {
	switch item := v.(type) {
	case string:
		title, desc := SplitFeatureLine(item)
		return models.FeatureSpec{Title: title, Description: desc}, title != ""
	case map[string]any:
		title, _ := jsonutil.FirstString(item, featureTitleKeys...)
		desc, _ := jsonutil.FirstString(item, featureDescriptionKeys...)
		criteria, _ := jsonutil.FirstValue(item, "acceptanceCriteria", "acceptance_criteria", "criteria")
		return models.FeatureSpec{
			Title:              title,
			Description:        desc,
			AcceptanceCriteria: jsonutil.StringSlice(criteria),
		}, title != ""
	}
	return models.FeatureSpec{}, false
}

// SplitFeatureLine splits "Title: description" on the first colon. Without a
// colon the whole line is the title.
func SplitFeatureLine(line string) (title, description string) {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, ":")
	if idx < 0 {
		return line, ""
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:])
}

func (g *featureGenerator) Generate(ctx context.Context, req FeatureRequest) ([]string, error) {
	specs, err := g.GenerateSpecs(ctx, req)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(specs))
	for i, s := range specs {
		lines[i] = s.Line()
	}
	return lines, nil
}

func (g *featureGenerator) GenerateSpecs(ctx context.Context, req FeatureRequest) ([]models.FeatureSpec, error) {
	specs, err := g.generateWithModel(ctx, req, g.cfg.Model)
	if err == nil {
		return specs, nil
	}

	if llm.IsModelNotFound(err) && g.cfg.KnownGoodModel != "" && g.cfg.KnownGoodModel != g.cfg.Model {
		g.logger.Warn("Model not found, retrying with known-good model",
			zap.String("model", g.cfg.Model),
			zap.String("fallback_model", g.cfg.KnownGoodModel))
		return g.generateWithModel(ctx, req, g.cfg.KnownGoodModel)
	}
	return nil, err
}

func (g *featureGenerator) generateWithModel(ctx context.Context, req FeatureRequest, model string) ([]models.FeatureSpec, error) {
	completion := llm.CompletionRequest{
		Model:        model,
		SystemPrompt: prompts.FeatureSystemPrompt,
		UserPrompt:   prompts.BuildFeaturePrompt(req.ProjectContext, req.Count),
		MaxTokens:    g.cfg.MaxTokens,
		Temperature:  g.cfg.Temperature,
	}

	resp, result, err := CompleteJSON(ctx, g.repairer, "features", completion, featureShape,
		func(r *featureResponse) error {
			if len(r.Features) == 0 {
				return errors.New("response contained no features")
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("feature generation failed: %w", err)
	}

	features := resp.Features
	if req.Count > 0 && len(features) > req.Count {
		features = features[:req.Count]
	}

	g.logger.Info("Generated features",
		zap.Int("count", len(features)),
		zap.String("model", result.Model),
		zap.Int("attempts", result.Attempts))
	return features, nil
}
