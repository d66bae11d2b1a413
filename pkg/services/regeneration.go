package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/jsonutil"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/prompts"
)

var (
	// ErrUnknownItemType is returned for item types the dispatcher has no branch for.
	ErrUnknownItemType = errors.New("unknown item type")
	// ErrMissingOriginalContent is returned when the stored original content is
	// absent or lacks the fields the item type needs.
	ErrMissingOriginalContent = errors.New("original content is required for regeneration")
)

// Original-content key spellings, camelCase first.
var (
	contentTitleKeys        = []string{"title", "name"}
	contentDescriptionKeys  = []string{"description", "desc", "summary"}
	contentCriteriaKeys     = []string{"acceptanceCriteria", "acceptance_criteria"}
	contentFeatureTitleKeys = []string{"featureTitle", "feature_title", "feature"}
	contentFeatureIDKeys    = []string{"featureId", "feature_id"}
	contentStoryKeys        = []string{"userStory", "user_story", "story"}
	contentDiagramTypeKeys  = []string{"diagramType", "diagram_type", "type"}
	contentFeaturesKeys     = []string{"features"}
	contentStoriesKeys      = []string{"stories", "userStories", "user_stories"}
)

// RegenerationRequest is the input for regenerating one item.
type RegenerationRequest struct {
	ItemID          string
	ItemType        models.ItemType
	Feedback        string
	OriginalContent map[string]any
	ProjectContext  string
}

// RegenerationDispatcher routes regeneration to the generator for the item type.
type RegenerationDispatcher interface {
	RegenerateContent(ctx context.Context, req RegenerationRequest) (map[string]any, error)
}

type regenerationDispatcher struct {
	features FeatureGenerator
	stories  StoryGenerator
	diagrams DiagramGenerator
	logger   *zap.Logger
}

// NewRegenerationDispatcher creates a dispatcher over the three generators.
func NewRegenerationDispatcher(features FeatureGenerator, stories StoryGenerator, diagrams DiagramGenerator, logger *zap.Logger) RegenerationDispatcher {
	return &regenerationDispatcher{
		features: features,
		stories:  stories,
		diagrams: diagrams,
		logger:   logger.Named("regeneration"),
	}
}

var _ RegenerationDispatcher = (*regenerationDispatcher)(nil)

func (d *regenerationDispatcher) RegenerateContent(ctx context.Context, req RegenerationRequest) (map[string]any, error) {
	switch req.ItemType {
	case models.ItemTypeFeature:
		return d.regenerateFeature(ctx, req)
	case models.ItemTypeStory:
		return d.regenerateStory(ctx, req)
	case models.ItemTypeVisualization:
		return d.regenerateVisualization(ctx, req)
	default:
		d.logger.Error("Regeneration requested for unknown item type",
			zap.String("item_id", req.ItemID),
			zap.String("item_type", string(req.ItemType)))
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, req.ItemType)
	}
}

// regenerateFeature keeps the original acceptance criteria; feedback only
// changes the title and description.
func (d *regenerationDispatcher) regenerateFeature(ctx context.Context, req RegenerationRequest) (map[string]any, error) {
	if len(req.OriginalContent) == 0 {
		return nil, ErrMissingOriginalContent
	}

	title, _ := jsonutil.FirstString(req.OriginalContent, contentTitleKeys...)
	desc, _ := jsonutil.FirstString(req.OriginalContent, contentDescriptionKeys...)
	summary := models.FeatureSpec{Title: title, Description: desc}.Line()

	lines, err := d.features.Generate(ctx, FeatureRequest{
		ProjectContext: prompts.WithFeedback(req.ProjectContext, req.Feedback, summary),
		Count:          1,
	})
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("feature generator returned no features")
	}

	newTitle, newDesc := SplitFeatureLine(lines[0])
	criteria := []string{}
	if v, ok := jsonutil.FirstValue(req.OriginalContent, contentCriteriaKeys...); ok {
		criteria = jsonutil.StringSlice(v)
	}

	return map[string]any{
		"title":              newTitle,
		"description":        newDesc,
		"acceptanceCriteria": criteria,
	}, nil
}

func (d *regenerationDispatcher) regenerateStory(ctx context.Context, req RegenerationRequest) (map[string]any, error) {
	if len(req.OriginalContent) == 0 {
		return nil, ErrMissingOriginalContent
	}

	featureTitle, ok := jsonutil.FirstString(req.OriginalContent, contentFeatureTitleKeys...)
	if !ok {
		return nil, fmt.Errorf("%w: story has no feature title", ErrMissingOriginalContent)
	}
	featureID, ok := jsonutil.FirstString(req.OriginalContent, contentFeatureIDKeys...)
	if !ok {
		featureID = "feature-0"
	}
	original, _ := jsonutil.FirstString(req.OriginalContent, contentStoryKeys...)

	feature := models.FeatureRecord{ID: featureID, Title: featureTitle}
	result, err := d.stories.Generate(ctx, StoryRequest{
		ProjectContext: prompts.WithFeedback(req.ProjectContext, req.Feedback, original),
		Features:       []models.FeatureRecord{feature},
	})
	if err != nil {
		return nil, err
	}

	s, ok := singleFeatureStory(result, feature)
	if !ok {
		return nil, errors.New("story generator returned no story for the feature")
	}
	return map[string]any{
		"featureId":           s.FeatureID,
		"featureTitle":        s.FeatureTitle,
		"userStory":           s.UserStory,
		"acceptanceCriteria":  nonNil(s.AcceptanceCriteria),
		"implementationNotes": nonNil(s.ImplementationNotes),
	}, nil
}

// singleFeatureStory picks the story for a one-feature request. Unmatched
// stories are attributed to that feature; placeholders never are returned.
func singleFeatureStory(result *StoryResult, feature models.FeatureRecord) (models.StorySpec, bool) {
	for _, s := range result.Stories {
		if !s.Placeholder {
			return s, true
		}
	}
	if len(result.Unmatched) > 0 {
		s := result.Unmatched[0]
		s.FeatureID = feature.ID
		s.FeatureTitle = feature.Title
		return s, true
	}
	return models.StorySpec{}, false
}

func (d *regenerationDispatcher) regenerateVisualization(ctx context.Context, req RegenerationRequest) (map[string]any, error) {
	features := featureRecordsFromContent(req.OriginalContent)
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: visualization needs features", ErrMissingOriginalContent)
	}

	var stories []models.StorySpec
	if v, ok := jsonutil.FirstValue(req.OriginalContent, contentStoriesKeys...); ok {
		items, _ := v.([]any)
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				if s, ok := storyFromMap(obj); ok {
					stories = append(stories, s)
				}
			}
		}
	}

	typeName, _ := jsonutil.FirstString(req.OriginalContent, contentDiagramTypeKeys...)
	diagramType := models.ParseDiagramType(strings.ToLower(typeName))

	result, err := d.diagrams.Generate(ctx, DiagramRequest{
		Type:           diagramType,
		ProjectContext: req.ProjectContext,
		Features:       features,
		Stories:        stories,
		Feedback:       req.Feedback,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"mermaid":     result.Mermaid,
		"diagramType": string(diagramType),
		"summary": fmt.Sprintf("Regenerated %s diagram covering %d features and %d stories",
			diagramType, len(features), len(stories)),
		"diagrams": map[string]any{
			"mermaid": result.Mermaid,
			"dot":     "",
		},
	}, nil
}

// featureRecordsFromContent accepts features stored either as objects or as
// "Title: description" strings.
func featureRecordsFromContent(content map[string]any) []models.FeatureRecord {
	v, ok := jsonutil.FirstValue(content, contentFeaturesKeys...)
	if !ok {
		return nil
	}
	items, _ := v.([]any)

	raw := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch f := item.(type) {
		case map[string]any:
			raw = append(raw, f)
		case string:
			title, desc := SplitFeatureLine(f)
			raw = append(raw, map[string]any{"title": title, "description": desc})
		}
	}
	return NormalizeFeatureRecords(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
