package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/jsonutil"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/logging"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/prompts"
	"github.com/protoforge/protoforge/pkg/retry"
)

// Key spellings accepted for feature records and generated stories.
var (
	featureIDKeys          = []string{"id", "feature_id", "featureId", "key"}
	featureTitleKeys       = []string{"title", "name", "feature_title", "featureTitle", "feature"}
	featureDescriptionKeys = []string{"description", "desc", "summary", "details"}

	storyFeatureIDKeys    = []string{"featureId", "feature_id", "featureID"}
	storyFeatureTitleKeys = []string{"featureTitle", "feature_title", "feature", "featureName", "feature_name"}
	storyTextKeys         = []string{"userStory", "user_story", "story", "title", "description"}
	storyCriteriaKeys     = []string{"acceptanceCriteria", "acceptance_criteria", "criteria"}
	storyNotesKeys        = []string{"implementationNotes", "implementation_notes", "notes"}
)

// NormalizeFeatureRecords maps loosely keyed feature objects onto FeatureRecord.
// Ids may be strings or numbers. A missing id becomes "feature-<idx>" and a
// repeated id becomes "<id>-<idx>", so every record has a unique id. Records
// without a title are skipped.
func NormalizeFeatureRecords(raw []map[string]any) []models.FeatureRecord {
	records := make([]models.FeatureRecord, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for idx, item := range raw {
		title, ok := jsonutil.FirstString(item, featureTitleKeys...)
		if !ok {
			continue
		}
		desc, _ := jsonutil.FirstString(item, featureDescriptionKeys...)

		id := ""
		if v, ok := jsonutil.FirstValue(item, featureIDKeys...); ok {
			if data, err := json.Marshal(v); err == nil {
				id = strings.TrimSpace(jsonutil.FlexibleStringValue(data))
			}
		}
		if id == "" {
			id = "feature-" + strconv.Itoa(idx)
		}
		if seen[id] {
			base := id
			for n := idx; seen[id]; n++ {
				id = base + "-" + strconv.Itoa(n)
			}
		}
		seen[id] = true

		records = append(records, models.FeatureRecord{ID: id, Title: title, Description: desc})
	}
	return records
}

// FeatureRecordsFromFeatures converts persisted features into records keyed by their ids.
func FeatureRecordsFromFeatures(features []*models.Feature) []models.FeatureRecord {
	records := make([]models.FeatureRecord, len(features))
	for i, f := range features {
		records[i] = models.FeatureRecord{ID: f.ID.String(), Title: f.Title, Description: f.Description}
	}
	return records
}

// StoryRequest describes one story generation call.
type StoryRequest struct {
	ProjectContext string
	Features       []models.FeatureRecord
}

// StoryResult holds generated stories. Every feature has at least one story
// in Stories; features the model skipped get a placeholder. Stories that
// could not be matched to any feature are returned in Unmatched, never
// attributed to an arbitrary feature.
type StoryResult struct {
	Stories      []models.StorySpec
	Unmatched    []models.StorySpec
	Placeholders int
	Model        string
}

// StoryGenerator writes user stories for a set of features.
type StoryGenerator interface {
	Generate(ctx context.Context, req StoryRequest) (*StoryResult, error)
}

// StoryGeneratorConfig holds model settings for story generation.
type StoryGeneratorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Retry governs transient transport failures. Nil uses retry.DefaultConfig.
	Retry *retry.Config
}

type storyGenerator struct {
	client llm.CompletionClient
	cfg    StoryGeneratorConfig
	logger *zap.Logger
}

// NewStoryGenerator creates a story generator.
func NewStoryGenerator(client llm.CompletionClient, cfg StoryGeneratorConfig, logger *zap.Logger) StoryGenerator {
	return &storyGenerator{
		client: client,
		cfg:    cfg,
		logger: logger.Named("story-generator"),
	}
}

var _ StoryGenerator = (*storyGenerator)(nil)

func (g *storyGenerator) Generate(ctx context.Context, req StoryRequest) (*StoryResult, error) {
	if len(req.Features) == 0 {
		return &StoryResult{Model: g.cfg.Model}, nil
	}

	promptFeatures := make([]prompts.StoryFeature, len(req.Features))
	for i, f := range req.Features {
		promptFeatures[i] = prompts.StoryFeature{ID: f.ID, Title: f.Title, Description: f.Description}
	}

	completion := llm.CompletionRequest{
		Model:        g.cfg.Model,
		SystemPrompt: prompts.StorySystemPrompt,
		UserPrompt:   prompts.BuildStoryPrompt(req.ProjectContext, promptFeatures),
		MaxTokens:    g.cfg.MaxTokens,
		Temperature:  g.cfg.Temperature,
	}

	ctx = llm.WithContext(ctx, map[string]any{llm.ContextAgent: "story"})

	var text string
	err := retry.DoIfRetryable(ctx, g.cfg.Retry, func() error {
		var err error
		text, err = g.client.Complete(ctx, completion)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("story generation failed: %w", err)
	}

	payload := llm.Coerce(text, "stories")
	if llm.IsDegraded(payload, "stories") {
		g.logger.Warn("Story output was not JSON, using placeholders",
			zap.String("output", logging.SanitizeOutput(text)))
	}

	result := MatchStories(req.Features, payload["stories"])
	result.Model = g.cfg.Model

	for _, s := range result.Unmatched {
		g.logger.Warn("Dropping story that matches no feature",
			zap.String("feature_id", s.FeatureID),
			zap.String("feature_title", s.FeatureTitle))
	}
	g.logger.Info("Generated stories",
		zap.Int("features", len(req.Features)),
		zap.Int("stories", len(result.Stories)),
		zap.Int("placeholders", result.Placeholders),
		zap.Int("unmatched", len(result.Unmatched)))

	return result, nil
}

// MatchStories attributes decoded stories to features, first by id and then by
// case-insensitive title, and fills every uncovered feature with a placeholder.
func MatchStories(features []models.FeatureRecord, rawStories any) *StoryResult {
	byID := make(map[string]models.FeatureRecord, len(features))
	byTitle := make(map[string]models.FeatureRecord, len(features))
	for _, f := range features {
		byID[f.ID] = f
		key := strings.ToLower(strings.TrimSpace(f.Title))
		if _, exists := byTitle[key]; !exists {
			byTitle[key] = f
		}
	}

	result := &StoryResult{}
	covered := make(map[string]bool, len(features))

	items, _ := rawStories.([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		story, ok := storyFromMap(obj)
		if !ok {
			continue
		}

		feature, matched := byID[story.FeatureID]
		if !matched {
			feature, matched = byTitle[strings.ToLower(story.FeatureTitle)]
		}
		if !matched {
			result.Unmatched = append(result.Unmatched, story)
			continue
		}

		story.FeatureID = feature.ID
		story.FeatureTitle = feature.Title
		covered[feature.ID] = true
		result.Stories = append(result.Stories, story)
	}

	for _, f := range features {
		if covered[f.ID] {
			continue
		}
		result.Stories = append(result.Stories, PlaceholderStory(f))
		result.Placeholders++
	}
	return result
}

func storyFromMap(obj map[string]any) (models.StorySpec, bool) {
	text, ok := jsonutil.FirstString(obj, storyTextKeys...)
	if !ok {
		return models.StorySpec{}, false
	}

	story := models.StorySpec{UserStory: text}
	if v, ok := jsonutil.FirstValue(obj, storyFeatureIDKeys...); ok {
		story.FeatureID = strings.TrimSpace(jsonutil.StringValue(v))
	}
	story.FeatureTitle, _ = jsonutil.FirstString(obj, storyFeatureTitleKeys...)
	if v, ok := jsonutil.FirstValue(obj, storyCriteriaKeys...); ok {
		story.AcceptanceCriteria = jsonutil.StringSlice(v)
	}
	if v, ok := jsonutil.FirstValue(obj, storyNotesKeys...); ok {
		story.ImplementationNotes = jsonutil.StringSlice(v)
	}
	return story, true
}

// PlaceholderStory returns the deterministic stand-in story for a feature the
// model did not cover.
func PlaceholderStory(f models.FeatureRecord) models.StorySpec {
	return models.StorySpec{
		FeatureID:    f.ID,
		FeatureTitle: f.Title,
		UserStory:    fmt.Sprintf("As a user, I want %s, so that I can get value from this feature.", strings.ToLower(f.Title)),
		AcceptanceCriteria: []string{
			fmt.Sprintf("%s is available to users", f.Title),
		},
		ImplementationNotes: []string{"Placeholder generated because no story was returned for this feature."},
		Placeholder:         true,
	}
}
