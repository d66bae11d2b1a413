// test-diagram-repair runs the diagram and feature agents against one or more
// models and reports how many repair attempts each needed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/config"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/services"
)

const sampleContext = `Recipe box: a web app where home cooks save recipes, plan weekly meals
and generate a shopping list from the plan.`

var sampleFeatures = []models.FeatureRecord{
	{ID: "f1", Title: "Recipe library", Description: "Save, tag and search personal recipes"},
	{ID: "f2", Title: "Meal planner", Description: "Drag recipes onto a weekly calendar"},
	{ID: "f3", Title: "Shopping list", Description: "Merge ingredients from planned meals into one list"},
}

var sampleStories = []models.StorySpec{
	{FeatureID: "f1", FeatureTitle: "Recipe library", UserStory: "As a cook, I want to tag recipes so that I can find them later."},
	{FeatureID: "f2", FeatureTitle: "Meal planner", UserStory: "As a planner, I want to drag recipes onto days so that my week is organized."},
	{FeatureID: "f3", FeatureTitle: "Shopping list", UserStory: "As a shopper, I want one merged list so that I buy everything in one trip."},
}

// TestResult is the outcome of one model/artifact run.
type TestResult struct {
	Model      string
	Artifact   string
	Success    bool
	Degraded   bool
	Attempts   int
	Error      string
	DurationMs int64
}

func main() {
	models := flag.String("models", "", "Comma-separated model ids (default: configured model)")
	types := flag.String("types", "hld,lld,database", "Comma-separated diagram types (hld, lld, database)")
	timeout := flag.Duration("timeout", 120*time.Second, "Timeout for each agent call")
	flag.Parse()

	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := logConfig.Build()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load("script")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	client, err := llm.NewCompletionClient(&cfg.LLM, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}

	modelList := splitList(*models)
	if len(modelList) == 0 {
		modelList = []string{cfg.LLM.EffectiveModel()}
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("Diagram Repair Test")
	fmt.Println(strings.Repeat("=", 80))

	var results []TestResult
	for _, model := range modelList {
		fmt.Printf("\n%s\nTesting: %s\n%s\n", strings.Repeat("-", 80), model, strings.Repeat("-", 80))

		diagrams := services.NewDiagramGenerator(client, services.DiagramGeneratorConfig{
			Model:         model,
			FallbackModel: cfg.LLM.FallbackModel,
			MaxAttempts:   cfg.Generation.MaxRetries,
			EscalateAt:    cfg.Generation.EscalateAt,
			MaxTokens:     cfg.LLM.MaxTokens,
			Temperature:   cfg.LLM.Temperature,
		}, logger)
		for _, diagramType := range splitList(*types) {
			result := testDiagram(diagrams, model, diagramType, *timeout)
			printResult(result)
			results = append(results, result)
		}

		repairer := services.NewJSONRepairer(client, cfg.LLM.RepairModel, cfg.Generation.MaxRetries, nil, logger)
		features := services.NewFeatureGenerator(repairer, services.FeatureGeneratorConfig{
			Model:          model,
			KnownGoodModel: cfg.LLM.KnownGoodModel,
			MaxTokens:      cfg.LLM.MaxTokens,
			Temperature:    cfg.LLM.Temperature,
		}, logger)
		result := testFeatures(features, model, *timeout)
		printResult(result)
		results = append(results, result)
	}

	fmt.Printf("\n%s\nSUMMARY\n%s\n\n", strings.Repeat("=", 80), strings.Repeat("=", 80))
	allPassed := true
	for _, r := range results {
		status := "✓ PASS"
		if !r.Success {
			status = "✗ FAIL"
			allPassed = false
		} else if r.Degraded {
			status = "~ DEGRADED"
		}
		fmt.Printf("%s: %s %s (attempts=%d, %dms)\n", status, r.Model, r.Artifact, r.Attempts, r.DurationMs)
		if r.Error != "" {
			fmt.Printf("  Error: %s\n", r.Error)
		}
	}

	if !allPassed {
		fmt.Println("\nSome runs failed.")
		os.Exit(1)
	}
	fmt.Println("\nAll runs passed!")
}

func testDiagram(gen services.DiagramGenerator, model, diagramType string, timeout time.Duration) TestResult {
	result := TestResult{Model: model, Artifact: "diagram:" + diagramType}
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := gen.Generate(ctx, services.DiagramRequest{
		Type:           models.ParseDiagramType(diagramType),
		ProjectContext: sampleContext,
		Features:       sampleFeatures,
		Stories:        sampleStories,
	})
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Degraded = res.Degraded
	result.Attempts = res.Attempts
	fmt.Println("\n--- Mermaid (first 400 chars) ---")
	fmt.Println(truncateString(res.Mermaid, 400))
	return result
}

func testFeatures(gen services.FeatureGenerator, model string, timeout time.Duration) TestResult {
	result := TestResult{Model: model, Artifact: "features"}
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	lines, err := gen.Generate(ctx, services.FeatureRequest{ProjectContext: sampleContext, Count: 5})
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = len(lines) == 5
	result.Attempts = 1
	if !result.Success {
		result.Error = fmt.Sprintf("expected 5 features, got %d", len(lines))
	}
	for _, line := range lines {
		fmt.Printf("  - %s\n", truncateString(line, 100))
	}
	return result
}

func printResult(result TestResult) {
	fmt.Printf("\n%s: ", result.Artifact)
	switch {
	case !result.Success:
		fmt.Printf("✗ FAIL %s\n", result.Error)
	case result.Degraded:
		fmt.Printf("~ DEGRADED after %d attempts\n", result.Attempts)
	default:
		fmt.Printf("✓ PASS in %d attempts\n", result.Attempts)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
