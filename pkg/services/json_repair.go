package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/prompts"
	"github.com/protoforge/protoforge/pkg/retry"
)

// JSONRepairer runs a completion whose output must decode into a Go value.
// The first attempt uses the caller's model and prompt; malformed output is
// sent to the repair model with the parse error until it decodes or attempts
// run out. Exhaustion is always an error.
type JSONRepairer struct {
	client      llm.CompletionClient
	repairModel string
	maxAttempts int
	backoff     *retry.Config
	logger      *zap.Logger
}

// NewJSONRepairer creates a repairer. An empty repairModel repairs with the
// caller's model.
func NewJSONRepairer(client llm.CompletionClient, repairModel string, maxAttempts int, backoff *retry.Config, logger *zap.Logger) *JSONRepairer {
	return &JSONRepairer{
		client:      client,
		repairModel: repairModel,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger.Named("json-repair"),
	}
}

// CompleteJSON sends req and decodes the response into T. check, when set,
// rejects output that decodes but has the wrong structure.
func CompleteJSON[T any](
	ctx context.Context,
	r *JSONRepairer,
	name string,
	req llm.CompletionRequest,
	shape string,
	check func(*T) error,
) (*T, *retry.RepairResult, error) {
	var decoded *T

	attempt := 0
	spec := retry.RepairSpec{
		Name:   name,
		Prompt: req.UserPrompt,
		Generate: func(ctx context.Context, model, prompt string) (string, error) {
			ctx = llm.WithAttempt(ctx, name, attempt)
			attempt++
			call := req
			call.Model = model
			call.UserPrompt = prompt
			if prompt == req.UserPrompt {
				call.Model = req.Model
			} else {
				call.SystemPrompt = prompts.JSONRepairSystemPrompt
				call.Temperature = 0
			}
			return r.client.Complete(ctx, call)
		},
		Validate: func(output string) *retry.Failure {
			v, err := llm.ParseJSONResponse[T](output)
			if err != nil {
				return &retry.Failure{Code: "invalid_json", Message: err.Error()}
			}
			if check != nil {
				if err := check(&v); err != nil {
					return &retry.Failure{Code: "unexpected_structure", Message: err.Error()}
				}
			}
			decoded = &v
			return nil
		},
		Augment: func(_, lastOutput string, f *retry.Failure) string {
			return prompts.BuildJSONRepairPrompt(shape, lastOutput, f.Message)
		},
		OnExhaustion: func(*retry.Failure) retry.Exhaustion { return retry.ExhaustionFail },
		IsFatal: func(err error) bool {
			return llm.IsAuth(err) || llm.IsModelNotFound(err)
		},
	}

	repairModel := r.repairModel
	if repairModel == "" {
		repairModel = req.Model
	}

	result, err := retry.Repair(ctx, retry.RepairConfig{
		MaxAttempts:   r.maxAttempts,
		PrimaryModel:  req.Model,
		FallbackModel: repairModel,
		EscalateAt:    1,
		Backoff:       r.backoff,
		Logger:        r.logger,
	}, spec)
	if err != nil {
		return nil, nil, err
	}
	if decoded == nil {
		return nil, nil, fmt.Errorf("%s: accepted output was not decoded", name)
	}
	return decoded, result, nil
}
