package retry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/logging"
)

const (
	DefaultMaxAttempts = 5
	DefaultEscalateAt  = 2
)

// ErrRepairExhausted is wrapped by every *ExhaustedError.
var ErrRepairExhausted = errors.New("repair attempts exhausted")

// Exhaustion decides what happens when every attempt produced invalid output.
type Exhaustion int

const (
	// ExhaustionFail returns an *ExhaustedError.
	ExhaustionFail Exhaustion = iota
	// ExhaustionDegrade returns the last output as a best-effort success.
	ExhaustionDegrade
)

func (e Exhaustion) String() string {
	if e == ExhaustionDegrade {
		return "degrade"
	}
	return "fail"
}

// Failure is a validation diagnostic for one attempt's output.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return f.Code + ": " + f.Message
}

// AttemptFailure records why a single attempt was rejected. Exactly one of
// Failure and Err is set.
type AttemptFailure struct {
	Attempt int
	Model   string
	Failure *Failure
	Err     error
}

// RepairConfig bounds the loop and chooses models per attempt.
type RepairConfig struct {
	MaxAttempts   int // 0 uses DefaultMaxAttempts
	PrimaryModel  string
	FallbackModel string // used from attempt index EscalateAt onward; empty disables escalation
	EscalateAt    int    // 0-based attempt index, 0 uses DefaultEscalateAt
	Backoff       *Config
	Logger        *zap.Logger
}

// RepairSpec supplies the generation and validation steps for one artifact.
type RepairSpec struct {
	// Name identifies the artifact in logs, e.g. "diagram:hld".
	Name     string
	Prompt   string
	Generate func(ctx context.Context, model, prompt string) (string, error)
	// Normalize is applied to raw output before validation. Optional.
	Normalize func(output string) string
	Validate  func(output string) *Failure
	// Augment builds the next prompt from the original prompt, the previous
	// raw output and its diagnostic.
	Augment func(original, lastOutput string, failure *Failure) string
	// OnExhaustion picks the policy from the final diagnostic. Nil means ExhaustionFail.
	OnExhaustion func(failure *Failure) Exhaustion
	// IsFatal marks generation errors that must not be retried, such as bad credentials.
	IsFatal func(err error) bool
}

// RepairResult is the accepted output and how it was obtained.
type RepairResult struct {
	Output   string
	Model    string
	Attempts int
	Degraded bool
	Failures []AttemptFailure
}

// ExhaustedError is returned when every attempt failed validation and the
// exhaustion policy is ExhaustionFail.
type ExhaustedError struct {
	Name     string
	Attempts int
	Last     *Failure
	Failures []AttemptFailure
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed validation, last: %v", e.Name, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrRepairExhausted
}

// modelFor returns the model for a 0-based attempt index.
func (c RepairConfig) modelFor(attempt int) string {
	if c.FallbackModel != "" && attempt >= c.EscalateAt {
		return c.FallbackModel
	}
	return c.PrimaryModel
}

func (c RepairConfig) withDefaults() RepairConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.EscalateAt <= 0 {
		c.EscalateAt = DefaultEscalateAt
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Repair runs generate, normalize and validate until the output passes or
// cfg.MaxAttempts attempts have been made. Each retry sends a prompt rebuilt by
// spec.Augment from the previous output and diagnostic.
//
// A fatal generation error aborts immediately. Other generation errors use up
// an attempt; if the last attempt ended in one, it is returned. When the last
// attempt failed validation, spec.OnExhaustion decides between a degraded
// success and an *ExhaustedError.
func Repair(ctx context.Context, cfg RepairConfig, spec RepairSpec) (*RepairResult, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With(zap.String("artifact", spec.Name))

	var (
		b           *backoff
		prompt      = spec.Prompt
		lastOutput  string
		lastModel   string
		lastFailure *Failure
		lastErr     error
		failures    []AttemptFailure
	)
	if cfg.Backoff != nil {
		b = newBackoff(cfg.Backoff)
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 && b != nil {
			if err := b.wait(ctx); err != nil {
				return nil, err
			}
		}

		model := cfg.modelFor(attempt)
		lastModel = model

		raw, err := spec.Generate(ctx, model, prompt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if spec.IsFatal != nil && spec.IsFatal(err) {
				logger.Error("Generation failed with non-recoverable error",
					zap.Int("attempt", attempt+1),
					zap.String("model", model),
					zap.String("error", logging.SanitizeError(err)))
				return nil, fmt.Errorf("%s attempt %d: %w", spec.Name, attempt+1, err)
			}
			logger.Warn("Generation attempt failed",
				zap.Int("attempt", attempt+1),
				zap.String("model", model),
				zap.String("error", logging.SanitizeError(err)))
			failures = append(failures, AttemptFailure{Attempt: attempt + 1, Model: model, Err: err})
			lastErr = err
			continue
		}
		lastErr = nil

		output := raw
		if spec.Normalize != nil {
			output = spec.Normalize(raw)
		}

		failure := spec.Validate(output)
		if failure == nil {
			if attempt > 0 {
				logger.Info("Output accepted after repair",
					zap.Int("attempts", attempt+1),
					zap.String("model", model))
			}
			return &RepairResult{
				Output:   output,
				Model:    model,
				Attempts: attempt + 1,
				Failures: failures,
			}, nil
		}

		logger.Warn("Output failed validation",
			zap.Int("attempt", attempt+1),
			zap.String("model", model),
			zap.String("code", failure.Code),
			zap.String("diagnostic", failure.Message),
			zap.String("output", logging.SanitizeOutput(output)))

		failures = append(failures, AttemptFailure{Attempt: attempt + 1, Model: model, Failure: failure})
		lastOutput = output
		lastFailure = failure
		if spec.Augment != nil {
			prompt = spec.Augment(spec.Prompt, raw, failure)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%s failed after %d attempts: %w", spec.Name, cfg.MaxAttempts, lastErr)
	}

	policy := ExhaustionFail
	if spec.OnExhaustion != nil {
		policy = spec.OnExhaustion(lastFailure)
	}

	logger.Warn("Repair attempts exhausted",
		zap.Int("attempts", cfg.MaxAttempts),
		zap.String("policy", policy.String()),
		zap.String("code", lastFailure.Code))

	if policy == ExhaustionDegrade {
		return &RepairResult{
			Output:   lastOutput,
			Model:    lastModel,
			Attempts: cfg.MaxAttempts,
			Degraded: true,
			Failures: failures,
		}, nil
	}

	return nil, &ExhaustedError{
		Name:     spec.Name,
		Attempts: cfg.MaxAttempts,
		Last:     lastFailure,
		Failures: failures,
	}
}
