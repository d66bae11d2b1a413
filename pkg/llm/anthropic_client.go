package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/logging"
)

const providerAnthropic = "anthropic"

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client       *anthropic.Client
	defaultModel string
	maxTokens    int
	logger       *zap.Logger
}

// AnthropicConfig holds configuration for creating an Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string // Optional, e.g. a proxy in front of api.anthropic.com
	Model     string // Default model when a request leaves Model empty
	MaxTokens int    // Default max tokens when a request leaves MaxTokens zero
}

// NewAnthropicClient creates a new Anthropic completion client.
func NewAnthropicClient(cfg *AnthropicConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicClient{
		client:       anthropic.NewClient(cfg.APIKey, opts...),
		defaultModel: cfg.Model,
		maxTokens:    maxTokens,
		logger:       logger.Named("llm-anthropic"),
	}, nil
}

// Complete sends a single user message with the system prompt and returns the first text block.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := float32(req.Temperature)
	prompt := req.UserPrompt

	c.logger.Debug("LLM request",
		zap.String("model", model),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("max_tokens", maxTokens),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		System:      req.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		classified := classifyAnthropicError(err, model)
		c.logger.Error("LLM request failed",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error_type", string(classified.Type)),
			zap.String("error", logging.SanitizeError(err)))
		return "", classified
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", &Error{Type: ErrorTypeUnknown, Message: "empty completion", Model: model, Provider: providerAnthropic}
	}

	c.logger.Info("LLM request completed",
		zap.String("model", model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// DefaultModel returns the configured default model.
func (c *AnthropicClient) DefaultModel() string {
	return c.defaultModel
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}

// classifyAnthropicError maps SDK errors onto the shared taxonomy, falling back to
// string classification for transport failures.
func classifyAnthropicError(err error, model string) *Error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		e := &Error{Cause: err, Model: model, Provider: providerAnthropic}
		switch {
		case apiErr.IsAuthenticationErr(), apiErr.IsPermissionErr():
			e.Type, e.Message = ErrorTypeAuth, "authentication failed"
		case apiErr.IsNotFoundErr():
			e.Type, e.Message = ErrorTypeModel, "model not found"
		case apiErr.IsRateLimitErr():
			e.Type, e.Message, e.Retryable = ErrorTypeTransient, "rate limited", true
		case apiErr.IsOverloadedErr(), apiErr.IsApiErr():
			e.Type, e.Message, e.Retryable = ErrorTypeTransient, "provider unavailable", true
		default:
			e.Type, e.Message = ErrorTypeUnknown, apiErr.Message
		}
		var reqErr *anthropic.RequestError
		if errors.As(err, &reqErr) {
			e.StatusCode = reqErr.StatusCode
		}
		return e
	}

	classified := ClassifyError(err)
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode > 0 {
		classified.StatusCode = reqErr.StatusCode
		if reqErr.StatusCode >= 500 || reqErr.StatusCode == 429 {
			classified.Type = ErrorTypeTransient
			classified.Retryable = true
		}
	}
	classified.Model = model
	classified.Provider = providerAnthropic
	return classified
}
