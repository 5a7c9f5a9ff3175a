package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client generates text for a task
type Client interface {
	// Generate returns free text such as a Markdown resume
	Generate(ctx context.Context, prompt string, task Task) (string, error)
	// GenerateJSON asks for a JSON response and strips any code fence
	GenerateJSON(ctx context.Context, prompt string, task Task) (string, error)
	// Model reports the model serving task
	Model(task Task) string
	Close() error
}

// retryBaseDelay is the first backoff step; it doubles per attempt
var retryBaseDelay = 2 * time.Second

// GeminiClient implements Client with the Gemini API
type GeminiClient struct {
	client *genai.Client
	config *Config
	logger *zap.Logger
}

var _ Client = (*GeminiClient)(nil)

// NewClient creates a Gemini client. A nil config uses DefaultConfig.
func NewClient(ctx context.Context, config *Config, apiKey string, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LLM config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, config: config, logger: logger}, nil
}

// Generate implements Client
func (c *GeminiClient) Generate(ctx context.Context, prompt string, task Task) (string, error) {
	return c.generate(ctx, prompt, task, "")
}

// GenerateJSON implements Client
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, task Task) (string, error) {
	text, err := c.generate(ctx, prompt, task, "application/json")
	if err != nil {
		return "", err
	}
	return StripFence(text), nil
}

// Model implements Client
func (c *GeminiClient) Model(task Task) string {
	return c.config.Model(task)
}

// Close releases the underlying connection
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, task Task, mimeType string) (string, error) {
	modelName := c.config.Model(task)
	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	if mimeType != "" {
		model.ResponseMIMEType = mimeType
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			c.logger.Warn("retrying generation",
				zap.String("task", string(task)),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		start := time.Now()
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = fmt.Errorf("failed to generate %s with %s: %w", task, modelName, err)
			if !retryable(err) {
				return "", lastErr
			}
			continue
		}

		fields := []zap.Field{
			zap.String("task", string(task)),
			zap.String("model", modelName),
			zap.Duration("duration", time.Since(start)),
		}
		if resp.UsageMetadata != nil {
			fields = append(fields, zap.Int32("tokens", resp.UsageMetadata.TotalTokenCount))
		}
		c.logger.Debug("generated content", fields...)
		return responseText(resp)
	}
	return "", lastErr
}

// retryable reports whether err is a rate limit or a transient server error
func retryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("response blocked by safety filters")
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("no content in response")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return sb.String(), nil
}
