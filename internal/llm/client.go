package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"PolicyRadar/internal/ports"
)

const systemPrompt = "你是一个专业的金融政策分析师，擅长分析政策新闻对股票市场的影响。请根据政策内容分析相关的行业、板块和个股。"

// Options configures a completion client against any OpenAI-compatible
// endpoint (the production deployment points at SiliconFlow).
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	CallTimeout time.Duration
}

// Client performs completion calls gated by a shared RateLimiter and
// retried per the injected policy.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	callTimeout time.Duration

	limiter *RateLimiter
	retry   RetryPolicy
	logger  *slog.Logger
}

var _ ports.CompletionClient = (*Client)(nil)

// NewClient wires the OpenAI-compatible API client with limiter and retry.
func NewClient(opts Options, limiter *RateLimiter, retry RetryPolicy, logger *slog.Logger) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		callTimeout: timeout,
		limiter:     limiter,
		retry:       retry,
		logger:      logger,
	}
}

// Complete sends the prompt and returns the model's text. The rate limiter
// is consulted before every attempt so retries cannot stampede the API.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var content string

	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			c.log("completion call failed", "error", err)
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion response has no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return content, nil
}

// IsTransient classifies call errors: 429 and 5xx responses, timeouts and
// connection failures are worth retrying; other 4xx responses and caller
// cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Anything else reaching here is a transport-level failure.
	return true
}

func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}

func (c *Client) log(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
