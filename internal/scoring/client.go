package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

var tracer = otel.Tracer("github.com/godilite/qa-review-engine/internal/scoring")

var (
	ErrEmptyResponse   = errors.New("empty model response")
	ErrEmptyTranscript = errors.New("empty transcript")
)

// Client scores transcripts with a chat model that answers in JSON.
type Client struct {
	llm      llms.Model
	limiter  *rate.Limiter
	defaults models.ModelSettings
	logger   *zap.Logger
}

type Option func(*Client)

// WithRateLimit caps outgoing model calls. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithDefaults sets the settings used where a review's snapshot leaves a
// field zero.
func WithDefaults(s models.ModelSettings) Option {
	return func(c *Client) {
		c.defaults = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps an existing model.
func New(llm llms.Model, opts ...Option) *Client {
	if llm == nil {
		panic("llm must not be nil")
	}
	c := &Client{
		llm:    llm,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOpenAI builds a client against an OpenAI compatible endpoint. An empty
// baseURL uses the provider default.
func NewOpenAI(apiKey, baseURL, model string, opts ...Option) (*Client, error) {
	llmOpts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithResponseFormat(&openai.ResponseFormat{
			Type: "json_object",
		}),
	}
	if baseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return New(llm, opts...), nil
}

// Score asks the model for one review's scores. Transport failures are
// returned as errors; a reply that cannot be used comes back as a result
// with Error set.
func (c *Client) Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
	ctx, span := tracer.Start(ctx, "Client.Score",
		trace.WithAttributes(attribute.String("review.type", string(req.Type))))
	defer span.End()

	if strings.TrimSpace(req.Transcript) == "" {
		return models.ScoreResult{Error: ErrEmptyTranscript.Error()}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limiter")
			return models.ScoreResult{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	settings := c.settings(req.Settings)
	span.SetAttributes(attribute.String("llm.model", settings.Model))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt(req.Type, req.Criteria)),
		llms.TextParts(llms.ChatMessageTypeHuman, transcriptPrompt(req.Transcript)),
	}
	callOpts := []llms.CallOption{
		llms.WithTemperature(settings.Temperature),
	}
	if settings.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(settings.MaxTokens))
	}
	if settings.Model != "" {
		callOpts = append(callOpts, llms.WithModel(settings.Model))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content")
		return models.ScoreResult{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		span.SetStatus(codes.Error, "empty response")
		return models.ScoreResult{}, ErrEmptyResponse
	}

	result, err := parseResult(resp.Choices[0].Content)
	if err != nil {
		c.logger.Warn("unusable model reply",
			zap.String("model", settings.Model),
			zap.Error(err))
		return models.ScoreResult{Error: err.Error()}, nil
	}
	return result, nil
}

func (c *Client) settings(s models.ModelSettings) models.ModelSettings {
	if s.Model == "" {
		s.Model = c.defaults.Model
	}
	if s.Temperature == 0 {
		s.Temperature = c.defaults.Temperature
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = c.defaults.MaxTokens
	}
	return s
}

// parseResult decodes the model reply, tolerating a markdown code fence
// around the JSON object.
func parseResult(content string) (models.ScoreResult, error) {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var result models.ScoreResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return models.ScoreResult{}, fmt.Errorf("decode model reply: %w", err)
	}
	result.SentimentLabel = models.SentimentLabel(strings.ToLower(strings.TrimSpace(string(result.SentimentLabel))))
	return result, nil
}
