package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/safa0/google-rangerz/internal/domain"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config содержит конфигурацию LLM-клиента.
type Config struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

// UsageInfo информация об использовании токенов одним запросом.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool // посчитано через tiktoken, а не взято из ответа API
}

// UsageRecorder получает статистику по каждому успешному запросу.
type UsageRecorder func(model string, usage UsageInfo)

// ErrEmptyCompletion - модель вернула пустой ответ.
var ErrEmptyCompletion = errors.New("empty completion")

// OpenAITextGenerator генерирует главы через OpenAI-совместимый API (OpenAI, OpenRouter).
type OpenAITextGenerator struct {
	client   *openai.Client
	cfg      Config
	logger   *zap.Logger
	recorder UsageRecorder
}

// NewOpenAITextGenerator создает генератор текста поверх go-openai.
func NewOpenAITextGenerator(cfg Config, logger *zap.Logger, recorder UsageRecorder) (*OpenAITextGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("не указан API ключ для OpenAI-совместимого API")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = domain.DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	logger.Info("OpenAI text client created",
		zap.String("base_url", config.BaseURL),
		zap.String("model", cfg.ModelName),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &OpenAITextGenerator{
		client:   openai.NewClientWithConfig(config),
		cfg:      cfg,
		logger:   logger.Named("OpenAITextGenerator"),
		recorder: recorder,
	}, nil
}

// InitializeStory просит модель придумать название и замысел истории.
func (g *OpenAITextGenerator) InitializeStory(ctx context.Context, req domain.StoryInitRequest) (domain.StoryInit, error) {
	content, err := g.complete(ctx, "initialize_story", initSystemPrompt, RenderInitPrompt(req))
	if err != nil {
		return domain.StoryInit{}, err
	}
	return parseStoryInit(content)
}

// ContinueStory возвращает сырой текст главы в разметке <img>/<txt>/<opt>/<exe>.
func (g *OpenAITextGenerator) ContinueStory(ctx context.Context, req domain.GenerationRequest) (string, error) {
	return g.complete(ctx, "continue_story", continueSystemPrompt, RenderContinuePrompt(req))
}

func (g *OpenAITextGenerator) complete(ctx context.Context, op, systemPrompt, userInput string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userInput},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	duration := time.Since(start)
	if err != nil {
		g.logger.Error("AI API request failed", zap.String("op", op), zap.Duration("duration", duration), zap.Error(err))
		return "", &domain.TextServiceError{Op: op, Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		g.logger.Warn("AI API returned empty response", zap.String("op", op), zap.Duration("duration", duration))
		return "", &domain.TextServiceError{Op: op, Err: ErrEmptyCompletion}
	}

	content := resp.Choices[0].Message.Content
	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = EstimateUsage(g.cfg.ModelName, systemPrompt+userInput, content)
	}
	if g.recorder != nil {
		g.recorder(g.cfg.ModelName, usage)
	}
	g.logger.Debug("AI API response received",
		zap.String("op", op),
		zap.Duration("duration", duration),
		zap.Int("length", len(content)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return content, nil
}

func parseStoryInit(content string) (domain.StoryInit, error) {
	segments, err := ExtractSegments(content, TagTitle, TagInfo)
	if err != nil {
		return domain.StoryInit{}, fmt.Errorf("story init response: %w", err)
	}
	if segments[TagTitle] == "" {
		return domain.StoryInit{}, &domain.MalformedResponseError{Tag: TagTitle, Reason: "segment is empty"}
	}
	return domain.StoryInit{Title: segments[TagTitle], Premise: segments[TagInfo]}, nil
}
