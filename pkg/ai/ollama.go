package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/domain"
)

// OllamaTextGenerator генерирует главы через нативный API Ollama.
type OllamaTextGenerator struct {
	client   *api.Client
	cfg      Config
	logger   *zap.Logger
	recorder UsageRecorder
}

// NewOllamaTextGenerator создает клиента Ollama. BaseURL без суффикса /v1.
func NewOllamaTextGenerator(cfg Config, logger *zap.Logger, recorder UsageRecorder) (*OllamaTextGenerator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	baseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", baseURL, err)
	}

	logger.Info("Ollama client created",
		zap.String("base_url", baseURL),
		zap.String("model", cfg.ModelName),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &OllamaTextGenerator{
		client:   api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout}),
		cfg:      cfg,
		logger:   logger.Named("OllamaTextGenerator"),
		recorder: recorder,
	}, nil
}

// InitializeStory просит модель придумать название и замысел истории.
func (g *OllamaTextGenerator) InitializeStory(ctx context.Context, req domain.StoryInitRequest) (domain.StoryInit, error) {
	content, err := g.chat(ctx, "initialize_story", initSystemPrompt, RenderInitPrompt(req))
	if err != nil {
		return domain.StoryInit{}, err
	}
	return parseStoryInit(content)
}

// ContinueStory возвращает сырой текст главы.
func (g *OllamaTextGenerator) ContinueStory(ctx context.Context, req domain.GenerationRequest) (string, error) {
	return g.chat(ctx, "continue_story", continueSystemPrompt, RenderContinuePrompt(req))
}

func (g *OllamaTextGenerator) chat(ctx context.Context, op, systemPrompt, userInput string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: g.cfg.ModelName,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userInput},
		},
		Stream:  &stream,
		Options: map[string]interface{}{},
	}
	if g.cfg.Temperature > 0 {
		req.Options["temperature"] = g.cfg.Temperature
	}
	if g.cfg.MaxTokens > 0 {
		req.Options["num_predict"] = g.cfg.MaxTokens
	}

	requestCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var resp api.ChatResponse
	err := g.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.logger.Error("Ollama API timeout", zap.String("op", op), zap.Duration("timeout", g.cfg.Timeout), zap.Error(err))
		} else {
			g.logger.Error("Ollama API request failed", zap.String("op", op), zap.Duration("duration", duration), zap.Error(err))
		}
		return "", &domain.TextServiceError{Op: op, Err: err}
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		g.logger.Warn("Ollama API returned empty response", zap.String("op", op), zap.Duration("duration", duration))
		return "", &domain.TextServiceError{Op: op, Err: ErrEmptyCompletion}
	}

	usage := UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	if usage.TotalTokens == 0 {
		usage = EstimateUsage(g.cfg.ModelName, systemPrompt+userInput, resp.Message.Content)
	}
	if g.recorder != nil {
		g.recorder(g.cfg.ModelName, usage)
	}
	g.logger.Debug("Ollama API response received", zap.String("op", op), zap.Duration("duration", duration), zap.Int("length", len(resp.Message.Content)))
	return resp.Message.Content, nil
}
