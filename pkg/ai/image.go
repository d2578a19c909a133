package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/domain"
)

// ImageConfig настройки генерации картинок через OpenAI Images API.
type ImageConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Timeout time.Duration
}

// OpenAIImageGenerator возвращает картинку в виде base64 (response_format=b64_json).
type OpenAIImageGenerator struct {
	client *openai.Client
	cfg    ImageConfig
	logger *zap.Logger
}

// NewOpenAIImageGenerator создает генератор картинок.
func NewOpenAIImageGenerator(cfg ImageConfig, logger *zap.Logger) (*OpenAIImageGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("не указан API ключ для генерации картинок")
	}
	if cfg.Model == "" {
		cfg.Model = openai.CreateImageModelDallE3
	}
	if cfg.Size == "" {
		cfg.Size = openai.CreateImageSize1024x1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIImageGenerator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		logger: logger.Named("OpenAIImageGenerator"),
	}, nil
}

// GenerateImage возвращает base64 полезную нагрузку без декодирования.
func (g *OpenAIImageGenerator) GenerateImage(ctx context.Context, description string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         description,
		Model:          g.cfg.Model,
		Size:           g.cfg.Size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		g.logger.Error("Image API request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return "", &domain.ImageServiceError{Err: err}
	}
	if len(resp.Data) == 0 {
		return "", &domain.ImageServiceError{Err: errors.New("image API returned no data")}
	}
	g.logger.Debug("Image received", zap.Duration("duration", time.Since(start)), zap.Int("b64_length", len(resp.Data[0].B64JSON)))
	return resp.Data[0].B64JSON, nil
}
