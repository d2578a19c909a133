package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/domain"
)

const (
	endpointInitializeStory = "/initialize_story"
	endpointContinueStory   = "/continue_story"
)

type initializeResponse struct {
	envelope
	Title     string `json:"title"`
	StoryInfo string `json:"story_info"`
}

type continueResponse struct {
	envelope
	RawText string `json:"raw_text"`
	// некоторые версии сервиса отдают текст в поле story
	Story string `json:"story"`
}

// TextServiceClient клиент собственного сервиса генерации историй.
type TextServiceClient struct {
	envelopeClient
}

// NewTextServiceClient создает клиента. timeout - таймаут одного вызова.
func NewTextServiceClient(baseURL string, timeout time.Duration, logger *zap.Logger) *TextServiceClient {
	return &TextServiceClient{
		envelopeClient: newEnvelopeClient(baseURL, timeout, logger.Named("TextServiceClient")),
	}
}

// InitializeStory запрашивает название и замысел новой истории.
func (c *TextServiceClient) InitializeStory(ctx context.Context, req domain.StoryInitRequest) (domain.StoryInit, error) {
	var resp initializeResponse
	if err := c.post(ctx, endpointInitializeStory, req, &resp); err != nil {
		return domain.StoryInit{}, &domain.TextServiceError{Op: "initialize_story", Err: err}
	}
	title := strings.TrimSpace(resp.Title)
	if title == "" {
		return domain.StoryInit{}, &domain.TextServiceError{Op: "initialize_story", Err: fmt.Errorf("%w: empty title", ErrBadEnvelope)}
	}
	return domain.StoryInit{Title: title, Premise: strings.TrimSpace(resp.StoryInfo)}, nil
}

// ContinueStory возвращает сырой текст главы. Разметку разбирает вызывающий.
func (c *TextServiceClient) ContinueStory(ctx context.Context, req domain.GenerationRequest) (string, error) {
	var resp continueResponse
	if err := c.post(ctx, endpointContinueStory, req, &resp); err != nil {
		return "", &domain.TextServiceError{Op: "continue_story", Err: err}
	}
	raw := resp.RawText
	if strings.TrimSpace(raw) == "" {
		raw = resp.Story
	}
	if strings.TrimSpace(raw) == "" {
		c.logger.Warn("Text service returned success without story text")
		return "", &domain.TextServiceError{Op: "continue_story", Err: fmt.Errorf("%w: empty raw_text", ErrBadEnvelope)}
	}
	return raw, nil
}
