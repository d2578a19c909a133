package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/metrics"
	"github.com/safa0/google-rangerz/pkg/ai"
)

// TurnResult результат одного хода. Картинка живет только до записи главы.
type TurnResult struct {
	Request    domain.GenerationRequest
	RawText    string
	Narrative  *domain.NarrativeResponse
	Image      *domain.GeneratedImage
	NextChoice string
}

// TurnEngine выполняет один ход: текст, разбор, картинка, выбор.
// Состояния не хранит, ошибки не повторяет.
type TurnEngine struct {
	text        TextGenerator
	images      *ImageAcquirer
	selector    ChoiceSelector
	model       string
	textTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewTurnEngine(text TextGenerator, images *ImageAcquirer, selector ChoiceSelector, model string, textTimeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *TurnEngine {
	return &TurnEngine{
		text:        text,
		images:      images,
		selector:    selector,
		model:       model,
		textTimeout: textTimeout,
		metrics:     m,
		logger:      logger.Named("TurnEngine"),
	}
}

// RunTurn строит запрос из профиля и снимка сессии и выполняет ход.
func (e *TurnEngine) RunTurn(ctx context.Context, profile domain.LearnerProfile, session domain.StorySession, kind domain.ExerciseType) (*TurnResult, error) {
	req := domain.NewGenerationRequest(profile, session, kind, e.model)
	log := e.logger.With(
		zap.Int64("story_id", session.StoryID),
		zap.Int("progression", req.Progression),
		zap.Int("total_steps", req.TotalSteps),
		zap.String("exercise_type", string(kind)),
	)

	raw, err := e.continueStory(ctx, req)
	if err != nil {
		log.Warn("Text generation failed", zap.Error(err))
		return nil, err
	}

	narrative, err := ai.ParseNarrative(raw, req.IsFinalStep())
	if err != nil {
		log.Warn("Generation response rejected", zap.Error(err), zap.Int("raw_len", len(raw)))
		return nil, err
	}

	img, err := e.images.Acquire(ctx, narrative.ImagePrompt)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{Request: req, RawText: raw, Narrative: narrative, Image: img}
	if req.IsFinalStep() {
		log.Info("Final turn generated")
		return result, nil
	}

	if len(narrative.Options) == 0 {
		return nil, domain.ErrNoOptionsAvailable
	}
	choice, err := e.selector.Select(ctx, narrative.Options)
	if err != nil {
		return nil, err
	}
	result.NextChoice = choice
	log.Info("Turn generated", zap.Strings("options", narrative.Options), zap.String("choice", choice))
	return result, nil
}

func (e *TurnEngine) continueStory(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if e.textTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.textTimeout)
		defer cancel()
	}
	start := time.Now()
	raw, err := e.text.ContinueStory(ctx, req)
	e.metrics.ServiceCall("text", err, time.Since(start))
	if err != nil {
		var svcErr *domain.TextServiceError
		if errors.As(err, &svcErr) {
			return "", err
		}
		return "", &domain.TextServiceError{Op: "continue_story", Err: err}
	}
	return raw, nil
}
