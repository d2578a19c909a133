package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/assets"
	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/logger"
	"github.com/safa0/google-rangerz/internal/messaging"
	"github.com/safa0/google-rangerz/internal/metrics"
	"github.com/safa0/google-rangerz/internal/repository"
)

// ErrSessionNotRunning Run вызван для сессии не в состоянии running.
var ErrSessionNotRunning = errors.New("story session is not running")

// ErrSessionOutOfBounds ход сессии вне диапазона 1..TotalSteps.
var ErrSessionOutOfBounds = errors.New("story session progression out of bounds")

// ControllerConfig параметры сессий.
type ControllerConfig struct {
	TotalSteps     int
	Model          string
	Retry          RetryPolicy
	Thumbnails     bool
	ThumbnailWidth int
}

// ControllerDeps зависимости контроллера. Cancels, Events, Assets и Metrics необязательны.
type ControllerDeps struct {
	Text      TextGenerator
	Engine    *TurnEngine
	Persister *ChapterPersister
	Stories   repository.StoryRepository
	Cancels   repository.CancelRegistry
	Events    messaging.EventPublisher
	Assets    assets.Store
	Exercises ExercisePicker
	Metrics   *metrics.Metrics
}

// StoryController ведет сессию от инициализации до завершения или сбоя.
// Ходы одной сессии строго последовательны; повторяет только ошибки сервисов.
type StoryController struct {
	deps   ControllerDeps
	cfg    ControllerConfig
	logger *zap.Logger
}

func NewStoryController(deps ControllerDeps, cfg ControllerConfig, log *zap.Logger) *StoryController {
	if deps.Cancels == nil {
		deps.Cancels = repository.NewMemoryCancelRegistry()
	}
	if deps.Events == nil {
		deps.Events = messaging.NoopPublisher{}
	}
	if deps.Exercises == nil {
		deps.Exercises = FixedExercise(domain.ExerciseFillInBlank)
	}
	if cfg.TotalSteps <= 0 {
		cfg.TotalSteps = 5
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &StoryController{deps: deps, cfg: cfg, logger: log.Named("StoryController")}
}

// Create инициализирует историю у сервиса и сохраняет ее. При ошибке ничего не сохраняется.
func (c *StoryController) Create(ctx context.Context, userID string, profile domain.LearnerProfile, totalSteps int) (*domain.StorySession, error) {
	profile, err := profile.Normalize()
	if err != nil {
		return nil, err
	}
	if totalSteps <= 0 {
		totalSteps = c.cfg.TotalSteps
	}
	log := c.logger.With(zap.String("user_id", userID))

	req := domain.StoryInitRequest{
		Name:       profile.Name,
		Age:        profile.Age,
		SkillLevel: profile.SkillLevel,
		Interests:  profile.Interests,
		Model:      c.model(),
	}
	var init domain.StoryInit
	err = c.cfg.Retry.Do(ctx, func(int) error {
		start := time.Now()
		var callErr error
		init, callErr = c.deps.Text.InitializeStory(ctx, req)
		c.deps.Metrics.ServiceCall("text", callErr, time.Since(start))
		if callErr != nil {
			var svcErr *domain.TextServiceError
			if !errors.As(callErr, &svcErr) {
				callErr = &domain.TextServiceError{Op: "initialize_story", Err: callErr}
			}
		}
		return callErr
	}, func(attempt int, err error, wait time.Duration) {
		log.Warn("Story initialization failed, retrying", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		c.deps.Metrics.TurnRetried(domain.FailureReason(err))
	})
	if err != nil {
		log.Error("Story initialization failed", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize story: %w", err)
	}

	story := &domain.Story{
		UserID:     userID,
		Title:      init.Title,
		Status:     domain.StatusOngoing,
		Premise:    init.Premise,
		TotalSteps: totalSteps,
	}
	if err := c.deps.Stories.CreateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to save story: %w", err)
	}

	session := &domain.StorySession{
		StoryID:     story.ID,
		UserID:      userID,
		Title:       story.Title,
		Status:      domain.StatusOngoing,
		State:       domain.StateRunning,
		Premise:     story.Premise,
		Progression: 1,
		TotalSteps:  totalSteps,
	}
	c.deps.Metrics.SessionStarted()
	c.publish(ctx, session, messaging.EventStoryCreated, 0, "")
	logger.ForStory(log, story.ID, userID).Info("Story created", zap.String("title", story.Title), zap.Int("total_steps", totalSteps))
	return session, nil
}

// Run выполняет ходы до завершения, сбоя или отмены.
// Отмена проверяется только между ходами; начатый ход доводится до конца.
func (c *StoryController) Run(ctx context.Context, session *domain.StorySession, profile domain.LearnerProfile) (domain.StoryOutcome, error) {
	if session.State != domain.StateRunning {
		return outcome(session, ErrSessionNotRunning), ErrSessionNotRunning
	}
	if session.TotalSteps < 1 || session.Progression < 1 || session.Progression > session.TotalSteps {
		err := fmt.Errorf("%w: progression %d, total steps %d", ErrSessionOutOfBounds, session.Progression, session.TotalSteps)
		return outcome(session, err), err
	}
	log := logger.ForStory(c.logger, session.StoryID, session.UserID)

	for !session.State.IsTerminal() {
		if err := c.checkCancelled(ctx, session.StoryID); err != nil {
			return c.fail(ctx, session, err, log)
		}

		turnCtx := context.WithoutCancel(ctx)
		chapter, turn, err := c.runTurn(turnCtx, session, profile, log)
		if err != nil {
			return c.fail(ctx, session, err, log)
		}

		session.ChaptersPersisted++
		c.publish(turnCtx, session, messaging.EventChapterPersisted, chapter.Number, "")
		if chapter.Number == 1 {
			c.storeThumbnail(turnCtx, session, turn.Image, log)
		}
		c.advance(session, turn)

		if session.IsFinalStep() && chapter.Number == session.TotalSteps {
			if err := c.complete(turnCtx, session, log); err != nil {
				return c.fail(ctx, session, err, log)
			}
		} else {
			session.Progression++
		}
	}
	return outcome(session, nil), nil
}

// Generate Create и Run одной сессии.
func (c *StoryController) Generate(ctx context.Context, userID string, profile domain.LearnerProfile, totalSteps int) (domain.StoryOutcome, error) {
	profile, err := profile.Normalize()
	if err != nil {
		return domain.StoryOutcome{Status: domain.StatusFailed, Err: err}, err
	}
	session, err := c.Create(ctx, userID, profile, totalSteps)
	if err != nil {
		return domain.StoryOutcome{Status: domain.StatusFailed, Err: err}, err
	}
	return c.Run(ctx, session, profile)
}

// Cancel отмечает историю; сессия остановится перед следующим ходом.
func (c *StoryController) Cancel(ctx context.Context, storyID int64) error {
	story, err := c.deps.Stories.GetStory(ctx, storyID)
	if err != nil {
		return err
	}
	if story.Status != domain.StatusOngoing {
		return nil
	}
	return c.deps.Cancels.Cancel(ctx, storyID)
}

func (c *StoryController) runTurn(ctx context.Context, session *domain.StorySession, profile domain.LearnerProfile, log *zap.Logger) (*domain.Chapter, *TurnResult, error) {
	kind := c.deps.Exercises.Pick(session.Progression)
	snapshot := session.Snapshot()
	start := time.Now()

	var turn *TurnResult
	err := c.cfg.Retry.Do(ctx, func(int) error {
		var turnErr error
		turn, turnErr = c.deps.Engine.RunTurn(ctx, profile, snapshot, kind)
		return turnErr
	}, func(attempt int, err error, wait time.Duration) {
		log.Warn("Turn failed, retrying",
			zap.Int("progression", session.Progression), zap.Int("attempt", attempt),
			zap.Duration("wait", wait), zap.Error(err))
		c.deps.Metrics.TurnRetried(domain.FailureReason(err))
	})
	if err != nil {
		c.deps.Metrics.TurnFailed(domain.FailureReason(err))
		return nil, nil, err
	}

	chapter, err := c.deps.Persister.Persist(ctx, session.StoryID, session.Progression, turn)
	if err != nil {
		c.deps.Metrics.TurnFailed(domain.FailureReason(err))
		return nil, nil, err
	}
	c.deps.Metrics.TurnCompleted(time.Since(start))
	return chapter, turn, nil
}

// advance переносит результат хода в сессию.
func (c *StoryController) advance(session *domain.StorySession, turn *TurnResult) {
	text := strings.TrimSpace(turn.Narrative.Text)
	if session.Summary == "" {
		session.Summary = text
	} else if text != "" {
		session.Summary = session.Summary + "\n\n" + text
	}
	session.LastChoice = turn.NextChoice
}

func (c *StoryController) complete(ctx context.Context, session *domain.StorySession, log *zap.Logger) error {
	if err := c.deps.Stories.UpdateStoryStatus(ctx, session.StoryID, domain.StatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to mark story completed: %w", err)
	}
	session.Status = domain.StatusCompleted
	session.State = domain.StateCompleted
	c.clearCancel(ctx, session.StoryID, log)
	c.deps.Metrics.SessionFinished(string(domain.StatusCompleted), "")
	c.publish(ctx, session, messaging.EventStoryCompleted, 0, "")
	log.Info("Story completed", zap.Int("chapters", session.ChaptersPersisted))
	return nil
}

func (c *StoryController) fail(ctx context.Context, session *domain.StorySession, cause error, log *zap.Logger) (domain.StoryOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	session.Status = domain.StatusFailed
	session.State = domain.StateFailed

	details := cause.Error()
	if err := c.deps.Stories.UpdateStoryStatus(ctx, session.StoryID, domain.StatusFailed, &details); err != nil {
		log.Error("Failed to mark story failed", zap.Error(err))
	}
	c.clearCancel(ctx, session.StoryID, log)

	reason := domain.FailureReason(cause)
	c.deps.Metrics.SessionFinished(string(domain.StatusFailed), reason)
	c.publish(ctx, session, messaging.EventStoryFailed, 0, details)
	log.Warn("Story failed",
		zap.String("reason", reason), zap.Int("progression", session.Progression),
		zap.Int("chapters", session.ChaptersPersisted), zap.Error(cause))
	return outcome(session, cause), cause
}

func (c *StoryController) checkCancelled(ctx context.Context, storyID int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoryCancelled, err)
	}
	cancelled, err := c.deps.Cancels.IsCancelled(ctx, storyID)
	if err != nil {
		// Недоступный реестр не останавливает историю.
		c.logger.Warn("Failed to check cancellation", zap.Int64("story_id", storyID), zap.Error(err))
		return nil
	}
	if cancelled {
		return domain.ErrStoryCancelled
	}
	return nil
}

func (c *StoryController) clearCancel(ctx context.Context, storyID int64, log *zap.Logger) {
	if err := c.deps.Cancels.Clear(ctx, storyID); err != nil {
		log.Warn("Failed to clear cancel flag", zap.Error(err))
	}
}

// storeThumbnail обложка из картинки первой главы. Ошибки только логируются.
func (c *StoryController) storeThumbnail(ctx context.Context, session *domain.StorySession, img *domain.GeneratedImage, log *zap.Logger) {
	if !c.cfg.Thumbnails || c.deps.Assets == nil || img == nil {
		return
	}
	thumb, err := assets.MakeThumbnail(img.Data, c.cfg.ThumbnailWidth)
	if err != nil {
		log.Warn("Failed to make thumbnail", zap.Error(err))
		return
	}
	ref, err := c.deps.Assets.Put(ctx, assets.ThumbnailKey(session.StoryID, session.Title), thumb, "image/jpeg")
	if err != nil {
		log.Warn("Failed to store thumbnail", zap.Error(err))
		return
	}
	if err := c.deps.Stories.UpdateThumbnail(ctx, session.StoryID, ref); err != nil {
		log.Warn("Failed to save thumbnail reference", zap.Error(err))
		return
	}
	session.Thumbnail = ref
}

func (c *StoryController) publish(ctx context.Context, session *domain.StorySession, kind messaging.EventType, chapter int, errText string) {
	event := messaging.StoryEventPayload{
		Type:          kind,
		StoryID:       session.StoryID,
		UserID:        session.UserID,
		ChapterNumber: chapter,
		Status:        session.Status,
		Error:         errText,
		OccurredAt:    time.Now().UTC(),
	}
	if err := c.deps.Events.PublishEvent(ctx, event); err != nil {
		c.logger.Warn("Failed to publish story event",
			zap.Int64("story_id", session.StoryID), zap.String("event", string(kind)), zap.Error(err))
	}
}

func (c *StoryController) model() string {
	if c.cfg.Model == "" {
		return domain.DefaultModel
	}
	return c.cfg.Model
}

func outcome(session *domain.StorySession, err error) domain.StoryOutcome {
	return domain.StoryOutcome{
		StoryID:           session.StoryID,
		Status:            session.Status,
		ChaptersPersisted: session.ChaptersPersisted,
		Err:               err,
	}
}
