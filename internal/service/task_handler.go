package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/logger"
	"github.com/safa0/google-rangerz/internal/messaging"
)

// StoryTaskHandler обрабатывает задания из очереди.
type StoryTaskHandler struct {
	controller *StoryController
	logger     *zap.Logger
}

func NewStoryTaskHandler(controller *StoryController, logger *zap.Logger) *StoryTaskHandler {
	return &StoryTaskHandler{controller: controller, logger: logger.Named("StoryTaskHandler")}
}

var _ messaging.TaskHandler = (*StoryTaskHandler)(nil)

// HandleTask неверное задание - messaging.ErrInvalidTask (уйдет в DLQ).
// Сбой сессии уже записан в историю, поэтому задание подтверждается.
func (h *StoryTaskHandler) HandleTask(ctx context.Context, task messaging.StoryTaskPayload) error {
	if task.UserID == "" {
		return fmt.Errorf("%w: user_id is required", messaging.ErrInvalidTask)
	}
	profile, err := task.Profile.Normalize()
	if err != nil {
		return fmt.Errorf("%w: %v", messaging.ErrInvalidTask, err)
	}

	log := logger.ForTask(h.logger, task.TaskID, task.UserID)
	out, err := h.controller.Generate(ctx, task.UserID, profile, task.TotalSteps)
	if err != nil {
		log.Warn("Story task finished with failure", zap.Int64("story_id", out.StoryID), zap.Error(err))
		return nil
	}
	log.Info("Story task completed", zap.Int64("story_id", out.StoryID), zap.Int("chapters", out.ChaptersPersisted))
	return nil
}
