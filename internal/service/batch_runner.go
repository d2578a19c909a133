package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/safa0/google-rangerz/internal/domain"
)

// StoryJob задание на одну историю.
type StoryJob struct {
	UserID     string                `json:"user_id"`
	Profile    domain.LearnerProfile `json:"profile"`
	TotalSteps int                   `json:"total_steps"`
}

// BatchRunner запускает независимые сессии параллельно. Сессии не делят изменяемого состояния.
type BatchRunner struct {
	controller  *StoryController
	concurrency int
	logger      *zap.Logger
}

func NewBatchRunner(controller *StoryController, concurrency int, logger *zap.Logger) *BatchRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchRunner{controller: controller, concurrency: concurrency, logger: logger.Named("BatchRunner")}
}

// RunAll возвращает итоги в порядке заданий. Сбой одной сессии не останавливает остальные.
func (r *BatchRunner) RunAll(ctx context.Context, jobs []StoryJob) []domain.StoryOutcome {
	outcomes := make([]domain.StoryOutcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			out, err := r.controller.Generate(ctx, job.UserID, job.Profile, job.TotalSteps)
			if err != nil {
				r.logger.Warn("Story job failed", zap.Int("job", i), zap.String("user_id", job.UserID), zap.Error(err))
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	completed := 0
	for _, out := range outcomes {
		if out.Status == domain.StatusCompleted {
			completed++
		}
	}
	r.logger.Info("Batch finished", zap.Int("jobs", len(jobs)), zap.Int("completed", completed))
	return outcomes
}
