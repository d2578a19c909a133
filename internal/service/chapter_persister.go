package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/assets"
	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/metrics"
	"github.com/safa0/google-rangerz/internal/repository"
	"github.com/safa0/google-rangerz/pkg/ai"
)

// ChapterPersister записывает результат хода как главу вместе с картинкой.
type ChapterPersister struct {
	repo    repository.StoryRepository
	assets  assets.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewChapterPersister(repo repository.StoryRepository, store assets.Store, m *metrics.Metrics, logger *zap.Logger) *ChapterPersister {
	return &ChapterPersister{repo: repo, assets: store, metrics: m, logger: logger.Named("ChapterPersister")}
}

// Persist добавляет главу number. Номер не по порядку - *domain.ChapterOrderError, картинка не пишется.
// Если картинка записана, а глава нет, картинка удаляется.
func (p *ChapterPersister) Persist(ctx context.Context, storyID int64, number int, turn *TurnResult) (*domain.Chapter, error) {
	log := p.logger.With(zap.Int64("story_id", storyID), zap.Int("chapter_number", number))

	metadata, err := json.Marshal(turn.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chapter metadata: %w", err)
	}
	chapter := &domain.Chapter{
		StoryID:        storyID,
		Number:         number,
		Metadata:       metadata,
		RawText:        turn.RawText,
		ExerciseResult: ai.ParseExercise(turn.Narrative.Exercise).Summary(turn.Request.ExerciseType),
	}

	var storedKey string
	storeAsset := func(ctx context.Context) (string, error) {
		if turn.Image == nil {
			return "", nil
		}
		key := assets.ChapterKey(storyID, number, turn.Image.Format)
		ref, err := p.assets.Put(ctx, key, turn.Image.Data, turn.Image.MIMEType)
		if err != nil {
			return "", err
		}
		storedKey = key
		return ref, nil
	}

	if err := p.repo.AppendChapter(ctx, chapter, storeAsset); err != nil {
		// Ключ отклоненной по порядку главы может принадлежать уже записанной главе.
		if storedKey != "" && !errors.Is(err, domain.ErrChapterOrder) {
			if delErr := p.assets.Delete(context.WithoutCancel(ctx), storedKey); delErr != nil {
				err = multierr.Append(err, fmt.Errorf("failed to delete orphaned image '%s': %w", storedKey, delErr))
			}
		}
		log.Error("Failed to persist chapter", zap.Error(err))
		return nil, err
	}

	p.metrics.ChapterPersisted()
	log.Info("Chapter persisted", zap.String("image", chapter.ImageRef))
	return chapter, nil
}
