package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/database"
	"github.com/safa0/google-rangerz/internal/domain"
)

const (
	pgUniqueViolation = "23505"

	storyColumns   = `id, user_id, title, status, thumbnail, story_info, total_steps, error_details, created_at, updated_at`
	chapterColumns = `id, story_id, chapter_number, metadata, raw_text, image, exe_result, created_at`

	insertStoryQuery = `
		INSERT INTO stories (user_id, title, status, thumbnail, story_info, total_steps)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	getStoryQuery           = `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`
	updateStoryStatusQuery  = `UPDATE stories SET status = $2, error_details = $3, updated_at = NOW() WHERE id = $1`
	updateThumbnailQuery    = `UPDATE stories SET thumbnail = $2, updated_at = NOW() WHERE id = $1`
	lockStoryQuery          = `SELECT id FROM stories WHERE id = $1 FOR UPDATE`
	maxChapterQuery         = `SELECT COALESCE(MAX(chapter_number), 0) FROM chapters WHERE story_id = $1`
	insertChapterQuery      = `
		INSERT INTO chapters (story_id, chapter_number, metadata, raw_text, image, exe_result)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	getChapterQuery   = `SELECT ` + chapterColumns + ` FROM chapters WHERE story_id = $1 AND chapter_number = $2`
	listChaptersQuery = `SELECT ` + chapterColumns + ` FROM chapters WHERE story_id = $1 ORDER BY chapter_number`
	countChapterQuery = `SELECT COUNT(*) FROM chapters WHERE story_id = $1`
)

// PgStoryRepository реализация StoryRepository для PostgreSQL.
type PgStoryRepository struct {
	db     database.TxBeginner
	logger *zap.Logger
}

var _ StoryRepository = (*PgStoryRepository)(nil)

func NewPgStoryRepository(db database.TxBeginner, logger *zap.Logger) *PgStoryRepository {
	return &PgStoryRepository{db: db, logger: logger.Named("PgStoryRepo")}
}

func (r *PgStoryRepository) CreateStory(ctx context.Context, story *domain.Story) error {
	if story.Status == "" {
		story.Status = domain.StatusOngoing
	}
	err := r.db.QueryRow(ctx, insertStoryQuery,
		story.UserID, story.Title, story.Status, story.Thumbnail, story.Premise, story.TotalSteps,
	).Scan(&story.ID, &story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert story", zap.String("user_id", story.UserID), zap.Error(err))
		return fmt.Errorf("failed to insert story: %w", err)
	}
	r.logger.Debug("Story inserted", zap.Int64("story_id", story.ID), zap.String("user_id", story.UserID))
	return nil
}

func (r *PgStoryRepository) GetStory(ctx context.Context, id int64) (*domain.Story, error) {
	var story domain.Story
	if err := pgxscan.Get(ctx, r.db, &story, getStoryQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("story %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get story %d: %w", id, err)
	}
	return &story, nil
}

func (r *PgStoryRepository) UpdateStoryStatus(ctx context.Context, id int64, status domain.StoryStatus, errorDetails *string) error {
	tag, err := r.db.Exec(ctx, updateStoryStatusQuery, id, status, errorDetails)
	if err != nil {
		r.logger.Error("Failed to update story status", zap.Int64("story_id", id), zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("failed to update story %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("story %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgStoryRepository) UpdateThumbnail(ctx context.Context, id int64, thumbnail string) error {
	tag, err := r.db.Exec(ctx, updateThumbnailQuery, id, thumbnail)
	if err != nil {
		return fmt.Errorf("failed to update story %d thumbnail: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("story %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// AppendChapter блокирует строку истории, поэтому параллельные записи одной истории идут по очереди.
func (r *PgStoryRepository) AppendChapter(ctx context.Context, ch *domain.Chapter, storeAsset AssetWriter) error {
	log := r.logger.With(zap.Int64("story_id", ch.StoryID), zap.Int("chapter_number", ch.Number))

	err := database.ExecuteInTransaction(ctx, r.db, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, lockStoryQuery, ch.StoryID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("story %d: %w", ch.StoryID, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to lock story: %w", err)
		}

		var current int
		if err := tx.QueryRow(ctx, maxChapterQuery, ch.StoryID).Scan(&current); err != nil {
			return fmt.Errorf("failed to read last chapter number: %w", err)
		}
		if ch.Number != current+1 {
			return &domain.ChapterOrderError{StoryID: ch.StoryID, Expected: current + 1, Got: ch.Number}
		}

		if storeAsset != nil {
			ref, err := storeAsset(ctx)
			if err != nil {
				return fmt.Errorf("failed to store chapter image: %w", err)
			}
			ch.ImageRef = ref
		}

		metadata := ch.Metadata
		if len(metadata) == 0 {
			metadata = []byte("{}")
		}
		err := tx.QueryRow(ctx, insertChapterQuery,
			ch.StoryID, ch.Number, metadata, ch.RawText, ch.ImageRef, ch.ExerciseResult,
		).Scan(&ch.ID, &ch.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return &domain.ChapterOrderError{StoryID: ch.StoryID, Expected: current + 1, Got: ch.Number}
			}
			return fmt.Errorf("failed to insert chapter: %w", err)
		}
		return nil
	})
	if err != nil {
		var orderErr *domain.ChapterOrderError
		if errors.As(err, &orderErr) {
			log.Warn("Chapter rejected", zap.Error(err))
		} else {
			log.Error("Failed to append chapter", zap.Error(err))
		}
		return err
	}
	log.Info("Chapter appended", zap.Int64("chapter_id", ch.ID))
	return nil
}

func (r *PgStoryRepository) GetChapter(ctx context.Context, storyID int64, number int) (*domain.Chapter, error) {
	var ch domain.Chapter
	if err := pgxscan.Get(ctx, r.db, &ch, getChapterQuery, storyID, number); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("story %d chapter %d: %w", storyID, number, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}
	return &ch, nil
}

func (r *PgStoryRepository) ListChapters(ctx context.Context, storyID int64) ([]domain.Chapter, error) {
	chapters := make([]domain.Chapter, 0)
	if err := pgxscan.Select(ctx, r.db, &chapters, listChaptersQuery, storyID); err != nil {
		return nil, fmt.Errorf("failed to list chapters of story %d: %w", storyID, err)
	}
	return chapters, nil
}

func (r *PgStoryRepository) CountChapters(ctx context.Context, storyID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countChapterQuery, storyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chapters of story %d: %w", storyID, err)
	}
	return n, nil
}
