package repository

import (
	"context"

	"github.com/safa0/google-rangerz/internal/domain"
)

// AssetWriter сохраняет картинку главы внутри транзакции добавления главы
// и возвращает ссылку на нее.
type AssetWriter func(ctx context.Context) (string, error)

// StoryRepository хранилище историй и их глав.
type StoryRepository interface {
	// CreateStory вставляет историю и заполняет ID, CreatedAt, UpdatedAt.
	CreateStory(ctx context.Context, story *domain.Story) error
	// GetStory возвращает domain.ErrNotFound, если истории нет.
	GetStory(ctx context.Context, id int64) (*domain.Story, error)
	// UpdateStoryStatus меняет статус; errorDetails nil очищает детали ошибки.
	UpdateStoryStatus(ctx context.Context, id int64, status domain.StoryStatus, errorDetails *string) error
	UpdateThumbnail(ctx context.Context, id int64, thumbnail string) error

	// AppendChapter атомарно добавляет главу со следующим номером.
	// Номер, отличный от max+1, отклоняется с *domain.ChapterOrderError до вызова storeAsset.
	// Ошибка storeAsset откатывает добавление. ImageRef главы берется из storeAsset.
	AppendChapter(ctx context.Context, chapter *domain.Chapter, storeAsset AssetWriter) error
	// GetChapter возвращает domain.ErrNotFound, если главы нет.
	GetChapter(ctx context.Context, storyID int64, number int) (*domain.Chapter, error)
	// ListChapters главы в порядке номеров.
	ListChapters(ctx context.Context, storyID int64) ([]domain.Chapter, error)
	CountChapters(ctx context.Context, storyID int64) (int, error)
}

// CancelRegistry отмечает истории, которые нужно остановить перед следующим ходом.
type CancelRegistry interface {
	Cancel(ctx context.Context, storyID int64) error
	IsCancelled(ctx context.Context, storyID int64) (bool, error)
	// Clear снимает отметку после завершения сессии.
	Clear(ctx context.Context, storyID int64) error
}
