package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/safa0/google-rangerz/internal/domain"
)

// MemoryStoryRepository хранилище в памяти с теми же гарантиями порядка глав, что и PostgreSQL.
// Используется, когда база не настроена, и в тестах.
type MemoryStoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	nextChID int64
	stories  map[int64]*domain.Story
	chapters map[int64][]domain.Chapter
	now      func() time.Time
}

var _ StoryRepository = (*MemoryStoryRepository)(nil)

func NewMemoryStoryRepository() *MemoryStoryRepository {
	return &MemoryStoryRepository{
		stories:  make(map[int64]*domain.Story),
		chapters: make(map[int64][]domain.Chapter),
		now:      time.Now,
	}
}

func (r *MemoryStoryRepository) CreateStory(_ context.Context, story *domain.Story) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	story.ID = r.nextID
	if story.Status == "" {
		story.Status = domain.StatusOngoing
	}
	story.CreatedAt = r.now()
	story.UpdatedAt = story.CreatedAt
	stored := *story
	r.stories[story.ID] = &stored
	return nil
}

func (r *MemoryStoryRepository) GetStory(_ context.Context, id int64) (*domain.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stories[id]
	if !ok {
		return nil, fmt.Errorf("story %d: %w", id, domain.ErrNotFound)
	}
	out := *s
	return &out, nil
}

func (r *MemoryStoryRepository) UpdateStoryStatus(_ context.Context, id int64, status domain.StoryStatus, errorDetails *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stories[id]
	if !ok {
		return fmt.Errorf("story %d: %w", id, domain.ErrNotFound)
	}
	s.Status = status
	s.ErrorDetails = copyString(errorDetails)
	s.UpdatedAt = r.now()
	return nil
}

func (r *MemoryStoryRepository) UpdateThumbnail(_ context.Context, id int64, thumbnail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stories[id]
	if !ok {
		return fmt.Errorf("story %d: %w", id, domain.ErrNotFound)
	}
	s.Thumbnail = &thumbnail
	s.UpdatedAt = r.now()
	return nil
}

// AppendChapter держит мьютекс на все время добавления, включая запись картинки.
func (r *MemoryStoryRepository) AppendChapter(ctx context.Context, ch *domain.Chapter, storeAsset AssetWriter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stories[ch.StoryID]; !ok {
		return fmt.Errorf("story %d: %w", ch.StoryID, domain.ErrNotFound)
	}
	current := len(r.chapters[ch.StoryID])
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

	r.nextChID++
	ch.ID = r.nextChID
	ch.CreatedAt = r.now()
	stored := *ch
	stored.Metadata = append([]byte(nil), ch.Metadata...)
	r.chapters[ch.StoryID] = append(r.chapters[ch.StoryID], stored)
	return nil
}

func (r *MemoryStoryRepository) GetChapter(_ context.Context, storyID int64, number int) (*domain.Chapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chs := r.chapters[storyID]
	if number < 1 || number > len(chs) {
		return nil, fmt.Errorf("story %d chapter %d: %w", storyID, number, domain.ErrNotFound)
	}
	out := chs[number-1]
	return &out, nil
}

func (r *MemoryStoryRepository) ListChapters(_ context.Context, storyID int64) ([]domain.Chapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Chapter, len(r.chapters[storyID]))
	copy(out, r.chapters[storyID])
	return out, nil
}

func (r *MemoryStoryRepository) CountChapters(_ context.Context, storyID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chapters[storyID]), nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
