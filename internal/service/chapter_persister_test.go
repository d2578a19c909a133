package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/repository"
	"github.com/safa0/google-rangerz/internal/service"
)

// memoryAssets хранилище картинок в памяти.
type memoryAssets struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newMemoryAssets() *memoryAssets {
	return &memoryAssets{objects: make(map[string][]byte)}
}

func (m *memoryAssets) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.objects[key] = data
	return "mem://" + key, nil
}

func (m *memoryAssets) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryAssets) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// failingInsertRepo записывает картинку и падает при вставке главы.
type failingInsertRepo struct {
	*repository.MemoryStoryRepository
}

func (r failingInsertRepo) AppendChapter(ctx context.Context, _ *domain.Chapter, storeAsset repository.AssetWriter) error {
	if _, err := storeAsset(ctx); err != nil {
		return err
	}
	return errors.New("connection lost")
}

func testTurn(t *testing.T, progression int) *service.TurnResult {
	img, err := service.DecodeImage(pngBase64(t))
	require.NoError(t, err)
	return &service.TurnResult{
		Request: domain.GenerationRequest{Name: "Alex", Progression: progression, TotalSteps: 3, ExerciseType: domain.ExerciseFillInBlank},
		RawText: narrative("Alex lands.", "Explore", "Flee"),
		Narrative: &domain.NarrativeResponse{
			Text:     "Alex lands.",
			Options:  []string{"Explore", "Flee"},
			Exercise: "Fill in: the fox is ___ [fast] [slow]",
		},
		Image: img,
	}
}

func createStory(t *testing.T, repo repository.StoryRepository) int64 {
	t.Helper()
	story := &domain.Story{UserID: "u1", Title: "Mars", Status: domain.StatusOngoing, TotalSteps: 3}
	require.NoError(t, repo.CreateStory(context.Background(), story))
	return story.ID
}

func TestChapterPersister_Persist(t *testing.T) {
	repo := repository.NewMemoryStoryRepository()
	store := newMemoryAssets()
	storyID := createStory(t, repo)

	p := service.NewChapterPersister(repo, store, nil, testLogger())
	ch, err := p.Persist(context.Background(), storyID, 1, testTurn(t, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, ch.Number)
	assert.Contains(t, ch.ImageRef, "chapter_1.png")
	assert.Equal(t, "fill_in_blank: expected answer 'fast' (fast | slow)", ch.ExerciseResult)

	var meta domain.GenerationRequest
	require.NoError(t, json.Unmarshal(ch.Metadata, &meta))
	assert.Equal(t, "Alex", meta.Name)
	assert.Equal(t, 1, meta.Progression)

	stored, err := repo.GetChapter(context.Background(), storyID, 1)
	require.NoError(t, err)
	assert.Equal(t, ch.ImageRef, stored.ImageRef)
}

func TestChapterPersister_OutOfOrderKeepsExistingImage(t *testing.T) {
	repo := repository.NewMemoryStoryRepository()
	store := newMemoryAssets()
	storyID := createStory(t, repo)
	p := service.NewChapterPersister(repo, store, nil, testLogger())

	_, err := p.Persist(context.Background(), storyID, 1, testTurn(t, 1))
	require.NoError(t, err)

	_, err = p.Persist(context.Background(), storyID, 1, testTurn(t, 1))
	var orderErr *domain.ChapterOrderError
	require.ErrorAs(t, err, &orderErr)
	assert.Empty(t, store.deleted)
	assert.True(t, store.has("stories/1/chapter_1.png"))

	n, err := repo.CountChapters(context.Background(), storyID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChapterPersister_DeletesImageWhenInsertFails(t *testing.T) {
	repo := failingInsertRepo{repository.NewMemoryStoryRepository()}
	store := newMemoryAssets()
	storyID := createStory(t, repo)

	p := service.NewChapterPersister(repo, store, nil, testLogger())
	_, err := p.Persist(context.Background(), storyID, 1, testTurn(t, 1))
	require.Error(t, err)
	assert.Equal(t, []string{"stories/1/chapter_1.png"}, store.deleted)
	assert.False(t, store.has("stories/1/chapter_1.png"))
}

func TestChapterPersister_ImageStoreFailure(t *testing.T) {
	repo := repository.NewMemoryStoryRepository()
	store := newMemoryAssets()
	store.putErr = errors.New("bucket unavailable")
	storyID := createStory(t, repo)

	p := service.NewChapterPersister(repo, store, nil, testLogger())
	_, err := p.Persist(context.Background(), storyID, 1, testTurn(t, 1))
	require.Error(t, err)

	n, err := repo.CountChapters(context.Background(), storyID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
