package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/repository"
)

// storyRepositoryContract общие проверки для всех реализаций StoryRepository.
func storyRepositoryContract(t *testing.T, newRepo func(t *testing.T) repository.StoryRepository) {
	ctx := context.Background()

	newStory := func(t *testing.T, repo repository.StoryRepository) *domain.Story {
		t.Helper()
		s := &domain.Story{UserID: "user-1", Title: "Raketen", Premise: "Alex flies to the moon", TotalSteps: 5}
		require.NoError(t, repo.CreateStory(ctx, s))
		require.NotZero(t, s.ID)
		return s
	}
	asset := func(ref string) repository.AssetWriter {
		return func(context.Context) (string, error) { return ref, nil }
	}
	chapter := func(storyID int64, n int) *domain.Chapter {
		return &domain.Chapter{
			StoryID:        storyID,
			Number:         n,
			Metadata:       json.RawMessage(fmt.Sprintf(`{"progression": %d}`, n)),
			RawText:        fmt.Sprintf("<txt>chapter %d</txt>", n),
			ExerciseResult: "fill_in_blank: expected answer 'hund'",
		}
	}

	t.Run("create and get story", func(t *testing.T) {
		repo := newRepo(t)
		s := newStory(t, repo)

		got, err := repo.GetStory(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Raketen", got.Title)
		assert.Equal(t, domain.StatusOngoing, got.Status)
		assert.Equal(t, "Alex flies to the moon", got.Premise)
		assert.Equal(t, 5, got.TotalSteps)
		assert.Nil(t, got.ErrorDetails)

		_, err = repo.GetStory(ctx, s.ID+1000)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("status and thumbnail updates", func(t *testing.T) {
		repo := newRepo(t)
		s := newStory(t, repo)

		details := "malformed generation response: <opt>: tag is missing"
		require.NoError(t, repo.UpdateStoryStatus(ctx, s.ID, domain.StatusFailed, &details))
		require.NoError(t, repo.UpdateThumbnail(ctx, s.ID, "/images/stories/1/thumbnail-raketen.jpg"))

		got, err := repo.GetStory(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		require.NotNil(t, got.ErrorDetails)
		assert.Equal(t, details, *got.ErrorDetails)
		require.NotNil(t, got.Thumbnail)
		assert.Equal(t, "/images/stories/1/thumbnail-raketen.jpg", *got.Thumbnail)

		assert.ErrorIs(t, repo.UpdateStoryStatus(ctx, s.ID+1000, domain.StatusCompleted, nil), domain.ErrNotFound)
	})

	t.Run("chapters are contiguous from one", func(t *testing.T) {
		repo := newRepo(t)
		s := newStory(t, repo)

		var orderErr *domain.ChapterOrderError
		err := repo.AppendChapter(ctx, chapter(s.ID, 2), asset("x"))
		require.ErrorAs(t, err, &orderErr)
		assert.Equal(t, 1, orderErr.Expected)
		assert.Equal(t, 2, orderErr.Got)

		for n := 1; n <= 3; n++ {
			require.NoError(t, repo.AppendChapter(ctx, chapter(s.ID, n), asset(fmt.Sprintf("ref-%d", n))))
		}
		err = repo.AppendChapter(ctx, chapter(s.ID, 3), asset("dup"))
		assert.ErrorIs(t, err, domain.ErrChapterOrder)
		err = repo.AppendChapter(ctx, chapter(s.ID, 5), asset("gap"))
		assert.ErrorIs(t, err, domain.ErrChapterOrder)

		chapters, err := repo.ListChapters(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, chapters, 3)
		for i, ch := range chapters {
			assert.Equal(t, i+1, ch.Number)
			assert.Equal(t, fmt.Sprintf("ref-%d", i+1), ch.ImageRef)
		}
		n, err := repo.CountChapters(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("rejected chapter never stores asset", func(t *testing.T) {
		repo := newRepo(t)
		s := newStory(t, repo)

		called := false
		err := repo.AppendChapter(ctx, chapter(s.ID, 2), func(context.Context) (string, error) {
			called = true
			return "x", nil
		})
		assert.ErrorIs(t, err, domain.ErrChapterOrder)
		assert.False(t, called)
	})

	t.Run("asset failure rolls back", func(t *testing.T) {
		repo := newRepo(t)
		s := newStory(t, repo)

		boom := errors.New("disk full")
		err := repo.AppendChapter(ctx, chapter(s.ID, 1), func(context.Context) (string, error) { return "", boom })
		assert.ErrorIs(t, err, boom)

		n, err := repo.CountChapters(ctx, s.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
		require.NoError(t, repo.AppendChapter(ctx, chapter(s.ID, 1), asset("ok")))
	})

	t.Run("round trip by story and number", func(t *testing.T) {
		repo := newRepo(t)
		s := newStory(t, repo)

		ch := chapter(s.ID, 1)
		require.NoError(t, repo.AppendChapter(ctx, ch, asset("/images/stories/x/chapter_1.png")))
		assert.NotZero(t, ch.ID)

		got, err := repo.GetChapter(ctx, s.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, ch.RawText, got.RawText)
		assert.Equal(t, "/images/stories/x/chapter_1.png", got.ImageRef)
		assert.Equal(t, ch.ExerciseResult, got.ExerciseResult)
		assert.JSONEq(t, `{"progression": 1}`, string(got.Metadata))

		_, err = repo.GetChapter(ctx, s.ID, 2)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent writers of the same chapter", func(t *testing.T) {
		repo := newRepo(t)
		s := newStory(t, repo)
		for n := 1; n <= 3; n++ {
			require.NoError(t, repo.AppendChapter(ctx, chapter(s.ID, n), asset("x")))
		}

		const writers = 2
		errs := make([]error, writers)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				errs[i] = repo.AppendChapter(ctx, chapter(s.ID, 4), asset(fmt.Sprintf("writer-%d", i)))
			}(i)
		}
		close(start)
		wg.Wait()

		var ok, rejected int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrChapterOrder):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, rejected)

		n, err := repo.CountChapters(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}
