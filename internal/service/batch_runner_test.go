package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/messaging"
	"github.com/safa0/google-rangerz/internal/service"
)

func TestBatchRunner_RunAll(t *testing.T) {
	f := newControllerFixture(t)
	f.imagesOK(t)
	f.onTurn(func(p int) (string, error) {
		if p == 2 {
			return narrative("The end."), nil
		}
		return narrative("Alex lands.", "Explore", "Flee"), nil
	})
	runner := service.NewBatchRunner(f.controller(service.ControllerConfig{TotalSteps: 2}), 3, testLogger())

	jobs := []service.StoryJob{
		{UserID: "u1", Profile: alexProfile()},
		{UserID: "u2", Profile: domain.LearnerProfile{Name: "Bo"}},
		{UserID: "u3", Profile: alexProfile()},
		{UserID: "u4", Profile: alexProfile()},
	}
	outcomes := runner.RunAll(context.Background(), jobs)
	require.Len(t, outcomes, 4)

	for _, i := range []int{0, 2, 3} {
		assert.Equal(t, domain.StatusCompleted, outcomes[i].Status, "job %d", i)
		assert.Equal(t, 2, outcomes[i].ChaptersPersisted)

		chapters, err := f.repo.ListChapters(context.Background(), outcomes[i].StoryID)
		require.NoError(t, err)
		require.Len(t, chapters, 2)
		assert.Equal(t, 1, chapters[0].Number)
		assert.Equal(t, 2, chapters[1].Number)
	}
	assert.Equal(t, domain.StatusFailed, outcomes[1].Status)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrInvalidProfile)
}

func TestStoryTaskHandler(t *testing.T) {
	f := newControllerFixture(t)
	f.imagesOK(t)
	f.onTurn(func(int) (string, error) { return "garbage", nil })
	h := service.NewStoryTaskHandler(f.controller(service.ControllerConfig{TotalSteps: 2}), testLogger())

	err := h.HandleTask(context.Background(), messaging.StoryTaskPayload{TaskID: "t1", UserID: "u1", Profile: domain.LearnerProfile{Name: "Bo"}})
	assert.ErrorIs(t, err, messaging.ErrInvalidTask)

	err = h.HandleTask(context.Background(), messaging.StoryTaskPayload{TaskID: "t2", Profile: alexProfile()})
	assert.ErrorIs(t, err, messaging.ErrInvalidTask)

	// сбой сессии записан в историю, задание подтверждается
	err = h.HandleTask(context.Background(), messaging.StoryTaskPayload{TaskID: "t3", UserID: "u1", Profile: alexProfile(), TotalSteps: 2})
	require.NoError(t, err)
	story, err := f.repo.GetStory(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, story.Status)
}
