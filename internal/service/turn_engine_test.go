package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/mocks"
	"github.com/safa0/google-rangerz/internal/service"
)

func alexProfile() domain.LearnerProfile {
	return domain.LearnerProfile{
		Name:       "Alex",
		Age:        9,
		SkillLevel: domain.SkillBeginner,
		Interests:  []string{"space", "dinosaurs"},
	}
}

func newEngine(t *testing.T, text *mocks.MockTextGenerator, img *mocks.MockImageGenerator, sel service.ChoiceSelector) *service.TurnEngine {
	t.Helper()
	acq := service.NewImageAcquirer(img, "", time.Second, nil, testLogger())
	return service.NewTurnEngine(text, acq, sel, "", time.Second, nil, testLogger())
}

func TestTurnEngine_RunTurn(t *testing.T) {
	text := mocks.NewMockTextGenerator(t)
	img := mocks.NewMockImageGenerator(t)
	sel := mocks.NewMockChoiceSelector(t)

	session := domain.StorySession{StoryID: 7, Premise: "A trip to Mars", Progression: 1, TotalSteps: 3}
	text.On("ContinueStory", mock.Anything, mock.MatchedBy(func(r domain.GenerationRequest) bool {
		return r.Name == "Alex" && r.Progression == 1 && r.TotalSteps == 3 &&
			r.BigPicture == "A trip to Mars" && r.ExerciseType == domain.ExerciseMatching && r.Model == domain.DefaultModel
	})).Return(narrative("Alex lands on Mars.", "Explore", "Flee"), nil).Once()
	img.On("GenerateImage", mock.Anything, "A fox in a snowy forest").Return(pngBase64(t), nil).Once()
	sel.On("Select", mock.Anything, []string{"Explore", "Flee"}).Return("Explore", nil).Once()

	res, err := newEngine(t, text, img, sel).RunTurn(context.Background(), alexProfile(), session, domain.ExerciseMatching)
	require.NoError(t, err)
	assert.Equal(t, "Alex lands on Mars.", res.Narrative.Text)
	assert.Equal(t, "Explore", res.NextChoice)
	assert.Equal(t, "png", res.Image.Format)
	assert.Equal(t, 1, res.Request.Progression)
}

func TestTurnEngine_FinalStepSkipsChoice(t *testing.T) {
	text := mocks.NewMockTextGenerator(t)
	img := mocks.NewMockImageGenerator(t)
	sel := mocks.NewMockChoiceSelector(t)

	text.On("ContinueStory", mock.Anything, mock.Anything).Return(narrative("The end."), nil).Once()
	img.On("GenerateImage", mock.Anything, mock.Anything).Return(pngBase64(t), nil).Once()

	session := domain.StorySession{StoryID: 7, Progression: 3, TotalSteps: 3}
	res, err := newEngine(t, text, img, sel).RunTurn(context.Background(), alexProfile(), session, domain.ExerciseFillInBlank)
	require.NoError(t, err)
	assert.Empty(t, res.NextChoice)
	sel.AssertNotCalled(t, "Select", mock.Anything, mock.Anything)
}

func TestTurnEngine_MalformedResponseSkipsImageAndChoice(t *testing.T) {
	text := mocks.NewMockTextGenerator(t)
	img := mocks.NewMockImageGenerator(t)
	sel := mocks.NewMockChoiceSelector(t)

	text.On("ContinueStory", mock.Anything, mock.Anything).
		Return("<img>x</img><txt>Alex waits.</txt><exe>[a]</exe>", nil).Once()

	session := domain.StorySession{StoryID: 7, Progression: 2, TotalSteps: 3}
	_, err := newEngine(t, text, img, sel).RunTurn(context.Background(), alexProfile(), session, domain.ExerciseFillInBlank)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	img.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
	sel.AssertNotCalled(t, "Select", mock.Anything, mock.Anything)
}

func TestTurnEngine_TextTimeoutIsRetryable(t *testing.T) {
	text := mocks.NewMockTextGenerator(t)
	img := mocks.NewMockImageGenerator(t)

	text.On("ContinueStory", mock.Anything, mock.Anything).
		Return("", func(ctx context.Context, _ domain.GenerationRequest) error {
			<-ctx.Done()
			return ctx.Err()
		}).Once()

	acq := service.NewImageAcquirer(img, "", time.Second, nil, testLogger())
	engine := service.NewTurnEngine(text, acq, service.FirstChoice{}, "", 20*time.Millisecond, nil, testLogger())

	session := domain.StorySession{StoryID: 7, Progression: 1, TotalSteps: 3}
	_, err := engine.RunTurn(context.Background(), alexProfile(), session, domain.ExerciseFillInBlank)
	assert.ErrorIs(t, err, domain.ErrTextService)
	assert.True(t, domain.IsRetryable(err))
}
