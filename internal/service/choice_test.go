package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/service"
)

func TestChoiceSelectors(t *testing.T) {
	ctx := context.Background()
	options := []string{"Explore", "Flee", "Hide"}

	first, err := service.FirstChoice{}.Select(ctx, options)
	require.NoError(t, err)
	assert.Equal(t, "Explore", first)

	for i := 0; i < 20; i++ {
		got, err := service.RandomChoice{}.Select(ctx, options)
		require.NoError(t, err)
		assert.Contains(t, options, got)
	}

	last := service.ChoiceFunc(func(_ context.Context, o []string) (string, error) { return o[len(o)-1], nil })
	got, err := last.Select(ctx, options)
	require.NoError(t, err)
	assert.Equal(t, "Hide", got)

	for _, s := range []service.ChoiceSelector{service.FirstChoice{}, service.RandomChoice{}, last} {
		_, err := s.Select(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrNoOptionsAvailable)
	}
}

func TestNewChoiceSelector(t *testing.T) {
	s, err := service.NewChoiceSelector("FIRST")
	require.NoError(t, err)
	assert.IsType(t, service.FirstChoice{}, s)

	s, err = service.NewChoiceSelector("")
	require.NoError(t, err)
	assert.IsType(t, service.RandomChoice{}, s)

	_, err = service.NewChoiceSelector("learner")
	assert.Error(t, err)
}

func TestExercisePickers(t *testing.T) {
	rr := service.RoundRobinExercises{domain.ExerciseFillInBlank, domain.ExerciseMatching}
	assert.Equal(t, domain.ExerciseFillInBlank, rr.Pick(1))
	assert.Equal(t, domain.ExerciseMatching, rr.Pick(2))
	assert.Equal(t, domain.ExerciseFillInBlank, rr.Pick(3))
	assert.Equal(t, domain.ExerciseFillInBlank, rr.Pick(0))
	assert.Equal(t, domain.ExerciseFillInBlank, service.RoundRobinExercises(nil).Pick(4))

	assert.Equal(t, domain.ExerciseMultipleChoice, service.FixedExercise(domain.ExerciseMultipleChoice).Pick(7))
}
